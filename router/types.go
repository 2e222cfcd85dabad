package router

import (
	"math"

	"github.com/paulmach/orb"
)

// Coordinate WGS84经纬度
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude) &&
		c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func fromPoint(p orb.Point) Coordinate {
	return Coordinate{Latitude: p.Lat(), Longitude: p.Lon()}
}

// Route 计算得到的路线，不引用路网数据
type Route struct {
	Coordinates []Coordinate `json:"coordinates"`
	// 总距离（米）
	Distance float64 `json:"distance"`
	// 预计用时（秒）
	Duration float64 `json:"duration"`
}

// AverageSpeed 平均速度（km/h），用时为0时返回0
func (r *Route) AverageSpeed() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return (r.Distance / 1000) / (r.Duration / 3600)
}

func (r *Route) WaypointCount() int {
	return len(r.Coordinates)
}

func (r *Route) IsEmpty() bool {
	return len(r.Coordinates) == 0
}

// BoundingBox 返回路线的西南角与东北角，路线为空时ok为false
func (r *Route) BoundingBox() (southwest, northeast Coordinate, ok bool) {
	if r.IsEmpty() {
		return Coordinate{}, Coordinate{}, false
	}
	b := r.LineString().Bound()
	return fromPoint(b.Min), fromPoint(b.Max), true
}

func (r *Route) LineString() orb.LineString {
	ls := make(orb.LineString, len(r.Coordinates))
	for i, c := range r.Coordinates {
		ls[i] = c.Point()
	}
	return ls
}
