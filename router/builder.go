package router

import (
	"git.fiblab.net/sim/tilerouting/router/algo"
	"github.com/paulmach/orb"
)

// buildRoute 将搜索结果转换为路线，cost为A*得到的总用时
func buildRoute(path []algo.PathItem[vertex, arc], cost float64) *Route {
	points := make(orb.LineString, 0, len(path)*2)
	distance := 0.0
	for i, item := range path {
		if i == len(path)-1 {
			points = appendPoint(points, item.NodeAttr.Point)
			break
		}
		a := item.EdgeAttr
		distance += a.length()
		points = appendSubline(points, a)
	}
	coords := make([]Coordinate, len(points))
	for i, p := range points {
		coords[i] = fromPoint(p)
	}
	return &Route{Coordinates: coords, Distance: distance, Duration: cost}
}

// singlePointRoute 起终点相同时的路线
func singlePointRoute(c Coordinate) *Route {
	return &Route{Coordinates: []Coordinate{c}}
}

// appendSubline 追加a对应的道路几何，含首尾
func appendSubline(points orb.LineString, a arc) orb.LineString {
	line := a.Edge.Line
	cum := cumulative(line)
	total := cum[len(cum)-1]
	points = appendPoint(points, pointAt(line, cum, a.From))
	if a.From <= a.To {
		for i := 1; i < len(line)-1; i++ {
			if f := cum[i] / total; f > a.From && f < a.To {
				points = appendPoint(points, line[i])
			}
		}
	} else {
		for i := len(line) - 2; i >= 1; i-- {
			if f := cum[i] / total; f < a.From && f > a.To {
				points = appendPoint(points, line[i])
			}
		}
	}
	return appendPoint(points, pointAt(line, cum, a.To))
}

// appendPoint 追加点，与上一点重合时跳过
func appendPoint(points orb.LineString, p orb.Point) orb.LineString {
	if n := len(points); n > 0 && points[n-1].Equal(p) {
		return points
	}
	return append(points, p)
}
