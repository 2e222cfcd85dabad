package router

import (
	"fmt"
	"strings"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Profile 出行方式
type Profile int

const (
	ProfileCar  Profile = 0
	ProfileFoot Profile = 1
)

func (p Profile) String() string {
	switch p {
	case ProfileCar:
		return "car"
	case ProfileFoot:
		return "foot"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

func (p Profile) Valid() bool {
	return p == ProfileCar || p == ProfileFoot
}

// ParseProfile 解析"car"或"foot"，大小写不敏感
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "car", "driving", "drive":
		return ProfileCar, nil
	case "foot", "walking", "walk":
		return ProfileFoot, nil
	}
	return 0, fmt.Errorf("unknown profile %q", s)
}

const (
	// 步行速度
	PERSON_SPEED = 5 / 3.6
	// 台阶上的步行速度
	STEPS_SPEED = 2 / 3.6
	// 车辆最高速度，用于A*估价
	VEHICLE_MAX_SPEED = 130 / 3.6
)

// 各等级道路的默认车速（km/h）
var carSpeeds = map[tile.RoadClass]float64{
	tile.ClassMotorway:      110,
	tile.ClassMotorwayLink:  60,
	tile.ClassTrunk:         90,
	tile.ClassTrunkLink:     50,
	tile.ClassPrimary:       70,
	tile.ClassPrimaryLink:   50,
	tile.ClassSecondary:     60,
	tile.ClassSecondaryLink: 45,
	tile.ClassTertiary:      50,
	tile.ClassTertiaryLink:  40,
	tile.ClassUnclassified:  40,
	tile.ClassResidential:   30,
	tile.ClassLivingStreet:  10,
	tile.ClassService:       20,
	tile.ClassTrack:         15,
	tile.ClassRoad:          30,
	tile.ClassUnknown:       30,
}

// rules 出行方式对应的通行规则
type rules interface {
	// admits 道路是否可通行
	admits(e *tile.Edge) bool
	// forward/backward 是否可沿From->To或To->From方向通行，调用前需admits为真
	forward(e *tile.Edge) bool
	backward(e *tile.Edge) bool
	// passable 是否可经过该节点
	passable(n *tile.Node) bool
	// speed 通行速度（m/s）
	speed(e *tile.Edge) float64
	// maxSpeed 最高速度（m/s），A*估价不得高估
	maxSpeed() float64
}

func (p Profile) rules() rules {
	if p == ProfileFoot {
		return footRules{}
	}
	return carRules{}
}

type carRules struct{}

func (carRules) admits(e *tile.Edge) bool {
	if e.Flags.Has(tile.EdgeNoCar) {
		return false
	}
	switch e.Class {
	case tile.ClassPath, tile.ClassFootway, tile.ClassPedestrian, tile.ClassSteps, tile.ClassCycleway:
		return false
	}
	return true
}

func (carRules) forward(e *tile.Edge) bool {
	return true
}

func (carRules) backward(e *tile.Edge) bool {
	return !e.Flags.Has(tile.EdgeOneway)
}

func (carRules) passable(n *tile.Node) bool {
	return !n.Flags.Has(tile.NodeBarrierCar)
}

func (carRules) speed(e *tile.Edge) float64 {
	kmh := carSpeeds[e.Class]
	if e.MaxSpeed > 0 {
		kmh = float64(e.MaxSpeed)
	}
	if kmh <= 0 {
		kmh = carSpeeds[tile.ClassUnknown]
	}
	return min(kmh/3.6, VEHICLE_MAX_SPEED)
}

func (carRules) maxSpeed() float64 {
	return VEHICLE_MAX_SPEED
}

type footRules struct{}

func (footRules) admits(e *tile.Edge) bool {
	if e.Flags.Has(tile.EdgeNoFoot) {
		return false
	}
	switch e.Class {
	case tile.ClassMotorway, tile.ClassMotorwayLink, tile.ClassTrunk, tile.ClassTrunkLink:
		return false
	}
	return true
}

func (footRules) forward(e *tile.Edge) bool {
	return true
}

// 行人只遵守oneway:foot
func (footRules) backward(e *tile.Edge) bool {
	return !e.Flags.Has(tile.EdgeOnewayFoot)
}

func (footRules) passable(n *tile.Node) bool {
	return !n.Flags.Has(tile.NodeBarrierFoot)
}

func (footRules) speed(e *tile.Edge) float64 {
	if e.Class == tile.ClassSteps {
		return STEPS_SPEED
	}
	return PERSON_SPEED
}

func (footRules) maxSpeed() float64 {
	return PERSON_SPEED
}

// heuristics 直线距离/最高速度
type heuristics struct {
	maxSpeed float64
}

func (h heuristics) Heuristic(p1 orb.Point, p2 orb.Point) float64 {
	return geo.DistanceHaversine(p1, p2) / h.maxSpeed
}
