package tile

import (
	"github.com/paulmach/orb"
)

// RoadClass 道路等级，对应OSM highway标签
type RoadClass uint8

const (
	ClassUnknown RoadClass = iota
	ClassMotorway
	ClassMotorwayLink
	ClassTrunk
	ClassTrunkLink
	ClassPrimary
	ClassPrimaryLink
	ClassSecondary
	ClassSecondaryLink
	ClassTertiary
	ClassTertiaryLink
	ClassUnclassified
	ClassResidential
	ClassLivingStreet
	ClassService
	ClassTrack
	ClassRoad
	ClassPath
	ClassFootway
	ClassPedestrian
	ClassSteps
	ClassCycleway

	numClasses
)

var classNames = [numClasses]string{
	ClassUnknown:       "unknown",
	ClassMotorway:      "motorway",
	ClassMotorwayLink:  "motorway_link",
	ClassTrunk:         "trunk",
	ClassTrunkLink:     "trunk_link",
	ClassPrimary:       "primary",
	ClassPrimaryLink:   "primary_link",
	ClassSecondary:     "secondary",
	ClassSecondaryLink: "secondary_link",
	ClassTertiary:      "tertiary",
	ClassTertiaryLink:  "tertiary_link",
	ClassUnclassified:  "unclassified",
	ClassResidential:   "residential",
	ClassLivingStreet:  "living_street",
	ClassService:       "service",
	ClassTrack:         "track",
	ClassRoad:          "road",
	ClassPath:          "path",
	ClassFootway:       "footway",
	ClassPedestrian:    "pedestrian",
	ClassSteps:         "steps",
	ClassCycleway:      "cycleway",
}

func (c RoadClass) Valid() bool {
	return c < numClasses
}

func (c RoadClass) String() string {
	if !c.Valid() {
		return "invalid"
	}
	return classNames[c]
}

// ParseRoadClass 将highway标签值转换为道路等级
func ParseRoadClass(s string) (RoadClass, bool) {
	for c, name := range classNames {
		if name == s {
			return RoadClass(c), true
		}
	}
	return ClassUnknown, false
}

// EdgeFlags 道路通行限制
type EdgeFlags uint8

const (
	// 机动车单行（沿From->To方向）
	EdgeOneway EdgeFlags = 1 << iota
	// 行人单行，如oneway:foot=yes
	EdgeOnewayFoot
	// 禁止机动车
	EdgeNoCar
	// 禁止行人
	EdgeNoFoot

	edgeFlagsMask = EdgeOneway | EdgeOnewayFoot | EdgeNoCar | EdgeNoFoot
)

func (f EdgeFlags) Has(flag EdgeFlags) bool {
	return f&flag != 0
}

// NodeFlags 节点通行限制（路障等）
type NodeFlags uint8

const (
	NodeBarrierCar NodeFlags = 1 << iota
	NodeBarrierFoot

	nodeFlagsMask = NodeBarrierCar | NodeBarrierFoot
)

func (f NodeFlags) Has(flag NodeFlags) bool {
	return f&flag != 0
}

// Node 路口或道路端点，ID全局唯一，跨瓦片共享
type Node struct {
	ID    int64
	Point orb.Point
	Flags NodeFlags
}

// Edge 一段道路，双向通行除非带有单行标记
type Edge struct {
	ID       int64
	From, To int64
	// 完整几何，首尾分别为From和To节点坐标
	Line orb.LineString
	// 长度（米）
	Length   float64
	Class    RoadClass
	MaxSpeed uint8 // km/h，0表示按道路等级取默认值
	Flags    EdgeFlags
}

// Tile 解码后的瓦片，只读
// 瓦片包含其中所有道路的两个端点，即使端点位于相邻瓦片
type Tile struct {
	Key   Key
	Nodes []Node
	Edges []Edge

	index map[int64]int32 // node id -> Nodes下标
}

// New 创建瓦片并建立节点索引，nodes和edges的所有权转移给Tile
func New(key Key, nodes []Node, edges []Edge) *Tile {
	t := &Tile{Key: key, Nodes: nodes, Edges: edges}
	t.buildIndex()
	return t
}

func (t *Tile) buildIndex() {
	t.index = make(map[int64]int32, len(t.Nodes))
	for i, n := range t.Nodes {
		t.index[n.ID] = int32(i)
	}
}

// Node 按ID查找节点
func (t *Tile) Node(id int64) (*Node, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.Nodes[i], true
}
