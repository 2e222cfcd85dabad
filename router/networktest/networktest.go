// Package networktest 构造测试用的合成路网并写入临时.routingdb文件
package networktest

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"git.fiblab.net/sim/tilerouting/router/tilestore"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

// Origin 所有合成路网的西南角
var Origin = orb.Point{40.45, 64.50}

// Offset 返回p向东east米、向北north米后的点（球面近似）
func Offset(p orb.Point, east, north float64) orb.Point {
	lat := p.Lat() + north/orb.EarthRadius*180/math.Pi
	lon := p.Lon() + east/(orb.EarthRadius*math.Cos(p.Lat()*math.Pi/180))*180/math.Pi
	return orb.Point{lon, lat}
}

// At 相对Origin的偏移点
func At(east, north float64) orb.Point {
	return Offset(Origin, east, north)
}

// Builder 逐个添加节点与道路
type Builder struct {
	net      tilestore.Network
	nextNode int64
	nextEdge int64
}

func NewBuilder() *Builder {
	return &Builder{nextNode: 1, nextEdge: 1}
}

// Node 在相对Origin的(east, north)米处添加节点
func (b *Builder) Node(east, north float64) int64 {
	return b.NodeFlags(east, north, 0)
}

func (b *Builder) NodeFlags(east, north float64, flags tile.NodeFlags) int64 {
	id := b.nextNode
	b.nextNode++
	b.net.Nodes = append(b.net.Nodes, tile.Node{ID: id, Point: At(east, north), Flags: flags})
	return id
}

// Edge 添加from到to的道路，shape为中间形状点
func (b *Builder) Edge(from, to int64, class tile.RoadClass, flags tile.EdgeFlags, shape ...orb.Point) int64 {
	id := b.nextEdge
	b.nextEdge++
	b.net.Edges = append(b.net.Edges, tile.Edge{
		ID: id, From: from, To: to,
		Line:  orb.LineString(shape),
		Class: class, Flags: flags,
	})
	return id
}

// Point 节点坐标（量化前）
func (b *Builder) Point(id int64) orb.Point {
	return b.net.Nodes[id-1].Point
}

func (b *Builder) Network() *tilestore.Network {
	return &b.net
}

// Scenario 10x10公里的居住区路网，另有一条3公里、两段的南北向主干道
type Scenario struct {
	*Builder
	// 主干道的南端、中点、北端
	A, B, C int64
}

const (
	GridSize    = 11
	GridSpacing = 1000.0
	// 主干道位于第5、6列之间，不与网格相交于节点
	AvenueEast = 5500.0
)

func NewScenario() *Scenario {
	b := NewBuilder()
	ids := make([][]int64, GridSize)
	for i := range ids {
		ids[i] = make([]int64, GridSize)
		for j := range ids[i] {
			ids[i][j] = b.Node(float64(j)*GridSpacing, float64(i)*GridSpacing)
		}
	}
	for i := 0; i < GridSize; i++ {
		for j := 0; j < GridSize; j++ {
			if j+1 < GridSize {
				b.Edge(ids[i][j], ids[i][j+1], tile.ClassResidential, 0)
			}
			if i+1 < GridSize {
				b.Edge(ids[i][j], ids[i+1][j], tile.ClassResidential, 0)
			}
		}
	}
	s := &Scenario{Builder: b}
	s.A = b.Node(AvenueEast, 2500)
	s.B = b.Node(AvenueEast, 4000)
	s.C = b.Node(AvenueEast, 5500)
	b.Edge(s.A, s.B, tile.ClassPrimary, 0)
	b.Edge(s.B, s.C, tile.ClassPrimary, 0)
	return s
}

// Detour 单行道与绕行路线
//
//	    R
//	   / \
//	  P-->Q      P->Q 居住区单行500米，P-R-Q 双向绕行约1118米
//	   \ /
//	    S        P-S-Q 人行道约539米
//
// 另有与其他道路不连通的单行道T->U，300米
type Detour struct {
	*Builder
	P, Q, R, S, T, U int64
	Direct, Oneway   int64
}

func NewDetour() *Detour {
	b := NewBuilder()
	d := &Detour{Builder: b}
	d.P = b.Node(0, 0)
	d.Q = b.Node(500, 0)
	d.R = b.Node(250, 500)
	d.S = b.Node(250, -100)
	d.T = b.Node(0, 3000)
	d.U = b.Node(300, 3000)
	d.Direct = b.Edge(d.P, d.Q, tile.ClassResidential, tile.EdgeOneway)
	b.Edge(d.P, d.R, tile.ClassResidential, 0)
	b.Edge(d.R, d.Q, tile.ClassResidential, 0)
	b.Edge(d.P, d.S, tile.ClassFootway, 0)
	b.Edge(d.S, d.Q, tile.ClassFootway, 0)
	d.Oneway = b.Edge(d.T, d.U, tile.ClassResidential, tile.EdgeOneway)
	return d
}

// WriteSQLite 将路网写入临时目录下的.routingdb文件并返回路径
func WriteSQLite(t testing.TB, n *tilestore.Network, zooms ...int) string {
	t.Helper()
	if len(zooms) == 0 {
		zooms = []int{14}
	}
	path := filepath.Join(t.TempDir(), "test.routingdb")
	_, err := tilestore.WriteSQLite(context.Background(), path, n, zooms)
	require.NoError(t, err)
	return path
}
