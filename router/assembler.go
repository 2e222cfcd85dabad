package router

import (
	"context"
	"errors"
	"fmt"
	"math"

	"git.fiblab.net/sim/tilerouting/router/algo"
	"git.fiblab.net/sim/tilerouting/router/tile"
	"git.fiblab.net/sim/tilerouting/router/tilecache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// 虚拟起终点的节点ID，真实节点ID非负
const (
	VIRTUAL_START_ID = -1
	VIRTUAL_END_ID   = -2
)

// vertex 搜索图节点属性
type vertex struct {
	ID    int64
	Point orb.Point
}

// arc 搜索图边属性，沿道路几何从From比例位置走到To比例位置
// From < To为正向，From > To为反向
type arc struct {
	Edge     *tile.Edge
	From, To float64
}

func (a arc) length() float64 {
	return math.Abs(a.To-a.From) * a.Edge.Length
}

// region 单次请求已获取的瓦片，请求结束时统一释放
type region struct {
	cache   *tilecache.Cache
	tiles   map[tile.Key]*tile.Tile // nil表示数据库中不存在
	keys    []tile.Key              // 获取顺序
	handles []*tilecache.Handle
}

func newRegion(cache *tilecache.Cache) *region {
	return &region{
		cache: cache,
		tiles: make(map[tile.Key]*tile.Tile),
	}
}

// fetch 获取瓦片，不存在的瓦片记为nil，返回新获取的数量
func (rg *region) fetch(ctx context.Context, keys []tile.Key) (int, error) {
	added := 0
	for _, key := range keys {
		if _, ok := rg.tiles[key]; ok {
			continue
		}
		h, err := rg.cache.Get(ctx, key)
		switch {
		case err == nil:
			rg.handles = append(rg.handles, h)
			rg.tiles[key] = h.Tile()
		case errors.Is(err, tile.ErrNoTileData):
			rg.tiles[key] = nil
		default:
			return added, err
		}
		rg.keys = append(rg.keys, key)
		added++
	}
	return added, nil
}

// present 瓦片是否存在于数据库中，需先fetch
func (rg *region) present(key tile.Key) bool {
	return rg.tiles[key] != nil
}

func (rg *region) release() {
	for _, h := range rg.handles {
		h.Release()
	}
	rg.handles = nil
}

// network 由region组装出的搜索图
type network struct {
	g     *algo.SearchGraph[vertex, arc]
	rules rules
	// 全局节点ID -> 图中下标
	index map[int64]int
	// 可通行的道路，按组装顺序
	edges []*tile.Edge
}

// assemble 按瓦片获取顺序合并节点与道路，跨瓦片的节点按ID去重
func (rg *region) assemble(profile Profile) *network {
	rules := profile.rules()
	n := &network{
		g:     algo.NewSearchGraph[vertex, arc](heuristics{maxSpeed: rules.maxSpeed()}),
		rules: rules,
		index: make(map[int64]int),
	}
	seen := make(map[int64]struct{})
	addNode := func(t *tile.Tile, id int64) int {
		if i, ok := n.index[id]; ok {
			return i
		}
		node, ok := t.Node(id)
		if !ok {
			// 解码时已校验
			log.Panicf("tile %v: edge endpoint %d missing", t.Key, id)
		}
		i := n.g.InitNode(node.Point, vertex{ID: id, Point: node.Point}, !rules.passable(node))
		n.index[id] = i
		return i
	}
	for _, key := range rg.keys {
		t := rg.tiles[key]
		if t == nil {
			continue
		}
		for i := range t.Edges {
			e := &t.Edges[i]
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			if !rules.admits(e) {
				continue
			}
			from := addNode(t, e.From)
			to := addNode(t, e.To)
			cost := e.Length / rules.speed(e)
			if rules.forward(e) {
				n.g.InitEdge(from, to, cost, arc{Edge: e, From: 0, To: 1})
			}
			if rules.backward(e) {
				n.g.InitEdge(to, from, cost, arc{Edge: e, From: 1, To: 0})
			}
			n.edges = append(n.edges, e)
		}
	}
	return n
}

// snap 起终点在道路上的投影
type snap struct {
	Edge     *tile.Edge
	Fraction float64 // 沿道路的长度比例
	Point    orb.Point
	Distance float64 // 到原始点的距离（米）
}

// nearest 查找radius米内最近的可通行道路，距离相同时取先组装的道路
func (n *network) nearest(p orb.Point, radius float64) (snap, bool) {
	best := snap{Distance: math.Inf(1)}
	for _, e := range n.edges {
		s := project(e, p)
		if s.Distance < best.Distance {
			best = s
		}
	}
	if best.Edge == nil || best.Distance > radius {
		return best, false
	}
	return best, true
}

// project 将p投影到道路e上，在p附近使用等距圆柱投影近似
func project(e *tile.Edge, p orb.Point) snap {
	kx := math.Cos(p.Lat()*math.Pi/180) * orb.EarthRadius * math.Pi / 180
	ky := orb.EarthRadius * math.Pi / 180
	best := snap{Edge: e, Distance: math.Inf(1)}
	bestSeg, bestT := 0, 0.0
	for i := 0; i+1 < len(e.Line); i++ {
		a, b := e.Line[i], e.Line[i+1]
		ax, ay := (a.Lon()-p.Lon())*kx, (a.Lat()-p.Lat())*ky
		bx, by := (b.Lon()-p.Lon())*kx, (b.Lat()-p.Lat())*ky
		dx, dy := bx-ax, by-ay
		t := 0.0
		if l2 := dx*dx + dy*dy; l2 > 0 {
			t = min(max(-(ax*dx+ay*dy)/l2, 0), 1)
		}
		x, y := ax+t*dx, ay+t*dy
		if d := math.Hypot(x, y); d < best.Distance {
			best.Distance = d
			bestSeg, bestT = i, t
		}
	}
	cum := cumulative(e.Line)
	total := cum[len(cum)-1]
	if total > 0 {
		seg := cum[bestSeg+1] - cum[bestSeg]
		best.Fraction = (cum[bestSeg] + bestT*seg) / total
	}
	best.Point = pointAt(e.Line, cum, best.Fraction)
	return best
}

// cumulative 折线各点到起点的累计长度
func cumulative(line orb.LineString) []float64 {
	cum := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		cum[i] = cum[i-1] + geo.DistanceHaversine(line[i-1], line[i])
	}
	return cum
}

// pointAt 折线上长度比例f处的点
func pointAt(line orb.LineString, cum []float64, f float64) orb.Point {
	total := cum[len(cum)-1]
	if f <= 0 || total == 0 {
		return line[0]
	}
	if f >= 1 {
		return line[len(line)-1]
	}
	d := f * total
	for i := 1; i < len(line); i++ {
		if cum[i] >= d {
			seg := cum[i] - cum[i-1]
			if seg == 0 {
				return line[i]
			}
			t := (d - cum[i-1]) / seg
			a, b := line[i-1], line[i]
			return orb.Point{a.Lon() + t*(b.Lon()-a.Lon()), a.Lat() + t*(b.Lat()-a.Lat())}
		}
	}
	return line[len(line)-1]
}

// attach 加入虚拟起终点，返回其在图中的下标
//
//	From ----- s ----- t ----- To
//
// 起点s连向道路两端（按通行方向），道路两端连向终点t；同一道路上可直达时加入s->t
func (n *network) attach(s, t snap) (start, end int) {
	g := n.g
	start = g.InitNode(s.Point, vertex{ID: VIRTUAL_START_ID, Point: s.Point}, false)
	end = g.InitNode(t.Point, vertex{ID: VIRTUAL_END_ID, Point: t.Point}, false)
	cost := func(e *tile.Edge, from, to float64) float64 {
		return math.Abs(to-from) * e.Length / n.rules.speed(e)
	}

	e := s.Edge
	if n.rules.forward(e) {
		g.InitEdge(start, n.index[e.To], cost(e, s.Fraction, 1), arc{Edge: e, From: s.Fraction, To: 1})
	}
	if n.rules.backward(e) {
		g.InitEdge(start, n.index[e.From], cost(e, s.Fraction, 0), arc{Edge: e, From: s.Fraction, To: 0})
	}
	e = t.Edge
	if n.rules.forward(e) {
		g.InitEdge(n.index[e.From], end, cost(e, 0, t.Fraction), arc{Edge: e, From: 0, To: t.Fraction})
	}
	if n.rules.backward(e) {
		g.InitEdge(n.index[e.To], end, cost(e, 1, t.Fraction), arc{Edge: e, From: 1, To: t.Fraction})
	}
	if s.Edge == t.Edge {
		e = s.Edge
		if (s.Fraction <= t.Fraction && n.rules.forward(e)) || (s.Fraction >= t.Fraction && n.rules.backward(e)) {
			g.InitEdge(start, end, cost(e, s.Fraction, t.Fraction), arc{Edge: e, From: s.Fraction, To: t.Fraction})
		}
	}
	return start, end
}

// regionBound 起终点的包围盒
func regionBound(start, end orb.Point) orb.Bound {
	return orb.MultiPoint{start, end}.Bound()
}

func errRegionTooLarge(count, limit int) error {
	return fmt.Errorf("%w: region of %d tiles exceeds limit %d", ErrNoRoute, count, limit)
}
