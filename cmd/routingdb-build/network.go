package main

import (
	"cmp"
	"fmt"
	"slices"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"git.fiblab.net/sim/tilerouting/router/tilestore"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

type way struct {
	id       int64
	refs     []int64
	class    tile.RoadClass
	flags    tile.EdgeFlags
	maxSpeed uint8
}

// BuildNetwork 将OSM节点与道路转换为路网
// 道路在交叉口、端点与障碍物处切分为边，其余节点作为形状点
func BuildNetwork(elements []Element) (*tilestore.Network, error) {
	nodes := make(map[int64]*Element)
	var rawWays []*Element
	for i := range elements {
		e := &elements[i]
		switch e.Type {
		case ElementNode:
			nodes[e.ID] = e
		case ElementWay:
			rawWays = append(rawWays, e)
		}
	}
	slices.SortFunc(rawWays, func(a, b *Element) int { return cmp.Compare(a.ID, b.ID) })

	// 节点被道路引用的次数，端点额外计数一次
	uses := make(map[int64]int)
	var ways []way
	skipped := 0
	for _, e := range rawWays {
		refs := lo.Filter(e.Nodes, func(id int64, _ int) bool {
			_, ok := nodes[id]
			return ok
		})
		refs = slices.Compact(refs)
		if len(refs) < 2 {
			skipped++
			continue
		}
		class, flags, maxSpeed, ok := wayAttributes(e.Tags, refs)
		if !ok {
			skipped++
			continue
		}
		for i, id := range refs {
			uses[id]++
			if i == 0 || i == len(refs)-1 {
				uses[id]++
			}
		}
		ways = append(ways, way{id: e.ID, refs: refs, class: class, flags: flags, maxSpeed: maxSpeed})
	}
	if skipped > 0 {
		log.Warnf("skipped %d ways without routable tags or nodes", skipped)
	}

	isVertex := func(id int64) bool {
		return uses[id] >= 2 || nodeFlags(nodes[id].Tags) != 0
	}
	point := func(id int64) orb.Point {
		return orb.Point{nodes[id].Lon, nodes[id].Lat}
	}

	n := &tilestore.Network{}
	vertices := make(map[int64]struct{})
	var edgeID int64
	for _, w := range ways {
		from := w.refs[0]
		var shape []orb.Point
		for _, id := range w.refs[1:] {
			if !isVertex(id) {
				shape = append(shape, point(id))
				continue
			}
			edgeID++
			n.Edges = append(n.Edges, tile.Edge{
				ID: edgeID, From: from, To: id,
				Line:     orb.LineString(shape),
				Class:    w.class,
				MaxSpeed: w.maxSpeed,
				Flags:    w.flags,
			})
			vertices[from] = struct{}{}
			vertices[id] = struct{}{}
			from = id
			shape = nil
		}
	}
	if len(n.Edges) == 0 {
		return nil, fmt.Errorf("no routable ways in %d elements", len(elements))
	}

	ids := lo.Keys(vertices)
	slices.Sort(ids)
	n.Nodes = lo.Map(ids, func(id int64, _ int) tile.Node {
		return tile.Node{ID: id, Point: point(id), Flags: nodeFlags(nodes[id].Tags)}
	})
	log.Infof("built network: %d ways, %d nodes, %d edges", len(ways), len(n.Nodes), len(n.Edges))
	return n, nil
}
