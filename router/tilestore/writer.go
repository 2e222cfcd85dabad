package tilestore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/redis/go-redis/v9"
)

// Network 待切分的完整路网
// Edge.Line只需包含中间形状点，首尾由节点坐标补全；Length为0时按几何计算
type Network struct {
	Nodes []tile.Node
	Edges []tile.Edge
}

// Partition 将路网切分为zoom级别的瓦片
// 道路收录到其几何经过的每一个瓦片，这些瓦片同时收录道路的两个端点
// 返回的瓦片按(Y, X)排序
func Partition(n *Network, zoom int) ([]*tile.Tile, error) {
	if zoom < 0 || zoom > tile.MaxZoom {
		return nil, fmt.Errorf("invalid zoom %d", zoom)
	}
	nodes := make(map[int64]tile.Node, len(n.Nodes))
	for _, node := range n.Nodes {
		if _, ok := nodes[node.ID]; ok {
			return nil, fmt.Errorf("duplicate node %d", node.ID)
		}
		node.Point = orb.Point{tile.QuantizeCoord(node.Point.Lon()), tile.QuantizeCoord(node.Point.Lat())}
		nodes[node.ID] = node
	}

	type builder struct {
		nodes map[int64]struct{}
		tile  *tile.Tile
	}
	builders := make(map[tile.Key]*builder)
	get := func(key tile.Key) *builder {
		b, ok := builders[key]
		if !ok {
			b = &builder{nodes: make(map[int64]struct{}), tile: &tile.Tile{Key: key}}
			builders[key] = b
		}
		return b
	}
	addNode := func(b *builder, node tile.Node) {
		if _, ok := b.nodes[node.ID]; ok {
			return
		}
		b.nodes[node.ID] = struct{}{}
		b.tile.Nodes = append(b.tile.Nodes, node)
	}

	seen := make(map[int64]struct{}, len(n.Edges))
	for _, e := range n.Edges {
		if _, ok := seen[e.ID]; ok {
			return nil, fmt.Errorf("duplicate edge %d", e.ID)
		}
		seen[e.ID] = struct{}{}
		from, ok := nodes[e.From]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown from node %d", e.ID, e.From)
		}
		to, ok := nodes[e.To]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown to node %d", e.ID, e.To)
		}
		line := make(orb.LineString, 0, len(e.Line)+2)
		line = append(line, from.Point)
		for _, p := range e.Line {
			line = append(line, orb.Point{tile.QuantizeCoord(p.Lon()), tile.QuantizeCoord(p.Lat())})
		}
		line = append(line, to.Point)
		e.Line = line
		if e.Length <= 0 || math.IsNaN(e.Length) || math.IsInf(e.Length, 0) {
			e.Length = geo.LengthHaversine(line)
		}
		for _, key := range tile.CoverLine(line, zoom) {
			b := get(key)
			addNode(b, from)
			addNode(b, to)
			b.tile.Edges = append(b.tile.Edges, e)
		}
	}
	// 孤立节点也需要落到瓦片中
	for _, node := range n.Nodes {
		addNode(get(tile.KeyAt(nodes[node.ID].Point, zoom)), nodes[node.ID])
	}

	tiles := make([]*tile.Tile, 0, len(builders))
	for _, b := range builders {
		sort.Slice(b.tile.Nodes, func(i, j int) bool { return b.tile.Nodes[i].ID < b.tile.Nodes[j].ID })
		sort.Slice(b.tile.Edges, func(i, j int) bool { return b.tile.Edges[i].ID < b.tile.Edges[j].ID })
		tiles = append(tiles, tile.New(b.tile.Key, b.tile.Nodes, b.tile.Edges))
	}
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i].Key, tiles[j].Key
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return tiles, nil
}

func buildHeader(n *Network, zooms []int) Header {
	var bound orb.Bound
	for i, node := range n.Nodes {
		if i == 0 {
			bound = node.Point.Bound()
		} else {
			bound = bound.Extend(node.Point)
		}
	}
	sorted := append([]int(nil), zooms...)
	sort.Ints(sorted)
	return Header{
		Format:    FormatName,
		Version:   FormatVersion,
		Zooms:     sorted,
		Bound:     bound,
		NodeCount: len(n.Nodes),
		EdgeCount: len(n.Edges),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func partitionAll(n *Network, zooms []int) (Header, []*tile.Tile, error) {
	if len(zooms) == 0 {
		return Header{}, nil, fmt.Errorf("no zoom level given")
	}
	var all []*tile.Tile
	for _, z := range zooms {
		tiles, err := Partition(n, z)
		if err != nil {
			return Header{}, nil, err
		}
		log.Infof("zoom %d: %d tiles", z, len(tiles))
		all = append(all, tiles...)
	}
	return buildHeader(n, zooms), all, nil
}

// WriteSQLite 切分路网并写入新的.routingdb文件
func WriteSQLite(ctx context.Context, path string, n *Network, zooms []int) (Header, error) {
	header, tiles, err := partitionAll(n, zooms)
	if err != nil {
		return Header{}, err
	}
	if err := writeSQLite(ctx, path, header, tiles); err != nil {
		return Header{}, err
	}
	log.Infof("wrote %d tiles to %s", len(tiles), path)
	return header, nil
}

// WriteRedis 切分路网并写入Redis，替换同前缀下的旧数据库
func WriteRedis(ctx context.Context, client *redis.Client, prefix string, n *Network, zooms []int) (Header, error) {
	header, tiles, err := partitionAll(n, zooms)
	if err != nil {
		return Header{}, err
	}
	if err := writeRedis(ctx, client, prefix, header, tiles); err != nil {
		return Header{}, err
	}
	log.Infof("wrote %d tiles to redis prefix %s", len(tiles), prefix)
	return header, nil
}

// Write 根据路径写入：redis://或rediss://写入Redis，其余写入新的SQLite文件
func Write(ctx context.Context, path string, n *Network, zooms []int) (Header, error) {
	if !isRedisURL(path) {
		return WriteSQLite(ctx, path, n, zooms)
	}
	opt, prefix, err := ParseRedisURL(path)
	if err != nil {
		return Header{}, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return Header{}, fmt.Errorf("failed to connect redis: %w", err)
	}
	return WriteRedis(ctx, client, prefix, n, zooms)
}
