package algo_test

import (
	"context"
	"testing"

	"git.fiblab.net/general/common/v2/mathutil"
	"git.fiblab.net/sim/tilerouting/router/algo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestHeuristics1 struct {
}

func (h TestHeuristics1) Heuristic(p1 orb.Point, p2 orb.Point) float64 {
	return planar.Distance(p1, p2)
}

type ZeroHeuristics struct {
}

func (h ZeroHeuristics) Heuristic(p1 orb.Point, p2 orb.Point) float64 {
	return 0
}

func TestSearchGraph(t *testing.T) {
	ctx := context.Background()
	g := algo.NewSearchGraph[int, int](TestHeuristics1{})

	// 初始化点
	n1 := g.InitNode(orb.Point{0, 0}, 1, false)
	n2 := g.InitNode(orb.Point{0, 1}, 2, false)
	n3 := g.InitNode(orb.Point{1, 0}, 3, false)
	n4 := g.InitNode(orb.Point{1, 1}, 4, true)

	// 初始化边
	g.InitEdge(n1, n2, 1, 12)
	g.InitEdge(n2, n3, 1, 23)
	g.InitEdge(n3, n4, 1, 34)
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())

	// 计算最短路
	path, cost, err := g.ShortestPath(ctx, n1, n4, 0)
	require.NoError(t, err)
	assert.Len(t, path, 4)
	assert.Equal(t, 1, path[0].NodeAttr)
	assert.Equal(t, 12, path[0].EdgeAttr)
	assert.Equal(t, 2, path[1].NodeAttr)
	assert.Equal(t, 23, path[1].EdgeAttr)
	assert.Equal(t, 3, path[2].NodeAttr)
	assert.Equal(t, 34, path[2].EdgeAttr)
	assert.Equal(t, 4, path[3].NodeAttr)
	assert.Equal(t, 3.0, cost)

	path, cost, err = g.ShortestPath(ctx, n3, n3, 0)
	require.NoError(t, err)
	assert.Len(t, path, 1)
	assert.Equal(t, 3, path[0].NodeAttr)
	assert.Equal(t, 0.0, cost)

	// 加入不可达的点
	n5 := g.InitNode(orb.Point{2, 2}, 5, true)
	path, cost, err = g.ShortestPath(ctx, n1, n5, 0)
	assert.ErrorIs(t, err, algo.ErrNoPath)
	assert.Nil(t, path)
	assert.Equal(t, mathutil.INF, cost)

	// 单向
	_, _, err = g.ShortestPath(ctx, n4, n1, 0)
	assert.ErrorIs(t, err, algo.ErrNoPath)
}

func TestSearchGraph2(t *testing.T) {
	g := algo.NewSearchGraph[int, int](TestHeuristics1{})

	// 初始化点
	n1 := g.InitNode(orb.Point{0, 0}, 1, false)
	n2 := g.InitNode(orb.Point{0, 1}, 2, false)
	n3 := g.InitNode(orb.Point{1, 0}, 3, false)

	// 初始化边
	g.InitEdge(n1, n2, 10, 12)
	g.InitEdge(n1, n3, 2, 13)
	g.InitEdge(n3, n2, 1, 32)

	// 计算最短路
	path, cost, err := g.ShortestPath(context.Background(), n1, n2, 0)
	require.NoError(t, err)
	assert.Len(t, path, 3)
	assert.Equal(t, 1, path[0].NodeAttr)
	assert.Equal(t, 13, path[0].EdgeAttr)
	assert.Equal(t, 3, path[1].NodeAttr)
	assert.Equal(t, 32, path[1].EdgeAttr)
	assert.Equal(t, 2, path[2].NodeAttr)
	assert.Equal(t, 3.0, cost)
}

func TestParallelEdges(t *testing.T) {
	g := algo.NewSearchGraph[int, int](ZeroHeuristics{})
	n1 := g.InitNode(orb.Point{0, 0}, 1, false)
	n2 := g.InitNode(orb.Point{1, 0}, 2, false)
	g.InitEdge(n1, n2, 5, 100)
	g.InitEdge(n1, n2, 3, 200)
	g.InitEdge(n1, n2, 3, 300)

	path, cost, err := g.ShortestPath(context.Background(), n1, n2, 0)
	require.NoError(t, err)
	// 代价相同时保留先出现的边
	assert.Equal(t, 200, path[0].EdgeAttr)
	assert.Equal(t, 3.0, cost)
}

func TestTieBreak(t *testing.T) {
	// 两条等价路径：1-2-4与1-3-4，先发现的2胜出
	build := func() (*algo.SearchGraph[int, int], int, int) {
		g := algo.NewSearchGraph[int, int](ZeroHeuristics{})
		n1 := g.InitNode(orb.Point{0, 0}, 1, false)
		n2 := g.InitNode(orb.Point{1, 1}, 2, false)
		n3 := g.InitNode(orb.Point{1, -1}, 3, false)
		n4 := g.InitNode(orb.Point{2, 0}, 4, false)
		g.InitEdge(n1, n2, 1, 12)
		g.InitEdge(n1, n3, 1, 13)
		g.InitEdge(n2, n4, 1, 24)
		g.InitEdge(n3, n4, 1, 34)
		return g, n1, n4
	}
	for i := 0; i < 20; i++ {
		g, s, e := build()
		path, cost, err := g.ShortestPath(context.Background(), s, e, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 4}, []int{path[0].NodeAttr, path[1].NodeAttr, path[2].NodeAttr})
		assert.Equal(t, 2.0, cost)
	}
}

func TestSearchStates(t *testing.T) {
	g := algo.NewSearchGraph[int, int](ZeroHeuristics{})
	n1 := g.InitNode(orb.Point{0, 0}, 1, false)
	n2 := g.InitNode(orb.Point{1, 0}, 2, false)
	g.InitEdge(n1, n2, 1, 12)

	s := g.NewSearch(n1, n2)
	assert.Equal(t, algo.StateInitialized, s.State())
	assert.Equal(t, algo.StateExpanding, s.Step())
	assert.Equal(t, algo.StateFound, s.Step())
	// 终态不再变化
	assert.Equal(t, algo.StateFound, s.Step())
	path, cost := s.Path()
	assert.Len(t, path, 2)
	assert.Equal(t, 1.0, cost)

	s = g.NewSearch(n2, n1)
	assert.Equal(t, algo.StateExhausted, s.Step())
	path, cost = s.Path()
	assert.Nil(t, path)
	assert.Equal(t, mathutil.INF, cost)
}

func TestBudget(t *testing.T) {
	g := algo.NewSearchGraph[int, int](ZeroHeuristics{})
	prev := g.InitNode(orb.Point{0, 0}, 0, false)
	first := prev
	for i := 1; i < 100; i++ {
		n := g.InitNode(orb.Point{float64(i), 0}, i, false)
		g.InitEdge(prev, n, 1, i)
		prev = n
	}
	_, _, err := g.ShortestPath(context.Background(), first, prev, 10)
	assert.ErrorIs(t, err, algo.ErrBudgetExceeded)

	path, _, err := g.ShortestPath(context.Background(), first, prev, 1000)
	require.NoError(t, err)
	assert.Len(t, path, 100)
}

func TestCanceled(t *testing.T) {
	g := algo.NewSearchGraph[int, int](ZeroHeuristics{})
	prev := g.InitNode(orb.Point{0, 0}, 0, false)
	first := prev
	for i := 1; i < 3*algo.CONTEXT_CHECK_INTERVAL; i++ {
		n := g.InitNode(orb.Point{float64(i), 0}, i, false)
		g.InitEdge(prev, n, 1, i)
		prev = n
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := g.ShortestPath(ctx, first, prev, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidEdge(t *testing.T) {
	g := algo.NewSearchGraph[int, int](ZeroHeuristics{})
	n1 := g.InitNode(orb.Point{0, 0}, 1, false)
	assert.Panics(t, func() { g.InitEdge(n1, 5, 1, 0) })
	assert.Panics(t, func() { g.InitEdge(n1, n1, -1, 0) })
}
