package algo

import (
	"container/heap"
	"context"
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

type node[T any] struct {
	p     orb.Point
	attr  T
	noOut bool // 是否禁止经过（仍可作为终点）
}

type edge[T any] struct {
	to   int
	cost float64
	attr T
}

// SearchGraph 单次请求构建的有向图，构建完成后只读
type SearchGraph[NT any, ET any] struct {
	// 邻接表，按插入顺序保存出边，保证遍历顺序确定
	edges [][]edge[ET]
	// 点的位置与属性
	nodes []node[NT]
	// A Star距离预估函数
	h IHeuristics
	// 边数
	nEdges int
}

// IHeuristics A*估价函数，不得高估两点间的实际代价
type IHeuristics interface {
	Heuristic(from orb.Point, to orb.Point) float64
}

func NewSearchGraph[NT any, ET any](h IHeuristics) *SearchGraph[NT, ET] {
	return &SearchGraph[NT, ET]{
		edges: make([][]edge[ET], 0),
		nodes: make([]node[NT], 0),
		h:     h,
	}
}

func (g *SearchGraph[NT, ET]) InitNode(p orb.Point, attr NT, noOut bool) int {
	g.nodes = append(g.nodes, node[NT]{p: p, attr: attr, noOut: noOut})
	g.edges = append(g.edges, nil)
	return len(g.nodes) - 1
}

// InitEdge 添加from到to的边，cost必须为非负有限值
func (g *SearchGraph[NT, ET]) InitEdge(from, to int, cost float64, attr ET) {
	if from >= len(g.edges) || to >= len(g.edges) {
		log.Panicf("edge %d -> %d out of range, %d nodes", from, to, len(g.edges))
	}
	if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		log.Panicf("edge %d -> %d has invalid cost %v", from, to, cost)
	}
	g.edges[from] = append(g.edges[from], edge[ET]{to: to, cost: cost, attr: attr})
	g.nEdges++
}

func (g *SearchGraph[NT, ET]) NodeCount() int {
	return len(g.nodes)
}

func (g *SearchGraph[NT, ET]) EdgeCount() int {
	return g.nEdges
}

type PathItem[NT any, ET any] struct {
	NodeAttr NT
	// 由该点出发的边，最后一个点为零值
	EdgeAttr ET
}

// SearchState 搜索状态
// Initialized -> Expanding -> {Found, Exhausted}
type SearchState int

const (
	StateInitialized SearchState = iota
	StateExpanding
	StateFound
	StateExhausted
)

func (s SearchState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateExpanding:
		return "expanding"
	case StateFound:
		return "found"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Search 一次A*搜索的全部状态，不可并发使用
type Search[NT any, ET any] struct {
	g          *SearchGraph[NT, ET]
	start, end int
	state      SearchState

	openSet  PriorityQueue
	items    []*Item   // 节点 -> 其在openSet中的元素，nil表示未发现
	gScore   []float64 // 未发现为mathutil.INF
	closed   []bool
	cameFrom []int // 前驱节点，-1表示无
	viaEdge  []int // 前驱边在g.edges[cameFrom]中的下标
	seq      int

	// 已弹出（定标）的节点数
	Settled int
}

// NewSearch 创建从start到end的搜索
func (g *SearchGraph[NT, ET]) NewSearch(start, end int) *Search[NT, ET] {
	n := len(g.nodes)
	s := &Search[NT, ET]{
		g:        g,
		start:    start,
		end:      end,
		state:    StateInitialized,
		items:    make([]*Item, n),
		gScore:   make([]float64, n),
		closed:   make([]bool, n),
		cameFrom: make([]int, n),
		viaEdge:  make([]int, n),
	}
	for i := range s.gScore {
		s.gScore[i] = mathutil.INF
		s.cameFrom[i] = -1
	}
	return s
}

func (s *Search[NT, ET]) State() SearchState {
	return s.state
}

func (s *Search[NT, ET]) push(v int, priority float64) {
	item := &Item{Value: v, Priority: priority, Seq: s.seq}
	s.seq++
	heap.Push(&s.openSet, item)
	s.items[v] = item
}

// Step 弹出一个节点并松弛其出边，返回新的状态
func (s *Search[NT, ET]) Step() SearchState {
	switch s.state {
	case StateFound, StateExhausted:
		return s.state
	case StateInitialized:
		s.gScore[s.start] = 0
		s.push(s.start, s.g.h.Heuristic(s.g.nodes[s.start].p, s.g.nodes[s.end].p))
		s.state = StateExpanding
	}
	if s.openSet.Len() == 0 {
		s.state = StateExhausted
		return s.state
	}
	cur := heap.Pop(&s.openSet).(*Item).Value
	s.closed[cur] = true
	s.Settled++
	if cur == s.end {
		s.state = StateFound
		return s.state
	}
	endP := s.g.nodes[s.end].p
	for i, e := range s.g.edges[cur] {
		neighbor := e.to
		if s.closed[neighbor] {
			continue
		}
		// 禁止经过的节点，跳过
		if s.g.nodes[neighbor].noOut && neighbor != s.end {
			continue
		}
		gScoreTentative := s.gScore[cur] + e.cost
		// 只有严格更优时才替换前驱
		if gScoreTentative < s.gScore[neighbor] {
			s.cameFrom[neighbor] = cur
			s.viaEdge[neighbor] = i
			s.gScore[neighbor] = gScoreTentative
			fScore := gScoreTentative + s.g.h.Heuristic(s.g.nodes[neighbor].p, endP)
			if item := s.items[neighbor]; item != nil {
				// 已在openSet中，修改其优先级，保留发现顺序
				item.Priority = fScore
				heap.Fix(&s.openSet, item.Index)
			} else {
				s.push(neighbor, fScore)
			}
		}
	}
	if s.openSet.Len() == 0 {
		s.state = StateExhausted
	}
	return s.state
}

// Run 执行搜索直到找到终点、无路可走、超过limit个节点或ctx取消
// limit<=0表示不限制
func (s *Search[NT, ET]) Run(ctx context.Context, limit int) error {
	for {
		switch s.Step() {
		case StateFound:
			return nil
		case StateExhausted:
			return ErrNoPath
		}
		if limit > 0 && s.Settled >= limit {
			return ErrBudgetExceeded
		}
		if s.Settled%CONTEXT_CHECK_INTERVAL == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
}

// Path 返回找到的路径及其代价，未找到时返回nil与mathutil.INF
func (s *Search[NT, ET]) Path() ([]PathItem[NT, ET], float64) {
	if s.state != StateFound {
		return nil, mathutil.INF
	}
	g := s.g
	cur := s.end
	pathBeforeReversed := []PathItem[NT, ET]{{NodeAttr: g.nodes[cur].attr}}
	for s.cameFrom[cur] >= 0 {
		from := s.cameFrom[cur]
		pathBeforeReversed = append(pathBeforeReversed, PathItem[NT, ET]{
			NodeAttr: g.nodes[from].attr,
			EdgeAttr: g.edges[from][s.viaEdge[cur]].attr,
		})
		cur = from
	}
	return lo.Reverse(pathBeforeReversed), s.gScore[s.end]
}

// ShortestPath A Star算法求最短路
func (g *SearchGraph[NT, ET]) ShortestPath(ctx context.Context, start, end int, limit int) ([]PathItem[NT, ET], float64, error) {
	if start == end {
		return []PathItem[NT, ET]{{NodeAttr: g.nodes[start].attr}}, 0, nil
	}
	s := g.NewSearch(start, end)
	if err := s.Run(ctx, limit); err != nil {
		return nil, mathutil.INF, err
	}
	path, cost := s.Path()
	log.Debugf("path found: %d nodes settled, cost %.1f", s.Settled, cost)
	return path, cost, nil
}
