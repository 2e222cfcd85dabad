// Package router 离线瓦片路网路由引擎
//
// 路网按Web Mercator瓦片切分存储在.routingdb文件中。每次请求只加载起终点
// 附近的瓦片组装成子图，找不到路线时逐圈外扩，瓦片通过有界LRU缓存共享。
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.fiblab.net/sim/tilerouting/router/algo"
	"git.fiblab.net/sim/tilerouting/router/tile"
	"git.fiblab.net/sim/tilerouting/router/tilecache"
	"git.fiblab.net/sim/tilerouting/router/tilestore"
	"github.com/puzpuzpuz/xsync/v3"
)

type Router struct {
	opts  Options
	store tilestore.Store
	cache *tilecache.Cache

	// Route持读锁，Close持写锁
	mu     *xsync.RBMutex
	closed bool
}

// Open 打开path处的路网数据库，path为.routingdb文件路径或redis://地址
func Open(path string, opts Options) (*Router, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	store, err := tilestore.Open(context.Background(), path)
	if err != nil {
		return nil, err
	}
	r, err := New(store, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	return r, nil
}

// New 使用已打开的存储创建引擎，引擎关闭时一并关闭store
func New(store tilestore.Store, opts Options) (*Router, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h := store.Header()
	if !h.HasZoom(opts.Zoom) {
		return nil, fmt.Errorf("%w: zoom %d not in database (available %v)", ErrNoTileData, opts.Zoom, h.Zooms)
	}
	cache, err := tilecache.New(store, opts.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	log.Infof("router ready: zoom=%d cache=%d", opts.Zoom, opts.CacheCapacity)
	return &Router{
		opts:  opts,
		store: store,
		cache: cache,
		mu:    xsync.NewRBMutex(),
	}, nil
}

func (r *Router) Options() Options {
	return r.opts
}

func (r *Router) Header() tilestore.Header {
	return r.store.Header()
}

func (r *Router) Stats() tilecache.Stats {
	return r.cache.Stats()
}

// ClearCache 清空瓦片缓存，进行中的请求不受影响
func (r *Router) ClearCache() {
	r.cache.Clear()
}

// Close 等待进行中的请求结束后关闭数据库，重复调用无副作用
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cache.Clear()
	log.Info("router closed")
	return r.store.Close()
}

// Route 计算start到end的路线
func (r *Router) Route(ctx context.Context, start, end Coordinate, profile Profile) (route *Route, err error) {
	t0 := time.Now()
	defer func() {
		routeTotal.WithLabelValues(profile.String(), CodeOf(err).String()).Inc()
		routeLatency.WithLabelValues(profile.String()).Observe(time.Since(t0).Seconds())
	}()
	// panic recover
	defer func() {
		if e := recover(); e != nil {
			route = nil
			err = fmt.Errorf("%w: panic: Route %v with input start=%v, end=%v, profile=%v", ErrInternal, e, start, end, profile)
			log.Errorln(err)
		}
	}()

	token := r.mu.RLock()
	defer r.mu.RUnlock(token)
	if r.closed {
		return nil, fmt.Errorf("%w: router closed", ErrInternal)
	}
	if !profile.Valid() {
		return nil, fmt.Errorf("%w: invalid profile %d", ErrInternal, int(profile))
	}
	if !start.Valid() || !end.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinate start=%v end=%v", ErrNoTileData, start, end)
	}

	rg := newRegion(r.cache)
	defer rg.release()
	route, err = r.route(ctx, rg, start, end, profile)
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil && errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ErrInternal, ctxErr)
	}
	return route, err
}

func (r *Router) route(ctx context.Context, rg *region, start, end Coordinate, profile Profile) (*Route, error) {
	zoom := r.opts.Zoom
	sp, ep := start.Point(), end.Point()
	startKey, endKey := tile.KeyAt(sp, zoom), tile.KeyAt(ep, zoom)

	// 起终点所在瓦片必须存在
	if _, err := rg.fetch(ctx, []tile.Key{startKey, endKey}); err != nil {
		return nil, err
	}
	if !rg.present(startKey) {
		return nil, fmt.Errorf("%w: start %v in tile %v", ErrNoTileData, start, startKey)
	}
	if !rg.present(endKey) {
		return nil, fmt.Errorf("%w: end %v in tile %v", ErrNoTileData, end, endKey)
	}
	if start == end {
		return singlePointRoute(start), nil
	}

	b := regionBound(sp, ep)
	lastCount := 0
	for ring := r.opts.InitialRing; ring <= r.opts.InitialRing+r.opts.MaxExpansions; ring++ {
		count := tile.CoverCount(b, zoom, ring)
		if count > r.opts.MaxRegionTiles {
			return nil, errRegionTooLarge(count, r.opts.MaxRegionTiles)
		}
		if count == lastCount {
			// 已覆盖到世界边缘，外扩不会带来新瓦片
			break
		}
		lastCount = count
		if _, err := rg.fetch(ctx, tile.Cover(b, zoom, ring)); err != nil {
			return nil, err
		}
		expansions.Observe(float64(ring - r.opts.InitialRing))

		n := rg.assemble(profile)
		s, ok := n.nearest(sp, r.opts.SnapRadius)
		if !ok {
			log.Debugf("ring %d: no %v road within %.0fm of start %v", ring, profile, r.opts.SnapRadius, start)
			continue
		}
		t, ok := n.nearest(ep, r.opts.SnapRadius)
		if !ok {
			log.Debugf("ring %d: no %v road within %.0fm of end %v", ring, profile, r.opts.SnapRadius, end)
			continue
		}
		startNode, endNode := n.attach(s, t)
		path, cost, err := n.g.ShortestPath(ctx, startNode, endNode, r.opts.SearchLimit)
		switch {
		case err == nil:
			log.Debugf("ring %d: route found over %d tiles, %d nodes, %d arcs", ring, count, n.g.NodeCount(), n.g.EdgeCount())
			return buildRoute(path, cost), nil
		case errors.Is(err, algo.ErrNoPath):
			log.Debugf("ring %d: no path over %d tiles, expanding", ring, count)
		case errors.Is(err, algo.ErrBudgetExceeded):
			return nil, fmt.Errorf("%w: %v", ErrNoRoute, err)
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: from %v to %v by %v", ErrNoRoute, start, end, profile)
}
