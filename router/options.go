package router

import (
	"fmt"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"git.fiblab.net/sim/tilerouting/router/tilecache"
)

const (
	DEFAULT_ZOOM           = 14
	DEFAULT_INITIAL_RING   = 1
	DEFAULT_MAX_EXPANSIONS = 2
	// 起终点吸附到道路的最大距离（米）
	DEFAULT_SNAP_RADIUS      = 500
	DEFAULT_MAX_REGION_TILES = 1024
	DEFAULT_SEARCH_LIMIT     = 1_000_000
)

// Options 路由引擎配置，打开后不可修改
type Options struct {
	// 瓦片缩放级别，必须存在于数据库中
	Zoom int
	// 瓦片缓存容量
	CacheCapacity int
	// 首次组图时在起终点包围盒外扩的瓦片圈数
	InitialRing int
	// 找不到路线时最多再外扩几次，每次一圈
	MaxExpansions int
	SnapRadius    float64
	// 单次组图的瓦片数上限，超过时返回ErrNoRoute
	MaxRegionTiles int
	// A*最多定标的节点数
	SearchLimit int
}

func DefaultOptions() Options {
	return Options{
		Zoom:           DEFAULT_ZOOM,
		CacheCapacity:  tilecache.DefaultCapacity,
		InitialRing:    DEFAULT_INITIAL_RING,
		MaxExpansions:  DEFAULT_MAX_EXPANSIONS,
		SnapRadius:     DEFAULT_SNAP_RADIUS,
		MaxRegionTiles: DEFAULT_MAX_REGION_TILES,
		SearchLimit:    DEFAULT_SEARCH_LIMIT,
	}
}

func (o Options) Validate() error {
	if o.Zoom < 0 || o.Zoom > tile.MaxZoom {
		return fmt.Errorf("%w: zoom %d out of range [0, %d]", ErrInternal, o.Zoom, tile.MaxZoom)
	}
	if o.CacheCapacity <= 0 {
		return fmt.Errorf("%w: cache capacity must be positive, got %d", ErrInternal, o.CacheCapacity)
	}
	if o.InitialRing < 0 || o.MaxExpansions < 0 {
		return fmt.Errorf("%w: ring settings must not be negative", ErrInternal)
	}
	if o.SnapRadius <= 0 {
		return fmt.Errorf("%w: snap radius must be positive, got %v", ErrInternal, o.SnapRadius)
	}
	if o.MaxRegionTiles <= 0 || o.SearchLimit <= 0 {
		return fmt.Errorf("%w: region and search limits must be positive", ErrInternal)
	}
	return nil
}
