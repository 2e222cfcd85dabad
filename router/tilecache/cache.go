// Package tilecache 有界LRU瓦片缓存
//
// 同一瓦片的并发未命中只触发一次加载；Get返回带引用计数的Handle，
// 瓦片被淘汰后已发出的Handle仍然有效（解码后的瓦片只读）
package tilecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

const DefaultCapacity = 128

// Loader 瓦片来源，一般为tilestore.Store
type Loader interface {
	LoadTile(ctx context.Context, key tile.Key) (*tile.Tile, error)
}

// entry 缓存项，tile为nil表示数据库中不存在该瓦片
type entry struct {
	tile *tile.Tile
}

type Cache struct {
	loader   Loader
	capacity int

	mu    sync.Mutex
	lru   *simplelru.LRU[tile.Key, *entry]
	group singleflight.Group

	hits      *xsync.Counter
	misses    *xsync.Counter
	loads     *xsync.Counter
	evictions *xsync.Counter
	pinned    *xsync.Counter
}

// New 创建容量为capacity的缓存，capacity必须为正
func New(loader Loader, capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid cache capacity %d", capacity)
	}
	c := &Cache{
		loader:    loader,
		capacity:  capacity,
		hits:      xsync.NewCounter(),
		misses:    xsync.NewCounter(),
		loads:     xsync.NewCounter(),
		evictions: xsync.NewCounter(),
		pinned:    xsync.NewCounter(),
	}
	lru, err := simplelru.NewLRU[tile.Key, *entry](capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// onEvict 在持有c.mu时被调用
func (c *Cache) onEvict(key tile.Key, _ *entry) {
	c.evictions.Inc()
	cacheEvictions.Inc()
	cacheResident.Dec()
	log.Debugf("evict tile %v", key)
}

// Handle 对缓存瓦片的引用，使用完毕后必须Release
type Handle struct {
	tile     *tile.Tile
	cache    *Cache
	released atomic.Bool
}

func (h *Handle) Tile() *tile.Tile {
	return h.tile
}

// Release 释放引用，重复调用无副作用
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.cache.pinned.Dec()
	}
}

func (c *Cache) newHandle(e *entry, key tile.Key) (*Handle, error) {
	if e.tile == nil {
		return nil, fmt.Errorf("%w: tile %v not in database", tile.ErrNoTileData, key)
	}
	c.pinned.Inc()
	return &Handle{tile: e.tile, cache: c}, nil
}

// Get 获取瓦片，未命中时从Loader加载
// 数据库中不存在的瓦片返回tile.ErrNoTileData，且该结果会被缓存；
// 加载失败（如数据损坏）不缓存
func (c *Cache) Get(ctx context.Context, key tile.Key) (*Handle, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		c.hits.Inc()
		cacheHits.Inc()
		return c.newHandle(e, key)
	}
	c.mu.Unlock()
	c.misses.Inc()
	cacheMisses.Inc()

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// 等待期间可能已被其他调用加载
		c.mu.Lock()
		if e, ok := c.lru.Peek(key); ok {
			c.mu.Unlock()
			return e, nil
		}
		c.mu.Unlock()

		// 加载结果由多个调用共享，不受单个调用取消的影响
		t, err := c.loader.LoadTile(context.WithoutCancel(ctx), key)
		c.loads.Inc()
		cacheLoads.Inc()
		e := &entry{tile: t}
		if err != nil {
			if !errors.Is(err, tile.ErrNoTileData) {
				return nil, err
			}
			e.tile = nil
		}
		c.mu.Lock()
		if !c.lru.Contains(key) {
			cacheResident.Inc()
		}
		c.lru.Add(key, e)
		c.mu.Unlock()
		log.Debugf("loaded tile %v (present=%v)", key, e.tile != nil)
		return e, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return c.newHandle(res.Val.(*entry), key)
	}
}

// Keys 当前缓存的瓦片，按最近使用时间从旧到新
func (c *Cache) Keys() []tile.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Capacity() int {
	return c.capacity
}

// Clear 清空缓存，已发出的Handle不受影响
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	c.lru.Purge()
	log.Infof("cleared %d tiles", n)
}

type Stats struct {
	Capacity  int   `json:"capacity"`
	Resident  int   `json:"resident"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Loads     int64 `json:"loads"`
	Evictions int64 `json:"evictions"`
	Pinned    int64 `json:"pinned"`
}

func (c *Cache) Stats() Stats {
	return Stats{
		Capacity:  c.capacity,
		Resident:  c.Len(),
		Hits:      c.hits.Value(),
		Misses:    c.misses.Value(),
		Loads:     c.loads.Value(),
		Evictions: c.evictions.Value(),
		Pinned:    c.pinned.Value(),
	}
}
