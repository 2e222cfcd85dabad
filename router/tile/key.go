package tile

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/samber/lo"
)

// 支持的最大缩放级别
const MaxZoom = 22

// Key 瓦片编号，Web Mercator XYZ规则，Y轴向南增长
type Key struct {
	Zoom uint32
	X, Y uint32
}

// KeyAt 返回经纬度点p在zoom级别下所在的瓦片
func KeyAt(p orb.Point, zoom int) Key {
	t := maptile.At(p, maptile.Zoom(zoom))
	// 经度180°会落到2^z，收回到最后一列
	maxIndex := uint32(1)<<uint32(zoom) - 1
	return Key{
		Zoom: uint32(zoom),
		X:    min(t.X, maxIndex),
		Y:    min(t.Y, maxIndex),
	}
}

func (k Key) Tile() maptile.Tile {
	return maptile.New(k.X, k.Y, maptile.Zoom(k.Zoom))
}

// Bound 瓦片的经纬度范围
func (k Key) Bound() orb.Bound {
	return k.Tile().Bound()
}

func (k Key) Valid() bool {
	if k.Zoom > MaxZoom {
		return false
	}
	n := uint32(1) << k.Zoom
	return k.X < n && k.Y < n
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Zoom, k.X, k.Y)
}

// coverRange 计算覆盖b并外扩ring圈后的瓦片下标范围（闭区间）
func coverRange(b orb.Bound, zoom int, ring int) (x0, y0, x1, y1 int64) {
	nw := KeyAt(orb.Point{b.Min.Lon(), b.Max.Lat()}, zoom)
	se := KeyAt(orb.Point{b.Max.Lon(), b.Min.Lat()}, zoom)
	maxIndex := int64(1)<<zoom - 1
	r := int64(ring)
	x0 = lo.Clamp(int64(nw.X)-r, 0, maxIndex)
	y0 = lo.Clamp(int64(nw.Y)-r, 0, maxIndex)
	x1 = lo.Clamp(int64(se.X)+r, 0, maxIndex)
	y1 = lo.Clamp(int64(se.Y)+r, 0, maxIndex)
	return
}

// CoverCount 返回Cover结果的长度，不分配内存
func CoverCount(b orb.Bound, zoom int, ring int) int {
	x0, y0, x1, y1 := coverRange(b, zoom, ring)
	return int((x1 - x0 + 1) * (y1 - y0 + 1))
}

// Cover 返回覆盖b的所有瓦片，并向外扩展ring圈
// 结果按(Y, X)升序，保证组图顺序稳定
func Cover(b orb.Bound, zoom int, ring int) []Key {
	x0, y0, x1, y1 := coverRange(b, zoom, ring)
	keys := make([]Key, 0, (x1-x0+1)*(y1-y0+1))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			keys = append(keys, Key{Zoom: uint32(zoom), X: uint32(x), Y: uint32(y)})
		}
	}
	return keys
}

// CoverLine 返回折线经过的所有瓦片，结果按(Y, X)升序
func CoverLine(line orb.LineString, zoom int) []Key {
	set := make(map[Key]struct{})
	for i, p := range line {
		set[KeyAt(p, zoom)] = struct{}{}
		if i == 0 {
			continue
		}
		a := line[i-1]
		for _, k := range Cover(orb.MultiPoint{a, p}.Bound(), zoom, 0) {
			if _, ok := set[k]; ok {
				continue
			}
			if segmentHits(a, p, k.Bound()) {
				set[k] = struct{}{}
			}
		}
	}
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.X, b.X)
	})
	return keys
}

// segmentHits 判断线段ab与范围b是否相交（Liang-Barsky裁剪）
func segmentHits(a, b orb.Point, bound orb.Bound) bool {
	t0, t1 := 0.0, 1.0
	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			t0 = max(t0, r)
		} else {
			if r < t0 {
				return false
			}
			t1 = min(t1, r)
		}
		return true
	}
	dx, dy := b[0]-a[0], b[1]-a[1]
	return clip(-dx, a[0]-bound.Min[0]) &&
		clip(dx, bound.Max[0]-a[0]) &&
		clip(-dy, a[1]-bound.Min[1]) &&
		clip(dy, bound.Max[1]-a[1])
}
