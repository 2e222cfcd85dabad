package tilestore

import (
	"context"
	"fmt"
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"time"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

const (
	// 数据库格式标识与版本
	FormatName    = "routingdb"
	FormatVersion = 1

	// meta表中的键
	metaFormat    = "format"
	metaVersion   = "version"
	metaZooms     = "zooms"
	metaBounds    = "bounds"
	metaNodes     = "node_count"
	metaEdges     = "edge_count"
	metaCreatedAt = "created_at"
)

// Store 瓦片存储，只负责读取与解码，不做缓存
// 实现必须支持并发读取
type Store interface {
	Header() Header
	// LoadTile 读取单个瓦片，失败时返回tile.ErrNoTileData或tile.ErrDataCorrupted
	LoadTile(ctx context.Context, key tile.Key) (*tile.Tile, error)
	Close() error
}

// Open 根据路径打开存储：redis://或rediss://为Redis镜像，其余为SQLite文件
func Open(ctx context.Context, path string) (Store, error) {
	if isRedisURL(path) {
		return OpenRedis(ctx, path)
	}
	return OpenSQLite(ctx, path)
}

func isRedisURL(path string) bool {
	return strings.HasPrefix(path, "redis://") || strings.HasPrefix(path, "rediss://")
}

// Header 数据库头信息
type Header struct {
	Format    string
	Version   int
	Zooms     []int
	Bound     orb.Bound
	NodeCount int
	EdgeCount int
	CreatedAt time.Time
}

func (h Header) HasZoom(zoom int) bool {
	return lo.Contains(h.Zooms, zoom)
}

func (h Header) toMeta() map[string]string {
	return map[string]string{
		metaFormat:  h.Format,
		metaVersion: strconv.Itoa(h.Version),
		metaZooms: strings.Join(lo.Map(h.Zooms, func(z int, _ int) string {
			return strconv.Itoa(z)
		}), ","),
		metaBounds: fmt.Sprintf("%.7f,%.7f,%.7f,%.7f",
			h.Bound.Min.Lon(), h.Bound.Min.Lat(), h.Bound.Max.Lon(), h.Bound.Max.Lat()),
		metaNodes:     strconv.Itoa(h.NodeCount),
		metaEdges:     strconv.Itoa(h.EdgeCount),
		metaCreatedAt: h.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func parseHeader(meta map[string]string) (Header, error) {
	var h Header
	h.Format = meta[metaFormat]
	if h.Format != FormatName {
		return h, fmt.Errorf("%w: unknown format marker %q", tile.ErrDataCorrupted, h.Format)
	}
	v, err := strconv.Atoi(meta[metaVersion])
	if err != nil || v != FormatVersion {
		return h, fmt.Errorf("%w: unsupported version %q", tile.ErrDataCorrupted, meta[metaVersion])
	}
	h.Version = v
	for _, s := range strings.Split(meta[metaZooms], ",") {
		z, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || z < 0 || z > tile.MaxZoom {
			return h, fmt.Errorf("%w: invalid zoom list %q", tile.ErrDataCorrupted, meta[metaZooms])
		}
		h.Zooms = append(h.Zooms, z)
	}
	sort.Ints(h.Zooms)
	bounds := strings.Split(meta[metaBounds], ",")
	if len(bounds) != 4 {
		return h, fmt.Errorf("%w: invalid bounds %q", tile.ErrDataCorrupted, meta[metaBounds])
	}
	var b [4]float64
	for i, s := range bounds {
		if b[i], err = strconv.ParseFloat(s, 64); err != nil {
			return h, fmt.Errorf("%w: invalid bounds %q", tile.ErrDataCorrupted, meta[metaBounds])
		}
	}
	h.Bound = orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
	// 统计信息缺失不影响使用
	h.NodeCount, _ = strconv.Atoi(meta[metaNodes])
	h.EdgeCount, _ = strconv.Atoi(meta[metaEdges])
	h.CreatedAt, _ = time.Parse(time.RFC3339, meta[metaCreatedAt])
	return h, nil
}

func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// decodeTile 校验checksum后解码
func decodeTile(key tile.Key, data []byte, sum uint32) (*tile.Tile, error) {
	if got := checksum(data); got != sum {
		return nil, fmt.Errorf("%w: tile %v checksum mismatch (stored %08x, actual %08x)",
			tile.ErrDataCorrupted, key, sum, got)
	}
	return tile.Decode(key, data)
}

func checkKey(h Header, key tile.Key) error {
	if !key.Valid() || !h.HasZoom(int(key.Zoom)) {
		return fmt.Errorf("%w: tile %v not in database", tile.ErrNoTileData, key)
	}
	return nil
}
