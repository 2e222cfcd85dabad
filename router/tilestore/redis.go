package tilestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"git.fiblab.net/sim/tilerouting/router/tile"
	"github.com/redis/go-redis/v9"
)

// 默认键前缀，可通过URL参数prefix修改，如redis://host:6379/0?prefix=city
const DefaultRedisPrefix = "tilerouting"

// RedisStore 共享的Redis瓦片镜像，数据与.routingdb文件一致
// 键格式：{prefix}:meta (hash)，{prefix}:tile:{z}:{x}:{y} (crc32大端4字节 + 瓦片数据)
type RedisStore struct {
	client *redis.Client
	prefix string
	header Header
	owned  bool
}

// ParseRedisURL 解析redis://地址，返回连接参数与键前缀
func ParseRedisURL(rawURL string) (*redis.Options, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", err
	}
	q := u.Query()
	prefix := q.Get("prefix")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	// go-redis不认识prefix参数
	q.Del("prefix")
	u.RawQuery = q.Encode()
	opt, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, "", err
	}
	return opt, prefix, nil
}

// OpenRedis 根据URL连接Redis并读取头信息
func OpenRedis(ctx context.Context, rawURL string) (*RedisStore, error) {
	opt, prefix, err := ParseRedisURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrDatabaseNotFound, err)
	}
	client := redis.NewClient(opt)
	s, err := NewRedisStore(ctx, client, prefix)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewRedisStore 使用已有的client，Close时不关闭client
func NewRedisStore(ctx context.Context, client *redis.Client, prefix string) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrDatabaseNotFound, err)
	}
	meta, err := client.HGetAll(ctx, metaKey(prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrDatabaseNotFound, err)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("%w: no routing database under prefix %q", tile.ErrDatabaseNotFound, prefix)
	}
	header, err := parseHeader(meta)
	if err != nil {
		return nil, err
	}
	log.Infof("opened redis prefix %s: zooms=%v nodes=%d edges=%d", prefix, header.Zooms, header.NodeCount, header.EdgeCount)
	return &RedisStore{client: client, prefix: prefix, header: header}, nil
}

func metaKey(prefix string) string {
	return prefix + ":meta"
}

func tileKey(prefix string, key tile.Key) string {
	return fmt.Sprintf("%s:tile:%d:%d:%d", prefix, key.Zoom, key.X, key.Y)
}

// tilePattern 匹配前缀下所有瓦片键的SCAN模式，前缀中的通配符需转义
func tilePattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString(":tile:*")
	return b.String()
}

func (s *RedisStore) Header() Header {
	return s.header
}

func (s *RedisStore) LoadTile(ctx context.Context, key tile.Key) (*tile.Tile, error) {
	if err := checkKey(s.header, key); err != nil {
		return nil, err
	}
	b, err := s.client.Get(ctx, tileKey(s.prefix, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: tile %v not in database", tile.ErrNoTileData, key)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to GET tile %v: %w", key, err)
	}
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: tile %v record too short (%d bytes)", tile.ErrDataCorrupted, key, len(b))
	}
	return decodeTile(key, b[4:], binary.BigEndian.Uint32(b[:4]))
}

// deleteStaleTiles 删除前缀下不在keep中的瓦片键
func deleteStaleTiles(ctx context.Context, client *redis.Client, prefix string, keep map[string]struct{}) error {
	const batch = 256
	var stale []string
	iter := client.Scan(ctx, 0, tilePattern(prefix), batch).Iterator()
	for iter.Next(ctx) {
		if _, ok := keep[iter.Val()]; !ok {
			stale = append(stale, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan old tiles: %w", err)
	}
	for start := 0; start < len(stale); start += batch {
		end := min(start+batch, len(stale))
		if err := client.Del(ctx, stale[start:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete old tiles: %w", err)
		}
	}
	if len(stale) > 0 {
		log.Infof("deleted %d stale tiles under redis prefix %s", len(stale), prefix)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// writeRedis 写入瓦片，meta最后写入，读者看不到写了一半的数据库
// 同前缀下旧数据中不再存在的瓦片会被删除
func writeRedis(ctx context.Context, client *redis.Client, prefix string, header Header, tiles []*tile.Tile) error {
	const batch = 256
	if err := client.Del(ctx, metaKey(prefix)).Err(); err != nil {
		return fmt.Errorf("failed to delete old meta: %w", err)
	}
	keep := make(map[string]struct{}, len(tiles))
	for _, t := range tiles {
		keep[tileKey(prefix, t.Key)] = struct{}{}
	}
	if err := deleteStaleTiles(ctx, client, prefix, keep); err != nil {
		return err
	}
	for start := 0; start < len(tiles); start += batch {
		end := min(start+batch, len(tiles))
		_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, t := range tiles[start:end] {
				data := tile.Encode(t)
				record := make([]byte, 4+len(data))
				binary.BigEndian.PutUint32(record, checksum(data))
				copy(record[4:], data)
				pipe.Set(ctx, tileKey(prefix, t.Key), record, 0)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write tiles: %w", err)
		}
	}
	meta := make(map[string]any)
	for k, v := range header.toMeta() {
		meta[k] = v
	}
	if err := client.HSet(ctx, metaKey(prefix), meta).Err(); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}
	return nil
}
