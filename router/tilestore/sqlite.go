package tilestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"git.fiblab.net/sim/tilerouting/router/tile"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- 每个瓦片一行，按(zoom, x, y)主键直接定位，无需全文件解析
CREATE TABLE IF NOT EXISTS tiles (
	zoom INTEGER NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	checksum INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (zoom, x, y)
) WITHOUT ROWID;
`

// SQLiteStore .routingdb文件，只读打开
type SQLiteStore struct {
	db     *sql.DB
	path   string
	header Header
	stmt   *sql.Stmt
}

// OpenSQLite 只读打开.routingdb文件并校验文件头
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrDatabaseNotFound, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", tile.ErrDatabaseNotFound, path)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrDatabaseNotFound, err)
	}
	s := &SQLiteStore{db: db, path: path}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("opened %s: zooms=%v nodes=%d edges=%d", path, s.header.Zooms, s.header.NodeCount, s.header.EdgeCount)
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		// 非SQLite文件或缺少meta表
		return fmt.Errorf("%w: read header: %v", tile.ErrDataCorrupted, err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("%w: read header: %v", tile.ErrDataCorrupted, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: read header: %v", tile.ErrDataCorrupted, err)
	}
	if s.header, err = parseHeader(meta); err != nil {
		return err
	}
	s.stmt, err = s.db.PrepareContext(ctx, "SELECT checksum, data FROM tiles WHERE zoom = ? AND x = ? AND y = ?")
	if err != nil {
		return fmt.Errorf("%w: prepare tile query: %v", tile.ErrDataCorrupted, err)
	}
	return nil
}

func (s *SQLiteStore) Header() Header {
	return s.header
}

func (s *SQLiteStore) LoadTile(ctx context.Context, key tile.Key) (*tile.Tile, error) {
	if err := checkKey(s.header, key); err != nil {
		return nil, err
	}
	var sum int64
	var data []byte
	err := s.stmt.QueryRowContext(ctx, key.Zoom, key.X, key.Y).Scan(&sum, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tile %v not in database", tile.ErrNoTileData, key)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: tile %v: %v", tile.ErrDataCorrupted, key, err)
	}
	return decodeTile(key, data, uint32(sum))
}

func (s *SQLiteStore) Close() error {
	if s.stmt != nil {
		s.stmt.Close()
	}
	return s.db.Close()
}

// writeSQLite 写入新的.routingdb文件，文件已存在时报错
func writeSQLite(ctx context.Context, path string, header Header, tiles []*tile.Tile) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite db: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	insertTile, err := tx.PrepareContext(ctx, "INSERT INTO tiles (zoom, x, y, checksum, data) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer insertTile.Close()
	for _, t := range tiles {
		data := tile.Encode(t)
		if _, err := insertTile.ExecContext(ctx, t.Key.Zoom, t.Key.X, t.Key.Y, int64(checksum(data)), data); err != nil {
			return fmt.Errorf("failed to insert tile %v: %w", t.Key, err)
		}
	}
	for k, v := range header.toMeta() {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to insert meta %s: %w", k, err)
		}
	}
	return tx.Commit()
}
