package tilestore_test

import (
	"context"
	"database/sql"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/tilerouting/router/networktest"
	"git.fiblab.net/sim/tilerouting/router/tile"
	"git.fiblab.net/sim/tilerouting/router/tilestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	d := networktest.NewDetour()
	path := networktest.WriteSQLite(t, d.Network(), 14, 16)

	s, err := tilestore.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	h := s.Header()
	assert.Equal(t, tilestore.FormatName, h.Format)
	assert.Equal(t, []int{14, 16}, h.Zooms)
	assert.Equal(t, 6, h.NodeCount)
	assert.Equal(t, 6, h.EdgeCount)
	assert.True(t, h.Bound.Contains(networktest.At(250, 0)))

	key := tile.KeyAt(d.Point(d.P), 14)
	tl, err := s.LoadTile(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, tl.Key)
	_, ok := tl.Node(d.P)
	assert.True(t, ok)
	for _, e := range tl.Edges {
		// 道路两端节点都在瓦片中
		_, ok := tl.Node(e.From)
		assert.True(t, ok)
		_, ok = tl.Node(e.To)
		assert.True(t, ok)
		assert.Greater(t, e.Length, 0.0)
		assert.GreaterOrEqual(t, len(e.Line), 2)
	}

	t.Run("absent tile", func(t *testing.T) {
		_, err := s.LoadTile(ctx, tile.Key{Zoom: 14, X: 0, Y: 0})
		assert.ErrorIs(t, err, tile.ErrNoTileData)
	})

	t.Run("zoom not in database", func(t *testing.T) {
		_, err := s.LoadTile(ctx, tile.KeyAt(d.Point(d.P), 15))
		assert.ErrorIs(t, err, tile.ErrNoTileData)
	})
}

func TestSQLiteOpenErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := tilestore.OpenSQLite(ctx, filepath.Join(dir, "missing.routingdb"))
		assert.ErrorIs(t, err, tile.ErrDatabaseNotFound)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := tilestore.OpenSQLite(ctx, dir)
		assert.ErrorIs(t, err, tile.ErrDatabaseNotFound)
	})

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.routingdb")
		require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite file at all, just some text"), 0o644))
		_, err := tilestore.OpenSQLite(ctx, path)
		assert.ErrorIs(t, err, tile.ErrDataCorrupted)
	})

	t.Run("wrong format marker", func(t *testing.T) {
		path := networktest.WriteSQLite(t, networktest.NewDetour().Network())
		exec(t, path, "UPDATE meta SET value = 'other' WHERE key = 'format'")
		_, err := tilestore.OpenSQLite(ctx, path)
		assert.ErrorIs(t, err, tile.ErrDataCorrupted)
	})

	t.Run("existing file is not overwritten", func(t *testing.T) {
		path := networktest.WriteSQLite(t, networktest.NewDetour().Network())
		_, err := tilestore.WriteSQLite(ctx, path, networktest.NewDetour().Network(), []int{14})
		assert.Error(t, err)
	})
}

func TestSQLiteCorruptedTile(t *testing.T) {
	ctx := context.Background()
	d := networktest.NewDetour()
	key := tile.KeyAt(d.Point(d.P), 14)

	t.Run("checksum mismatch", func(t *testing.T) {
		path := networktest.WriteSQLite(t, d.Network())
		exec(t, path, "UPDATE tiles SET checksum = checksum + 1")
		s, err := tilestore.OpenSQLite(ctx, path)
		require.NoError(t, err)
		defer s.Close()
		_, err = s.LoadTile(ctx, key)
		assert.ErrorIs(t, err, tile.ErrDataCorrupted)
	})

	t.Run("malformed bytes", func(t *testing.T) {
		path := networktest.WriteSQLite(t, d.Network())
		garbage := []byte{0xff, 0xff, 0xff, 0xff}
		exec(t, path, "UPDATE tiles SET data = ?, checksum = ?", garbage, int64(crc32.ChecksumIEEE(garbage)))
		s, err := tilestore.OpenSQLite(ctx, path)
		require.NoError(t, err)
		defer s.Close()
		_, err = s.LoadTile(ctx, key)
		assert.ErrorIs(t, err, tile.ErrDataCorrupted)
	})
}

func exec(t *testing.T, path string, query string, args ...any) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(query, args...)
	require.NoError(t, err)
}
