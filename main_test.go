package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"git.fiblab.net/sim/tilerouting/router"
	"git.fiblab.net/sim/tilerouting/router/networktest"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coord(p orb.Point) router.Coordinate {
	return router.Coordinate{Latitude: p.Lat(), Longitude: p.Lon()}
}

func newTestServer(t testing.TB) (*RoutingServer, *networktest.Detour) {
	d := networktest.NewDetour()
	opts := router.DefaultOptions()
	opts.CacheCapacity = 4
	server, err := NewRoutingServer(networktest.WriteSQLite(t, d.Network()), opts)
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return server, d
}

func FuzzRouter(f *testing.F) {
	server, d := newTestServer(f)
	p, q := d.Point(d.P), d.Point(d.Q)
	f.Add(true, p.Lat(), p.Lon(), q.Lat(), q.Lon())
	f.Add(false, q.Lat(), q.Lon(), p.Lat(), p.Lon())
	f.Add(true, 0.0, 0.0, q.Lat(), q.Lon())
	f.Add(false, 91.0, 0.0, 0.0, 181.0)

	// 构造随机请求
	f.Fuzz(func(t *testing.T, driving bool, startLat, startLon, endLat, endLon float64) {
		req := &RouteRequest{
			Start:   router.Coordinate{Latitude: startLat, Longitude: startLon},
			End:     router.Coordinate{Latitude: endLat, Longitude: endLon},
			Profile: "foot",
		}
		if driving {
			req.Profile = "car"
		}
		res, err := server.GetRoute(context.Background(), req)
		// 有且只有一个是nil
		assert.True(t, (res == nil) != (err == nil))
	})
}

func postRoute(t *testing.T, h http.Handler, req any) (int, []byte) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/route", bytes.NewReader(body)))
	return w.Code, w.Body.Bytes()
}

func TestRouteHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server, d := newTestServer(t)
	h := server.Handler(nil)

	code, body := postRoute(t, h, RouteRequest{
		Start: coord(d.Point(d.P)), End: coord(d.Point(d.Q)), Profile: "car",
	})
	require.Equal(t, http.StatusOK, code, string(body))
	var res struct {
		Coordinates  []router.Coordinate `json:"coordinates"`
		Distance     float64             `json:"distance"`
		Duration     float64             `json:"duration"`
		AverageSpeed float64             `json:"average_speed"`
		BBox         *BoundingBox        `json:"bbox"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.InDelta(t, 500, res.Distance, 5)
	assert.Greater(t, res.Duration, 0.0)
	assert.Greater(t, res.AverageSpeed, 0.0)
	assert.GreaterOrEqual(t, len(res.Coordinates), 2)
	require.NotNil(t, res.BBox)
	assert.LessOrEqual(t, res.BBox.Southwest.Longitude, res.BBox.Northeast.Longitude)

	cases := []struct {
		name   string
		req    any
		status int
		code   router.Code
	}{
		{"no route", RouteRequest{Start: coord(d.Point(d.U)), End: coord(d.Point(d.T)), Profile: "car"}, http.StatusNotFound, router.CodeNoRoute},
		{"no tile data", RouteRequest{Start: router.Coordinate{}, End: coord(d.Point(d.T)), Profile: "car"}, http.StatusUnprocessableEntity, router.CodeNoTileData},
		{"bad profile", RouteRequest{Start: coord(d.Point(d.P)), End: coord(d.Point(d.Q)), Profile: "boat"}, http.StatusBadRequest, router.CodeInternal},
		{"bad coordinate", RouteRequest{Start: router.Coordinate{Latitude: 95}, End: coord(d.Point(d.Q)), Profile: "car"}, http.StatusBadRequest, router.CodeInternal},
		{"bad body", "not an object", http.StatusBadRequest, router.CodeInternal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			status, body := postRoute(t, h, c.req)
			assert.Equal(t, c.status, status, string(body))
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, c.code, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestStatsAndClear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server, d := newTestServer(t)
	h := server.Handler([]string{"http://localhost:3000"})

	code, _ := postRoute(t, h, RouteRequest{
		Start: coord(d.Point(d.P)), End: coord(d.Point(d.Q)), Profile: "foot",
	})
	require.Equal(t, http.StatusOK, code)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, router.DEFAULT_ZOOM, stats.Zoom)
	assert.Equal(t, []int{14}, stats.Zooms)
	assert.Equal(t, 6, stats.Nodes)
	assert.Equal(t, 6, stats.Edges)
	assert.Greater(t, stats.Cache.Resident, 0)
	assert.False(t, stats.Suspended)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/cache/clear", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, server.Stats().Cache.Resident)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDebugHandler(t *testing.T) {
	server, d := newTestServer(t)
	_, err := server.GetRoute(context.Background(), &RouteRequest{
		Start: coord(d.Point(d.P)), End: coord(d.Point(d.Q)), Profile: "car",
	})
	require.NoError(t, err)
	h := debugHandler(server)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tilerouting_route_total{profile="car",result="ok"}`)
	assert.Contains(t, w.Body.String(), "tilerouting_route_seconds")

	w = get("/debug/tiles")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 6, stats.Nodes)
	assert.Greater(t, stats.Cache.Resident, 0)

	assert.Equal(t, http.StatusOK, get("/debug/pprof/").Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debug/tiles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSuspendResume(t *testing.T) {
	server, d := newTestServer(t)
	server.Suspend()
	assert.True(t, server.Stats().Suspended)

	done := make(chan error, 1)
	go func() {
		_, err := server.GetRoute(context.Background(), &RouteRequest{
			Start: coord(d.Point(d.P)), End: coord(d.Point(d.Q)), Profile: "car",
		})
		done <- err
	}()
	select {
	case <-done:
		t.Fatal("request should wait while suspended")
	default:
	}
	server.Resume()
	assert.NoError(t, <-done)
}

func TestNewRoutingServerMissingDB(t *testing.T) {
	_, err := NewRoutingServer(t.TempDir()+"/missing.routingdb", router.DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, router.CodeDatabaseNotFound, router.CodeOf(err))
}
