package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"git.fiblab.net/sim/tilerouting/router"
	"git.fiblab.net/sim/tilerouting/router/tilecache"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouteRequest struct {
	Start   router.Coordinate `json:"start"`
	End     router.Coordinate `json:"end"`
	Profile string            `json:"profile"`
}

type BoundingBox struct {
	Southwest router.Coordinate `json:"southwest"`
	Northeast router.Coordinate `json:"northeast"`
}

type RouteResponse struct {
	*router.Route
	// km/h
	AverageSpeed float64      `json:"average_speed"`
	BBox         *BoundingBox `json:"bbox,omitempty"`
}

type ErrorResponse struct {
	Code    router.Code `json:"code"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
}

type StatsResponse struct {
	Cache     tilecache.Stats `json:"cache"`
	Zoom      int             `json:"zoom"`
	Zooms     []int           `json:"zooms"`
	Bounds    [4]float64      `json:"bounds"`
	Nodes     int             `json:"nodes"`
	Edges     int             `json:"edges"`
	BuiltAt   time.Time       `json:"built_at"`
	Suspended bool            `json:"suspended"`
}

// errInvalidRequest 请求参数错误
var errInvalidRequest = errors.New("invalid request")

func CheckCoordinate(c router.Coordinate) error {
	if !c.Valid() {
		return fmt.Errorf("%w: coordinate out of range: %v", errInvalidRequest, c)
	}
	return nil
}

type RoutingServer struct {
	router *router.Router

	// 接口开启true或关闭false
	ok bool
	// 条件变量
	cond *sync.Cond
}

func NewRoutingServer(dbPath string, opts router.Options) (*RoutingServer, error) {
	r, err := router.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dbPath, err)
	}
	return &RoutingServer{
		router: r,
		ok:     true, cond: sync.NewCond(&sync.Mutex{})}, nil
}

func (s *RoutingServer) GetRoute(ctx context.Context, in *RouteRequest) (*RouteResponse, error) {
	// 暂停-恢复机制
	s.cond.L.Lock()
	for !s.ok {
		// 暂停中
		s.cond.Wait()
	}
	s.cond.L.Unlock()
	// 检查数据格式
	if err := CheckCoordinate(in.Start); err != nil {
		return nil, err
	}
	if err := CheckCoordinate(in.End); err != nil {
		return nil, err
	}
	profile, err := router.ParseProfile(in.Profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	log.Debugf("Search %v route from %v to %v", profile, in.Start, in.End)
	route, err := s.router.Route(ctx, in.Start, in.End, profile)
	if err != nil {
		return nil, err
	}
	ret := &RouteResponse{Route: route, AverageSpeed: route.AverageSpeed()}
	if sw, ne, ok := route.BoundingBox(); ok {
		ret.BBox = &BoundingBox{Southwest: sw, Northeast: ne}
	}
	return ret, nil
}

func (s *RoutingServer) Stats() *StatsResponse {
	h := s.router.Header()
	s.cond.L.Lock()
	suspended := !s.ok
	s.cond.L.Unlock()
	return &StatsResponse{
		Cache:     s.router.Stats(),
		Zoom:      s.router.Options().Zoom,
		Zooms:     h.Zooms,
		Bounds:    [4]float64{h.Bound.Min.Lon(), h.Bound.Min.Lat(), h.Bound.Max.Lon(), h.Bound.Max.Lat()},
		Nodes:     h.NodeCount,
		Edges:     h.EdgeCount,
		BuiltAt:   h.CreatedAt,
		Suspended: suspended,
	}
}

// ClearCache 暂停服务后清空瓦片缓存
func (s *RoutingServer) ClearCache() {
	s.Suspend()
	defer s.Resume()
	s.router.ClearCache()
}

// 暂停导航服务
func (s *RoutingServer) Suspend() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.ok = false
}

// 恢复导航服务
func (s *RoutingServer) Resume() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.ok = true
	s.cond.Broadcast()
}

// 关闭导航服务
func (s *RoutingServer) Close() {
	if err := s.router.Close(); err != nil {
		log.Errorf("failed to close router: %v", err)
	}
}

// httpStatus 错误码对应的HTTP状态码
func httpStatus(code router.Code) int {
	switch code {
	case router.CodeNoRoute:
		return http.StatusNotFound
	case router.CodeNoTileData:
		return http.StatusUnprocessableEntity
	case router.CodeDatabaseNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	if errors.Is(err, errInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code: router.CodeInternal, Error: "invalid_request", Message: err.Error(),
		})
		return
	}
	code := router.CodeOf(err)
	c.AbortWithStatusJSON(httpStatus(code), ErrorResponse{
		Code: code, Error: code.String(), Message: err.Error(),
	})
}

// Handler 构造HTTP接口
func (s *RoutingServer) Handler(allowOrigins []string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	config := cors.DefaultConfig()
	if len(allowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(config))

	v1 := r.Group("/v1")
	v1.POST("/route", func(c *gin.Context) {
		var req RouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, fmt.Errorf("%w: %v", errInvalidRequest, err))
			return
		}
		res, err := s.GetRoute(c.Request.Context(), &req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})
	v1.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Stats())
	})
	v1.POST("/cache/clear", func(c *gin.Context) {
		s.ClearCache()
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	return r
}

// requestLogger 以debug级别记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
