package main

import (
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"git.fiblab.net/sim/tilerouting/router"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var (
	// 配置信息
	dbPath        = flag.String("db", "", "routing database [format: {fspath}.routingdb or redis://host:port/db?prefix=name]")
	zoom          = flag.Int("zoom", router.DEFAULT_ZOOM, "tile zoom level")
	cacheCapacity = flag.Int("cache", router.DefaultOptions().CacheCapacity, "tile cache capacity")
	maxExpansions = flag.Int("max-expansions", router.DEFAULT_MAX_EXPANSIONS, "max region ring expansions when no route is found")
	snapRadius    = flag.Float64("snap-radius", router.DEFAULT_SNAP_RADIUS, "max distance in meters from start/end to a road")
	listen        = flag.String("listen", "localhost:52101", "HTTP listening address")
	corsOrigins   = flag.String("cors", "", "comma separated allowed CORS origins (empty means all)")
	logLevel      = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "localhost:52102", "debug listening address for pprof, tile stats and metrics")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

func main() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	flag.Parse()
	if level, ok := LOG_LEVELS[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}
	if *dbPath == "" {
		logrus.Fatalf("-db is required")
	}

	opts := router.DefaultOptions()
	opts.Zoom = *zoom
	opts.CacheCapacity = *cacheCapacity
	opts.MaxExpansions = *maxExpansions
	opts.SnapRadius = *snapRadius
	// 启动导航服务
	server, err := NewRoutingServer(*dbPath, opts)
	if err != nil {
		log.Fatalf("failed to start routing server: %v (code %d)", err, router.CodeOf(err))
	}

	var debugServer *http.Server
	if *pprofAddr != "" {
		// 启动pprof与指标端口
		debugServer = startHTTPDebugger(*pprofAddr, server)
	}

	if *benchmark {
		// 性能测试
		runBenchmark(server)
		server.Close()
		return
	}

	if logrus.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	var origins []string
	if *corsOrigins != "" {
		origins = strings.Split(*corsOrigins, ",")
	}
	addr := *listen
	// 使用HTTP/2 w.o. TLS
	s := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(server.Handler(origins), &http2.Server{}),
	}

	// 优雅退出
	// 创建监听退出chan
	signalCh := make(chan os.Signal, 1)
	//监听指定信号 ctrl+c kill
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("stopping...")
		go func() {
			<-signalCh
			os.Exit(1) // 强制结束
		}()
		// 退出HTTP服务
		s.Close()
		if debugServer != nil {
			debugServer.Close()
		}
		// 退出导航服务，等待进行中的请求结束
		server.Close()
		os.Exit(0)
	}()

	log.Infof("server listening at %v", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to serve: %v", err)
	}
	time.Sleep(1 * time.Second) // 延迟等待"优雅退出"
	log.Info("routing closes")
}
