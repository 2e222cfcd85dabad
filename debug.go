package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// debugHandler 调试端口
//
//	/debug/pprof/  pprof实时分析
//	/debug/tiles   瓦片缓存与数据库概况，同/stats
//	/metrics       Prometheus指标
func debugHandler(s *RoutingServer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/tiles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
			log.Warnf("failed to write tile stats: %v", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// startHTTPDebugger 在后台启动调试端口，退出时由调用方关闭
func startHTTPDebugger(addr string, s *RoutingServer) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           debugHandler(s),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("debug server on %s stopped: %v", addr, err)
		}
	}()
	log.Infof("debug server listening on %s", addr)
	return server
}
