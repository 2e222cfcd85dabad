package main

import (
	"context"
	"flag"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"math/rand"

	"git.fiblab.net/sim/tilerouting/router"
	"github.com/sirupsen/logrus"
)

var (
	benchmarkCount   = flag.Int("benchmark.count", 1000, "the random routing count for benchmark")
	benchmarkProfile = flag.String("benchmark.profile", "car", "the routing profile for benchmark [car, foot]")
	benchmarkSeed    = flag.Int64("benchmark.seed", 0, "the seed for benchmark")
	benchmarkCPU     = flag.Int("benchmark.cpu", 1, "the cpu count for benchmark")
)

func runBenchmark(server *RoutingServer) {
	log.Logger.SetLevel(logrus.WarnLevel)
	// 设置随机种子
	e := rand.New(rand.NewSource(*benchmarkSeed))
	// 随机生成benchmarkCount个路径规划请求，起终点均匀分布在数据库范围内
	bound := server.router.Header().Bound
	randomCoordinate := func() router.Coordinate {
		return router.Coordinate{
			Latitude:  bound.Min.Lat() + e.Float64()*(bound.Max.Lat()-bound.Min.Lat()),
			Longitude: bound.Min.Lon() + e.Float64()*(bound.Max.Lon()-bound.Min.Lon()),
		}
	}
	reqs := make([]*RouteRequest, *benchmarkCount)
	for i := 0; i < *benchmarkCount; i++ {
		reqs[i] = &RouteRequest{
			Start:   randomCoordinate(),
			End:     randomCoordinate(),
			Profile: *benchmarkProfile,
		}
	}

	// 开始benchmark
	start := time.Now()
	var wg sync.WaitGroup
	var success atomic.Int32
	run := func(req *RouteRequest) {
		res, err := server.GetRoute(context.Background(), req)
		if err != nil {
			log.Error("benchmark failed, err:", err)
			return
		}
		if !res.IsEmpty() {
			success.Add(1)
		}
	}
	if *benchmarkCPU == 1 {
		for _, req := range reqs {
			run(req)
		}
	} else {
		// 设置cpu数量
		runtime.GOMAXPROCS(*benchmarkCPU)
		wg.Add(*benchmarkCount)
		for _, req := range reqs {
			go func(req *RouteRequest) {
				defer wg.Done()
				run(req)
				log.Info("benchmark finished one")
			}(req)
		}
		wg.Wait()
	}
	timeCost := time.Since(start) * time.Duration(*benchmarkCPU)
	stats := server.router.Stats()
	log.Error(
		"benchmark finished", "\n",
		"count:", *benchmarkCount, "\n",
		"time:", timeCost, "\n",
		"avg:", timeCost/time.Duration(*benchmarkCount), "\n",
		"success:", success.Load(), "\n",
		"cache hits/misses:", stats.Hits, "/", stats.Misses, "\n",
	)
}
