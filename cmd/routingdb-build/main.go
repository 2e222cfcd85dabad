// routingdb-build 将OSM路网转换为.routingdb瓦片数据库
//
//	routingdb-build -input city.json -output city.routingdb -zoom 14
//	routingdb-build -input osm.ways -mongo_uri mongodb://... -output redis://localhost:6379/0?prefix=city
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"git.fiblab.net/sim/tilerouting/router"
	"git.fiblab.net/sim/tilerouting/router/tilestore"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var (
	input    = flag.String("input", "", "road network source [format: {fspath}.json or {db}.{col}]")
	mongoURI = flag.String("mongo_uri", "", "mongo db uri, required when input is a collection")
	output   = flag.String("output", "", "output database [format: {fspath}.routingdb or redis://host:port/db?prefix=name]")
	zooms    = flag.String("zoom", strconv.Itoa(router.DEFAULT_ZOOM), "comma separated tile zoom levels")
	logLevel = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

func parseZooms(s string) ([]int, error) {
	var zs []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		z, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		zs = append(zs, z)
	}
	return lo.Uniq(zs), nil
}

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

	src, err := NewPath(*input)
	if err != nil {
		log.Fatalf("invalid input: %v", err)
	}
	if src == nil || *output == "" {
		flag.Usage()
		os.Exit(2)
	}
	zs, err := parseZooms(*zooms)
	if err != nil || len(zs) == 0 {
		log.Fatalf("invalid zoom list %q: %v", *zooms, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	elements, err := src.Load(ctx, *mongoURI)
	if err != nil {
		log.Fatalf("failed to load %s: %v", src, err)
	}
	network, err := BuildNetwork(elements)
	if err != nil {
		log.Fatalf("failed to build network: %v", err)
	}
	header, err := tilestore.Write(ctx, *output, network, zs)
	if err != nil {
		log.Fatalf("failed to write %s: %v", *output, err)
	}
	log.Infof("done in %v: zooms=%v nodes=%d edges=%d bounds=%v",
		time.Since(start), header.Zooms, header.NodeCount, header.EdgeCount, header.Bound)
}
