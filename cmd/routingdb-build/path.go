package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"git.fiblab.net/general/common/v2/mongoutil"
)

// Path 路网数据源，本地文件或{db}.{col}格式的Mongo集合
type Path struct {
	File string
	DB   string
	Coll string
}

func NewPath(filePathOrColl string) (*Path, error) {
	// 检查filePathOrColl是否作为文件存在
	if _, err := os.Stat(filePathOrColl); err == nil {
		return &Path{
			File: filePathOrColl,
		}, nil
	}
	dbDotColl := strings.TrimSpace(filePathOrColl)
	if dbDotColl == "" {
		return nil, nil
	}
	splitted := strings.Split(dbDotColl, ".")
	if len(splitted) != 2 {
		return nil, fmt.Errorf("dbDotColl is invalid: %s", dbDotColl)
	}
	return &Path{
		DB:   splitted[0],
		Coll: splitted[1],
	}, nil
}

func (p *Path) GetDb() string {
	return p.DB
}

func (p *Path) GetColl() string {
	return p.Coll
}

func (p *Path) String() string {
	if p.File != "" {
		return p.File
	}
	return p.DB + "." + p.Coll
}

// Load 读取路网元素，Mongo集合需要提供mongoURI
func (p *Path) Load(ctx context.Context, mongoURI string) ([]Element, error) {
	if p.File != "" {
		return ReadJSON(p.File)
	}
	if mongoURI == "" {
		return nil, fmt.Errorf("mongo uri is required to read %s", p)
	}
	client := mongoutil.NewClient(mongoURI)
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Warnf("failed to disconnect mongo: %v", err)
		}
	}()
	return ReadMongo(ctx, mongoutil.GetMongoColl(client, p))
}
