package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ElementNode = "node"
	ElementWay  = "way"
)

// Element OSM元素，与Overpass API的JSON输出格式一致
// Mongo集合中每个文档为一个Element
type Element struct {
	Type  string            `json:"type" bson:"type"`
	ID    int64             `json:"id" bson:"id"`
	Lat   float64           `json:"lat,omitempty" bson:"lat,omitempty"`
	Lon   float64           `json:"lon,omitempty" bson:"lon,omitempty"`
	Nodes []int64           `json:"nodes,omitempty" bson:"nodes,omitempty"`
	Tags  map[string]string `json:"tags,omitempty" bson:"tags,omitempty"`
}

type overpassResult struct {
	Elements []Element `json:"elements"`
}

// ReadJSON 读取Overpass格式的JSON文件
func ReadJSON(path string) ([]Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var result overpassResult
	if err := json.NewDecoder(f).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	log.Infof("read %d elements from %s", len(result.Elements), path)
	return result.Elements, nil
}

// ReadMongo 读取集合中的节点与道路
func ReadMongo(ctx context.Context, coll *mongo.Collection) ([]Element, error) {
	filter := bson.M{"type": bson.M{"$in": bson.A{ElementNode, ElementWay}}}
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)
	var elements []Element
	for cursor.Next(ctx) {
		var e Element
		if err := cursor.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode element: %w", err)
		}
		elements = append(elements, e)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	log.Infof("read %d elements from %s.%s", len(elements), coll.Database().Name(), coll.Name())
	return elements, nil
}
