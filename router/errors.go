package router

import (
	"errors"

	"git.fiblab.net/sim/tilerouting/router/tile"
)

var (
	// 数据库文件不存在或无法打开
	ErrDatabaseNotFound = tile.ErrDatabaseNotFound
	// 起终点所在瓦片不在数据库中
	ErrNoTileData = tile.ErrNoTileData
	// 数据库头或瓦片数据损坏
	ErrDataCorrupted = tile.ErrDataCorrupted
	// 起终点间找不到路线
	ErrNoRoute = errors.New("no route found between start and end")
	// 内部错误
	ErrInternal = errors.New("internal routing error")
)

// Code 错误码，与移动端桥接层保持一致
type Code int

const (
	CodeOK               Code = 0
	CodeDatabaseNotFound Code = 1
	CodeNoRoute          Code = 2
	CodeNoTileData       Code = 3
	CodeDataCorrupted    Code = 4
	CodeInternal         Code = 5
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeDatabaseNotFound:
		return "database_not_found"
	case CodeNoRoute:
		return "no_route"
	case CodeNoTileData:
		return "no_tile_data"
	case CodeDataCorrupted:
		return "data_corrupted"
	default:
		return "internal"
	}
}

// CodeOf 返回err对应的错误码，nil返回CodeOK，未知错误视为内部错误
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrDatabaseNotFound):
		return CodeDatabaseNotFound
	case errors.Is(err, ErrNoRoute):
		return CodeNoRoute
	case errors.Is(err, ErrNoTileData):
		return CodeNoTileData
	case errors.Is(err, ErrDataCorrupted):
		return CodeDataCorrupted
	default:
		return CodeInternal
	}
}
