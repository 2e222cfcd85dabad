package tile

import "errors"

// 数据层错误，router包会原样对外暴露
var (
	// 错误：数据库文件不存在或无法打开
	ErrDatabaseNotFound = errors.New("routing database not found")
	// 错误：数据库头或瓦片数据校验失败
	ErrDataCorrupted = errors.New("routing database is corrupted or invalid format")
	// 错误：请求区域没有瓦片数据
	ErrNoTileData = errors.New("no map data available for this region")
)
