package algo

import (
	"errors"
)

const (
	// 每弹出多少个节点检查一次context
	CONTEXT_CHECK_INTERVAL = 1024
)

var (
	// 错误：起终点不连通
	ErrNoPath = errors.New("no path between start and end")
	// 错误：搜索超出迭代上限
	ErrBudgetExceeded = errors.New("search iteration budget exceeded")
)
