package main

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"git.fiblab.net/sim/tilerouting/router/tile"
)

// OSM标签归一化，默认规则参照德国

type accessMask uint8

const (
	accessCar accessMask = 1 << iota
	accessFoot
)

// 越靠后的键越具体，覆盖前面的结果
var accessTable = [...]struct {
	key  string
	mask accessMask
}{
	{"access", accessCar | accessFoot},
	{"foot", accessFoot},
	{"vehicle", accessCar},
	{"motor_vehicle", accessCar},
	{"motorcar", accessCar},
}

// parseAccess 返回标签是否允许通行，未识别的值返回ok=false
func parseAccess(value string) (allowed bool, ok bool) {
	switch strings.ToLower(value) {
	case "yes", "true", "1", "designated", "permissive", "destination", "customers", "delivery":
		return true, true
	case "no", "false", "0", "private", "agricultural", "forestry":
		return false, true
	}
	return false, false
}

func parseBool(value string) bool {
	allowed, ok := parseAccess(value)
	return ok && allowed
}

func defaultAccess(tags map[string]string) accessMask {
	if parseBool(tags["motorroad"]) {
		return accessCar
	}
	switch tags["highway"] {
	case "trunk", "primary", "secondary",
		"tertiary", "unclassified", "residential",
		"living_street", "road", "trunk_link",
		"primary_link", "secondary_link", "tertiary_link",
		"service", "track":
		return accessCar | accessFoot
	case "motorway", "motorway_link":
		return accessCar
	case "path", "footway", "pedestrian", "steps":
		return accessFoot
	case "cycleway":
		// 多数地区允许行人借道
		return accessFoot
	}
	return 0
}

func applyAccessTable(mask accessMask, tags map[string]string) accessMask {
	for _, data := range accessTable {
		if allowed, ok := parseAccess(tags[data.key]); ok {
			if allowed {
				mask |= data.mask
			} else {
				mask &^= data.mask
			}
		}
	}
	return mask
}

// wayAccess 计算道路的通行权限，0表示不是可通行道路
func wayAccess(tags map[string]string) accessMask {
	if _, ok := tags["highway"]; !ok {
		return 0
	}
	if parseBool(tags["construction"]) {
		return 0
	}
	return applyAccessTable(defaultAccess(tags), tags)
}

// normalizeOneway 解析oneway标签，-1时原地反转nodes
// 无法解析时返回ok=false，此时方向不可信，应丢弃该道路
func normalizeOneway(tags map[string]string, nodes []int64) (oneway bool, ok bool) {
	switch tags["oneway"] {
	case "yes", "true", "1":
		return true, true
	case "-1", "reverse":
		for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
			nodes[i], nodes[j] = nodes[j], nodes[i]
		}
		return true, true
	case "no", "false", "0":
		return false, true
	}
	if tags["junction"] == "roundabout" {
		return true, true
	}
	switch tags["highway"] {
	case "motorway", "motorway_link", "trunk":
		return true, true
	}
	if _, exists := tags["oneway"]; exists {
		return false, false
	}
	return false, true
}

var matchSpeed = regexp.MustCompile(`^\s*\+?(\d+(?:[.,]\d+)?)\s*(km/h|kmh|kph|mph|knots)?\s*$`)

// parseMaxSpeed 解析maxspeed标签，单位km/h，无法解析时返回0
func parseMaxSpeed(value string) uint8 {
	switch value {
	case "", "signals", "variable":
		return 0
	case "none":
		return 130
	case "walk":
		return 5
	}
	match := matchSpeed.FindStringSubmatch(value)
	if match == nil {
		return 0
	}
	speed, err := strconv.ParseFloat(strings.Replace(match[1], ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	switch match[2] {
	case "mph":
		speed *= 1.609344
	case "knots":
		speed *= 1.852
	}
	return uint8(math.Min(math.Round(speed), math.MaxUint8))
}

// wayAttributes 将道路标签转换为道路等级、标志位与限速
// nodes在oneway=-1时会被反转
func wayAttributes(tags map[string]string, nodes []int64) (class tile.RoadClass, flags tile.EdgeFlags, maxSpeed uint8, ok bool) {
	class, ok = tile.ParseRoadClass(tags["highway"])
	if !ok {
		return 0, 0, 0, false
	}
	mask := wayAccess(tags)
	if mask == 0 {
		return 0, 0, 0, false
	}
	oneway, ok := normalizeOneway(tags, nodes)
	if !ok {
		return 0, 0, 0, false
	}
	if oneway {
		flags |= tile.EdgeOneway
	}
	if parseBool(tags["oneway:foot"]) {
		flags |= tile.EdgeOnewayFoot
	}
	if mask&accessCar == 0 {
		flags |= tile.EdgeNoCar
	}
	if mask&accessFoot == 0 {
		flags |= tile.EdgeNoFoot
	}
	return class, flags, parseMaxSpeed(tags["maxspeed"]), true
}

// 不阻挡车辆的障碍物
var passableBarriers = map[string]bool{
	"border_control":    true,
	"cattle_grid":       true,
	"entrance":          true,
	"height_restrictor": true,
	"toll_booth":        true,
}

// nodeFlags 根据barrier与access标签计算节点的通行限制
func nodeFlags(tags map[string]string) tile.NodeFlags {
	barrier, ok := tags["barrier"]
	if !ok || barrier == "no" {
		return 0
	}
	mask := accessCar | accessFoot
	if !passableBarriers[barrier] {
		mask = accessFoot
	}
	mask = applyAccessTable(mask, tags)
	var flags tile.NodeFlags
	if mask&accessCar == 0 {
		flags |= tile.NodeBarrierCar
	}
	if mask&accessFoot == 0 {
		flags |= tile.NodeBarrierFoot
	}
	return flags
}
