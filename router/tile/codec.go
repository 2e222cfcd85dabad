package tile

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"google.golang.org/protobuf/encoding/protowire"
)

// 瓦片二进制格式为protobuf wire编码，无需生成代码：
//
//	Tile { 1: zoom, 2: x, 3: y, 4: repeated Node, 5: repeated Edge }
//	Node { 1: id(sint64), 2: lon e7(sint64), 3: lat e7(sint64), 4: flags }
//	Edge { 1: id(sint64), 2: from(sint64), 3: to(sint64), 4: length(double),
//	       5: class, 6: flags, 7: max speed, 8: shape(packed sint64, e7差分) }
//
// 未知字段会被跳过，便于向后兼容
const (
	coordScale = 1e7

	fieldTileZoom  protowire.Number = 1
	fieldTileX     protowire.Number = 2
	fieldTileY     protowire.Number = 3
	fieldTileNode  protowire.Number = 4
	fieldTileEdge  protowire.Number = 5
	fieldNodeID    protowire.Number = 1
	fieldNodeLon   protowire.Number = 2
	fieldNodeLat   protowire.Number = 3
	fieldNodeFlags protowire.Number = 4
	fieldEdgeID    protowire.Number = 1
	fieldEdgeFrom  protowire.Number = 2
	fieldEdgeTo    protowire.Number = 3
	fieldEdgeLen   protowire.Number = 4
	fieldEdgeClass protowire.Number = 5
	fieldEdgeFlags protowire.Number = 6
	fieldEdgeSpeed protowire.Number = 7
	fieldEdgeShape protowire.Number = 8
)

var errWireType = errors.New("unexpected wire type")

// QuantizeCoord 坐标量化到1e-7度，与编码精度一致
func QuantizeCoord(v float64) float64 {
	return float64(toE7(v)) / coordScale
}

func toE7(v float64) int64 {
	return int64(math.Round(v * coordScale))
}

// Encode 编码瓦片，输出只依赖输入顺序
func Encode(t *Tile) []byte {
	b := make([]byte, 0, 64+len(t.Nodes)*24+len(t.Edges)*48)
	b = protowire.AppendTag(b, fieldTileZoom, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Key.Zoom))
	b = protowire.AppendTag(b, fieldTileX, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Key.X))
	b = protowire.AppendTag(b, fieldTileY, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Key.Y))
	var buf []byte
	for i := range t.Nodes {
		buf = appendNode(buf[:0], &t.Nodes[i])
		b = protowire.AppendTag(b, fieldTileNode, protowire.BytesType)
		b = protowire.AppendBytes(b, buf)
	}
	for i := range t.Edges {
		buf = appendEdge(buf[:0], &t.Edges[i])
		b = protowire.AppendTag(b, fieldTileEdge, protowire.BytesType)
		b = protowire.AppendBytes(b, buf)
	}
	return b
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendNode(b []byte, n *Node) []byte {
	b = appendSint(b, fieldNodeID, n.ID)
	b = appendSint(b, fieldNodeLon, toE7(n.Point.Lon()))
	b = appendSint(b, fieldNodeLat, toE7(n.Point.Lat()))
	if n.Flags != 0 {
		b = appendUint(b, fieldNodeFlags, uint64(n.Flags))
	}
	return b
}

func appendEdge(b []byte, e *Edge) []byte {
	b = appendSint(b, fieldEdgeID, e.ID)
	b = appendSint(b, fieldEdgeFrom, e.From)
	b = appendSint(b, fieldEdgeTo, e.To)
	b = protowire.AppendTag(b, fieldEdgeLen, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(e.Length))
	b = appendUint(b, fieldEdgeClass, uint64(e.Class))
	if e.Flags != 0 {
		b = appendUint(b, fieldEdgeFlags, uint64(e.Flags))
	}
	if e.MaxSpeed != 0 {
		b = appendUint(b, fieldEdgeSpeed, uint64(e.MaxSpeed))
	}
	// 只存中间形状点，端点由节点坐标恢复
	if len(e.Line) > 2 {
		var packed []byte
		var lastLon, lastLat int64
		for _, p := range e.Line[1 : len(e.Line)-1] {
			lon, lat := toE7(p.Lon()), toE7(p.Lat())
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(lon-lastLon))
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(lat-lastLat))
			lastLon, lastLat = lon, lat
		}
		b = protowire.AppendTag(b, fieldEdgeShape, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	return b
}

// walkFields 依次回调每个字段，fn返回消费的字节数
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func decodeNode(b []byte) (Node, error) {
	var n Node
	var lon, lat int64
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldNodeID, fieldNodeLon, fieldNodeLat:
			v, m, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			switch num {
			case fieldNodeID:
				n.ID = protowire.DecodeZigZag(v)
			case fieldNodeLon:
				lon = protowire.DecodeZigZag(v)
			default:
				lat = protowire.DecodeZigZag(v)
			}
			return m, nil
		case fieldNodeFlags:
			v, m, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v&^uint64(nodeFlagsMask) != 0 {
				return 0, fmt.Errorf("node flags %#x out of range", v)
			}
			n.Flags = NodeFlags(v)
			return m, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	n.Point = orb.Point{float64(lon) / coordScale, float64(lat) / coordScale}
	return n, err
}

// edge的From/To端点坐标在decodeEdge之后补齐
func decodeEdge(b []byte) (Edge, error) {
	var e Edge
	var shape []orb.Point
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldEdgeID, fieldEdgeFrom, fieldEdgeTo:
			v, m, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			switch num {
			case fieldEdgeID:
				e.ID = protowire.DecodeZigZag(v)
			case fieldEdgeFrom:
				e.From = protowire.DecodeZigZag(v)
			default:
				e.To = protowire.DecodeZigZag(v)
			}
			return m, nil
		case fieldEdgeLen:
			if typ != protowire.Fixed64Type {
				return 0, errWireType
			}
			v, m := protowire.ConsumeFixed64(b)
			e.Length = math.Float64frombits(v)
			return m, nil
		case fieldEdgeClass, fieldEdgeFlags, fieldEdgeSpeed:
			v, m, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			switch num {
			case fieldEdgeClass:
				if !RoadClass(min(v, 255)).Valid() {
					return 0, fmt.Errorf("road class %d out of range", v)
				}
				e.Class = RoadClass(v)
			case fieldEdgeFlags:
				if v&^uint64(edgeFlagsMask) != 0 {
					return 0, fmt.Errorf("edge flags %#x out of range", v)
				}
				e.Flags = EdgeFlags(v)
			default:
				if v > math.MaxUint8 {
					return 0, fmt.Errorf("max speed %d out of range", v)
				}
				e.MaxSpeed = uint8(v)
			}
			return m, nil
		case fieldEdgeShape:
			if typ != protowire.BytesType {
				return 0, errWireType
			}
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return m, nil
			}
			var err error
			if shape, err = decodeShape(packed); err != nil {
				return 0, err
			}
			return m, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	e.Line = make(orb.LineString, 0, len(shape)+2)
	e.Line = append(e.Line, orb.Point{})
	e.Line = append(e.Line, shape...)
	e.Line = append(e.Line, orb.Point{})
	return e, err
}

func decodeShape(b []byte) ([]orb.Point, error) {
	var values []int64
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		values = append(values, protowire.DecodeZigZag(v))
		b = b[n:]
	}
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("odd shape coordinate count %d", len(values))
	}
	shape := make([]orb.Point, 0, len(values)/2)
	var lon, lat int64
	for i := 0; i < len(values); i += 2 {
		lon += values[i]
		lat += values[i+1]
		shape = append(shape, orb.Point{float64(lon) / coordScale, float64(lat) / coordScale})
	}
	return shape, nil
}

// Decode 解码并校验瓦片，任何结构问题都返回ErrDataCorrupted
func Decode(key Key, data []byte) (*Tile, error) {
	t, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: tile %v: %v", ErrDataCorrupted, key, err)
	}
	if err := t.validate(key); err != nil {
		return nil, fmt.Errorf("%w: tile %v: %v", ErrDataCorrupted, key, err)
	}
	return t, nil
}

func decode(data []byte) (*Tile, error) {
	t := &Tile{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldTileZoom, fieldTileX, fieldTileY:
			v, m, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v > math.MaxUint32 {
				return 0, fmt.Errorf("tile index %d out of range", v)
			}
			switch num {
			case fieldTileZoom:
				t.Key.Zoom = uint32(v)
			case fieldTileX:
				t.Key.X = uint32(v)
			default:
				t.Key.Y = uint32(v)
			}
			return m, nil
		case fieldTileNode, fieldTileEdge:
			if typ != protowire.BytesType {
				return 0, errWireType
			}
			msg, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return m, nil
			}
			if num == fieldTileNode {
				n, err := decodeNode(msg)
				if err != nil {
					return 0, fmt.Errorf("node #%d: %w", len(t.Nodes), err)
				}
				t.Nodes = append(t.Nodes, n)
			} else {
				e, err := decodeEdge(msg)
				if err != nil {
					return 0, fmt.Errorf("edge #%d: %w", len(t.Edges), err)
				}
				t.Edges = append(t.Edges, e)
			}
			return m, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// validate 结构校验，并补齐道路几何的端点
func (t *Tile) validate(key Key) error {
	if t.Key != key {
		return fmt.Errorf("key mismatch: stored %v", t.Key)
	}
	t.index = make(map[int64]int32, len(t.Nodes))
	for i, n := range t.Nodes {
		if _, ok := t.index[n.ID]; ok {
			return fmt.Errorf("duplicate node %d", n.ID)
		}
		if n.Point.Lon() < -180 || n.Point.Lon() > 180 || n.Point.Lat() < -90 || n.Point.Lat() > 90 {
			return fmt.Errorf("node %d coordinate %v out of range", n.ID, n.Point)
		}
		t.index[n.ID] = int32(i)
	}
	edgeIDs := make(map[int64]struct{}, len(t.Edges))
	for i := range t.Edges {
		e := &t.Edges[i]
		if _, ok := edgeIDs[e.ID]; ok {
			return fmt.Errorf("duplicate edge %d", e.ID)
		}
		edgeIDs[e.ID] = struct{}{}
		from, ok := t.Node(e.From)
		if !ok {
			return fmt.Errorf("edge %d references missing node %d", e.ID, e.From)
		}
		to, ok := t.Node(e.To)
		if !ok {
			return fmt.Errorf("edge %d references missing node %d", e.ID, e.To)
		}
		if math.IsNaN(e.Length) || math.IsInf(e.Length, 0) || e.Length < 0 {
			return fmt.Errorf("edge %d has invalid length %v", e.ID, e.Length)
		}
		e.Line[0] = from.Point
		e.Line[len(e.Line)-1] = to.Point
	}
	return nil
}
