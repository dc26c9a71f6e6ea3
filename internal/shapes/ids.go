package shapes

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 保留属性键：点链路指针与连线端点
const (
	PropForward  = "forward"
	PropBackward = "backward"
	PropStart    = "start"
	PropEnd      = "end"

	PropName        = "name"
	PropType        = "type"
	PropMultiPoint  = "multipoint_id"
	edgeSep         = "__"
	vertexSep       = "___"
	memberSep       = "_"
	defaultRouteID  = "new_route_0"
	pointIDInterval = 10
)

// Key：把要素 id 归一为注册表键
// 约束：整数与整数值的浮点（JSON 解码结果）输出为不带小数的十进制，因此 10、10.0 与 "10" 指向同一键；nil 返回空串
func Key(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return floatKey(float64(v))
	case float64:
		return floatKey(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return floatKey(f)
		}
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func floatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// EdgeID：由起止点 id 派生连线 id，格式 "<start>__<end>"
func EdgeID(start, end any) string {
	return Key(start) + edgeSep + Key(end)
}

// SplitEdgeID：拆分连线 id 为起止点键；格式不符返回 false
func SplitEdgeID(id string) (string, string, bool) {
	// 多点顶点 id 使用 "___"，避免误判
	if strings.Contains(id, vertexSep) {
		return "", "", false
	}
	i := strings.Index(id, edgeSep)
	if i <= 0 || i+len(edgeSep) >= len(id) {
		return "", "", false
	}
	return id[:i], id[i+len(edgeSep):], true
}

// VertexID：多点要素中第 index 个顶点的复合 id
func VertexID(parent any, index int) string {
	return Key(parent) + vertexSep + strconv.Itoa(index)
}

func splitIndexed(id, sep string) (string, int, bool) {
	i := strings.LastIndex(id, sep)
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+len(sep):])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// MemberID：几何集合中第 index 个子几何的合成 id
func MemberID(parent any, index int) string {
	return Key(parent) + memberSep + strconv.Itoa(index)
}

// FeatureID：要素写入注册表时使用的键；自带 id 优先，否则按 name + type + source 合成
// 约束：两者皆空时返回空串，由存储分配 ULID
func FeatureID(f *geojson.Feature, source string) string {
	if f == nil {
		return ""
	}
	if k := Key(f.ID); k != "" {
		return k
	}
	return synthesizeID(f, source)
}

func synthesizeID(f *geojson.Feature, source string) string {
	return propString(f.Properties, PropName) + propString(f.Properties, PropType) + source
}

func propString(p geojson.Properties, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return Key(v)
}

// link：读取点的链路指针，缺失返回 false
func link(f *geojson.Feature, prop string) (string, bool) {
	if f == nil || f.Properties == nil {
		return "", false
	}
	v, ok := f.Properties[prop]
	if !ok || v == nil {
		return "", false
	}
	k := Key(v)
	return k, k != ""
}

func setLink(f *geojson.Feature, prop string, target any) {
	if f.Properties == nil {
		f.Properties = geojson.Properties{}
	}
	f.Properties[prop] = target
}

func clearLink(f *geojson.Feature, prop string) {
	if f.Properties != nil {
		delete(f.Properties, prop)
	}
}

func pointOf(f *geojson.Feature) orb.Point {
	if p, ok := f.Geometry.(orb.Point); ok {
		return p
	}
	return orb.Point{}
}

// cloneFeature：深拷贝几何、浅拷贝属性，避免调用方持有注册表内部对象
func cloneFeature(f *geojson.Feature) *geojson.Feature {
	out := &geojson.Feature{
		ID:       f.ID,
		Type:     "Feature",
		Geometry: normalizeGeometry(f.Geometry),
	}
	if f.BBox != nil {
		out.BBox = append(geojson.BBox(nil), f.BBox...)
	}
	if f.Properties != nil {
		out.Properties = f.Properties.Clone()
	} else {
		out.Properties = geojson.Properties{}
	}
	return out
}

// newEdge：构造连接 s→e 的连线要素
func newEdge(s, e *geojson.Feature) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{pointOf(s), pointOf(e)})
	f.ID = EdgeID(s.ID, e.ID)
	f.Properties[PropStart] = s.ID
	f.Properties[PropEnd] = e.ID
	return f
}
