// 包 shapefile：ESRI Shapefile 读取为 GeoJSON 要素集合
package shapefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/metrics"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrNotShp = errors.New("shapefile: expected a .shp path")

// Load：读取 .shp 及同名 .dbf，返回要素集合
// 背景：属性字段转为要素属性；N/F 类型字段可解析时转为数值，其余为去除空白的字符串。
// 约束：空形状与不支持的形状类型逐条跳过；缺少 .dbf 时要素属性为空。
func Load(path string) (*geojson.FeatureCollection, error) {
	if strings.ToLower(filepath.Ext(path)) != ".shp" {
		return nil, ErrNotShp
	}
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shapefile: open %s: %w", path, err)
	}
	defer r.Close()

	var fields []shp.Field
	if _, err := os.Stat(strings.TrimSuffix(path, filepath.Ext(path)) + ".dbf"); err == nil {
		fields = r.Fields()
	}
	fc := geojson.NewFeatureCollection()
	skipped := 0
	for r.Next() {
		row, s := r.Shape()
		g := toGeometry(s)
		if g == nil {
			skipped++
			continue
		}
		f := geojson.NewFeature(g)
		for i, fd := range fields {
			f.Properties[fd.String()] = attrValue(fd, r.ReadAttribute(row, i))
		}
		fc.Append(f)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("shapefile: read %s: %w", path, err)
	}
	metrics.ImportedFeaturesTotal.WithLabelValues("shapefile").Add(float64(len(fc.Features)))
	logger.L().Info("shapefile_loaded", "path", path, "features", len(fc.Features), "skipped", skipped)
	return fc, nil
}

func attrValue(fd shp.Field, raw string) any {
	v := strings.TrimSpace(raw)
	switch fd.Fieldtype {
	case 'N', 'F':
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	case 'L':
		switch strings.ToUpper(v) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
	}
	return v
}

func toGeometry(s shp.Shape) orb.Geometry {
	switch v := s.(type) {
	case *shp.Point:
		return orb.Point{v.X, v.Y}
	case *shp.PointZ:
		return orb.Point{v.X, v.Y}
	case *shp.PointM:
		return orb.Point{v.X, v.Y}
	case *shp.MultiPoint:
		return multiPoint(v.Points)
	case *shp.MultiPointZ:
		return multiPoint(v.Points)
	case *shp.PolyLine:
		return lines(v.Parts, v.Points)
	case *shp.PolyLineZ:
		return lines(v.Parts, v.Points)
	case *shp.Polygon:
		return polygons(v.Parts, v.Points)
	case *shp.PolygonZ:
		return polygons(v.Parts, v.Points)
	}
	return nil
}

func multiPoint(pts []shp.Point) orb.Geometry {
	if len(pts) == 0 {
		return nil
	}
	mp := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// parts：按 Parts 偏移切分点序列
func parts(offsets []int32, pts []shp.Point) [][]orb.Point {
	var out [][]orb.Point
	for i, start := range offsets {
		end := int32(len(pts))
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		if start < 0 || start >= end || int(end) > len(pts) {
			continue
		}
		seg := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}

func lines(offsets []int32, pts []shp.Point) orb.Geometry {
	ps := parts(offsets, pts)
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return orb.LineString(ps[0])
	}
	mls := make(orb.MultiLineString, len(ps))
	for i, p := range ps {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygons：顺时针环开启新多边形，逆时针环作为前一多边形的洞
// 约束：输出按 RFC 7946 调整为外环逆时针、洞顺时针；首个环为逆时针时仍视为外环
func polygons(offsets []int32, pts []shp.Point) orb.Geometry {
	var out orb.MultiPolygon
	for _, p := range parts(offsets, pts) {
		ring := orb.Ring(p)
		if !ring.Closed() && len(ring) > 0 {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CW || len(out) == 0 {
			if ring.Orientation() == orb.CW {
				ring.Reverse()
			}
			out = append(out, orb.Polygon{ring})
			continue
		}
		ring.Reverse()
		last := len(out) - 1
		out[last] = append(out[last], ring)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
