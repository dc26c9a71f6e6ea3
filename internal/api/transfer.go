package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"geofence-editor/internal/convert"
	"geofence-editor/internal/dbcache"
	"geofence-editor/internal/logger"
	"geofence-editor/internal/metrics"
	"geofence-editor/internal/shapefile"
	"geofence-editor/internal/shapes"

	"github.com/paulmach/orb/geojson"
)

// importShapefile：multipart 上传 shp（必填）与 dbf（可选），写入临时目录后读取
// 约束：带 source 时按来源整体替换，否则追加；split=true 时先拆分 MultiPolygon
func (s *server) importShapefile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxBody); err != nil {
		badRequest(w, "import_shapefile", err)
		return
	}
	dir, err := os.MkdirTemp("", "shp-import-")
	if err != nil {
		logger.L().Error("import_tmpdir_error", "err", err)
		writeErr(w, http.StatusInternalServerError, "temp dir unavailable")
		return
	}
	defer os.RemoveAll(dir)

	base := filepath.Join(dir, "upload")
	if err := saveUpload(r, "shp", base+".shp"); err != nil {
		badRequest(w, "import_shapefile", err)
		return
	}
	if len(r.MultipartForm.File["dbf"]) > 0 {
		if err := saveUpload(r, "dbf", base+".dbf"); err != nil {
			badRequest(w, "import_shapefile", err)
			return
		}
	}
	fc, err := shapefile.Load(base + ".shp")
	if err != nil {
		badRequest(w, "import_shapefile", err)
		return
	}
	if r.URL.Query().Get("split") == "true" {
		fc = shapes.SplitMultiPolygons(fc)
	}
	source := r.URL.Query().Get("source")
	var n int
	if source != "" {
		n = s.shapes.SetFromCollection(fc, source)
		s.record(r.Context(), source, fc.Features)
	} else {
		n = s.shapes.Add(fc.Features, "")
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": n, "read": len(fc.Features)})
}

func saveUpload(r *http.Request, field, dst string) error {
	src, _, err := r.FormFile(field)
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, src)
	return err
}

// exportConvert：把当前投影交给转换服务
func (s *server) exportConvert(w http.ResponseWriter, r *http.Request) {
	if s.convert == nil {
		writeErr(w, http.StatusServiceUnavailable, "conversion service not configured")
		return
	}
	var req exportRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "export_convert", err)
		return
	}
	kinds, err := parseKinds(req.Kinds)
	if err != nil {
		badRequest(w, "export_convert", err)
		return
	}
	if len(kinds) == 0 {
		kinds = []shapes.Kind{shapes.KindPolygon, shapes.KindMultiPolygon}
	}
	fc := filterKinds(s.shapes.GetSource(req.Source), kinds)
	if req.CombineBy != "" {
		fc = shapes.CombineByProperty(fc, req.CombineBy)
	}
	simplify := os.Getenv("SIMPLIFY_POLYGONS") == "true"
	if req.Simplify != nil {
		simplify = *req.Simplify
	}
	if req.ReturnType == "" {
		req.ReturnType = "featureCollection"
	}
	data, err := s.convert.Convert(r.Context(), convertRequest(fc, req, simplify))
	if err != nil {
		logger.L().Warn("export_convert_error", "err", err)
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exportResult{Data: data})
}

// importConvert：请求体为任意区域数据，交给转换服务得到 FeatureCollection 后导入
// 约束：带 source 时按来源整体替换并写入引用缓存，否则追加
func (s *server) importConvert(w http.ResponseWriter, r *http.Request) {
	if s.convert == nil {
		writeErr(w, http.StatusServiceUnavailable, "conversion service not configured")
		return
	}
	var area json.RawMessage
	if err := decode(w, r, &area); err != nil {
		badRequest(w, "import_convert", err)
		return
	}
	if len(area) == 0 {
		writeErr(w, http.StatusBadRequest, "empty body")
		return
	}
	fc, err := s.convert.FeatureCollection(r.Context(), area, r.URL.Query().Get("simplify") == "true")
	if err != nil {
		logger.L().Warn("import_convert_error", "err", err)
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	source := r.URL.Query().Get("source")
	var n int
	if source != "" {
		n = s.shapes.SetFromCollection(fc, source)
		s.record(r.Context(), source, fc.Features)
	} else {
		n = s.shapes.Add(fc.Features, "")
	}
	metrics.ImportedFeaturesTotal.WithLabelValues("convert").Add(float64(n))
	writeJSON(w, http.StatusOK, map[string]any{"inserted": n, "read": len(fc.Features)})
}

func convertRequest(fc *geojson.FeatureCollection, req exportRequest, simplify bool) convert.Request {
	return convert.Request{Area: fc, ReturnType: req.ReturnType, Simplify: simplify, GeometryType: req.GeometryType}
}

func filterKinds(fc *geojson.FeatureCollection, kinds []shapes.Kind) *geojson.FeatureCollection {
	want := make(map[shapes.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if k, ok := shapes.KindOf(f.Geometry); ok && want[k] {
			out.Append(f)
		}
	}
	if b, ok := shapes.Bound(out); ok {
		out.BBox = geojson.NewBBox(b)
	}
	return out
}

func (s *server) persist(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeErr(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	source := r.PathValue("source")
	n, err := s.db.SaveCollection(r.Context(), source, s.shapes.GetSource(source))
	if err != nil {
		logger.L().Error("persist_error", "source", source, "err", err)
		writeErr(w, http.StatusInternalServerError, "persist failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": n})
}

// persistedSources：数据库中已保存的来源
func (s *server) persistedSources(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeErr(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	sources, err := s.db.Sources(r.Context())
	if err != nil {
		logger.L().Error("persist_list_error", "err", err)
		writeErr(w, http.StatusInternalServerError, "list failed")
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// restore：按来源整体替换；未启用数据库时从引用缓存恢复
func (s *server) restore(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	var (
		fc   *geojson.FeatureCollection
		from string
		err  error
	)
	switch {
	case s.db != nil:
		from = "db"
		fc, err = s.db.LoadCollection(r.Context(), source)
	case s.cache != nil:
		from = "cache"
		var es []dbcache.Entry
		es, err = s.cache.BySource(r.Context(), source)
		fc = dbcache.Collection(es)
	default:
		writeErr(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	if err != nil {
		logger.L().Error("restore_error", "source", source, "from", from, "err", err)
		writeErr(w, http.StatusInternalServerError, "restore failed")
		return
	}
	n := s.shapes.SetFromCollection(fc, source)
	metrics.ImportedFeaturesTotal.WithLabelValues("restore").Add(float64(n))
	if from == "db" {
		s.record(r.Context(), source, fc.Features)
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": n, "from": from})
}

// cachedSource：GET /cache?source=，返回该来源的缓存副本
func (s *server) cachedSource(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeErr(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		writeErr(w, http.StatusBadRequest, "source required")
		return
	}
	es, err := s.cache.BySource(r.Context(), source)
	if err != nil {
		logger.L().Warn("cache_list_error", "source", source, "err", err)
		writeErr(w, http.StatusBadGateway, "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dbcache.Collection(es))
}

func (s *server) cachedFeature(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeErr(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	k, ok := kindParam(w, r)
	if !ok {
		return
	}
	e, ok, err := s.cache.Lookup(r.Context(), dbcache.KeyOf(k.String(), r.PathValue("id")))
	if err != nil {
		logger.L().Warn("cache_lookup_error", "err", err)
		writeErr(w, http.StatusBadGateway, "cache unavailable")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "not cached")
		return
	}
	writeJSON(w, http.StatusOK, e)
}
