// 包 api：形状存储的 HTTP 适配层，渲染层与导入导出流程经此调用变更接口
package api

import (
	"context"
	"net/http"
	"time"

	"geofence-editor/internal/convert"
	"geofence-editor/internal/dbcache"
	"geofence-editor/internal/logger"
	"geofence-editor/internal/metrics"
	"geofence-editor/internal/shapes"
	"geofence-editor/internal/store"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type server struct {
	shapes  *shapes.Store
	db      *store.Store
	cache   dbcache.Recorder
	convert *convert.Client
}

// BuildRoutes：注册全部路由；db、cache、cv 可为 nil，对应接口返回 503（恢复在 db 为空时改读 cache）
func BuildRoutes(sh *shapes.Store, db *store.Store, cache dbcache.Recorder, cv *convert.Client) *http.ServeMux {
	s := &server{shapes: sh, db: db, cache: cache, convert: cv}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /geojson", s.getGeojson)
	mux.HandleFunc("GET /route", s.getRoute)
	mux.HandleFunc("GET /features/{kind}/{id}", s.getFeature)
	mux.HandleFunc("POST /features", s.addFeatures)
	mux.HandleFunc("DELETE /features/{kind}", s.clearKind)
	mux.HandleFunc("DELETE /features/{kind}/{id}", s.removeFeature)
	mux.HandleFunc("PUT /features/{kind}/{id}", s.updateFeature)
	mux.HandleFunc("PATCH /features/{kind}/{id}/properties", s.updateProperties)
	mux.HandleFunc("POST /points", s.appendPoint)
	mux.HandleFunc("POST /split/{edgeId}", s.splitLine)
	mux.HandleFunc("PUT /combine/mode", s.combineMode)
	mux.HandleFunc("POST /combine/toggle/{id}", s.toggleCombined)
	mux.HandleFunc("POST /combine", s.combine)
	mux.HandleFunc("POST /route/active/{id}", s.activeRoute)
	mux.HandleFunc("PUT /collection/{source}", s.setCollection)
	mux.HandleFunc("POST /import/shapefile", s.importShapefile)
	mux.HandleFunc("POST /export/convert", s.exportConvert)
	mux.HandleFunc("POST /import/convert", s.importConvert)
	mux.HandleFunc("GET /persist", s.persistedSources)
	mux.HandleFunc("POST /persist/{source}", s.persist)
	mux.HandleFunc("POST /restore/{source}", s.restore)
	mux.HandleFunc("GET /cache", s.cachedSource)
	mux.HandleFunc("GET /cache/{kind}/{id}", s.cachedFeature)
	return mux
}

func (s *server) getGeojson(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseKinds(r.URL.Query()["kinds"])
	if err != nil {
		badRequest(w, "geojson", err)
		return
	}
	fc := s.shapes.GetGeojson(kinds...)
	if r.URL.Query().Get("members") == "true" {
		fc = explodeCollections(fc)
	}
	writeJSON(w, http.StatusOK, fc)
}

// explodeCollections：把几何集合替换为逐个子几何，供只能分派单一几何的渲染层使用
func explodeCollections(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if _, ok := f.Geometry.(orb.Collection); ok {
			out.Features = append(out.Features, shapes.Members(f)...)
			continue
		}
		out.Append(f)
	}
	return out
}

func (s *server) getRoute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, routeState{
		Active: s.shapes.ActiveRouteID(),
		First:  s.shapes.FirstPointID(),
		Last:   s.shapes.LastPointID(),
		Points: s.shapes.Len(shapes.KindPoint),
		Edges:  s.shapes.Len(shapes.KindLineString),
	})
}

func (s *server) getFeature(w http.ResponseWriter, r *http.Request) {
	k, ok := kindParam(w, r)
	if !ok {
		return
	}
	f, ok := s.shapes.Get(k, r.PathValue("id"))
	if !ok {
		writeErr(w, http.StatusNotFound, "feature not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *server) addFeatures(w http.ResponseWriter, r *http.Request) {
	feats, err := decodeFeatures(w, r)
	if err != nil {
		badRequest(w, "add", err)
		return
	}
	source := r.URL.Query().Get("source")
	n := s.shapes.Add(feats, source)
	if source != "" {
		s.record(r.Context(), source, feats)
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": n})
}

// record：带来源的新增写入引用缓存；缓存失败不影响变更结果
func (s *server) record(ctx context.Context, source string, feats []*geojson.Feature) {
	if s.cache == nil || source == "" {
		return
	}
	withIDs := make([]*geojson.Feature, 0, len(feats))
	for _, f := range feats {
		id := shapes.FeatureID(f, source)
		if f == nil || id == "" {
			continue
		}
		c := *f
		c.ID = id
		withIDs = append(withIDs, &c)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n := dbcache.RecordAll(ctx, s.cache, source, withIDs)
	logger.L().Debug("api_cache_recorded", "source", source, "count", n)
}

func (s *server) clearKind(w http.ResponseWriter, r *http.Request) {
	k, ok := kindParam(w, r)
	if !ok {
		return
	}
	s.shapes.Clear(k)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) removeFeature(w http.ResponseWriter, r *http.Request) {
	k, ok := kindParam(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	s.shapes.Remove(k, id)
	if s.cache != nil {
		if err := s.cache.Forget(r.Context(), dbcache.KeyOf(k.String(), id)); err != nil {
			logger.L().Debug("api_cache_forget_error", "kind", k.String(), "id", id, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) updateFeature(w http.ResponseWriter, r *http.Request) {
	k, ok := kindParam(w, r)
	if !ok {
		return
	}
	b, err := readBody(w, r)
	if err != nil {
		badRequest(w, "update", err)
		return
	}
	f, err := geojson.UnmarshalFeature(b)
	if err != nil {
		badRequest(w, "update", err)
		return
	}
	s.shapes.Update(k, r.PathValue("id"), f)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) updateProperties(w http.ResponseWriter, r *http.Request) {
	k, ok := kindParam(w, r)
	if !ok {
		return
	}
	var props map[string]any
	if err := decode(w, r, &props); err != nil {
		badRequest(w, "update_property", err)
		return
	}
	id := r.PathValue("id")
	if _, exists := s.shapes.Get(k, id); !exists {
		writeErr(w, http.StatusNotFound, "feature not found")
		return
	}
	for key, v := range props {
		if key == shapes.PropForward || key == shapes.PropBackward || key == shapes.PropStart || key == shapes.PropEnd {
			continue
		}
		s.shapes.UpdateProperty(k, id, key, v)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) appendPoint(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "append_point", err)
		return
	}
	if len(req.Coordinates) < 2 {
		writeErr(w, http.StatusBadRequest, "coordinates must be [lon, lat]")
		return
	}
	id := s.shapes.AppendPoint(orb.Point{req.Coordinates[0], req.Coordinates[1]}, req.Properties)
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *server) splitLine(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "split_line", err)
		return
	}
	var at *orb.Point
	if len(req.Coordinates) >= 2 {
		at = &orb.Point{req.Coordinates[0], req.Coordinates[1]}
	}
	id, ok := s.shapes.SplitLine(r.PathValue("edgeId"), at)
	if !ok {
		writeErr(w, http.StatusNotFound, "edge not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *server) combineMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, "combine_mode", err)
		return
	}
	s.shapes.SetCombineMode(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": s.shapes.CombineMode()})
}

func (s *server) toggleCombined(w http.ResponseWriter, r *http.Request) {
	selected := s.shapes.ToggleCombined(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"selected": selected, "ids": s.shapes.Selected()})
}

func (s *server) combine(w http.ResponseWriter, r *http.Request) {
	id, ok := s.shapes.Combine()
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "combined": ok})
}

func (s *server) activeRoute(w http.ResponseWriter, r *http.Request) {
	s.shapes.ActiveRoute(r.PathValue("id"))
	s.getRoute(w, r)
}

func (s *server) setCollection(w http.ResponseWriter, r *http.Request) {
	feats, err := decodeFeatures(w, r)
	if err != nil {
		badRequest(w, "set_collection", err)
		return
	}
	source := r.PathValue("source")
	fc := &geojson.FeatureCollection{Type: "FeatureCollection", Features: feats}
	if r.URL.Query().Get("split") == "true" {
		fc = shapes.SplitMultiPolygons(fc)
	}
	n := s.shapes.SetFromCollection(fc, source)
	metrics.ImportedFeaturesTotal.WithLabelValues("collection").Add(float64(n))
	s.record(r.Context(), source, fc.Features)
	writeJSON(w, http.StatusOK, map[string]any{"inserted": n})
}
