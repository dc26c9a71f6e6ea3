package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geofence-editor/internal/convert"
	"geofence-editor/internal/dbcache"
	"geofence-editor/internal/shapes"

	"github.com/go-playground/assert/v2"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func decodeResp(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	assert.Equal(t, json.Unmarshal(rec.Body.Bytes(), &m), nil)
	return m
}

func TestDrawRouteOverHTTP(t *testing.T) {
	sh := shapes.New()
	h := BuildRoutes(sh, nil, nil, nil)

	for _, c := range []string{`[0,0]`, `[1,0]`, `[1,1]`} {
		rec := do(t, h, http.MethodPost, "/points", `{"coordinates":`+c+`}`)
		assert.Equal(t, rec.Code, http.StatusOK)
	}
	rec := do(t, h, http.MethodGet, "/route", "")
	state := decodeResp(t, rec)
	assert.Equal(t, state["points"], 3.0)
	assert.Equal(t, state["edges"], 3.0)
	assert.Equal(t, state["first"], "0")
	assert.Equal(t, state["last"], "20")

	rec = do(t, h, http.MethodPost, "/split/10__20", `{}`)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decodeResp(t, rec)["id"], 15.0)

	rec = do(t, h, http.MethodDelete, "/features/Point/15", "")
	assert.Equal(t, rec.Code, http.StatusNoContent)
	_, ok := sh.Get(shapes.KindLineString, "10__20")
	assert.Equal(t, ok, true)

	rec = do(t, h, http.MethodPost, "/split/10__99", `{}`)
	assert.Equal(t, rec.Code, http.StatusNotFound)
}

func TestGeojsonKinds(t *testing.T) {
	sh := shapes.New()
	h := BuildRoutes(sh, nil, nil, nil)
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"name":"park","type":"AutoQuest"}},
		{"type":"Feature","id":"x","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}
	]}`
	rec := do(t, h, http.MethodPost, "/features", body)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decodeResp(t, rec)["added"], 2.0)

	rec = do(t, h, http.MethodGet, "/geojson?kinds=Polygon", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, rec.Header().Get("cache-control"), "no-store")
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(fc.Features), 1)
	assert.Equal(t, fc.Features[0].ID, "parkAutoQuest")

	rec = do(t, h, http.MethodGet, "/geojson?kinds=Circle", "")
	assert.Equal(t, rec.Code, http.StatusBadRequest)
	rec = do(t, h, http.MethodPost, "/features", `{"type":"Point"}`)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestGeojsonMembers(t *testing.T) {
	sh := shapes.New()
	gc := geojson.NewFeature(orb.Collection{orb.Point{0, 0}, orb.LineString{{0, 0}, {1, 1}}})
	gc.ID = "gc"
	sh.Add([]*geojson.Feature{gc}, "")
	h := BuildRoutes(sh, nil, nil, nil)

	rec := do(t, h, http.MethodGet, "/geojson?members=true", "")
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(fc.Features), 2)
	assert.Equal(t, fc.Features[1].ID, "gc_1")
}

func TestSetCollectionRecordsSource(t *testing.T) {
	sh := shapes.New()
	cache := dbcache.NewLRU(16, 0)
	h := BuildRoutes(sh, nil, cache, nil)
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[5,5],[6,5],[6,6],[5,5]]]]},"properties":{"name":"zone"}}
	]}`

	rec := do(t, h, http.MethodPut, "/collection/__KOJI?split=true", body)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decodeResp(t, rec)["inserted"], 2.0)
	assert.Equal(t, sh.IDs(shapes.KindPolygon), []string{"zone_0__KOJI", "zone_1__KOJI"})

	e, ok, _ := cache.Lookup(context.Background(), dbcache.KeyOf("Polygon", "zone_1__KOJI"))
	assert.Equal(t, ok, true)
	assert.Equal(t, e.Source, "__KOJI")

	rec = do(t, h, http.MethodPut, "/collection/__KOJI", `{"type":"FeatureCollection","features":[]}`)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, sh.Len(shapes.KindPolygon), 0)
}

func TestCacheReadBack(t *testing.T) {
	sh := shapes.New()
	cache := dbcache.NewLRU(16, 0)
	h := BuildRoutes(sh, nil, cache, nil)
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"name":"north"}},
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[5,5],[6,5],[6,6],[5,5]]]},"properties":{"name":"south"}}
	]}`
	assert.Equal(t, do(t, h, http.MethodPut, "/collection/__KOJI", body).Code, http.StatusOK)

	rec := do(t, h, http.MethodGet, "/cache/Polygon/north__KOJI", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decodeResp(t, rec)["source"], "__KOJI")
	assert.Equal(t, do(t, h, http.MethodGet, "/cache/Point/north__KOJI", "").Code, http.StatusNotFound)
	assert.Equal(t, do(t, h, http.MethodGet, "/cache", "").Code, http.StatusBadRequest)

	assert.Equal(t, do(t, h, http.MethodDelete, "/features/Polygon/south__KOJI", "").Code, http.StatusNoContent)
	assert.Equal(t, do(t, h, http.MethodGet, "/cache/Polygon/south__KOJI", "").Code, http.StatusNotFound)

	rec = do(t, h, http.MethodGet, "/cache?source=__KOJI", "")
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(fc.Features), 1)

	do(t, h, http.MethodDelete, "/features/Polygon", "")
	assert.Equal(t, sh.Len(shapes.KindPolygon), 0)
	rec = do(t, h, http.MethodPost, "/restore/__KOJI", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	res := decodeResp(t, rec)
	assert.Equal(t, res["from"], "cache")
	assert.Equal(t, res["inserted"], 1.0)
	assert.Equal(t, sh.IDs(shapes.KindPolygon), []string{"north__KOJI"})
}

func TestClearEdgesOverHTTP(t *testing.T) {
	sh := shapes.New()
	h := BuildRoutes(sh, nil, nil, nil)
	for _, c := range []string{`[0,0]`, `[1,0]`, `[1,1]`} {
		do(t, h, http.MethodPost, "/points", `{"coordinates":`+c+`}`)
	}
	assert.Equal(t, do(t, h, http.MethodDelete, "/features/LineString", "").Code, http.StatusNoContent)

	p, _ := sh.Get(shapes.KindPoint, 10)
	_, linked := p.Properties[shapes.PropForward]
	assert.Equal(t, linked, false)
	state := decodeResp(t, do(t, h, http.MethodGet, "/route", ""))
	assert.Equal(t, state["points"], 3.0)
	assert.Equal(t, state["edges"], 0.0)
}

func TestCombineOverHTTP(t *testing.T) {
	sh := shapes.New()
	h := BuildRoutes(sh, nil, nil, nil)
	for _, id := range []string{"a", "b"} {
		body := `{"type":"Feature","id":"` + id + `","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{}}`
		assert.Equal(t, do(t, h, http.MethodPost, "/features", body).Code, http.StatusOK)
	}

	rec := do(t, h, http.MethodPost, "/combine/toggle/a", "")
	assert.Equal(t, decodeResp(t, rec)["selected"], false)

	do(t, h, http.MethodPut, "/combine/mode", `{"enabled":true}`)
	do(t, h, http.MethodPost, "/combine/toggle/a", "")
	do(t, h, http.MethodPost, "/combine/toggle/b", "")
	rec = do(t, h, http.MethodPost, "/combine", "")
	res := decodeResp(t, rec)
	assert.Equal(t, res["combined"], true)
	assert.Equal(t, sh.Len(shapes.KindMultiPolygon), 1)
	assert.Equal(t, sh.Len(shapes.KindPolygon), 0)
}

func TestUpdateAndProperties(t *testing.T) {
	sh := shapes.New()
	h := BuildRoutes(sh, nil, nil, nil)
	do(t, h, http.MethodPost, "/points", `{"coordinates":[0,0]}`)
	do(t, h, http.MethodPost, "/points", `{"coordinates":[1,1]}`)

	rec := do(t, h, http.MethodPut, "/features/Point/10", `{"type":"Feature","geometry":{"type":"Point","coordinates":[3,3]},"properties":{}}`)
	assert.Equal(t, rec.Code, http.StatusNoContent)
	e, _ := sh.Get(shapes.KindLineString, "0__10")
	assert.Equal(t, e.Geometry.(orb.LineString), orb.LineString{{0, 0}, {3, 3}})

	rec = do(t, h, http.MethodPatch, "/features/Point/10/properties", `{"name":"stop","forward":"bogus"}`)
	assert.Equal(t, rec.Code, http.StatusNoContent)
	p, _ := sh.Get(shapes.KindPoint, 10)
	assert.Equal(t, p.Properties["name"], "stop")
	assert.Equal(t, p.Properties["forward"], 0)

	rec = do(t, h, http.MethodPatch, "/features/Point/99/properties", `{"name":"x"}`)
	assert.Equal(t, rec.Code, http.StatusNotFound)
	rec = do(t, h, http.MethodDelete, "/features/Hexagon/1", "")
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = do(t, h, http.MethodDelete, "/features/Point", "")
	assert.Equal(t, rec.Code, http.StatusNoContent)
	assert.Equal(t, sh.Total(), 0)
}

func TestOptionalBackends(t *testing.T) {
	h := BuildRoutes(shapes.New(), nil, nil, nil)
	assert.Equal(t, do(t, h, http.MethodPost, "/persist/__KOJI", "").Code, http.StatusServiceUnavailable)
	assert.Equal(t, do(t, h, http.MethodPost, "/restore/__KOJI", "").Code, http.StatusServiceUnavailable)
	assert.Equal(t, do(t, h, http.MethodPost, "/export/convert", `{}`).Code, http.StatusServiceUnavailable)
	assert.Equal(t, do(t, h, http.MethodPost, "/import/convert", `{}`).Code, http.StatusServiceUnavailable)
	assert.Equal(t, do(t, h, http.MethodGet, "/persist", "").Code, http.StatusServiceUnavailable)
	assert.Equal(t, do(t, h, http.MethodGet, "/cache?source=__KOJI", "").Code, http.StatusServiceUnavailable)
	assert.Equal(t, do(t, h, http.MethodGet, "/cache/Polygon/a", "").Code, http.StatusServiceUnavailable)
}

func TestImportConvert(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"name":"yard","type":"AutoQuest"}}
		]}}`))
	}))
	defer srv.Close()

	sh := shapes.New()
	cache := dbcache.NewLRU(16, 0)
	h := BuildRoutes(sh, nil, cache, convert.New(srv.URL, nil))

	rec := do(t, h, http.MethodPost, "/import/convert?source=__SCANNER", `[{"name":"yard","path":[[0,0],[1,0],[1,1]]}]`)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decodeResp(t, rec)["inserted"], 1.0)
	assert.Equal(t, got["return_type"], "featureCollection")
	assert.Equal(t, len(got["area"].([]any)), 1)
	assert.Equal(t, sh.Len(shapes.KindPolygon), 1)
	assert.Equal(t, cache.Len(), 1)

	assert.Equal(t, do(t, h, http.MethodPost, "/import/convert", "").Code, http.StatusBadRequest)
}

func TestExportConvert(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":"ok"}`))
	}))
	defer srv.Close()

	sh := shapes.New()
	poly := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	poly.ID = "p"
	pt := geojson.NewFeature(orb.Point{5, 5})
	pt.ID = "pt"
	sh.Add([]*geojson.Feature{poly, pt}, "")
	h := BuildRoutes(sh, nil, nil, convert.New(srv.URL, nil))

	rec := do(t, h, http.MethodPost, "/export/convert", `{"return_type":"text","simplify":true}`)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, decodeResp(t, rec)["data"], "ok")
	assert.Equal(t, got["return_type"], "text")
	assert.Equal(t, got["simplify"], true)
	area := got["area"].(map[string]any)
	assert.Equal(t, len(area["features"].([]any)), 1)
}

func TestImportShapefile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stops.shp")
	w, err := shp.Create(path, shp.POINT)
	assert.Equal(t, err, nil)
	assert.Equal(t, w.SetFields([]shp.Field{shp.StringField("name", 16)}), nil)
	row := w.Write(&shp.Point{X: 1, Y: 2})
	_ = w.WriteAttribute(int(row), 0, "depot")
	w.Close()
	assert.Equal(t, os.Rename(filepath.Join(dir, "stopsdbf"), filepath.Join(dir, "stops.dbf")), nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, ext := range map[string]string{"shp": ".shp", "dbf": ".dbf"} {
		part, err := mw.CreateFormFile(field, "stops"+ext)
		assert.Equal(t, err, nil)
		f, err := os.Open(filepath.Join(dir, "stops"+ext))
		assert.Equal(t, err, nil)
		_, _ = io.Copy(part, f)
		f.Close()
	}
	mw.Close()

	sh := shapes.New()
	h := BuildRoutes(sh, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/import/shapefile?source=__SHP", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, sh.IDs(shapes.KindPoint), []string{"depot__SHP"})
}
