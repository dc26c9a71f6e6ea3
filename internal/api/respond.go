package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/shapes"

	"github.com/paulmach/orb/geojson"
)

const maxBody = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	b, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

// decodeFeatures：请求体可以是单个 Feature 或 FeatureCollection
func decodeFeatures(w http.ResponseWriter, r *http.Request) ([]*geojson.Feature, error) {
	b, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(b)
		if err != nil {
			return nil, err
		}
		return []*geojson.Feature{f}, nil
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(b)
		if err != nil {
			return nil, err
		}
		return fc.Features, nil
	}
	return nil, errors.New("expected Feature or FeatureCollection")
}

func kindParam(w http.ResponseWriter, r *http.Request) (shapes.Kind, bool) {
	k, ok := shapes.ParseKind(r.PathValue("kind"))
	if !ok {
		writeErr(w, http.StatusBadRequest, "unknown kind")
	}
	return k, ok
}

// parseKinds：逗号分隔的类型名；空串返回 nil 表示全部
func parseKinds(raw []string) ([]shapes.Kind, error) {
	var out []shapes.Kind
	for _, part := range raw {
		for _, name := range strings.Split(part, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			k, ok := shapes.ParseKind(name)
			if !ok {
				return nil, errors.New("unknown kind " + name)
			}
			out = append(out, k)
		}
	}
	return out, nil
}

func badRequest(w http.ResponseWriter, op string, err error) {
	logger.Component("api").Debug("bad_request", "op", op, "err", err)
	writeErr(w, http.StatusBadRequest, err.Error())
}
