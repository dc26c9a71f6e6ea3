package api

import "encoding/json"

// pointRequest：POST /points 与 POST /split/{edgeId} 的请求体
type pointRequest struct {
	Coordinates []float64      `json:"coordinates"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type modeRequest struct {
	Enabled bool `json:"enabled"`
}

// exportRequest：POST /export/convert 的请求体
// 约束：kinds 为空时导出 Polygon 与 MultiPolygon；simplify 缺省时取 SIMPLIFY_POLYGONS
type exportRequest struct {
	ReturnType   string   `json:"return_type"`
	Simplify     *bool    `json:"simplify,omitempty"`
	GeometryType string   `json:"geometry_type,omitempty"`
	Kinds        []string `json:"kinds,omitempty"`
	Source       string   `json:"source,omitempty"`
	CombineBy    string   `json:"combine_by,omitempty"`
}

type exportResult struct {
	Data json.RawMessage `json:"data"`
}

type routeState struct {
	Active string `json:"active"`
	First  string `json:"first"`
	Last   string `json:"last"`
	Points int    `json:"points"`
	Edges  int    `json:"edges"`
}

type errorBody struct {
	Error string `json:"error"`
}
