// 包 convert：导出转换服务客户端
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/metrics"

	"github.com/paulmach/orb/geojson"
)

const dataPath = "/api/v1/convert/data"

var ErrNoEndpoint = errors.New("convert: endpoint not configured")

// Request：转换请求体
// 背景：area 可以是要素、要素集合或文本格式的围栏；return_type 决定输出格式（如 featureCollection、poracle、text）。
type Request struct {
	Area         any    `json:"area"`
	ReturnType   string `json:"return_type"`
	Simplify     bool   `json:"simplify"`
	GeometryType string `json:"geometry_type,omitempty"`
}

type response struct {
	Data json.RawMessage `json:"data"`
}

type Client struct {
	base   string
	client *http.Client
}

// New：base 为转换服务根地址；client 为空时使用 10s 超时的默认客户端
func New(base string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), client: client}
}

// NewFromEnv：读取 CONVERT_URL 与 CONVERT_TIMEOUT_SEC；未配置地址时返回 nil
func NewFromEnv() *Client {
	base := os.Getenv("CONVERT_URL")
	if base == "" {
		return nil
	}
	timeout := 10
	if v := os.Getenv("CONVERT_TIMEOUT_SEC"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			timeout = n
		}
	}
	return New(base, &http.Client{Timeout: time.Duration(timeout) * time.Second})
}

// Convert：提交转换请求，返回响应中的 data 原文
// 约束：非 2xx 返回携带响应正文的错误，由上层决定如何提示
func (c *Client) Convert(ctx context.Context, r Request) (json.RawMessage, error) {
	if c == nil || c.base == "" {
		return nil, ErrNoEndpoint
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+dataPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	t0 := time.Now()
	metrics.ConvertRequestsTotal.Inc()
	logger.L().Debug("convert_req", "return_type", r.ReturnType, "simplify", r.Simplify, "geometry_type", r.GeometryType)
	resp, err := c.client.Do(req)
	if err != nil {
		logger.L().Error("convert_http_error", "err", err)
		metrics.ConvertFailTotal.Inc()
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ConvertFailTotal.Inc()
		return nil, err
	}
	dur := time.Since(t0).Milliseconds()
	metrics.ConvertDurationMs.Observe(float64(dur))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ConvertFailTotal.Inc()
		logger.L().Warn("convert_status", "status", resp.StatusCode, "duration_ms", dur)
		return nil, fmt.Errorf("convert: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.L().Error("convert_decode_error", "err", err)
		metrics.ConvertFailTotal.Inc()
		return nil, err
	}
	logger.L().Debug("convert_resp", "bytes", len(out.Data), "duration_ms", dur)
	return out.Data, nil
}

// FeatureCollection：以 featureCollection 返回格式转换并解码
func (c *Client) FeatureCollection(ctx context.Context, area any, simplify bool) (*geojson.FeatureCollection, error) {
	data, err := c.Convert(ctx, Request{Area: area, ReturnType: "featureCollection", Simplify: simplify})
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("convert: decode feature collection: %w", err)
	}
	return fc, nil
}
