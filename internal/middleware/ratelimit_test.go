package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLimitRejectsOverCapacity(t *testing.T) {
	now := time.Unix(100, 0)
	tb := NewTokenBucket(2)
	tb.now = func() time.Time { return now }
	h := Limit(tb, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 4)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geojson", nil))
		codes = append(codes, rec.Code)
	}
	now = now.Add(time.Second)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geojson", nil))
	codes = append(codes, rec.Code)

	assert.Equal(t, codes, []int{200, 200, 429, 200})
}

func TestBucketRefillsWithinSecond(t *testing.T) {
	now := time.Unix(100, 0)
	tb := NewTokenBucket(4)
	tb.now = func() time.Time { return now }

	for i := 0; i < 4; i++ {
		assert.Equal(t, tb.allow(), true)
	}
	assert.Equal(t, tb.allow(), false)

	now = now.Add(250 * time.Millisecond)
	assert.Equal(t, tb.allow(), true)
	assert.Equal(t, tb.allow(), false)

	now = now.Add(10 * time.Second)
	for i := 0; i < 4; i++ {
		assert.Equal(t, tb.allow(), true)
	}
	assert.Equal(t, tb.allow(), false)
}

func TestWrapDisabled(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	called := false
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, called, true)
}
