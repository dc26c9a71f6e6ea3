package shapes

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestKeyNormalizesNumbers(t *testing.T) {
	assert.Equal(t, Key(10), "10")
	assert.Equal(t, Key(10.0), "10")
	assert.Equal(t, Key("10"), "10")
	assert.Equal(t, Key(json.Number("20")), "20")
	assert.Equal(t, Key(2.5), "2.5")
	assert.Equal(t, Key(nil), "")
}

func TestEdgeIDRoundTrip(t *testing.T) {
	id := EdgeID(0, "B")
	assert.Equal(t, id, "0__B")
	s, e, ok := SplitEdgeID(id)
	assert.Equal(t, ok, true)
	assert.Equal(t, s, "0")
	assert.Equal(t, e, "B")

	_, _, ok = SplitEdgeID(VertexID("route", 2))
	assert.Equal(t, ok, false)
	_, _, ok = SplitEdgeID("plain")
	assert.Equal(t, ok, false)
}

func TestSplitIndexed(t *testing.T) {
	parent, idx, ok := splitIndexed(VertexID("my_route", 3), vertexSep)
	assert.Equal(t, ok, true)
	assert.Equal(t, parent, "my_route")
	assert.Equal(t, idx, 3)

	parent, idx, ok = splitIndexed(MemberID("gc_a", 1), memberSep)
	assert.Equal(t, ok, true)
	assert.Equal(t, parent, "gc_a")
	assert.Equal(t, idx, 1)

	_, _, ok = splitIndexed("gc_x", memberSep)
	assert.Equal(t, ok, false)
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}})
	assert.Equal(t, ok, true)
	assert.Equal(t, k, KindPolygon)

	k, ok = ParseKind("multipolygon")
	assert.Equal(t, ok, true)
	assert.Equal(t, k, KindMultiPolygon)

	_, ok = ParseKind("Circle")
	assert.Equal(t, ok, false)
	_, ok = KindOf(nil)
	assert.Equal(t, ok, false)
}

func TestNumericIDsShareKey(t *testing.T) {
	s := New()
	f := geojson.NewFeature(orb.Point{1, 1})
	f.ID = 10.0
	s.Add([]*geojson.Feature{f}, "")

	_, ok := s.Get(KindPoint, 10)
	assert.Equal(t, ok, true)
	_, ok = s.Get(KindPoint, "10")
	assert.Equal(t, ok, true)
	assert.Equal(t, s.NewPointID(10), 11)
}
