package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestRowsSkipsUnsaveable(t *testing.T) {
	poly := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	poly.ID = "park__KOJI"
	pt := geojson.NewFeature(orb.Point{1, 2})
	pt.ID = 10.0
	anon := geojson.NewFeature(orb.Point{3, 4})
	fc := geojson.NewFeatureCollection().Append(poly).Append(anon).Append(pt)

	rs, err := rows(fc)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(rs), 2)
	assert.Equal(t, rs[0].kind, "Polygon")
	assert.Equal(t, rs[0].id, "park__KOJI")
	assert.Equal(t, rs[1].id, "10")
	assert.Equal(t, rs[1].seq, 2)

	back, err := geojson.UnmarshalFeature(rs[1].body)
	assert.Equal(t, err, nil)
	assert.Equal(t, back.Geometry.(orb.Point), orb.Point{1, 2})
	assert.Equal(t, json.Valid(rs[0].body), true)
}

func TestEmptySourceRejected(t *testing.T) {
	s := &Store{}
	_, err := s.SaveCollection(context.Background(), "", nil)
	assert.Equal(t, err, ErrNoSource)
	_, err = s.LoadCollection(context.Background(), "")
	assert.Equal(t, err, ErrNoSource)
}
