package dbcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func feature(id any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{1, 2})
	f.ID = id
	return f
}

func TestLRUEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, 0)
	assert.Equal(t, c.Record(ctx, Entry{Source: "__KOJI", Feature: feature("a")}), nil)
	assert.Equal(t, c.Record(ctx, Entry{Source: "__KOJI", Feature: feature("b")}), nil)

	_, ok, _ := c.Lookup(ctx, "a")
	assert.Equal(t, ok, true)
	assert.Equal(t, c.Record(ctx, Entry{Source: "__SCANNER", Feature: feature("c")}), nil)

	_, ok, _ = c.Lookup(ctx, "b")
	assert.Equal(t, ok, false)
	_, ok, _ = c.Lookup(ctx, "a")
	assert.Equal(t, ok, true)
	assert.Equal(t, c.Len(), 2)
}

func TestLRUExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := NewLRU(8, 60)
	c.now = func() time.Time { return now }
	_ = c.Record(ctx, Entry{Source: "__KOJI", Feature: feature(10.0)})

	e, ok, _ := c.Lookup(ctx, "10")
	assert.Equal(t, ok, true)
	assert.Equal(t, e.Source, "__KOJI")

	now = now.Add(61 * time.Second)
	_, ok, _ = c.Lookup(ctx, "10")
	assert.Equal(t, ok, false)
	assert.Equal(t, c.Len(), 0)
}

func TestLRURejectsAnonymous(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(0, 0)
	assert.Equal(t, c.Record(ctx, Entry{}), ErrNoFeature)
	assert.Equal(t, c.Record(ctx, Entry{Feature: feature(nil)}), ErrNoID)
}

func TestLRUBySource(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8, 0)
	n := RecordAll(ctx, c, "__KOJI", []*geojson.Feature{feature("a"), nil, feature("b")})
	assert.Equal(t, n, 2)
	_ = c.Record(ctx, Entry{Source: "__SCANNER", Feature: feature("c")})

	got, err := c.BySource(ctx, "__KOJI")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].Key(), "Point:b")
	assert.Equal(t, got[0].Kind, "Point")

	_ = c.Forget(ctx, KeyOf("Point", "a"))
	got, _ = c.BySource(ctx, "__KOJI")
	assert.Equal(t, len(got), 1)
	assert.Equal(t, len(Collection(got).Features), 1)
}

func TestKeyOfSeparatesKinds(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8, 0)
	poly := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	poly.ID = "a"
	RecordAll(ctx, c, "__KOJI", []*geojson.Feature{feature("a"), poly})
	assert.Equal(t, c.Len(), 2)

	_ = c.Forget(ctx, KeyOf("Polygon", "a"))
	_, ok, _ := c.Lookup(ctx, KeyOf("Point", "a"))
	assert.Equal(t, ok, true)
	assert.Equal(t, KeyOf("", "a"), "a")
}

type memBack struct {
	items map[string]Entry
	fail  bool
}

func (m *memBack) Record(_ context.Context, e Entry) error {
	if m.fail {
		return errors.New("down")
	}
	m.items[e.Key()] = e
	return nil
}

func (m *memBack) Lookup(_ context.Context, id string) (Entry, bool, error) {
	e, ok := m.items[id]
	return e, ok, nil
}

func (m *memBack) Forget(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func (m *memBack) BySource(_ context.Context, source string) ([]Entry, error) {
	if m.fail {
		return nil, errors.New("down")
	}
	var out []Entry
	for _, e := range m.items {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestLayeredBackfillsFront(t *testing.T) {
	ctx := context.Background()
	back := &memBack{items: map[string]Entry{"x": {Source: "__KOJI", Feature: feature("x")}}}
	l := &Layered{Front: NewLRU(4, 0), Back: back}

	e, ok, err := l.Lookup(ctx, "x")
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, e.Source, "__KOJI")
	assert.Equal(t, l.Front.Len(), 1)

	back.fail = true
	assert.Equal(t, l.Record(ctx, Entry{Source: "__KOJI", Feature: feature("y")}), nil)
	_, ok, _ = l.Front.Lookup(ctx, "y")
	assert.Equal(t, ok, true)

	_ = l.Forget(ctx, "x")
	_, ok, _ = l.Lookup(ctx, "x")
	assert.Equal(t, ok, false)
}

func TestLayeredBySourceFallsBack(t *testing.T) {
	ctx := context.Background()
	back := &memBack{items: map[string]Entry{"x": {Source: "__KOJI", Feature: feature("x")}}}
	l := &Layered{Front: NewLRU(4, 0), Back: back}
	_ = l.Front.Record(ctx, Entry{Source: "__KOJI", Feature: feature("y")})
	_ = l.Front.Record(ctx, Entry{Source: "__KOJI", Feature: feature("z")})

	got, err := l.BySource(ctx, "__KOJI")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].Key(), "x")

	back.fail = true
	got, err = l.BySource(ctx, "__KOJI")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 2)
}
