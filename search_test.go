package spaces

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodatahub/spaces/grid"
)

func spatialResponse(ids ...string) []byte {
	fc := geojson.NewFeatureCollection()
	for _, id := range ids {
		f := geojson.NewFeature(orb.Point{0, 0})
		f.ID = id
		fc.Append(f)
	}
	data, _ := fc.MarshalJSON()
	return data
}

func TestSpatialSearchGeometryUndivided(t *testing.T) {
	var calls atomic.Int32
	s := newTestSpace(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hub/spaces/test-space/spatial", r.URL.Path)
		assert.Equal(t, "500", r.URL.Query().Get("radius"))
		calls.Add(1)
		_, _ = w.Write(spatialResponse("a", "b"))
	})

	features, err := s.SpatialSearchGeometry(context.Background(), orb.Point{13.4, 52.5}, SearchOptions{
		Radius: 500,
	})
	require.NoError(t, err)
	assert.Len(t, features, 2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSpatialSearchGeometryDividedDedup(t *testing.T) {
	// Every cell reports the same feature; the merged result must carry
	// it exactly once however many cells were queried.
	var calls atomic.Int32
	s := newTestSpace(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		calls.Add(1)
		_, _ = w.Write(spatialResponse("AFG"))
	})

	poly := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}.ToPolygon()
	features, err := s.SpatialSearchGeometry(context.Background(), poly, SearchOptions{
		Divide:    true,
		CellWidth: 500,
		Unit:      grid.Kilometers,
		Workers:   4,
	})
	require.NoError(t, err)

	require.Greater(t, calls.Load(), int32(1), "division should fan out over several cells")
	require.Len(t, features, 1)
	assert.Equal(t, "AFG", features[0].ID)
}

func TestSpatialSearchGeometryDividedError(t *testing.T) {
	s := newTestSpace(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	poly := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}.ToPolygon()
	_, err := s.SpatialSearchGeometry(context.Background(), poly, SearchOptions{
		Divide:    true,
		CellWidth: 500,
		Unit:      grid.Kilometers,
	})
	require.Error(t, err)
}

func TestSpatialSearchGeometryNilGeometry(t *testing.T) {
	s := newTestSpace(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a nil geometry")
	})

	features, err := s.SpatialSearchGeometry(context.Background(), nil, SearchOptions{Divide: true})
	require.NoError(t, err)
	assert.Empty(t, features)
}
