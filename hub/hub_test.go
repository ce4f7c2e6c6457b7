package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Token: "test-token", Retry: fastRetry(3)})
}

func TestRequestHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/geo+json", r.Header.Get("Content-Type"))
		assert.Equal(t, "go-spaces", r.URL.Query().Get("clientId"))
		_, _ = w.Write([]byte(`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`))
	})

	f := geojson.NewFeature(orb.Point{1, 2})
	_, err := c.PutFeature(context.Background(), "s", "f1", f, nil, nil)
	require.NoError(t, err)
}

func TestAPIErrorOnNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such feature", http.StatusNotFound)
	})

	_, err := c.GetFeature(context.Background(), "s", "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "no such feature")
	assert.False(t, IsRateLimited(err))
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	})

	_, err := c.Search(context.Background(), "s", SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := c.Search(context.Background(), "s", SearchParams{})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, int32(3), calls.Load())
}

func TestOtherErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	})

	_, err := c.Search(context.Background(), "s", SearchParams{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIterate(t *testing.T) {
	pageOne := []string{"a", "b", "c"}
	pageTwo := []string{"d"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hub/spaces/s/iterate", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		ids := pageOne
		handle := `"h1"`
		if r.URL.Query().Get("handle") != "" {
			assert.Equal(t, "h1", r.URL.Query().Get("handle"))
			ids = pageTwo
			handle = "null"
		}
		w.Header().Set("Content-Type", "application/geo+json")
		body := `{"handle":` + handle + `,"features":[`
		for i, id := range ids {
			if i > 0 {
				body += ","
			}
			body += `{"type":"Feature","id":"` + id + `","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}`
		}
		body += `]}`
		_, _ = w.Write([]byte(body))
	})

	var visited []string
	err := c.Iterate(context.Background(), "s", 3, func(f *geojson.Feature) error {
		visited = append(visited, f.ID.(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, visited)
}

func TestIterateCallbackErrorStops(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"handle":"h1","features":[{"type":"Feature","id":"a","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}},{"type":"Feature","id":"b","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`))
	})

	wantErr := errors.New("stop here")
	err := c.Iterate(context.Background(), "s", 2, func(f *geojson.Feature) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchParamsQuery(t *testing.T) {
	q := SearchParams{
		Tags:      []string{"a", "b"},
		Limit:     10,
		Params:    map[string]string{"p.capacity=gte": "10"},
		Selection: []string{"p.name", "p.capacity"},
		SkipCache: true,
	}.query()

	assert.Equal(t, "a,b", q.Get("tags"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "10", q.Get("p.capacity=gte"))
	assert.Equal(t, "p.name,p.capacity", q.Get("selection"))
	assert.Equal(t, "true", q.Get("skipCache"))
}

func TestSpatialParamsValidation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a search center")
	})

	_, err := c.Spatial(context.Background(), "s", SpatialParams{})
	require.Error(t, err)
}

func TestSpatialByReference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "other", r.URL.Query().Get("refSpaceId"))
		assert.Equal(t, "f9", r.URL.Query().Get("refFeatureId"))
		assert.Equal(t, "100", r.URL.Query().Get("radius"))
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	})

	_, err := c.Spatial(context.Background(), "s", SpatialParams{
		RefSpaceID:   "other",
		RefFeatureID: "f9",
		Radius:       100,
	})
	require.NoError(t, err)
}

func TestCreateSpace(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hub/spaces", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"fresh","title":"Fresh"}`))
	})

	info, err := c.CreateSpace(context.Background(), SpaceDefinition{Title: "Fresh"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", info.ID)
}

func TestGetStatistics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hub/spaces/s/statistics", r.URL.Path)
		_, _ = w.Write([]byte(`{"count":{"value":42,"estimated":true},"byteSize":{"value":1024},"bbox":{"value":[0,1,2,3]}}`))
	})

	stats, err := c.GetStatistics(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.Count.Value)
	assert.True(t, stats.Count.Estimated)
	assert.Equal(t, []float64{0, 1, 2, 3}, stats.BBox.Value)
}
