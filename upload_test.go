package spaces

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// putRecorder collects the feature counts of every replace call.
type putRecorder struct {
	mu      sync.Mutex
	batches []int
}

func (pr *putRecorder) handle(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/hub/spaces/test-space/features", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		fc, err := geojson.UnmarshalFeatureCollection(body)
		require.NoError(t, err)

		pr.mu.Lock()
		pr.batches = append(pr.batches, len(fc.Features))
		pr.mu.Unlock()

		_, _ = w.Write(body)
	}
}

func (pr *putRecorder) sorted() []int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	out := append([]int(nil), pr.batches...)
	sort.Ints(out)
	return out
}

func TestAddFeaturesSingleCall(t *testing.T) {
	rec := &putRecorder{}
	s := newTestSpace(t, rec.handle(t))

	res, err := s.AddFeatures(context.Background(), collectionOf(makeFeatures(3)), UploadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Uploaded)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, 0, res.Skipped)
	require.NotNil(t, res.Collection)
	assert.Len(t, res.Collection.Features, 3)
	assert.Equal(t, []int{3}, rec.sorted())
}

func TestAddFeaturesChunked(t *testing.T) {
	rec := &putRecorder{}
	s := newTestSpace(t, rec.handle(t))

	res, err := s.AddFeatures(context.Background(), collectionOf(makeFeatures(9)), UploadOptions{
		BatchSize: 5,
		Workers:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, 9, res.Uploaded)
	assert.Equal(t, 2, res.Calls)
	assert.Nil(t, res.Collection)
	assert.Equal(t, []int{4, 5}, rec.sorted(), "padding must be stripped before sending")
}

func TestAddFeaturesLargeCollection(t *testing.T) {
	rec := &putRecorder{}
	s := newTestSpace(t, rec.handle(t))

	res, err := s.AddFeatures(context.Background(), collectionOf(makeFeatures(180)), UploadOptions{
		BatchSize: 100,
		ChunkSize: 2,
		Workers:   4,
	})
	require.NoError(t, err)

	assert.Equal(t, 180, res.Uploaded)
	assert.Equal(t, 2, res.Calls)
	assert.Equal(t, []int{80, 100}, rec.sorted())
}

func TestAddFeaturesSkipsDuplicates(t *testing.T) {
	rec := &putRecorder{}
	s := newTestSpace(t, rec.handle(t))

	features := makeFeatures(4)
	features[2].ID = features[0].ID

	res, err := s.AddFeatures(context.Background(), collectionOf(features), UploadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Uploaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []int{3}, rec.sorted())
}

func TestAddFeaturesGlobalDedup(t *testing.T) {
	rec := &putRecorder{}
	s := newTestSpace(t, rec.handle(t))

	// The duplicate pair lands in different groups, so only a global
	// pre-pass catches it.
	features := makeFeatures(6)
	features[5].ID = features[0].ID

	res, err := s.AddFeatures(context.Background(), collectionOf(features), UploadOptions{
		BatchSize:   3,
		GlobalDedup: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Uploaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []int{2, 3}, rec.sorted())
}

func TestAddFeaturesPropertyIDError(t *testing.T) {
	s := newTestSpace(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no upload expected when id synthesis fails")
	})

	features := makeFeatures(2)
	features[1].ID = nil // no id and no properties to compose one from

	_, err := s.AddFeatures(context.Background(), collectionOf(features), UploadOptions{
		IDProperties: []string{"country"},
	})
	assert.ErrorIs(t, err, ErrNoProperties)
}

func TestAddFeaturesServerError(t *testing.T) {
	s := newTestSpace(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := s.AddFeatures(context.Background(), collectionOf(makeFeatures(30)), UploadOptions{
		BatchSize: 10,
	})
	require.Error(t, err)
}
