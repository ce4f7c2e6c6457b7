package spaces

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of features sent per replace call; the
// hub rejects oversized payloads, so larger collections are chunked.
const DefaultBatchSize = 2000

// UploadOptions tune a bulk AddFeatures call. The zero value uploads in
// batches of DefaultBatchSize with one group per worker dispatch.
type UploadOptions struct {
	AddTags    []string
	RemoveTags []string

	// BatchSize is the feature count per replace call. Collections at or
	// below this size are uploaded in a single synchronous call.
	BatchSize int

	// ChunkSize is the number of groups one worker takes per dispatch.
	// It trades scheduling overhead for balance and does not affect
	// which features are uploaded.
	ChunkSize int

	// Workers caps the upload pool. Defaults to runtime.GOMAXPROCS(0).
	Workers int

	// IDProperties switches synthetic id generation from content hashing
	// to composing the named property values.
	IDProperties []string

	// GlobalDedup deduplicates the whole collection in one pass before
	// chunking. Without it each group is deduplicated independently, so
	// duplicate ids split across groups are not caught (the hub then
	// applies last-write-wins per id).
	GlobalDedup bool
}

// UploadResult summarizes a bulk upload.
type UploadResult struct {
	// Uploaded counts features actually sent, after dedup and padding removal.
	Uploaded int
	// Calls is the number of replace calls made.
	Calls int
	// Skipped counts duplicate-id features dropped before sending.
	Skipped int
	// Collection is the stored representation, only for single-call uploads.
	Collection *geojson.FeatureCollection
}

// AddFeatures uploads a feature collection to the space.
//
// Collections not larger than BatchSize are deduplicated and sent with one
// replace call. Larger ones are split into BatchSize groups distributed
// over a worker pool; each group is deduplicated and uploaded
// independently, in its original relative order. The first failing group
// aborts the call; groups uploaded before the failure stay on the hub
// (replace is idempotent by id, so re-running the upload is safe).
func (s *Space) AddFeatures(ctx context.Context, fc *geojson.FeatureCollection, opts UploadOptions) (*UploadResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	features := fc.Features
	res := &UploadResult{}
	if opts.GlobalDedup {
		registry := make(map[string]*geojson.Feature, len(features))
		kept, err := dedupeFeatures(features, opts.IDProperties, registry, s.log)
		if err != nil {
			return nil, err
		}
		res.Skipped = len(features) - len(kept)
		features = kept
	}

	if len(features) <= batchSize {
		kept := features
		if !opts.GlobalDedup {
			registry := make(map[string]*geojson.Feature, len(features))
			deduped, err := dedupeFeatures(features, opts.IDProperties, registry, s.log)
			if err != nil {
				return nil, err
			}
			res.Skipped = len(features) - len(deduped)
			kept = deduped
		}
		stored, err := s.client.PutFeatures(ctx, s.info.ID, collectionOf(kept), opts.AddTags, opts.RemoveTags)
		if err != nil {
			return nil, err
		}
		res.Uploaded = len(kept)
		res.Calls = 1
		res.Collection = stored
		return res, nil
	}

	groups := chunkFeatures(features, batchSize)

	var uploaded, skipped, calls atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(groups); start += chunkSize {
		dispatch := groups[start:min(start+chunkSize, len(groups))]
		g.Go(func() error {
			for _, group := range dispatch {
				n, dropped, err := s.uploadGroup(gctx, group, opts)
				if err != nil {
					return err
				}
				uploaded.Add(int64(n))
				skipped.Add(int64(dropped))
				calls.Add(1)
				s.log.Info("spaces: features processed", "space", s.info.ID, "count", n)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Uploaded = int(uploaded.Load())
	res.Skipped += int(skipped.Load())
	res.Calls = int(calls.Load())
	s.log.Info("spaces: upload finished", "space", s.info.ID, "uploaded", res.Uploaded)
	return res, nil
}

// uploadGroup strips padding, deduplicates within the group and sends one
// replace call. Returns the number of features sent and dropped.
func (s *Space) uploadGroup(ctx context.Context, group []*geojson.Feature, opts UploadOptions) (sent, dropped int, err error) {
	kept := compactGroup(group)
	if !opts.GlobalDedup {
		registry := make(map[string]*geojson.Feature, len(kept))
		deduped, err := dedupeFeatures(kept, opts.IDProperties, registry, s.log)
		if err != nil {
			return 0, 0, err
		}
		dropped = len(kept) - len(deduped)
		kept = deduped
	}
	if len(kept) == 0 {
		return 0, dropped, nil
	}
	if _, err := s.client.PutFeatures(ctx, s.info.ID, collectionOf(kept), opts.AddTags, opts.RemoveTags); err != nil {
		return 0, dropped, err
	}
	return len(kept), dropped, nil
}

func collectionOf(features []*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	return fc
}
