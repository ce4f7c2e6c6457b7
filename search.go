package spaces

import (
	"context"
	"fmt"
	"runtime"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/geodatahub/spaces/grid"
	"github.com/geodatahub/spaces/hub"
)

// SearchOptions tune a geometry search.
type SearchOptions struct {
	// Radius widens the search by this many meters around the geometry.
	Radius int

	Tags      []string
	Limit     int
	Params    map[string]string
	Selection []string
	SkipCache bool

	// Divide splits the geometry into a grid of cells and queries each
	// cell separately, for geometries whose single-query result would be
	// too large. Results are merged and deduplicated by feature id; when
	// overlapping cells return the same id, the occurrence arriving last
	// wins, and result order is the order ids were first seen.
	Divide bool

	// CellWidth is the approximate cell size used with Divide, in Unit.
	// Zero picks a quarter of the geometry's bounding box diagonal.
	CellWidth float64
	Unit      grid.Unit

	// ChunkSize is the number of cells one worker queries per dispatch.
	ChunkSize int

	// Workers caps the fan-out pool. Defaults to runtime.GOMAXPROCS(0).
	Workers int
}

func (o SearchOptions) spatialParams() hub.SpatialParams {
	return hub.SpatialParams{
		SearchParams: hub.SearchParams{
			Tags:      o.Tags,
			Limit:     o.Limit,
			Params:    o.Params,
			Selection: o.Selection,
			SkipCache: o.SkipCache,
		},
		Radius: o.Radius,
	}
}

// SpatialSearchGeometry returns the features intersecting (or within
// Radius meters of) the given geometry.
//
// Without Divide this is a single remote call. With Divide the geometry
// is split via grid.Divide and one search per cell is dispatched across a
// worker pool; a collector merges the per-cell results and deduplicates
// them by feature id. Cells returning no features contribute nothing. Any
// failing sub-query aborts the whole search.
func (s *Space) SpatialSearchGeometry(ctx context.Context, geom orb.Geometry, opts SearchOptions) ([]*geojson.Feature, error) {
	if !opts.Divide {
		fc, err := s.client.PostSpatial(ctx, s.info.ID, geom, opts.spatialParams())
		if err != nil {
			return nil, err
		}
		return fc.Features, nil
	}

	cells, err := grid.Divide(geom, opts.CellWidth, opts.Unit)
	if err != nil {
		return nil, err
	}
	s.log.Info("spaces: geometry divided", "space", s.info.ID, "cells", len(cells))
	if len(cells) == 0 {
		return nil, nil
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// The collector goroutine owns the merged result and the id dedup,
	// so workers never share mutable state.
	results := make(chan []*geojson.Feature)
	done := make(chan struct{})
	var merged []*geojson.Feature
	go func() {
		defer close(done)
		index := make(map[string]int)
		for batch := range results {
			for _, f := range batch {
				if f.ID == nil {
					merged = append(merged, f)
					continue
				}
				id := fmt.Sprint(f.ID)
				if at, seen := index[id]; seen {
					merged[at] = f
					continue
				}
				index[id] = len(merged)
				merged = append(merged, f)
			}
		}
	}()

	params := opts.spatialParams()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(cells); start += chunkSize {
		dispatch := cells[start:min(start+chunkSize, len(cells))]
		g.Go(func() error {
			for _, cell := range dispatch {
				fc, err := s.client.PostSpatial(gctx, s.info.ID, cell, params)
				if err != nil {
					return err
				}
				if len(fc.Features) == 0 {
					continue
				}
				select {
				case results <- fc.Features:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	err = g.Wait()
	close(results)
	<-done
	if err != nil {
		return nil, err
	}
	return merged, nil
}
