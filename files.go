package spaces

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/geodatahub/spaces/convert"
)

// AddFeaturesGeoJSON uploads the contents of a GeoJSON document, either a
// Feature or a FeatureCollection.
func (s *Space) AddFeaturesGeoJSON(ctx context.Context, data []byte, opts UploadOptions) (*UploadResult, error) {
	fc, err := convert.ReadGeoJSON(data)
	if err != nil {
		return nil, err
	}
	return s.AddFeatures(ctx, fc, opts)
}

// AddFeaturesCSV uploads the rows of a CSV file as point features.
func (s *Space) AddFeaturesCSV(ctx context.Context, r io.Reader, csvOpts convert.CSVOptions, opts UploadOptions) (*UploadResult, error) {
	fc, err := convert.ReadCSV(r, csvOpts)
	if err != nil {
		return nil, err
	}
	return s.AddFeatures(ctx, fc, opts)
}

// AddFeaturesWKT uploads a WKT geometry, one feature per geometry.
func (s *Space) AddFeaturesWKT(ctx context.Context, data []byte, opts UploadOptions) (*UploadResult, error) {
	fc, err := convert.ReadWKT(data)
	if err != nil {
		return nil, err
	}
	return s.AddFeatures(ctx, fc, opts)
}

// AddFeaturesGPX uploads the waypoints, routes and track segments of a
// GPX document.
func (s *Space) AddFeaturesGPX(ctx context.Context, r io.Reader, opts UploadOptions) (*UploadResult, error) {
	fc, err := convert.ReadGPX(r)
	if err != nil {
		return nil, err
	}
	return s.AddFeatures(ctx, fc, opts)
}

// AddFeaturesFlatGeobuf uploads the features of a FlatGeobuf layer held
// in memory.
func (s *Space) AddFeaturesFlatGeobuf(ctx context.Context, data []byte, opts UploadOptions) (*UploadResult, error) {
	fc, err := convert.ReadFlatGeobuf(data)
	if err != nil {
		return nil, err
	}
	return s.AddFeatures(ctx, fc, opts)
}

// AddFeaturesFile uploads a geodata file, picking the decoder from the
// file extension. CSV files need column names, so they go through
// AddFeaturesCSV instead.
func (s *Space) AddFeaturesFile(ctx context.Context, path string, opts UploadOptions) (*UploadResult, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return s.AddFeaturesGeoJSON(ctx, data, opts)
	case ".wkt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return s.AddFeaturesWKT(ctx, data, opts)
	case ".gpx":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return s.AddFeaturesGPX(ctx, f, opts)
	case ".fgb":
		fc, err := convert.ReadFlatGeobufFile(path)
		if err != nil {
			return nil, err
		}
		return s.AddFeatures(ctx, fc, opts)
	default:
		return nil, fmt.Errorf("spaces: unsupported file extension %q", ext)
	}
}
