// Package convert turns common geodata formats (GeoJSON, CSV, WKT, GPX,
// FlatGeobuf) into the geojson feature collections the upload pipeline
// consumes, and can export collections back to FlatGeobuf.
package convert

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Common errors returned by this package.
var (
	ErrNotFeatureData = errors.New("convert: data is not a feature or feature collection")
	ErrMissingColumn  = errors.New("convert: required column not found in header")
)

// ReadGeoJSON decodes a GeoJSON document holding either a Feature or a
// FeatureCollection.
func ReadGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("convert: parse geojson: %w", err)
	}
	switch probe.Type {
	case "FeatureCollection":
		return geojson.UnmarshalFeatureCollection(data)
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil
	default:
		return nil, fmt.Errorf("%w: type %q", ErrNotFeatureData, probe.Type)
	}
}

// ReadWKT parses a WKT geometry into a feature collection. A
// GEOMETRYCOLLECTION becomes one feature per member geometry.
func ReadWKT(data []byte) (*geojson.FeatureCollection, error) {
	geom, err := wkt.Unmarshal(string(data))
	if err != nil {
		return nil, fmt.Errorf("convert: parse wkt: %w", err)
	}
	fc := geojson.NewFeatureCollection()
	if coll, ok := geom.(orb.Collection); ok {
		for _, g := range coll {
			fc.Append(geojson.NewFeature(g))
		}
		return fc, nil
	}
	fc.Append(geojson.NewFeature(geom))
	return fc, nil
}

// CSVOptions name the columns a CSV file keeps its coordinates and
// feature ids in. AltColumn is optional; every column not named here
// becomes a feature property.
type CSVOptions struct {
	LonColumn string
	LatColumn string
	IDColumn  string
	AltColumn string
	// Comma overrides the field delimiter (default ',').
	Comma rune
}

// ReadCSV converts rows of a CSV file into point features.
func ReadCSV(r io.Reader, opts CSVOptions) (*geojson.FeatureCollection, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("convert: read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	lon, ok := cols[opts.LonColumn]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, opts.LonColumn)
	}
	lat, ok := cols[opts.LatColumn]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, opts.LatColumn)
	}
	id, ok := cols[opts.IDColumn]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, opts.IDColumn)
	}
	alt := -1
	if opts.AltColumn != "" {
		if alt, ok = cols[opts.AltColumn]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, opts.AltColumn)
		}
	}

	fc := geojson.NewFeatureCollection()
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("convert: read csv: %w", err)
		}
		x, err := strconv.ParseFloat(row[lon], 64)
		if err != nil {
			return nil, fmt.Errorf("convert: csv line %d: bad longitude %q", line, row[lon])
		}
		y, err := strconv.ParseFloat(row[lat], 64)
		if err != nil {
			return nil, fmt.Errorf("convert: csv line %d: bad latitude %q", line, row[lat])
		}

		f := geojson.NewFeature(orb.Point{x, y})
		f.ID = row[id]
		for i, name := range header {
			if i == lon || i == lat || i == id || i == alt {
				continue
			}
			f.Properties[name] = row[i]
		}
		if alt >= 0 {
			f.Properties[opts.AltColumn] = row[alt]
		}
		fc.Append(f)
	}
	return fc, nil
}
