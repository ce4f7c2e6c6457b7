package convert

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGeoJSONCollection(t *testing.T) {
	data := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"a","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"name":"A"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{}}
	]}`)

	fc, err := ReadGeoJSON(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "a", fc.Features[0].ID)
	assert.Equal(t, orb.Point{3, 4}, fc.Features[1].Geometry)
}

func TestReadGeoJSONSingleFeature(t *testing.T) {
	data := []byte(`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"name":"solo"}}`)

	fc, err := ReadGeoJSON(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "solo", fc.Features[0].Properties["name"])
}

func TestReadGeoJSONWrongType(t *testing.T) {
	_, err := ReadGeoJSON([]byte(`{"type":"Point","coordinates":[1,2]}`))
	assert.ErrorIs(t, err, ErrNotFeatureData)

	_, err = ReadGeoJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestReadWKT(t *testing.T) {
	fc, err := ReadWKT([]byte("POINT (30 10)"))
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.Point{30, 10}, fc.Features[0].Geometry)
}

func TestReadWKTCollection(t *testing.T) {
	fc, err := ReadWKT([]byte("GEOMETRYCOLLECTION (POINT (1 2), LINESTRING (0 0, 5 5))"))
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{1, 2}, fc.Features[0].Geometry)
	assert.IsType(t, orb.LineString{}, fc.Features[1].Geometry)
}

func TestReadWKTInvalid(t *testing.T) {
	_, err := ReadWKT([]byte("POINT OF NO RETURN"))
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	csv := strings.NewReader(
		"city,longitude,latitude,ident,pop\n" +
			"Berlin,13.4,52.5,ber,3600000\n" +
			"Paris,2.35,48.86,par,2100000\n")

	fc, err := ReadCSV(csv, CSVOptions{
		LonColumn: "longitude",
		LatColumn: "latitude",
		IDColumn:  "ident",
	})
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	assert.Equal(t, "ber", f.ID)
	assert.Equal(t, orb.Point{13.4, 52.5}, f.Geometry)
	assert.Equal(t, "Berlin", f.Properties["city"])
	assert.Equal(t, "3600000", f.Properties["pop"])
	_, hasLon := f.Properties["longitude"]
	assert.False(t, hasLon, "coordinate columns must not leak into properties")
}

func TestReadCSVAltColumn(t *testing.T) {
	csv := strings.NewReader("lon,lat,id,alt\n1,2,x,99.5\n")

	fc, err := ReadCSV(csv, CSVOptions{
		LonColumn: "lon",
		LatColumn: "lat",
		IDColumn:  "id",
		AltColumn: "alt",
	})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "99.5", fc.Features[0].Properties["alt"])
}

func TestReadCSVMissingColumn(t *testing.T) {
	csv := strings.NewReader("lon,lat\n1,2\n")

	_, err := ReadCSV(csv, CSVOptions{LonColumn: "lon", LatColumn: "lat", IDColumn: "id"})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadCSVBadCoordinate(t *testing.T) {
	csv := strings.NewReader("lon,lat,id\nnot-a-number,2,x\n")

	_, err := ReadCSV(csv, CSVOptions{LonColumn: "lon", LatColumn: "lat", IDColumn: "id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadCSVSemicolon(t *testing.T) {
	csv := strings.NewReader("lon;lat;id\n1;2;x\n")

	fc, err := ReadCSV(csv, CSVOptions{LonColumn: "lon", LatColumn: "lat", IDColumn: "id", Comma: ';'})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
}
