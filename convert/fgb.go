package convert

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoSpatialIndex is returned when a FlatGeobuf file carries features
// but no index to enumerate them with.
var ErrNoSpatialIndex = errors.New("convert: flatgeobuf file has no spatial index")

// ReadFlatGeobufFile memory-maps a FlatGeobuf file and decodes all of its
// features. A property named "id" is promoted to the feature id.
func ReadFlatGeobufFile(path string) (*geojson.FeatureCollection, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("convert: open flatgeobuf: %w", err)
	}
	return decodeFlatGeobuf(fgb)
}

// ReadFlatGeobuf decodes FlatGeobuf data held in memory.
func ReadFlatGeobuf(data []byte) (*geojson.FeatureCollection, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("convert: parse flatgeobuf: %w", err)
	}
	return decodeFlatGeobuf(fgb)
}

func decodeFlatGeobuf(fgb *flatgeobuf.FlatGeoBuf) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	header := fgb.Header()
	if header == nil || header.FeaturesCount() == 0 {
		return fc, nil
	}
	// Enumeration goes through the index with the full envelope; files
	// without one cannot be walked by the upstream reader.
	if header.IndexNodeSize() == 0 || header.EnvelopeLength() < 4 {
		return nil, ErrNoSpatialIndex
	}

	found, err := fgb.Search(header.Envelope(0), header.Envelope(1), header.Envelope(2), header.Envelope(3))
	if err != nil {
		return nil, fmt.Errorf("convert: scan flatgeobuf: %w", err)
	}
	for _, raw := range found {
		var geomObj flattypes.Geometry
		geom := raw.Geometry(&geomObj)
		if geom == nil {
			continue
		}
		orbGeom := decodeFGBGeometry(geom, header.GeometryType())
		if orbGeom == nil {
			continue
		}
		f := geojson.NewFeature(orbGeom)
		if n := raw.PropertiesLength(); n > 0 {
			buf := make([]byte, n)
			for i := 0; i < n; i++ {
				buf[i] = byte(raw.Properties(i))
			}
			f.Properties = decodeFGBProperties(buf, header)
		}
		if id, ok := f.Properties["id"]; ok {
			f.ID = id
			delete(f.Properties, "id")
		}
		fc.Append(f)
	}
	return fc, nil
}

// WriteFlatGeobuf encodes a feature collection as an indexed FlatGeobuf
// layer. Property columns are the sorted union of all property names;
// feature ids are stored in an "id" column.
func WriteFlatGeobuf(w io.Writer, fc *geojson.FeatureCollection, name string) error {
	if fc == nil || len(fc.Features) == 0 {
		return fmt.Errorf("convert: nothing to write")
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(uniformGeometryType(fc.Features))
	if name != "" {
		header.SetName(name)
	}

	names, types := columnSchema(fc.Features)
	columns := make([]*writer.Column, 0, len(names))
	index := make(map[string]int, len(names))
	for i, colName := range names {
		col := writer.NewColumn(builder)
		col.SetName(colName)
		col.SetTitle(colName)
		col.SetType(types[colName])
		col.SetNullable(true)
		columns = append(columns, col)
		index[colName] = i
	}
	if len(columns) > 0 {
		header.SetColumns(columns)
	}

	gen := &featureGenerator{features: fc.Features, names: names, types: types, index: index}
	_, err := writer.NewWriter(header, true, gen, nil).Write(w)
	return err
}

type featureGenerator struct {
	features []*geojson.Feature
	names    []string
	types    map[string]flattypes.ColumnType
	index    map[string]int
	at       int
}

func (g *featureGenerator) Generate() *writer.Feature {
	for g.at < len(g.features) {
		f := g.features[g.at]
		g.at++
		if f == nil || f.Geometry == nil {
			continue
		}
		builder := flatbuffers.NewBuilder(1024)
		geom := encodeFGBGeometry(builder, f.Geometry)
		if geom == nil {
			continue
		}
		out := writer.NewFeature(builder)
		out.SetGeometry(geom)
		if props := g.encodeProperties(f); len(props) > 0 {
			out.SetProperties(props)
		}
		return out
	}
	return nil
}

func (g *featureGenerator) encodeProperties(f *geojson.Feature) []byte {
	var buf bytes.Buffer
	for _, name := range g.names {
		var value any
		if name == "id" && f.ID != nil {
			value = fmt.Sprint(f.ID)
		} else {
			v, ok := f.Properties[name]
			if !ok || v == nil {
				continue
			}
			value = v
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint16(g.index[name]))
		writeFGBValue(&buf, value, g.types[name])
	}
	return buf.Bytes()
}

// columnSchema derives the property columns: the sorted union of all
// property names plus an "id" column when any feature carries one.
func columnSchema(features []*geojson.Feature) ([]string, map[string]flattypes.ColumnType) {
	types := make(map[string]flattypes.ColumnType)
	hasID := false
	for _, f := range features {
		if f == nil {
			continue
		}
		if f.ID != nil {
			hasID = true
		}
		for name, value := range f.Properties {
			t := columnTypeOf(value)
			if prev, ok := types[name]; ok && prev != t {
				t = mergeColumnTypes(prev, t)
			}
			types[name] = t
		}
	}
	if hasID {
		types["id"] = flattypes.ColumnTypeString
	}
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, types
}

func columnTypeOf(value any) flattypes.ColumnType {
	switch v := value.(type) {
	case bool:
		return flattypes.ColumnTypeBool
	case int, int32, int64:
		return flattypes.ColumnTypeLong
	case float32, float64:
		return flattypes.ColumnTypeDouble
	case string:
		return flattypes.ColumnTypeString
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	default:
		return flattypes.ColumnTypeJson
	}
}

func mergeColumnTypes(a, b flattypes.ColumnType) flattypes.ColumnType {
	if a == b {
		return a
	}
	numeric := func(t flattypes.ColumnType) bool {
		return t == flattypes.ColumnTypeLong || t == flattypes.ColumnTypeDouble
	}
	if numeric(a) && numeric(b) {
		return flattypes.ColumnTypeDouble
	}
	return flattypes.ColumnTypeJson
}

func writeFGBValue(buf *bytes.Buffer, value any, t flattypes.ColumnType) {
	switch t {
	case flattypes.ColumnTypeBool:
		b := byte(0)
		if v, ok := value.(bool); ok && v {
			b = 1
		}
		buf.WriteByte(b)
	case flattypes.ColumnTypeLong:
		_ = binary.Write(buf, binary.LittleEndian, asInt64(value))
	case flattypes.ColumnTypeDouble:
		_ = binary.Write(buf, binary.LittleEndian, asFloat64(value))
	case flattypes.ColumnTypeString:
		writeLenPrefixed(buf, []byte(fmt.Sprint(value)))
	default:
		data, err := json.Marshal(value)
		if err != nil {
			data = []byte("null")
		}
		writeLenPrefixed(buf, data)
	}
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// decodeFGBProperties walks the column-index/value pairs of a feature's
// property block. Strings and JSON values are length-prefixed.
func decodeFGBProperties(data []byte, header *flattypes.Header) geojson.Properties {
	props := make(geojson.Properties)
	offset := 0
	for offset+2 <= len(data) {
		colIndex := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if colIndex >= header.ColumnsLength() {
			break
		}
		var col flattypes.Column
		if !header.Columns(&col, colIndex) {
			break
		}
		value, n := readFGBValue(data[offset:], col.Type())
		if n == 0 {
			break
		}
		offset += n
		props[string(col.Name())] = value
	}
	return props
}

func readFGBValue(data []byte, t flattypes.ColumnType) (any, int) {
	need := func(n int) bool { return len(data) >= n }
	switch t {
	case flattypes.ColumnTypeBool:
		if !need(1) {
			return nil, 0
		}
		return data[0] != 0, 1
	case flattypes.ColumnTypeByte:
		if !need(1) {
			return nil, 0
		}
		return int8(data[0]), 1
	case flattypes.ColumnTypeUByte:
		if !need(1) {
			return nil, 0
		}
		return data[0], 1
	case flattypes.ColumnTypeShort:
		if !need(2) {
			return nil, 0
		}
		return int16(binary.LittleEndian.Uint16(data)), 2
	case flattypes.ColumnTypeUShort:
		if !need(2) {
			return nil, 0
		}
		return binary.LittleEndian.Uint16(data), 2
	case flattypes.ColumnTypeInt:
		if !need(4) {
			return nil, 0
		}
		return int32(binary.LittleEndian.Uint32(data)), 4
	case flattypes.ColumnTypeUInt:
		if !need(4) {
			return nil, 0
		}
		return binary.LittleEndian.Uint32(data), 4
	case flattypes.ColumnTypeLong:
		if !need(8) {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint64(data)), 8
	case flattypes.ColumnTypeULong:
		if !need(8) {
			return nil, 0
		}
		return binary.LittleEndian.Uint64(data), 8
	case flattypes.ColumnTypeFloat:
		if !need(4) {
			return nil, 0
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4
	case flattypes.ColumnTypeDouble:
		if !need(8) {
			return nil, 0
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		s, n := readLenPrefixed(data)
		if n == 0 {
			return nil, 0
		}
		return string(s), n
	case flattypes.ColumnTypeJson:
		raw, n := readLenPrefixed(data)
		if n == 0 {
			return nil, 0
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return string(raw), n
		}
		return value, n
	case flattypes.ColumnTypeBinary:
		raw, n := readLenPrefixed(data)
		if n == 0 {
			return nil, 0
		}
		return raw, n
	default:
		return nil, 0
	}
}

func readLenPrefixed(data []byte) ([]byte, int) {
	if len(data) < 4 {
		return nil, 0
	}
	length := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+length {
		return nil, 0
	}
	return data[4 : 4+length], 4 + length
}

func uniformGeometryType(features []*geojson.Feature) flattypes.GeometryType {
	t := flattypes.GeometryTypeUnknown
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		ft := fgbGeometryType(f.Geometry)
		if t == flattypes.GeometryTypeUnknown {
			t = ft
		} else if t != ft {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

func fgbGeometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Ring, orb.Polygon, orb.Bound:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// encodeFGBGeometry converts an orb geometry into the writer's
// representation. Unsupported geometries yield nil.
func encodeFGBGeometry(builder *flatbuffers.Builder, geom orb.Geometry) *writer.Geometry {
	g := writer.NewGeometry(builder)
	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})
	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(flattenPoints(v))
	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(flattenPoints(v))
	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		xy, ends := flattenParts(len(v), func(i int) []orb.Point { return v[i] })
		g.SetXY(xy)
		g.SetEnds(ends)
	case orb.Ring:
		g.SetType(flattypes.GeometryTypePolygon)
		g.SetXY(flattenPoints(v))
		g.SetEnds([]uint32{uint32(len(v))})
	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := flattenParts(len(v), func(i int) []orb.Point { return v[i] })
		g.SetXY(xy)
		g.SetEnds(ends)
	case orb.Bound:
		return encodeFGBGeometry(builder, v.ToPolygon())
	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			part := encodeFGBGeometry(builder, poly)
			if part != nil {
				parts = append(parts, *part)
			}
		}
		g.SetParts(parts)
	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			part := encodeFGBGeometry(builder, child)
			if part != nil {
				parts = append(parts, *part)
			}
		}
		g.SetParts(parts)
	default:
		return nil
	}
	return g
}

func flattenPoints(points []orb.Point) []float64 {
	xy := make([]float64, 0, len(points)*2)
	for _, p := range points {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

func flattenParts(n int, part func(int) []orb.Point) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, n)
	total := uint32(0)
	for i := 0; i < n; i++ {
		points := part(i)
		xy = append(xy, flattenPoints(points)...)
		total += uint32(len(points))
		ends = append(ends, total)
	}
	return xy, ends
}

// decodeFGBGeometry converts a stored geometry back to orb types. Records
// without their own type (legal when the layer is homogeneous) fall back
// to the header's geometry type.
func decodeFGBGeometry(geom *flattypes.Geometry, fallback flattypes.GeometryType) orb.Geometry {
	geomType := geom.Type()
	if geomType == flattypes.GeometryTypeUnknown {
		geomType = fallback
	}
	switch geomType {
	case flattypes.GeometryTypePoint:
		pts := geometryPoints(geom)
		if len(pts) == 0 {
			return nil
		}
		return pts[0]
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(geometryPoints(geom))
	case flattypes.GeometryTypeLineString:
		return orb.LineString(geometryPoints(geom))
	case flattypes.GeometryTypeMultiLineString:
		parts := geometryParts(geom)
		mls := make(orb.MultiLineString, 0, len(parts))
		for _, p := range parts {
			mls = append(mls, orb.LineString(p))
		}
		return mls
	case flattypes.GeometryTypePolygon:
		parts := geometryParts(geom)
		poly := make(orb.Polygon, 0, len(parts))
		for _, p := range parts {
			poly = append(poly, orb.Ring(p))
		}
		return poly
	case flattypes.GeometryTypeMultiPolygon:
		n := geom.PartsLength()
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if geom.Parts(&part, i) {
				if poly, ok := decodeFGBGeometry(&part, flattypes.GeometryTypePolygon).(orb.Polygon); ok {
					mp = append(mp, poly)
				}
			}
		}
		return mp
	case flattypes.GeometryTypeGeometryCollection:
		n := geom.PartsLength()
		coll := make(orb.Collection, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if geom.Parts(&part, i) {
				if child := decodeFGBGeometry(&part, flattypes.GeometryTypeUnknown); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll
	default:
		return nil
	}
}

func geometryPoints(geom *flattypes.Geometry) []orb.Point {
	n := geom.XyLength()
	pts := make([]orb.Point, 0, n/2)
	for i := 0; i+1 < n; i += 2 {
		pts = append(pts, orb.Point{geom.Xy(i), geom.Xy(i + 1)})
	}
	return pts
}

// geometryParts splits the flat coordinate array along the ends offsets.
// Without ends the whole array is a single part.
func geometryParts(geom *flattypes.Geometry) [][]orb.Point {
	pts := geometryPoints(geom)
	n := geom.EndsLength()
	if n == 0 {
		if len(pts) == 0 {
			return nil
		}
		return [][]orb.Point{pts}
	}
	parts := make([][]orb.Point, 0, n)
	start := uint32(0)
	for i := 0; i < n; i++ {
		end := geom.Ends(i)
		if end > uint32(len(pts)) {
			end = uint32(len(pts))
		}
		if end > start {
			parts = append(parts, pts[start:end])
		}
		start = end
	}
	return parts
}
