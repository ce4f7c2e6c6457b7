package convert

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Ele  *float64 `xml:"ele"`
	Name string  `xml:"name"`
	Desc string  `xml:"desc"`
	Time string  `xml:"time"`
}

type gpxRoute struct {
	Name   string     `xml:"name"`
	Desc   string     `xml:"desc"`
	Points []gpxPoint `xml:"rtept"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Desc     string       `xml:"desc"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxFile struct {
	XMLName   xml.Name   `xml:"gpx"`
	Waypoints []gpxPoint `xml:"wpt"`
	Routes    []gpxRoute `xml:"rte"`
	Tracks    []gpxTrack `xml:"trk"`
}

// ReadGPX converts a GPX document into features: one point feature per
// waypoint, one line feature per route, and one line feature per track
// segment. Empty layers are skipped.
func ReadGPX(r io.Reader) (*geojson.FeatureCollection, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("convert: parse gpx: %w", err)
	}

	fc := geojson.NewFeatureCollection()
	for _, wp := range doc.Waypoints {
		f := geojson.NewFeature(orb.Point{wp.Lon, wp.Lat})
		setIfNotEmpty(f.Properties, "name", wp.Name)
		setIfNotEmpty(f.Properties, "desc", wp.Desc)
		setIfNotEmpty(f.Properties, "time", wp.Time)
		if wp.Ele != nil {
			f.Properties["ele"] = *wp.Ele
		}
		fc.Append(f)
	}
	for _, rt := range doc.Routes {
		if len(rt.Points) == 0 {
			continue
		}
		f := geojson.NewFeature(lineOf(rt.Points))
		setIfNotEmpty(f.Properties, "name", rt.Name)
		setIfNotEmpty(f.Properties, "desc", rt.Desc)
		fc.Append(f)
	}
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			if len(seg.Points) == 0 {
				continue
			}
			f := geojson.NewFeature(lineOf(seg.Points))
			setIfNotEmpty(f.Properties, "name", trk.Name)
			setIfNotEmpty(f.Properties, "desc", trk.Desc)
			fc.Append(f)
		}
	}
	return fc, nil
}

func lineOf(points []gpxPoint) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, orb.Point{p.Lon, p.Lat})
	}
	return ls
}

func setIfNotEmpty(props geojson.Properties, key, value string) {
	if value != "" {
		props[key] = value
	}
}
