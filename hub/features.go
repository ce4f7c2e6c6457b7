package hub

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SearchParams are the query options shared by all feature read endpoints.
// Params entries are passed through verbatim, so property filters use the
// hub's "p." prefix grammar, e.g. {"p.capacity=gte": "10"}.
type SearchParams struct {
	Tags      []string
	Limit     int
	Params    map[string]string
	Selection []string
	SkipCache bool
	Force2D   bool
}

func (p SearchParams) query() url.Values {
	q := url.Values{}
	if len(p.Tags) > 0 {
		q.Set("tags", strings.Join(p.Tags, ","))
	}
	setInt(q, "limit", p.Limit)
	for k, v := range p.Params {
		q.Set(k, v)
	}
	if len(p.Selection) > 0 {
		q.Set("selection", strings.Join(p.Selection, ","))
	}
	if p.SkipCache {
		q.Set("skipCache", "true")
	}
	if p.Force2D {
		q.Set("force2D", "true")
	}
	return q
}

// BBoxParams extends SearchParams with bounding-box specific options.
type BBoxParams struct {
	SearchParams
	Clip             bool
	Clustering       string
	ClusteringParams map[string]string
	Margin           int
}

func (p BBoxParams) query() url.Values {
	q := p.SearchParams.query()
	if p.Clip {
		q.Set("clip", "true")
	}
	if p.Clustering != "" {
		q.Set("clustering", p.Clustering)
	}
	for k, v := range p.ClusteringParams {
		q.Set("clustering."+k, v)
	}
	setInt(q, "margin", p.Margin)
	return q
}

// SpatialParams configure radius and geometry searches. Either Lat/Lon or
// RefSpaceID/RefFeatureID locate the center for the GET variant; the POST
// variant carries the geometry in the request body instead.
type SpatialParams struct {
	SearchParams
	Lat          *float64
	Lon          *float64
	RefSpaceID   string
	RefFeatureID string
	// Radius widens the search by this many meters.
	Radius int
}

func (p SpatialParams) query() url.Values {
	q := p.SearchParams.query()
	if p.Lat != nil {
		q.Set("lat", strconv.FormatFloat(*p.Lat, 'f', -1, 64))
	}
	if p.Lon != nil {
		q.Set("lon", strconv.FormatFloat(*p.Lon, 'f', -1, 64))
	}
	if p.RefSpaceID != "" {
		q.Set("refSpaceId", p.RefSpaceID)
	}
	if p.RefFeatureID != "" {
		q.Set("refFeatureId", p.RefFeatureID)
	}
	setInt(q, "radius", p.Radius)
	return q
}

func tagQuery(addTags, removeTags []string) url.Values {
	q := url.Values{}
	if len(addTags) > 0 {
		q.Set("addTags", strings.Join(addTags, ","))
	}
	if len(removeTags) > 0 {
		q.Set("removeTags", strings.Join(removeTags, ","))
	}
	return q
}

// GetFeature fetches a single feature by id.
func (c *Client) GetFeature(ctx context.Context, spaceID, featureID string) (*geojson.Feature, error) {
	var out geojson.Feature
	path := "/hub/spaces/" + spaceID + "/features/" + featureID
	if err := c.request(ctx, "GET", path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutFeature creates or replaces a single feature. An empty featureID lets
// the hub assign one.
func (c *Client) PutFeature(ctx context.Context, spaceID, featureID string, f *geojson.Feature, addTags, removeTags []string) (*geojson.Feature, error) {
	path := "/hub/spaces/" + spaceID + "/features/" + featureID
	var out geojson.Feature
	if err := c.request(ctx, "PUT", path, tagQuery(addTags, removeTags), f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchFeature merges changes into an existing feature.
func (c *Client) PatchFeature(ctx context.Context, spaceID, featureID string, f *geojson.Feature, addTags, removeTags []string) (*geojson.Feature, error) {
	path := "/hub/spaces/" + spaceID + "/features/" + featureID
	var out geojson.Feature
	if err := c.request(ctx, "PATCH", path, tagQuery(addTags, removeTags), f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFeature removes a single feature.
func (c *Client) DeleteFeature(ctx context.Context, spaceID, featureID string) error {
	return c.request(ctx, "DELETE", "/hub/spaces/"+spaceID+"/features/"+featureID, nil, nil, nil)
}

// GetFeatures fetches multiple features by id.
func (c *Client) GetFeatures(ctx context.Context, spaceID string, featureIDs []string) (*geojson.FeatureCollection, error) {
	q := url.Values{}
	q.Set("id", strings.Join(featureIDs, ","))
	fc := geojson.NewFeatureCollection()
	if err := c.request(ctx, "GET", "/hub/spaces/"+spaceID+"/features", q, nil, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// PutFeatures creates or replaces a batch of features by id and returns
// the stored representation. Replacement is idempotent: uploading the same
// collection twice leaves the space unchanged.
func (c *Client) PutFeatures(ctx context.Context, spaceID string, fc *geojson.FeatureCollection, addTags, removeTags []string) (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	path := "/hub/spaces/" + spaceID + "/features"
	if err := c.request(ctx, "PUT", path, tagQuery(addTags, removeTags), fc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostFeatures modifies existing features, merging into what is stored.
func (c *Client) PostFeatures(ctx context.Context, spaceID string, fc *geojson.FeatureCollection, addTags, removeTags []string) (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	path := "/hub/spaces/" + spaceID + "/features"
	if err := c.request(ctx, "POST", path, tagQuery(addTags, removeTags), fc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteFeatures removes features by id and/or tag.
func (c *Client) DeleteFeatures(ctx context.Context, spaceID string, featureIDs, tags []string) error {
	q := url.Values{}
	if len(featureIDs) > 0 {
		q.Set("id", strings.Join(featureIDs, ","))
	}
	if len(tags) > 0 {
		q.Set("tags", strings.Join(tags, ","))
	}
	return c.request(ctx, "DELETE", "/hub/spaces/"+spaceID+"/features", q, nil, nil)
}

// Search queries features by tag and property filters.
func (c *Client) Search(ctx context.Context, spaceID string, p SearchParams) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	if err := c.request(ctx, "GET", "/hub/spaces/"+spaceID+"/search", p.query(), nil, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// featurePage is one page of the iterate endpoint. The continuation handle
// may be a number or a string depending on the hub version.
type featurePage struct {
	Handle   any                `json:"handle"`
	Features []*geojson.Feature `json:"features"`
}

// Iterate walks every feature in the space in stable order, fetching
// pageSize features per request and invoking fn for each. Iteration stops
// early when fn returns an error, which is passed through.
func (c *Client) Iterate(ctx context.Context, spaceID string, pageSize int, fn func(*geojson.Feature) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	path := "/hub/spaces/" + spaceID + "/iterate"
	q := url.Values{}
	setInt(q, "limit", pageSize)
	for {
		var page featurePage
		if err := c.request(ctx, "GET", path, q, nil, &page); err != nil {
			return err
		}
		for _, f := range page.Features {
			if err := fn(f); err != nil {
				return err
			}
		}
		if page.Handle == nil || len(page.Features) < pageSize {
			return nil
		}
		q = url.Values{}
		setInt(q, "limit", pageSize)
		q.Set("handle", fmt.Sprint(page.Handle))
	}
}

// BBox returns features inside the given west/south/east/north bounds.
func (c *Client) BBox(ctx context.Context, spaceID string, bbox [4]float64, p BBoxParams) (*geojson.FeatureCollection, error) {
	q := p.query()
	q.Set("west", strconv.FormatFloat(bbox[0], 'f', -1, 64))
	q.Set("south", strconv.FormatFloat(bbox[1], 'f', -1, 64))
	q.Set("east", strconv.FormatFloat(bbox[2], 'f', -1, 64))
	q.Set("north", strconv.FormatFloat(bbox[3], 'f', -1, 64))
	fc := geojson.NewFeatureCollection()
	if err := c.request(ctx, "GET", "/hub/spaces/"+spaceID+"/bbox", q, nil, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// Tile returns features in a map tile. tileType is one of "quadkeys",
// "web", "tms" or "here".
func (c *Client) Tile(ctx context.Context, spaceID, tileType, tileID string, p BBoxParams) (*geojson.FeatureCollection, error) {
	path := "/hub/spaces/" + spaceID + "/tile/" + tileType + "/" + tileID
	fc := geojson.NewFeatureCollection()
	if err := c.request(ctx, "GET", path, p.query(), nil, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// Spatial runs a radius search around a point or a referenced feature.
func (c *Client) Spatial(ctx context.Context, spaceID string, p SpatialParams) (*geojson.FeatureCollection, error) {
	if (p.Lat == nil || p.Lon == nil) && (p.RefSpaceID == "" || p.RefFeatureID == "") {
		return nil, fmt.Errorf("hub: spatial search needs lat/lon or a referenced feature")
	}
	fc := geojson.NewFeatureCollection()
	if err := c.request(ctx, "GET", "/hub/spaces/"+spaceID+"/spatial", p.query(), nil, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// PostSpatial returns features intersecting (or within Radius meters of)
// the given geometry, which is sent as the request body.
func (c *Client) PostSpatial(ctx context.Context, spaceID string, geom orb.Geometry, p SpatialParams) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	path := "/hub/spaces/" + spaceID + "/spatial"
	if err := c.request(ctx, "POST", path, p.query(), geojson.NewGeometry(geom), fc); err != nil {
		return nil, err
	}
	return fc, nil
}
