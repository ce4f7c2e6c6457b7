package spaces

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/geodatahub/spaces/hub"
)

// Space is one named collection of features on the hub. All methods are
// thin wrappers over the REST API except AddFeatures and
// SpatialSearchGeometry, which orchestrate chunking and fan-out locally.
type Space struct {
	client *hub.Client
	log    *slog.Logger
	info   hub.SpaceInfo
}

// FromID binds a Space to an existing space id, fetching its configuration.
func FromID(ctx context.Context, client *hub.Client, spaceID string) (*Space, error) {
	info, err := client.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return &Space{client: client, log: client.Logger(), info: *info}, nil
}

// CreateOptions shape a new space beyond its title and description.
type CreateOptions struct {
	// ID requests a specific space id, used if still available.
	ID string
	// Schema attaches a schema-validator processor (JSON object or URL).
	Schema string
	// Shared makes the space readable by other accounts.
	Shared bool
	// EnableUUID, with Listeners, provisions an activity log.
	EnableUUID bool
	Listeners  map[string]any
}

// New creates a space with the given title and description.
func New(ctx context.Context, client *hub.Client, title, description string, opts *CreateOptions) (*Space, error) {
	def := hub.SpaceDefinition{Title: title, Description: description}
	if opts != nil {
		def.ID = opts.ID
		if opts.Schema != "" {
			def.Processors = append(def.Processors, hub.Processor{
				ID:     "schema-validator",
				Params: map[string]any{"schema": opts.Schema},
			})
		}
		if opts.Shared {
			def.Shared = "true"
		}
		if opts.EnableUUID && opts.Listeners != nil {
			def.EnableUUID = "true"
			def.Listeners = append(def.Listeners, opts.Listeners)
		}
	}
	info, err := client.CreateSpace(ctx, def)
	if err != nil {
		return nil, err
	}
	return &Space{client: client, log: client.Logger(), info: *info}, nil
}

// Virtual creates a virtual space whose queries combine the features of
// the given upstream spaces. operations maps a combine operation name
// (e.g. "group", "merge") to its upstream space ids.
func Virtual(ctx context.Context, client *hub.Client, title, description string, operations map[string]any) (*Space, error) {
	def := hub.SpaceDefinition{
		Title:       title,
		Description: description,
		Storage:     &hub.Storage{ID: "virtualspace", Params: operations},
	}
	info, err := client.CreateSpace(ctx, def)
	if err != nil {
		return nil, err
	}
	return &Space{client: client, log: client.Logger(), info: *info}, nil
}

// ID returns the space id.
func (s *Space) ID() string { return s.info.ID }

func (s *Space) String() string { return "space_id: " + s.info.ID }

// Info re-reads the space configuration from the hub.
func (s *Space) Info(ctx context.Context) (*hub.SpaceInfo, error) {
	info, err := s.client.GetSpace(ctx, s.info.ID)
	if err != nil {
		return nil, err
	}
	s.info = *info
	return info, nil
}

// IsShared reports whether the space is readable by other accounts.
func (s *Space) IsShared(ctx context.Context) (bool, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return false, err
	}
	return info.Shared, nil
}

// UpdateOptions carry the mutable space attributes. Zero-valued fields
// are left untouched.
type UpdateOptions struct {
	Title       string
	Description string
	Schema      string
	// TaggingRules maps a tag to the JSON-path expression selecting the
	// features it is applied to.
	TaggingRules map[string]string
	// Shared toggles sharing when non-nil.
	Shared *bool
}

// Update patches the space's attributes.
func (s *Space) Update(ctx context.Context, opts UpdateOptions) error {
	def := hub.SpaceDefinition{Title: opts.Title, Description: opts.Description}
	if opts.TaggingRules != nil {
		def.Processors = append(def.Processors, hub.Processor{
			ID:     "rule-tagger",
			Params: map[string]any{"taggingRules": opts.TaggingRules},
		})
	}
	if opts.Schema != "" {
		def.Processors = append(def.Processors, hub.Processor{
			ID:     "schema-validator",
			Params: map[string]any{"schema": opts.Schema},
		})
	}
	if opts.Shared != nil {
		if *opts.Shared {
			def.Shared = "true"
		} else {
			def.Shared = "false"
		}
	}
	info, err := s.client.UpdateSpace(ctx, s.info.ID, def)
	if err != nil {
		return err
	}
	s.info = *info
	return nil
}

// Delete removes the space and all features in it.
func (s *Space) Delete(ctx context.Context) error {
	return s.client.DeleteSpace(ctx, s.info.ID)
}

// Statistics returns the hub's statistics for this space.
func (s *Space) Statistics(ctx context.Context) (*hub.Statistics, error) {
	return s.client.GetStatistics(ctx, s.info.ID)
}

// Search queries features by tags and property filters.
func (s *Space) Search(ctx context.Context, p hub.SearchParams) ([]*geojson.Feature, error) {
	fc, err := s.client.Search(ctx, s.info.ID, p)
	if err != nil {
		return nil, err
	}
	return fc.Features, nil
}

// IterateFeatures visits every feature in the space, paging through the
// hub's cursor with pageSize features per request.
func (s *Space) IterateFeatures(ctx context.Context, pageSize int, fn func(*geojson.Feature) error) error {
	return s.client.Iterate(ctx, s.info.ID, pageSize, fn)
}

// Feature fetches one feature by id.
func (s *Space) Feature(ctx context.Context, featureID string) (*geojson.Feature, error) {
	return s.client.GetFeature(ctx, s.info.ID, featureID)
}

// AddFeature creates or replaces a single feature.
func (s *Space) AddFeature(ctx context.Context, featureID string, f *geojson.Feature, addTags, removeTags []string) (*geojson.Feature, error) {
	return s.client.PutFeature(ctx, s.info.ID, featureID, f, addTags, removeTags)
}

// UpdateFeature merges changes into an existing feature.
func (s *Space) UpdateFeature(ctx context.Context, featureID string, f *geojson.Feature, addTags, removeTags []string) (*geojson.Feature, error) {
	return s.client.PatchFeature(ctx, s.info.ID, featureID, f, addTags, removeTags)
}

// DeleteFeature removes one feature by id.
func (s *Space) DeleteFeature(ctx context.Context, featureID string) error {
	return s.client.DeleteFeature(ctx, s.info.ID, featureID)
}

// Features fetches multiple features by id.
func (s *Space) Features(ctx context.Context, featureIDs []string) (*geojson.FeatureCollection, error) {
	return s.client.GetFeatures(ctx, s.info.ID, featureIDs)
}

// UpdateFeatures merges a collection of changes into stored features.
func (s *Space) UpdateFeatures(ctx context.Context, fc *geojson.FeatureCollection, addTags, removeTags []string) (*geojson.FeatureCollection, error) {
	return s.client.PostFeatures(ctx, s.info.ID, fc, addTags, removeTags)
}

// DeleteFeatures removes features by id and/or tag.
func (s *Space) DeleteFeatures(ctx context.Context, featureIDs, tags []string) error {
	return s.client.DeleteFeatures(ctx, s.info.ID, featureIDs, tags)
}

// FeaturesInBBox returns features inside west/south/east/north bounds.
func (s *Space) FeaturesInBBox(ctx context.Context, bbox [4]float64, p hub.BBoxParams) ([]*geojson.Feature, error) {
	fc, err := s.client.BBox(ctx, s.info.ID, bbox, p)
	if err != nil {
		return nil, err
	}
	return fc.Features, nil
}

// FeaturesInTile returns features in a map tile.
func (s *Space) FeaturesInTile(ctx context.Context, tileType, tileID string, p hub.BBoxParams) ([]*geojson.Feature, error) {
	switch tileType {
	case "quadkeys", "web", "tms", "here":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTileType, tileType)
	}
	fc, err := s.client.Tile(ctx, s.info.ID, tileType, tileID, p)
	if err != nil {
		return nil, err
	}
	return fc.Features, nil
}

// SpatialSearch runs a radius search around a point or referenced feature.
func (s *Space) SpatialSearch(ctx context.Context, p hub.SpatialParams) ([]*geojson.Feature, error) {
	fc, err := s.client.Spatial(ctx, s.info.ID, p)
	if err != nil {
		return nil, err
	}
	return fc.Features, nil
}

// Cluster applies a server-side clustering algorithm ("hexbin" or
// "quadbin") over the whole space, using its statistics bbox.
func (s *Space) Cluster(ctx context.Context, clustering string, clusteringParams map[string]string) ([]*geojson.Feature, error) {
	stats, err := s.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	bbox := stats.BBox.Value
	if len(bbox) < 4 {
		return nil, fmt.Errorf("spaces: no bounding box in statistics for space %s", s.info.ID)
	}
	fc, err := s.client.BBox(ctx, s.info.ID, [4]float64{bbox[0], bbox[1], bbox[2], bbox[3]}, hub.BBoxParams{
		Clustering:       clustering,
		ClusteringParams: clusteringParams,
	})
	if err != nil {
		return nil, err
	}
	return fc.Features, nil
}
