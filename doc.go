// Package spaces is a client for XYZ Hub style geospatial feature spaces.
// It wraps the REST API in a Space abstraction working directly with
// orb/geojson features, chunks large uploads across a worker pool with
// duplicate-id filtering, and fans big geometry searches out over a grid
// of sub-queries.
package spaces

import "errors"

// Common errors returned by this package.
var (
	// ErrNoProperties is returned when property-based id generation is
	// requested for a feature that has no usable properties.
	ErrNoProperties = errors.New("spaces: feature has no properties to derive an id from")

	// ErrInvalidTileType is returned for tile types the hub does not know.
	ErrInvalidTileType = errors.New("spaces: invalid tile type")
)
