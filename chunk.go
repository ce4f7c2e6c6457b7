package spaces

import "github.com/paulmach/orb/geojson"

// chunkFeatures splits features into groups of exactly size elements,
// padding the final group with nil so every group has the same declared
// length. Order is preserved: group i holds elements [i*size, (i+1)*size).
// Consumers must treat nil entries as "no feature".
func chunkFeatures(features []*geojson.Feature, size int) [][]*geojson.Feature {
	if size <= 0 || len(features) == 0 {
		return nil
	}
	groups := make([][]*geojson.Feature, 0, (len(features)+size-1)/size)
	for start := 0; start < len(features); start += size {
		end := start + size
		if end <= len(features) {
			groups = append(groups, features[start:end:end])
			continue
		}
		last := make([]*geojson.Feature, size)
		copy(last, features[start:])
		groups = append(groups, last)
	}
	return groups
}

// compactGroup strips the nil padding a chunked group may carry.
func compactGroup(group []*geojson.Feature) []*geojson.Feature {
	kept := make([]*geojson.Feature, 0, len(group))
	for _, f := range group {
		if f != nil {
			kept = append(kept, f)
		}
	}
	return kept
}
