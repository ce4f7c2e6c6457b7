package spaces

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// AssignID resolves the identifier a feature will be stored under.
//
// A feature that already carries an id keeps it. Otherwise, when
// idProperties is non-empty the id is composed from those property values
// in the given order, hyphen-joined, skipping empty or missing values;
// ErrNoProperties is returned when the feature has no properties to
// compose from. With no idProperties the id is a content digest of the
// feature's JSON form, so identical features always share an id
// (encoding/json emits object keys sorted, making the digest independent
// of property insertion order).
func AssignID(f *geojson.Feature, idProperties []string) (string, error) {
	if f.ID != nil {
		if id := fmt.Sprint(f.ID); id != "" {
			return id, nil
		}
	}
	if len(idProperties) > 0 {
		return composePropertyID(f, idProperties)
	}
	return contentDigest(f)
}

func composePropertyID(f *geojson.Feature, idProperties []string) (string, error) {
	if len(f.Properties) == 0 {
		return "", ErrNoProperties
	}
	parts := make([]string, 0, len(idProperties))
	for _, name := range idProperties {
		v, ok := f.Properties[name]
		if !ok || v == nil {
			continue
		}
		if s := fmt.Sprint(v); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: none of %v has a value", ErrNoProperties, idProperties)
	}
	return strings.Join(parts, "-"), nil
}

func contentDigest(f *geojson.Feature) (string, error) {
	data, err := f.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("spaces: hash feature: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// dedupeFeatures walks features in order, resolves each one's id and keeps
// only the first occurrence per id, recording it in registry. Later
// features with a seen id are dropped with a warning. Nil entries (chunk
// padding) are skipped silently. Features without an id get their
// synthesized id assigned so the upload replaces by id on re-runs.
func dedupeFeatures(features []*geojson.Feature, idProperties []string, registry map[string]*geojson.Feature, log *slog.Logger) ([]*geojson.Feature, error) {
	kept := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		id, err := AssignID(f, idProperties)
		if err != nil {
			return nil, err
		}
		if _, seen := registry[id]; seen {
			log.Warn("spaces: duplicate feature id, skipping", "id", id)
			continue
		}
		registry[id] = f
		if f.ID == nil {
			f.ID = id
		}
		kept = append(kept, f)
	}
	return kept, nil
}
