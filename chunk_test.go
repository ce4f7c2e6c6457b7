package spaces

import (
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFeatures(n int) []*geojson.Feature {
	features := make([]*geojson.Feature, n)
	for i := range features {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i)})
		f.ID = fmt.Sprintf("f%d", i)
		features[i] = f
	}
	return features
}

func TestChunkFeatures(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		size       int
		wantGroups int
		wantPad    int
	}{
		{"exact multiple", 10, 5, 2, 0},
		{"remainder padded", 9, 5, 2, 1},
		{"single short group", 3, 5, 1, 2},
		{"size one", 4, 1, 4, 0},
		{"large input", 180, 100, 2, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := chunkFeatures(makeFeatures(tt.n), tt.size)
			require.Len(t, groups, tt.wantGroups)
			for _, g := range groups {
				assert.Len(t, g, tt.size)
			}

			pad := 0
			total := 0
			for _, g := range groups {
				for _, f := range g {
					if f == nil {
						pad++
					} else {
						total++
					}
				}
			}
			assert.Equal(t, tt.wantPad, pad)
			assert.Equal(t, tt.n, total)
		})
	}
}

func TestChunkFeaturesPreservesOrder(t *testing.T) {
	features := makeFeatures(7)
	groups := chunkFeatures(features, 3)

	var flat []*geojson.Feature
	for _, g := range groups {
		flat = append(flat, compactGroup(g)...)
	}
	require.Len(t, flat, 7)
	for i, f := range flat {
		assert.Same(t, features[i], f)
	}
}

func TestChunkFeaturesDegenerate(t *testing.T) {
	assert.Nil(t, chunkFeatures(nil, 5))
	assert.Nil(t, chunkFeatures(makeFeatures(3), 0))
}
