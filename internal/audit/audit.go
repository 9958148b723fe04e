// Package audit looks for entities that collide across the datasets: places
// assigned twice, markers stacked on the same spot and near-identical entries.
package audit

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/repository"
	"github.com/UnknownOlympus/pinpoint/internal/spatial"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultDecimals rounds coordinates to roughly 11 meters.
const DefaultDecimals = 4

// DefaultRadius is the distance, in meters, under which two entities count as close.
const DefaultRadius = 100

// Holder points at one entity of a dataset.
type Holder struct {
	Dataset string
	Index   int
	Name    string
	PlaceID string
	Coords  *models.Coordinates

	entity *models.Entity
}

// PlaceGroup is a place identifier held by more than one entity.
type PlaceGroup struct {
	PlaceID string
	Holders []Holder
}

// Cluster is a set of entities whose coordinates round to the same grid cell.
type Cluster struct {
	Key     string
	Holders []Holder
}

// Pair is two distinct entities closer to each other than the audit radius.
type Pair struct {
	A, B     Holder
	Distance float64 // Meters.
	SameName bool    // Names are equal once case and accents are ignored.
}

// DuplicatePlaceIDs returns every place identifier held by more than one entity,
// ordered by identifier. Holders keep document order.
func DuplicatePlaceIDs(datasets []*repository.Dataset) []PlaceGroup {
	byID := make(map[string][]Holder)
	for _, h := range holders(datasets) {
		if h.PlaceID != "" {
			byID[h.PlaceID] = append(byID[h.PlaceID], h)
		}
	}

	var groups []PlaceGroup
	for id, hs := range byID {
		if len(hs) > 1 {
			groups = append(groups, PlaceGroup{PlaceID: id, Holders: hs})
		}
	}
	slices.SortFunc(groups, func(a, b PlaceGroup) int { return cmp.Compare(a.PlaceID, b.PlaceID) })
	return groups
}

// CoordinateClusters returns the grid cells holding more than one entity once
// coordinates are rounded to the given number of decimals.
func CoordinateClusters(datasets []*repository.Dataset, decimals int) []Cluster {
	byKey := make(map[string][]Holder)
	for _, h := range holders(datasets) {
		if h.Coords != nil {
			key := spatial.GridKey(*h.Coords, decimals)
			byKey[key] = append(byKey[key], h)
		}
	}

	var clusters []Cluster
	for key, hs := range byKey {
		if len(hs) > 1 {
			clusters = append(clusters, Cluster{Key: key, Holders: hs})
		}
	}
	slices.SortFunc(clusters, func(a, b Cluster) int { return cmp.Compare(a.Key, b.Key) })
	return clusters
}

// ClosePairs returns the pairs of entities closer than radius meters, nearest first.
// Entities sharing a place identifier are reported by DuplicatePlaceIDs instead.
func ClosePairs(datasets []*repository.Dataset, radius float64) []Pair {
	var located []Holder
	for _, h := range holders(datasets) {
		if h.Coords != nil {
			located = append(located, h)
		}
	}

	var pairs []Pair
	for i, a := range located {
		for _, b := range located[i+1:] {
			if a.PlaceID != "" && a.PlaceID == b.PlaceID {
				continue
			}
			d := spatial.Distance(*a.Coords, *b.Coords)
			if d >= radius {
				continue
			}
			pairs = append(pairs, Pair{A: a, B: b, Distance: d, SameName: FoldName(a.Name) == FoldName(b.Name)})
		}
	}
	slices.SortStableFunc(pairs, func(a, b Pair) int { return cmp.Compare(a.Distance, b.Distance) })
	return pairs
}

// CleanDuplicatePlaceIDs keeps each duplicated place on its first holder and
// clears it from the others, so that the next enrichment resolves them again.
// It returns the holders that were cleared.
func CleanDuplicatePlaceIDs(datasets []*repository.Dataset) []Holder {
	var cleared []Holder
	for _, group := range DuplicatePlaceIDs(datasets) {
		for _, h := range group.Holders[1:] {
			h.entity.ClearPlace()
			cleared = append(cleared, h)
		}
	}
	return cleared
}

// FoldName normalizes a name for comparison: case folded, accents removed and
// surrounding space trimmed.
func FoldName(s string) string {
	folded, _, err := transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			cases.Fold(),
			norm.NFC,
		),
		strings.TrimSpace(s),
	)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}

func holders(datasets []*repository.Dataset) []Holder {
	var out []Holder
	for _, ds := range datasets {
		for idx, ent := range ds.Entities {
			out = append(out, Holder{
				Dataset: ds.Name(),
				Index:   idx,
				Name:    ent.Name,
				PlaceID: ent.PlaceID,
				Coords:  ent.Coords,
				entity:  ent,
			})
		}
	}
	return out
}
