// Package dedupe clusters geocoded facility reports that describe the same
// physical facility and merges their provenance.
//
// Reports are bucketed by a coarse spatial key (a grid cell one decimal
// degree wide by default), then by the whitespace-free normalized name. Each
// bucket with more than one report collapses into a single canonical record.
package dedupe

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sells-group/facility-registry/internal/model"
	"github.com/sells-group/facility-registry/internal/normalize"
)

// DefaultGridDecimals is the coordinate precision of a spatial cell.
const DefaultGridDecimals = 1

// keyEpsilon absorbs float error such as 2.3*10 landing just below 23.
const keyEpsilon = 1e-9

// Options controls clustering.
type Options struct {
	GridDecimals int
}

// DefaultOptions returns one-decimal grid cells (~11 km at the equator).
func DefaultOptions() Options {
	return Options{GridDecimals: DefaultGridDecimals}
}

// SpatialKey returns the grid cell containing (lat, lng), e.g. "10.0_20.0"
// for (10.06, 20.04). Coordinates are floored to the cell's lower edge so
// every cell has the same width.
func SpatialKey(lat, lng float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return fmt.Sprintf("%.*f_%.*f", decimals, cell(lat, decimals), decimals, cell(lng, decimals))
}

func cell(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	c := math.Floor(v*scale+keyEpsilon) / scale
	if c == 0 {
		return 0 // avoid "-0.0"
	}
	return c
}

// Deduplicate clusters records and returns one canonical record per cluster,
// in order of each cluster's first appearance. The input is not modified.
func Deduplicate(records []model.FacilityReport, opts Options) []model.CanonicalFacility {
	out := make([]model.CanonicalFacility, 0, len(records))
	for _, cellGroup := range groupBy(records, func(r model.FacilityReport) string {
		return SpatialKey(r.Latitude, r.Longitude, opts.GridDecimals)
	}) {
		if len(cellGroup) == 1 {
			out = append(out, model.Passthrough(clone(cellGroup[0])))
			continue
		}
		for _, nameGroup := range groupBy(cellGroup, func(r model.FacilityReport) string {
			return normalize.Key(r.Name)
		}) {
			if len(nameGroup) == 1 {
				out = append(out, model.Passthrough(clone(nameGroup[0])))
				continue
			}
			out = append(out, Merge(nameGroup))
		}
	}
	return out
}

// groupBy partitions records by key, preserving first-appearance order of
// both groups and members.
func groupBy(records []model.FacilityReport, key func(model.FacilityReport) string) [][]model.FacilityReport {
	index := make(map[string]int)
	var groups [][]model.FacilityReport
	for _, r := range records {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}

// Merge collapses reports of one physical facility into a canonical record.
// The member with the most distinct sources is the base; ties keep input
// order. Confirmations come from the best-corroborated confirmed member.
// Sources are unioned by id and alternate names/addresses are recorded.
func Merge(members []model.FacilityReport) model.CanonicalFacility {
	if len(members) == 0 {
		return model.Passthrough(model.FacilityReport{})
	}

	ordered := make([]model.FacilityReport, len(members))
	copy(ordered, members)
	sortBySources(ordered)

	base := clone(ordered[0])

	var confirmed []model.FacilityReport
	for _, m := range ordered {
		if len(m.Confirmed) > 0 {
			confirmed = append(confirmed, m)
		}
	}
	sortBySources(confirmed)
	if len(confirmed) > 0 {
		base.Confirmed = append([]model.ConfirmRef(nil), confirmed[0].Confirmed...)
	}

	base.Sources = unionSources(ordered)

	var names, addresses []alternate
	for _, m := range ordered[1:] {
		if m.Name != base.Name {
			names = append(names, alternate{text: m.Name, id: m.FactoryID})
		}
		if m.Address != base.Address {
			addresses = append(addresses, alternate{text: m.Address, id: m.AddressID})
		}
	}

	canonical := model.Passthrough(base)
	canonical.OtherNames, canonical.OtherFactoryIDs = splitAlternates(names)
	canonical.OtherAddresses, canonical.OtherAddressIDs = splitAlternates(addresses)
	return canonical
}

// sortBySources orders reports by distinct source count, descending, stably.
func sortBySources(reports []model.FacilityReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		return distinctSources(reports[i]) > distinctSources(reports[j])
	})
}

func distinctSources(r model.FacilityReport) int {
	seen := make(map[string]struct{}, len(r.Sources))
	for _, s := range r.Sources {
		if s.ID == "" {
			continue
		}
		seen[s.ID] = struct{}{}
	}
	return len(seen)
}

// unionSources merges every member's sources by id, sorted by id. When the
// same id carries different metadata the most recent upload wins. Each
// source keeps the newest GeoUpdatedAt among the members that listed it.
func unionSources(members []model.FacilityReport) []model.SourceRef {
	byID := make(map[string]model.SourceRef)
	geoAt := make(map[string]time.Time)
	for _, m := range members {
		for _, s := range m.Sources {
			if s.ID == "" {
				continue
			}
			at := s.GeoUpdatedAt
			if at.IsZero() {
				at = m.GeoUpdatedAt
			}
			if at.After(geoAt[s.ID]) {
				geoAt[s.ID] = at
			}
			if prev, ok := byID[s.ID]; ok && !s.LatestUpload.After(prev.LatestUpload) {
				continue
			}
			byID[s.ID] = s
		}
	}

	out := make([]model.SourceRef, 0, len(byID))
	for id, s := range byID {
		s.GeoUpdatedAt = geoAt[id]
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type alternate struct {
	text string
	id   string
}

// splitAlternates sorts and de-duplicates pairs, then returns parallel slices.
func splitAlternates(alts []alternate) ([]string, []string) {
	sort.Slice(alts, func(i, j int) bool {
		if alts[i].text != alts[j].text {
			return alts[i].text < alts[j].text
		}
		return alts[i].id < alts[j].id
	})
	texts := make([]string, 0, len(alts))
	ids := make([]string, 0, len(alts))
	for i, a := range alts {
		if i > 0 && a == alts[i-1] {
			continue
		}
		texts = append(texts, a.text)
		ids = append(ids, a.id)
	}
	return texts, ids
}

func clone(r model.FacilityReport) model.FacilityReport {
	r.Sources = append([]model.SourceRef{}, r.Sources...)
	if r.Confirmed != nil {
		r.Confirmed = append([]model.ConfirmRef(nil), r.Confirmed...)
	}
	return r
}
