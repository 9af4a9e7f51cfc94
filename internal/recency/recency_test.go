package recency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-registry/internal/dedupe"
	"github.com/sells-group/facility-registry/internal/model"
)

var (
	t1 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
)

func facility(geoUpdated time.Time, sources ...model.SourceRef) model.CanonicalFacility {
	return model.Passthrough(model.FacilityReport{
		GeoID:        "g1",
		FactoryID:    "f1",
		GeoUpdatedAt: geoUpdated,
		Sources:      sources,
	})
}

func twoUploads(id, uploader string) model.SourceRef {
	return model.SourceRef{ID: id, UploaderID: uploader, FileCount: 2, LatestUpload: t2}
}

func TestFilterStale_NewerUploadSupersedes(t *testing.T) {
	s := twoUploads("s1", "u1")

	got := FilterStale([]model.CanonicalFacility{facility(t1, s)}, Options{})
	assert.Empty(t, got)

	got = FilterStale([]model.CanonicalFacility{facility(t2.Add(time.Nanosecond), s)}, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].Sources[0].ID)
}

func TestFilterStale_EqualTimestampRetained(t *testing.T) {
	got := FilterStale([]model.CanonicalFacility{facility(t2, twoUploads("s1", "u1"))}, Options{})
	require.Len(t, got, 1)
}

func TestFilterStale_SingleUploadAlwaysRetained(t *testing.T) {
	s := model.SourceRef{ID: "s1", UploaderID: "u1", FileCount: 1, LatestUpload: t2}
	got := FilterStale([]model.CanonicalFacility{facility(t1, s)}, Options{})
	require.Len(t, got, 1)
}

func TestFilterStale_SeedAlwaysRetained(t *testing.T) {
	byConfig := twoUploads("s1", "seed-account")
	byType := twoUploads("s2", "u2")
	byType.UserType = model.UserTypeSeed

	got := FilterStale([]model.CanonicalFacility{facility(t1, byConfig, byType)},
		Options{SeedUploaderIDs: []string{"seed-account"}})
	require.Len(t, got, 1)
	assert.Len(t, got[0].Sources, 2)
}

func TestFilterStale_PartialSuppression(t *testing.T) {
	stale := twoUploads("s1", "u1")
	fresh := model.SourceRef{ID: "s2", UploaderID: "u2", FileCount: 3, LatestUpload: t1}

	in := []model.CanonicalFacility{facility(t1, stale, fresh)}
	got := FilterStale(in, Options{})
	require.Len(t, got, 1)
	require.Len(t, got[0].Sources, 1)
	assert.Equal(t, "s2", got[0].Sources[0].ID)

	// Input untouched.
	assert.Len(t, in[0].Sources, 2)
}

func TestFilterStale_NoSourcesDropped(t *testing.T) {
	got := FilterStale([]model.CanonicalFacility{facility(t1)}, Options{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterStale_ZeroUploadTimeRetained(t *testing.T) {
	s := model.SourceRef{ID: "s1", UploaderID: "u1", FileCount: 4}
	got := FilterStale([]model.CanonicalFacility{facility(t1, s)}, Options{})
	assert.Len(t, got, 1)
}

func TestFilterContributors(t *testing.T) {
	a := facility(t2, model.SourceRef{ID: "s1", UploaderID: "u1", FileCount: 1})
	b := facility(t2, model.SourceRef{ID: "s2", UploaderID: "u2", FileCount: 1})
	c := facility(t2,
		model.SourceRef{ID: "s3", UploaderID: "u3", FileCount: 1},
		model.SourceRef{ID: "s4", UploaderID: "u1", FileCount: 1},
	)
	records := []model.CanonicalFacility{a, b, c}

	tests := []struct {
		name string
		ids  []string
		want int
	}{
		{"no filter", nil, 3},
		{"single", []string{"u2"}, 1},
		{"intersects", []string{"u1"}, 2},
		{"many", []string{"u2", "u3"}, 2},
		{"unknown", []string{"nobody"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, FilterContributors(records, tt.ids), tt.want)
		})
	}
}

func TestFilterStale_MergedSourceJudgedByOwnGeo(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	apr := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	may := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	older := model.FacilityReport{
		GeoID: "g1", FactoryID: "f1", Name: "ABC Mills", Latitude: 23.81, Longitude: 90.41,
		GeoUpdatedAt: jan,
		Sources: []model.SourceRef{
			{ID: "s1", UploaderID: "u1", FileCount: 1},
			{ID: "s2", UploaderID: "u2", FileCount: 1},
		},
	}
	newer := model.FacilityReport{
		GeoID: "g2", FactoryID: "f2", Name: "ABC Mills", Latitude: 23.82, Longitude: 90.42,
		GeoUpdatedAt: may,
		Sources: []model.SourceRef{
			{ID: "c", UploaderID: "u3", FileCount: 2, LatestUpload: apr},
		},
	}
	stale := model.FacilityReport{
		GeoID: "g3", FactoryID: "f3", Name: "ABC Mills", Latitude: 23.83, Longitude: 90.43,
		GeoUpdatedAt: jan,
		Sources: []model.SourceRef{
			{ID: "d", UploaderID: "u4", FileCount: 2, LatestUpload: apr},
		},
	}

	merged := dedupe.Deduplicate([]model.FacilityReport{older, newer, stale}, dedupe.DefaultOptions())
	require.Len(t, merged, 1)

	got := FilterStale(merged, Options{})
	require.Len(t, got, 1)
	ids := make([]string, 0, len(got[0].Sources))
	for _, s := range got[0].Sources {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c", "s1", "s2"}, ids)
}
