package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-registry/internal/model"
)

func src(ids ...string) []model.SourceRef {
	out := make([]model.SourceRef, len(ids))
	for i, id := range ids {
		out[i] = model.SourceRef{ID: id, UploaderID: "u-" + id, FileCount: 1}
	}
	return out
}

func report(factoryID, name, address string, lat, lng float64, sources ...string) model.FacilityReport {
	return model.FacilityReport{
		GeoID:     "g-" + factoryID,
		Latitude:  lat,
		Longitude: lng,
		Country:   "BD",
		FactoryID: factoryID,
		AddressID: "a-" + factoryID,
		Name:      name,
		Address:   address,
		Sources:   src(sources...),
	}
}

func sourceIDs(refs []model.SourceRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

func TestSpatialKey(t *testing.T) {
	assert.Equal(t, "10.0_20.0", SpatialKey(10.04, 20.04, 1))
	assert.Equal(t, "10.0_20.0", SpatialKey(10.06, 20.06, 1))
	assert.Equal(t, "10.1_20.0", SpatialKey(10.1, 20.09, 1))
	assert.Equal(t, "2.3_0.7", SpatialKey(2.3, 0.7, 1))
	assert.Equal(t, "-10.1_0.0", SpatialKey(-10.04, 0.04, 1))
	assert.Equal(t, "0.0_0.0", SpatialKey(-0.0, 0, 1))
	assert.Equal(t, "10_20", SpatialKey(10.9, 20.1, 0))
	assert.Equal(t, "10.04_20.06", SpatialKey(10.04, 20.06, 2))
}

func TestDeduplicate_Empty(t *testing.T) {
	got := Deduplicate(nil, DefaultOptions())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDeduplicate_SameCellSameName(t *testing.T) {
	records := []model.FacilityReport{
		report("f1", "ABC Mills", "12 Industrial Road", 10.04, 20.04, "s1"),
		report("f2", "abcmills", "Plot 12, Industrial Rd", 10.06, 20.06, "s2", "s3"),
	}

	got := Deduplicate(records, DefaultOptions())
	require.Len(t, got, 1)

	c := got[0]
	// f2 has more sources and becomes the base.
	assert.Equal(t, "f2", c.FactoryID)
	assert.Equal(t, []string{"s1", "s2", "s3"}, sourceIDs(c.Sources))
	assert.Equal(t, []string{"ABC Mills"}, c.OtherNames)
	assert.Equal(t, []string{"f1"}, c.OtherFactoryIDs)
	assert.Equal(t, []string{"12 Industrial Road"}, c.OtherAddresses)
	assert.Equal(t, []string{"a-f1"}, c.OtherAddressIDs)
}

func TestDeduplicate_DifferentCellsPassThrough(t *testing.T) {
	records := []model.FacilityReport{
		report("f1", "ABC Mills", "x", 10.04, 20.04, "s1"),
		report("f2", "ABC Mills", "x", 10.14, 20.04, "s2"),
	}
	got := Deduplicate(records, DefaultOptions())
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].FactoryID)
	assert.Equal(t, "f2", got[1].FactoryID)
	assert.Empty(t, got[0].OtherNames)
	assert.NotNil(t, got[0].OtherNames)
}

func TestDeduplicate_SameCellDifferentNames(t *testing.T) {
	records := []model.FacilityReport{
		report("f1", "ABC Mills", "x", 10.04, 20.04, "s1"),
		report("f2", "XYZ Dyeing", "x", 10.05, 20.05, "s2"),
		report("f3", "A B C  Mills Ltd.", "y", 10.01, 20.09, "s3"),
	}
	got := Deduplicate(records, DefaultOptions())
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].FactoryID)
	assert.Equal(t, []string{"s1", "s3"}, sourceIDs(got[0].Sources))
	assert.Equal(t, "f2", got[1].FactoryID)
	assert.Equal(t, []string{"s2"}, sourceIDs(got[1].Sources))
}

func TestDeduplicate_SharedSourceCountedOnce(t *testing.T) {
	records := []model.FacilityReport{
		report("f1", "ABC Mills", "x", 10.04, 20.04, "s1", "s2"),
		report("f2", "ABC Mills", "x", 10.04, 20.04, "s2"),
	}
	got := Deduplicate(records, DefaultOptions())
	require.Len(t, got, 1)
	assert.Equal(t, []string{"s1", "s2"}, sourceIDs(got[0].Sources))
	// Same name and address as the base: nothing alternate to record.
	assert.Empty(t, got[0].OtherNames)
	assert.Empty(t, got[0].OtherAddresses)
}

func TestDeduplicate_ConfirmedFromBestConfirmedMember(t *testing.T) {
	top := report("f1", "ABC Mills", "x", 10.04, 20.04, "s1", "s2", "s3")
	weak := report("f2", "ABC Mills", "y", 10.04, 20.04, "s4")
	weak.Confirmed = []model.ConfirmRef{{ID: "c-weak", SourceID: "s4"}}
	strong := report("f3", "ABC Mills", "z", 10.04, 20.04, "s5", "s6")
	strong.Confirmed = []model.ConfirmRef{{ID: "c-strong", SourceID: "s5"}}

	got := Deduplicate([]model.FacilityReport{weak, top, strong}, DefaultOptions())
	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].FactoryID)
	require.Len(t, got[0].Confirmed, 1)
	assert.Equal(t, "c-strong", got[0].Confirmed[0].ID)
}

func TestDeduplicate_NilSourcesIsEmptySlice(t *testing.T) {
	a := report("f1", "ABC Mills", "x", 10.04, 20.04)
	b := report("f2", "ABC Mills", "y", 10.04, 20.04)
	a.Sources, b.Sources = nil, nil

	got := Deduplicate([]model.FacilityReport{a, b}, DefaultOptions())
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Sources)
	assert.Empty(t, got[0].Sources)

	single := Deduplicate([]model.FacilityReport{a}, DefaultOptions())
	assert.NotNil(t, single[0].Sources)
}

func TestDeduplicate_OrderIndependent(t *testing.T) {
	a := report("f1", "ABC Mills", "12 Industrial Road", 10.01, 20.01, "s1", "s2", "s3")
	b := report("f2", "abc mills", "Plot 12 Industrial Rd", 10.02, 20.02, "s4", "s5")
	c := report("f3", "A.B.C. Mills", "12 Ind. Road", 10.03, 20.03, "s1", "s6")

	perms := [][]model.FacilityReport{
		{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a},
	}
	want := Deduplicate(perms[0], DefaultOptions())
	require.Len(t, want, 1)
	for _, p := range perms[1:] {
		got := Deduplicate(p, DefaultOptions())
		require.Len(t, got, 1)
		assert.Equal(t, sourceIDs(want[0].Sources), sourceIDs(got[0].Sources))
		assert.Equal(t, want[0].OtherNames, got[0].OtherNames)
		assert.Equal(t, want[0].OtherFactoryIDs, got[0].OtherFactoryIDs)
		assert.Equal(t, want[0].OtherAddresses, got[0].OtherAddresses)
		assert.Equal(t, want[0].FactoryID, got[0].FactoryID)
	}
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5", "s6"}, sourceIDs(want[0].Sources))
}

func TestDeduplicate_DoesNotMutateInput(t *testing.T) {
	a := report("f1", "ABC Mills", "x", 10.04, 20.04, "s1")
	b := report("f2", "ABC Mills", "y", 10.04, 20.04, "s2", "s3")
	records := []model.FacilityReport{a, b}

	got := Deduplicate(records, DefaultOptions())
	require.Len(t, got, 1)
	got[0].Sources[0].Name = "changed"

	assert.Equal(t, "f1", records[0].FactoryID)
	assert.Equal(t, []string{"s1"}, sourceIDs(records[0].Sources))
	assert.Equal(t, "", records[1].Sources[0].Name)
}

func TestUnionSources_LatestMetadataWins(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	a := report("f1", "n", "x", 0, 0)
	a.Sources = []model.SourceRef{{ID: "s1", FileCount: 1, LatestUpload: t1}}
	b := report("f2", "n", "x", 0, 0)
	b.Sources = []model.SourceRef{{ID: "s1", FileCount: 2, LatestUpload: t2}}

	got := unionSources([]model.FacilityReport{a, b})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].FileCount)
}

func TestMerge_Empty(t *testing.T) {
	got := Merge(nil)
	assert.NotNil(t, got.Sources)
	assert.Empty(t, got.Sources)
}

func TestUnionSources_KeepsNewestMemberGeoTime(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	may := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a := report("f1", "n", "x", 0, 0, "s1", "shared")
	a.GeoUpdatedAt = jan
	b := report("f2", "n", "x", 0, 0, "c", "shared")
	b.GeoUpdatedAt = may

	got := unionSources([]model.FacilityReport{a, b})
	byID := make(map[string]time.Time, len(got))
	for _, s := range got {
		byID[s.ID] = s.GeoUpdatedAt
	}
	assert.Equal(t, jan, byID["s1"])
	assert.Equal(t, may, byID["c"])
	assert.Equal(t, may, byID["shared"])
}
