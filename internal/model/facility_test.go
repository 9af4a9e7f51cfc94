package model

import (
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_AppendFile(t *testing.T) {
	t.Parallel()

	s := Source{}
	assert.True(t, s.AppendFile(UploadFile{ID: "f1"}))
	assert.True(t, s.AppendFile(UploadFile{ID: "f2"}))
	assert.False(t, s.AppendFile(UploadFile{ID: "f1", Name: "renamed"}))
	require.Len(t, s.Files, 2)
	assert.Equal(t, "", s.Files[0].Name)
}

func TestSource_LatestUploadAndRef(t *testing.T) {
	t.Parallel()

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	s := Source{
		ID:         "s1",
		UploaderID: "u1",
		Name:       "Brand",
		UserType:   UserTypeContributor,
		Files:      []UploadFile{{ID: "b", UploadedAt: late}, {ID: "a", UploadedAt: early}},
	}

	assert.Equal(t, late, s.LatestUpload())
	assert.True(t, (&Source{}).LatestUpload().IsZero())

	ref := s.Ref()
	assert.Equal(t, SourceRef{ID: "s1", UploaderID: "u1", Name: "Brand", UserType: UserTypeContributor, FileCount: 2, LatestUpload: late}, ref)
}

func TestTemp_IsProcessed(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.False(t, (&Temp{Status: TempUnprocessed}).IsProcessed())
	assert.False(t, (&Temp{Status: TempProcessing}).IsProcessed())
	assert.True(t, (&Temp{Status: TempProcessed}).IsProcessed())
	assert.True(t, (&Temp{Status: TempProcessing, Processed: &now}).IsProcessed())
}

func TestTemp_SourceKey(t *testing.T) {
	t.Parallel()

	tmp := Temp{UploaderID: "u1", UploaderName: "Brand A"}
	assert.Equal(t, SourceKey{UploaderID: "u1", Name: "Brand A"}, tmp.SourceKey())
}

func TestPassthrough_NonNilSlices(t *testing.T) {
	t.Parallel()

	c := Passthrough(FacilityReport{FactoryID: "f1"})
	assert.NotNil(t, c.Sources)
	assert.NotNil(t, c.OtherNames)
	assert.NotNil(t, c.OtherFactoryIDs)
	assert.NotNil(t, c.OtherAddresses)
	assert.NotNil(t, c.OtherAddressIDs)
	assert.Equal(t, "f1", c.FactoryID)
}

func TestErrors_Is(t *testing.T) {
	t.Parallel()

	missing := eris.Wrap(MissingField("country"), "match: validate")
	assert.True(t, errors.Is(missing, ErrMissingField))
	assert.False(t, errors.Is(missing, ErrNotFound))

	var mf *MissingFieldError
	require.True(t, errors.As(missing, &mf))
	assert.Equal(t, "country", mf.Field)

	cause := errors.New("conn refused")
	unavailable := eris.Wrap(Unavailable("store: claim temps", cause), "ingest: sweep")
	assert.True(t, errors.Is(unavailable, ErrStorageUnavailable))
	assert.True(t, errors.Is(unavailable, cause))
	assert.Contains(t, unavailable.Error(), "conn refused")

	assert.NoError(t, Unavailable("noop", nil))
	assert.True(t, errors.Is(eris.Wrapf(ErrNotFound, "store: temp %s", "t1"), ErrNotFound))
}
