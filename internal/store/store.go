// Package store persists the facility graph and the ingestion queue.
//
// The Geo-Address-Factory-Source chain is held as entities keyed by stable
// identifiers with explicit relation lists; no entity embeds another.
package store

import (
	"context"
	"time"

	"github.com/sells-group/facility-registry/internal/model"
)

// ReportQuery narrows ListReports.
type ReportQuery struct {
	// NamePattern matches, case- and punctuation-insensitively, any part of
	// the factory name. Empty matches everything.
	NamePattern string `json:"name,omitempty"`
	// Country restricts to one ISO country code. Empty matches everything.
	Country string `json:"country,omitempty"`
}

// Store defines the persistence interface for the facility registry.
type Store interface {
	// Matching and reporting
	ListCandidates(ctx context.Context, country string) ([]model.FactoryAddress, error)
	ListReports(ctx context.Context, q ReportQuery) ([]model.FacilityReport, error)

	// Facility graph
	CreateFactory(ctx context.Context, f model.Factory) (*model.Factory, error)
	AddFactorySource(ctx context.Context, factoryID, sourceID string) error
	CreateAddress(ctx context.Context, a model.Address) (*model.Address, error)
	RelateAddressFactory(ctx context.Context, addressID, factoryID string) error
	FindOrCreateGeo(ctx context.Context, lat, lng float64, country string, now time.Time) (*model.Geo, error)
	RelateGeoAddress(ctx context.Context, geoID, addressID string) error

	// Sources
	FindOrCreateSource(ctx context.Context, key model.SourceKey, userType string, file model.UploadFile, now time.Time) (*model.Source, error)
	DuplicateSources(ctx context.Context) ([][]model.Source, error)
	MergeSources(ctx context.Context, keep model.Source, duplicateIDs []string) error

	// Pending rows
	EnqueueTemps(ctx context.Context, temps []model.Temp) error
	ClaimTemps(ctx context.Context, limit int, now time.Time) ([]model.Temp, error)
	CompleteTemp(ctx context.Context, t model.Temp, now time.Time) error
	ReclaimStale(ctx context.Context, claimedBefore time.Time) (int, error)
	GetTemp(ctx context.Context, id string) (*model.Temp, error)
	SetMatchConfirmed(ctx context.Context, tempID string, index int) error

	// Confirmations
	CreateConfirm(ctx context.Context, c model.Confirm) (*model.Confirm, error)
	FindConfirm(ctx context.Context, tempID, matchedID string) (*model.Confirm, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// matchesName reports whether name contains pattern after normalization.
func matchesName(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	return containsKey(name, pattern)
}
