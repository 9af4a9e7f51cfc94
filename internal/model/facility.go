// Package model defines the facility registry records shared by the matcher,
// the deduplicator and the ingestion pipeline.
package model

import (
	"time"
)

// Factory is the canonical facility name record.
type Factory struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Country   string    `json:"country" db:"country"`
	SourceIDs []string  `json:"source_ids" db:"source_ids"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Address is a street address shared by one or more factories.
type Address struct {
	ID             string    `json:"id" db:"id"`
	Address        string    `json:"address" db:"address"`
	Country        string    `json:"country" db:"country"`
	RelatedFactory []string  `json:"related_factory" db:"related_factory"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Geo is a geocoded point. It is the unit of spatial deduplication.
type Geo struct {
	ID             string    `json:"id" db:"id"`
	Latitude       float64   `json:"latitude" db:"latitude"`
	Longitude      float64   `json:"longitude" db:"longitude"`
	Country        string    `json:"country" db:"country"`
	RelatedAddress []string  `json:"related_address" db:"related_address"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// UploadFile identifies one physical upload. UploadedAt replaces the
// timestamp that used to be embedded in the file identifier string.
type UploadFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// User types.
const (
	UserTypeContributor = "contributor"
	UserTypeSeed        = "seed"
)

// ValidUserType reports whether t is a known user type.
func ValidUserType(t string) bool {
	return t == UserTypeContributor || t == UserTypeSeed
}

// Source is a contributor's upload identity.
type Source struct {
	ID         string       `json:"id" db:"id"`
	UploaderID string       `json:"uploader_id" db:"uploader_id"`
	Name       string       `json:"name" db:"name"`
	Files      []UploadFile `json:"files" db:"files"`
	UserType   string       `json:"user_type" db:"user_type"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

// SourceKey is the find-or-create key for a Source.
type SourceKey struct {
	UploaderID string
	Name       string
}

// AppendFile adds f unless a file with the same ID is already recorded.
// It reports whether the list changed.
func (s *Source) AppendFile(f UploadFile) bool {
	for _, existing := range s.Files {
		if existing.ID == f.ID {
			return false
		}
	}
	s.Files = append(s.Files, f)
	return true
}

// LatestUpload returns the most recent upload timestamp, or the zero time
// when the source has no files.
func (s *Source) LatestUpload() time.Time {
	var latest time.Time
	for _, f := range s.Files {
		if f.UploadedAt.After(latest) {
			latest = f.UploadedAt
		}
	}
	return latest
}

// Ref returns the flattened view of s carried on facility reports.
func (s *Source) Ref() SourceRef {
	return SourceRef{
		ID:           s.ID,
		UploaderID:   s.UploaderID,
		Name:         s.Name,
		UserType:     s.UserType,
		FileCount:    len(s.Files),
		LatestUpload: s.LatestUpload(),
	}
}

// Confirm records a user's acceptance of a pending match.
type Confirm struct {
	ID             string    `json:"id" db:"id"`
	ClaimedName    string    `json:"claimed_name" db:"claimed_name"`
	ClaimedAddress string    `json:"claimed_address" db:"claimed_address"`
	SourceID       string    `json:"source_id" db:"source_id"`
	TempID         string    `json:"temp_id" db:"temp_id"`
	FactoryID      string    `json:"factory_id" db:"factory_id"`
	AddressID      string    `json:"address_id" db:"address_id"`
	MatchedID      string    `json:"matched_id" db:"matched_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// FactoryAddress is one existing Factory+Address pair considered by the matcher.
type FactoryAddress struct {
	FactoryID string `json:"factory_id"`
	AddressID string `json:"address_id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Country   string `json:"country"`
}
