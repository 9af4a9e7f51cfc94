package model

import "time"

// TempStatus is the lifecycle state of a pending upload row.
type TempStatus string

// Temp statuses. Transitions are Unprocessed -> Processing -> Processed; the
// reclaim sweep is the only path from Processing back to Unprocessed.
const (
	TempUnprocessed TempStatus = "unprocessed"
	TempProcessing  TempStatus = "processing"
	TempProcessed   TempStatus = "processed"
)

// RawRow is one uploaded CSV row. Extra keeps every column the pipeline does
// not interpret, including optional "lat"/"lng" supplied by the uploader.
type RawRow struct {
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Country string            `json:"country"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// TempMatch is a ranked candidate stored on a pending row for review.
type TempMatch struct {
	FactoryID    string  `json:"factory_id"`
	AddressID    string  `json:"address_id"`
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	NameScore    float64 `json:"name_score"`
	AddressScore float64 `json:"address_score"`
	Confidence   bool    `json:"confidence"`
	Confirm      bool    `json:"confirm"`
}

// Temp is one uploaded row awaiting resolution.
type Temp struct {
	ID           string      `json:"id" db:"id"`
	UploaderID   string      `json:"uploader_id" db:"uploader_id"`
	UploaderName string      `json:"uploader_name" db:"uploader_name"`
	UserType     string      `json:"user_type" db:"user_type"`
	File         UploadFile  `json:"file" db:"file"`
	Row          RawRow      `json:"row" db:"row"`
	Matches      []TempMatch `json:"matches" db:"matches"`
	Status       TempStatus  `json:"status" db:"status"`
	SourceID     string      `json:"source_id,omitempty" db:"source_id"`
	FactoryID    string      `json:"factory_id,omitempty" db:"factory_id"`
	AddressID    string      `json:"address_id,omitempty" db:"address_id"`
	ClaimedAt    *time.Time  `json:"claimed_at,omitempty" db:"claimed_at"`
	Processed    *time.Time  `json:"processed,omitempty" db:"processed"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// IsProcessed reports whether the row has already been resolved.
func (t *Temp) IsProcessed() bool {
	return t.Status == TempProcessed || t.Processed != nil
}

// SourceKey returns the find-or-create key for the row's Source.
func (t *Temp) SourceKey() SourceKey {
	return SourceKey{UploaderID: t.UploaderID, Name: t.UploaderName}
}
