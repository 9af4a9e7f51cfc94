package model

import "time"

// SourceRef is the provenance view of a Source carried on facility reports.
type SourceRef struct {
	ID           string    `json:"id"`
	UploaderID   string    `json:"uploader_id"`
	Name         string    `json:"name"`
	UserType     string    `json:"user_type"`
	FileCount    int       `json:"file_count"`
	LatestUpload time.Time `json:"latest_upload"`
	// GeoUpdatedAt is the last update of the geo record that listed this
	// source, set when reports merge. Zero means the carrying record's own.
	GeoUpdatedAt time.Time `json:"-"`
}

// ConfirmRef is a confirmation attached to a facility report.
type ConfirmRef struct {
	ID             string `json:"id"`
	SourceID       string `json:"source_id"`
	ClaimedName    string `json:"claimed_name"`
	ClaimedAddress string `json:"claimed_address"`
}

// FacilityReport is one flattened Geo x Address x Factory tuple.
type FacilityReport struct {
	GeoID        string       `json:"geo_id"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Country      string       `json:"country"`
	GeoUpdatedAt time.Time    `json:"geo_updated_at"`
	FactoryID    string       `json:"factory_id"`
	AddressID    string       `json:"address_id"`
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Sources      []SourceRef  `json:"sources"`
	Confirmed    []ConfirmRef `json:"confirmed,omitempty"`
}

// CanonicalFacility is the deduplicated view of one physical facility.
// OtherNames[i] belongs to OtherFactoryIDs[i]; OtherAddresses[i] to OtherAddressIDs[i].
type CanonicalFacility struct {
	FacilityReport
	OtherNames      []string `json:"other_names"`
	OtherFactoryIDs []string `json:"other_factory_ids"`
	OtherAddresses  []string `json:"other_addresses"`
	OtherAddressIDs []string `json:"other_address_ids"`
}

// Passthrough wraps a report that needed no merging.
func Passthrough(r FacilityReport) CanonicalFacility {
	if r.Sources == nil {
		r.Sources = []SourceRef{}
	}
	return CanonicalFacility{
		FacilityReport:  r,
		OtherNames:      []string{},
		OtherFactoryIDs: []string{},
		OtherAddresses:  []string{},
		OtherAddressIDs: []string{},
	}
}
