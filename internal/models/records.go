package models

import "time"

// RecordMetadata is the recognised metadata carried by a normalized contact
// record.
type RecordMetadata struct {
	Source      string            `json:"source,omitempty"`
	Sources     []string          `json:"sources,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	PhotoURL    string            `json:"photo_url,omitempty"`
}

// ContactRecord is one externally sourced contact, already normalized by a
// provider adapter.
type ContactRecord struct {
	Name         string         `json:"name,omitempty"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	ExternalID   string         `json:"external_id,omitempty"`
	Metadata     RecordMetadata `json:"metadata"`
}

// EventRecord is one externally sourced calendar event.
type EventRecord struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	AllDay      bool      `json:"all_day"`
	ExternalID  string    `json:"external_id"`
	ETag        string    `json:"etag,omitempty"`
}
