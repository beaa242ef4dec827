// Package models defines the records persisted by the sync engine and the
// normalized shapes provider adapters hand to it.
package models

import "time"

// Entity is the local canonical record for a real-world contact.
type Entity struct {
	ID          string
	UserID      string
	Name        string
	Description string

	// ExternalSource and ExternalID are the provider and provider-native id of
	// the import that first created the entity.
	ExternalSource string
	ExternalID     string

	Metadata EntityMetadata

	CreatedAt time.Time
	UpdatedAt time.Time
	// DeletedAt is set when the entity is soft-deleted; the engine never
	// removes rows.
	DeletedAt *time.Time
}

// IdentifierKind is the type of a contact point.
type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierPhone IdentifierKind = "phone"
)

// Identifier is a typed contact point attached to exactly one Entity.
// (EntityID, Kind, NormalizedValue) is unique.
type Identifier struct {
	ID              string
	EntityID        string
	Kind            IdentifierKind
	Value           string
	NormalizedValue string
	IsPrimary       bool
	CreatedAt       time.Time
}
