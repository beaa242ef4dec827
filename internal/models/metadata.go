package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// EntityMetadata is the provenance stored on an Entity. It replaces an open
// key/value bag with the fixed key set the engine reads and writes.
type EntityMetadata struct {
	// Sources lists every provider that has ever contributed to the entity.
	Sources []string `json:"sources,omitempty"`
	// ExternalIDs maps a provider name to its opaque id for the entity.
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	PhotoURL    string            `json:"photo_url,omitempty"`
}

// HasSource reports whether provider is already recorded in Sources.
func (m EntityMetadata) HasSource(provider string) bool {
	return slices.Contains(m.Sources, provider)
}

// Clone returns a deep copy so merge planning never aliases stored state.
func (m EntityMetadata) Clone() EntityMetadata {
	out := EntityMetadata{PhotoURL: m.PhotoURL}
	if m.Sources != nil {
		out.Sources = slices.Clone(m.Sources)
	}
	if m.ExternalIDs != nil {
		out.ExternalIDs = make(map[string]string, len(m.ExternalIDs))
		for k, v := range m.ExternalIDs {
			out.ExternalIDs[k] = v
		}
	}
	return out
}

// Equal compares two metadata values; Sources order is significant.
func (m EntityMetadata) Equal(o EntityMetadata) bool {
	if m.PhotoURL != o.PhotoURL || !slices.Equal(m.Sources, o.Sources) || len(m.ExternalIDs) != len(o.ExternalIDs) {
		return false
	}
	for k, v := range m.ExternalIDs {
		if ov, ok := o.ExternalIDs[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (m EntityMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *EntityMetadata) Scan(src any) error {
	return scanJSON(src, m)
}

// EventSyncMetadata holds the provider's version tag for an Event.
type EventSyncMetadata struct {
	ETag   string `json:"etag,omitempty"`
	Source string `json:"source,omitempty"`
}

func (m EventSyncMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *EventSyncMetadata) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
}
