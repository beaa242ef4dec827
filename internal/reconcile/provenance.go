package reconcile

import (
	"strings"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

// AccumulateMetadata merges the provenance of rec, received from provider,
// into existing. Sources only grow, an external-id mapping is added only when
// its provider key is absent, and photo_url is filled only when empty.
// The returned bool reports whether anything was added.
func AccumulateMetadata(existing models.EntityMetadata, provider string, rec models.ContactRecord) (models.EntityMetadata, bool) {
	out := existing.Clone()
	changed := false

	addSource := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || out.HasSource(name) {
			return
		}
		out.Sources = append(out.Sources, name)
		changed = true
	}
	addSource(provider)
	addSource(rec.Metadata.Source)
	for _, s := range rec.Metadata.Sources {
		addSource(s)
	}

	addExternalID := func(key, id string) {
		key, id = strings.TrimSpace(key), strings.TrimSpace(id)
		if key == "" || id == "" {
			return
		}
		if out.ExternalIDs == nil {
			out.ExternalIDs = make(map[string]string)
		}
		if _, ok := out.ExternalIDs[key]; ok {
			return
		}
		out.ExternalIDs[key] = id
		changed = true
	}
	addExternalID(provider, rec.ExternalID)
	for k, v := range rec.Metadata.ExternalIDs {
		addExternalID(k, v)
	}

	if out.PhotoURL == "" && strings.TrimSpace(rec.Metadata.PhotoURL) != "" {
		out.PhotoURL = strings.TrimSpace(rec.Metadata.PhotoURL)
		changed = true
	}

	return out, changed
}
