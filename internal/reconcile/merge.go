package reconcile

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

// ContactPlan is the write set computed for one incoming contact record.
type ContactPlan struct {
	Outcome models.Outcome
	// Entity is the entity to persist: a new one when Create is set, else an
	// updated copy of the matched entity.
	Entity *models.Entity
	Create bool
	// EntityChanged is false when the matched entity needs no UPDATE.
	EntityChanged bool
	// Identifiers are the contact points to add. IsPrimary is decided against
	// the identifiers the entity already had.
	Identifiers []models.Identifier
}

// Description picks the description an incoming record offers: organization
// first, then notes.
func Description(rec models.ContactRecord) string {
	if org := strings.TrimSpace(rec.Organization); org != "" {
		return org
	}
	return strings.TrimSpace(rec.Notes)
}

// PlanContactCreate builds the plan for a record that matched nothing.
func PlanContactCreate(userID, provider string, rec models.ContactRecord, now time.Time) ContactPlan {
	name, ok := UsableName(rec)
	if !ok {
		return ContactPlan{Outcome: models.OutcomeSkipped}
	}

	metadata, _ := AccumulateMetadata(models.EntityMetadata{}, provider, rec)
	e := &models.Entity{
		UserID:         userID,
		Name:           name,
		Description:    Description(rec),
		ExternalSource: provider,
		ExternalID:     RecordExternalID(provider, rec),
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if e.ExternalID == "" {
		e.ExternalSource = ""
	}

	return ContactPlan{
		Outcome:       models.OutcomeCreated,
		Entity:        e,
		Create:        true,
		EntityChanged: true,
		Identifiers:   newIdentifiers(nil, rec),
	}
}

// PlanContactMerge builds the conservative update of existing from rec.
// Nothing is ever blanked: the name changes only to a more complete one, the
// description is filled only when empty and identifiers are only added.
func PlanContactMerge(existing *models.Entity, current []models.Identifier, provider string, rec models.ContactRecord, now time.Time) ContactPlan {
	name, ok := UsableName(rec)
	if !ok {
		return ContactPlan{Outcome: models.OutcomeSkipped}
	}

	updated := *existing
	changed := false

	if MoreComplete(existing.Name, name) {
		updated.Name = name
		changed = true
	}

	if strings.TrimSpace(existing.Description) == "" {
		if d := Description(rec); d != "" {
			updated.Description = d
			changed = true
		}
	}

	metadata, metaChanged := AccumulateMetadata(existing.Metadata, provider, rec)
	updated.Metadata = metadata
	changed = changed || metaChanged

	if changed {
		updated.UpdatedAt = now
	}

	ids := newIdentifiers(current, rec)
	for i := range ids {
		ids[i].EntityID = existing.ID
	}

	return ContactPlan{
		Outcome:       models.OutcomeMerged,
		Entity:        &updated,
		EntityChanged: changed,
		Identifiers:   ids,
	}
}

// newIdentifiers lists the email/phone of rec not already present in
// current. The first identifier of a kind an entity ever gets is primary.
func newIdentifiers(current []models.Identifier, rec models.ContactRecord) []models.Identifier {
	have := make(map[models.IdentifierKind]map[string]bool)
	for _, id := range current {
		if have[id.Kind] == nil {
			have[id.Kind] = make(map[string]bool)
		}
		have[id.Kind][id.NormalizedValue] = true
	}

	candidates := []models.Identifier{
		{Kind: models.IdentifierEmail, Value: strings.TrimSpace(rec.Email), NormalizedValue: NormalizeEmail(rec.Email)},
		{Kind: models.IdentifierPhone, Value: strings.TrimSpace(rec.Phone), NormalizedValue: NormalizePhone(rec.Phone)},
	}

	var out []models.Identifier
	for _, c := range candidates {
		if c.NormalizedValue == "" || have[c.Kind][c.NormalizedValue] {
			continue
		}
		c.IsPrimary = len(have[c.Kind]) == 0
		if have[c.Kind] == nil {
			have[c.Kind] = make(map[string]bool)
		}
		have[c.Kind][c.NormalizedValue] = true
		out = append(out, c)
	}
	return out
}
