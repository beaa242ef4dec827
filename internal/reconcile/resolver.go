package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
)

// ContactLookup is the read side the contact resolver needs. Each method
// returns common.ErrorNotFound when nothing matches; soft-deleted entities
// must never be returned.
type ContactLookup interface {
	GetByExternalID(ctx context.Context, userID, provider, externalID string) (*models.Entity, error)
	GetByIdentifier(ctx context.Context, userID string, kind models.IdentifierKind, normalized string) (*models.Entity, error)
	GetByName(ctx context.Context, userID, name string) (*models.Entity, error)
}

// MatchRule names the resolver rule that produced a match.
type MatchRule string

const (
	MatchNone       MatchRule = ""
	MatchExternalID MatchRule = "external_id"
	MatchEmail      MatchRule = "email"
	MatchPhone      MatchRule = "phone"
	MatchName       MatchRule = "name"

	// MatchTitleWindow is the event-only rule: equal title, close start.
	MatchTitleWindow MatchRule = "title_window"
)

// UsableName returns the trimmed record name and whether it can be used.
// Records without one are skipped before resolution.
func UsableName(rec models.ContactRecord) (string, bool) {
	name := NormalizeName(rec.Name)
	return name, name != ""
}

// RecordExternalID is the provider-native id of rec for provider: the
// record's own id, or the provider's entry in its metadata.
func RecordExternalID(provider string, rec models.ContactRecord) string {
	if id := strings.TrimSpace(rec.ExternalID); id != "" {
		return id
	}
	return strings.TrimSpace(rec.Metadata.ExternalIDs[provider])
}

// ResolveContact runs the ordered fallback chain and returns the first
// matching entity: external id for provider, then email, then phone, then the
// exact trimmed name. A nil entity with MatchNone means no match.
func ResolveContact(ctx context.Context, l ContactLookup, userID, provider string, rec models.ContactRecord) (*models.Entity, MatchRule, error) {
	if id := RecordExternalID(provider, rec); id != "" && provider != "" {
		e, err := l.GetByExternalID(ctx, userID, provider, id)
		if hit, err := found(e, err); err != nil {
			return nil, MatchNone, err
		} else if hit {
			return e, MatchExternalID, nil
		}
	}

	if email := NormalizeEmail(rec.Email); email != "" {
		e, err := l.GetByIdentifier(ctx, userID, models.IdentifierEmail, email)
		if hit, err := found(e, err); err != nil {
			return nil, MatchNone, err
		} else if hit {
			return e, MatchEmail, nil
		}
	}

	if phone := NormalizePhone(rec.Phone); phone != "" {
		e, err := l.GetByIdentifier(ctx, userID, models.IdentifierPhone, phone)
		if hit, err := found(e, err); err != nil {
			return nil, MatchNone, err
		} else if hit {
			return e, MatchPhone, nil
		}
	}

	if name, ok := UsableName(rec); ok {
		e, err := l.GetByName(ctx, userID, name)
		if hit, err := found(e, err); err != nil {
			return nil, MatchNone, err
		} else if hit {
			return e, MatchName, nil
		}
	}

	return nil, MatchNone, nil
}

func found(e *models.Entity, err error) (bool, error) {
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e != nil, nil
}
