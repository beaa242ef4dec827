// Package microsoft adapts Microsoft Graph contacts and calendar to the
// provider capability.
package microsoft

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/providers"
	"github.com/tidwall/gjson"
)

const SourceContacts = "contacts"

// Graph returns date-times without an offset in the zone named by the
// Prefer header; we always ask for UTC.
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

const nextLinkKey = "@odata.nextLink"

type Options struct {
	GraphURL       string
	EventsLookback time.Duration
}

type Provider struct {
	http *providers.HTTPClient
	opts Options
	now  func() time.Time
}

func New(client *providers.HTTPClient, opts Options) *Provider {
	if opts.GraphURL == "" {
		opts.GraphURL = "https://graph.microsoft.com/v1.0"
	}
	if opts.EventsLookback <= 0 {
		opts.EventsLookback = 30 * 24 * time.Hour
	}
	opts.GraphURL = strings.TrimRight(opts.GraphURL, "/")
	return &Provider{http: client, opts: opts, now: time.Now}
}

func (p *Provider) Kind() models.Provider { return models.ProviderMicrosoft }

func (p *Provider) ContactSources() []string { return []string{SourceContacts} }

// FetchContacts reads one page of /me/contacts. The cursor is Graph's
// nextLink, which must point back at the configured Graph endpoint so a
// bearer token is never sent elsewhere.
func (p *Provider) FetchContacts(ctx context.Context, token, source, cursor string) (providers.ContactPage, error) {
	if source != SourceContacts {
		return providers.ContactPage{}, fmt.Errorf("%w: microsoft has no contact source %q", common.ErrProvider, source)
	}
	u, err := p.pageURL(cursor, "/me/contacts?$top=100")
	if err != nil {
		return providers.ContactPage{}, err
	}
	body, err := p.http.Do(ctx, providers.Request{URL: u, Token: token})
	if err != nil {
		return providers.ContactPage{}, err
	}

	doc := gjson.ParseBytes(body)
	var page providers.ContactPage
	doc.Get("value").ForEach(func(_, c gjson.Result) bool {
		page.Records = append(page.Records, contactRecord(c))
		return true
	})
	page.NextCursor = nextLink(doc)
	return page, nil
}

func (p *Provider) pageURL(cursor, first string) (string, error) {
	if cursor == "" {
		return p.opts.GraphURL + first, nil
	}
	if !strings.HasPrefix(cursor, p.opts.GraphURL+"/") {
		return "", fmt.Errorf("%w: unexpected next link %q", common.ErrProvider, cursor)
	}
	return cursor, nil
}

// nextLink reads the top-level "@odata.nextLink"; gjson would treat a path
// starting with '@' as a modifier.
func nextLink(doc gjson.Result) string {
	var link string
	doc.ForEach(func(k, v gjson.Result) bool {
		if k.String() == nextLinkKey {
			link = v.String()
			return false
		}
		return true
	})
	return link
}

func contactRecord(c gjson.Result) models.ContactRecord {
	name := strings.TrimSpace(c.Get("displayName").String())
	if name == "" {
		name = strings.TrimSpace(c.Get("givenName").String() + " " + c.Get("surname").String())
	}
	phone := c.Get("mobilePhone").String()
	if phone == "" {
		phone = c.Get("businessPhones.0").String()
	}
	if phone == "" {
		phone = c.Get("homePhones.0").String()
	}
	id := c.Get("id").String()
	rec := models.ContactRecord{
		Name:         name,
		Email:        strings.TrimSpace(c.Get("emailAddresses.0.address").String()),
		Phone:        strings.TrimSpace(phone),
		Organization: strings.TrimSpace(c.Get("companyName").String()),
		Notes:        c.Get("personalNotes").String(),
		ExternalID:   id,
		Metadata:     models.RecordMetadata{Source: string(models.ProviderMicrosoft)},
	}
	if id != "" {
		rec.Metadata.ExternalIDs = map[string]string{string(models.ProviderMicrosoft): id}
	}
	return rec
}

func utcHeader() http.Header {
	h := http.Header{}
	h.Set("Prefer", `outlook.timezone="UTC"`)
	return h
}

// FetchEvents returns events starting after the lookback point, following
// nextLinks to the end. Cancelled events are dropped.
func (p *Provider) FetchEvents(ctx context.Context, token string) ([]models.EventRecord, error) {
	q := url.Values{}
	q.Set("$top", "100")
	q.Set("$filter", fmt.Sprintf("start/dateTime ge '%s'", p.now().Add(-p.opts.EventsLookback).UTC().Format(graphTimeLayout)))
	first := "/me/events?" + q.Encode()

	var out []models.EventRecord
	cursor := ""
	for {
		u, err := p.pageURL(cursor, first)
		if err != nil {
			return nil, err
		}
		body, err := p.http.Do(ctx, providers.Request{URL: u, Token: token, Header: utcHeader()})
		if err != nil {
			return nil, err
		}
		doc := gjson.ParseBytes(body)
		doc.Get("value").ForEach(func(_, ev gjson.Result) bool {
			if !ev.Get("isCancelled").Bool() {
				out = append(out, eventRecord(ev))
			}
			return true
		})
		if cursor = nextLink(doc); cursor == "" {
			return out, nil
		}
	}
}

func eventRecord(ev gjson.Result) models.EventRecord {
	return models.EventRecord{
		Title:       strings.TrimSpace(ev.Get("subject").String()),
		Description: ev.Get("bodyPreview").String(),
		Location:    ev.Get("location.displayName").String(),
		StartsAt:    graphTime(ev.Get("start.dateTime").String()),
		EndsAt:      graphTime(ev.Get("end.dateTime").String()),
		AllDay:      ev.Get("isAllDay").Bool(),
		ExternalID:  ev.Get("id").String(),
		ETag:        ev.Get("changeKey").String(),
	}
}

func graphTime(s string) time.Time {
	t, err := time.Parse(graphTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (p *Provider) CreateEvent(ctx context.Context, token string, rec models.EventRecord) (models.EventRecord, error) {
	return p.writeEvent(ctx, http.MethodPost, p.opts.GraphURL+"/me/events", token, rec)
}

func (p *Provider) UpdateEvent(ctx context.Context, token string, rec models.EventRecord) (models.EventRecord, error) {
	return p.writeEvent(ctx, http.MethodPatch, p.opts.GraphURL+"/me/events/"+url.PathEscape(rec.ExternalID), token, rec)
}

func (p *Provider) writeEvent(ctx context.Context, method, u, token string, rec models.EventRecord) (models.EventRecord, error) {
	body, err := p.http.Do(ctx, providers.Request{
		Method: method,
		URL:    u,
		Token:  token,
		Body:   eventBody(rec),
		Header: utcHeader(),
	})
	if err != nil {
		return models.EventRecord{}, err
	}
	return eventRecord(gjson.ParseBytes(body)), nil
}

func eventBody(rec models.EventRecord) map[string]any {
	return map[string]any{
		"subject":  rec.Title,
		"body":     map[string]string{"contentType": "text", "content": rec.Description},
		"location": map[string]string{"displayName": rec.Location},
		"start":    map[string]string{"dateTime": rec.StartsAt.UTC().Format(graphTimeLayout), "timeZone": "UTC"},
		"end":      map[string]string{"dateTime": rec.EndsAt.UTC().Format(graphTimeLayout), "timeZone": "UTC"},
		"isAllDay": rec.AllDay,
	}
}
