// Package google adapts the Google People, Gmail and Calendar APIs to the
// provider capability. A Google connection has three contact feeds: saved
// connections, "other contacts" and senders of recent Gmail messages.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/providers"
	"github.com/tidwall/gjson"
)

const (
	SourceConnections   = "connections"
	SourceOtherContacts = "other_contacts"
	SourceGmailSenders  = "gmail_senders"
)

const personFields = "names,emailAddresses,phoneNumbers,organizations,biographies,photos"

// Options configures endpoints and limits. Zero values take defaults.
type Options struct {
	PeopleURL   string
	GmailURL    string
	CalendarURL string

	// SenderQuery is the Gmail search selecting messages whose senders
	// become contacts.
	SenderQuery string
	FanOutLimit int
	ItemTimeout time.Duration
	// EventsLookback bounds how far back events are fetched.
	EventsLookback time.Duration
}

func (o *Options) defaults() {
	if o.PeopleURL == "" {
		o.PeopleURL = "https://people.googleapis.com/v1"
	}
	if o.GmailURL == "" {
		o.GmailURL = "https://gmail.googleapis.com/gmail/v1"
	}
	if o.CalendarURL == "" {
		o.CalendarURL = "https://www.googleapis.com/calendar/v3"
	}
	if o.SenderQuery == "" {
		o.SenderQuery = "in:inbox newer_than:90d"
	}
	if o.FanOutLimit < 1 {
		o.FanOutLimit = providers.DefaultFanOutLimit
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = 10 * time.Second
	}
	if o.EventsLookback <= 0 {
		o.EventsLookback = 30 * 24 * time.Hour
	}
}

type Provider struct {
	http *providers.HTTPClient
	opts Options
	now  func() time.Time
}

func New(client *providers.HTTPClient, opts Options) *Provider {
	opts.defaults()
	return &Provider{http: client, opts: opts, now: time.Now}
}

func (p *Provider) Kind() models.Provider { return models.ProviderGoogle }

func (p *Provider) ContactSources() []string {
	return []string{SourceConnections, SourceOtherContacts, SourceGmailSenders}
}

func (p *Provider) FetchContacts(ctx context.Context, token, source, cursor string) (providers.ContactPage, error) {
	switch source {
	case SourceConnections:
		return p.fetchPeople(ctx, token, cursor, "/people/me/connections", "personFields", "connections")
	case SourceOtherContacts:
		return p.fetchPeople(ctx, token, cursor, "/otherContacts", "readMask", "otherContacts")
	case SourceGmailSenders:
		return p.fetchSenders(ctx, token, cursor)
	default:
		return providers.ContactPage{}, unknownSource(source)
	}
}

func (p *Provider) fetchPeople(ctx context.Context, token, cursor, path, maskParam, listField string) (providers.ContactPage, error) {
	q := url.Values{}
	q.Set(maskParam, personFields)
	q.Set("pageSize", "1000")
	if cursor != "" {
		q.Set("pageToken", cursor)
	}
	body, err := p.http.Do(ctx, providers.Request{URL: p.opts.PeopleURL + path + "?" + q.Encode(), Token: token})
	if err != nil {
		return providers.ContactPage{}, err
	}

	doc := gjson.ParseBytes(body)
	var page providers.ContactPage
	doc.Get(listField).ForEach(func(_, person gjson.Result) bool {
		page.Records = append(page.Records, personRecord(person))
		return true
	})
	page.NextCursor = doc.Get("nextPageToken").String()
	return page, nil
}

func personRecord(person gjson.Result) models.ContactRecord {
	id := person.Get("resourceName").String()
	rec := models.ContactRecord{
		Name:         first(person, "names", "displayName"),
		Email:        first(person, "emailAddresses", "value"),
		Phone:        first(person, "phoneNumbers", "value"),
		Organization: first(person, "organizations", "name"),
		Notes:        first(person, "biographies", "value"),
		ExternalID:   id,
		Metadata: models.RecordMetadata{
			Source:   string(models.ProviderGoogle),
			PhotoURL: first(person, "photos", "url"),
		},
	}
	if id != "" {
		rec.Metadata.ExternalIDs = map[string]string{string(models.ProviderGoogle): id}
	}
	return rec
}

// first returns field of the primary element of list, or of its first one.
func first(r gjson.Result, list, field string) string {
	if v := r.Get(list + ".#(metadata.primary==true)." + field); v.Exists() {
		return strings.TrimSpace(v.String())
	}
	return strings.TrimSpace(r.Get(list + ".0." + field).String())
}

// fetchSenders lists one page of messages and turns their From headers into
// contact records. Message metadata is fetched with a bounded fan-out; a
// message that cannot be read is dropped from the page.
func (p *Provider) fetchSenders(ctx context.Context, token, cursor string) (providers.ContactPage, error) {
	q := url.Values{}
	q.Set("q", p.opts.SenderQuery)
	q.Set("maxResults", "100")
	if cursor != "" {
		q.Set("pageToken", cursor)
	}
	body, err := p.http.Do(ctx, providers.Request{URL: p.opts.GmailURL + "/users/me/messages?" + q.Encode(), Token: token})
	if err != nil {
		return providers.ContactPage{}, err
	}
	doc := gjson.ParseBytes(body)

	var ids []string
	doc.Get("messages.#.id").ForEach(func(_, id gjson.Result) bool {
		ids = append(ids, id.String())
		return true
	})

	froms, itemErrs := providers.FanOut(ctx, ids, p.opts.FanOutLimit, p.opts.ItemTimeout, func(ctx context.Context, id string) (string, error) {
		u := p.opts.GmailURL + "/users/me/messages/" + url.PathEscape(id) + "?format=metadata&metadataHeaders=From"
		b, err := p.http.Do(ctx, providers.Request{URL: u, Token: token})
		if err != nil {
			return "", err
		}
		return gjson.GetBytes(b, `payload.headers.#(name=="From").value`).String(), nil
	})

	if len(ids) > 0 && len(froms) == 0 {
		return providers.ContactPage{}, fmt.Errorf("message details: %w", errors.Join(itemErrs...))
	}

	page := providers.ContactPage{NextCursor: doc.Get("nextPageToken").String(), ItemErrors: itemErrs}
	seen := make(map[string]bool)
	for _, from := range froms {
		rec, ok := senderRecord(from)
		if !ok || seen[rec.Email] {
			continue
		}
		seen[rec.Email] = true
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

func senderRecord(from string) (models.ContactRecord, bool) {
	addr, err := mail.ParseAddress(from)
	if err != nil || addr.Address == "" {
		return models.ContactRecord{}, false
	}
	email := strings.ToLower(addr.Address)
	local, _, _ := strings.Cut(email, "@")
	if strings.Contains(local, "noreply") || strings.Contains(local, "no-reply") {
		return models.ContactRecord{}, false
	}
	return models.ContactRecord{
		Name:     strings.TrimSpace(addr.Name),
		Email:    email,
		Metadata: models.RecordMetadata{Source: string(models.ProviderGoogle)},
	}, true
}

// FetchEvents returns the primary calendar's events from the lookback
// window on, following pages to the end. Cancelled events are dropped.
func (p *Provider) FetchEvents(ctx context.Context, token string) ([]models.EventRecord, error) {
	var out []models.EventRecord
	cursor := ""
	for {
		q := url.Values{}
		q.Set("singleEvents", "true")
		q.Set("maxResults", "250")
		q.Set("timeMin", p.now().Add(-p.opts.EventsLookback).UTC().Format(time.RFC3339))
		if cursor != "" {
			q.Set("pageToken", cursor)
		}
		body, err := p.http.Do(ctx, providers.Request{URL: p.opts.CalendarURL + "/calendars/primary/events?" + q.Encode(), Token: token})
		if err != nil {
			return nil, err
		}
		doc := gjson.ParseBytes(body)
		doc.Get("items").ForEach(func(_, item gjson.Result) bool {
			if item.Get("status").String() == "cancelled" {
				return true
			}
			out = append(out, eventRecord(item))
			return true
		})
		cursor = doc.Get("nextPageToken").String()
		if cursor == "" {
			return out, nil
		}
	}
}

func eventRecord(item gjson.Result) models.EventRecord {
	start, allDay := eventTime(item.Get("start"))
	end, _ := eventTime(item.Get("end"))
	return models.EventRecord{
		Title:       strings.TrimSpace(item.Get("summary").String()),
		Description: item.Get("description").String(),
		Location:    item.Get("location").String(),
		StartsAt:    start,
		EndsAt:      end,
		AllDay:      allDay,
		ExternalID:  item.Get("id").String(),
		ETag:        item.Get("etag").String(),
	}
}

func eventTime(r gjson.Result) (time.Time, bool) {
	if d := r.Get("date").String(); d != "" {
		t, _ := time.Parse(time.DateOnly, d)
		return t, true
	}
	t, _ := time.Parse(time.RFC3339, r.Get("dateTime").String())
	return t.UTC(), false
}

func (p *Provider) CreateEvent(ctx context.Context, token string, rec models.EventRecord) (models.EventRecord, error) {
	return p.writeEvent(ctx, http.MethodPost, p.opts.CalendarURL+"/calendars/primary/events", token, rec)
}

func (p *Provider) UpdateEvent(ctx context.Context, token string, rec models.EventRecord) (models.EventRecord, error) {
	u := p.opts.CalendarURL + "/calendars/primary/events/" + url.PathEscape(rec.ExternalID)
	return p.writeEvent(ctx, http.MethodPut, u, token, rec)
}

func (p *Provider) writeEvent(ctx context.Context, method, u, token string, rec models.EventRecord) (models.EventRecord, error) {
	body, err := p.http.Do(ctx, providers.Request{Method: method, URL: u, Token: token, Body: eventBody(rec)})
	if err != nil {
		return models.EventRecord{}, err
	}
	return eventRecord(gjson.ParseBytes(body)), nil
}

func eventBody(rec models.EventRecord) map[string]any {
	return map[string]any{
		"summary":     rec.Title,
		"description": rec.Description,
		"location":    rec.Location,
		"start":       timeBody(rec.StartsAt, rec.AllDay),
		"end":         timeBody(rec.EndsAt, rec.AllDay),
	}
}

func timeBody(t time.Time, allDay bool) map[string]string {
	if allDay {
		return map[string]string{"date": t.Format(time.DateOnly)}
	}
	return map[string]string{"dateTime": t.UTC().Format(time.RFC3339)}
}
