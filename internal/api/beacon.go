package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/graceworks/missionsync/internal/models"
)

// Beacon is the typed client for the CRM. Constituent, event and gift
// endpoints live under separate path prefixes but share one HTTP client,
// one token and one rate limit.
type Beacon struct {
	c        *Client
	pageSize int
}

func NewBeacon(c *Client, pageSize int) *Beacon {
	return &Beacon{c: c, pageSize: pageSize}
}

// GetConstituent fetches one constituent by CRM ID.
func (b *Beacon) GetConstituent(ctx context.Context, id string) (*models.Constituent, error) {
	var con models.Constituent
	if err := b.c.GetJSON(ctx, "/constituent/v1/constituents/"+url.PathEscape(id), nil, &con); err != nil {
		return nil, err
	}
	return &con, nil
}

// SearchConstituents runs the CRM's fuzzy text search. The CRM matches
// loosely (substrings, similar names), so callers must filter the results
// for exact matches themselves.
func (b *Beacon) SearchConstituents(ctx context.Context, text string) ([]models.ConstituentSearchResult, error) {
	q := url.Values{}
	q.Set("search_text", text)
	var list models.ConstituentSearchList
	if err := b.c.GetJSON(ctx, "/constituent/v1/constituents/search", q, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// CreateConstituent creates a constituent and returns the new CRM ID.
func (b *Beacon) CreateConstituent(ctx context.Context, con *models.Constituent) (string, error) {
	var resp models.IDResponse
	if err := b.c.PostJSON(ctx, "/constituent/v1/constituents", con, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%s create constituent: response carried no id", b.c.system)
	}
	return resp.ID.String(), nil
}

// UpdateConstituent patches only the fields present in diff.
func (b *Beacon) UpdateConstituent(ctx context.Context, id string, diff map[string]any) error {
	return b.c.PatchJSON(ctx, "/constituent/v1/constituents/"+url.PathEscape(id), diff, nil)
}

// ListConstituentEmails returns every email address on file for a
// constituent, active or not.
func (b *Beacon) ListConstituentEmails(ctx context.Context, constituentID string) ([]models.EmailAddress, error) {
	path := "/constituent/v1/constituents/" + url.PathEscape(constituentID) + "/emailaddresses"
	var list models.EmailList
	if err := b.c.GetJSON(ctx, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// CreateEmail adds an email address; the payload carries the constituent ID.
func (b *Beacon) CreateEmail(ctx context.Context, e models.EmailAddress) error {
	return b.c.PostJSON(ctx, "/constituent/v1/emailaddresses", e, nil)
}

// UpdateEmail patches an existing email address record.
func (b *Beacon) UpdateEmail(ctx context.Context, id string, diff map[string]any) error {
	return b.c.PatchJSON(ctx, "/constituent/v1/emailaddresses/"+url.PathEscape(id), diff, nil)
}

// ListConstituentPhones returns every phone number on file for a constituent.
func (b *Beacon) ListConstituentPhones(ctx context.Context, constituentID string) ([]models.Phone, error) {
	path := "/constituent/v1/constituents/" + url.PathEscape(constituentID) + "/phones"
	var list models.PhoneList
	if err := b.c.GetJSON(ctx, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// CreatePhone adds a phone number; the payload carries the constituent ID.
func (b *Beacon) CreatePhone(ctx context.Context, p models.Phone) error {
	return b.c.PostJSON(ctx, "/constituent/v1/phones", p, nil)
}

// UpdatePhone patches an existing phone record.
func (b *Beacon) UpdatePhone(ctx context.Context, id string, diff map[string]any) error {
	return b.c.PatchJSON(ctx, "/constituent/v1/phones/"+url.PathEscape(id), diff, nil)
}

// CreateEvent creates a CRM event and returns its ID.
func (b *Beacon) CreateEvent(ctx context.Context, p models.EventPayload) (string, error) {
	var resp models.IDResponse
	if err := b.c.PostJSON(ctx, "/event/v1/events", p, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%s create event: response carried no id", b.c.system)
	}
	return resp.ID.String(), nil
}

// GetEvent fetches one CRM event, used to verify that a remembered mapping
// still points at a live record.
func (b *Beacon) GetEvent(ctx context.Context, id string) (*models.BeaconEvent, error) {
	var ev models.BeaconEvent
	if err := b.c.GetJSON(ctx, "/event/v1/events/"+url.PathEscape(id), nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEventParticipants returns every participant of a CRM event.
func (b *Beacon) ListEventParticipants(ctx context.Context, eventID string) ([]models.EventParticipant, error) {
	path := "/event/v1/events/" + url.PathEscape(eventID) + "/participants"
	var all []models.EventParticipant
	offset := 0
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(b.pageSize))
		q.Set("offset", strconv.Itoa(offset))
		var page models.EventParticipantList
		if err := b.c.GetJSON(ctx, path, q, &page); err != nil {
			return nil, fmt.Errorf("participants offset %d: %w", offset, err)
		}
		if len(page.Value) == 0 {
			return all, nil
		}
		all = append(all, page.Value...)
		offset += len(page.Value)
		if page.Count > 0 && offset >= page.Count {
			return all, nil
		}
	}
}

// CreateParticipant adds a constituent to a CRM event and returns the new
// participant ID.
func (b *Beacon) CreateParticipant(ctx context.Context, eventID string, p models.EventParticipant) (string, error) {
	path := "/event/v1/events/" + url.PathEscape(eventID) + "/participants"
	var resp models.IDResponse
	if err := b.c.PostJSON(ctx, path, p, &resp); err != nil {
		return "", err
	}
	return resp.ID.String(), nil
}

// UpdateParticipant patches only the fields present in diff.
func (b *Beacon) UpdateParticipant(ctx context.Context, id string, diff map[string]any) error {
	return b.c.PatchJSON(ctx, "/event/v1/participants/"+url.PathEscape(id), diff, nil)
}
