package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/graceworks/missionsync/internal/models"
)

// ServePoint is the typed client for the volunteer platform. List methods
// walk every page and return the full result set; callers never see
// pagination.
type ServePoint struct {
	c        *Client
	pageSize int
}

func NewServePoint(c *Client, pageSize int) *ServePoint {
	return &ServePoint{c: c, pageSize: pageSize}
}

// ListEvents returns every event on the platform.
func (s *ServePoint) ListEvents(ctx context.Context) ([]models.Event, error) {
	var all []models.Event
	err := s.paginate(ctx, "/v1/events", nil, func(q url.Values) (models.PageInfo, int, error) {
		var page models.EventsPage
		if err := s.c.GetJSON(ctx, "/v1/events", q, &page); err != nil {
			return models.PageInfo{}, 0, err
		}
		all = append(all, page.Results...)
		return page.PageInfo, len(page.Results), nil
	})
	return all, err
}

// GetEvent fetches a single event by its platform ID.
func (s *ServePoint) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	if err := s.c.GetJSON(ctx, "/v1/events/"+url.PathEscape(id), nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEventParticipants returns every registration for an event. Records
// come back as raw maps because the platform is not consistent about field
// names across tenants; the mapper standardizes them once.
func (s *ServePoint) ListEventParticipants(ctx context.Context, eventID string) ([]models.RawParticipant, error) {
	path := "/v1/events/" + url.PathEscape(eventID) + "/participants"
	var all []models.RawParticipant
	err := s.paginate(ctx, path, nil, func(q url.Values) (models.PageInfo, int, error) {
		var page models.ParticipantsPage
		if err := s.c.GetJSON(ctx, path, q, &page); err != nil {
			return models.PageInfo{}, 0, err
		}
		all = append(all, page.Results...)
		return page.PageInfo, len(page.Results), nil
	})
	return all, err
}

// GetUser fetches a platform user profile, used to fill in donor details
// that payment records omit.
func (s *ServePoint) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.c.GetJSON(ctx, "/v1/users/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetMember fetches a membership profile. Some tenants register
// volunteers as members instead of users; the payload shape is the same.
func (s *ServePoint) GetMember(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.c.GetJSON(ctx, "/v1/members/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// PaymentQuery filters the payments listing. Dates are YYYY-MM-DD and
// inclusive; empty fields are omitted.
type PaymentQuery struct {
	StartDate string
	EndDate   string
}

// ListPayments returns every payment in the query window.
func (s *ServePoint) ListPayments(ctx context.Context, pq PaymentQuery) ([]models.RawPayment, error) {
	base := url.Values{}
	if pq.StartDate != "" {
		base.Set("startDate", pq.StartDate)
	}
	if pq.EndDate != "" {
		base.Set("endDate", pq.EndDate)
	}
	var all []models.RawPayment
	err := s.paginate(ctx, "/v1/payments", base, func(q url.Values) (models.PageInfo, int, error) {
		var page models.PaymentsPage
		if err := s.c.GetJSON(ctx, "/v1/payments", q, &page); err != nil {
			return models.PageInfo{}, 0, err
		}
		all = append(all, page.Results...)
		return page.PageInfo, len(page.Results), nil
	})
	return all, err
}

// GetPayment fetches a single payment by ID, for targeted reprocessing.
func (s *ServePoint) GetPayment(ctx context.Context, id string) (models.RawPayment, error) {
	var p models.RawPayment
	if err := s.c.GetJSON(ctx, "/v1/payments/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// paginate walks page/pageSize pages until the API reports the end or a
// page comes back empty. The platform fills TotalPages on some endpoints
// and TotalRecords on others, so both are honored.
func (s *ServePoint) paginate(ctx context.Context, path string, base url.Values, fetch func(url.Values) (models.PageInfo, int, error)) error {
	total := 0
	for page := 1; ; page++ {
		q := url.Values{}
		for k, vs := range base {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(s.pageSize))

		info, got, err := fetch(q)
		if err != nil {
			return fmt.Errorf("page %d of %s: %w", page, path, err)
		}
		if got == 0 {
			return nil
		}
		total += got
		if info.TotalRecords > 0 && total >= info.TotalRecords {
			return nil
		}
		if info.TotalPages > 0 && page >= info.TotalPages {
			return nil
		}
	}
}
