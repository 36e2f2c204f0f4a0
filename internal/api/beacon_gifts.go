package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/graceworks/missionsync/internal/models"
)

// SearchGifts queries the gift ledger by lookup ID. Like constituent
// search, the CRM matches loosely; exact-match filtering is the caller's
// job.
func (b *Beacon) SearchGifts(ctx context.Context, lookupID string) ([]models.Gift, error) {
	q := url.Values{}
	q.Set("lookup_id", lookupID)
	var list models.GiftList
	if err := b.c.GetJSON(ctx, "/gift/v1/gifts", q, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// GiftExists reports whether a gift with this exact lookup ID is already
// on the ledger. This is the duplicate guard for payment processing.
func (b *Beacon) GiftExists(ctx context.Context, lookupID string) (bool, error) {
	gifts, err := b.SearchGifts(ctx, lookupID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, g := range gifts {
		if g.LookupID == lookupID || g.Reference == lookupID {
			return true, nil
		}
	}
	return false, nil
}

// CreateGift posts a gift and returns the new gift ID.
func (b *Beacon) CreateGift(ctx context.Context, g models.Gift) (string, error) {
	var resp models.IDResponse
	if err := b.c.PostJSON(ctx, "/gift/v1/gifts", g, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%s create gift: response carried no id", b.c.system)
	}
	return resp.ID.String(), nil
}

// ListFunds returns every fund defined in the CRM.
func (b *Beacon) ListFunds(ctx context.Context) ([]models.Fund, error) {
	var all []models.Fund
	offset := 0
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(b.pageSize))
		q.Set("offset", strconv.Itoa(offset))
		var page models.FundList
		if err := b.c.GetJSON(ctx, "/fundraising/v1/funds", q, &page); err != nil {
			return nil, fmt.Errorf("funds offset %d: %w", offset, err)
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

// GetFund fetches one fund, used to validate fund map entries.
func (b *Beacon) GetFund(ctx context.Context, id string) (*models.Fund, error) {
	var f models.Fund
	if err := b.c.GetJSON(ctx, "/fundraising/v1/funds/"+url.PathEscape(id), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
