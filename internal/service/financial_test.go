package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graceworks/missionsync/internal/api"
	"github.com/graceworks/missionsync/internal/mapper"
	"github.com/graceworks/missionsync/internal/mapstore"
	"github.com/graceworks/missionsync/internal/models"
)

func (f *fakeSource) ListPayments(ctx context.Context, q api.PaymentQuery) ([]models.RawPayment, error) {
	if f.listPaymentsErr != nil {
		return nil, f.listPaymentsErr
	}
	return f.payments, nil
}

func (f *fakeSource) GetPayment(ctx context.Context, id string) (models.RawPayment, error) {
	for _, rp := range f.payments {
		p, err := mapper.StandardizePayment(rp)
		if err == nil && p.SourceID == id {
			return rp, nil
		}
	}
	return nil, &api.RequestError{System: "servepoint", StatusCode: http.StatusNotFound}
}

func (f *fakeSource) GetUser(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, &api.RequestError{System: "servepoint", StatusCode: http.StatusNotFound}
}

// fakeGifts is an in-memory stand-in for the CRM gift ledger.
type fakeGifts struct {
	nextID   int
	onLedger map[string]bool
	created  []models.Gift
}

func (f *fakeGifts) GiftExists(ctx context.Context, lookupID string) (bool, error) {
	return f.onLedger[lookupID], nil
}

func (f *fakeGifts) CreateGift(ctx context.Context, g models.Gift) (string, error) {
	f.nextID++
	f.created = append(f.created, g)
	if f.onLedger == nil {
		f.onLedger = make(map[string]bool)
	}
	f.onLedger[g.LookupID] = true
	return fmt.Sprintf("G-%d", f.nextID), nil
}

func newFinancialFixture(t *testing.T) (*fakeSource, *fakeGifts, *fakeConstituents, *mapstore.Store, *FinancialSync) {
	t.Helper()
	src := &fakeSource{
		payments: []models.RawPayment{
			{
				"TransactionId": float64(5001),
				"UserId":        float64(101),
				"Amount":        "$250.00",
				"PaymentDate":   "2024-05-01T10:00:00Z",
				"EventCode":     "SP1234",
				"PaymentMethod": "Credit Card",
			},
		},
		users: map[string]*models.User{
			"101": {ID: 101, FirstName: "Jane", LastName: "Doe", Email: "jane@example.org"},
		},
	}
	gifts := &fakeGifts{onLedger: make(map[string]bool)}
	crm := newFakeConstituents()
	store := openTestStore(t)
	rec := NewReconciler(crm, store, testLogger())
	funds := &mapstore.FundMap{Funds: map[string]string{"SP1234": "F-1"}}
	fin := NewFinancialSync(src, gifts, rec, funds, testLogger())
	return src, gifts, crm, store, fin
}

func TestFinancialSync_CreatesGift(t *testing.T) {
	_, gifts, crm, store, fin := newFinancialFixture(t)

	sum := NewRunSummary()
	cache := NewRunCache()
	require.NoError(t, fin.Run(context.Background(), cache, FinancialOptions{}, sum))

	assert.Equal(t, 1, sum.GiftsCreated)
	assert.Equal(t, 1, cache.Created)
	assert.Equal(t, 1, crm.createdCount)

	require.Len(t, gifts.created, 1)
	g := gifts.created[0]
	assert.Equal(t, "SP-Payment-5001", g.LookupID)
	assert.Equal(t, "SP-Payment-5001", g.Reference)
	assert.Equal(t, 250.0, g.Amount.Value)
	assert.Equal(t, "2024-05-01", g.Date)
	require.Len(t, g.GiftSplits, 1)
	assert.Equal(t, "F-1", g.GiftSplits[0].FundID)
	assert.Equal(t, 250.0, g.GiftSplits[0].Amount.Value)
	require.Len(t, g.Payments, 1)
	assert.Equal(t, "CreditCard", g.Payments[0].PaymentMethod)

	// the donor resolved through the reconciler and was remembered
	donorID, ok := store.Get(mapstore.KindConstituent, "101")
	require.True(t, ok)
	assert.Equal(t, models.FlexID(donorID), g.ConstituentID)

	// donor details came from the user profile because the payment row was thin
	donor := crm.records[donorID]
	require.NotNil(t, donor)
	assert.Equal(t, "Jane", donor.First)
	require.NotNil(t, donor.Email)
	assert.Equal(t, "jane@example.org", donor.Email.Address)
}

func TestFinancialSync_RerunCreatesNoDuplicates(t *testing.T) {
	_, gifts, _, _, fin := newFinancialFixture(t)

	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, NewRunSummary()))

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, sum))

	assert.Zero(t, sum.GiftsCreated)
	assert.Equal(t, 1, sum.GiftsSkipped)
	assert.Len(t, gifts.created, 1)
}

func TestFinancialSync_UnmappedFundSkipsGift(t *testing.T) {
	src, gifts, _, _, fin := newFinancialFixture(t)
	src.payments[0]["EventCode"] = "UNKNOWN99"

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, sum))

	assert.Zero(t, sum.GiftsCreated)
	assert.Empty(t, gifts.created)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "no fund mapping")
}

func TestFinancialSync_DefaultFundFallback(t *testing.T) {
	src, gifts, _, _, fin := newFinancialFixture(t)
	src.payments[0]["EventCode"] = "UNKNOWN99"
	fin.funds.DefaultFundID = "F-DEFAULT"

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, sum))

	assert.Equal(t, 1, sum.GiftsCreated)
	require.Len(t, gifts.created, 1)
	assert.Equal(t, "F-DEFAULT", gifts.created[0].GiftSplits[0].FundID)
	assert.Empty(t, sum.Errors)
}

func TestFinancialSync_DryRunNewDonor(t *testing.T) {
	_, gifts, crm, store, fin := newFinancialFixture(t)
	fin.rec.SetDryRun(true)

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{DryRun: true}, sum))

	// the donor does not exist yet, so the gift is withheld entirely
	assert.Zero(t, sum.GiftsCreated)
	assert.Equal(t, 1, sum.GiftsSkipped)
	assert.Empty(t, gifts.created)
	assert.Zero(t, crm.createdCount)
	_, ok := store.Get(mapstore.KindConstituent, "101")
	assert.False(t, ok)
}

func TestFinancialSync_DryRunExistingDonor(t *testing.T) {
	_, gifts, crm, store, fin := newFinancialFixture(t)
	crm.addRecord("C-9", "Jane", "Doe", "jane@example.org")
	require.NoError(t, store.Put(mapstore.KindConstituent, "101", "C-9"))
	fin.rec.SetDryRun(true)

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{DryRun: true}, sum))

	assert.Equal(t, 1, sum.GiftsCreated, "dry run reports the gift it would create")
	assert.Empty(t, gifts.created, "but writes nothing")
}

func TestFinancialSync_SinglePaymentByID(t *testing.T) {
	src, gifts, _, _, fin := newFinancialFixture(t)
	src.payments = append(src.payments, models.RawPayment{
		"TransactionId": float64(5002),
		"UserId":        float64(101),
		"Amount":        "$75.00",
		"EventCode":     "SP1234",
	})

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{PaymentID: "5002"}, sum))

	assert.Equal(t, 1, sum.GiftsCreated)
	require.Len(t, gifts.created, 1)
	assert.Equal(t, "SP-Payment-5002", gifts.created[0].LookupID)
	assert.Equal(t, 75.0, gifts.created[0].Amount.Value)
}

func TestFinancialSync_PaymentWithoutUserKeysOffPayment(t *testing.T) {
	src, gifts, _, store, fin := newFinancialFixture(t)
	src.payments = []models.RawPayment{{
		"TransactionId":  float64(6001),
		"DonorFirstName": "Anna",
		"DonorLastName":  "Org",
		"DonorEmail":     "anna@example.org",
		"Amount":         125.0,
		"EventCode":      "SP1234",
	}}

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, sum))

	assert.Equal(t, 1, sum.GiftsCreated)
	require.Len(t, gifts.created, 1)

	// the mapping key is derived from the payment, not a platform user
	donorID, ok := store.Get(mapstore.KindConstituent, "payer-6001")
	require.True(t, ok)
	assert.Equal(t, models.FlexID(donorID), gifts.created[0].ConstituentID)
}

func TestFinancialSync_MalformedPaymentSkipped(t *testing.T) {
	src, gifts, _, _, fin := newFinancialFixture(t)
	src.payments = append([]models.RawPayment{{"TransactionId": float64(4000)}}, src.payments...)

	sum := NewRunSummary()
	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, sum))

	// the broken record is reported, the good one still lands
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, 1, sum.GiftsCreated)
	require.Len(t, gifts.created, 1)
	assert.Equal(t, "SP-Payment-5001", gifts.created[0].LookupID)
}

func TestFinancialSync_ListFailureAborts(t *testing.T) {
	src, _, _, _, fin := newFinancialFixture(t)
	src.listPaymentsErr = fmt.Errorf("connection reset")

	err := fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, NewRunSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list payments")
}

func TestFinancialSync_MissingDateDefaultsToToday(t *testing.T) {
	src, gifts, _, _, fin := newFinancialFixture(t)
	delete(src.payments[0], "PaymentDate")

	require.NoError(t, fin.Run(context.Background(), NewRunCache(), FinancialOptions{}, NewRunSummary()))

	require.Len(t, gifts.created, 1)
	assert.NotEmpty(t, gifts.created[0].Date)
}
