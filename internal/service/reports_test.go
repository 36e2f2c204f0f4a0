package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graceworks/missionsync/internal/mapstore"
	"github.com/graceworks/missionsync/internal/models"
)

type fakeFunds struct {
	funds  []models.Fund
	emails map[string][]models.EmailAddress
}

func (f *fakeFunds) ListFunds(ctx context.Context) ([]models.Fund, error) {
	return f.funds, nil
}

func (f *fakeFunds) ListConstituentEmails(ctx context.Context, constituentID string) ([]models.EmailAddress, error) {
	return f.emails[constituentID], nil
}

func (f *fakeFunds) GetFund(ctx context.Context, id string) (*models.Fund, error) {
	for i := range f.funds {
		if f.funds[i].ID.String() == id {
			fund := f.funds[i]
			return &fund, nil
		}
	}
	return nil, notFoundErr()
}

func TestExtractTripCode(t *testing.T) {
	cases := []struct {
		description string
		want        string
	}{
		{"Mission Trip : SP1234 Honduras 2026", "SP1234"},
		{"Trip: SP88", "SP88"},
		{"TRIP-42 spring retreat", "TRIP-42"},
		{"MT-7 construction team", "MT-7"},
		{"T12345 guatemala", "T12345"},
		{"HND2024 outreach", "HND2024"},
		{"General Fund", ""},
		{"Annual appeal 2026", ""},
		{"", ""},
		// the specific SP pattern wins over the generic letters+digits one
		{"Mission Trip : HN24 before SP12", "SP12"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractTripCode(tc.description), "description %q", tc.description)
	}
}

func TestBuildFundMap(t *testing.T) {
	funds := &fakeFunds{funds: []models.Fund{
		{ID: "F-1", Description: "Mission Trip : SP1234 Honduras"},
		{ID: "F-2", Description: "General Fund"},
		{ID: "F-3", Category: "40105 - Mission Trip Donations", Description: "SP5678 Kenya"},
		{ID: "F-4", Description: "Trip: SP1234 duplicate entry"},
		{ID: "F-5", Description: "Building Fund HVAC2024"},
	}}
	r := NewReports(&fakeSource{}, funds, testLogger())

	fm := &mapstore.FundMap{Funds: map[string]string{"MT-9": "F-HAND-MAPPED"}}
	added, err := r.BuildFundMap(context.Background(), fm)
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	assert.Equal(t, "F-1", fm.Funds["SP1234"])
	assert.Equal(t, "F-3", fm.Funds["SP5678"])
	// operator mappings are never overwritten
	assert.Equal(t, "F-HAND-MAPPED", fm.Funds["MT-9"])
	// codes inside non-trip funds never enter the map
	assert.NotContains(t, fm.Funds, "HVAC2024")
	assert.Len(t, fm.Funds, 3)
}

func TestEventEmails(t *testing.T) {
	src := &fakeSource{
		participants: map[string][]models.RawParticipant{
			"100": {
				{"UserId": float64(1), "Email": "zoe@example.org"},
				{"UserId": float64(2), "EmailAddress": "Amy@Example.org"},
				{"UserId": float64(3), "Email": "AMY@example.org"}, // duplicate after normalization
				{"UserId": float64(4), "First": "No", "Last": "Email"},
			},
		},
	}
	r := NewReports(src, &fakeFunds{}, testLogger())

	emails, err := r.EventEmails(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.org", "zoe@example.org"}, emails)
}

func TestVerifyFundMap(t *testing.T) {
	funds := &fakeFunds{funds: []models.Fund{
		{ID: "F-1", Description: "Mission Trip : SP1234 Honduras"},
	}}
	r := NewReports(&fakeSource{}, funds, testLogger())

	fm := &mapstore.FundMap{Funds: map[string]string{
		"SP1234": "F-1",
		"MT-9":   "F-DELETED",
	}}
	stale, err := r.VerifyFundMap(context.Background(), fm)
	require.NoError(t, err)
	assert.Equal(t, []string{"MT-9"}, stale)
}

func TestConstituentEmails(t *testing.T) {
	crm := &fakeFunds{emails: map[string][]models.EmailAddress{
		"C-9": {
			{ID: "E-1", Address: " Zoe@Example.org", Primary: true},
			{ID: "E-2", Address: "old@example.org", Inactive: true},
			{ID: "E-3", Address: "quiet@example.org", DoNotEmail: true},
			{ID: "E-4", Address: "amy@example.org"},
			{ID: "E-5", Address: "ZOE@example.org"}, // duplicate after normalization
		},
	}}
	r := NewReports(&fakeSource{}, crm, testLogger())

	emails, err := r.ConstituentEmails(context.Background(), "C-9")
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.org", "zoe@example.org"}, emails)
}

func TestListFunds(t *testing.T) {
	funds := &fakeFunds{funds: []models.Fund{{ID: "F-1", Description: "SP1234"}}}
	r := NewReports(&fakeSource{}, funds, testLogger())

	got, err := r.ListFunds(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.FlexID("F-1"), got[0].ID)
}
