package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graceworks/missionsync/internal/api"
	"github.com/graceworks/missionsync/internal/mapstore"
	"github.com/graceworks/missionsync/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *mapstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := mapstore.Open(filepath.Join(dir, "events.json"), filepath.Join(dir, "constituents.json"), testLogger())
	require.NoError(t, err)
	return s
}

func notFoundErr() error {
	return &api.RequestError{System: "beacon", StatusCode: http.StatusNotFound}
}

// fakeConstituents is an in-memory stand-in for the CRM constituent API.
// Creates seed the satellite tables from the sub-payloads the way the real
// CRM does, so a second resolution of the same person sees its own writes.
type fakeConstituents struct {
	nextID   int
	records  map[string]*models.Constituent
	searches map[string][]models.ConstituentSearchResult
	emails   map[string][]models.EmailAddress
	phones   map[string][]models.Phone

	createdCount int
	nameUpdates  []map[string]any
	emailCreates []models.EmailAddress
	emailUpdates []string
	phoneCreates []models.Phone
	phoneUpdates []string
}

func newFakeConstituents() *fakeConstituents {
	return &fakeConstituents{
		records:  make(map[string]*models.Constituent),
		searches: make(map[string][]models.ConstituentSearchResult),
		emails:   make(map[string][]models.EmailAddress),
		phones:   make(map[string][]models.Phone),
	}
}

func (f *fakeConstituents) addRecord(id, first, last, email string) {
	f.records[id] = &models.Constituent{ID: models.FlexID(id), Type: "Individual", First: first, Last: last}
	if email != "" {
		f.emails[id] = append(f.emails[id], models.EmailAddress{
			ID:            models.FlexID("E-" + id),
			ConstituentID: models.FlexID(id),
			Address:       email,
			Primary:       true,
		})
	}
}

func (f *fakeConstituents) GetConstituent(ctx context.Context, id string) (*models.Constituent, error) {
	if c, ok := f.records[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, notFoundErr()
}

func (f *fakeConstituents) SearchConstituents(ctx context.Context, text string) ([]models.ConstituentSearchResult, error) {
	return f.searches[text], nil
}

func (f *fakeConstituents) CreateConstituent(ctx context.Context, con *models.Constituent) (string, error) {
	f.nextID++
	id := fmt.Sprintf("C-%d", f.nextID)
	stored := *con
	stored.ID = models.FlexID(id)
	f.records[id] = &stored
	if con.Email != nil {
		f.emails[id] = append(f.emails[id], models.EmailAddress{
			ID:            models.FlexID(fmt.Sprintf("E-%d", f.nextID)),
			ConstituentID: models.FlexID(id),
			Address:       con.Email.Address,
			Type:          con.Email.Type,
			Primary:       con.Email.Primary,
		})
	}
	if con.Phone != nil {
		f.phones[id] = append(f.phones[id], models.Phone{
			ID:            models.FlexID(fmt.Sprintf("P-%d", f.nextID)),
			ConstituentID: models.FlexID(id),
			Number:        con.Phone.Number,
			Type:          con.Phone.Type,
			Primary:       con.Phone.Primary,
		})
	}
	f.createdCount++
	return id, nil
}

func (f *fakeConstituents) UpdateConstituent(ctx context.Context, id string, diff map[string]any) error {
	f.nameUpdates = append(f.nameUpdates, diff)
	c, ok := f.records[id]
	if !ok {
		return notFoundErr()
	}
	if v, ok := diff["first"].(string); ok {
		c.First = v
	}
	if v, ok := diff["last"].(string); ok {
		c.Last = v
	}
	return nil
}

func (f *fakeConstituents) ListConstituentEmails(ctx context.Context, constituentID string) ([]models.EmailAddress, error) {
	return f.emails[constituentID], nil
}

func (f *fakeConstituents) CreateEmail(ctx context.Context, e models.EmailAddress) error {
	f.emailCreates = append(f.emailCreates, e)
	key := e.ConstituentID.String()
	e.ID = models.FlexID(fmt.Sprintf("E-new-%d", len(f.emailCreates)))
	f.emails[key] = append(f.emails[key], e)
	return nil
}

func (f *fakeConstituents) UpdateEmail(ctx context.Context, id string, diff map[string]any) error {
	f.emailUpdates = append(f.emailUpdates, id)
	for key := range f.emails {
		for i := range f.emails[key] {
			if f.emails[key][i].ID.String() == id {
				if v, ok := diff["address"].(string); ok {
					f.emails[key][i].Address = v
				}
				return nil
			}
		}
	}
	return notFoundErr()
}

func (f *fakeConstituents) ListConstituentPhones(ctx context.Context, constituentID string) ([]models.Phone, error) {
	return f.phones[constituentID], nil
}

func (f *fakeConstituents) CreatePhone(ctx context.Context, p models.Phone) error {
	f.phoneCreates = append(f.phoneCreates, p)
	key := p.ConstituentID.String()
	p.ID = models.FlexID(fmt.Sprintf("P-new-%d", len(f.phoneCreates)))
	f.phones[key] = append(f.phones[key], p)
	return nil
}

func (f *fakeConstituents) UpdatePhone(ctx context.Context, id string, diff map[string]any) error {
	f.phoneUpdates = append(f.phoneUpdates, id)
	for key := range f.phones {
		for i := range f.phones[key] {
			if f.phones[key][i].ID.String() == id {
				if v, ok := diff["number"].(string); ok {
					f.phones[key][i].Number = v
				}
				return nil
			}
		}
	}
	return notFoundErr()
}

func jane() models.Participant {
	return models.Participant{
		SourceID:  "101",
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.org",
		Status:    "Registered",
	}
}

func TestResolveConstituent_RememberedMapping(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-9", "Jane", "Doe", "jane@example.org")
	store := openTestStore(t)
	require.NoError(t, store.Put(mapstore.KindConstituent, "101", "C-9"))

	rec := NewReconciler(crm, store, testLogger())
	cache := NewRunCache()

	id, err := rec.ResolveConstituent(context.Background(), cache, jane())
	require.NoError(t, err)
	assert.Equal(t, "C-9", id)
	assert.Zero(t, crm.createdCount)
	assert.Equal(t, 1, cache.Matched)

	// repeat appearances ride the run cache and do not double count
	id, err = rec.ResolveConstituent(context.Background(), cache, jane())
	require.NoError(t, err)
	assert.Equal(t, "C-9", id)
	assert.Equal(t, 1, cache.Matched)
}

func TestResolveConstituent_StaleMappingRecreates(t *testing.T) {
	crm := newFakeConstituents()
	store := openTestStore(t)
	// remembered CRM record was deleted on the far side
	require.NoError(t, store.Put(mapstore.KindConstituent, "101", "C-GONE"))

	rec := NewReconciler(crm, store, testLogger())
	cache := NewRunCache()

	id, err := rec.ResolveConstituent(context.Background(), cache, jane())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.NotEqual(t, "C-GONE", id)
	assert.Equal(t, 1, crm.createdCount)
	assert.Equal(t, 1, cache.Created)

	// mapping now points at the replacement
	mapped, ok := store.Get(mapstore.KindConstituent, "101")
	assert.True(t, ok)
	assert.Equal(t, id, mapped)
}

func TestResolveConstituent_EmailSearchAdopts(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-7", "Jane", "Doe", "jane@example.org")
	// fuzzy search also surfaces a near-miss that must be ignored
	crm.searches["jane@example.org"] = []models.ConstituentSearchResult{
		{ID: "C-5", First: "Janet", Last: "Doer", Email: "janet@example.org"},
		{ID: "C-7", First: "Jane", Last: "Doe", Email: "JANE@Example.org"},
	}
	store := openTestStore(t)

	rec := NewReconciler(crm, store, testLogger())
	cache := NewRunCache()

	id, err := rec.ResolveConstituent(context.Background(), cache, jane())
	require.NoError(t, err)
	assert.Equal(t, "C-7", id)
	assert.Zero(t, crm.createdCount)
	assert.Equal(t, 1, cache.Matched)

	mapped, ok := store.Get(mapstore.KindConstituent, "101")
	assert.True(t, ok)
	assert.Equal(t, "C-7", mapped)
}

func TestResolveConstituent_NameSearchPrefersEmailMatch(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-1", "Jane", "Doe", "other@example.org")
	crm.addRecord("C-2", "Jane", "Doe", "jane@example.org")
	// no email hit, two folded-name candidates
	crm.searches["Jane Doe"] = []models.ConstituentSearchResult{
		{ID: "C-1", First: "Jane", Last: "Doe", Email: "other@example.org"},
		{ID: "C-2", First: "Jané", Last: "Doe", Email: "jane@example.org"},
	}
	store := openTestStore(t)

	rec := NewReconciler(crm, store, testLogger())

	id, err := rec.ResolveConstituent(context.Background(), NewRunCache(), jane())
	require.NoError(t, err)
	assert.Equal(t, "C-2", id)
	assert.Zero(t, crm.createdCount)
}

func TestResolveConstituent_NameSearchFallsBackToFirst(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-1", "Jane", "Doe", "")
	crm.addRecord("C-2", "Jane", "Doe", "")
	crm.searches["Jane Doe"] = []models.ConstituentSearchResult{
		{ID: "C-1", First: "Jane", Last: "Doe"},
		{ID: "C-2", First: "Jane", Last: "Doe"},
	}
	store := openTestStore(t)

	rec := NewReconciler(crm, store, testLogger())

	p := jane()
	p.Email = ""
	id, err := rec.ResolveConstituent(context.Background(), NewRunCache(), p)
	require.NoError(t, err)
	assert.Equal(t, "C-1", id)
}

func TestResolveConstituent_CreatesWithSubPayloads(t *testing.T) {
	crm := newFakeConstituents()
	store := openTestStore(t)

	rec := NewReconciler(crm, store, testLogger())
	cache := NewRunCache()

	p := jane()
	p.Phone = "5551234567"
	id, err := rec.ResolveConstituent(context.Background(), cache, p)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, cache.Created)

	created := crm.records[id]
	require.NotNil(t, created)
	assert.Equal(t, "Individual", created.Type)
	assert.Equal(t, "Jane", created.First)
	assert.Equal(t, "SP-101", created.LookupID)
	require.NotNil(t, created.Email)
	assert.Equal(t, "jane@example.org", created.Email.Address)
	assert.True(t, created.Email.Primary)
	require.NotNil(t, created.Phone)
	assert.Equal(t, "5551234567", created.Phone.Number)

	// second resolution is a cache hit, not another create
	again, err := rec.ResolveConstituent(context.Background(), cache, p)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, crm.createdCount)
}

func TestResolveConstituent_MissingIdentifier(t *testing.T) {
	rec := NewReconciler(newFakeConstituents(), openTestStore(t), testLogger())

	_, err := rec.ResolveConstituent(context.Background(), NewRunCache(), models.Participant{FirstName: "Jane", LastName: "Doe"})
	require.Error(t, err)

	var missing *MissingIdentifierError
	assert.True(t, errors.As(err, &missing))
}

func TestResolveConstituent_MissingName(t *testing.T) {
	rec := NewReconciler(newFakeConstituents(), openTestStore(t), testLogger())

	_, err := rec.ResolveConstituent(context.Background(), NewRunCache(), models.Participant{SourceID: "101", FirstName: "Jane"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable name")
}

func TestResolveConstituent_DryRunCreate(t *testing.T) {
	crm := newFakeConstituents()
	store := openTestStore(t)

	rec := NewReconciler(crm, store, testLogger())
	rec.SetDryRun(true)

	_, err := rec.ResolveConstituent(context.Background(), NewRunCache(), jane())
	require.ErrorIs(t, err, ErrDryRun)
	assert.Zero(t, crm.createdCount)

	_, ok := store.Get(mapstore.KindConstituent, "101")
	assert.False(t, ok, "dry run must not persist mappings")
}

func TestResolveConstituent_DryRunAdopt(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-7", "Jane", "Doe", "jane@example.org")
	crm.searches["jane@example.org"] = []models.ConstituentSearchResult{
		{ID: "C-7", First: "Jane", Last: "Doe", Email: "jane@example.org"},
	}
	store := openTestStore(t)

	rec := NewReconciler(crm, store, testLogger())
	rec.SetDryRun(true)
	cache := NewRunCache()

	id, err := rec.ResolveConstituent(context.Background(), cache, jane())
	require.NoError(t, err)
	assert.Equal(t, "C-7", id)

	_, ok := store.Get(mapstore.KindConstituent, "101")
	assert.False(t, ok, "dry run must not persist mappings")

	// but the run cache still short-circuits repeats
	id, err = rec.ResolveConstituent(context.Background(), cache, jane())
	require.NoError(t, err)
	assert.Equal(t, "C-7", id)
}

func TestResolveConstituent_PushesNameChange(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-9", "Jane", "Smith", "jane@example.org") // married name changed on the platform
	store := openTestStore(t)
	require.NoError(t, store.Put(mapstore.KindConstituent, "101", "C-9"))

	rec := NewReconciler(crm, store, testLogger())

	_, err := rec.ResolveConstituent(context.Background(), NewRunCache(), jane())
	require.NoError(t, err)

	require.Len(t, crm.nameUpdates, 1)
	assert.Equal(t, map[string]any{"last": "Doe"}, crm.nameUpdates[0])
	assert.Equal(t, "Doe", crm.records["C-9"].Last)
}

func TestResolveConstituent_UpdatesPrimaryEmailInPlace(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-9", "Jane", "Doe", "old@example.org")
	store := openTestStore(t)
	require.NoError(t, store.Put(mapstore.KindConstituent, "101", "C-9"))

	rec := NewReconciler(crm, store, testLogger())

	_, err := rec.ResolveConstituent(context.Background(), NewRunCache(), jane())
	require.NoError(t, err)

	// the active primary was rewritten, not replaced
	require.Len(t, crm.emailUpdates, 1)
	assert.Equal(t, "E-C-9", crm.emailUpdates[0])
	assert.Empty(t, crm.emailCreates)
	assert.Equal(t, "jane@example.org", crm.emails["C-9"][0].Address)
}

func TestResolveConstituent_AddsEmailWhenNoneActive(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-9", "Jane", "Doe", "")
	store := openTestStore(t)
	require.NoError(t, store.Put(mapstore.KindConstituent, "101", "C-9"))

	rec := NewReconciler(crm, store, testLogger())

	_, err := rec.ResolveConstituent(context.Background(), NewRunCache(), jane())
	require.NoError(t, err)

	require.Len(t, crm.emailCreates, 1)
	assert.Equal(t, "jane@example.org", crm.emailCreates[0].Address)
	assert.True(t, crm.emailCreates[0].Primary)
	assert.Empty(t, crm.emailUpdates)
}

func TestResolveConstituent_MatchingEmailLeftAlone(t *testing.T) {
	crm := newFakeConstituents()
	crm.addRecord("C-9", "Jane", "Doe", "JANE@example.org") // differs only in case
	store := openTestStore(t)
	require.NoError(t, store.Put(mapstore.KindConstituent, "101", "C-9"))

	rec := NewReconciler(crm, store, testLogger())

	_, err := rec.ResolveConstituent(context.Background(), NewRunCache(), jane())
	require.NoError(t, err)
	assert.Empty(t, crm.emailUpdates)
	assert.Empty(t, crm.emailCreates)
}
