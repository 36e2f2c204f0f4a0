package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/graceworks/missionsync/internal/api"
	"github.com/graceworks/missionsync/internal/mapper"
	"github.com/graceworks/missionsync/internal/mapstore"
	"github.com/graceworks/missionsync/internal/models"
	"github.com/graceworks/missionsync/pkg/metrics"
)

// ConstituentAPI defines the contract for the CRM constituent operations
// the reconciler depends on
type ConstituentAPI interface {
	GetConstituent(ctx context.Context, id string) (*models.Constituent, error)
	SearchConstituents(ctx context.Context, text string) ([]models.ConstituentSearchResult, error)
	CreateConstituent(ctx context.Context, con *models.Constituent) (string, error)
	UpdateConstituent(ctx context.Context, id string, diff map[string]any) error
	ListConstituentEmails(ctx context.Context, constituentID string) ([]models.EmailAddress, error)
	CreateEmail(ctx context.Context, e models.EmailAddress) error
	UpdateEmail(ctx context.Context, id string, diff map[string]any) error
	ListConstituentPhones(ctx context.Context, constituentID string) ([]models.Phone, error)
	CreatePhone(ctx context.Context, p models.Phone) error
	UpdatePhone(ctx context.Context, id string, diff map[string]any) error
}

// MappingStore defines the contract for remembered source-to-CRM ID pairs
type MappingStore interface {
	Get(kind mapstore.Kind, sourceID string) (string, bool)
	Put(kind mapstore.Kind, sourceID, destID string) error
}

// RunCache memoizes constituent resolutions within one sync run. Every run
// starts with a fresh cache so an in-memory hit can never outlive what the
// mapping files and the CRM actually hold.
type RunCache struct {
	constituents map[string]string

	// Created and Matched count unique donors/participants resolved this
	// run; the cache short-circuit keeps repeat appearances from double
	// counting.
	Created int
	Matched int
}

func NewRunCache() *RunCache {
	return &RunCache{constituents: make(map[string]string)}
}

// MissingIdentifierError marks a source record that carries no usable
// identifier. The record is skipped; the run continues.
type MissingIdentifierError struct {
	Kind string
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("%s record carries no usable identifier", e.Kind)
}

// ErrDryRun marks a write skipped because the run is a dry run.
var ErrDryRun = errors.New("dry run: write skipped")

// Reconciler resolves platform people to CRM constituents: remembered
// mapping first, then exact email search, then folded-name search, then
// create. Every terminal hit also pushes name/email/phone changes so the
// CRM does not drift behind the platform.
type Reconciler struct {
	crm    ConstituentAPI
	store  MappingStore
	dryRun bool
	logger *slog.Logger
}

func NewReconciler(crm ConstituentAPI, store MappingStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		crm:    crm,
		store:  store,
		logger: logger.With("component", "reconciler"),
	}
}

// SetDryRun turns every write into a logged no-op.
func (r *Reconciler) SetDryRun(dryRun bool) { r.dryRun = dryRun }

// ResolveConstituent returns the CRM constituent ID for a platform person.
// A re-run resolves through the remembered mapping and creates nothing.
func (r *Reconciler) ResolveConstituent(ctx context.Context, cache *RunCache, p models.Participant) (string, error) {
	if p.SourceID == "" {
		return "", &MissingIdentifierError{Kind: "participant"}
	}
	if p.FirstName == "" || p.LastName == "" {
		return "", fmt.Errorf("participant %s has no usable name", p.SourceID)
	}
	l := r.logger.With("source_id", p.SourceID)

	if id, ok := cache.constituents[p.SourceID]; ok {
		metrics.ReconciliationOutcomes.WithLabelValues("cache").Inc()
		return id, nil
	}

	// Remembered mapping, verified against the CRM before it is trusted
	if mapped, ok := r.store.Get(mapstore.KindConstituent, p.SourceID); ok {
		existing, err := r.crm.GetConstituent(ctx, mapped)
		switch {
		case err == nil:
			metrics.ReconciliationOutcomes.WithLabelValues("mapped").Inc()
			cache.constituents[p.SourceID] = mapped
			cache.Matched++
			if err := r.syncDetails(ctx, l, mapped, p, existing); err != nil {
				l.Warn("Constituent update failed, keeping stale details",
					"constituent_id", mapped, "error", err)
			}
			return mapped, nil
		case api.IsNotFound(err):
			l.Warn("Mapped constituent no longer exists, searching again",
				"constituent_id", mapped)
			metrics.ReconciliationOutcomes.WithLabelValues("stale_mapping").Inc()
		default:
			return "", fmt.Errorf("verify constituent %s: %w", mapped, err)
		}
	}

	if p.Email != "" {
		match, err := r.searchByEmail(ctx, p.Email)
		if err != nil {
			return "", err
		}
		if match != "" {
			return r.adopt(ctx, l, cache, p, match, "email_search")
		}
	}
	match, err := r.searchByName(ctx, l, p)
	if err != nil {
		return "", err
	}
	if match != "" {
		return r.adopt(ctx, l, cache, p, match, "name_search")
	}

	return r.create(ctx, l, cache, p)
}

// searchByEmail filters the CRM's fuzzy search down to exact normalized
// address matches. The email passed in is already normalized.
func (r *Reconciler) searchByEmail(ctx context.Context, email string) (string, error) {
	results, err := r.crm.SearchConstituents(ctx, email)
	if err != nil {
		if api.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("search constituents by email: %w", err)
	}
	for _, c := range results {
		if mapper.NormalizeEmail(c.Email) == email {
			return c.ID.String(), nil
		}
	}
	return "", nil
}

// searchByName filters the fuzzy search down to exact folded first+last
// matches. Multiple candidates prefer the one whose email also matches,
// then fall back to the first in returned order, logged as ambiguous.
func (r *Reconciler) searchByName(ctx context.Context, l *slog.Logger, p models.Participant) (string, error) {
	results, err := r.crm.SearchConstituents(ctx, p.FirstName+" "+p.LastName)
	if err != nil {
		if api.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("search constituents by name: %w", err)
	}
	first, last := mapper.FoldName(p.FirstName), mapper.FoldName(p.LastName)
	var candidates []models.ConstituentSearchResult
	for _, c := range results {
		if mapper.FoldName(c.First) == first && mapper.FoldName(c.Last) == last {
			candidates = append(candidates, c)
		}
	}
	switch len(candidates) {
	case 0:
		return "", nil
	case 1:
		return candidates[0].ID.String(), nil
	}
	if p.Email != "" {
		for _, c := range candidates {
			if mapper.NormalizeEmail(c.Email) == p.Email {
				return c.ID.String(), nil
			}
		}
	}
	l.Warn("Multiple name matches, using first candidate",
		"name", p.FirstName+" "+p.LastName,
		"candidates", len(candidates))
	return candidates[0].ID.String(), nil
}

// adopt records a search hit as the mapping of record and brings the CRM
// side up to date.
func (r *Reconciler) adopt(ctx context.Context, l *slog.Logger, cache *RunCache, p models.Participant, constituentID, path string) (string, error) {
	metrics.ReconciliationOutcomes.WithLabelValues(path).Inc()
	cache.Matched++
	if r.dryRun {
		l.Info("DRY RUN: would record constituent mapping",
			"constituent_id", constituentID, "path", path)
		cache.constituents[p.SourceID] = constituentID
		return constituentID, nil
	}
	if err := r.store.Put(mapstore.KindConstituent, p.SourceID, constituentID); err != nil {
		return "", err
	}
	cache.constituents[p.SourceID] = constituentID
	l.Info("Constituent matched", "constituent_id", constituentID, "path", path)

	existing, err := r.crm.GetConstituent(ctx, constituentID)
	if err != nil {
		l.Warn("Could not load matched constituent for update",
			"constituent_id", constituentID, "error", err)
		return constituentID, nil
	}
	if err := r.syncDetails(ctx, l, constituentID, p, existing); err != nil {
		l.Warn("Constituent update failed, keeping stale details",
			"constituent_id", constituentID, "error", err)
	}
	return constituentID, nil
}

func (r *Reconciler) create(ctx context.Context, l *slog.Logger, cache *RunCache, p models.Participant) (string, error) {
	payload := &models.Constituent{
		Type:     "Individual",
		First:    p.FirstName,
		Last:     p.LastName,
		LookupID: mapper.ConstituentLookupID(p.SourceID),
	}
	if p.Email != "" {
		payload.Email = &models.EmailAddress{Address: p.Email, Type: "Email", Primary: true}
	}
	if p.Phone != "" {
		payload.Phone = &models.Phone{Number: p.Phone, Type: "Home", Primary: true}
	}

	if r.dryRun {
		l.Info("DRY RUN: would create constituent", "first", p.FirstName, "last", p.LastName)
		return "", ErrDryRun
	}

	id, err := r.crm.CreateConstituent(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("create constituent: %w", err)
	}
	metrics.ReconciliationOutcomes.WithLabelValues("created").Inc()
	if err := r.store.Put(mapstore.KindConstituent, p.SourceID, id); err != nil {
		return "", err
	}
	cache.constituents[p.SourceID] = id
	cache.Created++
	l.Info("Constituent created", "constituent_id", id)
	return id, nil
}

// syncDetails pushes name, email and phone changes onto an existing
// constituent. Names patch in place; email and phone live as satellite
// records with their own endpoints.
func (r *Reconciler) syncDetails(ctx context.Context, l *slog.Logger, constituentID string, p models.Participant, existing *models.Constituent) error {
	diff := make(map[string]any)
	if p.FirstName != "" && p.FirstName != existing.First {
		diff["first"] = p.FirstName
	}
	if p.LastName != "" && p.LastName != existing.Last {
		diff["last"] = p.LastName
	}
	if len(diff) > 0 {
		if r.dryRun {
			l.Info("DRY RUN: would update constituent name", "constituent_id", constituentID)
		} else if err := r.crm.UpdateConstituent(ctx, constituentID, diff); err != nil {
			return fmt.Errorf("update constituent %s: %w", constituentID, err)
		}
	}
	if err := r.syncEmail(ctx, l, constituentID, p.Email); err != nil {
		return err
	}
	return r.syncPhone(ctx, l, constituentID, p.Phone)
}

// syncEmail makes sure the platform email is on file. An exact match wins.
// A differing active primary is updated in place, never deleted; with no
// active primary a new primary record is created.
func (r *Reconciler) syncEmail(ctx context.Context, l *slog.Logger, constituentID, email string) error {
	if email == "" {
		return nil
	}
	existing, err := r.crm.ListConstituentEmails(ctx, constituentID)
	if err != nil {
		return fmt.Errorf("list emails for %s: %w", constituentID, err)
	}
	var primary *models.EmailAddress
	for i := range existing {
		if mapper.NormalizeEmail(existing[i].Address) == email {
			return nil
		}
		if existing[i].Primary && !existing[i].Inactive && primary == nil {
			primary = &existing[i]
		}
	}
	if r.dryRun {
		l.Info("DRY RUN: would sync email", "constituent_id", constituentID)
		return nil
	}
	if primary != nil {
		if err := r.crm.UpdateEmail(ctx, primary.ID.String(), map[string]any{"address": email}); err != nil {
			return fmt.Errorf("update primary email for %s: %w", constituentID, err)
		}
		l.Info("Primary email updated", "constituent_id", constituentID)
		return nil
	}
	e := models.EmailAddress{
		ConstituentID: models.FlexID(constituentID),
		Address:       email,
		Type:          "Email",
		Primary:       true,
	}
	if err := r.crm.CreateEmail(ctx, e); err != nil {
		return fmt.Errorf("create email for %s: %w", constituentID, err)
	}
	l.Info("Email added", "constituent_id", constituentID)
	return nil
}

// syncPhone mirrors syncEmail for phone records, comparing on normalized
// digits so formatting noise does not create duplicates.
func (r *Reconciler) syncPhone(ctx context.Context, l *slog.Logger, constituentID, phone string) error {
	if phone == "" {
		return nil
	}
	existing, err := r.crm.ListConstituentPhones(ctx, constituentID)
	if err != nil {
		return fmt.Errorf("list phones for %s: %w", constituentID, err)
	}
	var primary *models.Phone
	for i := range existing {
		if mapper.FormatPhoneNumber(existing[i].Number) == phone {
			return nil
		}
		if existing[i].Primary && !existing[i].Inactive && primary == nil {
			primary = &existing[i]
		}
	}
	if r.dryRun {
		l.Info("DRY RUN: would sync phone", "constituent_id", constituentID)
		return nil
	}
	if primary != nil {
		if err := r.crm.UpdatePhone(ctx, primary.ID.String(), map[string]any{"number": phone}); err != nil {
			return fmt.Errorf("update primary phone for %s: %w", constituentID, err)
		}
		l.Info("Primary phone updated", "constituent_id", constituentID)
		return nil
	}
	ph := models.Phone{
		ConstituentID: models.FlexID(constituentID),
		Number:        phone,
		Type:          "Home",
		Primary:       true,
	}
	if err := r.crm.CreatePhone(ctx, ph); err != nil {
		return fmt.Errorf("create phone for %s: %w", constituentID, err)
	}
	l.Info("Phone added", "constituent_id", constituentID)
	return nil
}
