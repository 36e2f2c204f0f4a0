package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/graceworks/missionsync/internal/api"
	"github.com/graceworks/missionsync/internal/auth"
	"github.com/graceworks/missionsync/internal/mapper"
	"github.com/graceworks/missionsync/internal/mapstore"
	"github.com/graceworks/missionsync/internal/models"
	"github.com/graceworks/missionsync/pkg/metrics"
)

// SourceAPI defines the contract for reading the volunteer platform
type SourceAPI interface {
	ListEvents(ctx context.Context) ([]models.Event, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEventParticipants(ctx context.Context, eventID string) ([]models.RawParticipant, error)
	GetMember(ctx context.Context, id string) (*models.User, error)
}

// EventAPI defines the contract for CRM event operations
type EventAPI interface {
	CreateEvent(ctx context.Context, p models.EventPayload) (string, error)
	GetEvent(ctx context.Context, id string) (*models.BeaconEvent, error)
	ListEventParticipants(ctx context.Context, eventID string) ([]models.EventParticipant, error)
	CreateParticipant(ctx context.Context, eventID string, p models.EventParticipant) (string, error)
	UpdateParticipant(ctx context.Context, id string, diff map[string]any) error
}

// EventSync mirrors platform events and their rosters into the CRM.
// Per-record failures are absorbed and logged; a listing that cannot be
// fetched at all aborts the stage because there is nothing to continue
// with.
type EventSync struct {
	src    SourceAPI
	crm    EventAPI
	rec    *Reconciler
	store  MappingStore
	dryRun bool
	logger *slog.Logger
}

func NewEventSync(src SourceAPI, crm EventAPI, rec *Reconciler, store MappingStore, logger *slog.Logger) *EventSync {
	return &EventSync{
		src:    src,
		crm:    crm,
		rec:    rec,
		store:  store,
		logger: logger.With("component", "event_sync"),
	}
}

// SetDryRun turns every CRM write into a logged no-op.
func (s *EventSync) SetDryRun(dryRun bool) { s.dryRun = dryRun }

// mappedEvent pairs a platform event with its CRM counterpart for the
// participant stage. crmID is empty when a dry run withheld the create.
type mappedEvent struct {
	source models.Event
	crmID  string
}

// SyncEvents makes sure every platform event exists in the CRM and returns
// the pairs the participant stage works through. Remembered mappings are
// verified so a deleted CRM event gets re-created instead of silently
// swallowing its roster.
func (s *EventSync) SyncEvents(ctx context.Context, sum *RunSummary) ([]mappedEvent, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("events").Observe(time.Since(start).Seconds())
	}()

	events, err := s.src.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list platform events: %w", err)
	}
	s.logger.Info("Platform events fetched", "count", len(events))

	var mapped []mappedEvent
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return mapped, ctx.Err()
		default:
		}

		crmID, err := s.syncEvent(ctx, ev, sum)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				return mapped, err
			}
			sum.RecordError("event %s: %v", ev.CanonicalID(), err)
			s.logger.Error("Event sync failed, skipping",
				"event_id", ev.CanonicalID(), "error", err)
			metrics.RecordsProcessed.WithLabelValues("events", "failed").Inc()
			continue
		}
		mapped = append(mapped, mappedEvent{source: ev, crmID: crmID})
	}
	return mapped, nil
}

func (s *EventSync) syncEvent(ctx context.Context, ev models.Event, sum *RunSummary) (string, error) {
	sourceID := ev.CanonicalID()
	if sourceID == "" {
		return "", &MissingIdentifierError{Kind: "event"}
	}
	l := s.logger.With("event_id", sourceID)

	if crmID, ok := s.store.Get(mapstore.KindEvent, sourceID); ok {
		_, err := s.crm.GetEvent(ctx, crmID)
		switch {
		case err == nil:
			sum.EventsMatched++
			metrics.RecordsProcessed.WithLabelValues("events", "matched").Inc()
			return crmID, nil
		case api.IsNotFound(err):
			l.Warn("Mapped CRM event no longer exists, recreating", "crm_event_id", crmID)
		default:
			return "", fmt.Errorf("verify event %s: %w", crmID, err)
		}
	}

	payload := mapper.TransformEvent(ev)
	if s.dryRun {
		l.Info("DRY RUN: would create event", "name", ev.Name)
		sum.EventsCreated++
		return "", nil
	}
	crmID, err := s.crm.CreateEvent(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	if err := s.store.Put(mapstore.KindEvent, sourceID, crmID); err != nil {
		return "", err
	}
	sum.EventsCreated++
	metrics.RecordsProcessed.WithLabelValues("events", "created").Inc()
	l.Info("Event created", "crm_event_id", crmID, "name", ev.Name)
	return crmID, nil
}

// SyncEventParticipants reconciles every roster member of every mapped
// event. Constituents are matched or created as a side effect.
func (s *EventSync) SyncEventParticipants(ctx context.Context, cache *RunCache, events []mappedEvent, sum *RunSummary) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("participants").Observe(time.Since(start).Seconds())
	}()

	for _, me := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if me.crmID == "" {
			s.logger.Debug("Roster skipped for event without CRM counterpart",
				"event_id", me.source.CanonicalID())
			continue
		}
		if err := s.syncRoster(ctx, cache, me, sum); err != nil {
			return err
		}
	}
	return nil
}

// SyncOne syncs a single platform event and its roster, for targeted
// re-runs from the CLI.
func (s *EventSync) SyncOne(ctx context.Context, cache *RunCache, eventID string, sum *RunSummary) error {
	ev, err := s.src.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("fetch platform event %s: %w", eventID, err)
	}
	crmID, err := s.syncEvent(ctx, *ev, sum)
	if err != nil {
		return err
	}
	if crmID == "" {
		return nil
	}
	return s.syncRoster(ctx, cache, mappedEvent{source: *ev, crmID: crmID}, sum)
}

func (s *EventSync) syncRoster(ctx context.Context, cache *RunCache, me mappedEvent, sum *RunSummary) error {
	sourceID := me.source.CanonicalID()
	l := s.logger.With("event_id", sourceID, "crm_event_id", me.crmID)

	raw, err := s.src.ListEventParticipants(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list participants of event %s: %w", sourceID, err)
	}
	existing, err := s.crm.ListEventParticipants(ctx, me.crmID)
	if err != nil {
		return fmt.Errorf("list CRM participants of event %s: %w", me.crmID, err)
	}
	roster := indexRoster(existing)
	l.Info("Roster loaded", "platform", len(raw), "crm", len(existing))

	for _, rp := range raw {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p := s.enrichParticipant(ctx, mapper.StandardizeParticipant(rp))
		if p.FirstName == "" || p.LastName == "" {
			l.Warn("Participant without full name skipped", "source_id", p.SourceID)
			sum.ParticipantsSkipped++
			metrics.RecordsProcessed.WithLabelValues("participants", "skipped").Inc()
			continue
		}

		if err := s.syncParticipant(ctx, cache, me.crmID, roster, p, sum); err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				return err
			}
			if errors.Is(err, ErrDryRun) {
				sum.ParticipantsSkipped++
				continue
			}
			var missing *MissingIdentifierError
			if errors.As(err, &missing) {
				l.Warn("Participant skipped", "reason", err)
				sum.ParticipantsSkipped++
				metrics.RecordsProcessed.WithLabelValues("participants", "skipped").Inc()
				continue
			}
			sum.RecordError("participant %s in event %s: %v", p.SourceID, sourceID, err)
			l.Error("Participant sync failed, skipping",
				"source_id", p.SourceID, "error", err)
			sum.ParticipantsSkipped++
			metrics.RecordsProcessed.WithLabelValues("participants", "failed").Inc()
			continue
		}
	}
	return nil
}

// enrichParticipant fills the roster row from the membership profile,
// which carries the contact fields rosters often omit, phone in
// particular. Profile values win; a failed lookup leaves the roster data
// untouched.
func (s *EventSync) enrichParticipant(ctx context.Context, p models.Participant) models.Participant {
	if p.SourceID == "" {
		return p
	}
	member, err := s.src.GetMember(ctx, p.SourceID)
	if err != nil {
		s.logger.Debug("Membership profile unavailable, using roster data",
			"source_id", p.SourceID, "error", err)
		return p
	}
	if member.FirstName != "" {
		p.FirstName = member.FirstName
	}
	if member.LastName != "" {
		p.LastName = member.LastName
	}
	if e := mapper.NormalizeEmail(member.Email); e != "" {
		p.Email = e
	}
	if ph := mapper.FormatPhoneNumber(member.Phone); ph != "" {
		p.Phone = ph
	}
	return p
}

func (s *EventSync) syncParticipant(ctx context.Context, cache *RunCache, crmEventID string, roster *rosterIndex, p models.Participant, sum *RunSummary) error {
	constituentID, err := s.rec.ResolveConstituent(ctx, cache, p)
	if err != nil {
		return err
	}

	// Hosts resolve through the mapping only. A host who has never been
	// synced just means the guest link is omitted this run.
	hostID := ""
	if p.HostID != "" {
		if id, ok := cache.constituents[p.HostID]; ok {
			hostID = id
		} else if id, ok := s.store.Get(mapstore.KindConstituent, p.HostID); ok {
			hostID = id
		}
	}

	l := s.logger.With("source_id", p.SourceID, "constituent_id", constituentID)

	if existing := roster.find(p, constituentID); existing != nil {
		want := mapper.MapRegistrationStatus(p.Status)
		diff := make(map[string]any)
		if existing.RSVPStatus != want {
			diff["rsvp_status"] = want
		}
		if existing.Attended != p.Attended {
			diff["attended"] = p.Attended
		}
		if len(diff) == 0 {
			sum.ParticipantsUnchanged++
			metrics.RecordsProcessed.WithLabelValues("participants", "unchanged").Inc()
			return nil
		}
		if s.dryRun {
			l.Info("DRY RUN: would update participant",
				"participant_id", existing.ID.String(), "fields", len(diff))
			sum.ParticipantsUpdated++
			return nil
		}
		if err := s.crm.UpdateParticipant(ctx, existing.ID.String(), diff); err != nil {
			if !api.IsValidation(err) {
				return fmt.Errorf("update participant %s: %w", existing.ID, err)
			}
			l.Warn("Participant update rejected, retrying with status only", "error", err)
			retry := map[string]any{"rsvp_status": want}
			if err := s.crm.UpdateParticipant(ctx, existing.ID.String(), retry); err != nil {
				return fmt.Errorf("update participant %s: %w", existing.ID, err)
			}
		}
		sum.ParticipantsUpdated++
		metrics.RecordsProcessed.WithLabelValues("participants", "updated").Inc()
		l.Info("Participant updated", "participant_id", existing.ID.String())
		return nil
	}

	payload := mapper.TransformParticipant(p, constituentID, hostID)
	payload.LookupID = mapper.ConstituentLookupID(p.SourceID)
	if s.dryRun {
		l.Info("DRY RUN: would add participant to event")
		sum.ParticipantsCreated++
		return nil
	}
	id, err := s.crm.CreateParticipant(ctx, crmEventID, payload)
	if err != nil {
		if !api.IsValidation(err) {
			return fmt.Errorf("create participant: %w", err)
		}
		l.Warn("Participant payload rejected, retrying simplified", "error", err)
		simplified := models.EventParticipant{
			ConstituentID:    payload.ConstituentID,
			RSVPStatus:       payload.RSVPStatus,
			InvitationStatus: payload.InvitationStatus,
		}
		id, err = s.crm.CreateParticipant(ctx, crmEventID, simplified)
		if err != nil {
			return fmt.Errorf("create participant (simplified): %w", err)
		}
	}
	sum.ParticipantsCreated++
	metrics.RecordsProcessed.WithLabelValues("participants", "created").Inc()
	l.Info("Participant added", "participant_id", id)
	return nil
}

// rosterIndex answers "is this person already on the CRM roster" by any of
// the identities the CRM may hold for them. First entry wins on duplicate
// keys to keep the tie-break stable.
type rosterIndex struct {
	byConstituent map[string]*models.EventParticipant
	byLookup      map[string]*models.EventParticipant
	byEmail       map[string]*models.EventParticipant
	byName        map[string]*models.EventParticipant
}

func indexRoster(list []models.EventParticipant) *rosterIndex {
	idx := &rosterIndex{
		byConstituent: make(map[string]*models.EventParticipant),
		byLookup:      make(map[string]*models.EventParticipant),
		byEmail:       make(map[string]*models.EventParticipant),
		byName:        make(map[string]*models.EventParticipant),
	}
	for i := range list {
		ep := &list[i]
		if k := ep.ConstituentID.String(); k != "" {
			if _, dup := idx.byConstituent[k]; !dup {
				idx.byConstituent[k] = ep
			}
		}
		if ep.LookupID != "" {
			if _, dup := idx.byLookup[ep.LookupID]; !dup {
				idx.byLookup[ep.LookupID] = ep
			}
		}
		if k := mapper.NormalizeEmail(ep.Email); k != "" {
			if _, dup := idx.byEmail[k]; !dup {
				idx.byEmail[k] = ep
			}
		}
		if ep.FirstName != "" && ep.LastName != "" {
			k := mapper.FoldName(ep.FirstName) + "|" + mapper.FoldName(ep.LastName)
			if _, dup := idx.byName[k]; !dup {
				idx.byName[k] = ep
			}
		}
	}
	return idx
}

// find applies the match order: constituent ID, lookup ID, email, name.
func (idx *rosterIndex) find(p models.Participant, constituentID string) *models.EventParticipant {
	if constituentID != "" {
		if ep, ok := idx.byConstituent[constituentID]; ok {
			return ep
		}
	}
	if ep, ok := idx.byLookup[mapper.ConstituentLookupID(p.SourceID)]; ok {
		return ep
	}
	if p.Email != "" {
		if ep, ok := idx.byEmail[p.Email]; ok {
			return ep
		}
	}
	if ep, ok := idx.byName[mapper.FoldName(p.FirstName)+"|"+mapper.FoldName(p.LastName)]; ok {
		return ep
	}
	return nil
}
