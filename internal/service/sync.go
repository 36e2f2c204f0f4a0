package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Orchestrator drives complete sync runs stage by stage. Stage order is
// fixed: events first so every roster has a CRM event to land on, then
// participants. Constituents are reconciled inline during the participant
// stage because the platform only exposes people through event rosters.
type Orchestrator struct {
	events    *EventSync
	financial *FinancialSync
	logger    *slog.Logger
}

func NewOrchestrator(events *EventSync, financial *FinancialSync, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		events:    events,
		financial: financial,
		logger:    logger.With("component", "orchestrator"),
	}
}

// RunFull syncs every event and every roster. Durable state lives only in
// the mapping files and the remote systems, so an interrupted run resumes
// by simply running again.
func (o *Orchestrator) RunFull(ctx context.Context) (*RunSummary, error) {
	sum := NewRunSummary()
	cache := NewRunCache()
	o.logger.Info("⚙️  Full sync starting", "run_id", sum.RunID)

	mapped, err := o.events.SyncEvents(ctx, sum)
	if err != nil {
		sum.Finish()
		return sum, fmt.Errorf("event stage: %w", err)
	}
	if err := o.events.SyncEventParticipants(ctx, cache, mapped, sum); err != nil {
		sum.Finish()
		return sum, fmt.Errorf("participant stage: %w", err)
	}

	o.finish(sum, cache)
	return sum, nil
}

// RunEvent syncs one platform event and its roster.
func (o *Orchestrator) RunEvent(ctx context.Context, eventID string) (*RunSummary, error) {
	sum := NewRunSummary()
	cache := NewRunCache()
	o.logger.Info("⚙️  Single event sync starting", "run_id", sum.RunID, "event_id", eventID)

	if err := o.events.SyncOne(ctx, cache, eventID, sum); err != nil {
		sum.Finish()
		return sum, err
	}
	o.finish(sum, cache)
	return sum, nil
}

// RunFinancial posts a window of payments to the gift ledger.
func (o *Orchestrator) RunFinancial(ctx context.Context, opts FinancialOptions) (*RunSummary, error) {
	sum := NewRunSummary()
	cache := NewRunCache()
	o.logger.Info("⚙️  Financial sync starting",
		"run_id", sum.RunID,
		"payment_id", opts.PaymentID,
		"dry_run", opts.DryRun)

	if err := o.financial.Run(ctx, cache, opts, sum); err != nil {
		sum.Finish()
		return sum, fmt.Errorf("financial stage: %w", err)
	}
	o.finish(sum, cache)
	return sum, nil
}

func (o *Orchestrator) finish(sum *RunSummary, cache *RunCache) {
	sum.ConstituentsCreated = cache.Created
	sum.ConstituentsMatched = cache.Matched
	sum.Finish()
	o.logger.Info("📊 Sync run complete",
		"run_id", sum.RunID,
		"duration", sum.Duration.Round(time.Millisecond).String(),
		"events_created", sum.EventsCreated,
		"events_matched", sum.EventsMatched,
		"constituents_created", sum.ConstituentsCreated,
		"constituents_matched", sum.ConstituentsMatched,
		"participants_created", sum.ParticipantsCreated,
		"participants_updated", sum.ParticipantsUpdated,
		"participants_unchanged", sum.ParticipantsUnchanged,
		"participants_skipped", sum.ParticipantsSkipped,
		"gifts_created", sum.GiftsCreated,
		"gifts_skipped", sum.GiftsSkipped,
		"errors", len(sum.Errors),
	)
}
