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

// PaymentAPI defines the contract for reading platform payments
type PaymentAPI interface {
	ListPayments(ctx context.Context, q api.PaymentQuery) ([]models.RawPayment, error)
	GetPayment(ctx context.Context, id string) (models.RawPayment, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// GiftAPI defines the contract for the CRM gift ledger
type GiftAPI interface {
	GiftExists(ctx context.Context, lookupID string) (bool, error)
	CreateGift(ctx context.Context, g models.Gift) (string, error)
}

// FinancialOptions filters and shapes one payment processing run
type FinancialOptions struct {
	StartDate string
	EndDate   string
	PaymentID string
	BatchSize int
	DryRun    bool
}

const defaultBatchSize = 25

// FinancialSync posts platform payments to the CRM gift ledger. Every gift
// carries the payment's reference as its lookup ID, so re-running any
// window creates no duplicates.
type FinancialSync struct {
	src    PaymentAPI
	crm    GiftAPI
	rec    *Reconciler
	funds  *mapstore.FundMap
	logger *slog.Logger
}

func NewFinancialSync(src PaymentAPI, crm GiftAPI, rec *Reconciler, funds *mapstore.FundMap, logger *slog.Logger) *FinancialSync {
	return &FinancialSync{
		src:    src,
		crm:    crm,
		rec:    rec,
		funds:  funds,
		logger: logger.With("component", "financial_sync"),
	}
}

// Run processes the selected payments into gifts. Per-record failures are
// logged and skipped; a payment listing that cannot be fetched aborts the
// stage.
func (f *FinancialSync) Run(ctx context.Context, cache *RunCache, opts FinancialOptions, sum *RunSummary) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("financial").Observe(time.Since(start).Seconds())
	}()
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	var raw []models.RawPayment
	if opts.PaymentID != "" {
		p, err := f.src.GetPayment(ctx, opts.PaymentID)
		if err != nil {
			return fmt.Errorf("fetch payment %s: %w", opts.PaymentID, err)
		}
		raw = []models.RawPayment{p}
	} else {
		var err error
		raw, err = f.src.ListPayments(ctx, api.PaymentQuery{
			StartDate: opts.StartDate,
			EndDate:   opts.EndDate,
		})
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
	}
	f.logger.Info("Payments fetched",
		"count", len(raw),
		"start_date", opts.StartDate,
		"end_date", opts.EndDate,
		"dry_run", opts.DryRun)

	for i, rp := range raw {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if i > 0 && i%opts.BatchSize == 0 {
			f.logger.Info("Batch checkpoint", "processed", i, "total", len(raw))
		}

		if err := f.processPayment(ctx, cache, rp, opts.DryRun, sum); err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				return err
			}
			sum.RecordError("payment %d of %d: %v", i+1, len(raw), err)
			f.logger.Error("Payment processing failed, skipping", "error", err)
			metrics.RecordsProcessed.WithLabelValues("financial", "failed").Inc()
			continue
		}
	}
	return nil
}

func (f *FinancialSync) processPayment(ctx context.Context, cache *RunCache, raw models.RawPayment, dryRun bool, sum *RunSummary) error {
	p, err := mapper.StandardizePayment(raw)
	if err != nil {
		return err
	}
	ref := mapper.PaymentReference(p.SourceID)
	l := f.logger.With("payment_id", p.SourceID)

	exists, err := f.crm.GiftExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check gift %s: %w", ref, err)
	}
	if exists {
		l.Debug("Gift already on ledger, skipping", "reference", ref)
		sum.GiftsSkipped++
		metrics.RecordsProcessed.WithLabelValues("financial", "duplicate").Inc()
		return nil
	}

	donor, err := f.resolveDonor(ctx, p)
	if err != nil {
		return err
	}
	constituentID, err := f.rec.ResolveConstituent(ctx, cache, donor)
	if err != nil {
		if errors.Is(err, ErrDryRun) {
			l.Info("DRY RUN: donor constituent would be created first", "reference", ref)
			sum.GiftsSkipped++
			return nil
		}
		return fmt.Errorf("resolve donor for %s: %w", ref, err)
	}

	fundID, exact := f.funds.Resolve(p.EventCode)
	if fundID == "" {
		l.Error("No fund mapping for event code, gift skipped",
			"event_code", p.EventCode, "reference", ref)
		sum.RecordError("payment %s: no fund mapping for event code %q", p.SourceID, p.EventCode)
		metrics.RecordsProcessed.WithLabelValues("financial", "unmapped_fund").Inc()
		return nil
	}
	if !exact {
		l.Warn("Event code not in fund map, using default fund",
			"event_code", p.EventCode, "fund_id", fundID)
	}

	if p.Date == "" {
		p.Date = time.Now().Format("2006-01-02")
	}
	gift := mapper.GiftFromPayment(p, constituentID, fundID)

	if dryRun {
		l.Info("DRY RUN: would create gift",
			"reference", ref,
			"amount", p.Amount.StringFixed(2),
			"fund_id", fundID)
		sum.GiftsCreated++
		return nil
	}
	giftID, err := f.crm.CreateGift(ctx, gift)
	if err != nil {
		return fmt.Errorf("create gift %s: %w", ref, err)
	}
	sum.GiftsCreated++
	metrics.RecordsProcessed.WithLabelValues("financial", "created").Inc()
	l.Info("Gift created",
		"gift_id", giftID,
		"reference", ref,
		"amount", p.Amount.StringFixed(2),
		"fund_id", fundID)
	return nil
}

// resolveDonor shapes the payment's donor for the reconciler, filling gaps
// from the platform user profile when the payment row is thin. Payments
// without a user reference key their mapping off the payment itself.
func (f *FinancialSync) resolveDonor(ctx context.Context, p models.Payment) (models.Participant, error) {
	donor := models.Participant{
		SourceID:  p.UserID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
	}
	if donor.SourceID == "" {
		donor.SourceID = "payer-" + p.SourceID
	}
	if (donor.FirstName == "" || donor.LastName == "") && p.UserID != "" {
		user, err := f.src.GetUser(ctx, p.UserID)
		if err != nil {
			return donor, fmt.Errorf("fetch user %s: %w", p.UserID, err)
		}
		if donor.FirstName == "" {
			donor.FirstName = user.FirstName
		}
		if donor.LastName == "" {
			donor.LastName = user.LastName
		}
		if donor.Email == "" {
			donor.Email = mapper.NormalizeEmail(user.Email)
		}
		donor.Phone = mapper.FormatPhoneNumber(user.Phone)
	}
	return donor, nil
}
