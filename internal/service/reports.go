package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/graceworks/missionsync/internal/api"
	"github.com/graceworks/missionsync/internal/mapper"
	"github.com/graceworks/missionsync/internal/mapstore"
	"github.com/graceworks/missionsync/internal/models"
)

// CRMReportAPI defines the contract for the CRM-side report reads
type CRMReportAPI interface {
	ListFunds(ctx context.Context) ([]models.Fund, error)
	GetFund(ctx context.Context, id string) (*models.Fund, error)
	ListConstituentEmails(ctx context.Context, constituentID string) ([]models.EmailAddress, error)
}

// tripCodePatterns recognize trip codes inside fund descriptions, most
// specific first so "SP1234" never matches the generic letters+digits
// pattern.
var tripCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bSP\d{1,6}\b`),
	regexp.MustCompile(`\b(?:TRIP|MISSION|MT)-\d{1,4}\b`),
	regexp.MustCompile(`\bT\d{4,6}\b`),
	regexp.MustCompile(`\b[A-Z]{2,4}\d{2,4}\b`),
}

// Reports backs the CLI's listing and bootstrap commands.
type Reports struct {
	src    SourceAPI
	crm    CRMReportAPI
	logger *slog.Logger
}

func NewReports(src SourceAPI, crm CRMReportAPI, logger *slog.Logger) *Reports {
	return &Reports{
		src:    src,
		crm:    crm,
		logger: logger.With("component", "reports"),
	}
}

// ListFunds returns the CRM fund catalog for display.
func (r *Reports) ListFunds(ctx context.Context) ([]models.Fund, error) {
	return r.crm.ListFunds(ctx)
}

// BuildFundMap scans the trip funds for trip codes and merges the hits
// into the fund map. Codes an operator already mapped by hand are left
// alone.
func (r *Reports) BuildFundMap(ctx context.Context, fm *mapstore.FundMap) (int, error) {
	funds, err := r.crm.ListFunds(ctx)
	if err != nil {
		return 0, fmt.Errorf("list funds: %w", err)
	}
	added := 0
	for _, f := range funds {
		if !isTripFund(f) {
			continue
		}
		code := ExtractTripCode(f.Description)
		if code == "" {
			continue
		}
		if _, ok := fm.Funds[code]; ok {
			continue
		}
		fm.Funds[code] = f.ID.String()
		added++
		r.logger.Info("Fund mapped",
			"trip_code", code,
			"fund_id", f.ID.String(),
			"description", f.Description)
	}
	return added, nil
}

// isTripFund reports whether a fund belongs to the trip catalog, either
// by its category or by the trip prefix convention in its description.
// Only these are scanned, so a code-shaped token in an unrelated fund
// name ("Building Fund HVAC2024") never routes trip payments.
func isTripFund(f models.Fund) bool {
	if strings.Contains(strings.ToLower(f.Category), "mission trip") {
		return true
	}
	desc := strings.TrimSpace(f.Description)
	idx := strings.Index(desc, ":")
	return idx >= 0 && strings.Contains(strings.ToLower(desc[:idx]), "trip")
}

// VerifyFundMap checks that every mapped fund still exists in the CRM
// and returns the trip codes whose funds no longer resolve. Hand edits
// and deleted funds drift apart over time; this keeps the map honest.
func (r *Reports) VerifyFundMap(ctx context.Context, fm *mapstore.FundMap) ([]string, error) {
	var stale []string
	for _, code := range fm.Codes() {
		id := fm.Funds[code]
		if _, err := r.crm.GetFund(ctx, id); err != nil {
			if api.IsNotFound(err) {
				stale = append(stale, code)
				continue
			}
			return stale, fmt.Errorf("verify fund %s: %w", id, err)
		}
	}
	return stale, nil
}

// ExtractTripCode pulls a trip code out of a fund description. The common
// shape is "Mission Trip : SP1234 Honduras 2026"; a trip prefix before a
// colon is dropped, then the patterns run in order and the first hit wins.
func ExtractTripCode(description string) string {
	desc := strings.TrimSpace(description)
	if idx := strings.Index(desc, ":"); idx >= 0 && strings.Contains(strings.ToLower(desc[:idx]), "trip") {
		desc = strings.TrimSpace(desc[idx+1:])
	}
	for _, re := range tripCodePatterns {
		if m := re.FindString(desc); m != "" {
			return m
		}
	}
	return ""
}

// ConstituentEmails returns the usable addresses on a CRM constituent
// record, skipping inactive and do-not-email entries.
func (r *Reports) ConstituentEmails(ctx context.Context, constituentID string) ([]string, error) {
	list, err := r.crm.ListConstituentEmails(ctx, constituentID)
	if err != nil {
		return nil, fmt.Errorf("list emails of constituent %s: %w", constituentID, err)
	}
	seen := make(map[string]struct{})
	var emails []string
	for _, e := range list {
		addr := mapper.NormalizeEmail(e.Address)
		if addr == "" || e.Inactive || e.DoNotEmail {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		emails = append(emails, addr)
	}
	sort.Strings(emails)
	return emails, nil
}

// EventEmails returns the deduplicated, sorted email addresses of an
// event's roster, for mailing exports.
func (r *Reports) EventEmails(ctx context.Context, eventID string) ([]string, error) {
	raw, err := r.src.ListEventParticipants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants of event %s: %w", eventID, err)
	}
	seen := make(map[string]struct{})
	var emails []string
	for _, rp := range raw {
		p := mapper.StandardizeParticipant(rp)
		if p.Email == "" {
			continue
		}
		if _, dup := seen[p.Email]; dup {
			continue
		}
		seen[p.Email] = struct{}{}
		emails = append(emails, p.Email)
	}
	sort.Strings(emails)
	return emails, nil
}
