package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// PageInfo is the paging header ServePoint attaches to every list response
type PageInfo struct {
	TotalRecords int `json:"TotalRecords"`
	Page         int `json:"Page"`
	PageSize     int `json:"PageSize"`
	TotalPages   int `json:"TotalPages"`
}

// Event is a ServePoint event. Older tenants expose the identifier as "Id",
// newer ones as "EventId"; CanonicalID resolves both to one string key.
type Event struct {
	EventID         int64  `json:"EventId,omitempty"`
	ID              int64  `json:"Id,omitempty"`
	Name            string `json:"Name"`
	Description     string `json:"Description,omitempty"`
	StartDate       string `json:"StartDate"` // ISO 8601
	EndDate         string `json:"EndDate,omitempty"`
	EventCode       string `json:"EventCode,omitempty"` // short trip code, keys the fund mapping
	MaxParticipants int    `json:"MaxParticipants,omitempty"`
}

// CanonicalID returns the event's mapping key ("" when no ID is present)
func (e Event) CanonicalID() string {
	if e.EventID != 0 {
		return strconv.FormatInt(e.EventID, 10)
	}
	if e.ID != 0 {
		return strconv.FormatInt(e.ID, 10)
	}
	return ""
}

// EventsPage is one page of the events listing
type EventsPage struct {
	PageInfo PageInfo `json:"PageInfo"`
	Results  []Event  `json:"Results"`
}

// RawParticipant carries a participant record exactly as ServePoint returned
// it. Field names vary by tenant and endpoint version (Id/UserId/Guid,
// First/FirstName, Email/EmailAddress), so the record is standardized once
// at ingestion and never re-interpreted downstream.
type RawParticipant map[string]any

// ParticipantsPage is one page of an event's participant listing
type ParticipantsPage struct {
	PageInfo PageInfo         `json:"PageInfo"`
	Results  []RawParticipant `json:"Results"`
}

// RawPayment carries a payment record as returned by ServePoint. Amounts
// arrive as numbers or strings depending on tenant, IDs as TransactionId
// or Id; standardization happens at ingestion like participants.
type RawPayment map[string]any

// PaymentsPage is one page of the payments listing
type PaymentsPage struct {
	PageInfo PageInfo     `json:"PageInfo"`
	Results  []RawPayment `json:"Results"`
}

// User is a ServePoint member/user detail record
type User struct {
	ID        int64  `json:"Id"`
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
	Email     string `json:"Email,omitempty"`
	Phone     string `json:"Phone,omitempty"`
}

// Participant is the standardized internal form of a ServePoint participant,
// independent of which wire field names the tenant used
type Participant struct {
	SourceID  string // canonical ID (UserId > Id > Guid priority)
	FirstName string
	LastName  string
	Email     string // raw; normalize before comparing
	Phone     string
	Status    string // registration status, "Unknown" when absent
	Attended  bool
	HostID    string // canonical source ID of the hosting participant, guests only
}

// Payment is the standardized internal form of a ServePoint payment
type Payment struct {
	SourceID  string // canonical ID (TransactionId > Id priority)
	UserID    string // payer's member ID, may be empty
	FirstName string
	LastName  string
	Email     string
	Amount    decimal.Decimal
	Date      string // YYYY-MM-DD
	EventCode string // keys the fund mapping
	Method    string // free-form payment method from the source
}
