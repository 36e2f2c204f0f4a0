package models

import (
	"bytes"
	"encoding/json"
)

// FlexID is a Beacon record identifier. Beacon returns IDs as JSON numbers
// on create responses and as strings everywhere else; FlexID accepts both
// and always carries the canonical string form.
type FlexID string

func (f FlexID) String() string { return string(f) }

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// Constituent is a Beacon person record. The same shape serves GET responses
// and POST payloads; satellite sub-payloads are only honored on create.
type Constituent struct {
	ID       FlexID          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"` // always "Individual" for synced records
	First    string          `json:"first,omitempty"`
	Last     string          `json:"last,omitempty"`
	LookupID string          `json:"lookup_id,omitempty"` // "SP-<source id>" for synced records
	Email    *EmailAddress   `json:"email,omitempty"`
	Phone    *Phone          `json:"phone,omitempty"`
	Address  *Address        `json:"address,omitempty"`
}

// ConstituentSearchResult is one fuzzy candidate from the constituent search
// endpoint. Exact matching against it happens client-side.
type ConstituentSearchResult struct {
	ID       FlexID `json:"id"`
	First    string `json:"first,omitempty"`
	Last     string `json:"last,omitempty"`
	Email    string `json:"email,omitempty"`
	LookupID string `json:"lookup_id,omitempty"`
}

// ConstituentSearchList is the search response envelope
type ConstituentSearchList struct {
	Count int                       `json:"count"`
	Value []ConstituentSearchResult `json:"value"`
}

// EmailAddress is a Beacon email satellite record
type EmailAddress struct {
	ID            FlexID `json:"id,omitempty"`
	ConstituentID FlexID `json:"constituent_id,omitempty"`
	Address       string `json:"address"`
	Type          string `json:"type,omitempty"` // "Email"
	Primary       bool   `json:"primary"`
	Inactive      bool   `json:"inactive"`
	DoNotEmail    bool   `json:"do_not_email"`
}

// EmailList is the envelope for a constituent's email listing
type EmailList struct {
	Count int            `json:"count"`
	Value []EmailAddress `json:"value"`
}

// Phone is a Beacon phone satellite record
type Phone struct {
	ID            FlexID `json:"id,omitempty"`
	ConstituentID FlexID `json:"constituent_id,omitempty"`
	Number        string `json:"number"`
	Type          string `json:"type,omitempty"` // "Home"
	Primary       bool   `json:"primary"`
	Inactive      bool   `json:"inactive"`
	DoNotCall     bool   `json:"do_not_call"`
}

// PhoneList is the envelope for a constituent's phone listing
type PhoneList struct {
	Count int     `json:"count"`
	Value []Phone `json:"value"`
}

// Address is embedded in constituent create payloads only
type Address struct {
	Type         string `json:"type,omitempty"` // "Home"
	AddressLines string `json:"address_lines,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"`
	Primary      bool   `json:"primary"`
	DoNotMail    bool   `json:"do_not_mail"`
}

// EventCategory references a Beacon event category by ID
type EventCategory struct {
	ID string `json:"id"`
}

// EventPayload creates a Beacon event
type EventPayload struct {
	Name        string         `json:"name"`
	StartDate   string         `json:"start_date"` // YYYY-MM-DD
	EndDate     string         `json:"end_date,omitempty"`
	StartTime   string         `json:"start_time,omitempty"` // HH:MM
	EndTime     string         `json:"end_time,omitempty"`
	Description string         `json:"description,omitempty"`
	Capacity    int            `json:"capacity,omitempty"`
	Inactive    bool           `json:"inactive"`
	Category    *EventCategory `json:"category,omitempty"`
}

// BeaconEvent is a Beacon event as returned by GET
type BeaconEvent struct {
	ID        FlexID `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Inactive  bool   `json:"inactive,omitempty"`
}

// EventParticipant is a Beacon event participant, shared by GET lists and
// create payloads
type EventParticipant struct {
	ID               FlexID `json:"id,omitempty"`
	ConstituentID    FlexID `json:"constituent_id"`
	LookupID         string `json:"lookup_id,omitempty"`
	Email            string `json:"email,omitempty"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	RSVPStatus       string `json:"rsvp_status,omitempty"`
	InvitationStatus string `json:"invitation_status,omitempty"`
	Attended         bool   `json:"attended"`
	HostID           FlexID `json:"host_id,omitempty"`
}

// EventParticipantList is the envelope for an event's participant listing
type EventParticipantList struct {
	Count int                `json:"count"`
	Value []EventParticipant `json:"value"`
}

// GiftAmount wraps a monetary value the way Beacon expects it
type GiftAmount struct {
	Value float64 `json:"value"`
}

// GiftSplit allocates (part of) a gift to a fund
type GiftSplit struct {
	Amount GiftAmount `json:"amount"`
	FundID string     `json:"fund_id"`
}

// GiftPayment records how a gift was paid
type GiftPayment struct {
	PaymentMethod string `json:"payment_method"` // CreditCard, PersonalCheck, Cash
}

// Gift is a Beacon gift, shared by GET lists and create payloads
type Gift struct {
	ID            FlexID        `json:"id,omitempty"`
	ConstituentID FlexID        `json:"constituent_id"`
	Amount        GiftAmount    `json:"amount"`
	Date          string        `json:"date,omitempty"` // YYYY-MM-DD
	Type          string        `json:"type"`           // "Donation"
	Reference     string        `json:"reference,omitempty"`
	LookupID      string        `json:"lookup_id,omitempty"` // "SP-Payment-<id>", the idempotency key
	GiftStatus    string        `json:"gift_status,omitempty"`
	IsAnonymous   bool          `json:"is_anonymous"`
	PostStatus    string        `json:"post_status,omitempty"`
	GiftSplits    []GiftSplit   `json:"gift_splits"`
	Payments      []GiftPayment `json:"payments,omitempty"`
}

// GiftList is the gift search envelope
type GiftList struct {
	Count int    `json:"count"`
	Value []Gift `json:"value"`
}

// Fund is a Beacon fundraising fund
type Fund struct {
	ID          FlexID `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// FundList is the fund listing envelope
type FundList struct {
	Count int    `json:"count"`
	Value []Fund `json:"value"`
}

// IDResponse is Beacon's minimal create response
type IDResponse struct {
	ID FlexID `json:"id"`
}
