package mapper

import "strings"

// RSVP statuses accepted by the CRM's participant endpoint.
const (
	RSVPAttending  = "Attending"
	RSVPDeclined   = "Declined"
	RSVPNoResponse = "NoResponse"
)

// MapRegistrationStatus translates the platform's free-form registration
// status into the CRM's closed RSVP set. Matching is case-insensitive.
// Pending approvals count as Attending so trip rosters show the real
// headcount; anything unrecognized lands on NoResponse instead of failing
// the record.
func MapRegistrationStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "registered", "waitingapproval":
		return RSVPAttending
	case "declined", "cancelled", "draft":
		return RSVPDeclined
	default:
		return RSVPNoResponse
	}
}
