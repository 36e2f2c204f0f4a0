package mapper

import (
	"strings"

	"github.com/graceworks/missionsync/internal/models"
)

// ConstituentLookupID builds the lookup ID stamped on constituents created
// by the sync: "SP-<platform user id>".
func ConstituentLookupID(sourceID string) string {
	return "SP-" + sourceID
}

// StandardizeParticipant flattens one raw registration into the canonical
// participant shape. The platform emits different field names per tenant
// (UserId vs Id vs Guid, First vs FirstName), so every alias is resolved
// in priority order exactly once, here, and nowhere downstream.
func StandardizeParticipant(raw models.RawParticipant) models.Participant {
	p := models.Participant{
		SourceID:  firstID(raw, "UserId", "Id", "Guid"),
		FirstName: firstString(raw, "First", "FirstName"),
		LastName:  firstString(raw, "Last", "LastName"),
		Email:     NormalizeEmail(firstString(raw, "Email", "EmailAddress")),
		Phone:     FormatPhoneNumber(firstString(raw, "Phone", "PhoneNumber", "Mobile")),
		Status:    firstString(raw, "Status", "RegistrationStatus"),
		HostID:    firstID(raw, "HostId", "HostUserId"),
	}
	if p.Status == "" {
		p.Status = "Unknown"
	}
	p.Attended = CoerceAttended(raw["Attended"])
	return p
}

// CoerceAttended folds the platform's many spellings of the attendance
// flag (true, "true", "True", "1", 1) into a bool. Anything else is false.
func CoerceAttended(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true
		}
	case float64:
		return val == 1
	case int:
		return val == 1
	}
	return false
}

// TransformParticipant builds the CRM participant payload for a resolved
// constituent. InvitationStatus is always Invited; the CRM rejects
// participants that arrive without one.
func TransformParticipant(p models.Participant, constituentID, hostID string) models.EventParticipant {
	ep := models.EventParticipant{
		ConstituentID:    models.FlexID(constituentID),
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Email:            p.Email,
		RSVPStatus:       MapRegistrationStatus(p.Status),
		InvitationStatus: "Invited",
		Attended:         p.Attended,
	}
	if hostID != "" {
		ep.HostID = models.FlexID(hostID)
	}
	return ep
}
