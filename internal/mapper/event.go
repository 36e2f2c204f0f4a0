package mapper

import (
	"strings"
	"time"

	"github.com/graceworks/missionsync/internal/models"
)

// eventCategoryID is the CRM category synced events are filed under. Fixed
// on purpose; the platform has no event taxonomy worth carrying over.
const eventCategoryID = "3211"

// TransformEvent converts a platform event into the CRM create payload.
// The platform stores one ISO 8601 timestamp per boundary; the CRM wants
// separate date and time fields.
func TransformEvent(ev models.Event) models.EventPayload {
	startDate, startTime := splitTimestamp(ev.StartDate)
	endDate, endTime := splitTimestamp(ev.EndDate)
	p := models.EventPayload{
		Name:        ev.Name,
		Description: ev.Description,
		StartDate:   startDate,
		StartTime:   startTime,
		EndDate:     endDate,
		EndTime:     endTime,
		Category:    &models.EventCategory{ID: eventCategoryID},
	}
	if ev.MaxParticipants > 0 {
		p.Capacity = ev.MaxParticipants
	}
	return p
}

// splitTimestamp splits an ISO 8601 timestamp into date and clock parts.
// A bare date yields an empty clock. An unparseable value passes through
// as the date so the CRM rejects it visibly instead of the sync silently
// dropping the event.
func splitTimestamp(ts string) (date, clock string) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return "", ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format("2006-01-02"), t.Format("15:04")
		}
	}
	if t, err := time.Parse("2006-01-02", ts); err == nil {
		return t.Format("2006-01-02"), ""
	}
	return ts, ""
}
