package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/graceworks/missionsync/internal/models"
)

func TestTransformEvent(t *testing.T) {
	ev := models.Event{
		EventID:         100,
		Name:            "Honduras Build Trip",
		Description:     "Two weeks in Tegucigalpa",
		StartDate:       "2024-06-01T09:30:00Z",
		EndDate:         "2024-06-14T17:00:00Z",
		MaxParticipants: 24,
	}

	p := TransformEvent(ev)

	assert.Equal(t, "Honduras Build Trip", p.Name)
	assert.Equal(t, "2024-06-01", p.StartDate)
	assert.Equal(t, "09:30", p.StartTime)
	assert.Equal(t, "2024-06-14", p.EndDate)
	assert.Equal(t, "17:00", p.EndTime)
	assert.Equal(t, 24, p.Capacity)
	if assert.NotNil(t, p.Category) {
		assert.Equal(t, eventCategoryID, p.Category.ID)
	}
}

func TestTransformEvent_NoCapacity(t *testing.T) {
	p := TransformEvent(models.Event{EventID: 1, Name: "Day Trip", StartDate: "2024-06-01"})
	assert.Zero(t, p.Capacity)
}

func TestSplitTimestamp(t *testing.T) {
	cases := []struct {
		ts        string
		wantDate  string
		wantClock string
	}{
		{"2024-06-01T00:00:00Z", "2024-06-01", "00:00"},
		{"2024-06-01T15:04:05", "2024-06-01", "15:04"},
		{"2024-06-01 15:04:05", "2024-06-01", "15:04"},
		{"2024-06-01", "2024-06-01", ""},
		{"  2024-06-01  ", "2024-06-01", ""},
		{"", "", ""},
		{"junk", "junk", ""}, // passes through so the failure is visible downstream
	}

	for _, tc := range cases {
		date, clock := splitTimestamp(tc.ts)
		assert.Equal(t, tc.wantDate, date, "timestamp %q", tc.ts)
		assert.Equal(t, tc.wantClock, clock, "timestamp %q", tc.ts)
	}
}
