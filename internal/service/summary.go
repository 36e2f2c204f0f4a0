package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunSummary aggregates the outcome of one sync run for the final report
// log and the CLI. Counters are written from a single goroutine; runs are
// sequential end to end.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	EventsCreated int
	EventsMatched int

	ConstituentsCreated int
	ConstituentsMatched int

	ParticipantsCreated   int
	ParticipantsUpdated   int
	ParticipantsUnchanged int
	ParticipantsSkipped   int

	GiftsCreated int
	GiftsSkipped int

	Errors []string
}

func NewRunSummary() *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// RecordError captures a per-record failure without stopping the run. The
// collected messages surface in the final report so skipped records can be
// reprocessed by hand.
func (s *RunSummary) RecordError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Finish stamps the total duration.
func (s *RunSummary) Finish() {
	s.Duration = time.Since(s.StartedAt)
}

func (s *RunSummary) HasErrors() bool { return len(s.Errors) > 0 }
