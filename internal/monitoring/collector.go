package monitoring

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/store"
)

// Snapshot holds a point-in-time view of outreach outcomes.
type Snapshot struct {
	Sessions      int            `json:"sessions"`
	Sent          int            `json:"sent"`
	Exhausted     int            `json:"exhausted"`
	Errored       int            `json:"errored"`
	Cancelled     int            `json:"cancelled"`
	ErrorRate     float64        `json:"error_rate"`
	ExhaustedRate float64        `json:"exhausted_rate"`
	Attempts      int            `json:"attempts"`
	AvgAttempts   float64        `json:"avg_attempts"`
	AvgScore      float64        `json:"avg_score"`
	ErrorKinds    map[string]int `json:"error_kinds,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// DeliveryFailures counts sessions that were accepted but failed to send.
func (s *Snapshot) DeliveryFailures() int {
	return s.ErrorKinds[model.ErrorKind(model.ErrDelivery)]
}

// LogLister reads activity log entries.
type LogLister interface {
	List(ctx context.Context, filter store.LogFilter) ([]model.LogEntry, error)
}

// Collector builds snapshots from the activity log.
type Collector struct {
	log LogLister
	now func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(log LogLister) *Collector {
	return &Collector{log: log, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. A
// non-positive window covers the whole log.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	filter := store.LogFilter{}
	if lookbackHours > 0 {
		filter.Since = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	entries, err := c.log.List(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list log")
	}

	snap := Build(entries)
	snap.LookbackHours = lookbackHours
	snap.CollectedAt = now
	return snap, nil
}

// Build tallies entries into a snapshot.
func Build(entries []model.LogEntry) *Snapshot {
	snap := &Snapshot{ErrorKinds: map[string]int{}}
	var scoreSum float64
	var scored int

	for _, e := range entries {
		switch e.Kind {
		case model.LogKindAttempt:
			snap.Attempts++
			if e.Error == "" && e.ScorerVersion != "" {
				scoreSum += e.Score
				scored++
			}
		case model.LogKindSession:
			snap.Sessions++
			switch e.Outcome {
			case model.OutcomeSent:
				snap.Sent++
			case model.OutcomeExhausted:
				snap.Exhausted++
			case model.OutcomeError:
				snap.Errored++
			case model.OutcomeCancelled:
				snap.Cancelled++
			}
			if e.ErrorKind != "" {
				snap.ErrorKinds[e.ErrorKind]++
			}
		}
	}

	if snap.Sessions > 0 {
		n := float64(snap.Sessions)
		snap.ErrorRate = round(float64(snap.Errored) / n)
		snap.ExhaustedRate = round(float64(snap.Exhausted) / n)
		snap.AvgAttempts = round(float64(snap.Attempts) / n)
	}
	if scored > 0 {
		snap.AvgScore = round(scoreSum / float64(scored))
	}
	return snap
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
