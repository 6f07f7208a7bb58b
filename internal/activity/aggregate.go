package activity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/store"
)

// GroupBy selects the aggregation dimension.
type GroupBy string

const (
	ByCompany     GroupBy = "company"
	ByRole        GroupBy = "role"
	ByScoreBucket GroupBy = "score"
	ByDay         GroupBy = "day"
)

// ParseGroupBy validates a group-by name.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case ByCompany, ByRole, ByScoreBucket, ByDay:
		return g, nil
	}
	return "", eris.Errorf("activity: unknown group %q (want company, role, score or day)", s)
}

// Group is one aggregate row. Session tallies come from session summary
// rows; score statistics from attempt rows that were scored.
type Group struct {
	Key       string  `json:"key"`
	Sessions  int     `json:"sessions"`
	Sent      int     `json:"sent"`
	Exhausted int     `json:"exhausted"`
	Errored   int     `json:"errored"`
	Cancelled int     `json:"cancelled"`
	Attempts  int     `json:"attempts"`
	AvgScore  float64 `json:"avg_score"`
	SendRate  float64 `json:"send_rate"`

	scoreSum float64
	scored   int
}

// Aggregate replays entries matching filter into per-key groups sorted by
// key. Entries are never modified; every aggregate is derived here.
func (l *Log) Aggregate(ctx context.Context, filter store.LogFilter, by GroupBy) ([]Group, error) {
	if _, err := ParseGroupBy(string(by)); err != nil {
		return nil, err
	}
	filter.Kind = ""
	entries, err := l.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Summarize(entries, by), nil
}

// Summarize groups entries without touching the store.
func Summarize(entries []model.LogEntry, by GroupBy) []Group {
	groups := make(map[string]*Group)
	get := func(k string) *Group {
		g, ok := groups[k]
		if !ok {
			g = &Group{Key: k}
			groups[k] = g
		}
		return g
	}

	for _, e := range entries {
		g := get(groupKey(e, by))
		switch e.Kind {
		case model.LogKindAttempt:
			g.Attempts++
			if e.Error == "" && e.ScorerVersion != "" {
				g.scoreSum += e.Score
				g.scored++
			}
		case model.LogKindSession:
			g.Sessions++
			switch e.Outcome {
			case model.OutcomeSent:
				g.Sent++
			case model.OutcomeExhausted:
				g.Exhausted++
			case model.OutcomeError:
				g.Errored++
			case model.OutcomeCancelled:
				g.Cancelled++
			}
		}
	}

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.scored > 0 {
			g.AvgScore = round(g.scoreSum / float64(g.scored))
		}
		if g.Sessions > 0 {
			g.SendRate = round(float64(g.Sent) / float64(g.Sessions))
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func groupKey(e model.LogEntry, by GroupBy) string {
	switch by {
	case ByCompany:
		return e.CompanyURL
	case ByRole:
		if e.ContactRole == "" {
			return "unknown"
		}
		return e.ContactRole
	case ByScoreBucket:
		return ScoreBucket(e.Score)
	case ByDay:
		return e.CreatedAt.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	}
	return ""
}

// ScoreBucket labels the 0.1-wide bucket holding score, e.g. "0.8-0.9".
// 1.0 falls in the top bucket.
func ScoreBucket(score float64) string {
	i := int(math.Floor(score*10 + 1e-9))
	i = max(0, min(i, 9))
	return fmt.Sprintf("%.1f-%.1f", float64(i)/10, float64(i+1)/10)
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
