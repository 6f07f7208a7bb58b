package quality

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/model"
)

// DefaultThreshold is the minimum passing score.
const DefaultThreshold = 0.6

// Verdict is the gate's decision on one draft.
type Verdict struct {
	Score        float64
	ModelVersion string
	Passed       bool
	// Feedback names the weakest aspect of the draft for the next attempt.
	// Set on every verdict, used only on failure.
	Feedback string
}

// Gate compares scores against a fixed threshold.
type Gate struct {
	scorer    Scorer
	threshold float64
}

// NewGate creates a Gate. threshold must lie in [0,1].
func NewGate(scorer Scorer, threshold float64) (*Gate, error) {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, eris.Errorf("quality: threshold %v outside [0,1]", threshold)
	}
	return &Gate{scorer: scorer, threshold: threshold}, nil
}

// Threshold returns the passing score.
func (g *Gate) Threshold() float64 { return g.threshold }

// Evaluate scores text. A score exactly at the threshold passes. A scorer
// error or an out-of-range score is model.ErrScoring.
func (g *Gate) Evaluate(ctx context.Context, text string, sc ScoreContext) (*Verdict, error) {
	s, err := g.scorer.Score(ctx, text, sc)
	if err != nil {
		return nil, model.Classify(model.ErrScoring, err)
	}
	if math.IsNaN(s.Value) || s.Value < 0 || s.Value > 1 {
		return nil, model.Classify(model.ErrScoring, eris.Errorf("quality: score %v outside [0,1]", s.Value))
	}
	if s.ModelVersion == "" {
		return nil, model.Classify(model.ErrScoring, eris.New("quality: scorer returned no model version"))
	}

	return &Verdict{
		Score:        s.Value,
		ModelVersion: s.ModelVersion,
		Passed:       s.Value >= g.threshold,
		Feedback:     Feedback(Analyze(text, sc), sc),
	}, nil
}

// Feedback turns the weakest signal into a concrete revision instruction.
func Feedback(s Signals, sc ScoreContext) string {
	name, _ := s.Weakest()
	switch name {
	case SignalKeywords:
		terms := s.MissingTerms
		if len(terms) > 3 {
			terms = terms[:3]
		}
		if len(terms) == 0 {
			return "Be more specific about what the company actually does."
		}
		return fmt.Sprintf("Be more specific about the company's work; reference %s.", strings.Join(terms, ", "))
	case SignalProfile:
		return "Tie the email to a concrete skill or project from the sender's background."
	case SignalContact:
		if sc.Contact != nil && sc.Contact.Name != "" {
			who := firstName(sc.Contact.Name)
			if sc.Contact.Title != "" {
				return fmt.Sprintf("Address %s directly and connect the email to their role as %s.", who, sc.Contact.Title)
			}
			return fmt.Sprintf("Address %s directly by name.", who)
		}
		return "Address the recipient directly."
	case SignalGeneric:
		return fmt.Sprintf("Drop generic phrasing (%s) and say something only this company would recognize.", strings.Join(s.GenericMatches, ", "))
	default:
		if s.WordCount < minWords {
			return fmt.Sprintf("Expand to 4-6 sentences; the draft has only %d words.", s.WordCount)
		}
		return fmt.Sprintf("Tighten to under %d words; the draft has %d.", maxWords, s.WordCount)
	}
}
