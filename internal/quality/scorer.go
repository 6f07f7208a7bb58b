// Package quality scores how personalized a draft is and decides whether it
// clears the send threshold.
package quality

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/model"
)

// Score is a personalization score stamped with the model that produced it.
type Score struct {
	Value        float64
	ModelVersion string
}

// Scorer rates a draft in [0,1]. It must be deterministic for a fixed
// ModelVersion. Failures are classified model.ErrScoring.
type Scorer interface {
	Score(ctx context.Context, text string, sc ScoreContext) (Score, error)
}

// HeuristicVersion identifies the built-in linear scorer.
const HeuristicVersion = "heuristic-v1"

// Feature weights of the heuristic scorer. They sum to 1.
var heuristicWeights = struct {
	Keywords, Profile, Contact, Generic, Length float64
}{0.35, 0.20, 0.15, 0.15, 0.15}

// Heuristic is a deterministic linear model over draft signals.
type Heuristic struct{}

// NewHeuristic creates the heuristic-v1 scorer.
func NewHeuristic() *Heuristic { return &Heuristic{} }

func (Heuristic) Score(ctx context.Context, text string, sc ScoreContext) (Score, error) {
	if err := ctx.Err(); err != nil {
		return Score{}, model.Classify(model.ErrScoring, eris.Wrap(err, "quality: score"))
	}
	if text == "" {
		return Score{}, model.Classify(model.ErrScoring, eris.New("quality: empty draft"))
	}

	s := Analyze(text, sc)
	w := heuristicWeights
	v := w.Keywords*s.Keywords +
		w.Profile*s.Profile +
		w.Contact*s.Contact +
		w.Generic*s.Generic +
		w.Length*s.Length

	return Score{Value: math.Round(v*1e4) / 1e4, ModelVersion: HeuristicVersion}, nil
}
