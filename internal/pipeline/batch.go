package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coldreach/coldreach/internal/model"
)

// BatchItem pairs a request with its result. Err is set when the run itself
// could not complete, as opposed to a rejected session.
type BatchItem struct {
	Request Request
	Result  *Result
	Err     error
}

// RunBatch runs requests concurrently, at most limit at a time, and returns
// one item per request in input order. One failing session never stops the
// others.
func (p *Pipeline) RunBatch(ctx context.Context, reqs []Request, limit int) []BatchItem {
	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range reqs {
		items[i].Request = req
		g.Go(func() error {
			res, err := p.Run(gctx, req)
			items[i].Result, items[i].Err = res, err
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[model.Outcome]int)
	for _, it := range items {
		if it.Result != nil {
			counts[it.Result.Session.Outcome]++
		}
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("sessions", len(reqs)),
		zap.Int("sent", counts[model.OutcomeSent]),
		zap.Int("exhausted", counts[model.OutcomeExhausted]),
		zap.Int("errored", counts[model.OutcomeError]),
		zap.Int("cancelled", counts[model.OutcomeCancelled]),
	)
	return items
}
