package anthropic

import "go.uber.org/zap"

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// rate is USD per million tokens. Cache writes and reads are billed as
// multiples of the input rate.
type rate struct {
	input, output         float64
	cacheWrite, cacheRead float64
}

var modelRates = map[string]rate{
	"claude-haiku-4-5-20251001":  {input: 1.00, output: 5.00, cacheWrite: 1.25, cacheRead: 0.1},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00, cacheWrite: 1.25, cacheRead: 0.1},
	"claude-opus-4-6":            {input: 15.00, output: 75.00, cacheWrite: 1.25, cacheRead: 0.1},
}

// EstimateCost returns the USD cost of u on model, or 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	r, ok := modelRates[model]
	if !ok {
		return 0
	}
	const mtok = 1e6
	return float64(u.InputTokens)/mtok*r.input +
		float64(u.OutputTokens)/mtok*r.output +
		float64(u.CacheCreationInputTokens)/mtok*r.input*r.cacheWrite +
		float64(u.CacheReadInputTokens)/mtok*r.input*r.cacheRead
}

// LogCost logs usage and estimated cost for one pipeline phase
// ("draft", "profile").
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
