package draft

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/pkg/anthropic"
)

// ClaudeGenerator writes drafts with a Claude model.
type ClaudeGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeGenerator creates a Generator backed by Claude.
func NewClaudeGenerator(client anthropic.Client, model string, maxTokens int64) *ClaudeGenerator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ClaudeGenerator{client: client, model: model, maxTokens: maxTokens}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req Request) (*Draft, error) {
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    anthropic.CachedSystem(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: BuildPrompt(req)}},
	})
	if err != nil {
		return nil, model.Classify(model.ErrGeneration, eris.Wrap(err, "draft: create message"))
	}
	resp.Usage.LogCost(g.model, "draft")

	subject, body := ParseResponse(resp.Text())
	if body == "" {
		return nil, model.Classify(model.ErrGeneration, eris.New("draft: empty body"))
	}

	modelID := resp.Model
	if modelID == "" {
		modelID = g.model
	}
	return &Draft{Subject: subject, Body: body, Model: modelID}, nil
}
