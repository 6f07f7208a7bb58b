package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/ocr"
	"github.com/coldreach/coldreach/pkg/anthropic"
	"github.com/coldreach/coldreach/pkg/jina"
)

const maxSourceChars = 12000

// profileChrome is page furniture stripped from LinkedIn and GitHub reads.
const profileChrome = "header, footer, nav, aside"

const summarySystemPrompt = `You condense a software engineer's background into a profile used to personalize outreach emails.
Write 120-200 words of plain prose. Cover current role and seniority, core languages and systems, notable projects or open source work, and the kind of team they want to join.
Only state facts present in the sources. No headings, no bullet points.`

// LLMSummarizer reads the raw profile sources and condenses them with Claude.
type LLMSummarizer struct {
	extractor ocr.Extractor
	reader    jina.Client
	claude    anthropic.Client
	model     string
	maxTokens int64
}

// NewLLMSummarizer creates a SourceSummarizer backed by pdftotext, Jina
// Reader and Claude.
func NewLLMSummarizer(extractor ocr.Extractor, reader jina.Client, claude anthropic.Client, model string, maxTokens int64) *LLMSummarizer {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &LLMSummarizer{extractor: extractor, reader: reader, claude: claude, model: model, maxTokens: maxTokens}
}

// Summarize fetches every present source concurrently. Any source that is
// set but cannot be read fails the whole build with ErrSourceUnavailable.
func (s *LLMSummarizer) Summarize(ctx context.Context, sources model.ProfileSources) (string, error) {
	if len(sources.Provenance()) == 0 {
		return "", model.Classify(model.ErrSourceUnavailable, eris.New("profile: no sources provided"))
	}

	var resume, linkedin, github string
	g, gctx := errgroup.WithContext(ctx)
	if len(sources.Resume) > 0 {
		g.Go(func() error {
			text, err := ocr.DocumentText(gctx, s.extractor, sources.Resume)
			if err != nil {
				return model.Classify(model.ErrSourceUnavailable, eris.Wrap(err, "profile: resume"))
			}
			resume = text
			return nil
		})
	}
	if sources.LinkedInURL != "" {
		g.Go(func() error {
			text, err := s.read(gctx, sources.LinkedInURL)
			if err != nil {
				return model.Classify(model.ErrSourceUnavailable, eris.Wrap(err, "profile: linkedin"))
			}
			linkedin = text
			return nil
		})
	}
	if sources.GitHubURL != "" {
		g.Go(func() error {
			text, err := s.read(gctx, sources.GitHubURL)
			if err != nil {
				return model.Classify(model.ErrSourceUnavailable, eris.Wrap(err, "profile: github"))
			}
			github = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	resp, err := s.claude.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    anthropic.CachedSystem(summarySystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: buildSourcePrompt(resume, linkedin, github)}},
	})
	if err != nil {
		return "", eris.Wrap(err, "profile: summarize")
	}
	resp.Usage.LogCost(s.model, "profile")

	summary := resp.Text()
	if summary == "" {
		return "", eris.New("profile: empty summary")
	}
	return summary, nil
}

func (s *LLMSummarizer) read(ctx context.Context, url string) (string, error) {
	resp, err := s.reader.Read(ctx, url, jina.RemoveSelector(profileChrome))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Data.Content)
	if text == "" {
		return "", eris.Errorf("no readable content at %s", url)
	}
	return text, nil
}

func buildSourcePrompt(resume, linkedin, github string) string {
	var sections []string
	add := func(name, text string) {
		if text == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("## %s\n%s", name, clip(text, maxSourceChars)))
	}
	add("Resume", resume)
	add("LinkedIn profile", linkedin)
	add("GitHub profile", github)
	return strings.Join(sections, "\n\n")
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
