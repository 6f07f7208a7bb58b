package draft

import (
	"fmt"
	"strings"

	"github.com/coldreach/coldreach/internal/company"
)

const systemPrompt = `You write clean, natural, personalized B2B cold outreach emails from a software engineer to a company they would like to work with.

Answer in exactly this format:
Subject: <a short, specific subject line>

<the email body>

The body has no greeting line, no signature and no subject line.`

// BuildPrompt renders the user prompt section by section. Empty fields are
// left out.
func BuildPrompt(req Request) string {
	var sections []string
	add := func(s string) { sections = append(sections, s) }

	add("Write a short, personalized outreach email to this company about software engineering opportunities.")

	if c := req.Company; c != nil {
		add("Company URL: " + c.URL)
		if c.Blocked {
			add("The website returned a blocking or anti-bot page. Infer the company's focus from the metadata below.")
		} else {
			add("The website loaded successfully; use the extracted content below.")
		}
		if c.Name != "" {
			add("Company Name: " + c.Name)
		}
		if c.Title != "" {
			add("Page Title: " + c.Title)
		}
		if c.Summary != "" {
			add("Company Description: " + c.Summary)
		}
		if len(c.Headlines) > 0 {
			add("Headlines:\n" + bulleted(c.Headlines))
		}
		if len(c.Keywords) > 0 {
			kw := c.Keywords
			if len(kw) > company.MaxKeywords {
				kw = kw[:company.MaxKeywords]
			}
			add("High-value Keywords: " + strings.Join(kw, ", "))
		}
	}

	if req.ProfileSummary != "" {
		add("About the sender:\n" + req.ProfileSummary)
	}

	if ct := req.Contact; ct != nil {
		line := "Recipient: " + ct.Name
		if ct.Title != "" {
			line += ", " + ct.Title
		}
		add(line + "\nAddress the recipient by first name and connect the email to their role.")
	}

	add("The email body should:\n" +
		"- Be 4-6 sentences (under 120 words)\n" +
		"- Start directly with a relevant insight about the company\n" +
		"- Connect one concrete skill or project of the sender to the company's work\n" +
		"- Sound personal and natural, not generic\n" +
		"- Avoid buzzwords and hype\n" +
		"- End with a soft CTA asking for a quick chat")

	if req.Feedback != "" {
		add(fmt.Sprintf("Revision notes (attempt %d): a previous draft was not specific enough. %s", req.Attempt, req.Feedback))
	}

	return strings.Join(sections, "\n\n")
}

func bulleted(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}
