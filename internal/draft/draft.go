// Package draft generates outreach email drafts.
package draft

import (
	"context"

	"github.com/coldreach/coldreach/internal/model"
)

// Request is everything a draft is written from. Feedback is empty on the
// first attempt and required on every retry.
type Request struct {
	ProfileSummary string
	Company        *model.CompanySummary
	Contact        *model.Contact
	Feedback       string
	// Attempt is the 1-based attempt number.
	Attempt int
}

// Draft is a generated email.
type Draft struct {
	Subject string
	Body    string
	Model   string
}

// Generator produces a draft. Failures are classified model.ErrGeneration.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Draft, error)
}
