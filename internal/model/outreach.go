package model

import "time"

// CompanySummary is the structured view of a target company's website.
type CompanySummary struct {
	URL           string    `json:"url"`
	Domain        string    `json:"domain"`
	Name          string    `json:"name,omitempty"`
	Title         string    `json:"title,omitempty"`
	Summary       string    `json:"summary"`
	Keywords      []string  `json:"keywords"`
	Headlines     []string  `json:"headlines,omitempty"`
	Blocked       bool      `json:"blocked"`
	EmployeeCount string    `json:"employee_count,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Contact is a candidate recipient at a company.
type Contact struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Email       string  `json:"email"`
	Confidence  float64 `json:"confidence"`
	CompanyURL  string  `json:"company_url"`
	LinkedInURL string  `json:"linkedin_url,omitempty"`
	Source      string  `json:"source,omitempty"`
}

// Outcome is the state of an outreach session. Everything except
// OutcomePending and OutcomeAccepted is terminal.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeAccepted  Outcome = "accepted"
	OutcomeSent      Outcome = "sent"
	OutcomeExhausted Outcome = "rejected-exhausted"
	OutcomeError     Outcome = "rejected-error"
	OutcomeCancelled Outcome = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSent, OutcomeExhausted, OutcomeError, OutcomeCancelled:
		return true
	default:
		return false
	}
}

// DraftAttempt is one generate-then-score cycle. Never modified after it is
// appended to a session.
type DraftAttempt struct {
	Seq            int       `json:"seq"`
	Subject        string    `json:"subject,omitempty"`
	Text           string    `json:"text"`
	Score          float64   `json:"score"`
	GeneratorModel string    `json:"generator_model,omitempty"`
	ScorerVersion  string    `json:"scorer_version,omitempty"`
	Feedback       string    `json:"feedback,omitempty"`
	Accepted       bool      `json:"accepted"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Scored reports whether the attempt reached the quality gate.
func (a DraftAttempt) Scored() bool {
	return a.Error == "" && a.ScorerVersion != ""
}

// OutreachSession is one end-to-end attempt for a (user, company) pair.
type OutreachSession struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	CompanyURL  string         `json:"company_url"`
	Contact     *Contact       `json:"contact,omitempty"`
	Attempts    []DraftAttempt `json:"attempts"`
	Outcome     Outcome        `json:"outcome"`
	FinalScore  float64        `json:"final_score"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	ReceiptID   string         `json:"receipt_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// BestAttempt returns the highest-scoring scored attempt; on ties the later
// attempt wins. Returns nil when no attempt was scored.
func (s *OutreachSession) BestAttempt() *DraftAttempt {
	var best *DraftAttempt
	for i := range s.Attempts {
		a := &s.Attempts[i]
		if !a.Scored() {
			continue
		}
		if best == nil || a.Score >= best.Score {
			best = a
		}
	}
	return best
}

// AcceptedAttempt returns the attempt that passed the gate, if any.
func (s *OutreachSession) AcceptedAttempt() *DraftAttempt {
	for i := range s.Attempts {
		if s.Attempts[i].Accepted {
			return &s.Attempts[i]
		}
	}
	return nil
}

// LogKind distinguishes per-attempt rows from per-session summary rows.
type LogKind string

const (
	LogKindAttempt LogKind = "attempt"
	LogKindSession LogKind = "session"
)

// LogEntry is one append-only activity log row.
type LogEntry struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	CompanyURL     string    `json:"company_url"`
	Kind           LogKind   `json:"kind"`
	Seq            int       `json:"seq"`
	Score          float64   `json:"score"`
	ScorerVersion  string    `json:"scorer_version,omitempty"`
	GeneratorModel string    `json:"generator_model,omitempty"`
	Accepted       bool      `json:"accepted"`
	Outcome        Outcome   `json:"outcome,omitempty"`
	ContactName    string    `json:"contact_name,omitempty"`
	ContactRole    string    `json:"contact_role,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
