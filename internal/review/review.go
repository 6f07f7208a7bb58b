// Package review queues exhausted outreach sessions in a Notion database so a
// human can edit and send the best draft by hand.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/pkg/notion"
)

// Review database properties.
const (
	PropTitle     = "Name"
	PropSession   = "Session ID"
	PropCompany   = "Company"
	PropContact   = "Contact"
	PropEmail     = "Email"
	PropScore     = "Best Score"
	PropAttempts  = "Attempts"
	PropStatus    = "Status"
	PropSubmitted = "Submitted"
)

// Review statuses.
const (
	StatusPending = "Needs Review"
	StatusSent    = "Sent Manually"
	StatusDiscard = "Discarded"
)

// maxBlockText is Notion's limit on a single rich text run.
const maxBlockText = 2000

// Item is one queued session as stored in Notion.
type Item struct {
	PageID    string
	SessionID string
	Company   string
	Contact   string
	Email     string
	Score     float64
	Attempts  int
	Status    string
}

// Queue is a Notion-backed review queue.
type Queue struct {
	client notion.Client
	dbID   string
	now    func() time.Time
}

// NewQueue creates a Queue writing to the given database.
func NewQueue(client notion.Client, dbID string) (*Queue, error) {
	if dbID == "" {
		return nil, eris.New("review: database id is required")
	}
	return &Queue{client: client, dbID: dbID, now: time.Now}, nil
}

// Submit adds sess with its best draft to the queue. A session already in
// the queue is left alone.
func (q *Queue) Submit(ctx context.Context, sess *model.OutreachSession) error {
	best := sess.BestAttempt()
	if best == nil {
		return eris.Errorf("review: session %s has no draft", sess.ID)
	}

	existing, err := notion.FindByText(ctx, q.client, q.dbID, PropSession, sess.ID)
	if err != nil {
		return eris.Wrapf(err, "review: look up session %s", sess.ID)
	}
	if len(existing) > 0 {
		zap.L().Debug("review: session already queued", zap.String("session_id", sess.ID))
		return nil
	}

	submitted := notionapi.Date(q.now())
	props := notionapi.Properties{
		PropTitle:    notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: notion.Text(title(sess))},
		PropSession:  notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: notion.Text(sess.ID)},
		PropCompany:  notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: sess.CompanyURL},
		PropScore:    notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: best.Score},
		PropAttempts: notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(len(sess.Attempts))},
		PropStatus:   notionapi.StatusProperty{Status: notionapi.Status{Name: StatusPending}},
		PropSubmitted: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &submitted},
		},
	}
	if c := sess.Contact; c != nil {
		props[PropContact] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: notion.Text(strings.TrimSpace(c.Name + ", " + c.Title)),
		}
		props[PropEmail] = notionapi.EmailProperty{Type: notionapi.PropertyTypeEmail, Email: c.Email}
	}

	page, err := q.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(q.dbID)},
		Properties: props,
		Children:   draftBlocks(best),
	})
	if err != nil {
		return eris.Wrapf(err, "review: queue session %s", sess.ID)
	}
	zap.L().Info("review: session queued",
		zap.String("session_id", sess.ID),
		zap.String("page_id", string(page.ID)),
		zap.Float64("best_score", best.Score),
	)
	return nil
}

// Pending lists sessions still waiting for review.
func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	pages, err := notion.QueryByStatus(ctx, q.client, q.dbID, PropStatus, StatusPending)
	if err != nil {
		return nil, eris.Wrap(err, "review: list pending")
	}
	items := make([]Item, 0, len(pages))
	for _, p := range pages {
		items = append(items, parseItem(p))
	}
	return items, nil
}

// Resolve sets the review status of the page queued for sessionID.
func (q *Queue) Resolve(ctx context.Context, sessionID, status string) error {
	switch status {
	case StatusPending, StatusSent, StatusDiscard:
	default:
		return eris.Errorf("review: unknown status %q", status)
	}
	pages, err := notion.FindByText(ctx, q.client, q.dbID, PropSession, sessionID)
	if err != nil {
		return eris.Wrapf(err, "review: look up session %s", sessionID)
	}
	if len(pages) == 0 {
		return eris.Errorf("review: session %s is not queued", sessionID)
	}
	for _, p := range pages {
		if _, err := q.client.UpdatePage(ctx, string(p.ID), &notionapi.PageUpdateRequest{
			Properties: notionapi.Properties{
				PropStatus: notionapi.StatusProperty{Status: notionapi.Status{Name: status}},
			},
		}); err != nil {
			return eris.Wrapf(err, "review: resolve session %s", sessionID)
		}
	}
	return nil
}

func title(sess *model.OutreachSession) string {
	if sess.Contact != nil && sess.Contact.Name != "" {
		return fmt.Sprintf("%s at %s", sess.Contact.Name, sess.CompanyURL)
	}
	return sess.CompanyURL
}

func draftBlocks(a *model.DraftAttempt) []notionapi.Block {
	blocks := []notionapi.Block{
		heading(fmt.Sprintf("Draft %d (score %.2f)", a.Seq, a.Score)),
		paragraph("Subject: " + a.Subject),
	}
	for _, para := range strings.Split(a.Text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			blocks = append(blocks, paragraph(para))
		}
	}
	if a.Feedback != "" {
		blocks = append(blocks, heading("Last revision notes"), paragraph(a.Feedback))
	}
	return blocks
}

func heading(s string) notionapi.Block {
	return &notionapi.Heading3Block{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading3},
		Heading3:   notionapi.Heading{RichText: notion.Text(clip(s))},
	}
}

func paragraph(s string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
		Paragraph:  notionapi.Paragraph{RichText: notion.Text(clip(s))},
	}
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxBlockText {
		return s
	}
	return string(r[:maxBlockText])
}

func parseItem(p notionapi.Page) Item {
	it := Item{PageID: string(p.ID)}
	if prop, ok := p.Properties[PropSession].(*notionapi.RichTextProperty); ok {
		it.SessionID = notion.PlainText(prop.RichText)
	}
	if prop, ok := p.Properties[PropCompany].(*notionapi.URLProperty); ok {
		it.Company = prop.URL
	}
	if prop, ok := p.Properties[PropContact].(*notionapi.RichTextProperty); ok {
		it.Contact = notion.PlainText(prop.RichText)
	}
	if prop, ok := p.Properties[PropEmail].(*notionapi.EmailProperty); ok {
		it.Email = prop.Email
	}
	if prop, ok := p.Properties[PropScore].(*notionapi.NumberProperty); ok {
		it.Score = prop.Number
	}
	if prop, ok := p.Properties[PropAttempts].(*notionapi.NumberProperty); ok {
		it.Attempts = int(prop.Number)
	}
	if prop, ok := p.Properties[PropStatus].(*notionapi.StatusProperty); ok {
		it.Status = prop.Status.Name
	}
	return it
}
