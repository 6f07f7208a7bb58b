package review

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/pkg/notion"
)

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func exhaustedSession() *model.OutreachSession {
	return &model.OutreachSession{
		ID:         "s-1",
		CompanyURL: "https://clearcutar.com",
		Contact:    &model.Contact{Name: "Lisa Chen", Title: "CTO", Email: "lisa@clearcutar.com"},
		Outcome:    model.OutcomeExhausted,
		Attempts: []model.DraftAttempt{
			{Seq: 1, Subject: "Hi", Text: "first", Score: 0.4},
			{Seq: 2, Subject: "Hi", Text: "second", Score: 0.55, Feedback: "be specific"},
			{Seq: 3, Subject: "Hello Lisa", Text: "Para one.\n\nPara two.", Score: 0.58, Feedback: "mention imaging"},
		},
	}
}

func sessionFilter(id string) any {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == PropSession && pf.RichText != nil && pf.RichText.Equals == id
	})
}

func TestNewQueue_RequiresDatabase(t *testing.T) {
	_, err := NewQueue(new(mockNotion), "")
	assert.Error(t, err)
}

func TestSubmit_CreatesPageWithBestDraft(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()
	q, err := NewQueue(mc, "db-review")
	require.NoError(t, err)
	q.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	mc.On("QueryDatabase", ctx, "db-review", sessionFilter("s-1")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		score, _ := req.Properties[PropScore].(notionapi.NumberProperty)
		email, _ := req.Properties[PropEmail].(notionapi.EmailProperty)
		status, _ := req.Properties[PropStatus].(notionapi.StatusProperty)
		return req.Parent.DatabaseID == "db-review" &&
			score.Number == 0.58 &&
			email.Email == "lisa@clearcutar.com" &&
			status.Status.Name == StatusPending &&
			// heading, subject, two paragraphs, notes heading, notes
			len(req.Children) == 6
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	require.NoError(t, q.Submit(ctx, exhaustedSession()))
	mc.AssertExpectations(t)
}

func TestSubmit_SkipsQueuedSession(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()
	q, _ := NewQueue(mc, "db-review")

	mc.On("QueryDatabase", ctx, "db-review", sessionFilter("s-1")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-1"}}}, nil).Once()

	require.NoError(t, q.Submit(ctx, exhaustedSession()))
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
}

func TestSubmit_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no draft", func(t *testing.T) {
		q, _ := NewQueue(new(mockNotion), "db-review")
		err := q.Submit(ctx, &model.OutreachSession{ID: "empty"})
		assert.Error(t, err)
	})

	t.Run("create fails", func(t *testing.T) {
		mc := new(mockNotion)
		q, _ := NewQueue(mc, "db-review")
		mc.On("QueryDatabase", ctx, "db-review", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil)
		mc.On("CreatePage", ctx, mock.Anything).Return(nil, assert.AnError)

		err := q.Submit(ctx, exhaustedSession())
		assert.ErrorContains(t, err, "review: queue session s-1")
	})
}

func TestPending_ParsesPages(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()
	q, _ := NewQueue(mc, "db-review")

	page := notionapi.Page{
		ID: "page-1",
		Properties: notionapi.Properties{
			PropSession:  &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: "s-1"}}},
			PropCompany:  &notionapi.URLProperty{URL: "https://clearcutar.com"},
			PropContact:  &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: "Lisa Chen, CTO"}}},
			PropEmail:    &notionapi.EmailProperty{Email: "lisa@clearcutar.com"},
			PropScore:    &notionapi.NumberProperty{Number: 0.58},
			PropAttempts: &notionapi.NumberProperty{Number: 3},
			PropStatus:   &notionapi.StatusProperty{Status: notionapi.Status{Name: StatusPending}},
		},
	}
	mc.On("QueryDatabase", ctx, "db-review", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Status != nil && pf.Status.Equals == StatusPending
	})).Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{page}}, nil).Once()

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Item{
		PageID:    "page-1",
		SessionID: "s-1",
		Company:   "https://clearcutar.com",
		Contact:   "Lisa Chen, CTO",
		Email:     "lisa@clearcutar.com",
		Score:     0.58,
		Attempts:  3,
		Status:    StatusPending,
	}, items[0])
}

func TestResolve(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()
	q, _ := NewQueue(mc, "db-review")

	assert.Error(t, q.Resolve(ctx, "s-1", "Whatever"))

	mc.On("QueryDatabase", ctx, "db-review", sessionFilter("s-1")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-1"}}}, nil).Once()
	mc.On("UpdatePage", ctx, "page-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		st, _ := req.Properties[PropStatus].(notionapi.StatusProperty)
		return st.Status.Name == StatusSent
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()
	require.NoError(t, q.Resolve(ctx, "s-1", StatusSent))

	mc.On("QueryDatabase", ctx, "db-review", sessionFilter("s-2")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	assert.ErrorContains(t, q.Resolve(ctx, "s-2", StatusDiscard), "not queued")
	mc.AssertExpectations(t)
}

func TestClip(t *testing.T) {
	long := make([]rune, maxBlockText+10)
	for i := range long {
		long[i] = 'é'
	}
	assert.Len(t, []rune(clip(string(long))), maxBlockText)
	assert.Equal(t, "short", clip("short"))
}

var _ notion.Client = (*mockNotion)(nil)
