package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database query, following cursors. The
// next page is requested while the current one is being collected.
func QueryAll(ctx context.Context, c Client, dbID string, query *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	base := notionapi.DatabaseQueryRequest{}
	if query != nil {
		base.Filter, base.Sorts, base.PageSize = query.Filter, query.Sorts, query.PageSize
	}

	type page struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	fetch := func(cursor notionapi.Cursor) <-chan page {
		ch := make(chan page, 1)
		req := base
		req.StartCursor = cursor
		go func() {
			resp, err := c.QueryDatabase(ctx, dbID, &req)
			ch <- page{resp, err}
		}()
		return ch
	}

	var all []notionapi.Page
	next := fetch("")
	for {
		p := <-next
		if p.err != nil {
			return nil, eris.Wrap(p.err, "notion: query all")
		}
		if p.resp.HasMore {
			next = fetch(p.resp.NextCursor)
		}
		all = append(all, p.resp.Results...)
		if !p.resp.HasMore {
			return all, nil
		}
	}
}

// QueryByStatus returns the pages whose status property equals status.
func QueryByStatus(ctx context.Context, c Client, dbID, property, status string) ([]notionapi.Page, error) {
	pages, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			Status:   &notionapi.StatusFilterCondition{Equals: status},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query %s = %s", property, status)
	}
	return pages, nil
}

// FindByText returns the pages whose rich text property equals value.
func FindByText(ctx context.Context, c Client, dbID, property, value string) ([]notionapi.Page, error) {
	pages, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{Equals: value},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find %s = %s", property, value)
	}
	return pages, nil
}

// Text builds a single rich text run.
func Text(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// PlainText joins the plain text of rich text runs.
func PlainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			b.WriteString(r.PlainText)
		} else if r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}
