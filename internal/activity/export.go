package activity

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/coldreach/coldreach/internal/model"
)

var entryHeader = []string{
	"created_at", "session_id", "user_id", "company_url", "kind", "seq", "score",
	"scorer_version", "generator_model", "accepted", "outcome", "contact_name",
	"contact_role", "error_kind", "error",
}

var groupHeader = []string{
	"key", "sessions", "sent", "exhausted", "errored", "cancelled", "attempts", "avg_score", "send_rate",
}

// ExportXLSX writes entries to an "activity" sheet and, when groups is
// non-empty, their aggregates to a "summary" sheet.
func ExportXLSX(w io.Writer, entries []model.LogEntry, groups []Group) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("activity")
	if err != nil {
		return eris.Wrap(err, "xlsx: add activity sheet")
	}
	addStringRow(sheet, entryHeader)
	for _, e := range entries {
		row := sheet.AddRow()
		row.AddCell().SetString(e.CreatedAt.UTC().Format(time.RFC3339))
		row.AddCell().SetString(e.SessionID)
		row.AddCell().SetString(e.UserID)
		row.AddCell().SetString(e.CompanyURL)
		row.AddCell().SetString(string(e.Kind))
		row.AddCell().SetInt(e.Seq)
		row.AddCell().SetFloat(e.Score)
		row.AddCell().SetString(e.ScorerVersion)
		row.AddCell().SetString(e.GeneratorModel)
		row.AddCell().SetBool(e.Accepted)
		row.AddCell().SetString(string(e.Outcome))
		row.AddCell().SetString(e.ContactName)
		row.AddCell().SetString(e.ContactRole)
		row.AddCell().SetString(e.ErrorKind)
		row.AddCell().SetString(e.Error)
	}

	if len(groups) > 0 {
		summary, err := f.AddSheet("summary")
		if err != nil {
			return eris.Wrap(err, "xlsx: add summary sheet")
		}
		addStringRow(summary, groupHeader)
		for _, g := range groups {
			row := summary.AddRow()
			row.AddCell().SetString(g.Key)
			row.AddCell().SetInt(g.Sessions)
			row.AddCell().SetInt(g.Sent)
			row.AddCell().SetInt(g.Exhausted)
			row.AddCell().SetInt(g.Errored)
			row.AddCell().SetInt(g.Cancelled)
			row.AddCell().SetInt(g.Attempts)
			row.AddCell().SetFloat(g.AvgScore)
			row.AddCell().SetFloat(g.SendRate)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write")
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
