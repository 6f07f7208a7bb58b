package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// LoadRequests reads batch requests from a .csv or .xlsx file. The first row
// is a header naming at least "user_id" and "company_url"; optional
// "linkedin_url", "github_url" and "resume_path" columns fill the profile
// sources.
func LoadRequests(path string) ([]Request, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, eris.Errorf("pipeline: unsupported request file %s (want .csv or .xlsx)", path)
	}
	if err != nil {
		return nil, err
	}
	return parseRequestRows(rows, filepath.Dir(path))
}

func parseRequestRows(rows [][]string, baseDir string) ([]Request, error) {
	if len(rows) == 0 {
		return nil, eris.New("pipeline: request file is empty")
	}
	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"user_id", "company_url"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("pipeline: request file has no %q column", required)
		}
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Request
	for n, row := range rows[1:] {
		req := Request{UserID: get(row, "user_id"), CompanyURL: get(row, "company_url")}
		if req.UserID == "" && req.CompanyURL == "" {
			continue
		}
		if req.UserID == "" || req.CompanyURL == "" {
			return nil, eris.Errorf("pipeline: request row %d needs user_id and company_url", n+2)
		}
		req.Sources.LinkedInURL = get(row, "linkedin_url")
		req.Sources.GitHubURL = get(row, "github_url")
		if p := get(row, "resume_path"); p != "" {
			if !filepath.IsAbs(p) {
				p = filepath.Join(baseDir, p)
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, eris.Wrapf(err, "pipeline: read resume for row %d", n+2)
			}
			req.Sources.Resume = data
		}
		out = append(out, req)
	}
	return out, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read")
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
