package company

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const summaryTextChars = 400

// pageData is everything pulled out of a company landing page.
type pageData struct {
	Title         string
	Description   string
	OGDescription string
	SiteName      string
	H1            []string
	H2            []string
	Nav           []string
	Text          string
	SchemaName    string
	Employees     string
}

// parseHTML extracts metadata, headings, link texts, a text snippet and
// JSON-LD organization details from an HTML document.
func parseHTML(body []byte) (*pageData, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	d := &pageData{}
	var text strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if d.Title == "" {
					d.Title = nodeText(n)
				}
				return
			case atom.Meta:
				d.applyMeta(n)
			case atom.H1:
				appendNonEmpty(&d.H1, nodeText(n))
			case atom.H2:
				appendNonEmpty(&d.H2, nodeText(n))
			case atom.A:
				if t := nodeText(n); len(t) >= 2 && len(t) <= 30 {
					d.Nav = append(d.Nav, t)
				}
			case atom.Script:
				if strings.EqualFold(attr(n, "type"), "application/ld+json") {
					d.applyJSONLD(nodeRawText(n))
				}
				return
			case atom.Style, atom.Noscript, atom.Template, atom.Svg:
				return
			}
		}
		if n.Type == html.TextNode && text.Len() < summaryTextChars*4 {
			if t := strings.TrimSpace(n.Data); t != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	d.Text = clipRunes(collapse(text.String()), summaryTextChars)
	return d, nil
}

func (d *pageData) applyMeta(n *html.Node) {
	content := collapse(attr(n, "content"))
	if content == "" {
		return
	}
	switch strings.ToLower(attr(n, "name")) {
	case "description":
		d.Description = content
	}
	switch strings.ToLower(attr(n, "property")) {
	case "og:description":
		d.OGDescription = content
	case "og:site_name":
		d.SiteName = content
	}
}

// applyJSONLD reads organization name and headcount from a JSON-LD block.
// Malformed blocks are ignored.
func (d *pageData) applyJSONLD(raw string) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return
	}
	var visit func(v any)
	visit = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				visit(item)
			}
		case map[string]any:
			if g, ok := t["@graph"]; ok {
				visit(g)
			}
			if !isOrganization(t["@type"]) {
				return
			}
			if name, ok := t["name"].(string); ok && d.SchemaName == "" {
				d.SchemaName = collapse(name)
			}
			if d.Employees == "" {
				d.Employees = employeeCount(t["numberOfEmployees"])
			}
		}
	}
	visit(v)
}

func isOrganization(t any) bool {
	check := func(s string) bool {
		return s == "Organization" || s == "Corporation" || s == "LocalBusiness" || strings.HasSuffix(s, "Organization")
	}
	switch v := t.(type) {
	case string:
		return check(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && check(s) {
				return true
			}
		}
	}
	return false
}

// employeeCount renders a schema.org numberOfEmployees value as a headcount
// string such as "42" or "11-50".
func employeeCount(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.Itoa(int(t))
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if val, ok := t["value"]; ok {
			return employeeCount(val)
		}
		lo, hasLo := t["minValue"].(float64)
		hi, hasHi := t["maxValue"].(float64)
		switch {
		case hasLo && hasHi:
			return strconv.Itoa(int(lo)) + "-" + strconv.Itoa(int(hi))
		case hasLo:
			return strconv.Itoa(int(lo)) + "+"
		case hasHi:
			return strconv.Itoa(int(hi))
		}
	}
	return ""
}

// parseMarkdown extracts headings and a text snippet from reader markdown.
func parseMarkdown(title, md string) *pageData {
	d := &pageData{Title: collapse(title)}
	var text []string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "## "):
			appendNonEmpty(&d.H2, stripMarkdown(line[3:]))
		case strings.HasPrefix(line, "# "):
			appendNonEmpty(&d.H1, stripMarkdown(line[2:]))
		case line != "":
			text = append(text, stripMarkdown(line))
		}
	}
	d.Text = clipRunes(collapse(strings.Join(text, " ")), summaryTextChars)
	return d
}

var markdownStripper = strings.NewReplacer("**", "", "__", "", "`", "", "#", "", "> ", "", "* ", "", "- ", "")

func stripMarkdown(s string) string {
	// Drop link targets: [text](url) -> text
	for {
		open := strings.Index(s, "](")
		if open < 0 {
			break
		}
		end := strings.Index(s[open:], ")")
		if end < 0 {
			break
		}
		s = s[:open] + s[open+end+1:]
	}
	s = strings.ReplaceAll(s, "[", "")
	s = strings.ReplaceAll(s, "!", "")
	return collapse(markdownStripper.Replace(s))
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(sb.String())
}

func nodeRawText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func appendNonEmpty(dst *[]string, s string) {
	if s != "" {
		*dst = append(*dst, s)
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
