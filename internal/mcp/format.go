package mcp

import (
	"fmt"
	"strings"

	"github.com/trieloff/calibre-mcp/internal/locator"
	"github.com/trieloff/calibre-mcp/internal/model"
	"github.com/trieloff/calibre-mcp/internal/search"
)

// matchRecord is the structured twin of one bullet in the text view.
type matchRecord struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// formatResult renders matches twice: a bulleted text block for the model to
// read, and structured records a client can route follow-up calls with. Both
// views are built from the same slice so they cannot drift.
func formatResult(res search.Result) toolCallResult {
	if len(res.Matches) == 0 {
		return toolCallResult{
			Content: []toolContentItem{{Type: "text", Text: emptyMessage(res.Kind)}},
			StructuredContent: map[string]interface{}{
				"results": []matchRecord{},
			},
		}
	}

	var b strings.Builder
	records := make([]matchRecord, 0, len(res.Matches))
	for _, m := range res.Matches {
		fmt.Fprintf(&b, "- %s\n", matchLine(m))
		records = append(records, matchRecord{
			ID:    m.BookID,
			Title: m.Title,
			Text:  m.Text,
			URL:   m.Locator,
		})
	}
	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: strings.TrimRight(b.String(), "\n")}},
		StructuredContent: map[string]interface{}{"results": records},
	}
}

func matchLine(m model.SearchMatch) string {
	head := m.Title
	if m.Authors != "" {
		head = fmt.Sprintf("%s by %s", m.Title, m.Authors)
	}
	if m.Text == "" {
		return fmt.Sprintf("%s (%s)", head, m.Locator)
	}
	return fmt.Sprintf("%s (%s): %s", head, m.Locator, m.Text)
}

func emptyMessage(kind model.SearchKind) string {
	switch kind {
	case model.SearchMetadataOnly:
		return "No books in the library match those filters."
	case model.SearchContentOnly:
		return "No passages in the library contain those terms."
	default:
		return "No books match the filters, or none of the matching books contain those terms."
	}
}

func formatFetch(url string, rec model.BookRecord, loc locator.Location, text string) toolCallResult {
	title := rec.Title
	if rec.Authors != "" {
		title = fmt.Sprintf("%s by %s", rec.Title, rec.Authors)
	}
	header := title
	if loc.HasRange() {
		header = fmt.Sprintf("%s, lines %d-%d", title, loc.Start, loc.End)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: header + "\n\n" + text}},
		StructuredContent: map[string]interface{}{
			"id":    loc.BookID,
			"title": rec.Title,
			"text":  text,
			"url":   url,
		},
	}
}

func formatExcerpt(res search.ExcerptResult) toolCallResult {
	out := formatResult(search.Result{Kind: model.SearchContentOnly, Matches: res.Matches})
	sc, _ := out.StructuredContent.(map[string]interface{})
	if sc == nil {
		sc = map[string]interface{}{}
	}
	sc["total"] = res.Total
	sc["page"] = res.Page
	out.StructuredContent = sc
	if len(res.Matches) == 0 && res.Total > 0 {
		out.Content = []toolContentItem{{
			Type: "text",
			Text: fmt.Sprintf("Page %d is past the end; the book has %d matching lines.", res.Page, res.Total),
		}}
	}
	return out
}
