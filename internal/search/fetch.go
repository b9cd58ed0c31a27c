package search

import (
	"context"
	"math"

	"github.com/trieloff/calibre-mcp/internal/excerpt"
	"github.com/trieloff/calibre-mcp/internal/locator"
	"github.com/trieloff/calibre-mcp/internal/model"
)

// Fetch resolves a decoded locator back into literal text. A locator with a
// line range yields exactly those lines; one without yields the opening
// paragraphs of the book. Resolution is by book id only.
func (s *Service) Fetch(ctx context.Context, loc locator.Location) (string, model.BookRecord, error) {
	path, rec, err := s.texts.TextPath(ctx, loc.BookID)
	if err != nil {
		return "", rec, err
	}
	if loc.HasRange() {
		text, err := excerpt.LineRange(path, loc.Start, loc.End)
		return text, rec, err
	}
	text, err := excerpt.LeadingParagraphs(path, s.opts.FetchParagraphs)
	return text, rec, err
}

// MatchContext expands a content match into the whole paragraphs around its
// matched line. Unlike the fixed line window in the match's locator, the
// expansion follows paragraph boundaries, so it never cuts mid-sentence.
func (s *Service) MatchContext(ctx context.Context, m model.SearchMatch) (string, error) {
	if m.LineNumber < 1 {
		return m.Text, nil
	}
	path, _, err := s.texts.TextPath(ctx, m.BookID)
	if err != nil {
		return "", err
	}
	return excerpt.ParagraphWindow(path, m.LineNumber, excerpt.DefaultRadius)
}

// ExcerptRequest is the legacy get-excerpt call: keyword windows out of a
// single book, paginated.
type ExcerptRequest struct {
	BookID       int64
	Keyword      string
	ContextLines int
	MaxResults   int
	Page         int
}

// ExcerptResult carries one page of keyword windows. Total counts all
// matching lines in the book, not just this page.
type ExcerptResult struct {
	Book    model.BookRecord
	Matches []model.SearchMatch
	Total   int
	Page    int
}

// Excerpt scans one book for a keyword and returns context windows around
// the requested page of matches. Without a keyword it returns the opening
// paragraphs instead.
func (s *Service) Excerpt(ctx context.Context, req ExcerptRequest) (ExcerptResult, error) {
	if req.ContextLines <= 0 {
		req.ContextLines = 10
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	path, rec, err := s.texts.TextPath(ctx, req.BookID)
	if err != nil {
		return ExcerptResult{}, err
	}
	out := ExcerptResult{Book: rec, Page: req.Page, Matches: []model.SearchMatch{}}

	if req.Keyword == "" {
		text, err := excerpt.LeadingParagraphs(path, s.opts.FetchParagraphs)
		if err != nil {
			return ExcerptResult{}, err
		}
		out.Matches = append(out.Matches, model.SearchMatch{
			BookID:  req.BookID,
			Title:   rec.Title,
			Authors: rec.Authors,
			Text:    text,
			Locator: locator.Encode(rec.Authors, rec.Title, req.BookID, 0, 0),
		})
		out.Total = 1
		return out, nil
	}

	all, err := scanFile(path, []string{req.Keyword}, math.MaxInt, false, 0)
	if err != nil {
		return ExcerptResult{}, err
	}
	out.Total = len(all)

	offset := (req.Page - 1) * req.MaxResults
	if offset >= len(all) {
		return out, nil
	}
	page := all[offset:]
	if len(page) > req.MaxResults {
		page = page[:req.MaxResults]
	}

	for _, lm := range page {
		start := lm.Line - req.ContextLines
		if start < 1 {
			start = 1
		}
		end := lm.Line + req.ContextLines
		text, err := excerpt.LineRange(path, start, end)
		if err != nil {
			return ExcerptResult{}, err
		}
		out.Matches = append(out.Matches, model.SearchMatch{
			BookID:     req.BookID,
			Title:      rec.Title,
			Authors:    rec.Authors,
			Text:       text,
			Locator:    locator.Encode(rec.Authors, rec.Title, req.BookID, start, end),
			LineNumber: lm.Line,
		})
	}
	return out, nil
}
