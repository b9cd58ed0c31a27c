package search

import (
	"context"
	"html"
	"log"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/trieloff/calibre-mcp/internal/locator"
	"github.com/trieloff/calibre-mcp/internal/model"
)

// stripMarkup removes all markup from catalog comments. Calibre stores
// descriptions as HTML.
var stripMarkup = bluemonday.StrictPolicy()

// searchMetadata is the metadata adapter: id query, record query, projection
// into matches. Backend failure is not a search failure; it degrades to an
// empty list.
func (s *Service) searchMetadata(ctx context.Context, expr string, limit int) []model.SearchMatch {
	ids, err := s.catalog.Search(ctx, expr, limit)
	if err != nil {
		log.Printf("catalog search %q failed: %v", expr, err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	records, err := s.catalog.Records(ctx, ids)
	if err != nil {
		log.Printf("catalog records for %q failed: %v", expr, err)
		return nil
	}

	matches := make([]model.SearchMatch, 0, len(records))
	for _, rec := range records {
		matches = append(matches, model.SearchMatch{
			BookID:  rec.ID,
			Title:   rec.Title,
			Authors: rec.Authors,
			Text:    s.shapeDescription(rec.Description),
			Locator: locator.Encode(rec.Authors, rec.Title, rec.ID, 0, 0),
		})
	}
	return matches
}

// shapeDescription turns raw catalog comments into a display blurb: markup
// stripped, first two newline-delimited segments, truncated with an ellipsis
// marker.
func (s *Service) shapeDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := html.UnescapeString(stripMarkup.Sanitize(raw))

	var segments []string
	for _, seg := range strings.Split(text, "\n") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
		if len(segments) == 2 {
			break
		}
	}
	out := strings.Join(segments, " ")
	if runes := []rune(out); len(runes) > s.opts.DescriptionLength {
		out = strings.TrimSpace(string(runes[:s.opts.DescriptionLength])) + "…"
	}
	return out
}
