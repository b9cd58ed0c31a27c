package search

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/trieloff/calibre-mcp/internal/locator"
	"github.com/trieloff/calibre-mcp/internal/model"
)

// searchContent is the full-text adapter: the index narrows the corpus to
// candidate books, the core finds the actual line matches by scanning each
// book's text export under the budget.
func (s *Service) searchContent(ctx context.Context, terms []string, budget model.Budget, fuzzy bool) []model.SearchMatch {
	if len(terms) == 0 {
		return nil
	}
	ids, err := s.index.Candidates(ctx, terms)
	if err != nil {
		log.Printf("full-text index query %v failed: %v", terms, err)
		return nil
	}
	return s.scanBooks(ctx, ids, terms, budget, fuzzy)
}

// searchHybrid narrows to the books matching the metadata filters, then
// content-scans exactly that set. The budget applies only to the scanning
// stage; the narrowing stage runs under the large internal metadata cap.
// Zero narrowed books short-circuits: hybrid never scans an unfiltered
// corpus.
func (s *Service) searchHybrid(ctx context.Context, filters, terms []string, budget model.Budget, fuzzy bool) []model.SearchMatch {
	expr := strings.Join(filters, " ")
	ids, err := s.catalog.Search(ctx, expr, s.opts.MetadataCap)
	if err != nil {
		log.Printf("hybrid narrowing %q failed: %v", expr, err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	return s.scanBooks(ctx, ids, terms, budget, fuzzy)
}

// scanBooks samples at most PerSourceCap candidate books in first-seen order
// and collects at most PerSourceCap matches per book, stopping once Limit
// matches are collected overall. Matches come out in book-then-line order;
// no relevance ranking happens anywhere.
func (s *Service) scanBooks(ctx context.Context, ids []int64, terms []string, budget model.Budget, fuzzy bool) []model.SearchMatch {
	if len(ids) > budget.PerSourceCap {
		ids = ids[:budget.PerSourceCap]
	}

	var matches []model.SearchMatch
	for _, id := range ids {
		if len(matches) >= budget.Limit {
			break
		}
		path, rec, err := s.texts.TextPath(ctx, id)
		if err != nil {
			// Books without a text export are simply not scannable, which
			// is a normal state of a mixed-format library.
			if !errors.Is(err, model.ErrNoTextFormat) && !errors.Is(err, model.ErrBookNotFound) {
				log.Printf("resolving text for book %d failed: %v", id, err)
			}
			continue
		}

		perBook := budget.PerSourceCap
		if remaining := budget.Limit - len(matches); remaining < perBook {
			perBook = remaining
		}
		lineMatches, err := scanFile(path, terms, perBook, fuzzy, s.opts.FuzzyThreshold)
		if err != nil {
			log.Printf("scanning %s failed: %v", path, err)
			continue
		}

		for _, lm := range lineMatches {
			start := lm.Line - s.opts.ContextRadius
			if start < 1 {
				start = 1
			}
			end := lm.Line + s.opts.ContextRadius
			matches = append(matches, model.SearchMatch{
				BookID:     id,
				Title:      rec.Title,
				Authors:    rec.Authors,
				Text:       lm.Text,
				Locator:    locator.Encode(rec.Authors, rec.Title, id, start, end),
				LineNumber: lm.Line,
			})
		}
	}
	return matches
}
