// Package search implements the query orchestrator: classification, the
// metadata and full-text adapters, and the budgeted hybrid merger.
package search

import (
	"context"
	"strings"

	"github.com/trieloff/calibre-mcp/internal/model"
	"github.com/trieloff/calibre-mcp/internal/query"
)

// Options tune the scanning and shaping behavior of a Service.
type Options struct {
	// ContextRadius is the number of lines on each side of a matched line
	// covered by the locator minted for it.
	ContextRadius int
	// MetadataCap bounds the metadata narrowing stage of a hybrid search.
	// It is intentionally large; the search budget applies only to content
	// scanning.
	MetadataCap int
	// DescriptionLength is the display truncation for shaped descriptions.
	DescriptionLength int
	// FetchParagraphs is how many opening paragraphs a rangeless fetch
	// returns.
	FetchParagraphs int
	// FuzzyThreshold is the per-token Jaro-Winkler similarity floor for the
	// fuzzy fallback scan.
	FuzzyThreshold float32
}

func (o Options) withDefaults() Options {
	if o.ContextRadius <= 0 {
		o.ContextRadius = 5
	}
	if o.MetadataCap <= 0 {
		o.MetadataCap = 1000
	}
	if o.DescriptionLength <= 0 {
		o.DescriptionLength = 300
	}
	if o.FetchParagraphs <= 0 {
		o.FetchParagraphs = 5
	}
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = 0.9
	}
	return o
}

// Service runs searches over a catalog, a full-text index and the text
// exports they point at. All request state is local to a call; a Service is
// safe to reuse across requests.
type Service struct {
	catalog model.CatalogQuerier
	index   model.FullTextIndex
	texts   model.TextSource
	opts    Options
}

func New(catalog model.CatalogQuerier, index model.FullTextIndex, texts model.TextSource, opts Options) *Service {
	return &Service{
		catalog: catalog,
		index:   index,
		texts:   texts,
		opts:    opts.withDefaults(),
	}
}

// Result is a finished search: the resolved path tag plus the bounded match
// list, possibly empty. Searches never fail; backend trouble degrades to an
// empty result.
type Result struct {
	Kind    model.SearchKind
	Matches []model.SearchMatch
}

// Search classifies the raw query, routes it down the metadata, content or
// hybrid path under the given budget, and optionally retries a zero-result
// content scan with fuzzy term matching.
func (s *Service) Search(ctx context.Context, raw string, limit int, fuzzy bool) Result {
	classified := query.Classify(raw)
	budget := model.NewBudget(limit)

	res := Result{Kind: classified.Kind()}
	switch res.Kind {
	case model.SearchMetadataOnly:
		res.Matches = s.searchMetadata(ctx, strings.Join(classified.Filters, " "), budget.Limit)
	case model.SearchContentOnly:
		res.Matches = s.searchContent(ctx, classified.Terms, budget, false)
		if fuzzy && len(res.Matches) == 0 {
			res.Matches = s.searchContent(ctx, classified.Terms, budget, true)
		}
	case model.SearchHybrid:
		res.Matches = s.searchHybrid(ctx, classified.Filters, classified.Terms, budget, false)
		if fuzzy && len(res.Matches) == 0 {
			res.Matches = s.searchHybrid(ctx, classified.Filters, classified.Terms, budget, true)
		}
	}
	if res.Matches == nil {
		res.Matches = []model.SearchMatch{}
	}
	return res
}

// Metadata runs a metadata-only search over a prebuilt catalog expression.
// The legacy author/title tools use this to keep multi-word values as one
// quoted filter instead of reclassifying them.
func (s *Service) Metadata(ctx context.Context, expr string, limit int) []model.SearchMatch {
	budget := model.NewBudget(limit)
	matches := s.searchMetadata(ctx, expr, budget.Limit)
	if matches == nil {
		matches = []model.SearchMatch{}
	}
	return matches
}
