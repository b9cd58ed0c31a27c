package model

import "math"

// DefaultLimit is the result limit used when a caller does not specify one.
const DefaultLimit = 50

// BookRecord is one catalog entry as reported by the backing store. The core
// never creates or mutates records; they arrive fully shaped from the
// catalog backend.
type BookRecord struct {
	ID            int64
	Title         string
	Authors       string
	Series        string
	Tags          []string
	Publisher     string
	PublishedDate string
	// Formats lists the available export file paths in catalog order.
	Formats     []string
	Description string
}

// SearchKind tags which search path the classifier resolved for a query.
type SearchKind string

const (
	SearchMetadataOnly SearchKind = "metadata"
	SearchContentOnly  SearchKind = "content"
	SearchHybrid       SearchKind = "hybrid"
)

// ClassifiedQuery is the split form of a raw query string. Both slices
// preserve the relative order and the original casing of the input tokens.
type ClassifiedQuery struct {
	// Filters holds the recognized field:value tokens.
	Filters []string
	// Terms holds everything else.
	Terms []string
}

// Kind resolves the search path for the classified query. A query with no
// tokens at all still resolves to the content path; callers are expected to
// reject empty queries before searching.
func (q ClassifiedQuery) Kind() SearchKind {
	switch {
	case len(q.Filters) > 0 && len(q.Terms) > 0:
		return SearchHybrid
	case len(q.Filters) > 0:
		return SearchMetadataOnly
	default:
		return SearchContentOnly
	}
}

// SearchMatch is one result row. For content matches Text carries the
// literal matched line and LineNumber is set; for metadata matches Text
// carries the shaped description and LineNumber is zero.
type SearchMatch struct {
	BookID     int64
	Title      string
	Authors    string
	Text       string
	Locator    string
	LineNumber int
}

// Budget caps how much content scanning a single search may do. PerSourceCap
// bounds both the number of books sampled and the matches drawn from each
// book, so the total never exceeds PerSourceCap squared; Limit is a second,
// global cap across all books.
type Budget struct {
	Limit        int
	PerSourceCap int
}

// NewBudget derives the per-source cap from the requested limit via a
// square-root split. Non-positive limits fall back to DefaultLimit.
func NewBudget(limit int) Budget {
	if limit <= 0 {
		limit = DefaultLimit
	}
	cap := int(math.Round(math.Sqrt(float64(limit))))
	if cap < 1 {
		cap = 1
	}
	return Budget{Limit: limit, PerSourceCap: cap}
}
