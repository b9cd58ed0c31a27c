package model

import "context"

// CatalogQuerier is the structured-metadata store for the collection. An
// implementation may shell out to an external tool or read an embedded
// database; the core only depends on this contract.
type CatalogQuerier interface {
	// Search evaluates a catalog query expression and returns matching book
	// ids, at most limit of them. An empty result is not an error.
	Search(ctx context.Context, expr string, limit int) ([]int64, error)
	// Records returns full records for exactly the given ids, in the
	// backend's order. Unknown ids are silently skipped.
	Records(ctx context.Context, ids []int64) ([]BookRecord, error)
}

// FullTextIndex generates candidate book ids for free-text terms from a
// pre-built index. Line-level matches are found by the core itself, so the
// index only needs to narrow the corpus.
type FullTextIndex interface {
	Candidates(ctx context.Context, terms []string) ([]int64, error)
}

// TextSource resolves a book id to its plain-text export on disk, along with
// the catalog record the resolution was based on. Returns ErrNoTextFormat
// when the book carries no text export and ErrBookNotFound when the id is
// unknown.
type TextSource interface {
	TextPath(ctx context.Context, id int64) (string, BookRecord, error)
}
