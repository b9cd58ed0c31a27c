// Package library resolves book ids to their on-disk plain-text exports.
package library

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/trieloff/calibre-mcp/internal/model"
)

// Resolver implements model.TextSource on top of a catalog. Resolution goes
// through the book id only; the author/title in a locator never influence
// which file is read.
type Resolver struct {
	catalog model.CatalogQuerier
}

func NewResolver(catalog model.CatalogQuerier) *Resolver {
	return &Resolver{catalog: catalog}
}

// TextPath returns the path of the book's TXT export along with its catalog
// record.
func (r *Resolver) TextPath(ctx context.Context, id int64) (string, model.BookRecord, error) {
	records, err := r.catalog.Records(ctx, []int64{id})
	if err != nil {
		return "", model.BookRecord{}, err
	}
	if len(records) == 0 {
		return "", model.BookRecord{}, fmt.Errorf("book %d: %w", id, model.ErrBookNotFound)
	}
	rec := records[0]
	for _, path := range rec.Formats {
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			return path, rec, nil
		}
	}
	return "", rec, fmt.Errorf("book %d (%s): %w", id, rec.Title, model.ErrNoTextFormat)
}
