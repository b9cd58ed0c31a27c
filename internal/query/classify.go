// Package query splits raw query strings into metadata filters and free-text
// content terms.
package query

import (
	"strings"

	"github.com/trieloff/calibre-mcp/internal/model"
)

// filterFields is the fixed set of recognized metadata field names. A token
// is a filter iff it starts with one of these immediately followed by a
// colon; the value after the colon is not validated here.
var filterFields = map[string]struct{}{
	"author":      {},
	"title":       {},
	"tag":         {},
	"series":      {},
	"publisher":   {},
	"format":      {},
	"date":        {},
	"pubdate":     {},
	"rating":      {},
	"comments":    {},
	"identifiers": {},
}

// Classify tokenizes raw on whitespace and partitions the tokens into
// metadata filters and content terms, preserving relative order and the
// original casing. It is a pure function of its input.
func Classify(raw string) model.ClassifiedQuery {
	var out model.ClassifiedQuery
	for _, tok := range strings.Fields(raw) {
		if isFilter(tok) {
			out.Filters = append(out.Filters, tok)
		} else {
			out.Terms = append(out.Terms, tok)
		}
	}
	return out
}

func isFilter(tok string) bool {
	name, _, ok := strings.Cut(tok, ":")
	if !ok {
		return false
	}
	_, known := filterFields[strings.ToLower(name)]
	return known
}
