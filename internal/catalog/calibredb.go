// Package catalog provides the two backings for the catalog-query and
// full-text-index capabilities: the calibredb command line tool and a direct
// reader for the library's SQLite databases.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/trieloff/calibre-mcp/internal/model"
)

// DefaultTimeout bounds a single calibredb invocation.
const DefaultTimeout = 20 * time.Second

// recordFields is the field list requested from calibredb list.
const recordFields = "title,authors,series,tags,publisher,pubdate,formats,comments"

// CalibreDB backs CatalogQuerier and FullTextIndex by invoking the calibredb
// tool. Every call runs under a deadline; a timed-out or failed invocation
// surfaces as a BackendError, which the search adapters degrade to an empty
// result.
type CalibreDB struct {
	Binary  string
	Library string
	Timeout time.Duration
}

// NewCalibreDB returns a calibredb-backed catalog for the given library
// directory. An empty binary falls back to "calibredb" on PATH.
func NewCalibreDB(binary, library string, timeout time.Duration) *CalibreDB {
	if binary == "" {
		binary = "calibredb"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CalibreDB{Binary: binary, Library: library, Timeout: timeout}
}

func (c *CalibreDB) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	full := append([]string{"--with-library", c.Library}, args...)
	cmd := exec.CommandContext(ctx, c.Binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if ctx.Err() != nil {
			return nil, &model.BackendError{
				Code:      "CATALOG_TIMEOUT",
				Message:   fmt.Sprintf("calibredb %s did not finish within %s", args[0], c.Timeout),
				Retryable: true,
				Cause:     ctx.Err(),
			}
		}
		return nil, &model.BackendError{
			Code:      "CATALOG_UNAVAILABLE",
			Message:   fmt.Sprintf("calibredb %s: %s", args[0], msg),
			Retryable: true,
			Cause:     err,
		}
	}
	return stdout.Bytes(), nil
}

// Search evaluates a calibre search expression and returns matching ids.
func (c *CalibreDB) Search(ctx context.Context, expr string, limit int) ([]int64, error) {
	args := []string{"list", "--for-machine", "--fields", "id"}
	if limit > 0 {
		args = append(args, "--limit", strconv.Itoa(limit))
	}
	if strings.TrimSpace(expr) != "" {
		args = append(args, "--search", expr)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, &model.BackendError{Code: "CATALOG_BAD_OUTPUT", Message: "calibredb list returned malformed JSON", Cause: err}
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Records fetches full records for the given ids via an id-expression query.
func (c *CalibreDB) Records(ctx context.Context, ids []int64) ([]model.BookRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	terms := make([]string, 0, len(ids))
	for _, id := range ids {
		terms = append(terms, "id:"+strconv.FormatInt(id, 10))
	}
	out, err := c.run(ctx,
		"list", "--for-machine",
		"--fields", recordFields,
		"--search", strings.Join(terms, " or "),
	)
	if err != nil {
		return nil, err
	}

	var rows []calibreRow
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, &model.BackendError{Code: "CATALOG_BAD_OUTPUT", Message: "calibredb list returned malformed JSON", Cause: err}
	}
	records := make([]model.BookRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toRecord())
	}
	return records, nil
}

// Candidates queries the library's full-text index for candidate book ids.
// Terms are OR-combined; ids are returned in first-seen order.
func (c *CalibreDB) Candidates(ctx context.Context, terms []string) ([]int64, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	out, err := c.run(ctx, "fts_search", "--output-format", "json", strings.Join(terms, " OR "))
	if err != nil {
		return nil, err
	}

	var rows []struct {
		BookID int64 `json:"book_id"`
	}
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, &model.BackendError{Code: "INDEX_BAD_OUTPUT", Message: "calibredb fts_search returned malformed JSON", Cause: err}
	}

	seen := make(map[int64]struct{}, len(rows))
	var ids []int64
	for _, r := range rows {
		if _, dup := seen[r.BookID]; dup {
			continue
		}
		seen[r.BookID] = struct{}{}
		ids = append(ids, r.BookID)
	}
	return ids, nil
}

// calibreRow mirrors one entry of calibredb list --for-machine output.
type calibreRow struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Authors   string   `json:"authors"`
	Series    string   `json:"series"`
	Tags      []string `json:"tags"`
	Publisher string   `json:"publisher"`
	PubDate   string   `json:"pubdate"`
	Formats   []string `json:"formats"`
	Comments  string   `json:"comments"`
}

func (r calibreRow) toRecord() model.BookRecord {
	return model.BookRecord{
		ID:            r.ID,
		Title:         r.Title,
		Authors:       r.Authors,
		Series:        r.Series,
		Tags:          r.Tags,
		Publisher:     r.Publisher,
		PublishedDate: r.PubDate,
		Formats:       r.Formats,
		Description:   r.Comments,
	}
}
