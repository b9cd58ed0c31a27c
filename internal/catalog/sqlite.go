package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/trieloff/calibre-mcp/internal/model"
)

// SQLiteCatalog backs CatalogQuerier and FullTextIndex by reading the
// library's metadata.db and full-text-search.db directly, with no calibre
// installation required. Both databases are opened read-only.
type SQLiteCatalog struct {
	library string

	mu    sync.Mutex
	meta  *sql.DB
	fts   *sql.DB
	ftsOK bool
}

// NewSQLiteCatalog returns a catalog over the given calibre library
// directory.
func NewSQLiteCatalog(library string) *SQLiteCatalog {
	return &SQLiteCatalog{library: library}
}

func (s *SQLiteCatalog) metaDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta != nil {
		return s.meta, nil
	}
	path := filepath.Join(s.library, "metadata.db")
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, &model.BackendError{Code: "CATALOG_UNAVAILABLE", Message: "cannot open " + path, Cause: err}
	}
	s.meta = db
	return db, nil
}

func (s *SQLiteCatalog) ftsDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fts != nil {
		return s.fts, nil
	}
	path := filepath.Join(s.library, "full-text-search.db")
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, &model.BackendError{Code: "INDEX_UNAVAILABLE", Message: "cannot open " + path, Cause: err}
	}
	s.fts = db
	return db, nil
}

// Close releases both database handles.
func (s *SQLiteCatalog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	if s.meta != nil {
		first = s.meta.Close()
		s.meta = nil
	}
	if s.fts != nil {
		if err := s.fts.Close(); err != nil && first == nil {
			first = err
		}
		s.fts = nil
	}
	return first
}

// Search translates a whitespace-separated calibre-style expression into SQL
// over metadata.db. field:value tokens constrain the named field; bare
// tokens match title or author. All tokens are AND-combined.
func (s *SQLiteCatalog) Search(ctx context.Context, expr string, limit int) ([]int64, error) {
	db, err := s.metaDB()
	if err != nil {
		return nil, err
	}

	var conds []string
	var args []any
	for _, tok := range splitExpr(expr) {
		cond, condArgs := tokenCondition(tok)
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	q := "SELECT b.id FROM books b"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY b.id"
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &model.BackendError{Code: "CATALOG_QUERY_FAILED", Message: "metadata.db query failed", Cause: err}
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// tokenCondition maps one query token to a SQL condition over books b.
func tokenCondition(tok string) (string, []any) {
	field, value, ok := strings.Cut(tok, ":")
	if !ok {
		like := contains(strings.Trim(tok, `"`))
		return `(b.title LIKE ? OR EXISTS (
			SELECT 1 FROM books_authors_link l JOIN authors a ON a.id = l.author
			WHERE l.book = b.id AND a.name LIKE ?))`, []any{like, like}
	}
	value = strings.Trim(value, `"`)

	switch strings.ToLower(field) {
	case "author":
		return `EXISTS (SELECT 1 FROM books_authors_link l JOIN authors a ON a.id = l.author
			WHERE l.book = b.id AND a.name LIKE ?)`, []any{contains(value)}
	case "title":
		return "b.title LIKE ?", []any{contains(value)}
	case "tag":
		return `EXISTS (SELECT 1 FROM books_tags_link l JOIN tags t ON t.id = l.tag
			WHERE l.book = b.id AND t.name LIKE ?)`, []any{contains(value)}
	case "series":
		return `EXISTS (SELECT 1 FROM books_series_link l JOIN series se ON se.id = l.series
			WHERE l.book = b.id AND se.name LIKE ?)`, []any{contains(value)}
	case "publisher":
		return `EXISTS (SELECT 1 FROM books_publishers_link l JOIN publishers p ON p.id = l.publisher
			WHERE l.book = b.id AND p.name LIKE ?)`, []any{contains(value)}
	case "format":
		return "EXISTS (SELECT 1 FROM data d WHERE d.book = b.id AND d.format = ?)",
			[]any{strings.ToUpper(value)}
	case "date":
		return "b.timestamp LIKE ?", []any{value + "%"}
	case "pubdate":
		return "b.pubdate LIKE ?", []any{value + "%"}
	case "rating":
		// calibre stores ratings in half stars
		if n, err := strconv.Atoi(value); err == nil {
			return `EXISTS (SELECT 1 FROM books_ratings_link l JOIN ratings r ON r.id = l.rating
				WHERE l.book = b.id AND r.rating = ?)`, []any{n * 2}
		}
		return "1=0", nil
	case "comments":
		return "EXISTS (SELECT 1 FROM comments c WHERE c.book = b.id AND c.text LIKE ?)",
			[]any{contains(value)}
	case "identifiers":
		idType, idVal, hasType := strings.Cut(value, "=")
		if hasType {
			return `EXISTS (SELECT 1 FROM identifiers i WHERE i.book = b.id
				AND i.type = ? AND i.val LIKE ?)`, []any{idType, contains(idVal)}
		}
		return "EXISTS (SELECT 1 FROM identifiers i WHERE i.book = b.id AND i.val LIKE ?)",
			[]any{contains(value)}
	default:
		// unrecognized field, treat the whole token as free text
		like := contains(tok)
		return `(b.title LIKE ? OR EXISTS (
			SELECT 1 FROM books_authors_link l JOIN authors a ON a.id = l.author
			WHERE l.book = b.id AND a.name LIKE ?))`, []any{like, like}
	}
}

func contains(v string) string { return "%" + v + "%" }

// splitExpr splits a query expression on whitespace while keeping
// double-quoted spans intact, so author:"Isaac Asimov" stays one token.
func splitExpr(expr string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	for _, r := range expr {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// Records loads full book records, resolving format entries to absolute file
// paths under the library directory.
func (s *SQLiteCatalog) Records(ctx context.Context, ids []int64) ([]model.BookRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := s.metaDB()
	if err != nil {
		return nil, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	q := fmt.Sprintf(`SELECT b.id, b.title, b.path, b.pubdate, b.timestamp,
		COALESCE((SELECT GROUP_CONCAT(a.name, ' & ')
			FROM books_authors_link l JOIN authors a ON a.id = l.author
			WHERE l.book = b.id), ''),
		COALESCE((SELECT se.name FROM books_series_link l JOIN series se ON se.id = l.series
			WHERE l.book = b.id), ''),
		COALESCE((SELECT GROUP_CONCAT(t.name, ',')
			FROM books_tags_link l JOIN tags t ON t.id = l.tag
			WHERE l.book = b.id), ''),
		COALESCE((SELECT p.name FROM books_publishers_link l JOIN publishers p ON p.id = l.publisher
			WHERE l.book = b.id), ''),
		COALESCE((SELECT c.text FROM comments c WHERE c.book = b.id), '')
		FROM books b WHERE b.id IN (%s) ORDER BY b.id`, placeholders)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &model.BackendError{Code: "CATALOG_QUERY_FAILED", Message: "metadata.db query failed", Cause: err}
	}
	defer func() { _ = rows.Close() }()

	var records []model.BookRecord
	var bookPaths []string
	for rows.Next() {
		var rec model.BookRecord
		var path, pubdate, timestamp, tags string
		if err := rows.Scan(&rec.ID, &rec.Title, &path, &pubdate, &timestamp,
			&rec.Authors, &rec.Series, &tags, &rec.Publisher, &rec.Description); err != nil {
			return nil, err
		}
		rec.PublishedDate = pubdate
		if tags != "" {
			rec.Tags = strings.Split(tags, ",")
		}
		records = append(records, rec)
		bookPaths = append(bookPaths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		formats, err := s.formatPaths(ctx, db, records[i].ID, bookPaths[i])
		if err != nil {
			return nil, err
		}
		records[i].Formats = formats
	}
	return records, nil
}

func (s *SQLiteCatalog) formatPaths(ctx context.Context, db *sql.DB, bookID int64, bookPath string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT d.format, d.name FROM data d WHERE d.book = ? ORDER BY d.id", bookID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var formats []string
	for rows.Next() {
		var format, name string
		if err := rows.Scan(&format, &name); err != nil {
			return nil, err
		}
		formats = append(formats,
			filepath.Join(s.library, filepath.FromSlash(bookPath), name+"."+strings.ToLower(format)))
	}
	return formats, rows.Err()
}

// Candidates queries the library's FTS database. Terms are OR-combined into
// one MATCH expression; ids come back in rowid order, deduplicated.
func (s *SQLiteCatalog) Candidates(ctx context.Context, terms []string) ([]int64, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	db, err := s.ftsDB()
	if err != nil {
		return nil, err
	}

	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	match := strings.Join(quoted, " OR ")

	rows, err := db.QueryContext(ctx, `
		SELECT t.book FROM books_fts f
		JOIN books_text t ON t.id = f.rowid
		WHERE books_fts MATCH ?
		ORDER BY f.rowid`, match)
	if err != nil {
		return nil, &model.BackendError{Code: "INDEX_QUERY_FAILED", Message: "full-text-search.db query failed", Cause: err}
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[int64]struct{})
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
