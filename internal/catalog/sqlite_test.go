package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"
)

// newFixtureLibrary builds a minimal calibre library on disk: metadata.db
// with two books and a full-text-search.db indexing one of them.
func newFixtureLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	meta, err := sql.Open("sqlite", filepath.Join(dir, "metadata.db"))
	if err != nil {
		t.Fatalf("open metadata.db: %v", err)
	}
	defer func() { _ = meta.Close() }()

	schema := `
CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT, sort TEXT,
  timestamp TEXT DEFAULT '', pubdate TEXT DEFAULT '', path TEXT DEFAULT '');
CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE books_authors_link (id INTEGER PRIMARY KEY, book INTEGER, author INTEGER);
CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE books_tags_link (id INTEGER PRIMARY KEY, book INTEGER, tag INTEGER);
CREATE TABLE series (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE books_series_link (id INTEGER PRIMARY KEY, book INTEGER, series INTEGER);
CREATE TABLE publishers (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE books_publishers_link (id INTEGER PRIMARY KEY, book INTEGER, publisher INTEGER);
CREATE TABLE ratings (id INTEGER PRIMARY KEY, rating INTEGER);
CREATE TABLE books_ratings_link (id INTEGER PRIMARY KEY, book INTEGER, rating INTEGER);
CREATE TABLE identifiers (id INTEGER PRIMARY KEY, book INTEGER, type TEXT, val TEXT);
CREATE TABLE comments (id INTEGER PRIMARY KEY, book INTEGER, text TEXT);
CREATE TABLE data (id INTEGER PRIMARY KEY, book INTEGER, format TEXT, name TEXT);
`
	if _, err := meta.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	seed := `
INSERT INTO books (id, title, pubdate, path) VALUES
  (1, 'I, Robot', '1950-12-02', 'Isaac Asimov/I, Robot (1)'),
  (2, 'The Dispossessed', '1974-05-01', 'Ursula K. Le Guin/The Dispossessed (2)');
INSERT INTO authors (id, name) VALUES (1, 'Isaac Asimov'), (2, 'Ursula K. Le Guin');
INSERT INTO books_authors_link (book, author) VALUES (1, 1), (2, 2);
INSERT INTO tags (id, name) VALUES (1, 'Science Fiction'), (2, 'Robots');
INSERT INTO books_tags_link (book, tag) VALUES (1, 1), (1, 2), (2, 1);
INSERT INTO series (id, name) VALUES (1, 'Robot');
INSERT INTO books_series_link (book, series) VALUES (1, 1);
INSERT INTO publishers (id, name) VALUES (1, 'Gnome Press');
INSERT INTO books_publishers_link (book, publisher) VALUES (1, 1);
INSERT INTO comments (book, text) VALUES (1, '<p>Nine stories about robots.</p>');
INSERT INTO data (book, format, name) VALUES
  (1, 'TXT', 'I, Robot - Isaac Asimov'),
  (1, 'EPUB', 'I, Robot - Isaac Asimov'),
  (2, 'EPUB', 'The Dispossessed - Ursula K. Le Guin');
`
	if _, err := meta.Exec(seed); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	fts, err := sql.Open("sqlite", filepath.Join(dir, "full-text-search.db"))
	if err != nil {
		t.Fatalf("open full-text-search.db: %v", err)
	}
	defer func() { _ = fts.Close() }()

	ftsSchema := `
CREATE TABLE books_text (id INTEGER PRIMARY KEY, book INTEGER, format TEXT, searchable_text TEXT);
CREATE VIRTUAL TABLE books_fts USING fts5(searchable_text, content = 'books_text');
INSERT INTO books_text (id, book, format, searchable_text) VALUES
  (1, 1, 'TXT', 'robots obey the three laws of robotics'),
  (2, 2, 'EPUB', 'an ambiguous utopia on the moon anarres');
INSERT INTO books_fts(books_fts) VALUES ('rebuild');
`
	if _, err := fts.Exec(ftsSchema); err != nil {
		t.Fatalf("seed fts: %v", err)
	}

	return dir
}

func TestSQLiteCatalog_Search(t *testing.T) {
	dir := newFixtureLibrary(t)
	cat := NewSQLiteCatalog(dir)
	defer func() { _ = cat.Close() }()
	ctx := context.Background()

	cases := []struct {
		name string
		expr string
		want []int64
	}{
		{"author filter", "author:Asimov", []int64{1}},
		{"quoted author filter", `author:"Ursula K. Le Guin"`, []int64{2}},
		{"title filter", "title:Dispossessed", []int64{2}},
		{"tag filter", "tag:Robots", []int64{1}},
		{"shared tag", "tag:Science", []int64{1, 2}},
		{"series filter", "series:Robot", []int64{1}},
		{"publisher filter", "publisher:Gnome", []int64{1}},
		{"format filter", "format:txt", []int64{1}},
		{"pubdate filter", "pubdate:1974", []int64{2}},
		{"comments filter", "comments:robots", []int64{1}},
		{"bare term matches title", "Dispossessed", []int64{2}},
		{"bare term matches author", "Asimov", []int64{1}},
		{"conjunction", "author:Asimov tag:Robots", []int64{1}},
		{"no match", "author:Tolkien", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cat.Search(ctx, tc.expr, 10)
			if err != nil {
				t.Fatalf("Search(%q) failed: %v", tc.expr, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Search(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestSQLiteCatalog_SearchLimit(t *testing.T) {
	dir := newFixtureLibrary(t)
	cat := NewSQLiteCatalog(dir)
	defer func() { _ = cat.Close() }()

	got, err := cat.Search(context.Background(), "tag:Science", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("limit not applied: %v", got)
	}
}

func TestSQLiteCatalog_Records(t *testing.T) {
	dir := newFixtureLibrary(t)
	cat := NewSQLiteCatalog(dir)
	defer func() { _ = cat.Close() }()

	records, err := cat.Records(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Title != "I, Robot" || rec.Authors != "Isaac Asimov" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Series != "Robot" || rec.Publisher != "Gnome Press" {
		t.Errorf("series/publisher = %q/%q", rec.Series, rec.Publisher)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"Science Fiction", "Robots"}) {
		t.Errorf("tags = %v", rec.Tags)
	}
	if rec.Description == "" {
		t.Error("description missing")
	}

	wantTxt := filepath.Join(dir, "Isaac Asimov/I, Robot (1)", "I, Robot - Isaac Asimov.txt")
	found := false
	for _, f := range rec.Formats {
		if f == wantTxt {
			found = true
		}
	}
	if !found {
		t.Errorf("formats %v missing %q", rec.Formats, wantTxt)
	}
}

func TestSQLiteCatalog_RecordsSkipsUnknownIDs(t *testing.T) {
	dir := newFixtureLibrary(t)
	cat := NewSQLiteCatalog(dir)
	defer func() { _ = cat.Close() }()

	records, err := cat.Records(context.Background(), []int64{2, 999})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != 2 {
		t.Errorf("records = %+v", records)
	}
}

func TestSQLiteCatalog_Candidates(t *testing.T) {
	dir := newFixtureLibrary(t)
	cat := NewSQLiteCatalog(dir)
	defer func() { _ = cat.Close() }()
	ctx := context.Background()

	got, err := cat.Candidates(ctx, []string{"robots"})
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("candidates = %v, want [1]", got)
	}

	// terms are OR-combined alternatives
	got, err = cat.Candidates(ctx, []string{"robots", "anarres"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("candidates = %v, want [1 2]", got)
	}

	got, err = cat.Candidates(ctx, nil)
	if err != nil || got != nil {
		t.Errorf("empty terms = %v, %v", got, err)
	}
}

func TestSQLiteCatalog_MissingLibrary(t *testing.T) {
	cat := NewSQLiteCatalog(filepath.Join(t.TempDir(), "nope"))
	defer func() { _ = cat.Close() }()

	// sql.Open is lazy; the failure must surface on first use, as an error
	// rather than a panic.
	if _, err := cat.Search(context.Background(), "author:x", 5); err == nil {
		t.Error("expected an error for a missing library")
	}
}
