package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trieloff/calibre-mcp/internal/locator"
	"github.com/trieloff/calibre-mcp/internal/model"
)

type fakeCatalog struct {
	ids       []int64
	err       error
	records   map[int64]model.BookRecord
	lastExpr  string
	lastLimit int
}

func (f *fakeCatalog) Search(_ context.Context, expr string, limit int) ([]int64, error) {
	f.lastExpr = expr
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func (f *fakeCatalog) Records(_ context.Context, ids []int64) ([]model.BookRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.BookRecord
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeIndex struct {
	ids []int64
	err error
}

func (f *fakeIndex) Candidates(context.Context, []string) ([]int64, error) {
	return f.ids, f.err
}

type fakeTexts struct {
	paths map[int64]string
	recs  map[int64]model.BookRecord
}

func (f *fakeTexts) TextPath(_ context.Context, id int64) (string, model.BookRecord, error) {
	rec, ok := f.recs[id]
	if !ok {
		return "", model.BookRecord{}, model.ErrBookNotFound
	}
	path, ok := f.paths[id]
	if !ok {
		return "", rec, model.ErrNoTextFormat
	}
	return path, rec, nil
}

// writeBook creates a text export with the phrase "machine learning" on one
// known line.
func writeBook(t *testing.T, dir string, id int64, phraseLine int, totalLines int) string {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= totalLines; i++ {
		if i == phraseLine {
			fmt.Fprintf(&b, "all about Machine Learning here\n")
		} else {
			fmt.Fprintf(&b, "filler line %d\n", i)
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("book%d.txt", id))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write book: %v", err)
	}
	return path
}

func testService(t *testing.T, catalog *fakeCatalog, index *fakeIndex, texts *fakeTexts) *Service {
	t.Helper()
	return New(catalog, index, texts, Options{})
}

func TestSearch_ContentOnePerBook(t *testing.T) {
	dir := t.TempDir()
	texts := &fakeTexts{paths: map[int64]string{}, recs: map[int64]model.BookRecord{}}
	for _, id := range []int64{1, 2, 3} {
		texts.paths[id] = writeBook(t, dir, id, 20, 40)
		texts.recs[id] = model.BookRecord{ID: id, Title: fmt.Sprintf("Book %d", id), Authors: "Author"}
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{ids: []int64{1, 2, 3}}, texts)

	res := svc.Search(context.Background(), "machine learning", 9, false)
	if res.Kind != model.SearchContentOnly {
		t.Fatalf("kind = %v, want content", res.Kind)
	}
	if len(res.Matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(res.Matches))
	}
	for i, m := range res.Matches {
		if m.BookID != int64(i+1) {
			t.Errorf("match %d from book %d, want book order preserved", i, m.BookID)
		}
		if m.LineNumber != 20 {
			t.Errorf("match %d line = %d, want 20", i, m.LineNumber)
		}
		loc, err := locator.Decode(m.Locator)
		if err != nil {
			t.Fatalf("locator %q does not decode: %v", m.Locator, err)
		}
		if loc.Start != 15 || loc.End != 25 {
			t.Errorf("context window = %d:%d, want 15:25", loc.Start, loc.End)
		}
	}
}

func TestSearch_BudgetCapsBooksAndMatches(t *testing.T) {
	dir := t.TempDir()
	texts := &fakeTexts{paths: map[int64]string{}, recs: map[int64]model.BookRecord{}}
	var ids []int64
	for id := int64(1); id <= 6; id++ {
		// every line matches, so each book could produce 30 matches
		var b strings.Builder
		for i := 0; i < 30; i++ {
			b.WriteString("whale whale whale\n")
		}
		path := filepath.Join(dir, fmt.Sprintf("b%d.txt", id))
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			t.Fatal(err)
		}
		texts.paths[id] = path
		texts.recs[id] = model.BookRecord{ID: id, Title: "T", Authors: "A"}
		ids = append(ids, id)
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{ids: ids}, texts)

	// limit 9 -> perSourceCap 3: at most 3 books, at most 3 matches each
	res := svc.Search(context.Background(), "whale", 9, false)
	if len(res.Matches) > 9 {
		t.Fatalf("got %d matches, budget allows at most 9", len(res.Matches))
	}
	books := map[int64]int{}
	for _, m := range res.Matches {
		books[m.BookID]++
	}
	if len(books) > 3 {
		t.Errorf("scanned %d books, want at most 3", len(books))
	}
	for id, n := range books {
		if n > 3 {
			t.Errorf("book %d produced %d matches, want at most 3", id, n)
		}
	}
}

func TestSearch_ClampsWindowAtLineOne(t *testing.T) {
	dir := t.TempDir()
	texts := &fakeTexts{
		paths: map[int64]string{1: writeBook(t, dir, 1, 2, 10)},
		recs:  map[int64]model.BookRecord{1: {ID: 1, Title: "T", Authors: "A"}},
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{ids: []int64{1}}, texts)

	res := svc.Search(context.Background(), "machine", 5, false)
	if len(res.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(res.Matches))
	}
	loc, err := locator.Decode(res.Matches[0].Locator)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Start != 1 || loc.End != 7 {
		t.Errorf("window = %d:%d, want 1:7", loc.Start, loc.End)
	}
}

func TestSearch_HybridNarrowsThenScans(t *testing.T) {
	dir := t.TempDir()
	texts := &fakeTexts{
		paths: map[int64]string{
			1: writeBook(t, dir, 1, 5, 10),
			2: writeBook(t, dir, 2, 5, 10),
		},
		recs: map[int64]model.BookRecord{
			1: {ID: 1, Title: "Robots", Authors: "Asimov"},
			2: {ID: 2, Title: "More Robots", Authors: "Asimov"},
		},
	}
	catalog := &fakeCatalog{ids: []int64{1, 2}}
	// the index would return unrelated books; hybrid must not consult it
	svc := testService(t, catalog, &fakeIndex{ids: []int64{99}}, texts)

	res := svc.Search(context.Background(), "author:Asimov machine", 10, false)
	if res.Kind != model.SearchHybrid {
		t.Fatalf("kind = %v, want hybrid", res.Kind)
	}
	if catalog.lastExpr != "author:Asimov" {
		t.Errorf("narrowing expression = %q", catalog.lastExpr)
	}
	if catalog.lastLimit != 1000 {
		t.Errorf("narrowing cap = %d, want the large internal cap", catalog.lastLimit)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(res.Matches))
	}
	for _, m := range res.Matches {
		if m.BookID == 99 {
			t.Error("hybrid scanned a book outside the narrowed set")
		}
	}
}

func TestSearch_HybridShortCircuitsOnEmptyNarrowing(t *testing.T) {
	svc := testService(t, &fakeCatalog{}, &fakeIndex{ids: []int64{1}},
		&fakeTexts{paths: map[int64]string{}, recs: map[int64]model.BookRecord{}})

	res := svc.Search(context.Background(), "author:Nobody whale", 10, false)
	if len(res.Matches) != 0 {
		t.Fatalf("got %d matches, want 0 without content scanning", len(res.Matches))
	}
}

func TestSearch_MetadataSoftFailsOnBackendError(t *testing.T) {
	catalog := &fakeCatalog{err: &model.BackendError{Code: "CATALOG_TIMEOUT", Message: "slow"}}
	svc := testService(t, catalog, &fakeIndex{}, &fakeTexts{})

	res := svc.Search(context.Background(), "author:Asimov", 10, false)
	if res.Kind != model.SearchMetadataOnly {
		t.Fatalf("kind = %v", res.Kind)
	}
	if len(res.Matches) != 0 {
		t.Errorf("backend failure must degrade to empty results, got %d", len(res.Matches))
	}
}

func TestSearch_MetadataShapesDescription(t *testing.T) {
	catalog := &fakeCatalog{
		ids: []int64{7},
		records: map[int64]model.BookRecord{
			7: {
				ID: 7, Title: "I, Robot", Authors: "Isaac Asimov",
				Description: "<p>First segment with <b>markup</b>.</p>\n<p>Second segment.</p>\n<p>Third, dropped.</p>",
			},
		},
	}
	svc := testService(t, catalog, &fakeIndex{}, &fakeTexts{})

	res := svc.Search(context.Background(), "author:Asimov", 10, false)
	if len(res.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(res.Matches))
	}
	m := res.Matches[0]
	if strings.Contains(m.Text, "<") {
		t.Errorf("markup not stripped: %q", m.Text)
	}
	if !strings.Contains(m.Text, "First segment with markup.") ||
		!strings.Contains(m.Text, "Second segment.") {
		t.Errorf("segments missing from %q", m.Text)
	}
	if strings.Contains(m.Text, "Third") {
		t.Errorf("more than two segments kept: %q", m.Text)
	}
	if m.Locator != locator.Encode("Isaac Asimov", "I, Robot", 7, 0, 0) {
		t.Errorf("locator = %q", m.Locator)
	}
	if m.LineNumber != 0 {
		t.Errorf("metadata match carries line number %d", m.LineNumber)
	}
}

func TestSearch_FuzzyFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(path, []byte("the galapagos voyage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	texts := &fakeTexts{
		paths: map[int64]string{1: path},
		recs:  map[int64]model.BookRecord{1: {ID: 1, Title: "T", Authors: "A"}},
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{ids: []int64{1}}, texts)

	// misspelled query: no substring match, fuzzy rescues it
	strict := svc.Search(context.Background(), "galapagoss", 10, false)
	if len(strict.Matches) != 0 {
		t.Fatalf("strict scan matched %d, want 0", len(strict.Matches))
	}
	fuzzy := svc.Search(context.Background(), "galapagoss", 10, true)
	if len(fuzzy.Matches) != 1 {
		t.Fatalf("fuzzy fallback matched %d, want 1", len(fuzzy.Matches))
	}
}

func TestSearch_SkipsBooksWithoutTextExport(t *testing.T) {
	dir := t.TempDir()
	texts := &fakeTexts{
		paths: map[int64]string{2: writeBook(t, dir, 2, 3, 5)},
		recs: map[int64]model.BookRecord{
			1: {ID: 1, Title: "EPUB only", Authors: "A"},
			2: {ID: 2, Title: "Has text", Authors: "A"},
		},
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{ids: []int64{1, 2}}, texts)

	res := svc.Search(context.Background(), "machine", 10, false)
	if len(res.Matches) != 1 || res.Matches[0].BookID != 2 {
		t.Fatalf("matches = %+v, want only book 2", res.Matches)
	}
}

func TestExcerpt_KeywordPagination(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		if i%10 == 0 {
			fmt.Fprintf(&b, "keyword on line %d\n", i)
		} else {
			fmt.Fprintf(&b, "line %d\n", i)
		}
	}
	path := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	texts := &fakeTexts{
		paths: map[int64]string{1: path},
		recs:  map[int64]model.BookRecord{1: {ID: 1, Title: "T", Authors: "A"}},
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{}, texts)

	page1, err := svc.Excerpt(context.Background(), ExcerptRequest{
		BookID: 1, Keyword: "keyword", ContextLines: 1, MaxResults: 2, Page: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if page1.Total != 5 {
		t.Errorf("total = %d, want 5", page1.Total)
	}
	if len(page1.Matches) != 2 {
		t.Fatalf("page 1 has %d matches, want 2", len(page1.Matches))
	}
	if page1.Matches[0].LineNumber != 10 || page1.Matches[1].LineNumber != 20 {
		t.Errorf("page 1 lines = %d, %d", page1.Matches[0].LineNumber, page1.Matches[1].LineNumber)
	}
	if page1.Matches[0].Text != "line 9\nkeyword on line 10\nline 11" {
		t.Errorf("context window = %q", page1.Matches[0].Text)
	}

	page3, err := svc.Excerpt(context.Background(), ExcerptRequest{
		BookID: 1, Keyword: "keyword", ContextLines: 1, MaxResults: 2, Page: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Matches) != 1 || page3.Matches[0].LineNumber != 50 {
		t.Errorf("page 3 = %+v", page3.Matches)
	}
}

func TestFetch_RangeAndOpening(t *testing.T) {
	dir := t.TempDir()
	content := "p1 l1\np1 l2\n\np2 l1\n\np3 l1\n\np4 l1\n\np5 l1\n\np6 l1\n"
	path := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	texts := &fakeTexts{
		paths: map[int64]string{1: path},
		recs:  map[int64]model.BookRecord{1: {ID: 1, Title: "T", Authors: "A"}},
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{}, texts)

	text, _, err := svc.Fetch(context.Background(), locator.Location{BookID: 1, Start: 4, End: 6})
	if err != nil {
		t.Fatal(err)
	}
	if text != "p2 l1\n\np3 l1" {
		t.Errorf("range fetch = %q", text)
	}

	// no fragment: first five paragraphs
	text, _, err = svc.Fetch(context.Background(), locator.Location{BookID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "p5 l1") || strings.Contains(text, "p6 l1") {
		t.Errorf("opening fetch = %q, want paragraphs 1-5", text)
	}
}

func TestFetch_NoTextFormat(t *testing.T) {
	texts := &fakeTexts{
		paths: map[int64]string{},
		recs:  map[int64]model.BookRecord{1: {ID: 1, Title: "EPUB only"}},
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{}, texts)

	_, _, err := svc.Fetch(context.Background(), locator.Location{BookID: 1})
	if !errors.Is(err, model.ErrNoTextFormat) {
		t.Errorf("err = %v, want ErrNoTextFormat", err)
	}
}

func TestMatchContext_FollowsParagraphBoundaries(t *testing.T) {
	dir := t.TempDir()
	content := "p1 l1\n\np2 l1\np2 whale l2\np2 l3\n\np3 l1\n"
	path := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	texts := &fakeTexts{
		paths: map[int64]string{1: path},
		recs:  map[int64]model.BookRecord{1: {ID: 1, Title: "T"}},
	}
	svc := testService(t, &fakeCatalog{}, &fakeIndex{}, texts)

	got, err := svc.MatchContext(context.Background(), model.SearchMatch{BookID: 1, LineNumber: 4})
	if err != nil {
		t.Fatal(err)
	}
	// radius 3 from paragraph 2 covers the whole fixture
	if !strings.Contains(got, "p1 l1") || !strings.Contains(got, "p3 l1") {
		t.Errorf("context = %q", got)
	}

	// metadata matches have no line number and pass through unchanged
	got, err = svc.MatchContext(context.Background(), model.SearchMatch{BookID: 1, Text: "a description"})
	if err != nil || got != "a description" {
		t.Errorf("got %q, %v", got, err)
	}
}
