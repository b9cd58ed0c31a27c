package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/trieloff/calibre-mcp/internal/model"
)

// fakeBinary writes an executable shell script standing in for calibredb.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibredb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestCalibreDB_Search(t *testing.T) {
	bin := fakeBinary(t, `echo '[{"id": 4}, {"id": 9}]'`)
	cat := NewCalibreDB(bin, "/library", time.Second)

	ids, err := cat.Search(context.Background(), "author:Asimov", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{4, 9}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestCalibreDB_Records(t *testing.T) {
	bin := fakeBinary(t, `echo '[{"id": 4, "title": "I, Robot", "authors": "Isaac Asimov",
		"tags": ["SF"], "formats": ["/library/b/f.txt"], "comments": "<p>x</p>"}]'`)
	cat := NewCalibreDB(bin, "/library", time.Second)

	records, err := cat.Records(context.Background(), []int64{4})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	rec := records[0]
	if rec.ID != 4 || rec.Title != "I, Robot" || rec.Authors != "Isaac Asimov" {
		t.Errorf("record = %+v", rec)
	}
	if !reflect.DeepEqual(rec.Formats, []string{"/library/b/f.txt"}) {
		t.Errorf("formats = %v", rec.Formats)
	}
	if rec.Description != "<p>x</p>" {
		t.Errorf("description = %q, want raw comments passed through", rec.Description)
	}
}

func TestCalibreDB_RecordsEmptyIDs(t *testing.T) {
	cat := NewCalibreDB("/does/not/exist", "/library", time.Second)
	records, err := cat.Records(context.Background(), nil)
	if err != nil || records != nil {
		t.Errorf("empty ids should not invoke the binary: %v, %v", records, err)
	}
}

func TestCalibreDB_CandidatesDeduplicates(t *testing.T) {
	bin := fakeBinary(t, `echo '[{"book_id": 7}, {"book_id": 7}, {"book_id": 3}]'`)
	cat := NewCalibreDB(bin, "/library", time.Second)

	ids, err := cat.Candidates(context.Background(), []string{"robots"})
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{7, 3}) {
		t.Errorf("ids = %v, want first-seen order deduplicated", ids)
	}
}

func TestCalibreDB_Timeout(t *testing.T) {
	bin := fakeBinary(t, "sleep 5")
	cat := NewCalibreDB(bin, "/library", 50*time.Millisecond)

	_, err := cat.Search(context.Background(), "author:x", 5)
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	if be.Code != "CATALOG_TIMEOUT" {
		t.Errorf("code = %q", be.Code)
	}
}

func TestCalibreDB_ExecFailure(t *testing.T) {
	bin := fakeBinary(t, `echo "boom" >&2; exit 1`)
	cat := NewCalibreDB(bin, "/library", time.Second)

	_, err := cat.Search(context.Background(), "author:x", 5)
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	if be.Code != "CATALOG_UNAVAILABLE" {
		t.Errorf("code = %q", be.Code)
	}
}

func TestCalibreDB_MalformedOutput(t *testing.T) {
	bin := fakeBinary(t, `echo 'not json'`)
	cat := NewCalibreDB(bin, "/library", time.Second)

	if _, err := cat.Search(context.Background(), "author:x", 5); err == nil {
		t.Error("expected an error for malformed output")
	}
}
