// Package locator implements the calibre:// content address codec.
//
// A locator has the shape
//
//	calibre://<author>/<title>@<book-id>[#<start>:<end>]
//
// where author and title are percent-encoded for display purposes only.
// Resolution always goes through the book id, so a locator survives catalog
// renames of the author or title it was minted with.
package locator

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is the locator URL prefix.
const Scheme = "calibre://"

// Location is a decoded locator. Start and End are 1-based inclusive line
// bounds; both are zero when the locator carries no line range.
type Location struct {
	Author string
	Title  string
	BookID int64
	Start  int
	End    int
}

// HasRange reports whether the location carries a line range.
func (l Location) HasRange() bool { return l.Start > 0 }

// DecodeError describes why a locator string failed to decode.
type DecodeError struct {
	Raw    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid locator %q: %s", e.Raw, e.Reason)
}

// Encode builds the locator string for a book, optionally bounded to a line
// range. A range is appended only when both bounds are positive.
func Encode(author, title string, bookID int64, start, end int) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString(url.PathEscape(author))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(title))
	b.WriteByte('@')
	b.WriteString(strconv.FormatInt(bookID, 10))
	if start > 0 && end > 0 {
		fmt.Fprintf(&b, "#%d:%d", start, end)
	}
	return b.String()
}

// EncodeLocation is Encode over a Location value.
func EncodeLocation(l Location) string {
	return Encode(l.Author, l.Title, l.BookID, l.Start, l.End)
}

// Decode parses a locator string. It returns a DecodeError when the scheme
// is missing, when no @<digits> book id is present, or when a fragment is
// present but is not exactly <digits>:<digits> with start <= end.
func Decode(raw string) (Location, error) {
	rest, ok := strings.CutPrefix(raw, Scheme)
	if !ok {
		return Location{}, &DecodeError{Raw: raw, Reason: "missing calibre:// scheme"}
	}

	rest, frag, hasFrag := strings.Cut(rest, "#")

	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return Location{}, &DecodeError{Raw: raw, Reason: "missing @<book-id>"}
	}
	id, ok := parseDigits(rest[at+1:])
	if !ok || id <= 0 {
		return Location{}, &DecodeError{Raw: raw, Reason: "book id must be a positive integer"}
	}

	loc := Location{BookID: id}
	author, title, _ := strings.Cut(rest[:at], "/")
	loc.Author = pathUnescape(author)
	loc.Title = pathUnescape(title)

	if hasFrag {
		startStr, endStr, ok := strings.Cut(frag, ":")
		if !ok {
			return Location{}, &DecodeError{Raw: raw, Reason: "fragment must be <start>:<end>"}
		}
		start, sok := parseDigits(startStr)
		end, eok := parseDigits(endStr)
		if !sok || !eok || start < 1 || end < start {
			return Location{}, &DecodeError{Raw: raw, Reason: "fragment must be <start>:<end> with 1 <= start <= end"}
		}
		loc.Start = int(start)
		loc.End = int(end)
	}

	return loc, nil
}

// parseDigits parses a non-empty run of ASCII digits. Unlike strconv.Atoi it
// rejects signs, so fragments and ids are literal digit runs only.
func parseDigits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// pathUnescape decodes percent escapes, keeping the raw text when the
// escaping is malformed. Author and title are informational, so a bad escape
// should not fail the whole decode.
func pathUnescape(s string) string {
	if out, err := url.PathUnescape(s); err == nil {
		return out
	}
	return s
}
