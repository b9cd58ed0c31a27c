// Package excerpt reads bounded slices of a book's plain-text export:
// paragraph windows around a line, opening paragraphs, and exact line
// ranges. Output is always the literal text, never re-wrapped.
package excerpt

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/trieloff/calibre-mcp/internal/model"
)

// DefaultRadius is the paragraph radius used when a caller passes a
// non-positive one.
const DefaultRadius = 3

// maxLineBytes bounds a single scanned line. Plain-text exports of some
// formats put a whole chapter on one line.
const maxLineBytes = 1 << 20

// ParagraphWindow returns the lines of the paragraphs within radius
// paragraphs of the paragraph containing targetLine (1-based), in original
// order. A paragraph is a maximal run of non-blank lines. Returns
// model.ErrLineNotFound when targetLine does not exist in the file.
func ParagraphWindow(path string, targetLine, radius int) (string, error) {
	if radius <= 0 {
		radius = DefaultRadius
	}
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	if targetLine < 1 || targetLine > len(lines) {
		return "", fmt.Errorf("line %d in %s: %w", targetLine, path, model.ErrLineNotFound)
	}

	paras := paragraphIndexes(lines)
	target := paras[targetLine-1]

	lo := target - radius
	if lo < 1 {
		lo = 1
	}
	hi := target + radius

	var out []string
	for i, line := range lines {
		if paras[i] >= lo && paras[i] <= hi {
			out = append(out, line)
		}
	}
	return strings.Trim(strings.Join(out, "\n"), "\n"), nil
}

// LeadingParagraphs returns the first n paragraphs of the file, including
// the blank lines between them.
func LeadingParagraphs(path string, n int) (string, error) {
	if n < 1 {
		n = 1
	}
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	paras := paragraphIndexes(lines)

	var out []string
	for i, line := range lines {
		if paras[i] > n {
			break
		}
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n"), nil
}

// LineRange returns lines start..end inclusive, 1-based. The end is clamped
// to the file length; a start past the end of the file is
// model.ErrLineNotFound.
func LineRange(path string, start, end int) (string, error) {
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	if start < 1 || start > len(lines) {
		return "", fmt.Errorf("line %d in %s: %w", start, path, model.ErrLineNotFound)
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// paragraphIndexes assigns every line a 1-based paragraph index. Blank lines
// take the index of the paragraph that follows them, so a window over
// paragraphs p..q naturally carries its interior separators along.
func paragraphIndexes(lines []string) []int {
	idx := make([]int, len(lines))
	para := 1
	inBlank := false
	seenText := false
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			inBlank = true
			idx[i] = para
			if seenText {
				idx[i] = para + 1
			}
			continue
		}
		if inBlank && seenText {
			para++
		}
		inBlank = false
		seenText = true
		idx[i] = para
	}
	return idx
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
