package search

import (
	"bufio"
	"os"
	"strings"

	"github.com/hbollon/go-edlib"
)

// maxLineBytes mirrors the excerpt reader's bound on a single line.
const maxLineBytes = 1 << 20

type lineMatch struct {
	Line int
	Text string
}

// scanFile walks the file line by line and reports lines where any term
// matches, terms OR-combined, case-insensitive, at most maxMatches of them.
// In fuzzy mode a term also matches a line containing a word whose
// Jaro-Winkler similarity to the term reaches threshold.
func scanFile(path string, terms []string, maxMatches int, fuzzy bool, threshold float32) ([]lineMatch, error) {
	if maxMatches <= 0 || len(terms) == 0 {
		return nil, nil
	}

	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		lowered = append(lowered, strings.ToLower(t))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var matches []lineMatch
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !lineMatches(line, lowered, fuzzy, threshold) {
			continue
		}
		matches = append(matches, lineMatch{Line: lineNo, Text: line})
		if len(matches) >= maxMatches {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func lineMatches(line string, lowered []string, fuzzy bool, threshold float32) bool {
	lower := strings.ToLower(line)
	for _, term := range lowered {
		if strings.Contains(lower, term) {
			return true
		}
	}
	if !fuzzy {
		return false
	}
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, `.,;:!?"'()[]`)
		if word == "" {
			continue
		}
		for _, term := range lowered {
			sim, err := edlib.StringsSimilarity(word, term, edlib.JaroWinkler)
			if err == nil && sim >= threshold {
				return true
			}
		}
	}
	return false
}
