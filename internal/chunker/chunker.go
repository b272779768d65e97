// Package chunker splits file contents into pieces small enough for a
// translation request while keeping line structure intact. Pieces are cut at
// line boundaries whenever possible; a single line longer than the limit is
// cut at a sentence end, then at whitespace, then hard. Join reassembles the
// translated pieces with the exact separators that were removed.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultContextWords is the default number of words extracted by
	// ExtractContext for use as a sliding-window context.
	DefaultContextWords = 25
)

// Piece is one translatable unit. Sep is the text that followed it in the
// original and is emitted verbatim after its translation.
type Piece struct {
	Text string
	Sep  string
}

// Blank reports whether the piece has nothing worth translating.
func (p Piece) Blank() bool {
	return strings.TrimSpace(p.Text) == ""
}

// Split cuts text into pieces of at most maxChars runes each.
// If maxChars ≤ 0 or the text fits, a single piece is returned.
func Split(text string, maxChars int) []Piece {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []Piece{{Text: text}}
	}

	lines := strings.Split(text, "\n")

	var (
		pieces  []Piece
		group   []string
		grouped int
	)

	flush := func() {
		if len(group) == 0 {
			return
		}
		pieces = append(pieces, Piece{Text: strings.Join(group, "\n"), Sep: "\n"})
		group = group[:0]
		grouped = 0
	}

	for _, line := range lines {
		n := utf8.RuneCountInString(line)

		if n > maxChars {
			flush()
			pieces = append(pieces, splitLine(line, maxChars)...)
			continue
		}

		extra := n
		if len(group) > 0 {
			extra++ // the joining newline
		}
		if grouped+extra > maxChars {
			flush()
			extra = n
		}
		group = append(group, line)
		grouped += extra
	}
	flush()

	pieces[len(pieces)-1].Sep = ""
	return pieces
}

// splitLine cuts an over-long line. The last piece carries a newline
// separator; Split fixes it up when the line was the final one.
func splitLine(line string, maxChars int) []Piece {
	var pieces []Piece
	runes := []rune(line)

	for len(runes) > maxChars {
		cut, skip := findSplit(runes, maxChars)
		pieces = append(pieces, Piece{
			Text: string(runes[:cut]),
			Sep:  string(runes[cut : cut+skip]),
		})
		runes = runes[cut+skip:]
	}

	return append(pieces, Piece{Text: string(runes), Sep: "\n"})
}

// findSplit returns the rune index to cut at and how many whitespace runes
// following the cut belong to the separator.
func findSplit(runes []rune, maxChars int) (cut, skip int) {
	// 1. Sentence-ending punctuation followed by whitespace.
	for i := maxChars - 1; i > 0; i-- {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1, spaces(runes, i+1)
		}
	}

	// 2. Whitespace word boundary.
	for i := maxChars - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i, spaces(runes, i)
		}
	}

	// 3. Hard cut.
	return maxChars, 0
}

func spaces(runes []rune, from int) int {
	n := 0
	for from+n < len(runes) && unicode.IsSpace(runes[from+n]) {
		n++
	}
	return n
}

// Join reassembles translated pieces. translated must be index-aligned with
// pieces.
func Join(pieces []Piece, translated []string) string {
	var sb strings.Builder
	for i, p := range pieces {
		sb.WriteString(translated[i])
		sb.WriteString(p.Sep)
	}
	return sb.String()
}

// ExtractContext returns the last wordCount words of text, joined by a single
// space. LLM-backed services get it as continuity context for the next piece.
// If wordCount ≤ 0, DefaultContextWords is used.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
