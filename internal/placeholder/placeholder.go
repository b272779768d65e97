// Package placeholder hides markup that must survive translation untouched.
// Fenced code blocks, inline code spans, HTML/XML tags and URLs are swapped
// for numbered markers such as [[0]] before the text reaches an LLM and put
// back afterwards.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`[^`\n]+`")
	reTag        = regexp.MustCompile(`</?[A-Za-z!?][^<>]*>`)
	reURL        = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
	reMarker     = regexp.MustCompile(`\[\[(\d+)\]\]`)
)

// Hint is appended to LLM prompts when markup is protected.
const Hint = "Tokens of the form [[0]], [[1]] stand for code or markup. Copy every such token unchanged and keep it in the matching place of the sentence."

// Markers holds the originals replaced by Protect, indexed by marker number.
type Markers []string

// Protect replaces markup with markers in order of appearance. Text that
// already contains something shaped like a marker is returned unchanged
// with no markers, since restoring it would be ambiguous.
func Protect(text string) (string, Markers) {
	if reMarker.MatchString(text) {
		return text, nil
	}

	var markers Markers
	replace := func(match string) string {
		markers = append(markers, match)
		return marker(len(markers) - 1)
	}

	// Outer constructs first so nested markup is captured whole.
	text = reFencedCode.ReplaceAllStringFunc(text, replace)
	text = reInlineCode.ReplaceAllStringFunc(text, replace)
	text = reTag.ReplaceAllStringFunc(text, replace)
	text = reURL.ReplaceAllStringFunc(text, replace)

	return text, markers
}

// Restore puts the originals back. It fails when the translation dropped a
// marker, so the caller can treat the output as unusable.
func (m Markers) Restore(text string) (string, error) {
	if len(m) == 0 {
		return text, nil
	}
	if missing := m.Missing(text); len(missing) > 0 {
		return "", fmt.Errorf("translation lost %d of %d protected markers: %v", len(missing), len(m), missing)
	}

	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		idx, err := strconv.Atoi(reMarker.FindStringSubmatch(match)[1])
		if err != nil || idx >= len(m) {
			return match
		}
		return m[idx]
	}), nil
}

// Missing lists the marker numbers absent from text.
func (m Markers) Missing(text string) []int {
	var missing []int
	for i := range m {
		if !strings.Contains(text, marker(i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

func marker(i int) string {
	return "[[" + strconv.Itoa(i) + "]]"
}
