// Package postprocess strips the wrapping that chat models put around a
// translated file: reasoning blocks, a leading "Here is the translation:"
// line, a Markdown code fence around the whole answer, and quotes around a
// single-line answer. Indentation inside the text is left alone.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean runs every phase in order and trims surrounding blank lines.
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removePreamble(text)
	text = removeCodeFence(text)
	text = removeQuoteWrapping(text)
	return trimBlankLines(text)
}

// Go's RE2 has no backreferences, so every tag pair is listed.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opened tag that was never closed: the model was cut off mid-thought.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return trimBlankLines(text)
}

// Preambles must sit at the very start and end in a colon.
var preamblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]?\s*`),
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the| your)? (?:translated |full )?(?:translation|text|file|content)(?: of the (?:text|file))?(?: in [\p{L} ]+)?\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:translation|translated (?:text|file))\s*:`),
}

func removePreamble(text string) string {
	original := text
	text = strings.TrimLeft(text, " \t\r\n")

	lead := preamblePatterns[0].FindString(text)
	rest := text[len(lead):]

	for _, re := range preamblePatterns[1:] {
		if loc := re.FindStringIndex(rest); loc != nil {
			return strings.TrimLeft(rest[loc[1]:], " \t")
		}
	}
	// A bare "Sure," without a preamble is content, keep it.
	return original
}

var codeFenceRe = regexp.MustCompile("(?s)^```[\\w+-]*[ \t]*\r?\n(.*?)\r?\n```[ \t]*$")

func removeCodeFence(text string) string {
	trimmed := trimBlankLines(text)
	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return text
}

// removeQuoteWrapping strips one matching pair of outer quotes from a
// single-line answer. Supported pairs:
//
//	"…"  '…'  «…»  “…”  ‘…’
func removeQuoteWrapping(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.ContainsRune(trimmed, '\n') {
		return text
	}

	runes := []rune(trimmed)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}

// trimBlankLines drops leading and trailing empty lines and trailing
// whitespace, keeping the indentation of the first non-empty line.
func trimBlankLines(text string) string {
	text = strings.TrimRight(text, " \t\r\n")
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 || strings.TrimSpace(text[:i]) != "" {
			return text
		}
		text = text[i+1:]
	}
}
