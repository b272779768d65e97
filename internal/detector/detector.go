// Package detector guesses the language of a file so that "auto" can be
// resolved before a file is sent to a translation service.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// sampleRunes bounds how much of a file is inspected.
const sampleRunes = 2000

// Detector wraps a lingua detector built over all languages. Building it is
// expensive; construct one per process and share it between workers.
type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	text = sample(text)
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code translation services
// expect, e.g. "uk".
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

func sample(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > sampleRunes {
		return string(runes[:sampleRunes])
	}
	return text
}
