// Package validator rejects translation output that cannot be what the
// user asked for: empty text for a non-empty source, or text written in a
// language other than the target.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMinRunes is the shortest output whose language is checked.
// Detection on shorter samples is unreliable.
const DefaultMinRunes = 40

var (
	ErrEmpty         = errors.New("translation is empty")
	ErrWrongLanguage = errors.New("translation is in the wrong language")
)

// LanguageDetector reports the ISO 639-1 code of text.
type LanguageDetector interface {
	DetectISO(text string) (string, bool)
}

type Validator struct {
	detector LanguageDetector
	minRunes int
}

// New returns a Validator. With a nil detector only emptiness is checked.
func New(detector LanguageDetector) *Validator {
	return &Validator{detector: detector, minRunes: DefaultMinRunes}
}

// Check returns nil when translated is an acceptable rendering of source in
// targetLang. Outputs that are too short to classify, or whose language the
// detector cannot decide, are accepted.
func (v *Validator) Check(source, translated, targetLang string) error {
	if strings.TrimSpace(source) == "" {
		return nil
	}

	text := strings.TrimSpace(translated)
	if text == "" {
		return ErrEmpty
	}

	want := primaryTag(targetLang)
	if v.detector == nil || want == "" || want == "auto" {
		return nil
	}
	if utf8.RuneCountInString(text) < v.minRunes {
		return nil
	}

	got, ok := v.detector.DetectISO(text)
	if !ok || got == want {
		return nil
	}
	return fmt.Errorf("%w: expected %s, detected %s", ErrWrongLanguage, want, got)
}

// primaryTag reduces "pt-BR" or "zh_CN" to "pt" or "zh".
func primaryTag(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}
