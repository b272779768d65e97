package internal

import "time"

// TranslationRequest describes one batch run over a directory tree.
type TranslationRequest struct {
	ID         string    `json:"id"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	SourceRoot string    `json:"source_root"`
	OutputRoot string    `json:"output_root"`
	Extension  string    `json:"extension,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
