package translator

import (
	"context"
	"time"
)

// ServiceConfig carries the settings a service is constructed with.
type ServiceConfig struct {
	Credentials string        `mapstructure:"credentials" json:"credentials"`
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Email       string        `mapstructure:"email" json:"email"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	ProjectID   string        `mapstructure:"project_id" json:"project_id"`

	// ProtectMarkup hides code, tags and URLs from LLM services.
	ProtectMarkup bool `mapstructure:"protect_markup" json:"protect_markup"`
}

type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`

	// PreviousContext is the tail of the preceding piece of the same file.
	// Only LLM-backed services use it.
	PreviousContext string `json:"previous_context,omitempty"`
}

type ServiceResult struct {
	ServiceName    string            `json:"service_name"`
	TranslatedText string            `json:"translated_text"`
	Confidence     float64           `json:"confidence"`
	Metadata       map[string]string `json:"metadata"`
	Latency        time.Duration     `json:"latency"`
	Error          string            `json:"error,omitempty"`
}

type TranslationService interface {
	Name() string
	Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error)
	IsAvailable(ctx context.Context) error
	SupportedLanguages(ctx context.Context) ([]string, error)
}

// Limiter is implemented by services that reject requests above a size.
type Limiter interface {
	MaxChars() int
}

// isAuto reports whether lang asks the service to detect the source language.
func isAuto(lang string) bool {
	return lang == "" || lang == "auto"
}
