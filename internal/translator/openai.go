package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel       = openai.GPT4oMini
	defaultOpenRouterURL     = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "meta-llama/llama-3.1-8b-instruct:free"
	openAICompatibleMaxChars = 6000
)

// OpenAIService translates through a chat-completions API. The same type
// serves OpenAI itself and OpenAI-compatible gateways such as OpenRouter.
type OpenAIService struct {
	name    string
	apiKey  string
	model   string
	protect bool
	client  *openai.Client
}

func newOpenAICompatible(name string, cfg ServiceConfig, defaultURL, defaultModel string) *OpenAIService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	} else if defaultURL != "" {
		clientCfg.BaseURL = defaultURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &OpenAIService{
		name:    name,
		apiKey:  cfg.APIKey,
		model:   model,
		protect: cfg.ProtectMarkup,
		client:  openai.NewClientWithConfig(clientCfg),
	}
}

func NewOpenAIService(cfg ServiceConfig) *OpenAIService {
	return newOpenAICompatible("openai", cfg, "", defaultOpenAIModel)
}

func NewOpenRouterService(cfg ServiceConfig) *OpenAIService {
	return newOpenAICompatible("openrouter", cfg, defaultOpenRouterURL, defaultOpenRouterModel)
}

func (s *OpenAIService) Name() string {
	return s.name
}

func (s *OpenAIService) MaxChars() int {
	return openAICompatibleMaxChars
}

func (s *OpenAIService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if s.apiKey == "" {
		result.Error = fmt.Sprintf("%s API key required", s.name)
		return result, fmt.Errorf("%s API key required", s.name)
	}

	prompt := newLLMPrompt(req, s.protect)
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt.text},
		},
		Temperature: 0.3,
	})
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result, fmt.Errorf("%s API error: %w", s.name, err)
	}

	if len(resp.Choices) == 0 {
		result.Error = "empty response from API"
		return result, fmt.Errorf("empty response from API")
	}

	text, err := prompt.finish(resp.Choices[0].Message.Content)
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("%s: %w", s.name, err)
	}

	result.TranslatedText = text
	result.Confidence = 0.7
	result.Metadata = map[string]string{
		"model":             s.model,
		"prompt_tokens":     fmt.Sprintf("%d", resp.Usage.PromptTokens),
		"completion_tokens": fmt.Sprintf("%d", resp.Usage.CompletionTokens),
	}

	return result, nil
}

func (s *OpenAIService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" {
		return fmt.Errorf("%s API key not configured", s.name)
	}
	return nil
}

func (s *OpenAIService) SupportedLanguages(ctx context.Context) ([]string, error) {
	return []string{"en", "es", "fr", "de", "it", "pt", "ru", "zh", "ja", "ko", "ar", "uk"}, nil
}
