package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultLibreTranslateURL = "http://localhost:5000"

// LibreTranslateService uses a self-hosted LibreTranslate server.
type LibreTranslateService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewLibreTranslateService(cfg ServiceConfig) *LibreTranslateService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultLibreTranslateURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &LibreTranslateService{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *LibreTranslateService) Name() string {
	return "libretranslate"
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detectedLanguage,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *LibreTranslateService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	source := req.SourceLang
	if isAuto(source) {
		source = "auto"
	}

	payload, err := json.Marshal(libreRequest{
		Q:      req.Text,
		Source: source,
		Target: req.TargetLang,
		Format: "text",
		APIKey: s.apiKey,
	})
	if err != nil {
		result.Error = fmt.Sprintf("failed to marshal request: %v", err)
		return result, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read response: %v", err)
		return result, err
	}

	var libreResp libreResponse
	if err := json.Unmarshal(body, &libreResp); err != nil && resp.StatusCode == http.StatusOK {
		result.Error = fmt.Sprintf("failed to decode response: %v", err)
		return result, err
	}

	if resp.StatusCode != http.StatusOK {
		msg := libreResp.Error
		if msg == "" {
			msg = string(body)
		}
		result.Error = fmt.Sprintf("API returned status %d: %s", resp.StatusCode, msg)
		return result, fmt.Errorf("API returned status %d: %s", resp.StatusCode, msg)
	}

	result.TranslatedText = libreResp.TranslatedText
	result.Confidence = 1.0
	if libreResp.DetectedLanguage != nil {
		result.Metadata = map[string]string{"detected_source": libreResp.DetectedLanguage.Language}
	}

	return result, nil
}

func (s *LibreTranslateService) IsAvailable(ctx context.Context) error {
	_, err := s.SupportedLanguages(ctx)
	if err != nil {
		return fmt.Errorf("LibreTranslate not available: %w", err)
	}
	return nil
}

func (s *LibreTranslateService) SupportedLanguages(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/languages", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var langs []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		return nil, fmt.Errorf("failed to decode languages: %w", err)
	}

	codes := make([]string, 0, len(langs))
	for _, l := range langs {
		codes = append(codes, l.Code)
	}
	return codes, nil
}
