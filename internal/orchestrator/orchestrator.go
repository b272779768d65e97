// Package orchestrator turns a list of translation services into the single
// translation capability the batch translator calls once per file. Text is
// cut into line-aligned pieces, each piece goes to the first service that
// translates it, and the translated pieces are stitched back together.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/valpere/gtrans/internal/chunker"
	"github.com/valpere/gtrans/internal/translator"
)

const (
	DefaultChunkSize  = 4000
	DefaultRetryDelay = 500 * time.Millisecond
)

type OrchestratorConfig struct {
	// Timeout bounds a single attempt against a single service.
	Timeout time.Duration
	// MaxAttempts is the number of tries per service and piece; 1 means no retry.
	MaxAttempts int
	RetryDelay  time.Duration
	// ChunkSize caps the runes sent per request. Services that declare a
	// smaller limit lower it further.
	ChunkSize int
	// Validator, when set, rejects unusable output so the attempt counts as
	// failed and the next attempt or service is tried.
	Validator OutputValidator
}

type OutputValidator interface {
	Check(source, translated, targetLang string) error
}

type Orchestrator struct {
	services  []translator.TranslationService
	config    OrchestratorConfig
	chunkSize int
}

func New(services []translator.TranslationService, config OrchestratorConfig) *Orchestrator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}

	chunkSize := config.ChunkSize
	for _, svc := range services {
		if l, ok := svc.(translator.Limiter); ok && l.MaxChars() > 0 && l.MaxChars() < chunkSize {
			chunkSize = l.MaxChars()
		}
	}

	return &Orchestrator{
		services:  services,
		config:    config,
		chunkSize: chunkSize,
	}
}

// ChunkSize is the effective piece size after service limits are applied.
func (o *Orchestrator) ChunkSize() int {
	return o.chunkSize
}

// Names lists the configured services in fallback order.
func (o *Orchestrator) Names() []string {
	names := make([]string, len(o.services))
	for i, svc := range o.services {
		names[i] = svc.Name()
	}
	return names
}

// IsAvailable succeeds when at least one service is usable.
func (o *Orchestrator) IsAvailable(ctx context.Context) error {
	if len(o.services) == 0 {
		return errors.New("no translation services configured")
	}
	var errs []error
	for _, svc := range o.services {
		err := svc.IsAvailable(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
	}
	return errors.Join(errs...)
}

// Translate translates a whole file's text. Line structure is preserved:
// whitespace-only pieces are copied through and the separators between
// pieces are restored verbatim.
func (o *Orchestrator) Translate(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	start := time.Now()
	pieces := chunker.Split(req.Text, o.chunkSize)
	translated := make([]string, len(pieces))

	var (
		used       []string
		confidence float64
		scored     int
		prevSource string
	)

	for i, p := range pieces {
		if p.Blank() {
			translated[i] = p.Text
			continue
		}

		lead, core, trail := splitSpace(p.Text)
		pieceReq := req
		pieceReq.Text = core
		if prevSource != "" {
			pieceReq.PreviousContext = chunker.ExtractContext(prevSource, 0)
		}

		res, err := o.translatePiece(ctx, pieceReq)
		if err != nil {
			msg := fmt.Sprintf("piece %d/%d: %v", i+1, len(pieces), err)
			return &translator.ServiceResult{
				ServiceName: strings.Join(used, ","),
				Error:       msg,
				Latency:     time.Since(start),
			}, fmt.Errorf("piece %d/%d: %w", i+1, len(pieces), err)
		}

		// Services and LLM cleanup trim surrounding whitespace; the source's
		// own leading and trailing whitespace is restored exactly.
		translated[i] = lead + strings.TrimSpace(res.TranslatedText) + trail
		prevSource = p.Text
		confidence += res.Confidence
		scored++
		if !slices.Contains(used, res.ServiceName) {
			used = append(used, res.ServiceName)
		}
	}

	result := &translator.ServiceResult{
		ServiceName:    strings.Join(used, ","),
		TranslatedText: chunker.Join(pieces, translated),
		Latency:        time.Since(start),
		Metadata:       map[string]string{"pieces": fmt.Sprintf("%d", len(pieces))},
	}
	if scored > 0 {
		result.Confidence = confidence / float64(scored)
	}
	return result, nil
}

func (o *Orchestrator) translatePiece(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	if len(o.services) == 0 {
		return nil, errors.New("no translation services configured")
	}

	var errs []error
	for _, svc := range o.services {
		for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			res, err := o.attempt(ctx, svc, req)
			if err == nil {
				return res, nil
			}
			errs = append(errs, fmt.Errorf("%s (attempt %d): %w", svc.Name(), attempt, err))

			if attempt < o.config.MaxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(o.config.RetryDelay):
				}
			}
		}
	}

	return nil, fmt.Errorf("all translation services failed: %w", errors.Join(errs...))
}

func (o *Orchestrator) attempt(ctx context.Context, svc translator.TranslationService, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	res, err := svc.Translate(ctx, req)
	switch {
	case err != nil:
		return nil, err
	case res == nil:
		return nil, errors.New("no result returned")
	case res.Error != "":
		return nil, errors.New(res.Error)
	}
	if o.config.Validator != nil {
		if err := o.config.Validator.Check(req.Text, res.TranslatedText, req.TargetLang); err != nil {
			return nil, fmt.Errorf("rejected output: %w", err)
		}
	}
	if res.ServiceName == "" {
		res.ServiceName = svc.Name()
	}
	return res, nil
}

// splitSpace separates the leading and trailing whitespace of s from its
// content.
func splitSpace(s string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(s, unicode.IsSpace)
	lead = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsSpace)
	return lead, trimmed, core[len(trimmed):]
}
