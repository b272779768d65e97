package translator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerService guards a service with a circuit breaker. Once the wrapped
// service fails maxFailures times in a row, calls fail immediately with
// gobreaker.ErrOpenState until cooldown has passed.
type BreakerService struct {
	TranslationService
	cb *gobreaker.CircuitBreaker
}

func NewBreakerService(svc TranslationService, maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *BreakerService {
	if logger == nil {
		logger = logrus.New()
	}
	settings := gobreaker.Settings{
		Name:        svc.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about the service's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &BreakerService{
		TranslationService: svc,
		cb:                 gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.TranslationService.Translate(ctx, req)
	})

	res, _ := out.(*ServiceResult)
	if res == nil {
		res = &ServiceResult{ServiceName: b.Name()}
	}
	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	return res, err
}

// MaxChars forwards the wrapped service's limit, if it has one.
func (b *BreakerService) MaxChars() int {
	if l, ok := b.TranslationService.(Limiter); ok {
		return l.MaxChars()
	}
	return 0
}

// State exposes the breaker state for logging and tests.
func (b *BreakerService) State() gobreaker.State {
	return b.cb.State()
}
