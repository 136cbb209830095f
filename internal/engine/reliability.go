package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"golang.org/x/time/rate"
)

// ReliabilityConfig: настройки для внеполосных вызовов (перечитывание политики, нотификации).
// Фиксация ревью через эту обертку не идет: там повторов быть не должно.
type ReliabilityConfig struct {
	Name          string        `mapstructure:"name"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	Burst         int           `mapstructure:"burst"`
	Attempts      uint          `mapstructure:"attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

func (c ReliabilityConfig) withDefaults() ReliabilityConfig {
	if c.Name == "" {
		c.Name = "governance-backend"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 100
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.CBMaxRequests == 0 {
		c.CBMaxRequests = 3
	}
	if c.CBInterval <= 0 {
		c.CBInterval = 5 * time.Second
	}
	if c.CBTimeout <= 0 {
		c.CBTimeout = 30 * time.Second
	}
	if c.CBFailures == 0 {
		c.CBFailures = 5
	}
	return c
}

type ReliabilityWrapper struct {
	cfg     ReliabilityConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliabilityWrapper(cfg ReliabilityConfig, metrics *Metrics) *ReliabilityWrapper {
	cfg = cfg.withDefaults()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.CBFailures
		},
		// Ошибки валидации и конфликты: не поломка бэкенда, предохранитель их не считает
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryable(err)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return &ReliabilityWrapper{
		cfg:     cfg,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

// Do: rate limit -> circuit breaker -> retry с экспоненциальным бэкоффом.
// Повторяются только BACKEND ошибки, остальные возвращаются сразу.
func (w *ReliabilityWrapper) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return domain.Backend("rate limit", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (any, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.Delay(w.cfg.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()

			callErr := fn(tCtx)
			if callErr != nil && !domain.IsRetryable(callErr) {
				return retry.Unrecoverable(callErr)
			}
			return callErr
		})
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.Backend(fmt.Sprintf("%s circuit breaker", w.cfg.Name), err)
		}
		return err
	}
	return nil
}

func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}
