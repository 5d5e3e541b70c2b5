package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker in front of a receiver endpoint.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig trips after five consecutive failures and half-opens
// after thirty seconds.
var DefaultBreakerConfig = BreakerConfig{
	MaxRequests:         1,
	Interval:            time.Minute,
	Timeout:             30 * time.Second,
	ConsecutiveFailures: 5,
}

// HTTPReceiver posts the notice as JSON to a receiver endpoint. The response
// body is returned verbatim on a 2xx status.
type HTTPReceiver struct {
	url     string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPReceiver builds a client for the endpoint at url.
func NewHTTPReceiver(name, url string, timeout time.Duration, cfg BreakerConfig) *HTTPReceiver {
	settings := gobreaker.Settings{
		Name:        "receiver-" + name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
	}
	return &HTTPReceiver{
		url:     url,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// OnTransfer implements Receiver.
func (r *HTTPReceiver) OnTransfer(ctx context.Context, notice Notice) ([]byte, error) {
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		agent := fiber.Post(r.url)
		agent.JSON(notice)
		if timeout > 0 {
			agent.Timeout(timeout)
		}
		status, body, errs := agent.Bytes()
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
			return nil, fmt.Errorf("receiver %s answered %d", r.url, status)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("receiver %s unavailable: %w", r.url, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

// State reports the breaker state: closed, half-open or open.
func (r *HTTPReceiver) State() string {
	return r.breaker.State().String()
}
