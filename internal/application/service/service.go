package service

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics records business outcomes
type Metrics interface {
	ObserveSubmission(outcome string)
	ObserveAction(action, outcome string)
	ObserveConversion(outcome string)
}

// Publisher hands domain events to the dispatcher after a successful commit
type Publisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// Outcome labels shared by metrics implementations
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeDenied   = "denied"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
)

type nopMetrics struct{}

func (nopMetrics) ObserveSubmission(string)     {}
func (nopMetrics) ObserveAction(string, string) {}
func (nopMetrics) ObserveConversion(string)     {}

// NopMetrics discards every observation
func NopMetrics() Metrics { return nopMetrics{} }

type nopPublisher struct{}

func (nopPublisher) DispatchAsync(context.Context, *event.Event) {}
