package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBudgetExhausted reports that a generation call would exceed today's ceiling.
	ErrBudgetExhausted = errors.New("daily budget exhausted")
	// ErrMalformedDirective reports a generation response that is not a directive object.
	ErrMalformedDirective = errors.New("malformed directive")
	// ErrMissingPrompt reports a directive without a usable prompt field.
	ErrMissingPrompt = errors.New("directive is missing required field \"prompt\"")
	// ErrExitRequested is returned when a directive asks the engine to stop.
	ErrExitRequested = errors.New("exit requested by directive")
	// ErrTooManyInstances is returned at startup when the instance cap is reached.
	ErrTooManyInstances = errors.New("too many running instances")
	// ErrModelNotFound reports an unknown model name.
	ErrModelNotFound = errors.New("model not found")
)

// RateLimitError is returned by a backend that rejected a call for rate reasons.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: rate limited", e.Provider)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" Please try again in %.2fs.", e.RetryAfter.Seconds())
	}
	return msg
}
