package client

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryPolicy controls how rate-limited requests are retried.
// Only ErrRateLimited is retried; every other failure is final.
type RetryPolicy struct {
	MaxRetries  int // Retries after the first attempt
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy returns 5 retries with 1.5s initial wait capped at 60s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  5,
		InitialWait: 1500 * time.Millisecond,
		MaxWait:     60 * time.Second,
	}
}

// RetryState is the state of one request's retry sequence
type RetryState struct {
	Attempt int           // Attempts made so far
	Wait    time.Duration // Wait before the next attempt, valid when !Done
	Done    bool
	Err     error // Terminal error, nil on success
}

// Backoff returns the wait after the given failed attempt (1-based):
// InitialWait * 2^attempt, capped at MaxWait.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	wait := float64(p.InitialWait) * math.Pow(2, float64(attempt))
	if wait > float64(p.MaxWait) || math.IsInf(wait, 0) {
		return p.MaxWait
	}
	return time.Duration(wait)
}

// Next advances the state with the outcome of the attempt just made
func (p RetryPolicy) Next(s RetryState, err error) RetryState {
	next := RetryState{Attempt: s.Attempt + 1}

	switch {
	case err == nil:
		next.Done = true
	case !errors.Is(err, ErrRateLimited):
		next.Done = true
		next.Err = err
	case next.Attempt > max(p.MaxRetries, 0):
		next.Done = true
		next.Err = fmt.Errorf("giving up after %d attempts: %w", next.Attempt, err)
	default:
		next.Wait = p.Backoff(next.Attempt)
	}
	return next
}
