package ratelimit

import "context"

// RateLimiter throttles outbound registry lookups per scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}

// NopLimiter admits every call. Used when no Redis backend is configured.
type NopLimiter struct{}

func (NopLimiter) Allow(ctx context.Context, scope string) (bool, error) { return true, nil }

func (NopLimiter) Wait(ctx context.Context, scope string) error { return nil }
