package core

import (
	"context"
	"time"
)

// Event streams
const (
	StreamPayments     = "payments"
	StreamEntitlements = "entitlements"
	StreamAttempts     = "attempts"
)

// Event is a domain event published after a state change was persisted.
type Event struct {
	Stream     string      `json:"-"`
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	Data       interface{} `json:"data"`
	OccurredAt time.Time   `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Cache is a small key/value cache for read views. Values are JSON-encoded.
type Cache interface {
	// Get decodes the cached value into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
