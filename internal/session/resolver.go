package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resolver hands out a stable chat-session id per principal.
type Resolver struct {
	store Store
	ttl   time.Duration
}

// NewResolver creates a resolver. ttl refreshes on every lookup; zero means no expiry.
func NewResolver(store Store, ttl time.Duration) *Resolver {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Resolver{store: store, ttl: ttl}
}

// SessionID returns the principal's chat-session id, creating one on first use.
func (r *Resolver) SessionID(ctx context.Context, principal string) (string, error) {
	principal = strings.ToLower(strings.TrimSpace(principal))
	if principal == "" {
		return "", fmt.Errorf("session: principal is required")
	}
	key := "chat:" + principal
	id, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		id = uuid.NewString()
	}
	if err := r.store.Put(ctx, key, id, r.ttl); err != nil {
		return "", err
	}
	return id, nil
}

// Reset forgets the principal's chat session so the next turn starts fresh.
func (r *Resolver) Reset(ctx context.Context, principal string) (string, error) {
	principal = strings.ToLower(strings.TrimSpace(principal))
	if principal == "" {
		return "", fmt.Errorf("session: principal is required")
	}
	id := uuid.NewString()
	if err := r.store.Put(ctx, "chat:"+principal, id, r.ttl); err != nil {
		return "", err
	}
	return id, nil
}
