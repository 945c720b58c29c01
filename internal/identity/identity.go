// Package identity decides which user a tool call acts on.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/danieldreier/mcp-lumi/internal/storage"
	"go.uber.org/zap"
)

// EnvVars are checked in order for a configured default user.
var EnvVars = []string{
	"LUMI_DEFAULT_USER_ID",
	"DEFAULT_USER_ID",
	"MCP_DEFAULT_USER_ID",
	"SUPABASE_DEFAULT_USER_ID",
}

// ErrUnresolved is returned when no user id could be determined.
var ErrUnresolved = errors.New("No userId provided and a default user could not be resolved. " +
	"Pass userId explicitly or set LUMI_DEFAULT_USER_ID.")

// Memo caches one value. It is safe for concurrent use.
type Memo struct {
	mu    sync.Mutex
	value string
}

// GetOrCompute returns the cached value, calling compute to fill it when empty.
// A failed compute leaves the memo empty.
func (m *Memo) GetOrCompute(compute func() (string, error)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.value != "" {
		return m.value, nil
	}
	v, err := compute()
	if err != nil {
		return "", err
	}
	m.value = v
	return v, nil
}

// Get returns the cached value, or "" when empty.
func (m *Memo) Get() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// Reset clears the memo.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = ""
}

// UserLookup is the part of storage the resolver needs.
type UserLookup interface {
	FirstUserID(ctx context.Context) (string, error)
}

// Resolver maps an optional explicit id to a user id.
type Resolver struct {
	users  UserLookup
	memo   *Memo
	getenv func(string) string
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGetenv replaces os.Getenv, mainly for tests.
func WithGetenv(getenv func(string) string) Option {
	return func(r *Resolver) { r.getenv = getenv }
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver. The memo should live as long as the server.
func NewResolver(users UserLookup, memo *Memo, opts ...Option) *Resolver {
	r := &Resolver{
		users:  users,
		memo:   memo,
		getenv: os.Getenv,
		logger: zap.NewNop(),
	}
	if r.memo == nil {
		r.memo = &Memo{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns, in order: the trimmed explicit id, the memoized default,
// the first configured environment variable, or the earliest created user.
func (r *Resolver) Resolve(ctx context.Context, explicitID string) (string, error) {
	if id := strings.TrimSpace(explicitID); id != "" {
		return id, nil
	}
	return r.memo.GetOrCompute(func() (string, error) {
		for _, name := range EnvVars {
			if v := strings.TrimSpace(r.getenv(name)); v != "" {
				r.logger.Debug("Resolved default user from environment", zap.String("var", name))
				return v, nil
			}
		}
		id, err := r.users.FirstUserID(ctx)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				r.logger.Warn("Looking up earliest user failed", zap.Error(err))
				return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
			}
			return "", ErrUnresolved
		}
		if strings.TrimSpace(id) == "" {
			return "", ErrUnresolved
		}
		r.logger.Info("Resolved default user from earliest user row", zap.String("user_id", id))
		return id, nil
	})
}
