// Package labels stores text labels: keyed, user-editable messages used for
// validation errors and UI text.
package labels

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kommetio/kommet-core/internal/types"
)

var (
	// ErrInvalidKey is returned when a label key is empty or contains
	// whitespace.
	ErrInvalidKey = errors.New("invalid text label key")

	// ErrNoSuchLabel is returned when a label key does not exist.
	ErrNoSuchLabel = errors.New("text label not found")
)

// TextLabel is a single keyed message.
type TextLabel struct {
	ID    types.KID
	Key   string
	Value string
}

// Store holds the labels of an environment. Reads go through an optional
// Redis cache; the in-memory map is the source of truth for each process.
type Store struct {
	mu     sync.RWMutex
	byKey  map[string]*TextLabel
	cache  *redis.Client
	ttl    time.Duration
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithRedisCache attaches a Redis cache for label lookups.
func WithRedisCache(client *redis.Client, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = client
		s.ttl = ttl
	}
}

// NewStore creates a label store.
func NewStore(envID types.KID, opts ...Option) *Store {
	s := &Store{
		byKey:  make(map[string]*TextLabel),
		ttl:    time.Hour,
		prefix: "labels:" + envID.String() + ":",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set creates or updates a label.
func (s *Store) Set(ctx context.Context, label *TextLabel) error {
	if label.Key == "" || strings.ContainsAny(label.Key, " \t\n") {
		return ErrInvalidKey
	}
	s.mu.Lock()
	s.byKey[label.Key] = label
	s.mu.Unlock()

	if s.cache != nil {
		// Cache errors are not fatal; the map still serves reads.
		s.cache.Set(ctx, s.prefix+label.Key, label.Value, s.ttl)
	}
	return nil
}

// Delete removes a label by key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.byKey[key]
	delete(s.byKey, key)
	s.mu.Unlock()
	if !ok {
		return ErrNoSuchLabel
	}
	if s.cache != nil {
		s.cache.Del(ctx, s.prefix+key)
	}
	return nil
}

// Get returns a label value by key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, s.prefix+key).Result(); err == nil {
			return v, nil
		}
	}
	s.mu.RLock()
	label, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNoSuchLabel
	}
	if s.cache != nil {
		s.cache.Set(ctx, s.prefix+key, label.Value, s.ttl)
	}
	return label.Value, nil
}

// Label implements the validation engine's message source.
func (s *Store) Label(key string) (string, bool) {
	v, err := s.Get(context.Background(), key)
	if err != nil {
		return "", false
	}
	return v, true
}

// All returns every label, for export.
func (s *Store) All() []*TextLabel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TextLabel, 0, len(s.byKey))
	for _, label := range s.byKey {
		out = append(out, label)
	}
	return out
}
