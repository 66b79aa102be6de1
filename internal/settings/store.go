// Package settings persists the inference endpoint URL across sessions.
package settings

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/logging"
)

const (
	// Key is the storage key holding the endpoint URL.
	Key = "snapclassify.endpoint_url"
	// DefaultEndpoint is used when nothing has been persisted.
	DefaultEndpoint = "http://localhost:8000/predict"
)

// ErrNotFound is returned by a PersistentStore for an absent key.
var ErrNotFound = errors.New("settings: key not found")

// PersistentStore is durable client-local key/value storage.
type PersistentStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Store holds the endpoint in memory and writes it through to a PersistentStore.
type Store struct {
	backend  PersistentStore
	fallback string
	logger   *zap.Logger

	mu  sync.RWMutex
	url string
}

// NewStore creates a store. An empty fallback selects DefaultEndpoint.
func NewStore(backend PersistentStore, fallback string, logger *zap.Logger) *Store {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultEndpoint
	}
	return &Store{
		backend:  backend,
		fallback: fallback,
		logger:   logger.Named("settings"),
		url:      fallback,
	}
}

// Load reads the persisted endpoint into memory and returns it, or the fallback
// when the value is absent, blank or unreadable.
func (s *Store) Load(ctx context.Context) string {
	url := s.fallback
	value, err := s.backend.Get(ctx, Key)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Info("no endpoint persisted, using default", zap.String("url", url))
	case err != nil:
		s.logger.Warn("failed to read persisted endpoint, using default",
			zap.Error(err), zap.String("operation", logging.OperationOf(err)))
	case strings.TrimSpace(value) == "":
		s.logger.Warn("persisted endpoint is blank, using default")
	default:
		url = strings.TrimSpace(value)
	}

	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return url
}

// URL returns the endpoint held in memory.
func (s *Store) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Save persists url synchronously and, once written, makes it the working value.
// The URL syntax is not checked.
func (s *Store) Save(ctx context.Context, url string) error {
	if err := s.backend.Set(ctx, Key, url); err != nil {
		wrapped := logging.NewOperationError("settings.save", "", err)
		s.logger.Error("failed to persist endpoint", zap.Error(wrapped))
		return wrapped
	}

	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	s.logger.Info("endpoint saved", zap.String("url", url))
	return nil
}
