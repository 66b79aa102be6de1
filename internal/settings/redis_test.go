package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/logging"
)

type stubRedis struct {
	getValues []string
	getErrs   []error
	setErrs   []error
	setCalls  int
	lastTTL   time.Duration
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	var value string
	var err error
	if len(s.getValues) > 0 {
		value, s.getValues = s.getValues[0], s.getValues[1:]
	}
	if len(s.getErrs) > 0 {
		err, s.getErrs = s.getErrs[0], s.getErrs[1:]
	}
	return redis.NewStringResult(value, err)
}

func (s *stubRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	s.setCalls++
	s.lastTTL = expiration
	var err error
	if len(s.setErrs) > 0 {
		err, s.setErrs = s.setErrs[0], s.setErrs[1:]
	}
	return redis.NewStatusResult("OK", err)
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func testRedisStore(client RedisCommands) *RedisStore {
	store := NewRedisStore(client, zap.NewNop())
	store.retry = store.retry.WithBackoff(time.Millisecond, 2*time.Millisecond)
	return store
}

func TestRedisStoreMissingKey(t *testing.T) {
	store := testRedisStore(&stubRedis{getErrs: []error{redis.Nil}})

	if _, err := store.Get(context.Background(), Key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRetriesTransientSet(t *testing.T) {
	client := &stubRedis{setErrs: []error{transientRedisError{}}}
	store := testRedisStore(client)

	if err := store.Set(context.Background(), Key, "http://new/predict"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if client.setCalls != 2 {
		t.Fatalf("expected 2 set calls, got %d", client.setCalls)
	}
	if client.lastTTL != 0 {
		t.Fatalf("expected no expiry, got %v", client.lastTTL)
	}
}

func TestRedisStorePermanentErrorIsWrapped(t *testing.T) {
	client := &stubRedis{getErrs: []error{errors.New("WRONGTYPE")}}
	store := testRedisStore(client)

	_, err := store.Get(context.Background(), Key)
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "redis.get" {
		t.Fatalf("expected redis.get OperationError, got %v", err)
	}
}

func TestStoreOverRedisLoadsPersistedValue(t *testing.T) {
	client := &stubRedis{getValues: []string{"http://gpu-box:8000/predict"}}
	store := NewStore(testRedisStore(client), "", zap.NewNop())

	if got := store.Load(context.Background()); got != "http://gpu-box:8000/predict" {
		t.Fatalf("unexpected endpoint %q", got)
	}
}
