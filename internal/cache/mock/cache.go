package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/provisioner/internal/cache"
)

// MockCache is an in-memory cache.Cache. Err, when set, fails every call.
type MockCache struct {
	mu      sync.Mutex
	values  map[string]string
	counter map[string]int64

	Err     error
	PingErr error
}

// NewMockCache returns an empty MockCache.
func NewMockCache() *MockCache {
	return &MockCache{values: make(map[string]string), counter: make(map[string]int64)}
}

func (c *MockCache) Delete(_ context.Context, key string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *MockCache) Ping(_ context.Context) error {
	if c.PingErr != nil {
		return c.PingErr
	}
	return c.Err
}

func (c *MockCache) SetRequestStatus(_ context.Context, requestID string, status string, _ time.Duration) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[cache.RequestStatusKey(requestID)] = status
	return nil
}

func (c *MockCache) GetRequestStatus(_ context.Context, requestID string) (string, bool, error) {
	if c.Err != nil {
		return "", false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[cache.RequestStatusKey(requestID)]
	return v, ok, nil
}

func (c *MockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter[key]++
	return c.counter[key], nil
}

// Compile-time check that MockCache implements Cache.
var _ cache.Cache = (*MockCache)(nil)
