package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Get for an absent or expired key.
var ErrCacheMiss = errors.New("cache: key not found")

// Store is key/value access. Strings and byte slices are stored as-is, any
// other value as JSON.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get decodes the value into dest; a *string receives the raw value.
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error
	// MGet returns raw values for the keys present; missing keys are absent.
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
}

// Locker is a lease-based lock: TryLock succeeds for one holder until ttl
// passes or Unlock is called.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Service is implemented by the Redis and in-memory backends.
type Service interface {
	Store
	Locker
	Close() error
}

// Key joins parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// MGetTyped fetches keys and decodes each value into T. Entries that fail to
// decode are dropped like misses.
func MGetTyped[T any](ctx context.Context, s Store, keys ...string) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	raw, err := s.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		var item T
		if decode([]byte(v), &item) == nil {
			out[k] = item
		}
	}
	return out, nil
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	if s, ok := dest.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}
