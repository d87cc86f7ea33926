package segmented

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/transport"
)

type KeyFetchFunc func(ctx context.Context, uri string) ([]byte, error)

// KeyCache stores raw keys by URI for the lifetime of one session.
// Concurrent misses for the same URI share a single fetch.
type KeyCache struct {
	mu     sync.RWMutex
	keys   map[string][]byte
	closed bool

	group singleflight.Group
	fetch KeyFetchFunc
}

func NewKeyCache(fetch KeyFetchFunc) *KeyCache {
	return &KeyCache{
		keys:  map[string][]byte{},
		fetch: fetch,
	}
}

// HTTPKeyFetcher fetches keys with the session client.
func HTTPKeyFetcher(client *http.Client, attempts int) KeyFetchFunc {
	return func(ctx context.Context, uri string) ([]byte, error) {
		data, _, err := transport.GetWithRetry(ctx, client, uri, attempts)
		return data, err
	}
}

func (c *KeyCache) Get(ctx context.Context, uri string) ([]byte, error) {
	c.mu.RLock()
	key, ok := c.keys[uri]
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return nil, media.ErrSessionClosed
	}
	if ok {
		return key, nil
	}

	ch := c.group.DoChan(uri, func() (interface{}, error) {
		key, err := c.fetch(ctx, uri)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if !c.closed {
			c.keys[uri] = key
		}
		c.mu.Unlock()

		return key, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drops all keys, further lookups fail.
func (c *KeyCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.keys = map[string][]byte{}
}
