package passwd

import (
	"context"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/chrisrueger/equinox/common/util"
)

// A Cache remembers the password of the provider it wraps, so the
// user is asked once per session. The password is held in a memguard
// enclave, encrypted while at rest in memory.
type Cache struct {
	Provider

	mu      sync.Mutex
	enclave *memguard.Enclave
}

// NewCache wraps p.
func NewCache(p Provider) *Cache {
	return &Cache{Provider: p}
}

// Password implements Provider. Concurrent requests are serialised so
// that the wrapped provider is asked at most once.
func (c *Cache) Password(ctx context.Context, nodePath string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enclave != nil {
		buf, err := c.enclave.Open()
		if err == nil {
			defer buf.Destroy()
			return util.Dup(buf.Bytes()), nil
		}
		c.enclave = nil
	}

	password, err := c.Provider.Password(ctx, nodePath)
	if err != nil {
		return nil, err
	}

	if len(password) > 0 {
		// NewEnclave wipes its argument.
		c.enclave = memguard.NewEnclave(util.Dup(password))
	}
	return password, nil
}

// Cached reports whether a password is cached.
func (c *Cache) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enclave != nil
}

// Clear forgets the cached password.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enclave = nil
}
