// Package cryptoprov contains the pluggable password-based ciphers
// used to protect individual preference values. Every provider binds
// the node path of the value into the encryption, so a ciphertext
// copied from one node to another no longer decrypts.
package cryptoprov

import (
	"sort"
	"sync"

	"github.com/chrisrueger/equinox/common/secret"
	"github.com/pkg/errors"
)

// ErrAuthentication is returned by Decrypt when a ciphertext fails to
// authenticate: the password is wrong, the node path differs from the
// one used to encrypt, or the ciphertext was modified.
var ErrAuthentication = errors.New("cryptoprov: authentication failed")

// ErrUnknownProvider is returned when a provider ID isn't registered.
var ErrUnknownProvider = errors.New("cryptoprov: unknown provider")

// A Provider performs password-based authenticated encryption bound
// to a node path.
type Provider interface {
	// ID returns the identifier recorded alongside every value
	// the provider encrypts.
	ID() string

	// Encrypt seals plaintext under password for nodePath.
	Encrypt(nodePath string, plaintext, password []byte) ([]byte, error)

	// Decrypt recovers the plaintext, returning ErrAuthentication
	// if the ciphertext does not authenticate.
	Decrypt(nodePath string, ciphertext, password []byte) ([]byte, error)
}

// A Registry maps provider IDs to providers and designates one of
// them as the default. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	def       string
}

// NewRegistry returns a registry holding the built-in providers, with
// the Scrypt/secretbox provider as the default.
func NewRegistry() *Registry {
	return NewRegistryWithScryptMode(secret.ScryptStandard)
}

// NewRegistryWithScryptMode is NewRegistry with the Scrypt parameters
// used for new ciphertexts selected by m.
func NewRegistryWithScryptMode(m secret.ScryptMode) *Registry {
	r := NewEmptyRegistry()
	r.Register(NewScryptSecretbox(m))
	r.Register(NewPBKDF2AESGCM())
	r.Register(NewArgon2XChaCha())
	r.def = ScryptSecretboxID
	return r
}

// NewEmptyRegistry returns a registry with no providers.
func NewEmptyRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds p, replacing any provider with the same ID. The first
// provider registered becomes the default.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.ID()] = p
	if r.def == "" {
		r.def = p.ID()
	}
}

// SetDefault makes the named provider the default.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[id]; !ok {
		return errors.Wrapf(ErrUnknownProvider, "provider %q", id)
	}
	r.def = id
	return nil
}

// Default returns the default provider.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[r.def]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Lookup returns the provider registered under id; an empty id
// selects the default.
func (r *Registry) Lookup(id string) (Provider, error) {
	if id == "" {
		return r.Default()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "provider %q", id)
	}
	return p, nil
}

// IDs lists the registered provider IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
