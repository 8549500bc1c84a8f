// Package passwd supplies the passwords protecting encrypted
// preference values. A Selector holds the available password
// providers and designates one of them as the default; the store asks
// the selector for a password whenever a caller doesn't supply one.
//
// Providers may interact with the user. Every request carries a
// context, and a cancelled context, like a user dismissing a prompt,
// yields ErrCancelled rather than a hang.
package passwd

import (
	"context"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

var (
	// ErrNoProvider is returned when no password provider is
	// registered under the requested ID, when no provider is
	// registered at all, or when a provider has no password to
	// give.
	ErrNoProvider = errors.New("passwd: no password provider")

	// ErrCancelled is returned when password entry is cancelled.
	ErrCancelled = errors.New("passwd: password entry cancelled")
)

// A Provider supplies passwords.
type Provider interface {
	// ID identifies the provider; it is recorded with values
	// encrypted under its password.
	ID() string

	// Password returns the password protecting values under
	// nodePath. The caller owns, and should zero, the result.
	Password(ctx context.Context, nodePath string) ([]byte, error)
}

// Info describes a registered provider.
type Info struct {
	ID      string
	Default bool
}

// A Selector maps provider IDs to providers. Once any provider is
// registered exactly one of them is the default. It is safe for
// concurrent use.
type Selector struct {
	mu        sync.RWMutex
	providers map[string]Provider
	def       string
	log       logr.Logger
}

// NewSelector returns an empty selector.
func NewSelector(log logr.Logger) *Selector {
	return &Selector{
		providers: map[string]Provider{},
		log:       log,
	}
}

// Register adds p. It becomes the default if isDefault is set or if
// it is the first provider registered.
func (s *Selector) Register(p Provider, isDefault bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers[p.ID()] = p
	if isDefault || s.def == "" {
		s.def = p.ID()
	}
	s.log.V(1).Info("registered password provider", "provider", p.ID(), "default", s.def == p.ID())
}

// Unregister removes the named provider. If it was the default, the
// first remaining provider in ID order takes over.
func (s *Selector) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return
	}
	clearCache(p)
	delete(s.providers, id)

	if s.def != id {
		return
	}
	s.def = ""
	if ids := s.sortedIDs(); len(ids) > 0 {
		s.def = ids[0]
	}
}

// SetDefault makes the named provider the default.
func (s *Selector) SetDefault(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[id]; !ok {
		return errors.Wrapf(ErrNoProvider, "cannot select %q", id)
	}
	s.def = id
	return nil
}

// Default returns the ID of the default provider, or the empty string
// if none is registered.
func (s *Selector) Default() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

func (s *Selector) sortedIDs() []string {
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List describes the registered providers in ID order.
func (s *Selector) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []Info
	for _, id := range s.sortedIDs() {
		infos = append(infos, Info{ID: id, Default: id == s.def})
	}
	return infos
}

func (s *Selector) lookup(id string) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		id = s.def
	}
	if id == "" {
		return nil, ErrNoProvider
	}

	p, ok := s.providers[id]
	if !ok {
		return nil, errors.Wrapf(ErrNoProvider, "no provider %q", id)
	}
	return p, nil
}

// Password asks the named provider, or the default provider if id is
// empty, for the password protecting nodePath. It returns the ID of
// the provider that answered.
func (s *Selector) Password(ctx context.Context, id, nodePath string) ([]byte, string, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, "", err
	}

	if ctx.Err() != nil {
		return nil, p.ID(), ErrCancelled
	}

	password, err := p.Password(ctx, nodePath)
	switch {
	case err == nil:
		return password, p.ID(), nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, p.ID(), errors.Wrap(ErrCancelled, err.Error())
	default:
		s.log.V(1).Info("password provider failed", "provider", p.ID(), "error", err.Error())
		return nil, p.ID(), err
	}
}

// ClearCaches forgets every cached password.
func (s *Selector) ClearCaches() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.providers {
		clearCache(p)
	}
}

// Forget drops the password cached by provider id, so the next
// request asks again. Unknown providers are ignored.
func (s *Selector) Forget(id string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.providers[id]; ok {
		clearCache(p)
	}
}

func clearCache(p Provider) {
	if c, ok := p.(interface{ Clear() }); ok {
		c.Clear()
	}
}
