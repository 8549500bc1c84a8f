package store

import (
	"context"
	"sync"

	"github.com/chrisrueger/equinox/common/cryptoprov"
	"github.com/chrisrueger/equinox/common/location"
	"github.com/chrisrueger/equinox/common/passwd"
	"github.com/chrisrueger/equinox/common/util"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// A Store is an open secure preferences store. It is safe for
// concurrent use.
type Store struct {
	loc       location.Location
	storage   *location.Storage
	crypto    *cryptoprov.Registry
	passwords *passwd.Selector
	log       logr.Logger
	metrics   *Metrics
	readOnly  bool

	// flushMu serialises Flush and Close; it is always taken
	// before mu.
	flushMu sync.Mutex

	mu     sync.RWMutex
	tree   *Tree
	dirty  bool
	gen    uint64
	closed bool
}

// An Option configures a Store at Open.
type Option func(*Store)

// WithStorage sets the storage used to load and flush the store.
func WithStorage(st *location.Storage) Option {
	return func(s *Store) { s.storage = st }
}

// WithCryptoRegistry sets the ciphers available to the store.
func WithCryptoRegistry(r *cryptoprov.Registry) Option {
	return func(s *Store) { s.crypto = r }
}

// WithPasswordSelector sets where passwords come from when a caller
// doesn't supply one.
func WithPasswordSelector(sel *passwd.Selector) Option {
	return func(s *Store) { s.passwords = sel }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithMetrics sets the counters updated by the store.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithReadOnly makes every Flush fail. Changes stay in memory.
func WithReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// PutOptions controls how Put stores a value.
type PutOptions struct {
	// Encrypt requests encryption of the value.
	Encrypt bool

	// Provider names the cipher; empty selects the registry's
	// default.
	Provider string

	// PasswordProvider names the password provider consulted when
	// Password is nil; empty selects the selector's default.
	PasswordProvider string

	// Password, if set, is used instead of asking a password
	// provider. It is not retained.
	Password []byte
}

// Open loads the store at loc. A missing file yields an empty store
// bound to loc.
func Open(ctx context.Context, loc location.Location, opts ...Option) (*Store, error) {
	s := &Store{
		loc: loc,
		log: logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.storage == nil {
		s.storage = location.NewStorage(nil, location.WithLogger(s.log))
	}
	if s.crypto == nil {
		s.crypto = cryptoprov.NewRegistry()
	}
	if s.passwords == nil {
		s.passwords = passwd.NewSelector(s.log)
	}

	data, err := s.storage.Read(ctx, loc)
	switch {
	case errors.Is(err, location.ErrNotExist):
		s.log.V(1).Info("no storage file, starting empty store", "location", loc.String())
		s.tree = NewTree()
	case err != nil:
		return nil, &IOError{Op: "open", Location: loc.String(), Err: err}
	default:
		s.tree, err = Decode(data)
		util.Zero(data)
		if err != nil {
			var cerr *CorruptStoreError
			if errors.As(err, &cerr) {
				cerr.Location = loc.String()
			}
			return nil, err
		}
		s.log.V(1).Info("loaded store", "location", loc.String(), "nodes", s.tree.NodeCount())
	}

	s.metrics.loaded()
	return s, nil
}

// Location returns the location backing the store.
func (s *Store) Location() location.Location {
	return s.loc
}

// Dirty reports whether the store holds changes not yet flushed.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Closed reports whether the store has been closed.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ReadOnly reports whether flushing the store will fail because its
// location can't be written.
func (s *Store) ReadOnly() bool {
	return s.readOnly || !s.loc.IsFile()
}

func checkPathKey(path, key string) error {
	if _, err := splitPath(path); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

// view runs fn with the tree read-locked.
func (s *Store) view(op string, fn func(t *Tree) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &StoreClosedError{Op: op}
	}
	return fn(s.tree)
}

// update runs fn with the tree locked for writing. The store is
// marked dirty if fn reports a change.
func (s *Store) update(op string, fn func(t *Tree) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StoreClosedError{Op: op}
	}

	changed, err := fn(s.tree)
	if changed {
		s.dirty = true
		s.gen++
	}
	return err
}

// password obtains the password for a value from the selector,
// translating selector failures into store errors.
func (s *Store) password(ctx context.Context, path, key, id string) ([]byte, string, error) {
	pw, answered, err := s.passwords.Password(ctx, id, path)
	switch {
	case err == nil:
		return pw, answered, nil
	case errors.Is(err, passwd.ErrCancelled):
		return nil, "", &PasswordPromptCancelledError{Path: path, Key: key}
	default:
		return nil, "", &NoPasswordProviderError{
			Path:             path,
			Key:              key,
			PasswordProvider: id,
			Err:              err,
		}
	}
}

// Get returns the value of key at path, decrypting it if needed. For
// an encrypted value, password is used if non-nil; otherwise the
// password provider recorded with the value is asked for one. A
// provider whose password fails to authenticate forgets it, so a
// retry asks again.
func (s *Store) Get(ctx context.Context, path, key string, password []byte) ([]byte, error) {
	if err := checkPathKey(path, key); err != nil {
		return nil, err
	}

	var (
		e  Entry
		ok bool
	)
	err := s.view("get", func(t *Tree) error {
		e, ok = t.Get(path, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Path: path, Key: key}
	}
	if !e.Encrypted {
		return e.Value, nil
	}

	p, err := s.crypto.Lookup(e.Provider)
	if err != nil {
		return nil, &UnknownProviderError{Path: path, Key: key, Provider: e.Provider}
	}

	var answered string
	if password == nil {
		password, answered, err = s.password(ctx, path, key, e.PasswordProvider)
		if err != nil {
			return nil, err
		}
		defer util.Zero(password)
	}

	out, err := p.Decrypt(path, e.Value, password)
	if err != nil {
		if errors.Is(err, cryptoprov.ErrAuthentication) {
			s.metrics.decryptFailed()
			s.log.V(1).Info("value failed to authenticate", "path", path, "key", key, "provider", p.ID())
			if answered != "" {
				s.passwords.Forget(answered)
			}
			return nil, &WrongPasswordError{Path: path, Key: key, Provider: p.ID()}
		}
		return nil, errors.Wrapf(err, "store: decrypting %s (key %q)", path, key)
	}
	return out, nil
}

// Put stores value under key at path, creating the node and its
// ancestors as needed. The value is copied.
func (s *Store) Put(ctx context.Context, path, key string, value []byte, opts PutOptions) error {
	if err := checkPathKey(path, key); err != nil {
		return err
	}

	// Fail fast on a closed store before anyone is prompted.
	if err := s.view("put", func(*Tree) error { return nil }); err != nil {
		return err
	}

	e := Entry{Value: value}
	if opts.Encrypt {
		p, err := s.crypto.Lookup(opts.Provider)
		if err != nil {
			return &UnknownProviderError{Path: path, Key: key, Provider: opts.Provider}
		}

		password := opts.Password
		answered := opts.PasswordProvider
		if password == nil {
			password, answered, err = s.password(ctx, path, key, opts.PasswordProvider)
			if err != nil {
				return err
			}
			defer util.Zero(password)
		}

		ct, err := p.Encrypt(path, value, password)
		if err != nil {
			return errors.Wrapf(err, "store: encrypting %s (key %q)", path, key)
		}

		e = Entry{
			Value:            ct,
			Encrypted:        true,
			Provider:         p.ID(),
			PasswordProvider: answered,
		}
	}

	return s.update("put", func(t *Tree) (bool, error) {
		return true, t.Put(path, key, e)
	})
}

// Remove deletes key at path.
func (s *Store) Remove(path, key string) error {
	if err := checkPathKey(path, key); err != nil {
		return err
	}

	return s.update("remove", func(t *Tree) (bool, error) {
		if !t.Remove(path, key) {
			return false, &NotFoundError{Path: path, Key: key}
		}
		return true, nil
	})
}

// RemoveNode deletes the node at path and everything below it.
// Removing the root empties the store.
func (s *Store) RemoveNode(path string) error {
	if _, err := splitPath(path); err != nil {
		return err
	}

	return s.update("remove node", func(t *Tree) (bool, error) {
		if !t.RemoveNode(path) {
			return false, &NotFoundError{Path: path}
		}
		return true, nil
	})
}

// CreateNode creates the node at path and any missing ancestors.
func (s *Store) CreateNode(path string) error {
	return s.update("create node", func(t *Tree) (bool, error) {
		return t.CreateNode(path)
	})
}

// NodeExists reports whether the node at path exists.
func (s *Store) NodeExists(path string) (bool, error) {
	var ok bool
	err := s.view("node exists", func(t *Tree) error {
		ok = t.NodeExists(path)
		return nil
	})
	return ok, err
}

// Keys lists the keys at path in sorted order.
func (s *Store) Keys(path string) ([]string, error) {
	var keys []string
	err := s.view("keys", func(t *Tree) error {
		var ok bool
		if keys, ok = t.Keys(path); !ok {
			return &NotFoundError{Path: path}
		}
		return nil
	})
	return keys, err
}

// Children lists the names of the children of path in sorted order.
func (s *Store) Children(path string) ([]string, error) {
	var names []string
	err := s.view("children", func(t *Tree) error {
		var ok bool
		if names, ok = t.Children(path); !ok {
			return &NotFoundError{Path: path}
		}
		return nil
	})
	return names, err
}

// IsEncrypted reports whether the value of key at path is encrypted.
func (s *Store) IsEncrypted(path, key string) (bool, error) {
	var encrypted bool
	err := s.view("is encrypted", func(t *Tree) error {
		e, ok := t.Get(path, key)
		if !ok {
			return &NotFoundError{Path: path, Key: key}
		}
		encrypted = e.Encrypted
		util.Zero(e.Value)
		return nil
	})
	return encrypted, err
}

// Snapshot returns a copy of the tree as it stands. Encrypted values
// stay encrypted.
func (s *Store) Snapshot() (*Tree, error) {
	var t *Tree
	err := s.view("snapshot", func(tree *Tree) error {
		t = tree.Clone()
		return nil
	})
	return t, err
}

// Flush writes the store to its location if it has unflushed
// changes. The file is replaced atomically; if the write fails both
// the file and the in-memory store are left as they were.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.flush(ctx)
}

func (s *Store) flush(ctx context.Context) error {
	var (
		data  []byte
		gen   uint64
		dirty bool
	)
	err := s.view("flush", func(t *Tree) error {
		if dirty, gen = s.dirty, s.gen; !dirty {
			return nil
		}

		var err error
		data, err = Encode(t)
		return err
	})
	if err != nil {
		var closed *StoreClosedError
		if errors.As(err, &closed) {
			return err
		}
		return &IOError{Op: "flush", Location: s.loc.String(), Err: err}
	}
	if !dirty {
		return nil
	}
	defer util.Zero(data)

	if err = ctx.Err(); err != nil {
		return err
	}

	if s.readOnly {
		err = location.ErrReadOnly
	} else {
		unlock := location.Lock(s.loc)
		err = s.storage.Write(s.loc, data)
		unlock()
	}
	if err != nil {
		s.metrics.flushed(false)
		return &IOError{Op: "flush", Location: s.loc.String(), Err: err}
	}

	s.mu.Lock()
	if s.gen == gen {
		s.dirty = false
	}
	s.mu.Unlock()

	s.metrics.flushed(true)
	s.log.V(1).Info("flushed store", "location", s.loc.String(), "bytes", len(data))
	return nil
}

// Close releases the store, flushing it first if flush is set. If
// that flush fails the store stays open. Closing a closed store does
// nothing.
func (s *Store) Close(ctx context.Context, flush bool) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil
	}

	if flush {
		if err := s.flush(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.tree.Zero()
	s.tree = nil
	s.log.V(1).Info("closed store", "location", s.loc.String())
	return nil
}
