// Package platform holds the process-level state of the secure
// storage system: options, debug flags, logging, the configuration
// location, and the stores opened so far. A Context is built with New
// and owned by its caller, who starts and stops it; there is no
// global instance.
package platform

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/chrisrueger/equinox/common/cryptoprov"
	"github.com/chrisrueger/equinox/common/location"
	"github.com/chrisrueger/equinox/common/passwd"
	"github.com/chrisrueger/equinox/common/store"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNotStarted is returned when stores are requested from a context
// that isn't running.
var ErrNotStarted = errors.New("platform: context not started")

// EnvProviderID identifies the environment password provider
// registered by default.
const EnvProviderID = "env"

// Config describes a Context. Every field is optional.
type Config struct {
	// Logger receives the context's messages; the default
	// discards them.
	Logger logr.Logger

	// FileSystem backs file locations and the options file; nil
	// selects the operating system's filesystem.
	FileSystem vfs.FileSystem

	// HTTPClient fetches non-file locations.
	HTTPClient *http.Client

	// OptionsFile names a YAML options file on FileSystem, read
	// at Start. Its values override Options.
	OptionsFile string

	// Options holds options set in code.
	Options *Options

	// Home is the user's home directory. If empty, it is looked
	// up unless NoHome is set.
	Home   string
	NoHome bool

	// ConfigLocation is the configuration area of the
	// installation, used for the default store when there is no
	// home directory.
	ConfigLocation location.Location

	// Registerer receives the store metrics; nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	// Passwords selects password providers. If nil, an
	// environment provider and a cached terminal prompt are
	// registered, the prompt being the default.
	Passwords *passwd.Selector

	// Crypto holds the ciphers. If nil, the built-in ciphers are
	// registered using the configured Scrypt mode.
	Crypto *cryptoprov.Registry
}

// A Context is the running secure storage platform.
type Context struct {
	cfg     Config
	log     logr.Logger
	storage *location.Storage
	metrics *store.Metrics

	mu         sync.Mutex
	started    bool
	options    *Options
	debug      bool
	debugLogin bool
	crypto     *cryptoprov.Registry
	passwords  *passwd.Selector
	stores     map[string]*store.Store
}

// New builds a Context from cfg. It does no I/O; call Start before
// opening stores.
func New(cfg Config) *Context {
	log := cfg.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithName("equinox")

	if cfg.FileSystem == nil {
		cfg.FileSystem = osfs.New()
	}

	if cfg.Home == "" && !cfg.NoHome {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Home = home
		}
	}

	opts := []location.Option{location.WithLogger(log)}
	if cfg.HTTPClient != nil {
		opts = append(opts, location.WithHTTPClient(cfg.HTTPClient))
	}

	return &Context{
		cfg:     cfg,
		log:     log,
		storage: location.NewStorage(cfg.FileSystem, opts...),
		metrics: store.NewMetrics(cfg.Registerer),
		stores:  map[string]*store.Store{},
	}
}

// Start loads the options and sets up the password and crypto
// providers. Starting a running context does nothing.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	options := c.cfg.Options.merge(nil)
	if c.cfg.OptionsFile != "" {
		fileOptions, err := LoadOptions(c.cfg.FileSystem, c.cfg.OptionsFile)
		if err != nil {
			return err
		}
		options = options.merge(fileOptions)
	}

	c.options = options
	c.debug = options.Bool(OptionDebug, false)
	c.debugLogin = false
	if c.debug {
		c.debugLogin = options.Bool(OptionDebugLoginFramework, false)
	}

	c.crypto = c.cfg.Crypto
	if c.crypto == nil {
		c.crypto = cryptoprov.NewRegistryWithScryptMode(options.scryptMode())
	}
	if options.CryptoProvider != "" {
		if err := c.crypto.SetDefault(options.CryptoProvider); err != nil {
			return errors.Wrap(err, "platform: default crypto provider")
		}
	}

	c.passwords = c.cfg.Passwords
	if c.passwords == nil {
		c.passwords = passwd.NewSelector(c.log)
		c.passwords.Register(passwd.NewEnv(EnvProviderID, passwd.DefaultEnvVar), false)
		c.passwords.Register(passwd.NewCache(passwd.NewPrompt()), true)
	}
	if options.PasswordProvider != "" {
		if err := c.passwords.SetDefault(options.PasswordProvider); err != nil {
			return errors.Wrap(err, "platform: default password provider")
		}
	}

	c.started = true
	if c.debug {
		c.log.Info("secure storage started",
			"crypto", c.crypto.IDs(),
			"passwords", c.passwords.Default(),
			"loginFramework", c.debugLogin)
	}
	return nil
}

// Stop flushes and closes every store opened through the context and
// forgets cached passwords. Clean stores on read-only locations are
// closed without flushing; a read-only store holding changes fails
// with location.ErrReadOnly. All failures are reported and every
// store is dropped from the context.
func (c *Context) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	var result error
	for key, s := range c.stores {
		if err := closeStore(ctx, s); err != nil {
			result = multierror.Append(result, err)
			c.LogError("failed to save secure storage", err)
			_ = s.Close(ctx, false)
		}
		delete(c.stores, key)
	}

	c.passwords.ClearCaches()
	c.started = false
	if c.debug {
		c.log.Info("secure storage stopped")
	}
	return result
}

// Debug reports whether the debug option is on.
func (c *Context) Debug() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

// DebugLoginFramework reports whether login framework debugging is
// on. It is never on unless Debug is.
func (c *Context) DebugLoginFramework() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugLogin
}

// BooleanOption returns the named option, or def if the context isn't
// running or the option isn't set.
func (c *Context) BooleanOption(name string, def bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return def
	}
	return c.options.Bool(name, def)
}

// ConfigLocation returns the configuration location, which may be
// the zero Location.
func (c *Context) ConfigLocation() location.Location {
	return c.cfg.ConfigLocation
}

// DefaultLocation returns where the default store lives.
func (c *Context) DefaultLocation() (location.Location, error) {
	r := location.Resolver{Home: c.cfg.Home, Config: c.cfg.ConfigLocation}
	return r.DefaultLocation()
}

// Storage returns the storage shared by the context's stores.
func (c *Context) Storage() *location.Storage {
	return c.storage
}

// Passwords returns the password provider selector; it is nil until
// the context starts.
func (c *Context) Passwords() *passwd.Selector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passwords
}

// Crypto returns the cipher registry; it is nil until the context
// starts.
func (c *Context) Crypto() *cryptoprov.Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crypto
}

// OpenStore returns the store at loc, opening it on first use. While
// it stays open, every call for the same location returns the same
// store.
func (c *Context) OpenStore(ctx context.Context, loc location.Location) (*store.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, ErrNotStarted
	}

	key := loc.String()
	if s, ok := c.stores[key]; ok && !s.Closed() {
		return s, nil
	}

	s, err := store.Open(ctx, loc,
		store.WithStorage(c.storage),
		store.WithCryptoRegistry(c.crypto),
		store.WithPasswordSelector(c.passwords),
		store.WithLogger(c.log.WithName("store")),
		store.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}

	c.stores[key] = s
	if c.debug {
		c.log.Info("opened secure storage", "location", key, "readOnly", s.ReadOnly())
	}
	return s, nil
}

// OpenDefault opens the store at the default location.
func (c *Context) OpenDefault(ctx context.Context) (*store.Store, error) {
	loc, err := c.DefaultLocation()
	if err != nil {
		return nil, err
	}
	return c.OpenStore(ctx, loc)
}

// CloseStore flushes and closes the store at loc if the context has
// it open. If the flush fails, or the store holds changes its
// location can't take, the store stays open.
func (c *Context) CloseStore(ctx context.Context, loc location.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := loc.String()
	s, ok := c.stores[key]
	if !ok {
		return nil
	}

	if err := closeStore(ctx, s); err != nil {
		return err
	}
	delete(c.stores, key)
	return nil
}

// closeStore flushes and closes s. Unsaved changes on a read-only
// store are an error, and the store is left open.
func closeStore(ctx context.Context, s *store.Store) error {
	if !s.ReadOnly() {
		return s.Close(ctx, true)
	}
	if s.Dirty() {
		return &store.IOError{Op: "close", Location: s.Location().String(), Err: location.ErrReadOnly}
	}
	return s.Close(ctx, false)
}

// LogError records an error.
func (c *Context) LogError(msg string, err error) {
	c.log.Error(err, msg)
}

// LogMessage records an informational message.
func (c *Context) LogMessage(msg string) {
	c.log.Info(msg)
}
