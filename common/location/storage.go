package location

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/pkg/errors"
)

var (
	// ErrNotExist is returned when the storage file doesn't exist.
	// For a store this means "new, empty store", not a failure.
	ErrNotExist = errors.New("location: storage file does not exist")

	// ErrReadOnly is returned when writing or deleting a location
	// that doesn't support it.
	ErrReadOnly = errors.New("location: location is read-only")
)

// FileMode is the permission of storage files created by Write.
const FileMode os.FileMode = 0o600

// maxResponseSize bounds what Read accepts from a non-file location.
const maxResponseSize = 64 << 20

// Storage reads and writes storage files. File locations go through a
// virtual filesystem; http and https locations are fetched with an
// HTTP client and are read-only.
type Storage struct {
	fs     vfs.FileSystem
	client *http.Client
	log    logr.Logger
}

// An Option configures a Storage.
type Option func(*Storage)

// WithHTTPClient sets the client used for non-file locations.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Storage) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Storage) { s.log = log }
}

// NewStorage returns a Storage over fs; a nil fs selects the
// operating system's filesystem.
func NewStorage(fs vfs.FileSystem, opts ...Option) *Storage {
	if fs == nil {
		fs = osfs.New()
	}
	s := &Storage{
		fs:     fs,
		client: http.DefaultClient,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileSystem returns the filesystem backing file locations.
func (s *Storage) FileSystem() vfs.FileSystem {
	return s.fs
}

// Read returns the content of the storage file. A missing file yields
// ErrNotExist.
func (s *Storage) Read(ctx context.Context, loc Location) ([]byte, error) {
	if loc.IsZero() {
		return nil, errors.New("location: no location")
	}

	if loc.IsFile() {
		data, err := vfs.ReadFile(s.fs, loc.Path())
		if vfs.IsErrNotExist(err) {
			return nil, ErrNotExist
		} else if err != nil {
			return nil, errors.Wrapf(err, "cannot read %s", loc)
		}
		return data, nil
	}

	return s.fetch(ctx, loc)
}

func (s *Storage) fetch(ctx context.Context, loc Location) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.Path(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build request for %s", loc)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot fetch %s", loc)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotExist
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("cannot fetch %s: %s", loc, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", loc)
	}
	if len(data) > maxResponseSize {
		return nil, errors.Errorf("%s is larger than %d bytes", loc, maxResponseSize)
	}
	return data, nil
}

// Exists reports whether the storage file exists. Non-file locations
// are assumed to exist.
func (s *Storage) Exists(loc Location) (bool, error) {
	if !loc.IsFile() {
		return true, nil
	}
	return vfs.FileExists(s.fs, loc.Path())
}

// Delete removes the storage file.
func (s *Storage) Delete(loc Location) error {
	if !loc.IsFile() {
		return ErrReadOnly
	}

	err := s.fs.Remove(loc.Path())
	if vfs.IsErrNotExist(err) {
		return ErrNotExist
	}
	return errors.Wrapf(err, "cannot delete %s", loc)
}

// Write atomically replaces the content of the storage file: the data
// is written to a temporary file in the same directory which is then
// renamed over the target. Either step is retried once if it hits a
// transient lock conflict. On failure the previous content is left in
// place.
func (s *Storage) Write(loc Location, data []byte) error {
	if !loc.IsFile() {
		return ErrReadOnly
	}

	path := loc.Path()
	dir, base := vfs.Split(s.fs, path)
	if dir != "" {
		if err := s.fs.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "cannot create directory for %s", loc)
		}
	}

	tmp := "." + base + "." + uuid.NewString() + ".tmp"
	if dir != "" {
		tmp = vfs.Join(s.fs, dir, tmp)
	}
	err := retryTransient(s.log, func() error { return s.writeTemp(tmp, data) })
	if err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrapf(err, "cannot write temporary file for %s", loc)
	}

	err = retryTransient(s.log, func() error { return s.fs.Rename(tmp, path) })
	if err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrapf(err, "cannot replace %s", loc)
	}

	s.log.V(1).Info("wrote storage file", "location", loc.String(), "bytes", len(data))
	return nil
}

func (s *Storage) writeTemp(tmp string, data []byte) error {
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileMode)
	if err != nil {
		return err
	}

	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// IsTransient reports whether err is a lock conflict worth a single
// retry.
var IsTransient = func(err error) bool {
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ETXTBSY)
}

func retryTransient(log logr.Logger, op func() error) error {
	err := op()
	if err != nil && IsTransient(err) {
		log.V(1).Info("retrying after transient failure", "error", err.Error())
		err = op()
	}
	return err
}

var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

// Lock acquires the process-wide lock for loc and returns the
// function releasing it. The lock serialises writers of the same
// location within this process; it offers nothing across processes.
func Lock(loc Location) (unlock func()) {
	locksMu.Lock()
	mu, ok := locks[loc.String()]
	if !ok {
		mu = &sync.Mutex{}
		locks[loc.String()] = mu
	}
	locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
