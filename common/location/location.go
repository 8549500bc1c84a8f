// Package location resolves where the secure preferences file lives
// and performs the I/O on it.
//
// Locations are URLs, but only file locations support writing and
// deletion; any other scheme is read-only. File paths are never
// percent-encoded: "file:/home/a user/x" names the file "/home/a
// user/x", spaces and all, and String gives the same text back.
package location

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DefaultFileName is the name of the storage file in the default
// locations.
const DefaultFileName = "secure_preferences.equinox"

const schemeFile = "file"

// ErrNoDefaultLocation is returned when neither a home directory nor
// a file configuration location is known.
var ErrNoDefaultLocation = errors.New("location: unable to determine a default storage location")

// A Location identifies a storage file. The zero value is invalid.
type Location struct {
	scheme string

	// path holds the raw platform path for file locations and the
	// full URL text otherwise.
	path string
}

// FromPath returns the file location for a platform path. The path is
// used as is.
func FromPath(path string) Location {
	return Location{scheme: schemeFile, path: path}
}

// Parse reads a location. Strings without a scheme, and strings whose
// "scheme" is a single letter (a Windows drive), are taken as file
// paths. For file URLs everything after "file:" (and an optional
// "//host" authority) is the path, verbatim.
func Parse(s string) (Location, error) {
	if s == "" {
		return Location{}, errors.New("location: empty location")
	}

	i := strings.Index(s, ":")
	if i <= 1 || !validScheme(s[:i]) {
		return FromPath(s), nil
	}

	scheme := strings.ToLower(s[:i])
	if scheme != schemeFile {
		u, err := url.Parse(s)
		if err != nil {
			return Location{}, errors.Wrapf(err, "location: invalid URL %q", s)
		}
		if u.Host == "" {
			return Location{}, errors.Errorf("location: URL %q has no host", s)
		}
		return Location{scheme: scheme, path: s}, nil
	}

	rest := s[i+1:]
	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return Location{}, errors.Errorf("location: file URL %q has no path", s)
		}
		rest = rest[slash:]
	}
	if rest == "" {
		return Location{}, errors.Errorf("location: file URL %q has no path", s)
	}
	return FromPath(rest), nil
}

func validScheme(s string) bool {
	for i, c := range s {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// IsZero reports whether l is the zero Location.
func (l Location) IsZero() bool {
	return l.scheme == ""
}

// IsFile reports whether l is a file location.
func (l Location) IsFile() bool {
	return l.scheme == schemeFile
}

// Scheme returns the URL scheme in lower case.
func (l Location) Scheme() string {
	return l.scheme
}

// Path returns the platform path of a file location, or the URL text
// of any other location.
func (l Location) Path() string {
	return l.path
}

func (l Location) String() string {
	if l.IsFile() {
		return "file:" + l.path
	}
	return l.path
}

// A Resolver determines the default location of the storage file.
type Resolver struct {
	// Home is the user's home directory; empty when unknown.
	Home string

	// Config is the configuration area of the installation; the
	// zero Location when unknown.
	Config Location
}

// DefaultLocation returns the storage file in the user's home
// directory or, failing that, in a file configuration location.
func (r Resolver) DefaultLocation() (Location, error) {
	if r.Home != "" {
		return FromPath(filepath.Join(r.Home, DefaultFileName)), nil
	}

	if r.Config.IsFile() {
		return FromPath(filepath.Join(r.Config.Path(), DefaultFileName)), nil
	}
	return Location{}, ErrNoDefaultLocation
}
