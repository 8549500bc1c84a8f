package store

import (
	"strings"

	"github.com/pkg/errors"
)

// RootPath is the path of the root node.
const RootPath = "/"

var (
	// ErrInvalidPath is returned for paths that aren't absolute,
	// contain empty segments or end in a slash.
	ErrInvalidPath = errors.New("store: invalid node path")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("store: invalid key")
)

// splitPath returns the node names along path; the root has none.
func splitPath(path string) ([]string, error) {
	if path == RootPath {
		return nil, nil
	}

	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return nil, errors.Wrapf(ErrInvalidPath, "%q", path)
	}

	names := strings.Split(path[1:], "/")
	for _, name := range names {
		if name == "" {
			return nil, errors.Wrapf(ErrInvalidPath, "%q", path)
		}
	}
	return names, nil
}

// ValidPath reports whether path names a node.
func ValidPath(path string) bool {
	_, err := splitPath(path)
	return err == nil
}

// JoinPath returns the path of the child name under parent.
func JoinPath(parent, name string) string {
	if parent == RootPath {
		return RootPath + name
	}
	return parent + "/" + name
}
