package passwd

import (
	"context"
	"os"

	"github.com/chrisrueger/equinox/common/util"
	"github.com/pkg/errors"
)

type staticProvider struct {
	id       string
	password []byte
}

// NewStatic returns a provider that always answers with password.
func NewStatic(id string, password []byte) Provider {
	return &staticProvider{id: id, password: util.Dup(password)}
}

func (p *staticProvider) ID() string { return p.id }

func (p *staticProvider) Password(ctx context.Context, nodePath string) ([]byte, error) {
	return util.Dup(p.password), nil
}

// DefaultEnvVar is the variable read by the environment provider
// unless another is named.
const DefaultEnvVar = "EQUINOX_SECURE_STORAGE_PASSWORD"

type envProvider struct {
	id  string
	key string
}

// NewEnv returns a provider reading the password from the environment
// variable key each time it is asked. An unset or empty variable
// yields ErrNoProvider.
func NewEnv(id, key string) Provider {
	if key == "" {
		key = DefaultEnvVar
	}
	return &envProvider{id: id, key: key}
}

func (p *envProvider) ID() string { return p.id }

func (p *envProvider) Password(ctx context.Context, nodePath string) ([]byte, error) {
	v := os.Getenv(p.key)
	if v == "" {
		return nil, errors.Wrapf(ErrNoProvider, "%s is not set", p.key)
	}
	return []byte(v), nil
}
