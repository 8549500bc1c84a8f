package passwd

import (
	"context"
	"encoding/base64"

	"github.com/chrisrueger/equinox/common/util"
	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

// KeyringID is the ID of the operating system keyring provider.
const KeyringID = "keyring"

const (
	keyringService = "equinox.secure.storage"
	keyringAccount = "master-password"

	generatedSize = 32
)

// KeyringProvider keeps a generated master password in the operating
// system's keyring (Keychain, Secret Service or Credential Manager).
// The first request generates and stores the password.
type KeyringProvider struct {
	Service string
	Account string
}

// NewKeyring returns a keyring provider using the default service and
// account names.
func NewKeyring() *KeyringProvider {
	return &KeyringProvider{Service: keyringService, Account: keyringAccount}
}

// ID implements Provider.
func (p *KeyringProvider) ID() string { return KeyringID }

// Password implements Provider.
func (p *KeyringProvider) Password(ctx context.Context, nodePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err := keyring.Get(p.Service, p.Account)
	if err == nil {
		return []byte(v), nil
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return nil, errors.Wrap(err, "cannot read keyring")
	}

	raw := util.RandBytes(generatedSize)
	if raw == nil {
		return nil, errors.New("cannot generate master password")
	}
	defer util.Zero(raw)

	v = base64.RawStdEncoding.EncodeToString(raw)
	if err = keyring.Set(p.Service, p.Account, v); err != nil {
		return nil, errors.Wrap(err, "cannot store master password in keyring")
	}
	return []byte(v), nil
}

// Reset removes the master password from the keyring. Values
// encrypted under it can no longer be decrypted.
func (p *KeyringProvider) Reset() error {
	err := keyring.Delete(p.Service, p.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
