package cryptoprov

import (
	"github.com/chrisrueger/equinox/common/secret"
)

// ScryptSecretboxID identifies values sealed by the Scrypt/secretbox
// provider.
const ScryptSecretboxID = "scrypt-secretbox"

type scryptSecretbox struct {
	mode secret.ScryptMode
}

// NewScryptSecretbox returns the provider that derives a key with
// Scrypt from the password, a random salt and the node path, and
// seals the value with NaCl's secretbox. The mode only affects
// encryption; ciphertexts record the mode they were sealed with.
func NewScryptSecretbox(m secret.ScryptMode) Provider {
	return &scryptSecretbox{mode: m}
}

func (p *scryptSecretbox) ID() string { return ScryptSecretboxID }

func (p *scryptSecretbox) Encrypt(nodePath string, plaintext, password []byte) ([]byte, error) {
	return secret.Seal(password, []byte(nodePath), plaintext, p.mode)
}

func (p *scryptSecretbox) Decrypt(nodePath string, ciphertext, password []byte) ([]byte, error) {
	out, err := secret.Open(password, []byte(nodePath), ciphertext)
	if err == secret.ErrDecrypt {
		return nil, ErrAuthentication
	} else if err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func nonNil(in []byte) []byte {
	if in == nil {
		return []byte{}
	}
	return in
}
