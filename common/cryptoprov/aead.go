package cryptoprov

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"github.com/chrisrueger/equinox/common/util"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2AESGCMID identifies values sealed with a PBKDF2 key and
	// AES-256-GCM.
	PBKDF2AESGCMID = "pbkdf2-aes256gcm"

	// Argon2XChaChaID identifies values sealed with an Argon2id key
	// and XChaCha20-Poly1305.
	Argon2XChaChaID = "argon2id-xchacha20poly1305"
)

const (
	aeadKeySize  = 32
	aeadSaltSize = 32
	pbkdf2Iter   = 20000

	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// aeadProvider seals values as salt || nonce || ciphertext, with the
// node path as associated data.
type aeadProvider struct {
	id        string
	deriveKey func(password, salt []byte) []byte
	newAEAD   func(key []byte) (cipher.AEAD, error)
}

// NewPBKDF2AESGCM returns the provider deriving a key with
// PBKDF2-SHA256 and encrypting with AES-256-GCM.
func NewPBKDF2AESGCM() Provider {
	return &aeadProvider{
		id: PBKDF2AESGCMID,
		deriveKey: func(password, salt []byte) []byte {
			return pbkdf2.Key(password, salt, pbkdf2Iter, aeadKeySize, sha256.New)
		},
		newAEAD: newGCM,
	}
}

// NewArgon2XChaCha returns the provider deriving a key with Argon2id
// and encrypting with XChaCha20-Poly1305.
func NewArgon2XChaCha() Provider {
	return &aeadProvider{
		id: Argon2XChaChaID,
		deriveKey: func(password, salt []byte) []byte {
			return argon2.IDKey(password, salt, argon2Time, argon2Memory, argon2Threads, aeadKeySize)
		},
		newAEAD: chacha20poly1305.NewX,
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create new aes block cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create new gcm cipher")
	}
	return gcm, nil
}

func (p *aeadProvider) ID() string { return p.id }

func (p *aeadProvider) aead(password, salt []byte) (cipher.AEAD, error) {
	key := p.deriveKey(password, salt)
	defer util.Zero(key)
	return p.newAEAD(key)
}

func (p *aeadProvider) Encrypt(nodePath string, plaintext, password []byte) ([]byte, error) {
	salt := util.RandBytes(aeadSaltSize)
	if salt == nil {
		return nil, errors.New("cannot generate salt")
	}

	aead, err := p.aead(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := util.RandBytes(aead.NonceSize())
	if nonce == nil {
		return nil, errors.New("cannot generate nonce")
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(nodePath)), nil
}

func (p *aeadProvider) Decrypt(nodePath string, ciphertext, password []byte) ([]byte, error) {
	if len(ciphertext) < aeadSaltSize {
		return nil, ErrAuthentication
	}

	salt := ciphertext[:aeadSaltSize]
	aead, err := p.aead(password, salt)
	if err != nil {
		return nil, err
	}

	rest := ciphertext[aeadSaltSize:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrAuthentication
	}

	nonce := rest[:aead.NonceSize()]
	out, err := aead.Open(nil, nonce, rest[aead.NonceSize():], []byte(nodePath))
	if err != nil {
		return nil, ErrAuthentication
	}
	return nonNil(out), nil
}
