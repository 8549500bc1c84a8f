// Package secret contains utilities for encrypting and decrypting
// data with secret keys; it is aimed primarily at password-based
// encryption. Encryption keys are derived from Scrypt to obtain a key
// suitable for use with NaCl's secretbox (XSalsa20 and Poly1305).
//
// Sealed blobs carry the Scrypt mode they were produced with, so a
// blob sealed in interactive mode opens regardless of the mode the
// reader is configured for.
package secret

import (
	"errors"

	"github.com/chrisrueger/equinox/common/util"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// KeySize contains the size (in bytes) of a NaCl secretbox key.
const (
	KeySize   = 32
	SaltSize  = 32
	nonceSize = 24
)

var (
	// ErrDecrypt is returned when a sealed blob fails to
	// authenticate. A wrong passphrase, a wrong context and a
	// tampered blob are deliberately indistinguishable.
	ErrDecrypt = errors.New("secret: decryption failed")

	// ErrKeyDerivation is returned when Scrypt rejects its
	// parameters.
	ErrKeyDerivation = errors.New("secret: failed to derive key")

	// ErrRandom is returned when the PRNG cannot supply a salt or
	// nonce.
	ErrRandom = errors.New("secret: failed to read random data")
)

// ScryptMode selects a set of Scrypt parameters.
type ScryptMode uint8

const (
	// ScryptStandard uses 32768, 8, and 4 as the Scrypt parameters.
	ScryptStandard ScryptMode = iota

	// ScryptInteractive uses 16384, 8, and 1 as the Scrypt
	// parameters; it is suited to prompts where the user waits on
	// every derivation.
	ScryptInteractive

	scryptModeCount
)

type scryptParam struct {
	N int
	r int
	p int
}

var scryptParams = [scryptModeCount]scryptParam{
	ScryptStandard:    {32768, 8, 4},
	ScryptInteractive: {16384, 8, 1},
}

// Valid reports whether m names a known parameter set.
func (m ScryptMode) Valid() bool {
	return m < scryptModeCount
}

func (m ScryptMode) String() string {
	switch m {
	case ScryptStandard:
		return "standard"
	case ScryptInteractive:
		return "interactive"
	default:
		return "invalid"
	}
}

// ParseScryptMode maps "standard" and "interactive" to their modes.
func ParseScryptMode(s string) (ScryptMode, bool) {
	switch s {
	case "", "standard":
		return ScryptStandard, true
	case "interactive":
		return ScryptInteractive, true
	}
	return scryptModeCount, false
}

// DeriveKey applies Scrypt with the parameters selected by m to
// generate an encryption key from a passphrase and salt. It returns
// nil on failure.
func DeriveKey(passphrase []byte, salt []byte, m ScryptMode) *[KeySize]byte {
	if !m.Valid() {
		return nil
	}

	param := scryptParams[m]
	rawKey, err := scrypt.Key(passphrase, salt, param.N, param.r, param.p, KeySize)
	if err != nil {
		return nil
	}

	var key [KeySize]byte
	copy(key[:], rawKey)
	util.Zero(rawKey)
	return &key
}

// Encrypt generates a random nonce and encrypts the input using
// NaCl's secretbox package. The nonce is prepended to the ciphertext.
func Encrypt(key *[KeySize]byte, in []byte) ([]byte, bool) {
	var out = make([]byte, nonceSize)
	nonce := util.NewNonce()
	if nonce == nil {
		return nil, false
	}

	copy(out, nonce[:])
	out = secretbox.Seal(out, in, nonce, key)
	return out, true
}

// Decrypt extracts the nonce from the ciphertext, and attempts to
// decrypt with NaCl's secretbox.
func Decrypt(key *[KeySize]byte, in []byte) ([]byte, bool) {
	if len(in) < nonceSize {
		return nil, false
	}
	var nonce [nonceSize]byte
	copy(nonce[:], in)
	return secretbox.Open(nil, in[nonceSize:], &nonce, key)
}

// Overhead is the number of bytes Seal adds to its input.
const Overhead = 1 + SaltSize + nonceSize + secretbox.Overhead

// contextSalt binds context into the Scrypt salt; the result never
// aliases salt.
func contextSalt(salt, context []byte) []byte {
	out := make([]byte, 0, len(salt)+len(context))
	out = append(out, salt...)
	return append(out, context...)
}

// Seal encrypts in under a key derived from the passphrase, a fresh
// random salt and context. The same context must be presented to
// Open. The output is laid out as mode || salt || nonce || box.
func Seal(passphrase, context, in []byte, m ScryptMode) ([]byte, error) {
	if !m.Valid() {
		return nil, ErrKeyDerivation
	}

	salt := util.RandBytes(SaltSize)
	if salt == nil {
		return nil, ErrRandom
	}

	key := DeriveKey(passphrase, contextSalt(salt, context), m)
	if key == nil {
		return nil, ErrKeyDerivation
	}
	defer util.Zero(key[:])

	box, ok := Encrypt(key, in)
	if !ok {
		return nil, ErrRandom
	}

	out := make([]byte, 0, 1+SaltSize+len(box))
	out = append(out, byte(m))
	out = append(out, salt...)
	return append(out, box...), nil
}

// Open recovers the plaintext from a blob produced by Seal.
func Open(passphrase, context, in []byte) ([]byte, error) {
	if len(in) < Overhead {
		return nil, ErrDecrypt
	}

	m := ScryptMode(in[0])
	if !m.Valid() {
		return nil, ErrDecrypt
	}

	salt := in[1 : 1+SaltSize]
	key := DeriveKey(passphrase, contextSalt(salt, context), m)
	if key == nil {
		return nil, ErrKeyDerivation
	}
	defer util.Zero(key[:])

	out, ok := Decrypt(key, in[1+SaltSize:])
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}
