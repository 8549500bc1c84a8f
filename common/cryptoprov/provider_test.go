package cryptoprov

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/chrisrueger/equinox/common/secret"
	"github.com/chrisrueger/equinox/common/util"
)

var (
	password = []byte("correct horse battery staple")
	message  = []byte("do not go gentle into that good night")
)

func testProviders() []Provider {
	return []Provider{
		NewScryptSecretbox(secret.ScryptInteractive),
		NewPBKDF2AESGCM(),
		NewArgon2XChaCha(),
	}
}

func TestRoundTrip(t *testing.T) {
	for _, p := range testProviders() {
		ct, err := p.Encrypt("/acct", message, password)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}

		if bytes.Contains(ct, message) {
			t.Fatalf("%s: ciphertext contains the plaintext", p.ID())
		}

		pt, err := p.Decrypt("/acct", ct, password)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}

		if !bytes.Equal(pt, message) {
			t.Fatalf("%s: decrypted plaintext doesn't match original", p.ID())
		}
	}
}

func TestEmptyPlaintext(t *testing.T) {
	for _, p := range testProviders() {
		ct, err := p.Encrypt("/", []byte{}, password)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}

		pt, err := p.Decrypt("/", ct, password)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}

		if pt == nil || len(pt) != 0 {
			t.Fatalf("%s: expected an empty, non-nil plaintext", p.ID())
		}
	}
}

func TestWrongPassword(t *testing.T) {
	for _, p := range testProviders() {
		ct, err := p.Encrypt("/acct", message, password)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}

		pt, err := p.Decrypt("/acct", ct, []byte("wrong"))
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("%s: expected %v, have %v", p.ID(), ErrAuthentication, err)
		}

		if pt != nil {
			t.Fatalf("%s: a failed decryption returned data", p.ID())
		}
	}
}

func TestCrossPathSubstitution(t *testing.T) {
	for _, p := range testProviders() {
		ct, err := p.Encrypt("/a", message, password)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}

		if _, err = p.Decrypt("/b", ct, password); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("%s: ciphertext for /a decrypted under /b (%v)", p.ID(), err)
		}
	}
}

func TestTamperedCiphertext(t *testing.T) {
	for _, p := range testProviders() {
		ct, err := p.Encrypt("/acct", message, password)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}

		for _, bad := range [][]byte{
			nil,
			ct[:10],
			ct[:len(ct)-1],
			append(util.Dup(ct[:len(ct)-1]), ct[len(ct)-1]^0x80),
		} {
			if _, err = p.Decrypt("/acct", bad, password); !errors.Is(err, ErrAuthentication) {
				t.Fatalf("%s: expected %v with a damaged ciphertext, have %v",
					p.ID(), ErrAuthentication, err)
			}
		}
	}
}

func TestPRNGFailure(t *testing.T) {
	util.SetPRNG(&bytes.Buffer{})
	defer util.SetPRNG(rand.Reader)

	for _, p := range testProviders() {
		if _, err := p.Encrypt("/acct", message, password); err == nil {
			t.Fatalf("%s: encrypt should fail with bad PRNG", p.ID())
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	ids := r.IDs()
	if len(ids) != 3 {
		t.Fatalf("cryptoprov: expected 3 built-in providers, have %v", ids)
	}

	def, err := r.Default()
	if err != nil {
		t.Fatalf("%v", err)
	}
	if def.ID() != ScryptSecretboxID {
		t.Fatalf("cryptoprov: expected default %s, have %s", ScryptSecretboxID, def.ID())
	}

	p, err := r.Lookup("")
	if err != nil || p.ID() != ScryptSecretboxID {
		t.Fatalf("cryptoprov: empty lookup should select the default (%v)", err)
	}

	if _, err = r.Lookup("rot13"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("cryptoprov: expected %v, have %v", ErrUnknownProvider, err)
	} else if !strings.Contains(err.Error(), `"rot13"`) {
		t.Fatalf("cryptoprov: error should name the provider: %v", err)
	}

	if err = r.SetDefault("rot13"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("cryptoprov: expected %v, have %v", ErrUnknownProvider, err)
	}

	if err = r.SetDefault(Argon2XChaChaID); err != nil {
		t.Fatalf("%v", err)
	}
	def, _ = r.Default()
	if def.ID() != Argon2XChaChaID {
		t.Fatalf("cryptoprov: default wasn't changed")
	}
}

func TestEmptyRegistry(t *testing.T) {
	r := NewEmptyRegistry()
	if _, err := r.Default(); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("cryptoprov: expected %v, have %v", ErrUnknownProvider, err)
	}

	r.Register(NewPBKDF2AESGCM())
	def, err := r.Default()
	if err != nil {
		t.Fatalf("%v", err)
	}
	if def.ID() != PBKDF2AESGCMID {
		t.Fatalf("cryptoprov: first registered provider should be the default")
	}
}
