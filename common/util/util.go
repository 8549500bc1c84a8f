// Package util holds the small helpers shared by the secure storage
// packages and the secprefs and prefsrv programs: the release version,
// the terminal password prompt, randomness, and wiping secrets.
package util

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/gokyle/readpass"
)

// Version is the release of the secure storage tools, reported by
// secprefs --version and the server's /version route.
var Version = struct {
	Major int
	Minor int
	Patch int
	Label string
}{1, 0, 0, ""}

// VersionString renders Version as major.minor.patch plus the label.
func VersionString() string {
	return fmt.Sprintf("%d.%d.%d%s", Version.Major,
		Version.Minor, Version.Patch, Version.Label)
}

// PassPrompt shows its argument on the terminal and reads a password
// without echo. Tests swap it for a canned answer.
var PassPrompt = readpass.PasswordPromptBytes

// rng feeds salts, nonces and generated passwords.
var rng io.Reader = rand.Reader

// RandBytes returns size bytes read from the random source, or nil
// if the source comes up short.
func RandBytes(size int) []byte {
	p := make([]byte, size)
	if _, err := io.ReadFull(rng, p); err != nil {
		return nil
	}
	return p
}

// SetPRNG replaces the random source so tests can make it fail; nil
// restores crypto/rand.
func SetPRNG(r io.Reader) {
	if r == nil {
		r = rand.Reader
	}
	rng = r
}

// Zero overwrites in with zeroes. Passwords, derived keys and
// decrypted values are wiped this way once the store is done with
// them; copies the runtime made or pages the OS swapped out are
// beyond its reach.
func Zero(in []byte) {
	for i := range in {
		in[i] = 0
	}
}

// Dup copies in so the store never shares a value's backing array
// with its caller. A nil input yields a nil copy.
func Dup(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

// NonceSize is the length of a secretbox nonce.
const NonceSize = 24

// NewNonce returns a random secretbox nonce, or nil if the random
// source fails.
func NewNonce() *[NonceSize]byte {
	p := RandBytes(NonceSize)
	if p == nil {
		return nil
	}
	var nonce [NonceSize]byte
	copy(nonce[:], p)
	return &nonce
}

// Errorf writes a "[!]"-prefixed message to standard error, adding
// the trailing newline if m lacks one.
func Errorf(m string, args ...interface{}) {
	m = "[!] " + m
	if m[len(m)-1] != '\n' {
		m += "\n"
	}
	fmt.Fprintf(os.Stderr, m, args...)
}
