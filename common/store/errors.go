package store

import (
	"fmt"

	"github.com/chrisrueger/equinox/common/passwd"
)

// An IOError reports that the backing medium could not be read or
// written.
type IOError struct {
	Op       string
	Location string
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// A CorruptStoreError reports malformed persisted content. Location
// is empty when the error comes straight from Decode.
type CorruptStoreError struct {
	Location string
	Reason   string
	Err      error
}

func (e *CorruptStoreError) Error() string {
	msg := "store: corrupt store"
	if e.Location != "" {
		msg += " " + e.Location
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// A WrongPasswordError reports that an encrypted value could not be
// authenticated with the password supplied.
type WrongPasswordError struct {
	Path     string
	Key      string
	Provider string
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("store: wrong password for %s (key %q, provider %s)",
		e.Path, e.Key, e.Provider)
}

// A NoPasswordProviderError reports that no password could be
// obtained for an encrypted value.
type NoPasswordProviderError struct {
	Path             string
	Key              string
	PasswordProvider string
	Err              error
}

func (e *NoPasswordProviderError) Error() string {
	id := e.PasswordProvider
	if id == "" {
		id = "<default>"
	}
	return fmt.Sprintf("store: no password for %s (key %q, password provider %s): %v",
		e.Path, e.Key, id, e.Err)
}

func (e *NoPasswordProviderError) Unwrap() error { return e.Err }

// A PasswordPromptCancelledError reports that password entry was
// cancelled.
type PasswordPromptCancelledError struct {
	Path string
	Key  string
}

func (e *PasswordPromptCancelledError) Error() string {
	return fmt.Sprintf("store: password entry cancelled for %s (key %q)", e.Path, e.Key)
}

func (e *PasswordPromptCancelledError) Unwrap() error { return passwd.ErrCancelled }

// A NotFoundError reports a missing node or key. Key is empty when
// the node itself is missing.
type NotFoundError struct {
	Path string
	Key  string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: node %s not found", e.Path)
	}
	return fmt.Sprintf("store: key %q not found in %s", e.Key, e.Path)
}

// An UnknownProviderError reports that the cipher named by an entry,
// or requested by a caller, is not registered.
type UnknownProviderError struct {
	Path     string
	Key      string
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("store: unknown crypto provider %q for %s (key %q)",
		e.Provider, e.Path, e.Key)
}

// A StoreClosedError reports an operation on a closed store.
type StoreClosedError struct {
	Op string
}

func (e *StoreClosedError) Error() string {
	return "store: " + e.Op + " on closed store"
}
