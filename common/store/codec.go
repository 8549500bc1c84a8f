package store

import (
	"bytes"
	"crypto/sha256"

	"github.com/chrisrueger/equinox/common/tlv"
)

// Magic opens every encoded store.
const Magic = "EQSP"

// FormatVersion is the version written by Encode. Entries carry
// their crypto and password provider IDs from version 1 on.
const FormatVersion uint16 = 1

const flagEncrypted uint8 = 1 << 0

func corrupt(reason string, err error) error {
	return &CorruptStoreError{Reason: reason, Err: err}
}

// Encode serialises the tree. Every node is written, parents before
// children, so Decode can rebuild empty intermediate nodes.
func Encode(t *Tree) ([]byte, error) {
	enc := tlv.NewFixedEncoder(encodedSize(t))
	if err := enc.Encode(FormatVersion); err != nil {
		return nil, err
	}
	if err := enc.Encode(uint32(t.NodeCount())); err != nil {
		return nil, err
	}

	err := t.walk(func(path string, n *node) error {
		if err := enc.Encode(path); err != nil {
			return err
		}
		if err := enc.Encode(uint32(len(n.entries))); err != nil {
			return err
		}

		for _, key := range sortedKeys(n.entries) {
			e := n.entries[key]

			var flags uint8
			if e.Encrypted {
				flags |= flagEncrypted
			}

			for _, v := range []interface{}{key, flags, e.Provider, e.PasswordProvider, e.Value} {
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		enc.Zero()
		return nil, err
	}

	out := make([]byte, 0, len(Magic)+enc.Length()+tlv.HeaderLength+sha256.Size)
	out = append(out, Magic...)
	out = append(out, enc.Bytes()...)
	enc.Zero()

	sum := sha256.Sum256(out)
	trailer := tlv.NewFixedEncoder(sha256.Size, 1)
	if err := trailer.Encode(sum[:]); err != nil {
		return nil, err
	}
	return append(out, trailer.Bytes()...), nil
}

// encodedSize returns the data length and record count of t's
// encoding, so the encoder's buffer is allocated once.
func encodedSize(t *Tree) (length int, records int) {
	length, records = 2+4, 2
	t.walk(func(path string, n *node) error {
		length += len(path) + 4
		records += 2
		for key, e := range n.entries {
			length += len(key) + 1 + len(e.Provider) + len(e.PasswordProvider) + len(e.Value)
			records += 5
		}
		return nil
	})
	return length, records
}

// Decode parses an encoded store. Empty input decodes to an empty
// tree. Any other malformed input fails with a *CorruptStoreError.
func Decode(in []byte) (*Tree, error) {
	t := NewTree()
	if len(in) == 0 {
		return t, nil
	}

	if len(in) < len(Magic) || string(in[:len(Magic)]) != Magic {
		return nil, corrupt("bad magic", nil)
	}

	if len(in) < len(Magic)+tlv.HeaderLength+sha256.Size {
		return nil, corrupt("truncated", nil)
	}

	bodyEnd := len(in) - tlv.HeaderLength - sha256.Size
	var sum []byte
	if err := tlv.NewDecoder(in[bodyEnd:]).Decode(&sum); err != nil {
		return nil, corrupt("missing checksum", err)
	}
	want := sha256.Sum256(in[:bodyEnd])
	if !bytes.Equal(sum, want[:]) {
		return nil, corrupt("checksum mismatch", nil)
	}

	dec := tlv.NewDecoder(in[len(Magic):bodyEnd])

	var version uint16
	if err := dec.Decode(&version); err != nil {
		return nil, corrupt("reading version", err)
	}
	if version != FormatVersion {
		return nil, corrupt("unsupported format version", nil)
	}

	var count uint32
	if err := dec.Decode(&count); err != nil {
		return nil, corrupt("reading node count", err)
	}

	seen := map[string]bool{}
	for i := uint32(0); i < count; i++ {
		if err := decodeNode(dec, t, seen); err != nil {
			return nil, err
		}
	}

	if dec.Length() != 0 {
		return nil, corrupt("trailing data", nil)
	}
	if !seen[RootPath] {
		return nil, corrupt("missing root node", nil)
	}
	return t, nil
}

func decodeNode(dec *tlv.Decoder, t *Tree, seen map[string]bool) error {
	var path string
	if err := dec.Decode(&path); err != nil {
		return corrupt("reading node path", err)
	}

	names, err := splitPath(path)
	if err != nil {
		return corrupt("invalid node path", err)
	}
	if seen[path] {
		return corrupt("duplicate node "+path, nil)
	}
	if len(names) > 0 && !seen[pathOf(names[:len(names)-1])] {
		return corrupt("node "+path+" precedes its parent", nil)
	}
	seen[path] = true

	n, _, err := t.create(path)
	if err != nil {
		return corrupt("invalid node path", err)
	}

	var entries uint32
	if err = dec.Decode(&entries); err != nil {
		return corrupt("reading entry count", err)
	}

	for i := uint32(0); i < entries; i++ {
		var (
			key   string
			flags uint8
			e     Entry
		)

		if err = dec.Decode(&key); err != nil {
			return corrupt("reading key", err)
		}
		if key == "" {
			return corrupt("empty key in "+path, nil)
		}
		if _, ok := n.entries[key]; ok {
			return corrupt("duplicate key "+key+" in "+path, nil)
		}

		if err = dec.Decode(&flags); err != nil {
			return corrupt("reading flags", err)
		}
		if flags&^flagEncrypted != 0 {
			return corrupt("unknown entry flags", nil)
		}
		e.Encrypted = flags&flagEncrypted != 0

		if err = dec.Decode(&e.Provider); err != nil {
			return corrupt("reading crypto provider", err)
		}
		if e.Encrypted && e.Provider == "" {
			return corrupt("encrypted entry "+key+" in "+path+" has no provider", nil)
		}

		if err = dec.Decode(&e.PasswordProvider); err != nil {
			return corrupt("reading password provider", err)
		}
		if err = dec.Decode(&e.Value); err != nil {
			return corrupt("reading value", err)
		}

		n.entries[key] = e
	}
	return nil
}
