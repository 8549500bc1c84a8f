// Package tlv implements a tag-length-value encoding scheme for use in
// packing flat data structures with a fixed format. Bytes are
// encoded in big-endian format. Currently supports serialising the
// integer types, byte slices and strings.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// TagUint8 indicates a single byte.
	TagUint8 byte = iota + 1

	// TagInt8 indicates a signed byte.
	TagInt8

	// TagBytes indicates a variable length byte sequence.
	TagBytes

	// TagInt16 indicates a 16-bit signed integer.
	TagInt16

	// TagUint16 indicates a 16-bit unsigned integer.
	TagUint16

	// TagInt32 indicates a 32-bit signed integer.
	TagInt32

	// TagUint32 indicates a 32-bit unsigned integer.
	TagUint32

	// TagInt64 indicates a 64-bit signed integer.
	TagInt64

	// TagUint64 indicates a 64-bit unsigned integer.
	TagUint64

	// TagString indicates a variable length UTF-8 string. Strings
	// are not validated; they carry raw bytes like TagBytes.
	TagString
)

// HeaderLength is the per-record overhead: one tag byte and a
// four-byte length.
const HeaderLength = 5

// MaxLength is the largest value length the encoder accepts.
const MaxLength = 1<<31 - 1

// Encoder is used to serialise values.
type Encoder struct {
	buf []byte
}

// Bytes returns the current data in the encoder.
func (enc *Encoder) Bytes() []byte {
	return enc.buf[:]
}

// Length returns the length of the encoded data.
func (enc *Encoder) Length() int {
	return len(enc.buf)
}

// Zero wipes the encoder's state and resets the encoder.
func (enc *Encoder) Zero() {
	l := len(enc.buf)
	for i := 0; i < l; i++ {
		enc.buf[i] ^= enc.buf[i]
	}

	enc.buf = nil
}

// NewFixedEncoder creates a new encoder with a fixed initial size.
func NewFixedEncoder(dataLength int, numRecords int) *Encoder {
	dataLength += (numRecords * HeaderLength)
	return &Encoder{
		buf: make([]byte, 0, dataLength),
	}
}

func (enc *Encoder) header(tag byte, length int) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(length))
	enc.buf = append(enc.buf, tag)
	enc.buf = append(enc.buf, l[:]...)
}

// Encode writes a value into the TLV.
func (enc *Encoder) Encode(v interface{}) error {
	switch v := v.(type) {
	case int8:
		enc.header(TagInt8, 1)
		enc.buf = append(enc.buf, byte(v))
	case uint8:
		enc.header(TagUint8, 1)
		enc.buf = append(enc.buf, v)
	case []byte:
		if len(v) > MaxLength {
			return errors.New("tlv: value too long")
		}
		enc.header(TagBytes, len(v))
		enc.buf = append(enc.buf, v...)
	case string:
		if len(v) > MaxLength {
			return errors.New("tlv: value too long")
		}
		enc.header(TagString, len(v))
		enc.buf = append(enc.buf, v...)
	case int16:
		enc.header(TagInt16, 2)
		enc.buf = binary.BigEndian.AppendUint16(enc.buf, uint16(v))
	case uint16:
		enc.header(TagUint16, 2)
		enc.buf = binary.BigEndian.AppendUint16(enc.buf, v)
	case int32:
		enc.header(TagInt32, 4)
		enc.buf = binary.BigEndian.AppendUint32(enc.buf, uint32(v))
	case uint32:
		enc.header(TagUint32, 4)
		enc.buf = binary.BigEndian.AppendUint32(enc.buf, v)
	case int64:
		enc.header(TagInt64, 8)
		enc.buf = binary.BigEndian.AppendUint64(enc.buf, uint64(v))
	case uint64:
		enc.header(TagUint64, 8)
		enc.buf = binary.BigEndian.AppendUint64(enc.buf, v)
	default:
		return errors.New("tlv: unknown value")
	}

	return nil
}

// A Decoder parses a TLV-encoded structure.
type Decoder struct {
	buf []byte
}

// NewDecoder creates a decoder from a byte slice.
func NewDecoder(in []byte) *Decoder {
	return &Decoder{buf: in}
}

// fixedLength holds the only valid length for each fixed-size tag.
var fixedLength = map[byte]int{
	TagUint8:  1,
	TagInt8:   1,
	TagInt16:  2,
	TagUint16: 2,
	TagInt32:  4,
	TagUint32: 4,
	TagInt64:  8,
	TagUint64: 8,
}

func checkTag(have, want byte) error {
	if have != want {
		return fmt.Errorf("tlv: invalid tag %d for data type", have)
	}
	return nil
}

// Decode reads a value from the TLV. On failure the decoder is left
// positioned at the record it failed to decode.
func (dec *Decoder) Decode(v interface{}) error {
	buf := dec.buf

	if len(buf) < HeaderLength {
		return errors.New("tlv: invalid TLV-encoded data")
	}

	t := buf[0]
	l := binary.BigEndian.Uint32(buf[1:HeaderLength])
	if uint64(l) > uint64(len(buf[HeaderLength:])) {
		return errors.New("tlv: invalid data length")
	}

	if want, ok := fixedLength[t]; ok && int(l) != want {
		return fmt.Errorf("tlv: invalid length %d for tag %d", l, t)
	}

	if v == nil {
		return errors.New("tlv: cannot decode into nil pointer")
	}

	buf = buf[HeaderLength:]

	var err error
	switch v := v.(type) {
	case *int8:
		if err = checkTag(t, TagInt8); err == nil {
			*v = int8(buf[0])
		}
	case *uint8:
		if err = checkTag(t, TagUint8); err == nil {
			*v = buf[0]
		}
	case *[]byte:
		if err = checkTag(t, TagBytes); err == nil {
			*v = make([]byte, int(l))
			copy(*v, buf)
		}
	case *string:
		if err = checkTag(t, TagString); err == nil {
			*v = string(buf[:l])
		}
	case *int16:
		if err = checkTag(t, TagInt16); err == nil {
			*v = int16(binary.BigEndian.Uint16(buf[:2]))
		}
	case *uint16:
		if err = checkTag(t, TagUint16); err == nil {
			*v = binary.BigEndian.Uint16(buf[:2])
		}
	case *int32:
		if err = checkTag(t, TagInt32); err == nil {
			*v = int32(binary.BigEndian.Uint32(buf[:4]))
		}
	case *uint32:
		if err = checkTag(t, TagUint32); err == nil {
			*v = binary.BigEndian.Uint32(buf[:4])
		}
	case *int64:
		if err = checkTag(t, TagInt64); err == nil {
			*v = int64(binary.BigEndian.Uint64(buf[:8]))
		}
	case *uint64:
		if err = checkTag(t, TagUint64); err == nil {
			*v = binary.BigEndian.Uint64(buf[:8])
		}
	default:
		return fmt.Errorf("tlv: cannot decode unknown tag %d", t)
	}

	if err != nil {
		return err
	}

	dec.buf = buf[int(l):]
	return nil
}

// Length contains the length of the remaining encoded data in the
// decoder.
func (dec *Decoder) Length() int {
	return len(dec.buf)
}
