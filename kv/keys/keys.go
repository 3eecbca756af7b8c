package keys

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Part tags for the tuple encoding. Tag order defines the
// type rank, so encoded keys compare the same way Compare
// does.
const (
	tagBytes  = 0x01
	tagString = 0x02
	tagInt    = 0x03
	tagFloat  = 0x04
	tagBool   = 0x05
)

// Part is one element of a composite key. The concrete
// types are Bytes, String, Int, Float and Bool, listed
// in type-rank order.
type Part interface {
	tag() byte
	encode(b []byte) []byte
}

// Bytes is a raw byte string key part
type Bytes []byte

// String is a UTF-8 string key part
type String string

// Int is a signed 64-bit integer key part
type Int int64

// Float is a double key part. Floats order by their
// IEEE-754 total order, not by the partial order of ==
// and <, so NaN keys have a stable position.
type Float float64

// Bool is a boolean key part. false sorts before true.
type Bool bool

func (p Bytes) tag() byte  { return tagBytes }
func (p String) tag() byte { return tagString }
func (p Int) tag() byte    { return tagInt }
func (p Float) tag() byte  { return tagFloat }
func (p Bool) tag() byte   { return tagBool }

// Key is an ordered sequence of parts
type Key []Part

// New constructs a key from its parts
func New(parts ...Part) Key {
	return Key(parts)
}

// Compare compares two keys part-wise
// -1 means a < b
// 1 means a > b
// 0 means a = b
// Parts of different types order by type rank. A key that
// is a strict prefix of another sorts first.
func Compare(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := comparePart(a[i], b[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}

	return 0
}

func comparePart(a, b Part) int {
	if a.tag() != b.tag() {
		if a.tag() < b.tag() {
			return -1
		}

		return 1
	}

	switch a := a.(type) {
	case Bytes:
		return bytes.Compare(a, b.(Bytes))
	case String:
		return bytes.Compare([]byte(a), []byte(b.(String)))
	case Int:
		return compareInt64(int64(a), int64(b.(Int)))
	case Float:
		return compareUint64(floatBits(float64(a)), floatBits(float64(b.(Float))))
	case Bool:
		return compareBool(bool(a), bool(b.(Bool)))
	}

	panic(fmt.Sprintf("unknown key part type %T", a))
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}

	return 0
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}

	return 0
}

func compareBool(a, b bool) int {
	switch {
	case !a && b:
		return -1
	case a && !b:
		return 1
	}

	return 0
}

// Covers returns true if key's parts start with exactly
// prefix's parts
func Covers(prefix, key Key) bool {
	if len(prefix) > len(key) {
		return false
	}

	for i := range prefix {
		if comparePart(prefix[i], key[i]) != 0 {
			return false
		}
	}

	return true
}

// Equal returns true if a and b have the same parts
func Equal(a, b Key) bool {
	return Compare(a, b) == 0
}

// floatBits maps a float64 onto a uint64 whose natural
// order matches the IEEE-754 total order of the input.
// Negative values have every bit flipped, non-negative
// values have only the sign bit flipped.
func floatBits(f float64) uint64 {
	bits := math.Float64bits(f)

	if bits&(1<<63) != 0 {
		return ^bits
	}

	return bits | (1 << 63)
}

func bitsToFloat(bits uint64) float64 {
	if bits&(1<<63) != 0 {
		return math.Float64frombits(bits &^ (1 << 63))
	}

	return math.Float64frombits(^bits)
}

// Encode encodes a key into its canonical binary form.
// Encoded keys compare bytewise the same way Compare
// orders the keys they encode, and the encoding of a key
// is a byte prefix of the encoding of every key it covers.
func Encode(key Key) []byte {
	var b []byte

	for _, part := range key {
		b = append(b, part.tag())
		b = part.encode(b)
	}

	return b
}

// EncodeString returns the canonical encoding of key as a
// string, suitable for use as a map key.
func EncodeString(key Key) string {
	return string(Encode(key))
}

func (p Bytes) encode(b []byte) []byte {
	return appendEscaped(b, p)
}

func (p String) encode(b []byte) []byte {
	return appendEscaped(b, []byte(p))
}

func (p Int) encode(b []byte) []byte {
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], uint64(p)^(1<<63))

	return append(b, buf[:]...)
}

func (p Float) encode(b []byte) []byte {
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], floatBits(float64(p)))

	return append(b, buf[:]...)
}

func (p Bool) encode(b []byte) []byte {
	if p {
		return append(b, 1)
	}

	return append(b, 0)
}

// Variable-length parts escape embedded zero bytes as
// 0x00 0xff and end with a bare 0x00 terminator. The
// terminator compares below every escaped byte, which
// keeps prefixes sorted first.
func appendEscaped(b, p []byte) []byte {
	for _, c := range p {
		if c == 0x00 {
			b = append(b, 0x00, 0xff)

			continue
		}

		b = append(b, c)
	}

	return append(b, 0x00)
}

// Decode decodes the canonical binary form of a key
func Decode(b []byte) (Key, error) {
	var key Key

	for len(b) > 0 {
		tag := b[0]
		b = b[1:]

		switch tag {
		case tagBytes, tagString:
			value, rest, err := decodeEscaped(b)

			if err != nil {
				return nil, err
			}

			if tag == tagBytes {
				key = append(key, Bytes(value))
			} else {
				key = append(key, String(value))
			}

			b = rest
		case tagInt:
			if len(b) < 8 {
				return nil, fmt.Errorf("truncated int part")
			}

			key = append(key, Int(int64(binary.BigEndian.Uint64(b[:8])^(1<<63))))
			b = b[8:]
		case tagFloat:
			if len(b) < 8 {
				return nil, fmt.Errorf("truncated float part")
			}

			key = append(key, Float(bitsToFloat(binary.BigEndian.Uint64(b[:8]))))
			b = b[8:]
		case tagBool:
			if len(b) < 1 {
				return nil, fmt.Errorf("truncated bool part")
			}

			key = append(key, Bool(b[0] != 0))
			b = b[1:]
		default:
			return nil, fmt.Errorf("unknown key part tag %#x", tag)
		}
	}

	return key, nil
}

func decodeEscaped(b []byte) ([]byte, []byte, error) {
	var value []byte

	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			value = append(value, b[i])

			continue
		}

		if i+1 < len(b) && b[i+1] == 0xff {
			value = append(value, 0x00)
			i++

			continue
		}

		return value, b[i+1:], nil
	}

	return nil, nil, fmt.Errorf("unterminated part")
}

// MarshalJSON encodes the key as the base64 form of its
// canonical encoding. This is the wire form of keys.
func (key Key) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", base64.StdEncoding.EncodeToString(Encode(key)))), nil
}

// UnmarshalJSON decodes the wire form of a key
func (key *Key) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*key = nil

		return nil
	}

	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("key is not a string")
	}

	raw, err := base64.StdEncoding.DecodeString(string(data[1 : len(data)-1]))

	if err != nil {
		return fmt.Errorf("could not decode key: %s", err)
	}

	k, err := Decode(raw)

	if err != nil {
		return fmt.Errorf("could not decode key: %s", err)
	}

	*key = k

	return nil
}

// String renders the key for logs and errors
func (key Key) String() string {
	var b bytes.Buffer

	b.WriteByte('[')

	for i, part := range key {
		if i > 0 {
			b.WriteByte(' ')
		}

		switch part := part.(type) {
		case Bytes:
			fmt.Fprintf(&b, "0x%x", []byte(part))
		case String:
			fmt.Fprintf(&b, "%q", string(part))
		default:
			fmt.Fprintf(&b, "%v", part)
		}
	}

	b.WriteByte(']')

	return b.String()
}
