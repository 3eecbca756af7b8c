package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

type valueKind int

const (
	kindLiteral valueKind = iota
	kindBigInt
	kindServerTime
)

// Value is a tagged wire value. It is one of three
// variants:
//
//   - a literal: any JSON value, carried through untouched
//   - a big integer: an arbitrary-precision integer, tagged
//     on the wire so precision survives the boundary
//   - the server-time placeholder: resolved to the store's
//     clock at evaluation time, not the client's
//
// The zero Value is the literal JSON null.
type Value struct {
	kind    valueKind
	literal json.RawMessage
	bigInt  *big.Int
}

// Literal constructs a literal value from raw JSON
func Literal(raw json.RawMessage) Value {
	return Value{kind: kindLiteral, literal: raw}
}

// Marshal constructs a literal value by marshaling v to
// JSON
func Marshal(v interface{}) (Value, error) {
	raw, err := json.Marshal(v)

	if err != nil {
		return Value{}, fmt.Errorf("could not marshal literal: %s", err)
	}

	return Literal(raw), nil
}

// BigInt constructs a big-integer value
func BigInt(i *big.Int) Value {
	return Value{kind: kindBigInt, bigInt: new(big.Int).Set(i)}
}

// Int constructs a big-integer value from an int64
func Int(i int64) Value {
	return Value{kind: kindBigInt, bigInt: big.NewInt(i)}
}

// ServerTime constructs the server-time placeholder. The
// store substitutes its own clock wherever the placeholder
// appears, which keeps expiry and time comparisons immune
// to client clock skew.
func ServerTime() Value {
	return Value{kind: kindServerTime}
}

// IsBigInt returns the big integer and true if this value
// is the big-integer variant
func (value Value) IsBigInt() (*big.Int, bool) {
	if value.kind != kindBigInt {
		return nil, false
	}

	return new(big.Int).Set(value.bigInt), true
}

// IsServerTime returns true if this value is the
// server-time placeholder
func (value Value) IsServerTime() bool {
	return value.kind == kindServerTime
}

// Raw returns the literal JSON of this value, or nil if it
// is not the literal variant
func (value Value) Raw() json.RawMessage {
	if value.kind != kindLiteral {
		return nil
	}

	return value.literal
}

// Unmarshal unmarshals a literal value into v
func (value Value) Unmarshal(v interface{}) error {
	if value.kind != kindLiteral {
		return fmt.Errorf("value is not a literal")
	}

	raw := value.literal

	if raw == nil {
		raw = json.RawMessage("null")
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("could not unmarshal literal: %s", err)
	}

	return nil
}

// Equal returns true if a and b are the same variant with
// the same contents
func (value Value) Equal(other Value) bool {
	if value.kind != other.kind {
		return false
	}

	switch value.kind {
	case kindBigInt:
		return value.bigInt.Cmp(other.bigInt) == 0
	case kindServerTime:
		return true
	}

	a, b := value.literal, other.literal

	if a == nil {
		a = json.RawMessage("null")
	}

	if b == nil {
		b = json.RawMessage("null")
	}

	return bytes.Equal(a, b)
}

func (value Value) String() string {
	switch value.kind {
	case kindBigInt:
		return value.bigInt.String()
	case kindServerTime:
		return "$now"
	}

	if value.literal == nil {
		return "null"
	}

	return string(value.literal)
}

type bigIntEnvelope struct {
	BigInt string `json:"$bigint"`
}

type serverTimeEnvelope struct {
	Now bool `json:"$now"`
}

// MarshalJSON implements json.Marshaler. Big integers and
// the server-time placeholder are wrapped in single-key
// tag objects so the store can tell them apart from
// ordinary numbers and objects.
func (value Value) MarshalJSON() ([]byte, error) {
	switch value.kind {
	case kindBigInt:
		return json.Marshal(bigIntEnvelope{BigInt: value.bigInt.String()})
	case kindServerTime:
		return json.Marshal(serverTimeEnvelope{Now: true})
	}

	if value.literal == nil {
		return []byte("null"), nil
	}

	return value.literal, nil
}

// UnmarshalJSON implements json.Unmarshaler. Only the two
// known tag shapes are recognized; everything else is a
// literal.
func (value *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var tags map[string]json.RawMessage

		if err := json.Unmarshal(trimmed, &tags); err != nil {
			return fmt.Errorf("could not unmarshal value: %s", err)
		}

		if raw, ok := tags["$bigint"]; ok && len(tags) == 1 {
			var digits string

			if err := json.Unmarshal(raw, &digits); err != nil {
				return fmt.Errorf("could not unmarshal big integer: %s", err)
			}

			i, ok := new(big.Int).SetString(digits, 10)

			if !ok {
				return fmt.Errorf("could not parse big integer %q", digits)
			}

			*value = Value{kind: kindBigInt, bigInt: i}

			return nil
		}

		if _, ok := tags["$now"]; ok && len(tags) == 1 {
			*value = ServerTime()

			return nil
		}
	}

	*value = Literal(append(json.RawMessage{}, trimmed...))

	return nil
}
