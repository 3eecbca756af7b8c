package wire_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/wire"
)

func TestBigIntRoundTrip(t *testing.T) {
	// Well beyond the range a float64 can represent exactly
	original, ok := new(big.Int).SetString("9007199254740993123456789", 10)

	if !ok {
		t.Fatalf("could not parse test integer")
	}

	data, err := json.Marshal(wire.BigInt(original))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	var decoded wire.Value

	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	i, isBigInt := decoded.IsBigInt()

	if !isBigInt {
		t.Fatalf("expected a big integer, got %s", decoded)
	}

	if i.Cmp(original) != 0 {
		t.Fatalf("expected %s, got %s", original, i)
	}
}

func TestBigIntTaggedDistinctlyFromNumbers(t *testing.T) {
	data, err := json.Marshal(wire.Int(5))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(`{"$bigint":"5"}`, string(data)); diff != "" {
		t.Fatalf("unexpected encoding (-want +got):\n%s", diff)
	}

	var plainNumber wire.Value

	if err := json.Unmarshal([]byte(`5`), &plainNumber); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, isBigInt := plainNumber.IsBigInt(); isBigInt {
		t.Fatalf("expected a plain number to decode as a literal")
	}
}

func TestServerTimeRoundTrip(t *testing.T) {
	data, err := json.Marshal(wire.ServerTime())

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(`{"$now":true}`, string(data)); diff != "" {
		t.Fatalf("unexpected encoding (-want +got):\n%s", diff)
	}

	var decoded wire.Value

	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !decoded.IsServerTime() {
		t.Fatalf("expected the server-time placeholder, got %s", decoded)
	}
}

func TestLiteralFallback(t *testing.T) {
	testCases := map[string]string{
		"number":                `42.5`,
		"string":                `"hello"`,
		"array":                 `[1,2,3]`,
		"object":                `{"a":1,"b":2}`,
		"object with tag shape": `{"$bigint":"5","extra":true}`,
		"null":                  `null`,
	}

	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			var value wire.Value

			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if _, isBigInt := value.IsBigInt(); isBigInt || value.IsServerTime() {
				t.Fatalf("expected a literal, got %s", value)
			}

			if diff := cmp.Diff(raw, string(value.Raw())); diff != "" {
				t.Fatalf("unexpected literal (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValueEqual(t *testing.T) {
	a := wire.Int(7)
	b := wire.BigInt(big.NewInt(7))

	if !a.Equal(b) {
		t.Fatalf("expected %s to equal %s", a, b)
	}

	if a.Equal(wire.Literal(json.RawMessage(`7`))) {
		t.Fatalf("expected a big integer not to equal a literal")
	}

	if !wire.ServerTime().Equal(wire.ServerTime()) {
		t.Fatalf("expected server-time placeholders to be equal")
	}
}

func TestDeleteMutationMarshalsNullValue(t *testing.T) {
	raw, err := json.Marshal(wire.Mutation{
		Key: keys.New(keys.String("gone")),
		Op:  wire.OpDelete,
	})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	var decoded map[string]json.RawMessage

	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	// The zero Value is the literal null, carried explicitly
	if value, found := decoded["value"]; !found || string(value) != "null" {
		t.Fatalf("expected an explicit null value, got %s", raw)
	}
}
