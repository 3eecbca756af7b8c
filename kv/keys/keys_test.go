package keys_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/jrife/kite/kv/keys"
)

func TestCompare(t *testing.T) {
	testCases := map[string]struct {
		a      keys.Key
		b      keys.Key
		result int
	}{
		"empty keys are equal": {
			a:      keys.New(),
			b:      keys.New(),
			result: 0,
		},
		"prefix sorts first": {
			a:      keys.New(keys.String("users")),
			b:      keys.New(keys.String("users"), keys.Int(1)),
			result: -1,
		},
		"type rank before value": {
			a:      keys.New(keys.Bytes("zzz")),
			b:      keys.New(keys.String("aaa")),
			result: -1,
		},
		"ints order numerically": {
			a:      keys.New(keys.Int(-5)),
			b:      keys.New(keys.Int(3)),
			result: -1,
		},
		"false before true": {
			a:      keys.New(keys.Bool(false)),
			b:      keys.New(keys.Bool(true)),
			result: -1,
		},
		"equal composite keys": {
			a:      keys.New(keys.String("a"), keys.Int(7), keys.Float(1.5)),
			b:      keys.New(keys.String("a"), keys.Int(7), keys.Float(1.5)),
			result: 0,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if result := keys.Compare(testCase.a, testCase.b); result != testCase.result {
				t.Fatalf("expected Compare(%s, %s) to be %d, got %d", testCase.a, testCase.b, testCase.result, result)
			}

			if result := keys.Compare(testCase.b, testCase.a); result != -testCase.result {
				t.Fatalf("expected Compare(%s, %s) to be %d, got %d", testCase.b, testCase.a, -testCase.result, result)
			}
		})
	}
}

func TestCovers(t *testing.T) {
	testCases := map[string]struct {
		prefix keys.Key
		key    keys.Key
		covers bool
	}{
		"empty prefix covers everything": {
			prefix: keys.New(),
			key:    keys.New(keys.String("a")),
			covers: true,
		},
		"key covers itself": {
			prefix: keys.New(keys.String("a"), keys.Int(1)),
			key:    keys.New(keys.String("a"), keys.Int(1)),
			covers: true,
		},
		"proper prefix": {
			prefix: keys.New(keys.String("users")),
			key:    keys.New(keys.String("users"), keys.Int(42)),
			covers: true,
		},
		"longer does not cover shorter": {
			prefix: keys.New(keys.String("users"), keys.Int(42)),
			key:    keys.New(keys.String("users")),
			covers: false,
		},
		"string prefix of a part is not a key prefix": {
			prefix: keys.New(keys.String("use")),
			key:    keys.New(keys.String("users")),
			covers: false,
		},
		"type matters": {
			prefix: keys.New(keys.Bytes("users")),
			key:    keys.New(keys.String("users"), keys.Int(42)),
			covers: false,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if covers := keys.Covers(testCase.prefix, testCase.key); covers != testCase.covers {
				t.Fatalf("expected Covers(%s, %s) to be %t, got %t", testCase.prefix, testCase.key, testCase.covers, covers)
			}
		})
	}
}

func genPart() gopter.Gen {
	return gen.OneGenOf(
		gen.SliceOf(gen.UInt8()).Map(func(b []byte) keys.Part { return keys.Bytes(b) }),
		gen.AnyString().Map(func(s string) keys.Part { return keys.String(s) }),
		gen.Int64().Map(func(i int64) keys.Part { return keys.Int(i) }),
		gen.Float64().Map(func(f float64) keys.Part { return keys.Float(f) }),
		gen.Bool().Map(func(b bool) keys.Part { return keys.Bool(b) }),
	)
}

func genKey() gopter.Gen {
	return gen.SliceOf(genPart()).Map(func(parts []keys.Part) keys.Key { return keys.Key(parts) })
}

func TestEncodeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("encoding preserves order", prop.ForAll(
		func(a, b keys.Key) bool {
			return sign(keys.Compare(a, b)) == sign(bytes.Compare(keys.Encode(a), keys.Encode(b)))
		},
		genKey(),
		genKey(),
	))

	properties.Property("decode inverts encode", prop.ForAll(
		func(key keys.Key) bool {
			decoded, err := keys.Decode(keys.Encode(key))

			if err != nil {
				return false
			}

			return keys.Equal(key, decoded)
		},
		genKey(),
	))

	properties.Property("covered keys encode to prefixed bytes", prop.ForAll(
		func(prefix, suffix keys.Key) bool {
			key := append(append(keys.Key{}, prefix...), suffix...)

			return keys.Covers(prefix, key) && bytes.HasPrefix(keys.Encode(key), keys.Encode(prefix))
		},
		genKey(),
		genKey(),
	))

	properties.TestingRun(t)
}

func TestKeyJSON(t *testing.T) {
	key := keys.New(keys.String("orders"), keys.Int(-912), keys.Bytes{0x00, 0xff}, keys.Bool(true))

	data, err := json.Marshal(key)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	var decoded keys.Key

	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !keys.Equal(key, decoded) {
		t.Fatalf("expected %s, got %s", key, decoded)
	}
}

func sign(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	}

	return 0
}
