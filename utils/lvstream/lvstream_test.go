package lvstream_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/kite/utils/lvstream"
)

func TestRoundTrip(t *testing.T) {
	values := [][]byte{
		[]byte("a"),
		{},
		[]byte("hello world"),
		bytes.Repeat([]byte{0x00, 0xff}, 1000),
	}

	var buffer bytes.Buffer
	writer := lvstream.NewWriter(&buffer)

	for _, value := range values {
		if err := writer.Write(value); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	reader := lvstream.NewReader(&buffer)
	var decoded [][]byte

	for {
		value, err := reader.Next()

		if err == io.EOF {
			break
		}

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		decoded = append(decoded, append([]byte{}, value...))
	}

	if diff := cmp.Diff(values, decoded); diff != "" {
		t.Fatalf("unexpected values (-want +got):\n%s", diff)
	}
}

func TestTruncatedFrame(t *testing.T) {
	var buffer bytes.Buffer
	writer := lvstream.NewWriter(&buffer)

	if err := writer.Write([]byte("hello")); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	reader := lvstream.NewReader(bytes.NewReader(buffer.Bytes()[:buffer.Len()-1]))

	if _, err := reader.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected an error for a truncated frame, got %#v", err)
	}
}

func TestOversizedFrame(t *testing.T) {
	reader := lvstream.NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))

	if _, err := reader.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected an error for an oversized frame, got %#v", err)
	}
}
