// Package lvstream frames a stream of values over a byte
// stream as [length|value|length|value|...], with a 4-byte
// big-endian length prefix per value.
package lvstream

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxValueSize caps the length of a single framed value.
// A frame claiming more than this is treated as corrupt
// rather than allocated.
var MaxValueSize = 10 * 1024 * 1024

// Reader decodes length-value frames from an io.Reader
type Reader struct {
	reader io.Reader
	length [4]byte
	value  []byte
}

// NewReader creates a Reader decoding frames from reader
func NewReader(reader io.Reader) *Reader {
	return &Reader{reader: reader}
}

// Next reads the next frame. It returns io.EOF when the
// underlying stream ends cleanly on a frame boundary.
// Frames that overrun MaxValueSize or end mid-frame return
// an error. The returned slice is reused by the next call.
func (reader *Reader) Next() ([]byte, error) {
	if _, err := io.ReadFull(reader.reader, reader.length[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("could not read frame length: %s", err)
	}

	length := binary.BigEndian.Uint32(reader.length[:])

	if length > uint32(MaxValueSize) {
		return nil, fmt.Errorf("frame length is too large: %d > max(%d)", length, MaxValueSize)
	}

	if cap(reader.value) < int(length) {
		reader.value = make([]byte, length)
	}

	reader.value = reader.value[:length]

	if _, err := io.ReadFull(reader.reader, reader.value); err != nil {
		return nil, fmt.Errorf("could not read frame value: %s", err)
	}

	return reader.value, nil
}

// Writer encodes length-value frames onto an io.Writer
type Writer struct {
	writer io.Writer
	length [4]byte
}

// NewWriter creates a Writer encoding frames onto writer
func NewWriter(writer io.Writer) *Writer {
	return &Writer{writer: writer}
}

// Write writes one frame
func (writer *Writer) Write(value []byte) error {
	if len(value) > MaxValueSize {
		return fmt.Errorf("frame length is too large: %d > max(%d)", len(value), MaxValueSize)
	}

	binary.BigEndian.PutUint32(writer.length[:], uint32(len(value)))

	if _, err := writer.writer.Write(writer.length[:]); err != nil {
		return fmt.Errorf("could not write frame length: %s", err)
	}

	if _, err := writer.writer.Write(value); err != nil {
		return fmt.Errorf("could not write frame value: %s", err)
	}

	return nil
}
