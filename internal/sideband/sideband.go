// Package sideband reads and writes out-of-band enhancement payloads.
//
// A sideband stream is a sequence of records, each encoded as:
//
//	[timestamp (zigzag varint, µs)] [flags (varint)] [length (varint)] [payload]
//
// Varints use the QUIC variable-length integer encoding.
package sideband

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// MaxPayload bounds a single record's payload.
const MaxPayload = 1 << 20

// FlagKeyFrame marks a payload belonging to a key frame.
const FlagKeyFrame = 1

var (
	ErrTooLarge  = errors.New("sideband: payload too large")
	ErrEmpty     = errors.New("sideband: empty payload")
	ErrBadFlags  = errors.New("sideband: unknown flag bits")
	ErrTruncated = errors.New("sideband: truncated record")
	ErrTimestamp = errors.New("sideband: timestamp out of range")
)

// Record is one enhancement payload keyed by the presentation timestamp of
// the base frame it applies to.
type Record struct {
	TimestampUs int64
	KeyFrame    bool
	Data        []byte
}

// FrameError reports which record field failed to decode.
type FrameError struct {
	Field string
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("sideband: parse %s: %v", e.Field, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

func zigzag(v int64) uint64   { return uint64(v<<1) ^ uint64(v>>63) }
func unzigzag(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }

// Append encodes rec onto buf.
func Append(buf []byte, rec Record) ([]byte, error) {
	if len(rec.Data) == 0 {
		return buf, ErrEmpty
	}
	if len(rec.Data) > MaxPayload {
		return buf, ErrTooLarge
	}
	z := zigzag(rec.TimestampUs)
	if z > quicvarint.Max {
		return buf, ErrTimestamp
	}
	var flags uint64
	if rec.KeyFrame {
		flags |= FlagKeyFrame
	}
	buf = quicvarint.Append(buf, z)
	buf = quicvarint.Append(buf, flags)
	buf = quicvarint.Append(buf, uint64(len(rec.Data)))
	return append(buf, rec.Data...), nil
}

// Parse decodes one record from the front of data and returns the number of
// bytes consumed. The returned payload aliases data.
func Parse(data []byte) (Record, int, error) {
	var rec Record
	pos := 0

	ts, n, err := quicvarint.Parse(data)
	if err != nil {
		return rec, 0, &FrameError{Field: "timestamp", Err: ErrTruncated}
	}
	pos += n

	flags, n, err := quicvarint.Parse(data[pos:])
	if err != nil {
		return rec, 0, &FrameError{Field: "flags", Err: ErrTruncated}
	}
	pos += n
	if flags&^FlagKeyFrame != 0 {
		return rec, 0, &FrameError{Field: "flags", Err: ErrBadFlags}
	}

	length, n, err := quicvarint.Parse(data[pos:])
	if err != nil {
		return rec, 0, &FrameError{Field: "length", Err: ErrTruncated}
	}
	pos += n
	if length == 0 {
		return rec, 0, &FrameError{Field: "length", Err: ErrEmpty}
	}
	if length > MaxPayload {
		return rec, 0, &FrameError{Field: "length", Err: ErrTooLarge}
	}
	end := pos + int(length)
	if end > len(data) {
		return rec, 0, &FrameError{Field: "payload", Err: ErrTruncated}
	}

	rec.TimestampUs = unzigzag(ts)
	rec.KeyFrame = flags&FlagKeyFrame != 0
	rec.Data = data[pos:end]
	return rec, end, nil
}

// Writer encodes records onto an io.Writer, one Write call per record.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes and writes a single record.
func (w *Writer) Write(rec Record) error {
	buf, err := Append(w.buf[:0], rec)
	if err != nil {
		return err
	}
	w.buf = buf
	_, err = w.w.Write(buf)
	return err
}

// Reader decodes records from a stream.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br}
}

// Next returns the next record. It returns io.EOF only at a clean record
// boundary; a record cut short yields a *FrameError wrapping ErrTruncated.
// The payload is freshly allocated and owned by the caller.
func (r *Reader) Next() (Record, error) {
	var rec Record

	if _, err := r.br.Peek(1); err != nil {
		return rec, err
	}
	ts, err := quicvarint.Read(r.br)
	if err != nil {
		return rec, &FrameError{Field: "timestamp", Err: truncated(err)}
	}
	flags, err := quicvarint.Read(r.br)
	if err != nil {
		return rec, &FrameError{Field: "flags", Err: truncated(err)}
	}
	if flags&^FlagKeyFrame != 0 {
		return rec, &FrameError{Field: "flags", Err: ErrBadFlags}
	}
	length, err := quicvarint.Read(r.br)
	if err != nil {
		return rec, &FrameError{Field: "length", Err: truncated(err)}
	}
	if length == 0 {
		return rec, &FrameError{Field: "length", Err: ErrEmpty}
	}
	if length > MaxPayload {
		return rec, &FrameError{Field: "length", Err: ErrTooLarge}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return rec, &FrameError{Field: "payload", Err: truncated(err)}
	}

	rec.TimestampUs = unzigzag(ts)
	rec.KeyFrame = flags&FlagKeyFrame != 0
	rec.Data = payload
	return rec, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
