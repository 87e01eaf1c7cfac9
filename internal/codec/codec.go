// Package codec implements the binary frame shared by every node variant.
//
// A frame is the magic "ENKF", a uint16 format version, the uint32 impl type
// of the writer, the variant payload and a trailing IEEE CRC32 over all of
// the preceding bytes. All integers are little endian.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"

	"enkfcore/pkg/nodeapi"
)

const (
	Magic   = "ENKF"
	Version = uint16(1)
	// MaxElements bounds every length prefix accepted by a Decoder.
	MaxElements = 1 << 28
	// maxString bounds string length prefixes.
	maxString = 1 << 16
	chunk     = 4096
)

var order = binary.LittleEndian

// maxElements is the enforced element limit, MaxElements outside tests.
var maxElements = MaxElements

// Encoder writes one frame. Errors are sticky: after the first failure every
// call is a no-op and Close reports the failure.
type Encoder struct {
	w   io.Writer
	crc hash.Hash32
	n   int64
	err error
	buf [8]byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, crc: crc32.NewIEEE()}
}

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	m, err := e.w.Write(p)
	e.n += int64(m)
	if err != nil {
		e.err = &nodeapi.IOError{Op: "write", Err: err}
		return
	}
	_, _ = e.crc.Write(p)
}

// Header writes the frame header for impl.
func (e *Encoder) Header(impl nodeapi.ImplType) {
	e.write([]byte(Magic))
	order.PutUint16(e.buf[:2], Version)
	e.write(e.buf[:2])
	e.Uint32(uint32(impl))
}

func (e *Encoder) Uint32(v uint32) {
	order.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *Encoder) Int32(v int32) { e.Uint32(uint32(v)) }

func (e *Encoder) Float64(v float64) {
	order.PutUint64(e.buf[:8], math.Float64bits(v))
	e.write(e.buf[:8])
}

// Float64s writes a length prefixed float64 slice of at most MaxElements
// values.
func (e *Encoder) Float64s(vs []float64) {
	if e.err == nil && len(vs) > maxElements {
		e.err = fmt.Errorf("slice of %d elements exceeds frame limit %d", len(vs), maxElements)
		return
	}
	e.Uint32(uint32(len(vs)))
	buf := make([]byte, 0, 8*min(len(vs), chunk))
	for i, v := range vs {
		buf = order.AppendUint64(buf, math.Float64bits(v))
		if len(buf) == cap(buf) || i == len(vs)-1 {
			e.write(buf)
			buf = buf[:0]
		}
	}
}

// String writes a length prefixed string.
func (e *Encoder) String(s string) {
	if e.err == nil && len(s) > maxString {
		e.err = fmt.Errorf("string of %d bytes exceeds frame limit", len(s))
		return
	}
	e.Uint32(uint32(len(s)))
	e.write([]byte(s))
}

// Close writes the checksum trailer and returns the number of bytes written
// together with the first error encountered.
func (e *Encoder) Close() (int64, error) {
	if e.err != nil {
		return e.n, e.err
	}
	order.PutUint32(e.buf[:4], e.crc.Sum32())
	m, err := e.w.Write(e.buf[:4])
	e.n += int64(m)
	if err != nil {
		e.err = &nodeapi.IOError{Op: "write", Err: err}
	}
	return e.n, e.err
}

// Decoder reads one frame written for a specific impl and key.
type Decoder struct {
	r    io.Reader
	crc  hash.Hash32
	n    int64
	err  error
	impl nodeapi.ImplType
	key  string
	buf  [8]byte
}

// NewDecoder returns a Decoder reading from r. impl and key are used to
// validate the header and to annotate errors.
func NewDecoder(r io.Reader, impl nodeapi.ImplType, key string) *Decoder {
	return &Decoder{r: r, crc: crc32.NewIEEE(), impl: impl, key: key}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Fail records a payload validation failure as a DecodeError. It is a no-op
// when an error is already pending.
func (d *Decoder) Fail(format string, args ...any) {
	if d.err != nil {
		return
	}
	d.err = &nodeapi.DecodeError{Impl: d.impl, Key: d.key, Err: fmt.Errorf(format, args...)}
}

// readFailed classifies a reader error: running out of input is truncation,
// anything else is a stream failure.
func (d *Decoder) readFailed(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		d.err = &nodeapi.DecodeError{Impl: d.impl, Key: d.key, Err: io.ErrUnexpectedEOF}
		return
	}
	d.err = &nodeapi.IOError{Op: "read", Err: err}
}

func (d *Decoder) read(p []byte) bool {
	if d.err != nil {
		return false
	}
	m, err := io.ReadFull(d.r, p)
	d.n += int64(m)
	if err != nil {
		d.readFailed(err)
		return false
	}
	_, _ = d.crc.Write(p)
	return true
}

// Header reads and validates the frame header.
func (d *Decoder) Header() {
	magic := make([]byte, len(Magic))
	if !d.read(magic) {
		return
	}
	if string(magic) != Magic {
		d.Fail("bad magic %q", magic)
		return
	}
	if !d.read(d.buf[:2]) {
		return
	}
	if v := order.Uint16(d.buf[:2]); v != Version {
		d.Fail("unsupported frame version %d", v)
		return
	}
	got := nodeapi.ImplType(d.Uint32())
	if d.err == nil && got != d.impl {
		d.err = &nodeapi.DecodeError{Impl: d.impl, Key: d.key, Err: &nodeapi.TypeMismatchError{Want: d.impl, Got: got}}
	}
}

func (d *Decoder) Uint32() uint32 {
	if !d.read(d.buf[:4]) {
		return 0
	}
	return order.Uint32(d.buf[:4])
}

func (d *Decoder) Int32() int32 { return int32(d.Uint32()) }

func (d *Decoder) Float64() float64 {
	if !d.read(d.buf[:8]) {
		return 0
	}
	return math.Float64frombits(order.Uint64(d.buf[:8]))
}

// Len reads a length prefix and rejects values above MaxElements.
func (d *Decoder) Len() int {
	n := d.Uint32()
	if d.err != nil {
		return 0
	}
	if int64(n) > int64(maxElements) {
		d.Fail("length %d exceeds limit %d", n, maxElements)
		return 0
	}
	return int(n)
}

// Float64s reads a length prefixed float64 slice. Memory grows with the data
// actually read, so a corrupt length prefix fails on truncation instead of
// allocating up front.
func (d *Decoder) Float64s() []float64 {
	n := d.Len()
	if d.err != nil {
		return nil
	}
	out := make([]float64, 0, min(n, chunk))
	buf := make([]byte, 8*min(n, chunk))
	for remaining := n; remaining > 0; {
		step := min(remaining, chunk)
		if !d.read(buf[:8*step]) {
			return nil
		}
		for i := 0; i < step; i++ {
			out = append(out, math.Float64frombits(order.Uint64(buf[8*i:])))
		}
		remaining -= step
	}
	return out
}

// String reads a length prefixed string.
func (d *Decoder) String() string {
	n := d.Uint32()
	if d.err != nil {
		return ""
	}
	if n > maxString {
		d.Fail("string length %d exceeds limit", n)
		return ""
	}
	p := make([]byte, n)
	if !d.read(p) {
		return ""
	}
	return string(p)
}

// Close reads the checksum trailer and returns the bytes consumed together
// with the first error encountered.
func (d *Decoder) Close() (int64, error) {
	if d.err != nil {
		return d.n, d.err
	}
	want := d.crc.Sum32()
	m, err := io.ReadFull(d.r, d.buf[:4])
	d.n += int64(m)
	if err != nil {
		d.readFailed(err)
		return d.n, d.err
	}
	if got := order.Uint32(d.buf[:4]); got != want {
		d.Fail("checksum mismatch: stored %08x computed %08x", got, want)
	}
	return d.n, d.err
}
