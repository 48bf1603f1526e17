package models

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/stellar/go/hash"

	"marketplace/internal/address"
)

const discriminatorSize = 8

// ErrMalformed is returned when account data does not decode as the requested record
var ErrMalformed = errors.New("malformed account data")

type discriminator [discriminatorSize]byte

var discriminatorNames = map[discriminator]string{}

func newDiscriminator(name string) discriminator {
	sum := hash.Hash([]byte("account:" + name))
	var d discriminator
	copy(d[:], sum[:discriminatorSize])
	discriminatorNames[d] = name
	return d
}

// encoder appends fixed-width little-endian fields
type encoder struct {
	buf []byte
}

func newEncoder(d discriminator, size int) *encoder {
	e := &encoder{buf: make([]byte, 0, size)}
	e.buf = append(e.buf, d[:]...)
	return e
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *encoder) i64(v int64) { e.u64(uint64(v)) }
func (e *encoder) addr(a address.Address) { e.buf = append(e.buf, a[:]...) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
		return
	}
	e.u8(0)
}

func (e *encoder) optI64(v *int64) {
	if v == nil {
		e.u8(0)
		e.i64(0)
		return
	}
	e.u8(1)
	e.i64(*v)
}

func (e *encoder) str(s string, max int) error {
	if len(s) > max {
		return fmt.Errorf("string of %d bytes exceeds limit %d", len(s), max)
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

// finish pads the record to its fixed account size
func (e *encoder) finish(size int) []byte {
	if len(e.buf) < size {
		e.buf = append(e.buf, make([]byte, size-len(e.buf))...)
	}
	return e.buf
}

// decoder reads fields written by encoder; the first error sticks
type decoder struct {
	buf []byte
	off int
	err error
}

func newDecoder(d discriminator, data []byte) (*decoder, error) {
	if len(data) < discriminatorSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	var got discriminator
	copy(got[:], data)
	if got != d {
		return nil, fmt.Errorf("%w: discriminator mismatch (have %q, want %q)",
			ErrMalformed, discriminatorNames[got], discriminatorNames[d])
	}
	return &decoder{buf: data, off: discriminatorSize}, nil
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w: truncated at offset %d", ErrMalformed, d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) i64() int64 { return int64(d.u64()) }

func (d *decoder) boolean() bool {
	switch d.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: invalid bool at offset %d", ErrMalformed, d.off-1)
		}
		return false
	}
}

func (d *decoder) addr() address.Address {
	var a address.Address
	copy(a[:], d.take(address.Size))
	return a
}

func (d *decoder) optI64() *int64 {
	present := d.boolean()
	v := d.i64()
	if !present || d.err != nil {
		return nil
	}
	return &v
}

func (d *decoder) str(max int) string {
	b := d.take(4)
	if b == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint32(b))
	if n > max {
		d.err = fmt.Errorf("%w: string length %d exceeds %d", ErrMalformed, n, max)
		return ""
	}
	return string(d.take(n))
}

// strPrefixSize is the length prefix in front of every string
const strPrefixSize = 4

const optI64Size = 9
