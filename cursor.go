// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortRead is returned whenever a read runs past the end of the
// underlying buffer. Callers that see it while reading an envelope
// header should treat it as fatal; callers reading a MAC body should
// treat it as a soft parse failure (see Dot11Frame.ParseError).
var ErrShortRead = errors.New("dot11trace: short read")

// ByteCursor reads fixed-width, endian-aware primitives out of a byte
// slice, advancing an internal offset as it goes. It never copies the
// underlying slice; Bytes/Read results alias it.
type ByteCursor struct {
	buf   []byte
	off   int
	order binary.ByteOrder
}

// NewByteCursor returns a cursor over b using the given byte order.
// order may be changed later with SetOrder (the pcap decoder does not
// know its endianness until it has read the magic).
func NewByteCursor(b []byte, order binary.ByteOrder) *ByteCursor {
	return &ByteCursor{buf: b, order: order}
}

// SetOrder changes the byte order used by subsequent multi-byte reads.
func (c *ByteCursor) SetOrder(order binary.ByteOrder) { c.order = order }

// Offset returns the current read offset.
func (c *ByteCursor) Offset() int { return c.off }

// Len returns the total length of the underlying buffer.
func (c *ByteCursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *ByteCursor) Remaining() int { return len(c.buf) - c.off }

// SeekAbs moves the read offset to an absolute position. It does not
// validate that pos is in range; the next read will fail with
// ErrShortRead if it is not.
func (c *ByteCursor) SeekAbs(pos int) { c.off = pos }

// ReadExact returns the next n bytes and advances the offset, or
// ErrShortRead if fewer than n bytes remain.
func (c *ByteCursor) ReadExact(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, errors.Wrapf(ErrShortRead, "expected %d bytes at offset %d, got %d", n, c.off, c.Remaining())
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// AlignTo pads the offset up to the next multiple of boundary,
// relative to base (the start of the structure being aligned, e.g. the
// start of a Radiotap header). boundary of 0 or 1 is a no-op.
func (c *ByteCursor) AlignTo(base, boundary int) {
	if boundary <= 1 {
		return
	}
	rel := c.off - base
	rem := rel % boundary
	if rem != 0 {
		c.off += boundary - rem
	}
}

// ReadU8 reads an unsigned 8-bit integer.
func (c *ByteCursor) ReadU8() (uint8, error) {
	b, err := c.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadI8 reads a signed 8-bit integer.
func (c *ByteCursor) ReadI8() (int8, error) {
	u, err := c.ReadU8()
	return int8(u), err
}

// ReadU16 reads an unsigned 16-bit integer in the cursor's byte order.
func (c *ByteCursor) ReadU16() (uint16, error) {
	b, err := c.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(b), nil
}

// ReadU32 reads an unsigned 32-bit integer in the cursor's byte order.
func (c *ByteCursor) ReadU32() (uint32, error) {
	b, err := c.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

// ReadI32 reads a signed 32-bit integer in the cursor's byte order.
func (c *ByteCursor) ReadI32() (int32, error) {
	u, err := c.ReadU32()
	return int32(u), err
}

// ReadU64 reads an unsigned 64-bit integer in the cursor's byte order.
func (c *ByteCursor) ReadU64() (uint64, error) {
	b, err := c.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}
