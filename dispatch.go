// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Options configures how a trace is loaded. The zero value is the
// default: no timestamp correction.
type Options struct {
	// FixTimestamp shifts each Pcap frame's epoch_ts earlier by its
	// on-air duration, so it reflects the first bit instead of the last,
	// whenever a rate is known. Peek-tagged frames always get a
	// first-bit epoch_ts when the rate is known, so it does not apply
	// to them.
	FixTimestamp bool
}

// envelopeDecoder is satisfied by every supported capture container. It
// replaces a class-hierarchy-with-abstract-_next design: callers drive
// it directly instead of subclassing a base trace type.
type envelopeDecoder interface {
	// ReadOne decodes the next frame, or returns io.EOF when the
	// container is exhausted at a clean boundary.
	ReadOne(counter uint64) (*Dot11Frame, error)
	HasPhyInfo() bool
}

const magicLen = 4

// IsPacketTrace reports whether path names a file beginning with a
// magic this package recognizes (a Pcap or peek-tagged magic). It does
// not validate the rest of the file.
func IsPacketTrace(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var magic [magicLen]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return recognizeMagic(magic)
}

func recognizeMagic(magic [magicLen]byte) bool {
	if magic == peektaggedMagic {
		return true
	}
	if _, _, ok := detectPcapMagic(magic); ok {
		return true
	}
	return false
}

// Trace is an opened packet capture, positioned at the start of its
// packet stream. Use Next/Peek to consume it in order.
type Trace struct {
	path    string
	f       *os.File
	decoder envelopeDecoder
	counter uint64
	stream  *frameStream
}

// LoadTrace opens path, identifies its container format from the
// leading magic bytes, and returns a Trace ready to iterate. The
// concrete format (Pcap or peek-tagged) is resolved automatically; no
// caller-supplied type hint is needed.
func LoadTrace(path string, opts Options) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dot11trace: opening %s", path)
	}

	br := bufio.NewReader(f)
	magicBytes, err := br.Peek(magicLen)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(ErrMalformedPcap, "reading magic from %s", path)
	}
	var magic [magicLen]byte
	copy(magic[:], magicBytes)

	var dec envelopeDecoder
	switch {
	case magic == peektaggedMagic:
		dec, err = newPeektaggedDecoder(br, opts)
	default:
		if _, _, ok := detectPcapMagic(magic); ok {
			dec, err = newPcapDecoder(br, opts)
		} else {
			err = errors.Wrapf(ErrUnknownMagic, "%s: % x", path, magic)
		}
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	t := &Trace{path: path, f: f, decoder: dec, counter: 1}
	t.stream = newFrameStream(dec, &t.counter)
	return t, nil
}

// Close releases the underlying file handle.
func (t *Trace) Close() error {
	return t.f.Close()
}

// Next returns the next frame in capture order, with acked/ack_pkt/
// retry_count already inferred, or (nil, false) once the trace is
// exhausted.
func (t *Trace) Next() (*Dot11Frame, bool) {
	return t.stream.next()
}

// Peek returns the next frame without consuming it, or (nil, false) at
// end of trace.
func (t *Trace) Peek() (*Dot11Frame, bool) {
	return t.stream.peek()
}

// PushFront re-queues a frame at the front of the stream, for callers
// that need to put back a frame they popped via Next.
func (t *Trace) PushFront(f *Dot11Frame) {
	t.stream.pushFront(f)
}
