// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	pcapVersionMajor = 2
	pcapVersionMinor = 4

	linktypeDot11         = 105
	linktypeDot11Radiotap = 127
)

var (
	magicBEus = [4]byte{0xa1, 0xb2, 0xc3, 0xd4}
	magicLEus = [4]byte{0xd4, 0xc3, 0xb2, 0xa1}
	magicBEns = [4]byte{0xa1, 0xb2, 0x3c, 0x4d}
	magicLEns = [4]byte{0x4d, 0x3c, 0xb2, 0xa1}
)

// detectPcapMagic classifies the first four bytes of a capture file and
// reports its byte order and timestamp resolution.
func detectPcapMagic(b [4]byte) (order binary.ByteOrder, nanoTS bool, ok bool) {
	switch b {
	case magicBEus:
		return binary.BigEndian, false, true
	case magicLEus:
		return binary.LittleEndian, false, true
	case magicBEns:
		return binary.BigEndian, true, true
	case magicLEns:
		return binary.LittleEndian, true, true
	default:
		return nil, false, false
	}
}

type pcapGlobalHeader struct {
	versionMajor uint16
	versionMinor uint16
	thisZone     int32
	sigFigs      uint32
	snapLen      uint32
	network      uint32
}

type pcapRecordHeader struct {
	tsSec    uint32
	tsFrac   uint32
	inclLen  uint32
	origLen  uint32
}

// pcapDecoder implements envelopeDecoder for libpcap capture files
// carrying linktype 105 (bare 802.11) or 127 (802.11 + Radiotap),
// grounded on original_source/wltrace/pcap.py's PcapCapture and
// PcapHeader/PcapPacketHeader.
type pcapDecoder struct {
	r            io.Reader
	order        binary.ByteOrder
	nanoTS       bool
	header       pcapGlobalHeader
	fixTimestamp bool
}

func newPcapDecoder(r io.Reader, opts Options) (*pcapDecoder, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errors.Wrap(ErrMalformedPcap, "reading magic")
	}
	order, nanoTS, ok := detectPcapMagic(magic)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMagic, "pcap magic % x", magic)
	}

	rest := make([]byte, 20)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, errors.Wrap(ErrMalformedPcap, "reading global header")
	}
	c := NewByteCursor(rest, order)
	vmaj, _ := c.ReadU16()
	vmin, _ := c.ReadU16()
	zone, _ := c.ReadI32()
	sigfigs, _ := c.ReadU32()
	snaplen, _ := c.ReadU32()
	network, _ := c.ReadU32()

	if vmaj != pcapVersionMajor || vmin != pcapVersionMinor {
		return nil, errors.Wrapf(ErrUnsupportedPcapVersion, "got %d.%d", vmaj, vmin)
	}
	if network != linktypeDot11 && network != linktypeDot11Radiotap {
		return nil, errors.Wrapf(ErrUnsupportedLinktype, "got %d", network)
	}

	return &pcapDecoder{
		r:      r,
		order:  order,
		nanoTS: nanoTS,
		header: pcapGlobalHeader{
			versionMajor: vmaj,
			versionMinor: vmin,
			thisZone:     zone,
			sigFigs:      sigfigs,
			snapLen:      snaplen,
			network:      network,
		},
		fixTimestamp: opts.FixTimestamp,
	}, nil
}

func (d *pcapDecoder) HasPhyInfo() bool { return d.header.network == linktypeDot11Radiotap }

// ReadOne reads and decodes the next packet record. It returns io.EOF
// (not wrapped) when the stream ends at a record boundary or inside a
// record header, a wrapped ErrMalformedPcap for a short payload read or
// a snaplen violation, and the Radiotap error for a bad Radiotap header.
func (d *pcapDecoder) ReadOne(counter uint64) (*Dot11Frame, error) {
	hdrBuf := make([]byte, 16)
	if _, err := io.ReadFull(d.r, hdrBuf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(ErrMalformedPcap, "reading record header")
	}
	c := NewByteCursor(hdrBuf, d.order)
	tsSec, _ := c.ReadU32()
	tsFrac, _ := c.ReadU32()
	inclLen, _ := c.ReadU32()
	origLen, _ := c.ReadU32()
	rec := pcapRecordHeader{tsSec: tsSec, tsFrac: tsFrac, inclLen: inclLen, origLen: origLen}

	if rec.inclLen > d.header.snapLen {
		return nil, errors.Wrapf(ErrMalformedPcap, "incl_len %d exceeds snaplen %d", rec.inclLen, d.header.snapLen)
	}

	raw := make([]byte, rec.inclLen)
	if _, err := io.ReadFull(d.r, raw); err != nil {
		return nil, errors.Wrap(ErrMalformedPcap, "short read on packet payload")
	}

	divisor := 1e6
	if d.nanoTS {
		divisor = 1e9
	}
	epochTS := float64(rec.tsSec) + float64(rec.tsFrac)/divisor + float64(d.header.thisZone)

	var phy PhyInfo
	var macOff int
	if d.header.network == linktypeDot11Radiotap {
		p, n, err := ParseRadiotap(raw)
		if err != nil {
			return nil, err
		}
		phy = p
		phy.Len = rec.origLen - uint32(n)
		phy.Caplen = rec.inclLen - uint32(n)
		macOff = n
	} else {
		phy = PhyInfo{HasFCS: false, Len: rec.origLen, Caplen: rec.inclLen}
		macOff = 0
	}
	phy.EpochTS = epochTS

	if d.fixTimestamp && phy.Rate != nil && *phy.Rate > 0 {
		phy.EpochTS -= float64(phy.Len) * 8 / *phy.Rate * 1e-6
	}

	frame := ParseDot11Frame(raw[macOff:], phy, counter)
	if end, ok := frame.AirTime(); ok {
		frame.Phy.EndEpochTS = f64ptr(frame.Phy.EpochTS + end)
	}
	return frame, nil
}

// SavePcap writes frames in libpcap format, little-endian microsecond
// timestamps, linktype 105 (bare 802.11 MAC, no Radiotap). Re-emitting
// a Radiotap header is not supported: a decoded frame's raw bytes hold
// only the MAC body, per spec.md's "raw: bytes, entire MAC frame" field
// shape. Mirrors PcapCapture.save/PcapPacketHeader.encapsulate.
func SavePcap(w io.Writer, frames []*Dot11Frame) error {
	order := binary.LittleEndian
	hdr := make([]byte, 24)
	order.PutUint32(hdr[0:4], 0xa1b2c3d4)
	order.PutUint16(hdr[4:6], pcapVersionMajor)
	order.PutUint16(hdr[6:8], pcapVersionMinor)
	order.PutUint32(hdr[8:12], 0)
	order.PutUint32(hdr[12:16], 0)
	order.PutUint32(hdr[16:20], 65535)
	order.PutUint32(hdr[20:24], linktypeDot11)
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, "dot11trace: writing pcap global header")
	}

	for _, f := range frames {
		if err := writePcapRecord(w, order, f); err != nil {
			return err
		}
	}
	return nil
}

func writePcapRecord(w io.Writer, order binary.ByteOrder, f *Dot11Frame) error {
	tsSec := uint32(f.Phy.EpochTS)
	tsUsec := uint32((f.Phy.EpochTS - float64(tsSec)) * 1e6)
	inclLen := uint32(len(f.Raw))
	origLen := f.Phy.Len

	rec := make([]byte, 16)
	order.PutUint32(rec[0:4], tsSec)
	order.PutUint32(rec[4:8], tsUsec)
	order.PutUint32(rec[8:12], inclLen)
	order.PutUint32(rec[12:16], origLen)
	if _, err := w.Write(rec); err != nil {
		return errors.Wrap(err, "dot11trace: writing pcap record header")
	}
	if _, err := w.Write(f.Raw); err != nil {
		return errors.Wrap(err, "dot11trace: writing pcap record payload")
	}
	return nil
}
