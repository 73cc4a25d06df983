// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"encoding/binary"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

var peektaggedMagic = [4]byte{0x7f, 'v', 'e', 'r'}

const (
	extFlagsBandwidth     = 0x00000007
	extFlagsGI            = 0x00000018
	extFlagsMCSIndexUsed  = 0x00000100
)

const (
	peekTagLen       = 0x00
	peekTagTSLow     = 0x01
	peekTagTSHigh    = 0x02
	peekTagFlags     = 0x03
	peekTagChannel   = 0x04
	peekTagRate      = 0x05
	peekTagSignalLvl = 0x06
	peekTagSignal    = 0x07
	peekTagNoiseLvl  = 0x08
	peekTagNoise     = 0x09
	peekTagFreqMHz   = 0x0d
	peekTagExtFlags  = 0x15
	peekTagCaplen    = 0xffff
)

// versionInfoXML mirrors the handful of child elements carried in the
// "\x7fver" section's VersionInfo XML blob.
type versionInfoXML struct {
	XMLName xml.Name `xml:"VersionInfo"`
	Major   string   `xml:"MajorVersion"`
	Minor   string   `xml:"MinorVersion"`
}

type sessionInfoXML struct {
	XMLName     xml.Name `xml:"Session"`
	PacketCount int      `xml:"PacketCount"`
}

// peektaggedDecoder implements envelopeDecoder for WildPackets/Omnipeek
// "peek-tagged" capture files, grounded on
// original_source/wltrace/peektagged.py.
type peektaggedDecoder struct {
	r            io.Reader
	fixTimestamp bool
	totalPackets int
	versionMajor string
	versionMinor string
}

func newPeektaggedDecoder(r io.Reader, opts Options) (*peektaggedDecoder, error) {
	d := &peektaggedDecoder{r: r, fixTimestamp: opts.FixTimestamp}

	for {
		hdr := make([]byte, 12)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, errors.Wrap(ErrMalformedPeekTagged, "reading section header")
		}
		var tag [4]byte
		copy(tag[:], hdr[0:4])
		length := binary.LittleEndian.Uint32(hdr[4:8])

		if string(tag[:]) == "pkts" {
			break
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, errors.Wrap(ErrMalformedPeekTagged, "reading section payload")
		}

		switch {
		case tag == peektaggedMagic:
			var v versionInfoXML
			if err := xml.Unmarshal(payload, &v); err != nil {
				return nil, errors.Wrap(ErrMalformedPeekTagged, "parsing version info XML")
			}
			d.versionMajor = v.Major
			d.versionMinor = v.Minor
		case string(tag[:]) == "sess":
			var s sessionInfoXML
			if err := xml.Unmarshal(payload, &s); err != nil {
				return nil, errors.Wrap(ErrMalformedPeekTagged, "parsing session info XML")
			}
			d.totalPackets = s.PacketCount
		}
	}

	return d, nil
}

func (d *peektaggedDecoder) HasPhyInfo() bool { return true }

type peektaggedPacketHeader struct {
	length    uint32
	tsLow     uint32
	tsHigh    uint32
	flags     uint32
	channel   uint32
	rate      uint32
	signal    int32
	noise     int32
	freqMHz   uint32
	extFlags  uint32
	haveExt   bool
	caplen    uint32
}

func (d *peektaggedDecoder) readPacketHeader() (peektaggedPacketHeader, error) {
	var h peektaggedPacketHeader
	for {
		tagBuf := make([]byte, 2)
		valBuf := make([]byte, 4)
		if _, err := io.ReadFull(d.r, tagBuf); err != nil {
			if err == io.EOF {
				return h, io.EOF
			}
			return h, errors.Wrap(ErrMalformedPeekTagged, "reading tag")
		}
		if _, err := io.ReadFull(d.r, valBuf); err != nil {
			return h, errors.Wrap(ErrMalformedPeekTagged, "reading tag value")
		}
		tag := binary.LittleEndian.Uint16(tagBuf)
		u32 := binary.LittleEndian.Uint32(valBuf)

		switch tag {
		case peekTagLen:
			h.length = u32
		case peekTagTSLow:
			h.tsLow = u32
		case peekTagTSHigh:
			h.tsHigh = u32
		case peekTagFlags:
			h.flags = u32
		case peekTagChannel:
			h.channel = u32
		case peekTagRate:
			h.rate = u32
		case peekTagSignal:
			h.signal = int32(u32)
		case peekTagNoise:
			h.noise = int32(u32)
		case peekTagFreqMHz:
			h.freqMHz = u32
		case peekTagExtFlags:
			h.extFlags = u32
			h.haveExt = true
		case peekTagCaplen:
			h.caplen = u32
			return h, nil
		default:
			// unknown tag: ignored, matching the original parser's
			// "continue" for tags outside its known table.
		}
	}
}

// winTSToUnixEpoch converts a Windows FILETIME (100ns ticks since
// 1601-01-01) split into high/low 32-bit halves to a POSIX timestamp.
func winTSToUnixEpoch(high, low uint32) float64 {
	return float64(high)*(4294967296.0/1e9) + float64(low)/1e9 - 11644473600
}

// ReadOne reads and decodes the next tagged packet header and its
// trailing caplen bytes of raw MAC payload.
func (d *peektaggedDecoder) ReadOne(counter uint64) (*Dot11Frame, error) {
	h, err := d.readPacketHeader()
	if err != nil {
		return nil, err
	}

	raw := make([]byte, h.caplen)
	if _, err := io.ReadFull(d.r, raw); err != nil {
		return nil, io.EOF
	}

	var phy PhyInfo
	phy.HasFCS = true
	phy.FCSError = boolptr(h.flags&0x0002 != 0)
	phy.Len = h.length
	phy.Caplen = h.caplen
	if h.freqMHz != 0 {
		phy.FreqMHz = u16ptr(uint16(h.freqMHz))
	}
	phy.Signal = i8ptr(int8(h.signal))
	phy.Noise = i8ptr(int8(h.noise))

	var rate float64
	if h.haveExt && h.extFlags&extFlagsMCSIndexUsed != 0 {
		mcs := uint8(h.rate)
		phy.MCS = u8ptr(mcs)
		r, err := McsToRate(int(mcs), 20, true)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedPeekTagged, "invalid MCS index")
		}
		rate = r
	} else {
		rate = float64(h.rate) / 2.0
	}
	phy.Rate = f64ptr(rate)

	epoch := winTSToUnixEpoch(h.tsHigh, h.tsLow)
	if rate > 0 {
		duration := float64(h.length) * 8 / rate * 1e-6
		phy.EndEpochTS = f64ptr(epoch)
		epoch -= duration
	}
	phy.EpochTS = epoch

	return ParseDot11Frame(raw, phy, counter), nil
}
