// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"crypto/md5"
	"encoding/binary"
)

// Beacon is the parsed fixed body of an 802.11 Beacon management frame,
// plus its SSID when the first tagged element carries one.
type Beacon struct {
	TimestampTSF uint64
	Interval     uint16
	Capabilities uint16
	SSID         string
}

// Dot11Frame is one decoded IEEE 802.11 MAC frame, enriched with PHY
// metadata and (once it has passed through the stream engine's
// look-ahead window) ack/retry inference. The stream engine never
// mutates a frame after Trace.Next yields it; Fuse rewrites the
// MACTime, EpochTS and Counter of the frames it merges in place.
type Dot11Frame struct {
	Counter uint64
	Phy     PhyInfo

	FC      uint16
	Type    FrameType
	Subtype uint8

	ToDS      bool
	FromDS    bool
	MoreFrag  bool
	Retry     bool
	Power     bool
	MoreData  bool
	Protected bool
	Order     bool

	Duration uint16

	Addr1 *MACAddr
	Addr2 *MACAddr
	Addr3 *MACAddr
	Addr4 *MACAddr

	SeqNum  *uint16
	FragNum *uint8

	QoS *uint16
	HTC *uint32

	BATid         *uint8
	BACompressed  *bool
	BAMultiTID    *bool
	BAPolicy      *bool
	BABeginSeq    *uint16
	BABeginFrag   *uint8
	BABitmap      *uint64

	Beacon *Beacon

	Raw []byte

	// ParseError records that the body beyond the fixed prefix did not
	// fully parse (spec.md §4.5: soft flag, never fatal).
	ParseError bool

	// Inference outputs, set once by the stream engine as the frame
	// passes through the look-ahead window. Never set by ParseDot11Frame.
	Acked      bool
	AckPkt     *Dot11Frame
	RetryCount uint16

	hash     [16]byte
	hashDone bool
	retrySet bool
}

// ParseDot11Frame decodes raw as an 802.11 MAC frame. It never returns
// an error: a malformed body beyond the fixed fc/duration/addr1 prefix
// sets ParseError and leaves the remaining optional fields nil, per
// spec.md §4.5's tolerance requirement. Only a raw buffer too short
// even for that fixed prefix yields an all-nil frame with ParseError
// set.
func ParseDot11Frame(raw []byte, phy PhyInfo, counter uint64) *Dot11Frame {
	f := &Dot11Frame{Counter: counter, Phy: phy, Raw: raw}

	c := NewByteCursor(raw, binary.LittleEndian)
	fc, err := c.ReadU16()
	if err != nil {
		f.ParseError = true
		return f
	}
	dur, err := c.ReadU16()
	if err != nil {
		f.ParseError = true
		return f
	}
	a1, err := c.ReadExact(6)
	if err != nil {
		f.ParseError = true
		return f
	}

	ctrl := decodeFrameControl(fc)
	f.FC = fc
	f.Duration = dur
	f.Type = ctrl.typ
	f.Subtype = ctrl.subtype
	f.ToDS = ctrl.toDS
	f.FromDS = ctrl.fromDS
	f.MoreFrag = ctrl.moreFrag
	f.Retry = ctrl.retry
	f.Power = ctrl.power
	f.MoreData = ctrl.moreData
	f.Protected = ctrl.protected
	f.Order = ctrl.order
	f.Addr1 = addrPtr(a1)

	var seq *uint16
	switch ctrl.typ {
	case TypeManagement:
		seq = f.parseManagement(c)
	case TypeData:
		seq = f.parseData(c)
	case TypeControl:
		f.parseControl(c)
	}

	if seq != nil {
		frag := uint8(*seq & 0xf)
		num := *seq >> 4
		f.FragNum = &frag
		f.SeqNum = &num
	}

	return f
}

func addrPtr(b []byte) *MACAddr {
	var m MACAddr
	copy(m[:], b)
	return &m
}

// parseManagement reads addr2/addr3/seq, the optional HT control field,
// and (for Beacon) the fixed beacon body and SSID tag. It returns the
// raw sequence-control field to be split by the caller, or nil if the
// body was too short to read it.
func (f *Dot11Frame) parseManagement(c *ByteCursor) *uint16 {
	a2, err := c.ReadExact(6)
	if err != nil {
		f.ParseError = true
		return nil
	}
	a3, err := c.ReadExact(6)
	if err != nil {
		f.ParseError = true
		return nil
	}
	seq, err := c.ReadU16()
	if err != nil {
		f.ParseError = true
		return nil
	}
	f.Addr2 = addrPtr(a2)
	f.Addr3 = addrPtr(a3)

	if f.Order {
		if htc, err := c.ReadU32(); err == nil {
			f.HTC = &htc
		} else {
			f.ParseError = true
			return &seq
		}
	}

	if f.Subtype == SubtypeBeacon {
		f.parseBeacon(c)
	}

	return &seq
}

func (f *Dot11Frame) parseBeacon(c *ByteCursor) {
	tsf, err := c.ReadU64()
	if err != nil {
		f.ParseError = true
		return
	}
	interval, err := c.ReadU16()
	if err != nil {
		f.ParseError = true
		return
	}
	caps, err := c.ReadU16()
	if err != nil {
		f.ParseError = true
		return
	}
	b := &Beacon{TimestampTSF: tsf, Interval: interval, Capabilities: caps}

	tag, err := c.ReadU8()
	if err != nil {
		f.Beacon = b
		return
	}
	tagLen, err := c.ReadU8()
	if err != nil {
		f.Beacon = b
		return
	}
	if tag == 0 {
		if ssid, err := c.ReadExact(int(tagLen)); err == nil {
			b.SSID = string(ssid)
		} else {
			f.ParseError = true
		}
	}
	f.Beacon = b
}

func (f *Dot11Frame) parseData(c *ByteCursor) *uint16 {
	a2, err := c.ReadExact(6)
	if err != nil {
		f.ParseError = true
		return nil
	}
	a3, err := c.ReadExact(6)
	if err != nil {
		f.ParseError = true
		return nil
	}
	seq, err := c.ReadU16()
	if err != nil {
		f.ParseError = true
		return nil
	}
	f.Addr2 = addrPtr(a2)
	f.Addr3 = addrPtr(a3)

	if f.ToDS && f.FromDS {
		if a4, err := c.ReadExact(6); err == nil {
			f.Addr4 = addrPtr(a4)
		} else {
			f.ParseError = true
			return &seq
		}
	}

	if isQoS(f.Subtype) {
		if qos, err := c.ReadU16(); err == nil {
			f.QoS = &qos
		} else {
			f.ParseError = true
		}
	}

	return &seq
}

func (f *Dot11Frame) parseControl(c *ByteCursor) {
	if f.Subtype != SubtypeBlockAck {
		return
	}
	a2, err := c.ReadExact(6)
	if err != nil {
		f.ParseError = true
		return
	}
	baControl, err := c.ReadU16()
	if err != nil {
		f.ParseError = true
		return
	}
	f.Addr2 = addrPtr(a2)

	tid := uint8(baControl >> 12)
	compressed := baControl&0x0004 != 0
	multiTID := baControl&0x0002 != 0
	policy := baControl&0x0001 != 0
	f.BATid = &tid
	f.BACompressed = &compressed
	f.BAMultiTID = &multiTID
	f.BAPolicy = &policy

	if compressed && !multiTID {
		seqCtrl, err := c.ReadU16()
		if err != nil {
			f.ParseError = true
			return
		}
		bitmap, err := c.ReadU64()
		if err != nil {
			f.ParseError = true
			return
		}
		beginSeq := seqCtrl >> 4
		beginFrag := uint8(seqCtrl & 0xf)
		f.BABeginSeq = &beginSeq
		f.BABeginFrag = &beginFrag
		f.BABitmap = &bitmap
	}
}

// Src returns addr2, the transmitter address (nil if not present in
// this frame type).
func (f *Dot11Frame) Src() *MACAddr { return f.Addr2 }

// Dest returns addr1, the receiver address.
func (f *Dot11Frame) Dest() *MACAddr { return f.Addr1 }

// Hash returns the MD5 digest of the frame's raw on-disk bytes,
// computed once and cached.
func (f *Dot11Frame) Hash() [16]byte {
	if !f.hashDone {
		f.hash = md5.Sum(f.Raw)
		f.hashDone = true
	}
	return f.hash
}

// AirTime returns len*8/rate*1e-6 and true, or (0, false) if the rate
// is unknown (spec.md §6).
func (f *Dot11Frame) AirTime() (float64, bool) {
	if f.Phy.Rate == nil || *f.Phy.Rate == 0 {
		return 0, false
	}
	return f.Phy.AirTime(), true
}

// IsAck reports whether f is a Control/Ack frame.
func IsAck(f *Dot11Frame) bool { return f.Type == TypeControl && f.Subtype == SubtypeAck }

// IsBlockAck reports whether f is a Control/Block-Ack frame.
func IsBlockAck(f *Dot11Frame) bool { return f.Type == TypeControl && f.Subtype == SubtypeBlockAck }

// IsBeacon reports whether f is a Management/Beacon frame.
func IsBeacon(f *Dot11Frame) bool { return f.Type == TypeManagement && f.Subtype == SubtypeBeacon }

// IsQoSData reports whether f is a Data/QoS-Data frame.
func IsQoSData(f *Dot11Frame) bool { return f.Type == TypeData && f.Subtype == SubtypeQoSData }

// IsLowestRate reports whether rate is the lowest rate in the MCS
// table (MCS 0 at 20 MHz, long GI).
func IsLowestRate(rate float64) bool {
	mcs, err := RateToMcs(rate, 20, true)
	return err == nil && mcs == 0
}

// IsHighestRate reports whether rate is the highest single-spatial-
// stream rate in the MCS table (MCS 7 at 20 MHz, long GI).
func IsHighestRate(rate float64) bool {
	mcs, err := RateToMcs(rate, 20, true)
	return err == nil && mcs == 7
}

// NextSeq returns the next 802.11 sequence number, wrapping at the
// 12-bit modulo (4096).
func NextSeq(seq uint16) uint16 { return (seq + 1) % 4096 }

const seqNumModulo = 4096
