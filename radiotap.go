// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const radiotapVersion = 0

const (
	presentTSFT    = 1 << 0
	presentFlags   = 1 << 1
	presentRate    = 1 << 2
	presentChannel = 1 << 3
	presentSignal  = 1 << 5
	presentNoise   = 1 << 6
	presentMCS     = 1 << 19
	presentAMPDU   = 1 << 20
)

const (
	flagHasFCS   = 0x10
	flagFCSError = 0x40
)

// ParseRadiotap decodes a radiotap PHY header from the front of raw. It
// returns the populated PhyInfo, the number of bytes the header
// consumes (so the caller can slice the trailing 802.11 MAC frame), and
// an error if the fixed 8-byte preamble or the declared header length
// cannot be read or carries an unsupported version (spec.md §4.2).
func ParseRadiotap(raw []byte) (PhyInfo, int, error) {
	var phy PhyInfo

	c := NewByteCursor(raw, binary.LittleEndian)
	version, err := c.ReadU8()
	if err != nil {
		return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading it_version")
	}
	if version != radiotapVersion {
		return phy, 0, errors.Wrapf(ErrUnsupportedRadiotapVersion, "got %d", version)
	}
	if _, err := c.ReadU8(); err != nil { // it_pad
		return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading it_pad")
	}
	itLen, err := c.ReadU16()
	if err != nil {
		return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading it_len")
	}
	present, err := c.ReadU32()
	if err != nil {
		return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading it_present")
	}

	const preambleLen = 8
	if int(itLen) < preambleLen {
		return phy, 0, errors.Wrap(ErrMalformedRadiotap, "it_len shorter than fixed preamble")
	}
	rest, err := c.ReadExact(int(itLen) - preambleLen)
	if err != nil {
		return phy, 0, errors.Wrap(ErrMalformedRadiotap, "short read on radiotap body")
	}

	rc := NewByteCursor(rest, binary.LittleEndian)
	fields := present
	for present&0x80000000 != 0 {
		ext, err := rc.ReadU32()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "short read on present-word extension")
		}
		present = ext
	}
	present = fields
	// Only bits 0-20 of the first present word are handled (bits 4 and
	// 7-18 are skipped by width, not decoded); any further extension
	// words were already consumed above for offset purposes.

	var mactime uint64
	var haveMactime bool
	var flags uint8
	var haveFlags bool
	var rate uint8
	var haveRate bool
	var channel uint32
	var haveChannel bool
	var signal, noise int8
	var haveSignal, haveNoise bool
	var mcsKnown, mcsFlags, mcsIdx uint8
	var haveMCS bool
	var ampduRef uint32
	var ampduFlags uint16
	var haveAMPDU bool

	if present&presentTSFT != 0 {
		rc.AlignTo(0, 8)
		mactime, err = rc.ReadU64()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading mactime")
		}
		haveMactime = true
	}
	if present&presentFlags != 0 {
		flags, err = rc.ReadU8()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading flags")
		}
		haveFlags = true
	}
	if present&presentRate != 0 {
		rate, err = rc.ReadU8()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading rate")
		}
		haveRate = true
	}
	if present&presentChannel != 0 {
		rc.AlignTo(0, 2)
		channel, err = rc.ReadU32()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading channel")
		}
		haveChannel = true
	}
	if present&(1<<4) != 0 { // FHSS: skipped, keeps later fields aligned
		rc.AlignTo(0, 2)
		rc.SeekAbs(rc.Offset() + 2)
	}
	if present&presentSignal != 0 {
		v, err := rc.ReadI8()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading signal")
		}
		signal = v
		haveSignal = true
	}
	if present&presentNoise != 0 {
		v, err := rc.ReadI8()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading noise")
		}
		noise = v
		haveNoise = true
	}
	// Bits 7-18 ({alignment, width}) are skipped so MCS/A-MPDU stay aligned.
	for bit, w := range [19][2]int{7: {2, 2}, 8: {2, 2}, 9: {2, 2}, 10: {1, 1}, 11: {1, 1},
		12: {1, 1}, 13: {1, 1}, 14: {2, 2}, 15: {2, 2}, 16: {1, 1}, 17: {1, 1}, 18: {4, 8}} {
		if w[1] != 0 && present&(1<<uint(bit)) != 0 {
			rc.AlignTo(0, w[0])
			rc.SeekAbs(rc.Offset() + w[1])
		}
	}
	if present&presentMCS != 0 {
		mcsKnown, err = rc.ReadU8()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading mcs known")
		}
		mcsFlags, err = rc.ReadU8()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading mcs flags")
		}
		mcsIdx, err = rc.ReadU8()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading mcs index")
		}
		haveMCS = true
	}
	if present&presentAMPDU != 0 {
		rc.AlignTo(0, 4)
		ampduRef, err = rc.ReadU32()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading ampdu reference")
		}
		ampduFlags, err = rc.ReadU16()
		if err != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading ampdu flags")
		}
		if _, err := rc.ReadExact(2); err != nil { // reserved padding
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "reading ampdu padding")
		}
		haveAMPDU = true
	}

	if haveMactime {
		phy.MACTime = u64ptr(mactime)
	}
	if haveChannel {
		phy.FreqMHz = u16ptr(uint16(channel & 0xffff))
	}
	if haveFlags {
		phy.HasFCS = flags&flagHasFCS != 0
		phy.FCSError = boolptr(flags&flagFCSError != 0)
	}
	if haveSignal {
		phy.Signal = i8ptr(signal)
	}
	if haveNoise {
		phy.Noise = i8ptr(noise)
	}
	if haveRate {
		phy.Rate = f64ptr(float64(rate) / 2.0)
	}
	if haveMCS {
		_ = mcsKnown
		bw := 20
		switch mcsFlags & 0x3 {
		case 0, 2, 3:
			bw = 20
		default:
			bw = 40
		}
		longGI := mcsFlags&0x4 == 0
		r, rerr := McsToRate(int(mcsIdx), bw, longGI)
		if rerr != nil {
			return phy, 0, errors.Wrap(ErrMalformedRadiotap, "mcs index out of range")
		}
		phy.MCS = u8ptr(mcsIdx)
		phy.Rate = f64ptr(r)
	}
	if haveAMPDU {
		phy.AMPDURef = u32ptr(ampduRef)
		phy.LastAMPDU = boolptr(ampduFlags&0x8 != 0)
	}

	return phy, int(itLen), nil
}
