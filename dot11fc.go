// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

// FrameType is the 2-bit type field of an 802.11 frame control.
type FrameType uint8

const (
	TypeManagement FrameType = 0
	TypeControl    FrameType = 1
	TypeData       FrameType = 2
	TypeReserved   FrameType = 3
)

// Management subtypes used by this package.
const (
	SubtypeBeacon  = 8
	SubtypeAssoc   = 0
	SubtypeProbe   = 4
	SubtypeDisassc = 10
	SubtypeAuth    = 11
	SubtypeDeauth  = 12
)

// Control subtypes used by this package.
const (
	SubtypeBlockAckReq = 8
	SubtypeBlockAck    = 9
	SubtypePSPoll      = 10
	SubtypeRTS         = 11
	SubtypeCTS         = 12
	SubtypeAck         = 13
)

// Data subtypes: any subtype with bit 3 set (>= 8) carries a QoS
// control field.
const (
	SubtypeData    = 0
	SubtypeNull    = 4
	SubtypeQoSData = 8
	SubtypeQoSNull = 12
)

const qosSubtypeMask = 0x8

// frameControl is the decoded form of the 16-bit frame control field.
// LSB-first bit layout per spec.md §4.5: bits 2-3 type, 4-7 subtype,
// 8 to_ds, 9 from_ds, 10 more_frag, 11 retry, 12 power, 13 more_data,
// 14 protected, 15 order.
type frameControl struct {
	typ        FrameType
	subtype    uint8
	toDS       bool
	fromDS     bool
	moreFrag   bool
	retry      bool
	power      bool
	moreData   bool
	protected  bool
	order      bool
}

func decodeFrameControl(fc uint16) frameControl {
	return frameControl{
		typ:       FrameType((fc >> 2) & 0x3),
		subtype:   uint8((fc >> 4) & 0xF),
		toDS:      fc&(1<<8) != 0,
		fromDS:    fc&(1<<9) != 0,
		moreFrag:  fc&(1<<10) != 0,
		retry:     fc&(1<<11) != 0,
		power:     fc&(1<<12) != 0,
		moreData:  fc&(1<<13) != 0,
		protected: fc&(1<<14) != 0,
		order:     fc&(1<<15) != 0,
	}
}

// isQoS reports whether a Data-type subtype carries a QoS control
// field (spec.md §4.5: "subtype >= 8 within data type").
func isQoS(subtype uint8) bool { return subtype&qosSubtypeMask != 0 }
