// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

// PhyInfo is the physical-layer descriptor attached to every decoded
// frame: signal/noise, channel, rate/MCS, timestamps and capture
// lengths. Fields are pointers where spec.md marks them optional, so a
// zero value is distinguishable from "not reported by this capture".
type PhyInfo struct {
	Signal *int8 // dBm
	Noise  *int8 // dBm

	FreqMHz *uint16

	HasFCS   bool
	FCSError *bool

	EpochTS    float64  // POSIX seconds of the first bit
	EndEpochTS *float64 // POSIX seconds of the last bit

	MACTime *uint64 // TSF counter, microseconds

	Rate *float64 // Mbps
	MCS  *uint8

	Len    uint32 // on-air length including the 4-byte FCS
	Caplen uint32 // stored byte count, <= Len

	AMPDURef   *uint32
	LastAMPDU  *bool
}

// AirTime returns the on-air duration implied by Len and Rate, in
// seconds. Callers must not call this unless Rate is known and > 0.
func (p *PhyInfo) AirTime() float64 {
	return float64(p.Len) * 8 / *p.Rate * 1e-6
}

func i8ptr(v int8) *int8       { return &v }
func u16ptr(v uint16) *uint16  { return &v }
func u32ptr(v uint32) *uint32  { return &v }
func u64ptr(v uint64) *uint64  { return &v }
func u8ptr(v uint8) *uint8     { return &v }
func f64ptr(v float64) *float64 { return &v }
func boolptr(v bool) *bool     { return &v }
