// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	frames []*Dot11Frame
	pos    int
}

func (d *fakeDecoder) HasPhyInfo() bool { return true }

func (d *fakeDecoder) ReadOne(counter uint64) (*Dot11Frame, error) {
	if d.pos >= len(d.frames) {
		return nil, io.EOF
	}
	f := d.frames[d.pos]
	f.Counter = counter
	d.pos++
	return f, nil
}

func dataFrame(src, dest MACAddr, seq uint16, retry bool, epochTS float64, rate float64) *Dot11Frame {
	return &Dot11Frame{
		Type:    TypeData,
		Subtype: SubtypeData,
		Addr1:   &dest,
		Addr2:   &src,
		SeqNum:  &seq,
		Retry:   retry,
		Phy:     PhyInfo{EpochTS: epochTS, Rate: &rate, Len: 100},
	}
}

func ackFrame(dest MACAddr, epochTS float64) *Dot11Frame {
	return &Dot11Frame{
		Type:    TypeControl,
		Subtype: SubtypeAck,
		Addr1:   &dest,
		Phy:     PhyInfo{EpochTS: epochTS},
	}
}

func TestStreamAckWindowBoundary(t *testing.T) {
	sta := MACAddr{1, 1, 1, 1, 1, 1}
	ap := MACAddr{2, 2, 2, 2, 2, 2}

	seq1 := uint16(10)
	data := dataFrame(sta, ap, seq1, false, 0, 6.0)
	endTS, ok := data.AirTime()
	require.True(t, ok)
	endEpoch := data.Phy.EpochTS + endTS

	withinWindow := ackFrame(sta, endEpoch+99e-6)

	var counter uint64 = 1
	s := newFrameStream(&fakeDecoder{frames: []*Dot11Frame{data, withinWindow}}, &counter)

	got, ok := s.next()
	require.True(t, ok)
	assert.True(t, got.Acked)
	require.NotNil(t, got.AckPkt)
	assert.Same(t, withinWindow, got.AckPkt)
}

func TestStreamAckWindowExceeded(t *testing.T) {
	sta := MACAddr{1, 1, 1, 1, 1, 1}
	ap := MACAddr{2, 2, 2, 2, 2, 2}

	seq1 := uint16(10)
	seq2 := uint16(11)
	data := dataFrame(sta, ap, seq1, false, 0, 6.0)
	endTS, _ := data.AirTime()
	endEpoch := data.Phy.EpochTS + endTS

	outsideWindow := ackFrame(sta, endEpoch+101e-6)
	nextFromSameSta := dataFrame(sta, ap, seq2, false, 1, 6.0)

	var counter uint64 = 1
	s := newFrameStream(&fakeDecoder{frames: []*Dot11Frame{data, outsideWindow, nextFromSameSta}}, &counter)

	got, ok := s.next()
	require.True(t, ok)
	// fallback rule: a later frame from the same station with a
	// different seq_num implies this one was acked even though no Ack
	// frame matched within the window.
	assert.True(t, got.Acked)
	assert.Nil(t, got.AckPkt)
}

func TestStreamRetryInferenceForwardPropagation(t *testing.T) {
	sta := MACAddr{1, 1, 1, 1, 1, 1}
	ap := MACAddr{2, 2, 2, 2, 2, 2}
	seq := uint16(5)

	first := dataFrame(sta, ap, seq, false, 0, 6.0)
	retry1 := dataFrame(sta, ap, seq, true, 1, 6.0)
	retry2 := dataFrame(sta, ap, seq, true, 2, 6.0)

	var counter uint64 = 1
	s := newFrameStream(&fakeDecoder{frames: []*Dot11Frame{first, retry1, retry2}}, &counter)

	got1, ok := s.next()
	require.True(t, ok)
	assert.EqualValues(t, 0, got1.RetryCount)
	assert.EqualValues(t, 1, retry1.RetryCount)
	assert.EqualValues(t, 2, retry2.RetryCount)

	got2, ok := s.next()
	require.True(t, ok)
	assert.EqualValues(t, 1, got2.RetryCount)
}

func TestStreamAMPDURatePropagation(t *testing.T) {
	ref := uint32(42)
	notLast := false
	last := true
	rate1 := 6.0
	rate2 := 150.0

	f1 := &Dot11Frame{Phy: PhyInfo{AMPDURef: &ref, LastAMPDU: &notLast, Rate: &rate1}}
	f2 := &Dot11Frame{Phy: PhyInfo{AMPDURef: &ref, LastAMPDU: &notLast, Rate: &rate1}}
	f3 := &Dot11Frame{Phy: PhyInfo{AMPDURef: &ref, LastAMPDU: &last, Rate: &rate2}}

	var counter uint64 = 1
	s := newFrameStream(&fakeDecoder{frames: []*Dot11Frame{f1, f2, f3}}, &counter)

	got1, _ := s.next()
	got2, _ := s.next()
	got3, _ := s.next()

	require.NotNil(t, got1.Phy.Rate)
	assert.InDelta(t, rate2, *got1.Phy.Rate, 1e-9)
	require.NotNil(t, got2.Phy.Rate)
	assert.InDelta(t, rate2, *got2.Phy.Rate, 1e-9)
	require.NotNil(t, got3.Phy.Rate)
	assert.InDelta(t, rate2, *got3.Phy.Rate, 1e-9)
}

func TestStreamEOFWhenDecoderExhausted(t *testing.T) {
	var counter uint64 = 1
	s := newFrameStream(&fakeDecoder{}, &counter)
	_, ok := s.next()
	assert.False(t, ok)
}

func TestStreamPeekDoesNotConsume(t *testing.T) {
	sta := MACAddr{1, 1, 1, 1, 1, 1}
	ap := MACAddr{2, 2, 2, 2, 2, 2}
	seq := uint16(1)
	data := dataFrame(sta, ap, seq, false, 0, 6.0)

	var counter uint64 = 1
	s := newFrameStream(&fakeDecoder{frames: []*Dot11Frame{data}}, &counter)

	p1, ok := s.peek()
	require.True(t, ok)
	p2, ok := s.peek()
	require.True(t, ok)
	assert.Same(t, p1, p2)

	n, ok := s.next()
	require.True(t, ok)
	assert.Same(t, p1, n)
}
