// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func qualityDataFrame(counter uint64, ta, ra MACAddr, seq uint16, retry, acked bool, rate float64) *Dot11Frame {
	return &Dot11Frame{
		Counter: counter,
		Type:    TypeData,
		Subtype: SubtypeData,
		Addr1:   &ra,
		Addr2:   &ta,
		SeqNum:  &seq,
		Retry:   retry,
		Acked:   acked,
		Phy:     PhyInfo{Rate: &rate},
	}
}

func qualityAckFrame(counter uint64, ta MACAddr) *Dot11Frame {
	return &Dot11Frame{
		Counter: counter,
		Type:    TypeControl,
		Subtype: SubtypeAck,
		Addr1:   &ta,
	}
}

func TestNewCaptureQualitySeqGapAndDanglingAck(t *testing.T) {
	ta := MACAddr{1, 1, 1, 1, 1, 1}
	ra := MACAddr{2, 2, 2, 2, 2, 2}

	f1 := qualityDataFrame(1, ta, ra, 1, false, true, 65.0)
	f2 := qualityAckFrame(2, ta)
	f3 := qualityDataFrame(3, ta, ra, 3, false, false, 65.0)

	q := NewCaptureQuality([]*Dot11Frame{f1, f2, f3}, ta, ra)

	assert.Equal(t, 2, q.TxPktsCount)
	assert.Equal(t, 2, q.AckCount)
	assert.Equal(t, 2, q.MissingTxCount)
	assert.Equal(t, []uint64{2}, q.DanglingAck)
	assert.Equal(t, []uint64{1}, q.MissingSeq)
	assert.Empty(t, q.MissingAck)
}

func TestNewCaptureQualityMissingAckOnUnackedGap(t *testing.T) {
	ta := MACAddr{3, 3, 3, 3, 3, 3}
	ra := MACAddr{4, 4, 4, 4, 4, 4}

	f1 := qualityDataFrame(1, ta, ra, 10, false, false, 65.0)
	f2 := qualityDataFrame(2, ta, ra, 12, false, false, 65.0)

	q := NewCaptureQuality([]*Dot11Frame{f1, f2}, ta, ra)

	assert.Equal(t, []uint64{1}, q.MissingAck)
	assert.Equal(t, []uint64{1}, q.MissingSeq)
}

func TestNewCaptureQualityIgnoresFCSErrorFrames(t *testing.T) {
	ta := MACAddr{5, 5, 5, 5, 5, 5}
	ra := MACAddr{6, 6, 6, 6, 6, 6}

	corrupt := true
	f1 := qualityDataFrame(1, ta, ra, 1, false, true, 65.0)
	f2 := qualityDataFrame(2, ta, ra, 2, false, true, 65.0)
	f2.Phy.FCSError = &corrupt

	q := NewCaptureQuality([]*Dot11Frame{f1, f2}, ta, ra)
	assert.Equal(t, 1, q.TxPktsCount)
}

func TestNewCaptureQualityIgnoresUnrelatedStations(t *testing.T) {
	ta := MACAddr{7, 7, 7, 7, 7, 7}
	ra := MACAddr{8, 8, 8, 8, 8, 8}
	other := MACAddr{9, 9, 9, 9, 9, 9}

	f1 := qualityDataFrame(1, ta, ra, 1, false, true, 65.0)
	f2 := qualityDataFrame(2, other, ra, 2, false, true, 65.0)

	q := NewCaptureQuality([]*Dot11Frame{f1, f2}, ta, ra)
	assert.Equal(t, 1, q.TxPktsCount)
}
