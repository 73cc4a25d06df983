// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DriftSample is one beacon-to-beacon interval used to time-align two
// traces: Duration is trace1's mactime delta between the pair of
// matched beacons, DriftUS is how much trace2's delta differed from
// it, in TSF microseconds.
type DriftSample struct {
	DurationUS uint64
	DriftUS    int64
}

// FusionStats summarizes a Fuse call for diagnostic reporting. Never
// logged by this package; callers (e.g. a CLI) decide whether/how to
// surface it.
type FusionStats struct {
	Samples          []DriftSample
	Trace1Beacons    int
	Trace2Beacons    int
	CommonBeacons    int
	MeanDurationUS   float64
	MeanDriftUS      float64
}

// Fuse time-aligns trace2 onto trace1's TSF clock using beacon frames
// whose MD5 hash matches across both traces as anchor points, then
// interleaves the two traces' frames by (corrected) mactime into one
// merged, re-numbered trace. If fewer than two common beacons are
// found, trace1 is returned unchanged. Grounded on
// original_source/wltrace/fusion.py's Aggregator.do_aggregate.
func Fuse(trace1, trace2 []*Dot11Frame, verbose bool) ([]*Dot11Frame, FusionStats) {
	hash1, order1 := beaconHashIndex(trace1)
	hash2, _ := beaconHashIndex(trace2)

	var common [][16]byte
	for _, h := range order1 {
		if _, ok := hash2[h]; ok {
			common = append(common, h)
		}
	}

	stats := FusionStats{Trace1Beacons: len(hash1), Trace2Beacons: len(hash2), CommonBeacons: len(common)}

	if len(common) < 2 {
		return trace1, stats
	}

	baseMactime := *hash1[common[0]].Phy.MACTime
	baseEpoch := hash1[common[0]].Phy.EpochTS

	var merged []*Dot11Frame

	for i := 0; i < len(common)-1; i++ {
		firstH, secondH := common[i], common[i+1]
		b1a, b1b := hash1[firstH], hash1[secondH]
		b2a, b2b := hash2[firstH], hash2[secondH]

		t1a, t2a := *b1a.Phy.MACTime, *b1b.Phy.MACTime
		t1b, t2b := *b2a.Phy.MACTime, *b2b.Phy.MACTime

		duration := t2a - t1a
		denom := t2b - t1b
		var ratio float64
		if denom != 0 {
			ratio = float64(duration) / float64(denom)
		}
		drift := int64(t2b-t1b) - int64(t2a-t1a)
		stats.Samples = append(stats.Samples, DriftSample{DurationUS: duration, DriftUS: drift})

		for _, p := range sliceByCounterRange(trace2, b2a.Counter, b2b.Counter) {
			if p.Phy.MACTime != nil {
				adjusted := uint64(ratio*(float64(*p.Phy.MACTime)-float64(t1b))) + t1a
				p.Phy.MACTime = u64ptr(adjusted)
			}
		}

		merged = append(merged, b1a)

		segment := append(
			append([]*Dot11Frame{}, sliceByCounterRange(trace1, b1a.Counter, b1b.Counter)...),
			sliceByCounterRange(trace2, b2a.Counter, b2b.Counter)...,
		)
		sort.SliceStable(segment, func(a, b int) bool {
			am, bm := segment[a].Phy.MACTime, segment[b].Phy.MACTime
			if am == nil {
				return bm != nil
			}
			if bm == nil {
				return false
			}
			return *am < *bm
		})

		for _, pkt := range segment {
			if pkt.Phy.MACTime == nil {
				continue
			}
			last := merged[len(merged)-1]
			if last.Phy.MACTime != nil && *pkt.Phy.MACTime-*last.Phy.MACTime < 5 && pkt.Hash() == last.Hash() {
				continue
			}
			merged = append(merged, pkt)
		}
	}

	merged = append(merged, hash1[common[len(common)-1]])

	for i, p := range merged {
		if p.Phy.MACTime != nil {
			p.Phy.EpochTS = baseEpoch + float64(*p.Phy.MACTime-baseMactime)/1e6
		}
		p.Counter = uint64(i + 1)
	}

	if verbose && len(stats.Samples) > 0 {
		durations := make([]float64, len(stats.Samples))
		driftsF := make([]float64, len(stats.Samples))
		for i, s := range stats.Samples {
			durations[i] = float64(s.DurationUS)
			driftsF[i] = float64(s.DriftUS)
		}
		stats.MeanDurationUS = stat.Mean(durations, nil)
		stats.MeanDriftUS = stat.Mean(driftsF, nil)
	}

	return merged, stats
}

// beaconHashIndex returns a hash->frame map of every Beacon frame with
// a known mactime, plus the hashes in first-seen order (mirroring
// Python's OrderedDict construction).
func beaconHashIndex(trace []*Dot11Frame) (map[[16]byte]*Dot11Frame, [][16]byte) {
	index := make(map[[16]byte]*Dot11Frame)
	var order [][16]byte
	for _, p := range trace {
		if !IsBeacon(p) || p.Phy.MACTime == nil {
			continue
		}
		h := p.Hash()
		if _, seen := index[h]; !seen {
			order = append(order, h)
		}
		index[h] = p
	}
	return index, order
}

// sliceByCounterRange returns the frames in trace strictly between the
// 1-based counters firstCounter and secondCounter (exclusive of both
// endpoints), assuming trace is ordered with frame i carrying
// Counter == i+1.
func sliceByCounterRange(trace []*Dot11Frame, firstCounter, secondCounter uint64) []*Dot11Frame {
	start := int(firstCounter)
	end := int(secondCounter) - 1
	if start < 0 {
		start = 0
	}
	if end > len(trace) {
		end = len(trace)
	}
	if start >= end {
		return nil
	}
	return trace[start:end]
}
