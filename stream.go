// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

// ackWindow is the maximum gap, in seconds, between a frame's last bit
// and a following Ack frame for the Ack to be attributed to it.
const ackWindow = 1e-4

// refillBatch is the number of frames fetched from the envelope decoder
// per refill.
const refillBatch = 1024

// refillThreshold: the queue is refilled whenever it holds fewer than
// this many frames, so look-ahead (the next frame, used for ack/retry
// inference) is always available without over-buffering.
const refillThreshold = 2

// frameStream holds the FIFO look-ahead queue that turns an
// envelopeDecoder's frame-at-a-time reads into an ordered stream with
// ack/retry inference, grounded on
// original_source/wltrace/wltrace.py's WlTrace._fetch/_infer_acked/_infer_retry.
type frameStream struct {
	decoder envelopeDecoder
	counter *uint64
	queue   []*Dot11Frame
	eof     bool
}

func newFrameStream(d envelopeDecoder, counter *uint64) *frameStream {
	return &frameStream{decoder: d, counter: counter}
}

func (s *frameStream) fetch() {
	if len(s.queue) < refillThreshold && !s.eof {
		s.queue = append(s.queue, s.fetchN(refillBatch)...)
	}
}

// fetchN reads up to n frames from the decoder, reassembling A-MPDU
// runs (only ever present for Pcap/Radiotap captures) so that every
// subframe in the run carries the final subframe's authoritative rate.
func (s *frameStream) fetchN(n int) []*Dot11Frame {
	var batch []*Dot11Frame
	for i := 0; i < n; i++ {
		pkt, err := s.decoder.ReadOne(*s.counter)
		if err != nil {
			s.eof = true
			return batch
		}
		*s.counter++

		for pkt.Phy.AMPDURef != nil {
			ref := *pkt.Phy.AMPDURef
			if pkt.Phy.LastAMPDU != nil && *pkt.Phy.LastAMPDU {
				if pkt.Phy.Rate != nil {
					propagateAMPDURate(batch, ref, *pkt.Phy.Rate)
				}
				break
			}
			batch = append(batch, pkt)
			next, err := s.decoder.ReadOne(*s.counter)
			if err != nil {
				s.eof = true
				return batch
			}
			*s.counter++
			if next.Phy.AMPDURef == nil || *next.Phy.AMPDURef != ref {
				pkt = next
				break
			}
			pkt = next
		}
		batch = append(batch, pkt)
	}
	return batch
}

func propagateAMPDURate(batch []*Dot11Frame, ref uint32, rate float64) {
	for j := len(batch) - 1; j >= 0; j-- {
		p := batch[j]
		if p.Phy.AMPDURef == nil || *p.Phy.AMPDURef != ref {
			break
		}
		p.Phy.Rate = f64ptr(rate)
	}
}

// next pops the head of the queue, running ack/retry inference against
// the remaining look-ahead before returning it.
func (s *frameStream) next() (*Dot11Frame, bool) {
	s.fetch()
	if len(s.queue) == 0 {
		return nil, false
	}
	pkt := s.queue[0]
	s.queue = s.queue[1:]
	s.inferAcked(pkt)
	s.inferRetry(pkt)
	return pkt, true
}

func (s *frameStream) peek() (*Dot11Frame, bool) {
	s.fetch()
	if len(s.queue) == 0 {
		return nil, false
	}
	return s.queue[0], true
}

func (s *frameStream) pushFront(f *Dot11Frame) {
	s.queue = append([]*Dot11Frame{f}, s.queue...)
}

// inferAcked decides whether pkt was acknowledged: first it looks for
// an immediately-following Ack frame addressed back to pkt's
// transmitter within ackWindow seconds of pkt's last bit; failing that,
// it takes the next queued frame from the same transmitter and, if that
// frame carries a different sequence number, concludes the station
// moved on (and the sniffer likely missed the Ack).
func (s *frameStream) inferAcked(pkt *Dot11Frame) {
	pkt.Acked = false
	pkt.AckPkt = nil

	if pkt.Type != TypeManagement && pkt.Type != TypeData {
		return
	}
	if pkt.Dest() == nil || pkt.Dest().IsBroadcast() {
		return
	}
	if pkt.Src() == nil {
		return
	}

	if len(s.queue) > 0 {
		nextPkt := s.queue[0]
		if IsAck(nextPkt) && nextPkt.Dest() != nil && *nextPkt.Dest() == *pkt.Src() {
			if end, ok := pkt.AirTime(); ok {
				endTS := pkt.Phy.EpochTS + end
				if nextPkt.Phy.EpochTS-endTS < ackWindow {
					pkt.Acked = true
					pkt.AckPkt = nextPkt
					return
				}
			}
		}
	}

	var candidate *Dot11Frame
	for _, p := range s.queue {
		if p.Src() != nil && *p.Src() == *pkt.Src() {
			candidate = p
			break
		}
	}
	if candidate != nil && candidate.SeqNum != nil && pkt.SeqNum != nil &&
		*candidate.SeqNum != *pkt.SeqNum {
		pkt.Acked = true
	}
}

// inferRetry assigns a monotonically increasing retry_count to pkt and,
// speculatively, to later look-ahead frames that appear to be further
// retries of the same (station, sequence number) pair — covering
// captures where the sniffer missed one or more of the retries.
func (s *frameStream) inferRetry(pkt *Dot11Frame) {
	if pkt.retrySet {
		return
	}
	if pkt.Retry {
		pkt.RetryCount = 1
	} else {
		pkt.RetryCount = 0
	}
	pkt.retrySet = true

	if pkt.Type != TypeManagement && pkt.Type != TypeData {
		return
	}
	if pkt.Dest() == nil || pkt.Dest().IsBroadcast() {
		return
	}
	if pkt.Src() == nil || pkt.SeqNum == nil {
		return
	}

	currentRetry := pkt.RetryCount + 1
	for _, p := range s.queue {
		if p.Src() == nil || *p.Src() != *pkt.Src() || p.SeqNum == nil {
			continue
		}
		if !p.Retry || *p.SeqNum != *pkt.SeqNum {
			break
		}
		p.RetryCount = currentRetry
		p.retrySet = true
		currentRetry++
	}
}
