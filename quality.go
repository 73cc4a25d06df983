// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

// CaptureQuality summarizes how completely a sniffer captured one
// direction of a unicast conversation between two stations: how many
// transmissions and acks it likely missed, inferred from sequence-
// number gaps and dangling acks. Grounded on
// original_source/wltrace/quality.py's CaptureQuality.
type CaptureQuality struct {
	TA, RA MACAddr

	TxPktsCount     int
	AckCount        int
	MissingTxCount  int
	MissingAckCount int

	// DanglingAck holds the counters of every Ack frame addressed to TA;
	// the walk does not pair an Ack with the data frame it acknowledges.
	DanglingAck []uint64
	// MissingAck holds the counters of data frames that were neither
	// marked acked nor sent at the lowest rate (so an ack would be
	// expected) but were followed by a frame with a later sequence
	// number.
	MissingAck []uint64
	// MissingSeq holds the counters of data frames immediately
	// preceding a sequence-number gap of more than one.
	MissingSeq []uint64
}

// NewCaptureQuality walks frames (assumed already ack/retry-inferred,
// i.e. obtained from Trace.Next) and estimates how many frames the
// capturing station missed in the ta->ra direction.
func NewCaptureQuality(frames []*Dot11Frame, ta, ra MACAddr) *CaptureQuality {
	q := &CaptureQuality{TA: ta, RA: ra}

	var lastData *Dot11Frame
	for _, pkt := range frames {
		if pkt.Phy.FCSError != nil && *pkt.Phy.FCSError {
			continue
		}

		if pkt.Type == TypeData {
			if pkt.Src() == nil || pkt.Dest() == nil || *pkt.Src() != ta || *pkt.Dest() != ra {
				continue
			}
		} else if !IsAck(pkt) {
			continue
		}
		if IsAck(pkt) {
			if pkt.Dest() == nil || *pkt.Dest() != ta {
				continue
			}
		}

		if pkt.Acked || IsAck(pkt) {
			q.AckCount++
		}

		if IsAck(pkt) {
			q.DanglingAck = append(q.DanglingAck, pkt.Counter)
			q.MissingTxCount++
			continue
		}

		q.TxPktsCount++

		if lastData == nil && pkt.Retry {
			q.MissingTxCount++
		}

		if lastData != nil && pkt.SeqNum != nil && lastData.SeqNum != nil {
			seqDiff := (int(*pkt.SeqNum) - int(*lastData.SeqNum) + seqNumModulo) % seqNumModulo
			if seqDiff > 0 {
				q.MissingTxCount += seqDiff - 1
				if seqDiff > 1 {
					q.MissingSeq = append(q.MissingSeq, lastData.Counter)
				}
				if pkt.Retry {
					q.MissingTxCount++
				}
				if !lastData.Acked && lastData.Phy.Rate != nil && !IsLowestRate(*lastData.Phy.Rate) {
					q.MissingAckCount++
					q.MissingAck = append(q.MissingAck, lastData.Counter)
				}
			}
		}

		lastData = pkt
	}

	return q
}
