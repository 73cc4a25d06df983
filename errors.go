// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import "github.com/pkg/errors"

// Sentinel error kinds. Call sites wrap these with context via
// github.com/pkg/errors so errors.Is/errors.Cause still resolve to the
// sentinel while a plain Error()/%v print carries the full chain.
var (
	// ErrUnknownMagic means the file's leading bytes matched no known
	// envelope (pcap or peek-tagged).
	ErrUnknownMagic = errors.New("dot11trace: unknown file magic")

	// ErrUnsupportedLinktype means a pcap global header named a
	// linktype this package does not decode (only 105 and 127 are
	// supported).
	ErrUnsupportedLinktype = errors.New("dot11trace: unsupported pcap linktype")

	// ErrUnsupportedPcapVersion means the pcap global header's version
	// was not 2.4.
	ErrUnsupportedPcapVersion = errors.New("dot11trace: unsupported pcap version")

	// ErrUnsupportedRadiotapVersion means the Radiotap header's it_version
	// was not 0.
	ErrUnsupportedRadiotapVersion = errors.New("dot11trace: unsupported radiotap version")

	// ErrMalformedPcap means a pcap structural invariant was violated
	// (e.g. incl_len > snaplen).
	ErrMalformedPcap = errors.New("dot11trace: malformed pcap record")

	// ErrMalformedRadiotap means the declared it_len was too short for
	// the fixed preamble, or a present-word chain ran past it_len.
	ErrMalformedRadiotap = errors.New("dot11trace: malformed radiotap header")

	// ErrMalformedPeekTagged means a peek-tagged section or tagged PHY
	// block violated the expected structure.
	ErrMalformedPeekTagged = errors.New("dot11trace: malformed peek-tagged record")

	// ErrBadArgument means a caller-supplied argument was out of range,
	// e.g. an unknown MCS index or bandwidth passed to McsToRate.
	ErrBadArgument = errors.New("dot11trace: bad argument")
)
