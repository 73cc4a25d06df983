// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BroadcastAddr is the all-ones 802.11 broadcast address.
var BroadcastAddr = MACAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// MACAddr is a 6-byte IEEE 802 MAC address, as carried in addr1..addr4
// of an 802.11 MAC header.
type MACAddr [6]byte

// ParseMACAddr parses a MAC address from its colon-separated hex string
// form. Case insensitive.
func ParseMACAddr(addr string) (MACAddr, error) {
	parts := strings.SplitN(addr, ":", 6)
	if len(parts) != 6 {
		return MACAddr{}, errors.Errorf("dot11trace: invalid MAC address %q: want 6 colon-separated octets", addr)
	}
	var m MACAddr
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return MACAddr{}, errors.Wrapf(err, "dot11trace: invalid MAC address %q", addr)
		}
		m[i] = byte(v)
	}
	return m, nil
}

// String formats the address as lowercase xx:xx:xx:xx:xx:xx, the form
// mandated for every decoded addr1..addr4 field.
func (m MACAddr) String() string {
	return fmt.Sprintf("%.2x:%.2x:%.2x:%.2x:%.2x:%.2x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is the all-ones broadcast address.
func (m MACAddr) IsBroadcast() bool { return m == BroadcastAddr }

// IsMulticast reports whether m's group bit (the low bit of the first
// octet) is set.
func (m MACAddr) IsMulticast() bool { return m[0]&0x01 != 0 }

// IsZero reports whether m is the all-zeroes address. Absent optional
// address fields of a Dot11Frame are nil pointers, not zero addresses.
func (m MACAddr) IsZero() bool { return m == MACAddr{} }
