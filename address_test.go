// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMACAddr(t *testing.T) {
	m, err := ParseMACAddr("aa:BB:cc:00:11:22")
	require.NoError(t, err)
	assert.Equal(t, MACAddr{0xaa, 0xbb, 0xcc, 0x00, 0x11, 0x22}, m)
	assert.Equal(t, "aa:bb:cc:00:11:22", m.String())
}

func TestParseMACAddrInvalid(t *testing.T) {
	_, err := ParseMACAddr("not-a-mac")
	assert.Error(t, err)

	_, err = ParseMACAddr("aa:bb:cc:dd:ee")
	assert.Error(t, err)
}

func TestMACAddrPredicates(t *testing.T) {
	assert.True(t, BroadcastAddr.IsBroadcast())
	assert.True(t, BroadcastAddr.IsMulticast())
	assert.False(t, MACAddr{}.IsBroadcast())
	assert.True(t, MACAddr{}.IsZero())

	multicast := MACAddr{0x01, 0x00, 0x5e, 0, 0, 0}
	assert.True(t, multicast.IsMulticast())
	assert.False(t, multicast.IsBroadcast())

	unicast := MACAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	assert.False(t, unicast.IsMulticast())
}
