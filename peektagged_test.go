// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package dot11trace

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendPeekTag(buf []byte, tag uint16, val uint32) []byte {
	t := make([]byte, 2)
	binary.LittleEndian.PutUint16(t, tag)
	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, val)
	return append(append(buf, t...), v...)
}

func buildPeekSection(tag string, payload []byte) []byte {
	hdr := make([]byte, 12)
	copy(hdr[0:4], tag)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	return append(hdr, payload...)
}

func TestNewPeektaggedDecoderParsesSessions(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(buildPeekSection(string(peektaggedMagic[:]), []byte(`<VersionInfo><MajorVersion>7</MajorVersion><MinorVersion>10</MinorVersion></VersionInfo>`)))
	buf.Write(buildPeekSection("sess", []byte(`<Session><PacketCount>10</PacketCount></Session>`)))
	buf.Write([]byte("pkts\x00\x00\x00\x00\x00\x00\x00\x00"))

	dec, err := newPeektaggedDecoder(&buf, Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, dec.totalPackets)
	assert.Equal(t, "7", dec.versionMajor)
	assert.True(t, dec.HasPhyInfo())
}

func TestPeektaggedReadOneQoSDataFrame(t *testing.T) {
	dest := MACAddr{0x62, 0x45, 0xb0, 0xfd, 0xd3, 0xba}
	src := MACAddr{0x7e, 0xed, 0x8c, 0xb4, 0x95, 0x28}

	fc := uint16(TypeData)<<2 | uint16(SubtypeQoSData)<<4 | (1 << 8) | (1 << 12) | (1 << 14)
	var mac []byte
	mac = append(mac, le16(fc)...)
	mac = append(mac, le16(160)...)
	mac = append(mac, dest[:]...)
	mac = append(mac, src[:]...)
	mac = append(mac, src[:]...)
	mac = append(mac, le16(uint16(3739)<<4)...)
	mac = append(mac, le16(0)...) // qos control

	var header []byte
	header = appendPeekTag(header, peekTagLen, 450)
	header = appendPeekTag(header, peekTagTSLow, 1000)
	header = appendPeekTag(header, peekTagTSHigh, 2000)
	header = appendPeekTag(header, peekTagFlags, 0)
	header = appendPeekTag(header, peekTagChannel, 1)
	header = appendPeekTag(header, peekTagRate, 130) // 65 Mbps * 2
	header = appendPeekTag(header, peekTagSignal, uint32(int32(-77)))
	header = appendPeekTag(header, peekTagNoise, uint32(int32(-91)))
	header = appendPeekTag(header, peekTagFreqMHz, 5825)
	header = appendPeekTag(header, peekTagCaplen, uint32(len(mac)))

	var buf bytes.Buffer
	buf.Write([]byte("pkts\x00\x00\x00\x00\x00\x00\x00\x00"))
	buf.Write(header)
	buf.Write(mac)

	var sectionOnly bytes.Buffer
	sectionOnly.Write(buf.Bytes()[12:]) // skip the "pkts" section header consumed by newPeektaggedDecoder

	dec := &peektaggedDecoder{r: &sectionOnly}
	f, err := dec.ReadOne(1)
	require.NoError(t, err)

	assert.Equal(t, TypeData, f.Type)
	assert.EqualValues(t, SubtypeQoSData, f.Subtype)
	assert.True(t, f.ToDS)
	assert.True(t, f.Power)
	assert.True(t, f.Protected)
	assert.EqualValues(t, 160, f.Duration)
	require.NotNil(t, f.Dest())
	assert.Equal(t, "62:45:b0:fd:d3:ba", f.Dest().String())
	require.NotNil(t, f.Src())
	assert.Equal(t, "7e:ed:8c:b4:95:28", f.Src().String())
	require.NotNil(t, f.SeqNum)
	assert.EqualValues(t, 3739, *f.SeqNum)

	assert.True(t, f.Phy.HasFCS)
	require.NotNil(t, f.Phy.Signal)
	assert.EqualValues(t, -77, *f.Phy.Signal)
	require.NotNil(t, f.Phy.Noise)
	assert.EqualValues(t, -91, *f.Phy.Noise)
	require.NotNil(t, f.Phy.FreqMHz)
	assert.EqualValues(t, 5825, *f.Phy.FreqMHz)
	require.NotNil(t, f.Phy.Rate)
	assert.InDelta(t, 65.0, *f.Phy.Rate, 1e-9)
	assert.Nil(t, f.Phy.MCS)
	assert.EqualValues(t, 450, f.Phy.Len)
	assert.EqualValues(t, len(mac), f.Phy.Caplen)

	require.NotNil(t, f.Phy.EndEpochTS)
	dur := 450.0 * 8 / 65.0 * 1e-6
	assert.InDelta(t, *f.Phy.EndEpochTS-dur, f.Phy.EpochTS, 1e-9)
}

func TestPeektaggedMCSIndexUsed(t *testing.T) {
	var header []byte
	header = appendPeekTag(header, peekTagLen, 100)
	header = appendPeekTag(header, peekTagTSLow, 0)
	header = appendPeekTag(header, peekTagTSHigh, 0)
	header = appendPeekTag(header, peekTagFlags, 0)
	header = appendPeekTag(header, peekTagExtFlags, extFlagsMCSIndexUsed)
	header = appendPeekTag(header, peekTagRate, 5) // mcs index, not halved
	header = appendPeekTag(header, peekTagCaplen, 10)

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(make([]byte, 10))

	dec := &peektaggedDecoder{r: &buf}
	f, err := dec.ReadOne(1)
	require.NoError(t, err)

	require.NotNil(t, f.Phy.MCS)
	assert.EqualValues(t, 5, *f.Phy.MCS)
	require.NotNil(t, f.Phy.Rate)
	assert.InDelta(t, 52.0, *f.Phy.Rate, 1e-9) // mcsTable[5][20MHz-LGI]
}

func TestPeektaggedFCSErrorFlag(t *testing.T) {
	var header []byte
	header = appendPeekTag(header, peekTagLen, 10)
	header = appendPeekTag(header, peekTagTSLow, 0)
	header = appendPeekTag(header, peekTagTSHigh, 0)
	header = appendPeekTag(header, peekTagFlags, 0x0002)
	header = appendPeekTag(header, peekTagRate, 2)
	header = appendPeekTag(header, peekTagCaplen, 10)

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(make([]byte, 10))

	dec := &peektaggedDecoder{r: &buf}
	f, err := dec.ReadOne(1)
	require.NoError(t, err)
	require.NotNil(t, f.Phy.FCSError)
	assert.True(t, *f.Phy.FCSError)
}

func TestWinTSToUnixEpochFormula(t *testing.T) {
	got := winTSToUnixEpoch(1000, 2000)
	want := float64(1000)*(4294967296.0/1e9) + float64(2000)/1e9 - 11644473600
	assert.Equal(t, want, got)
}
