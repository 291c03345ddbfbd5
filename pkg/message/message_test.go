/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package message

import (
	"encoding/hex"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Captured device info exchange, fragment payloads concatenated.
const (
	deviceInfoRequestHex = "00000100000000000400000002045900"
	deviceInfoReplyHex   = "000202000900000030000000" +
		"477073506f6400000000000000000000" +
		"38373631393934363137303031303030" +
		"01062700" + "42020000" + "01040300" + "00020000"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(s)
	require.NoError(t, err)
	return data
}

func TestEncodeDeviceInfoRequest(t *testing.T) {
	data, err := Encode(NewDeviceInfoRequest(), 0)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, deviceInfoRequestHex), data)
}

func TestDecodeDeviceInfoRequest(t *testing.T) {
	m, h, err := Decode(mustHex(t, deviceInfoRequestHex))
	require.NoError(t, err)

	assert.Equal(t, uint16(0x0000), h.Command)
	assert.Equal(t, uint16(0x0001), h.Direction)
	assert.Equal(t, uint32(4), h.BodyLength)

	req, ok := m.(*DeviceInfoRequest)
	require.True(t, ok)
	assert.Equal(t, [4]uint8{2, 4, 89, 0}, req.Version)
}

func TestDecodeDeviceInfoReply(t *testing.T) {
	// The reply body is longer than the declared layout, the tail is
	// ignored.
	m, h, err := Decode(mustHex(t, deviceInfoReplyHex))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x30), h.BodyLength)

	info, ok := m.(*DeviceInfoReply)
	require.True(t, ok)
	assert.Equal(t, "GpsPod", info.ModelString())
	assert.Equal(t, "8761994617001000", info.SerialString())
	assert.Equal(t, [4]uint8{1, 6, 39, 0}, info.FWVersion)
	assert.Equal(t, [4]uint8{66, 2, 0, 0}, info.HWVersion)
	assert.Equal(t, [4]uint8{1, 4, 3, 0}, info.BSLVersion)
}

func TestRegistryRoundTrip(t *testing.T) {
	for _, m := range Registered() {
		data, err := Encode(m, 42)
		require.NoError(t, err, "%T", m)

		back, h, err := Decode(data)
		require.NoError(t, err, "%T", m)
		assert.Equal(t, uint16(42), h.PacketSequence)
		assert.Equal(t, reflect.TypeOf(m), reflect.TypeOf(back), "%T", m)
	}
}

func TestDecodeShortBodyZeroPads(t *testing.T) {
	// A registered type decodes a truncated body without error.
	for _, m := range Registered() {
		data, err := Encode(m, 0)
		require.NoError(t, err, "%T", m)

		back, _, err := Decode(data[:HeaderSize])
		require.NoError(t, err, "%T", m)
		assert.Equal(t, reflect.TypeOf(m), reflect.TypeOf(back), "%T", m)
	}
}

func TestCommandOnlyMatch(t *testing.T) {
	// SetTimeReply is matched on command alone, the direction varies.
	h := Header{Command: 0x000A, Direction: 0x8123, Format: DefaultFormat}
	data := make([]byte, HeaderSize)
	h.Marshal(data)

	m, _, err := Decode(data)
	require.NoError(t, err)
	_, ok := m.(*SetTimeReply)
	assert.True(t, ok)
}

func TestRawFallback(t *testing.T) {
	h := Header{Command: 0x7777, Direction: 0x0005, Format: DefaultFormat, BodyLength: 3}
	data := make([]byte, HeaderSize+3)
	h.Marshal(data)
	copy(data[HeaderSize:], []byte{1, 2, 3})

	m, _, err := Decode(data)
	require.NoError(t, err)
	raw, ok := m.(*RawMessage)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, raw.Data)

	back, err := Encode(raw, h.PacketSequence)
	require.NoError(t, err)
	assert.Equal(t, data, back)
}

func TestDecodeTooShort(t *testing.T) {
	_, _, err := Decode(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestDataReplyContent(t *testing.T) {
	r := &DataReply{Position: 0x1000, Length: 16}
	assert.Len(t, r.Content(), 16)

	r.Length = DataBlockSize + 100
	assert.Len(t, r.Content(), DataBlockSize)
}

func TestWriteSGEERequestBody(t *testing.T) {
	m := &WriteSGEERequest{Sequence: 7, Data: []byte{9, 8, 7}}
	data, err := Encode(m, 0)
	require.NoError(t, err)

	back, _, err := Decode(data)
	require.NoError(t, err)
	got, ok := back.(*WriteSGEERequest)
	require.True(t, ok)
	assert.Equal(t, uint32(7), got.Sequence)
	assert.Equal(t, []byte{9, 8, 7}, got.Data)

	m.Data = make([]byte, SGEEChunkSize+1)
	_, err = Encode(m, 0)
	assert.Error(t, err)
}

func TestNewDateTime(t *testing.T) {
	d := NewDateTime(time.Date(2016, 3, 27, 9, 4, 5, 500e6, time.UTC))
	assert.Equal(t, DateTime{Year: 2016, Month: 3, Day: 27, Hour: 9, Minute: 4, Ms: 5500}, d)
}
