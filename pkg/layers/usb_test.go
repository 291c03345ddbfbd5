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

package layers

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Device info request as captured from the pod. Header, 16 byte command
// payload, trailing payload checksum.
const deviceInfoRequestHex = "3f185d1001002fb800000100000000000400000002045900af4f"

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(s)
	require.NoError(t, err)
	return data
}

func TestChecksum16KnownVectors(t *testing.T) {
	header := Checksum16(CrcInit, []byte{0x5D, 0x10, 0x01, 0x00})
	assert.Equal(t, uint16(0xB82F), header)

	payload := mustHex(t, "00000100000000000400000002045900")
	assert.Equal(t, uint16(0x4FAF), Checksum16(header, payload))

	header = Checksum16(CrcInit, []byte{0x5E, 0x06, 0x01, 0x00})
	assert.Equal(t, uint16(0xD230), header)
	assert.Equal(t, uint16(0x839A), Checksum16(header, mustHex(t, "030000020000")))
}

func TestDecodeKnownPacket(t *testing.T) {
	data := mustHex(t, deviceInfoRequestHex)

	p, err := DecodePacket(data)
	require.NoError(t, err)

	assert.Equal(t, uint8(PacketMagic), p.Header.Magic)
	assert.Equal(t, uint8(24), p.Header.UsbLength)
	assert.True(t, p.Header.IsFirst())
	assert.Equal(t, 1, p.Header.PartCount())
	assert.Equal(t, uint8(16), p.Header.PayloadLength)
	assert.Equal(t, uint16(0xB82F), p.Header.Checksum)

	chunk := p.Data()
	require.NotNil(t, chunk)
	assert.Equal(t, mustHex(t, "00000100000000000400000002045900"), chunk)
}

func TestSerializeKnownPacket(t *testing.T) {
	want := mustHex(t, deviceInfoRequestHex)

	p := &UsbPacketLayer{}
	p.Header.Part = PartFirst
	p.Header.Sequence = 1
	require.NoError(t, p.SetData(mustHex(t, "00000100000000000400000002045900")))

	assert.Equal(t, want, p.Serialize())
}

func TestDecodeDamagedHeader(t *testing.T) {
	data := mustHex(t, deviceInfoRequestHex)
	data[4] ^= 0x01

	_, err := DecodePacket(data)
	assert.Error(t, err)
}

func TestDamagedPayload(t *testing.T) {
	data := mustHex(t, deviceInfoRequestHex)
	data[10] ^= 0x01

	p, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Nil(t, p.Data())
}

func TestDecodeTruncated(t *testing.T) {
	data := mustHex(t, deviceInfoRequestHex)

	for _, n := range []int{0, 5, UsbHeaderSize, len(data) - 1} {
		_, err := DecodePacket(data[:n])
		assert.Error(t, err, "length %d", n)
	}
}

func TestPacketizeSplitting(t *testing.T) {
	tests := []struct {
		size  int
		parts int
	}{
		{0, 1},
		{1, 1},
		{MaxChunkSize, 1},
		{MaxChunkSize + 1, 2},
		{2 * MaxChunkSize, 2},
		{MaxMessageSize, 10},
	}

	for _, tt := range tests {
		message := make([]byte, tt.size)
		for i := range message {
			message[i] = byte(i)
		}

		packets, err := Packetize(message)
		require.NoError(t, err)
		require.Len(t, packets, tt.parts, "size %d", tt.size)

		assert.True(t, packets[0].Header.IsFirst())
		assert.Equal(t, tt.parts, packets[0].Header.PartCount())
		for i, p := range packets[1:] {
			assert.Equal(t, uint8(PartContinuation), p.Header.Part)
			assert.Equal(t, uint16(i+1), p.Header.Sequence)
		}

		var assembled []byte
		for _, p := range packets {
			chunk := p.Data()
			require.NotNil(t, chunk)
			assembled = append(assembled, chunk...)
		}
		assert.True(t, bytes.Equal(message, assembled), "size %d", tt.size)
	}
}

func TestPacketizeTooLong(t *testing.T) {
	_, err := Packetize(make([]byte, MaxMessageSize+1))
	assert.Error(t, err)
}

func TestPacketWireRoundTrip(t *testing.T) {
	message := make([]byte, 123)
	for i := range message {
		message[i] = byte(3 * i)
	}

	packets, err := Packetize(message)
	require.NoError(t, err)

	for _, p := range packets {
		wire := p.Serialize()
		assert.Len(t, wire, p.WireLength())

		back, err := DecodePacket(wire)
		require.NoError(t, err)
		assert.Equal(t, p.Header, back.Header)
		assert.Equal(t, p.Data(), back.Data())
	}
}
