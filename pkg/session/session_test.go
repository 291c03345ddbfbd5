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

package session

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpspod/go-gpspod/pkg/layers"
	"github.com/gpspod/go-gpspod/pkg/message"
)

// Captured device info exchange.
const (
	deviceInfoRequestHex = "3f185d1001002fb800000100000000000400000002045900af4f"
	deviceInfoReply1Hex  = "3f3e5d3602001ad9000202000900000030000000" +
		"477073506f6400000000000000000000" +
		"3837363139393436313730303130303001062700420200000104" + "29c8"
	deviceInfoReply2Hex = "3f0e5e06010030d20300000200009a83"
)

type fakeTransport struct {
	opened  bool
	written [][]byte
	queue   [][]byte
}

func (f *fakeTransport) Open() error  { f.opened = true; return nil }
func (f *fakeTransport) Close() error { f.opened = false; return nil }

func (f *fakeTransport) WritePacket(data []byte) error {
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) ReadPacket(timeout time.Duration) ([]byte, error) {
	if len(f.queue) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	data := f.queue[0]
	f.queue = f.queue[1:]
	return data, nil
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(s)
	require.NoError(t, err)
	return data
}

func TestSessionDeviceInfoExchange(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr)
	require.NoError(t, s.Open())
	assert.True(t, tr.opened)

	tr.queue = [][]byte{
		mustHex(t, deviceInfoReply1Hex),
		mustHex(t, deviceInfoReply2Hex),
	}

	reply, err := s.Request(message.NewDeviceInfoRequest())
	require.NoError(t, err)

	// The request serializes exactly to the captured bytes.
	require.Len(t, tr.written, 1)
	assert.Equal(t, mustHex(t, deviceInfoRequestHex), tr.written[0])

	info, ok := reply.(*message.DeviceInfoReply)
	require.True(t, ok)
	assert.Equal(t, "GpsPod", info.ModelString())
	assert.Equal(t, "8761994617001000", info.SerialString())
	assert.Equal(t, [4]uint8{1, 6, 39, 0}, info.FWVersion)

	require.NoError(t, s.Close())
	assert.False(t, tr.opened)
}

func TestSessionMultiFragmentRead(t *testing.T) {
	payload := make([]byte, 150)
	for i := range payload {
		payload[i] = byte(i)
	}
	raw := &message.RawMessage{
		Header: message.Header{Command: 0x7777, Direction: 0x0005, Format: message.DefaultFormat},
		Data:   payload,
	}
	wire, err := message.Encode(raw, 3)
	require.NoError(t, err)
	packets, err := layers.Packetize(wire)
	require.NoError(t, err)
	require.Len(t, packets, 3)

	tr := &fakeTransport{}
	for _, p := range packets {
		tr.queue = append(tr.queue, p.Serialize())
	}

	m, err := New(tr).ReadMessage()
	require.NoError(t, err)
	got, ok := m.(*message.RawMessage)
	require.True(t, ok)
	assert.Equal(t, payload, got.Data)
}

func TestSessionDamagedPacketSkipped(t *testing.T) {
	tr := &fakeTransport{}
	damaged := mustHex(t, deviceInfoReply1Hex)
	damaged[4] ^= 0xFF
	tr.queue = [][]byte{
		damaged,
		mustHex(t, deviceInfoReply1Hex),
		mustHex(t, deviceInfoReply2Hex),
	}

	m, err := New(tr).ReadMessage()
	require.NoError(t, err)
	_, ok := m.(*message.DeviceInfoReply)
	assert.True(t, ok)
}

func TestSessionReadTimeout(t *testing.T) {
	s := New(&fakeTransport{})
	s.ReadTimeout = 20 * time.Millisecond

	_, err := s.ReadMessage()
	require.Error(t, err)
	_, ok := err.(ErrReadTimeout)
	assert.True(t, ok)
}

func TestSessionSequenceNumbers(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr)

	require.NoError(t, s.WriteMessage(&message.DeviceStatusRequest{}))
	require.NoError(t, s.WriteMessage(&message.DeviceStatusRequest{}))
	require.Len(t, tr.written, 2)

	for i, frame := range tr.written {
		p, err := layers.DecodePacket(frame)
		require.NoError(t, err)
		_, h, err := message.Decode(p.Data())
		require.NoError(t, err)
		assert.Equal(t, uint16(i), h.PacketSequence)
	}
}
