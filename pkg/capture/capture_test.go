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

package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpspod/go-gpspod/pkg/layers"
	"github.com/gpspod/go-gpspod/pkg/message"
)

func TestRecordingSaveLoad(t *testing.T) {
	for _, name := range []string{"rec.json", "rec.json.gz"} {
		rec := &Recording{}
		rec.AddOutgoing([]byte{1, 2, 3})
		rec.AddIncoming([]byte{4, 5})
		rec.AddIncoming([]byte{6})

		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, rec.Save(path))

		back, err := Load(path)
		require.NoError(t, err, name)
		require.Len(t, back.Outgoing, 1)
		require.Len(t, back.Incoming, 2)
		assert.Equal(t, []byte{1, 2, 3}, back.Outgoing[0].Data)
		assert.Equal(t, []byte{4, 5}, back.Incoming[0].Data)
		assert.Equal(t, []byte{6}, back.Incoming[1].Data)
	}
}

func TestRecordingCombinedOrder(t *testing.T) {
	rec := &Recording{
		Incoming: []Entry{{Time: 2, Data: []byte{2}}, {Time: 4, Data: []byte{4}}},
		Outgoing: []Entry{{Time: 1, Data: []byte{1}}, {Time: 3, Data: []byte{3}}},
	}
	combined := rec.Combined()
	require.Len(t, combined, 4)
	for i, p := range combined {
		assert.Equal(t, byte(i+1), p.Data[0])
	}
	assert.False(t, combined[0].Incoming)
	assert.True(t, combined[1].Incoming)
}

func TestReplayTransport(t *testing.T) {
	rec := &Recording{
		Outgoing: []Entry{{Time: 0, Data: []byte{1, 2}}},
		Incoming: []Entry{{Time: 1, Data: []byte{3, 4}}},
	}
	tr := NewReplayTransport(rec)
	require.NoError(t, tr.Open())

	// A mismatching write is tolerated.
	require.NoError(t, tr.WritePacket([]byte{9, 9}))
	require.NoError(t, tr.WritePacket([]byte{5}))

	data, err := tr.ReadPacket(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, data)

	_, err = tr.ReadPacket(time.Second)
	_, ok := err.(ErrReplayExhausted)
	assert.True(t, ok)
}

func TestRecordingTransportTees(t *testing.T) {
	inner := NewReplayTransport(&Recording{
		Incoming: []Entry{{Time: 0, Data: []byte{7, 8}}},
	})
	tr := NewRecordingTransport(inner, "")
	require.NoError(t, tr.Open())
	require.NoError(t, tr.WritePacket([]byte{1}))

	data, err := tr.ReadPacket(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, data)
	require.NoError(t, tr.Close())

	rec := tr.Recording()
	require.Len(t, rec.Outgoing, 1)
	require.Len(t, rec.Incoming, 1)
	assert.Equal(t, []byte{1}, rec.Outgoing[0].Data)
	assert.Equal(t, []byte{7, 8}, rec.Incoming[0].Data)
}

func TestReconstructFilesystem(t *testing.T) {
	reply := &message.DataReply{Position: 512, Length: 512}
	for i := range reply.Data {
		reply.Data[i] = byte(i)
	}
	wire, err := message.Encode(reply, 0)
	require.NoError(t, err)
	packets, err := layers.Packetize(wire)
	require.NoError(t, err)

	rec := &Recording{}
	for _, p := range packets {
		rec.Incoming = append(rec.Incoming, Entry{Data: p.Serialize()})
	}

	fs, covered := ReconstructFilesystem(rec, 2048)
	assert.False(t, covered[511])
	assert.True(t, covered[512])
	assert.True(t, covered[1023])
	assert.False(t, covered[1024])
	assert.Equal(t, byte(0), fs[512])
	assert.Equal(t, byte(255), fs[512+255])
}

const pdmlSample = `<?xml version="1.0"?>
<pdml>
  <packet>
    <proto name="frame">
      <field name="frame.time_epoch" show="100.0"/>
    </proto>
    <proto name="usb">
      <field name="usb.urb_id" value="ffff880123456789"/>
      <field name="usb.urb_type" value="53" show="URB_SUBMIT"/>
      <field name="usb.urb_status" value="0"/>
      <field name="usb.endpoint_number" value="02">
        <field name="usb.endpoint_number.direction" show="0"/>
        <field name="usb.endpoint_number.endpoint" show="2"/>
      </field>
      <field name="usb.capdata" value="0102"/>
    </proto>
  </packet>
  <packet>
    <proto name="frame">
      <field name="frame.time_epoch" show="100.5"/>
    </proto>
    <proto name="usb">
      <field name="usb.urb_id" value="ffff880123456789"/>
      <field name="usb.urb_type" value="43" show="URB_COMPLETE"/>
      <field name="usb.urb_status" value="0"/>
      <field name="usb.endpoint_number" value="02">
        <field name="usb.endpoint_number.direction" show="0"/>
        <field name="usb.endpoint_number.endpoint" show="2"/>
      </field>
    </proto>
  </packet>
  <packet>
    <proto name="frame">
      <field name="frame.time_epoch" show="101.0"/>
    </proto>
    <proto name="usb">
      <field name="usb.urb_id" value="ffff880123456790"/>
      <field name="usb.urb_type" value="53" show="URB_SUBMIT"/>
      <field name="usb.urb_status" value="0"/>
      <field name="usb.endpoint_number" value="82">
        <field name="usb.endpoint_number.direction" show="1"/>
        <field name="usb.endpoint_number.endpoint" show="2"/>
      </field>
    </proto>
  </packet>
  <packet>
    <proto name="frame">
      <field name="frame.time_epoch" show="101.5"/>
    </proto>
    <proto name="usb">
      <field name="usb.urb_id" value="ffff880123456790"/>
      <field name="usb.urb_type" value="43" show="URB_COMPLETE"/>
      <field name="usb.urb_status" value="0"/>
      <field name="usb.endpoint_number" value="82">
        <field name="usb.endpoint_number.direction" show="1"/>
        <field name="usb.endpoint_number.endpoint" show="2"/>
      </field>
      <field name="usb.capdata" value="0304"/>
    </proto>
  </packet>
</pdml>
`

func TestLoadPDML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.xml")
	require.NoError(t, os.WriteFile(path, []byte(pdmlSample), 0644))

	rec, err := LoadAny(path)
	require.NoError(t, err)

	// Outgoing data rides on the submission, incoming on the completion.
	require.Len(t, rec.Outgoing, 1)
	require.Len(t, rec.Incoming, 1)
	assert.Equal(t, []byte{1, 2}, rec.Outgoing[0].Data)
	assert.Equal(t, []byte{3, 4}, rec.Incoming[0].Data)
	assert.Equal(t, 0.0, rec.Outgoing[0].Time)
	assert.Equal(t, 1.5, rec.Incoming[0].Time)
}
