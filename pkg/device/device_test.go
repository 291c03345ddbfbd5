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

package device

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/layers"
	"github.com/gpspod/go-gpspod/pkg/message"
	"github.com/gpspod/go-gpspod/pkg/pmem"
	"github.com/gpspod/go-gpspod/pkg/session"
)

// fakePod emulates a device behind the packet transport: it reassembles
// written packets into requests and queues reply packets.
type fakePod struct {
	feed     *layers.PacketFeed
	queue    [][]byte
	sequence uint16

	fs            []byte
	fetches       int
	wrongPosition int // answer this many data requests with the wrong block
	mute          bool
	ops           []string
	sgeeChunks    []int
}

func newFakePod() *fakePod {
	fs := make([]byte, pmem.FilesystemSize)
	for i := range fs {
		fs[i] = byte(i)
	}
	return &fakePod{feed: layers.NewPacketFeed(), fs: fs}
}

func (f *fakePod) Open() error  { return nil }
func (f *fakePod) Close() error { return nil }

func (f *fakePod) reply(m message.Message) {
	data, err := message.Encode(m, f.sequence)
	if err != nil {
		panic(err)
	}
	f.sequence++
	packets, err := layers.Packetize(data)
	if err != nil {
		panic(err)
	}
	for _, p := range packets {
		f.queue = append(f.queue, p.Serialize())
	}
}

func (f *fakePod) WritePacket(data []byte) error {
	p, err := layers.DecodePacket(data)
	if err != nil {
		return err
	}
	raw := f.feed.Feed(p)
	if raw == nil {
		return nil
	}
	m, _, err := message.Decode(raw)
	if err != nil {
		return err
	}
	f.handle(m)
	return nil
}

func (f *fakePod) handle(m message.Message) {
	if f.mute {
		return
	}
	switch req := m.(type) {
	case *message.DeviceInfoRequest:
		info := &message.DeviceInfoReply{FWVersion: [4]uint8{1, 6, 39, 0}}
		copy(info.Model[:], "GpsPod")
		copy(info.Serial[:], "8761994617001000")
		f.reply(info)
	case *message.LockStatusRequest:
		f.reply(&message.LockStatusReply{})
	case *message.DeviceStatusRequest:
		f.reply(&message.DeviceStatusReply{Charge: 77})
	case *message.SetDateRequest:
		f.ops = append(f.ops, "date")
		f.reply(&message.SetDateReply{})
	case *message.SetTimeRequest:
		f.ops = append(f.ops, "time")
		f.reply(&message.SetTimeReply{})
	case *message.LogSettingsBeginRequest:
		f.ops = append(f.ops, "begin")
		f.reply(&message.LogSettingsBeginReply{})
	case *message.WriteLogSettingsRequest:
		f.ops = append(f.ops, "write")
		f.reply(&message.WriteLogSettingsReply{})
	case *message.LogSettingsCommitRequest:
		f.ops = append(f.ops, "commit")
		f.reply(&message.LogSettingsCommitReply{})
	case *message.LogCountRequest:
		f.reply(&message.LogCountReply{Count: 3})
	case *message.WriteSGEERequest:
		f.sgeeChunks = append(f.sgeeChunks, len(req.Data))
		f.reply(&message.WriteSGEEReply{})
	case *message.DataRequest:
		f.fetches++
		reply := &message.DataReply{Position: req.Position, Length: req.Length}
		if f.wrongPosition > 0 {
			f.wrongPosition--
			reply.Position += message.DataBlockSize
		}
		copy(reply.Data[:], f.fs[reply.Position:])
		f.reply(reply)
	}
}

func (f *fakePod) ReadPacket(timeout time.Duration) ([]byte, error) {
	if len(f.queue) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	data := f.queue[0]
	f.queue = f.queue[1:]
	return data, nil
}

func testConfig() *config.DeviceConfig {
	return &config.DeviceConfig{RetryCount: 3, RetryDelayMs: 0}
}

func openPod(t *testing.T, fake *fakePod) *Pod {
	t.Helper()
	pod := New(session.New(fake), testConfig())
	require.NoError(t, pod.Open())
	return pod
}

func TestPodInfoAndStatus(t *testing.T) {
	fake := newFakePod()
	pod := openPod(t, fake)
	defer pod.Close()

	info, err := pod.Info()
	require.NoError(t, err)
	assert.Equal(t, "GpsPod", info.ModelString())
	assert.Equal(t, "8761994617001000", info.SerialString())

	status, err := pod.Status()
	require.NoError(t, err)
	assert.Equal(t, uint8(77), status.Charge)

	count, err := pod.LogCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPodSliceFetchesOnDemand(t *testing.T) {
	fake := newFakePod()
	pod := openPod(t, fake)
	defer pod.Close()

	data, err := pod.Slice(1000, 100)
	require.NoError(t, err)
	assert.Equal(t, fake.fs[1000:1100], data)
	assert.Equal(t, 1, fake.fetches)

	// Same block again, no new transfer.
	_, err = pod.Slice(1100, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.fetches)

	// A range spanning a block boundary fetches the second block.
	_, err = pod.Slice(1500, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.fetches)
}

func TestPodTransferBlockRetries(t *testing.T) {
	fake := newFakePod()
	fake.wrongPosition = 2
	pod := openPod(t, fake)
	defer pod.Close()

	block, err := pod.TransferBlock(4)
	require.NoError(t, err)
	assert.Equal(t, fake.fs[4*message.DataBlockSize:5*message.DataBlockSize], block)
	assert.Equal(t, 3, fake.fetches)
}

func TestPodBlockUnavailable(t *testing.T) {
	fake := newFakePod()
	pod := New(session.New(fake), &config.DeviceConfig{RetryCount: 1, RetryDelayMs: 0})
	require.NoError(t, pod.Open())
	defer pod.Close()

	fake.mute = true
	pod.session.ReadTimeout = 10 * time.Millisecond
	_, err := pod.TransferBlock(0)
	require.Error(t, err)
	blockErr, ok := err.(ErrBlockUnavailable)
	require.True(t, ok)
	assert.Equal(t, 0, blockErr.Index)
}

func TestPodSetTimeOrder(t *testing.T) {
	fake := newFakePod()
	pod := openPod(t, fake)
	defer pod.Close()

	require.NoError(t, pod.SetTime(time.Date(2016, 3, 27, 9, 0, 5, 0, time.UTC)))
	assert.Equal(t, []string{"date", "time"}, fake.ops)
}

func TestPodWriteLogSettingsTransaction(t *testing.T) {
	fake := newFakePod()
	pod := openPod(t, fake)
	defer pod.Close()

	settings := message.LogSettings{Interval: 1, Autosleep: 10}
	require.NoError(t, pod.WriteLogSettings(settings))
	assert.Equal(t, []string{"begin", "write", "commit"}, fake.ops)
}

func TestPodWriteSGEEChunks(t *testing.T) {
	fake := newFakePod()
	pod := openPod(t, fake)
	defer pod.Close()

	data := make([]byte, 1200)
	require.NoError(t, pod.WriteSGEE(data))
	assert.Equal(t, []int{500, 500, 200}, fake.sgeeChunks)

	err := pod.WriteSGEE(make([]byte, MaxSGEESize+1))
	require.Error(t, err)
}

func TestBlockCache(t *testing.T) {
	cache, err := OpenBlockCache(filepath.Join(t.TempDir(), "blocks.db"))
	require.NoError(t, err)
	defer cache.Close()

	assert.Nil(t, cache.Get("serial", 7))

	block := make([]byte, message.DataBlockSize)
	block[0] = 0xAB
	require.NoError(t, cache.Put("serial", 7, block))
	assert.Equal(t, block, cache.Get("serial", 7))
	assert.Nil(t, cache.Get("other", 7))

	require.NoError(t, cache.Drop("serial"))
	assert.Nil(t, cache.Get("serial", 7))
}

func TestPodReadsThroughCache(t *testing.T) {
	cache, err := OpenBlockCache(filepath.Join(t.TempDir(), "blocks.db"))
	require.NoError(t, err)
	defer cache.Close()

	fake := newFakePod()
	pod := openPod(t, fake)
	pod.SetCache(cache)
	_, err = pod.Slice(0, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.fetches)
	pod.Close()

	// A second pod with the same cache reads the block without touching
	// the device.
	fake2 := newFakePod()
	pod2 := openPod(t, fake2)
	pod2.SetCache(cache)
	defer pod2.Close()

	data, err := pod2.Slice(0, 100)
	require.NoError(t, err)
	assert.Equal(t, fake.fs[:100], data)
	assert.Equal(t, 0, fake2.fetches)
}
