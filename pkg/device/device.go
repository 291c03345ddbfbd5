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

// Package device implements the operations of one connected pod on top of
// the message session: identification, clock and settings management,
// ephemeris upload and on demand filesystem reads. A Pod is a pmem.Image,
// so the log decoder pulls blocks from the device transparently.
package device

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/message"
	"github.com/gpspod/go-gpspod/pkg/pmem"
	"github.com/gpspod/go-gpspod/pkg/session"
)

// MaxSGEESize bounds one ephemeris upload.
const MaxSGEESize = 100000

// blockCount is the number of transfer blocks in the filesystem.
const blockCount = pmem.FilesystemSize / message.DataBlockSize

// ErrBlockUnavailable is returned when a filesystem block could not be
// read within the configured number of attempts.
type ErrBlockUnavailable struct {
	Index int
}

func (e ErrBlockUnavailable) Error() string {
	return fmt.Sprintf("block %d could not be read from the device", e.Index)
}

// ErrUnexpectedReply is returned when the device answers a request with a
// message of the wrong type.
type ErrUnexpectedReply struct {
	Request string
	Reply   string
}

func (e ErrUnexpectedReply) Error() string {
	return fmt.Sprintf("unexpected reply to %s: %s", e.Request, e.Reply)
}

// Pod is one connected device. Operations are synchronous, the protocol
// is half duplex.
type Pod struct {
	session    *session.Session
	cache      *BlockCache
	retryCount int
	retryDelay time.Duration

	info    *message.DeviceInfoReply
	fs      []byte
	fetched []bool
}

func New(sess *session.Session, cfg *config.DeviceConfig) *Pod {
	return &Pod{
		session:    sess,
		retryCount: cfg.RetryCount,
		retryDelay: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		fs:         make([]byte, pmem.FilesystemSize),
		fetched:    make([]bool, blockCount),
	}
}

// SetCache attaches a persistent block cache. Cached blocks are keyed by
// the device serial, Open must succeed before the cache is consulted.
func (p *Pod) SetCache(c *BlockCache) {
	p.cache = c
}

// Open opens the session and identifies the device.
func (p *Pod) Open() error {
	if err := p.session.Open(); err != nil {
		return err
	}
	info, err := p.Info()
	if err != nil {
		p.session.Close()
		return err
	}
	if err := p.CheckLock(); err != nil {
		p.session.Close()
		return err
	}
	log.Info("Connected: %s", info.String())
	return nil
}

func (p *Pod) Close() error {
	return p.session.Close()
}

func replyError(request, reply message.Message) error {
	return ErrUnexpectedReply{
		Request: fmt.Sprintf("%T", request),
		Reply:   fmt.Sprintf("%T", reply),
	}
}

// Info returns the device identification, fetching it once.
func (p *Pod) Info() (*message.DeviceInfoReply, error) {
	if p.info != nil {
		return p.info, nil
	}
	req := message.NewDeviceInfoRequest()
	reply, err := p.session.Request(req)
	if err != nil {
		return nil, err
	}
	info, ok := reply.(*message.DeviceInfoReply)
	if !ok {
		return nil, replyError(req, reply)
	}
	p.info = info
	return info, nil
}

// Status reads the battery charge state.
func (p *Pod) Status() (*message.DeviceStatusReply, error) {
	req := &message.DeviceStatusRequest{}
	reply, err := p.session.Request(req)
	if err != nil {
		return nil, err
	}
	status, ok := reply.(*message.DeviceStatusReply)
	if !ok {
		return nil, replyError(req, reply)
	}
	return status, nil
}

// CheckLock performs the lock status exchange done on connect.
func (p *Pod) CheckLock() error {
	req := &message.LockStatusRequest{}
	reply, err := p.session.Request(req)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.LockStatusReply); !ok {
		return replyError(req, reply)
	}
	return nil
}

// SetTime sets the device clock. The vendor software writes the date
// first and the time of day second, the device acknowledges each step.
func (p *Pod) SetTime(t time.Time) error {
	dt := message.NewDateTime(t)

	req := &message.SetDateRequest{DateTime: dt}
	reply, err := p.session.Request(req)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.SetDateReply); !ok {
		return replyError(req, reply)
	}

	treq := &message.SetTimeRequest{DateTime: dt}
	reply, err = p.session.Request(treq)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.SetTimeReply); !ok {
		return replyError(treq, reply)
	}
	return nil
}

// Settings reads the personal settings blob.
func (p *Pod) Settings() ([message.SettingsSize]uint8, error) {
	req := &message.ReadSettingsRequest{}
	reply, err := p.session.Request(req)
	if err != nil {
		return [message.SettingsSize]uint8{}, err
	}
	settings, ok := reply.(*message.ReadSettingsReply)
	if !ok {
		return [message.SettingsSize]uint8{}, replyError(req, reply)
	}
	return settings.Data, nil
}

// WriteSettings writes the personal settings blob back.
func (p *Pod) WriteSettings(data [message.SettingsSize]uint8) error {
	req := &message.WriteSettingsRequest{Data: data}
	reply, err := p.session.Request(req)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.WriteSettingsReply); !ok {
		return replyError(req, reply)
	}
	return nil
}

// WriteLogSettings writes the logging parameters with the three step
// transaction the vendor software uses. Every step must be acknowledged
// before the next one is sent.
func (p *Pod) WriteLogSettings(settings message.LogSettings) error {
	breq := &message.LogSettingsBeginRequest{}
	reply, err := p.session.Request(breq)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.LogSettingsBeginReply); !ok {
		return replyError(breq, reply)
	}

	wreq := &message.WriteLogSettingsRequest{Settings: settings}
	reply, err = p.session.Request(wreq)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.WriteLogSettingsReply); !ok {
		return replyError(wreq, reply)
	}

	creq := &message.LogSettingsCommitRequest{}
	reply, err = p.session.Request(creq)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.LogSettingsCommitReply); !ok {
		return replyError(creq, reply)
	}
	return nil
}

// LogCount reads the number of logs the device index holds.
func (p *Pod) LogCount() (int, error) {
	req := &message.LogCountRequest{}
	reply, err := p.session.Request(req)
	if err != nil {
		return 0, err
	}
	count, ok := reply.(*message.LogCountReply)
	if !ok {
		return 0, replyError(req, reply)
	}
	return int(count.Count), nil
}

// SGEEDate reads the validity start date of the ephemeris data on the
// device.
func (p *Pod) SGEEDate() (*message.ReadSGEEDateReply, error) {
	req := &message.ReadSGEEDateRequest{}
	reply, err := p.session.Request(req)
	if err != nil {
		return nil, err
	}
	date, ok := reply.(*message.ReadSGEEDateReply)
	if !ok {
		return nil, replyError(req, reply)
	}
	return date, nil
}

// WriteSGEE uploads an ephemeris file in numbered chunks, each one
// acknowledged by the device.
func (p *Pod) WriteSGEE(data []byte) error {
	if len(data) > MaxSGEESize {
		return fmt.Errorf("SGEE data of %d bytes exceeds the %d byte limit", len(data), MaxSGEESize)
	}
	sequence := uint32(0)
	for pos := 0; pos < len(data); pos += message.SGEEChunkSize {
		end := pos + message.SGEEChunkSize
		if end > len(data) {
			end = len(data)
		}
		req := &message.WriteSGEERequest{Sequence: sequence, Data: data[pos:end]}
		reply, err := p.session.Request(req)
		if err != nil {
			return err
		}
		if _, ok := reply.(*message.WriteSGEEReply); !ok {
			return replyError(req, reply)
		}
		log.Debug("Wrote SGEE chunk %d, %d bytes", sequence, end-pos)
		sequence++
	}
	return nil
}

// Reset reboots the device. No reply is expected, the device drops off
// the bus.
func (p *Pod) Reset() error {
	return p.session.WriteMessage(&message.DeviceResetRequest{})
}

// TransferBlock reads one filesystem block, retrying on timeouts and on
// replies that do not match the request.
func (p *Pod) TransferBlock(index int) ([]byte, error) {
	position := uint32(index * message.DataBlockSize)
	req := message.NewDataRequest(position)
	for attempt := 0; attempt <= p.retryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(p.retryDelay)
		}
		reply, err := p.session.Request(req)
		if err != nil {
			log.Debug("Block %d attempt %d: %v", index, attempt, err)
			continue
		}
		data, ok := reply.(*message.DataReply)
		if !ok {
			log.Debug("Block %d attempt %d: unexpected %T", index, attempt, reply)
			continue
		}
		if data.Position != position {
			log.Debug("Block %d attempt %d: position 0x%06X instead of 0x%06X",
				index, attempt, data.Position, position)
			continue
		}
		block := make([]byte, message.DataBlockSize)
		copy(block, data.Content())
		return block, nil
	}
	return nil, ErrBlockUnavailable{Index: index}
}

// ensureBlock makes one block resident, going memory, cache, device.
func (p *Pod) ensureBlock(index int) error {
	if p.fetched[index] {
		return nil
	}
	offset := index * message.DataBlockSize

	if p.cache != nil && p.info != nil {
		if block := p.cache.Get(p.info.SerialString(), index); block != nil {
			copy(p.fs[offset:], block)
			p.fetched[index] = true
			return nil
		}
	}

	block, err := p.TransferBlock(index)
	if err != nil {
		return err
	}
	copy(p.fs[offset:], block)
	p.fetched[index] = true

	if p.cache != nil && p.info != nil {
		if err := p.cache.Put(p.info.SerialString(), index, block); err != nil {
			log.Warning("Block %d not cached: %v", index, err)
		}
	}
	return nil
}

// EnsureRange makes every block overlapping the byte range resident.
func (p *Pod) EnsureRange(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > pmem.FilesystemSize {
		return pmem.ErrOutOfRange{Offset: offset, Length: length}
	}
	first := offset / message.DataBlockSize
	last := (offset + length - 1) / message.DataBlockSize
	if length == 0 {
		last = first
	}
	for index := first; index <= last; index++ {
		if err := p.ensureBlock(index); err != nil {
			return err
		}
	}
	return nil
}

// Slice implements pmem.Image by fetching the covering blocks on demand.
func (p *Pod) Slice(offset, length int) ([]byte, error) {
	if err := p.EnsureRange(offset, length); err != nil {
		return nil, err
	}
	return p.fs[offset : offset+length], nil
}

// Dump reads the whole filesystem and writes it to a file.
func (p *Pod) Dump(path string) error {
	log.Info("Reading %d blocks", blockCount)
	for index := 0; index < blockCount; index++ {
		if err := p.ensureBlock(index); err != nil {
			return err
		}
		if index%256 == 0 {
			log.Info("Read %d of %d blocks", index, blockCount)
		}
	}
	return ioutil.WriteFile(path, p.fs, 0644)
}
