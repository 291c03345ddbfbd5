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
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// DataBlockSize is the number of filesystem bytes served per DataReply
	DataBlockSize = 512
	// SettingsSize is the size of the personal settings blob
	SettingsSize = 70
	// SGEEChunkSize is the maximum payload of one WriteSGEERequest
	SGEEChunkSize = 500
)

// DateTime is the wire layout of a point in time. Ms carries the seconds
// and milliseconds combined.
type DateTime struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Ms     uint16
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{
		Year:   uint16(t.Year()),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Ms:     uint16(t.Second()*1000 + t.Nanosecond()/1e6),
	}
}

func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%06.3f",
		d.Year, d.Month, d.Day, d.Hour, d.Minute, float64(d.Ms)/1000.0)
}

// DeviceInfoRequest announces the host protocol version. The version sent
// by the vendor software is 2.4.89.0.
type DeviceInfoRequest struct {
	Version [4]uint8
}

func NewDeviceInfoRequest() *DeviceInfoRequest {
	return &DeviceInfoRequest{Version: [4]uint8{2, 4, 89, 0}}
}

func (*DeviceInfoRequest) Route() Route { return Route{0x0000, 0x0001, 0x0000} }

type DeviceInfoReply struct {
	Model      [16]byte
	Serial     [16]byte
	FWVersion  [4]uint8
	HWVersion  [4]uint8
	BSLVersion [4]uint8
}

func (*DeviceInfoReply) Route() Route { return Route{0x0200, 0x0002, DefaultFormat} }

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (m *DeviceInfoReply) ModelString() string  { return cString(m.Model[:]) }
func (m *DeviceInfoReply) SerialString() string { return cString(m.Serial[:]) }

func versionString(v [4]uint8) string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

func (m *DeviceInfoReply) String() string {
	return fmt.Sprintf("Model: %s, Serial: %s, fw: %s hw: %s bsl: %s",
		m.ModelString(), m.SerialString(), versionString(m.FWVersion),
		versionString(m.HWVersion), versionString(m.BSLVersion))
}

type SetDateRequest struct{ DateTime DateTime }

func (*SetDateRequest) Route() Route { return Route{0x0203, DirRequest, DefaultFormat} }

type SetDateReply struct{}

func (*SetDateReply) Route() Route { return Route{0x0203, DirReply, DefaultFormat} }

type SetTimeRequest struct{ DateTime DateTime }

func (*SetTimeRequest) Route() Route { return Route{0x0003, DirRequest, DefaultFormat} }

// SetTimeReply arrives with a varying direction field and is matched on its
// command alone.
type SetTimeReply struct{}

func (*SetTimeReply) Route() Route { return Route{0x000A, DirReply, DefaultFormat} }

type DeviceStatusRequest struct{}

func (*DeviceStatusRequest) Route() Route { return Route{0x0603, DirRequest, DefaultFormat} }

type DeviceStatusReply struct {
	Pad0   uint8
	Charge uint8
	Pad1   uint8
	Pad2   uint8
}

func (*DeviceStatusReply) Route() Route { return Route{0x0603, DirReply, DefaultFormat} }

func (m *DeviceStatusReply) String() string {
	return fmt.Sprintf("Charge: %d%%", m.Charge)
}

type LockStatusRequest struct{}

func (*LockStatusRequest) Route() Route { return Route{0x190B, DirRequest, DefaultFormat} }

type LockStatusReply struct{}

func (*LockStatusReply) Route() Route { return Route{0x190B, 0x0202, DefaultFormat} }

type ReadSettingsRequest struct{}

func (*ReadSettingsRequest) Route() Route { return Route{0x000B, DirRequest, DefaultFormat} }

type ReadSettingsReply struct {
	Data [SettingsSize]uint8
}

func (*ReadSettingsReply) Route() Route { return Route{0x000B, DirReply, DefaultFormat} }

type WriteSettingsRequest struct {
	Data [SettingsSize]uint8
}

func (*WriteSettingsRequest) Route() Route { return Route{0x010B, DirRequest, DefaultFormat} }

type WriteSettingsReply struct{}

func (*WriteSettingsReply) Route() Route { return Route{0x010B, DirReply, DefaultFormat} }

// LogSettings is the logging parameter block written with the three step
// Begin / Write / Commit transaction and stored in the filesystem settings
// region.
type LogSettings struct {
	Interval  uint16
	Autolap   uint16
	Autostart uint8
	Autosleep uint8
	Pad       [24]uint8
}

func (s LogSettings) String() string {
	return fmt.Sprintf("interval %ds, autolap %dm, autostart %d, autosleep %dmin",
		s.Interval, s.Autolap, s.Autostart, s.Autosleep)
}

type LogSettingsBeginRequest struct{}

func (*LogSettingsBeginRequest) Route() Route { return Route{0x0F0B, DirRequest, DefaultFormat} }

type LogSettingsBeginReply struct{}

func (*LogSettingsBeginReply) Route() Route { return Route{0x0F0B, DirReply, DefaultFormat} }

type WriteLogSettingsRequest struct {
	Settings LogSettings
}

func (*WriteLogSettingsRequest) Route() Route { return Route{0x020B, DirRequest, DefaultFormat} }

type WriteLogSettingsReply struct{}

func (*WriteLogSettingsReply) Route() Route { return Route{0x020B, DirReply, DefaultFormat} }

type LogSettingsCommitRequest struct{}

func (*LogSettingsCommitRequest) Route() Route { return Route{0x100B, DirRequest, DefaultFormat} }

type LogSettingsCommitReply struct{}

func (*LogSettingsCommitReply) Route() Route { return Route{0x100B, DirReply, DefaultFormat} }

type LogCountRequest struct{}

func (*LogCountRequest) Route() Route { return Route{0x060B, DirRequest, DefaultFormat} }

type LogCountReply struct {
	Count uint16
	Pad   uint16
}

func (*LogCountReply) Route() Route { return Route{0x060B, DirReply, DefaultFormat} }

type LogRewindRequest struct{}

func (*LogRewindRequest) Route() Route { return Route{0x070B, DirRequest, DefaultFormat} }

type LogRewindReply struct{}

func (*LogRewindReply) Route() Route { return Route{0x070B, DirReply, DefaultFormat} }

type LogStepRequest struct{}

func (*LogStepRequest) Route() Route { return Route{0x080B, DirRequest, DefaultFormat} }

type LogStepReply struct {
	Data []byte
}

func (*LogStepReply) Route() Route { return Route{0x080B, DirReply, DefaultFormat} }

func (m *LogStepReply) MarshalBody() ([]byte, error) { return m.Data, nil }

func (m *LogStepReply) UnmarshalBody(data []byte) error {
	m.Data = append([]byte(nil), data...)
	return nil
}

type LogPeekRequest struct{}

func (*LogPeekRequest) Route() Route { return Route{0x090B, DirRequest, DefaultFormat} }

type LogPeekReply struct {
	Data []byte
}

func (*LogPeekReply) Route() Route { return Route{0x090B, DirReply, DefaultFormat} }

func (m *LogPeekReply) MarshalBody() ([]byte, error) { return m.Data, nil }

func (m *LogPeekReply) UnmarshalBody(data []byte) error {
	m.Data = append([]byte(nil), data...)
	return nil
}

// DataRequest asks for one filesystem block at an absolute byte position.
type DataRequest struct {
	Position uint32
	Length   uint32
}

func NewDataRequest(position uint32) *DataRequest {
	return &DataRequest{Position: position, Length: DataBlockSize}
}

func (*DataRequest) Route() Route { return Route{0x040B, DirRequest, DefaultFormat} }

type DataReply struct {
	Position uint32
	Length   uint32
	Data     [DataBlockSize]uint8
}

func (*DataReply) Route() Route { return Route{0x040B, DirReply, DefaultFormat} }

// Content returns the valid slice of the block data.
func (m *DataReply) Content() []byte {
	n := m.Length
	if n > DataBlockSize {
		n = DataBlockSize
	}
	return m.Data[:n]
}

type ReadSGEEDateRequest struct{}

func (*ReadSGEEDateRequest) Route() Route { return Route{0x0E0B, DirRequest, DefaultFormat} }

// ReadSGEEDateReply holds the validity start date of the ephemeris data on
// the device.
type ReadSGEEDateReply struct {
	Pad   uint8
	Year  uint16
	Month uint8
	Day   uint8
}

func (*ReadSGEEDateReply) Route() Route { return Route{0x0E0B, DirReply, DefaultFormat} }

func (m *ReadSGEEDateReply) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", m.Year, m.Month, m.Day)
}

// WriteSGEERequest uploads one chunk of ephemeris data. Chunks are numbered
// from zero and acknowledged one by one.
type WriteSGEERequest struct {
	Sequence uint32
	Data     []byte
}

func (*WriteSGEERequest) Route() Route { return Route{0x0D0B, DirRequest, DefaultFormat} }

func (m *WriteSGEERequest) MarshalBody() ([]byte, error) {
	if len(m.Data) > SGEEChunkSize {
		return nil, fmt.Errorf("SGEE chunk too long: %d > %d", len(m.Data), SGEEChunkSize)
	}
	out := make([]byte, 4+len(m.Data))
	binary.LittleEndian.PutUint32(out[0:4], m.Sequence)
	copy(out[4:], m.Data)
	return out, nil
}

func (m *WriteSGEERequest) UnmarshalBody(data []byte) error {
	if len(data) < 4 {
		padded := make([]byte, 4)
		copy(padded, data)
		data = padded
	}
	m.Sequence = binary.LittleEndian.Uint32(data[0:4])
	m.Data = append([]byte(nil), data[4:]...)
	return nil
}

type WriteSGEEReply struct{}

func (*WriteSGEEReply) Route() Route { return Route{0x0D0B, DirReply, DefaultFormat} }

type DeviceResetRequest struct{}

func (*DeviceResetRequest) Route() Route { return Route{0x0213, DirRequest, DefaultFormat} }
