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

// Package message implements the command layer of the pod protocol. A
// logical message is a 12 byte command header followed by a typed body,
// both little endian. Messages are matched against a static registry by
// (command, direction), then by command alone, and finally fall back to
// an opaque RawMessage so that unknown traffic still decodes.
package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of the command header
	HeaderSize = 12
	// DefaultFormat is the format field value used by almost all messages
	DefaultFormat = 0x0009

	// DirRequest is the direction of most host to device messages
	DirRequest = 0x0005
	// DirReply is the direction of most device to host messages
	DirReply = 0x000A
)

// Header is the command header preceding every message body.
type Header struct {
	Command        uint16
	Direction      uint16
	Format         uint16
	PacketSequence uint16
	BodyLength     uint32
}

func (h *Header) Marshal(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Command)
	binary.LittleEndian.PutUint16(buf[2:4], h.Direction)
	binary.LittleEndian.PutUint16(buf[4:6], h.Format)
	binary.LittleEndian.PutUint16(buf[6:8], h.PacketSequence)
	binary.LittleEndian.PutUint32(buf[8:12], h.BodyLength)
}

func (h *Header) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("command header too short: %d < %d", len(data), HeaderSize)
	}
	h.Command = binary.LittleEndian.Uint16(data[0:2])
	h.Direction = binary.LittleEndian.Uint16(data[2:4])
	h.Format = binary.LittleEndian.Uint16(data[4:6])
	h.PacketSequence = binary.LittleEndian.Uint16(data[6:8])
	h.BodyLength = binary.LittleEndian.Uint32(data[8:12])
	return nil
}

func (h *Header) String() string {
	return fmt.Sprintf("cmd 0x%04X, dir 0x%04X, fmt 0x%02X, packseq 0x%02X, len %d",
		h.Command, h.Direction, h.Format, h.PacketSequence, h.BodyLength)
}

// Route identifies a message type on the wire.
type Route struct {
	Command   uint16
	Direction uint16
	Format    uint16
}

// Message is a typed protocol message. The body encoding defaults to the
// packed little endian layout of the struct fields; types with a variable
// body implement BodyMarshaler and BodyUnmarshaler instead.
type Message interface {
	Route() Route
}

// BodyMarshaler overrides the default fixed-layout body encoding.
type BodyMarshaler interface {
	MarshalBody() ([]byte, error)
}

// BodyUnmarshaler overrides the default fixed-layout body decoding.
type BodyUnmarshaler interface {
	UnmarshalBody(data []byte) error
}

// RawMessage carries the body of a message that matched no registry entry.
type RawMessage struct {
	Header Header
	Data   []byte
}

func (m *RawMessage) Route() Route {
	return Route{Command: m.Header.Command, Direction: m.Header.Direction, Format: m.Header.Format}
}

func (m *RawMessage) MarshalBody() ([]byte, error) {
	return m.Data, nil
}

func (m *RawMessage) UnmarshalBody(data []byte) error {
	m.Data = append([]byte(nil), data...)
	return nil
}

func (m *RawMessage) String() string {
	return fmt.Sprintf("<RawMessage %s, % X>", m.Header.String(), m.Data)
}

type registryEntry struct {
	// commandOnly entries match on the command field alone
	commandOnly bool
	factory     func() Message
}

var registry = []registryEntry{
	{false, func() Message { return &DeviceInfoRequest{} }},
	{false, func() Message { return &DeviceInfoReply{} }},
	{false, func() Message { return &SetDateRequest{} }},
	{false, func() Message { return &SetDateReply{} }},
	{false, func() Message { return &SetTimeRequest{} }},
	{true, func() Message { return &SetTimeReply{} }},
	{false, func() Message { return &DeviceStatusRequest{} }},
	{false, func() Message { return &DeviceStatusReply{} }},
	{false, func() Message { return &LockStatusRequest{} }},
	{false, func() Message { return &LockStatusReply{} }},
	{false, func() Message { return &ReadSettingsRequest{} }},
	{false, func() Message { return &ReadSettingsReply{} }},
	{false, func() Message { return &WriteSettingsRequest{} }},
	{false, func() Message { return &WriteSettingsReply{} }},
	{false, func() Message { return &LogSettingsBeginRequest{} }},
	{false, func() Message { return &LogSettingsBeginReply{} }},
	{false, func() Message { return &WriteLogSettingsRequest{} }},
	{false, func() Message { return &WriteLogSettingsReply{} }},
	{false, func() Message { return &LogSettingsCommitRequest{} }},
	{false, func() Message { return &LogSettingsCommitReply{} }},
	{false, func() Message { return &LogCountRequest{} }},
	{false, func() Message { return &LogCountReply{} }},
	{false, func() Message { return &LogRewindRequest{} }},
	{false, func() Message { return &LogRewindReply{} }},
	{false, func() Message { return &LogStepRequest{} }},
	{false, func() Message { return &LogStepReply{} }},
	{false, func() Message { return &LogPeekRequest{} }},
	{false, func() Message { return &LogPeekReply{} }},
	{false, func() Message { return &DataRequest{} }},
	{false, func() Message { return &DataReply{} }},
	{false, func() Message { return &ReadSGEEDateRequest{} }},
	{false, func() Message { return &ReadSGEEDateReply{} }},
	{false, func() Message { return &WriteSGEERequest{} }},
	{false, func() Message { return &WriteSGEEReply{} }},
	{false, func() Message { return &DeviceResetRequest{} }},
}

var (
	byRoute   = map[uint32]func() Message{}
	byCommand = map[uint16]func() Message{}
)

func routeKey(command, direction uint16) uint32 {
	return uint32(command)<<16 | uint32(direction)
}

func init() {
	for _, e := range registry {
		r := e.factory().Route()
		if e.commandOnly {
			byCommand[r.Command] = e.factory
		} else {
			byRoute[routeKey(r.Command, r.Direction)] = e.factory
		}
	}
}

// Registered returns a fresh instance of every registered message type.
func Registered() []Message {
	out := make([]Message, 0, len(registry))
	for _, e := range registry {
		out = append(out, e.factory())
	}
	return out
}

func marshalBody(m Message) ([]byte, error) {
	if bm, ok := m.(BodyMarshaler); ok {
		return bm.MarshalBody()
	}
	if binary.Size(m) <= 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unmarshalBody decodes body bytes into m. A short body is zero padded and
// a long body is truncated to the declared layout, matching the firmware's
// loose handling of body lengths.
func unmarshalBody(m Message, data []byte) error {
	if bu, ok := m.(BodyUnmarshaler); ok {
		return bu.UnmarshalBody(data)
	}
	size := binary.Size(m)
	if size <= 0 {
		return nil
	}
	if len(data) != size {
		padded := make([]byte, size)
		copy(padded, data)
		data = padded
	}
	return binary.Read(bytes.NewReader(data[:size]), binary.LittleEndian, m)
}

// Encode renders the message with its command header.
func Encode(m Message, packetSequence uint16) ([]byte, error) {
	body, err := marshalBody(m)
	if err != nil {
		return nil, err
	}
	r := m.Route()
	h := Header{
		Command:        r.Command,
		Direction:      r.Direction,
		Format:         r.Format,
		PacketSequence: packetSequence,
		BodyLength:     uint32(len(body)),
	}
	out := make([]byte, HeaderSize+len(body))
	h.Marshal(out)
	copy(out[HeaderSize:], body)
	return out, nil
}

// Decode parses a message, matching the registry by (command, direction),
// then by command, then falling back to RawMessage.
func Decode(data []byte) (Message, *Header, error) {
	h := &Header{}
	if err := h.Unmarshal(data); err != nil {
		return nil, nil, err
	}
	body := data[HeaderSize:]
	if int(h.BodyLength) < len(body) {
		body = body[:h.BodyLength]
	}

	var m Message
	if f, ok := byRoute[routeKey(h.Command, h.Direction)]; ok {
		m = f()
	} else if f, ok := byCommand[h.Command]; ok {
		m = f()
	} else {
		m = &RawMessage{Header: *h}
	}
	if err := unmarshalBody(m, body); err != nil {
		return nil, nil, err
	}
	return m, h, nil
}
