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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/gpspod/go-gpspod/pkg/log"
)

const (
	// UsbLayerNum identifies the layer
	UsbLayerNum = 1999
	// UsbPacketSize is the size of one USB interrupt report
	UsbPacketSize = 64
	// UsbHeaderSize is the size of the packet header
	UsbHeaderSize = 8
	// MaxChunkSize is the message payload space left in one packet after
	// the header and the trailing payload checksum
	MaxChunkSize = UsbPacketSize - UsbHeaderSize - 2
	// MaxMessageSize is the maximum logical message size, split over packets
	MaxMessageSize = 540

	// PacketMagic is the first byte of every packet
	PacketMagic = 0x3F
	// PartFirst marks the first packet of a message, its sequence field
	// holds the total part count
	PartFirst = 0x5D
	// PartContinuation marks follow-up packets, their sequence field is the
	// 1-based chunk index
	PartContinuation = 0x5E
)

// UsbHeader is the 8 byte packet header. The checksum covers the part
// marker, payload length and sequence bytes, not the magic and not the
// usb_length byte.
type UsbHeader struct {
	Magic         uint8
	UsbLength     uint8
	Part          uint8
	PayloadLength uint8
	Sequence      uint16
	Checksum      uint16
}

func (h *UsbHeader) checksumInput() [4]byte {
	var b [4]byte
	b[0] = h.Part
	b[1] = h.PayloadLength
	binary.LittleEndian.PutUint16(b[2:4], h.Sequence)
	return b
}

// Seal fills in the derived header fields: magic, usb_length and checksum.
func (h *UsbHeader) Seal() {
	h.Magic = PacketMagic
	h.UsbLength = h.PayloadLength + UsbHeaderSize
	b := h.checksumInput()
	h.Checksum = Checksum16(CrcInit, b[:])
}

// Valid checks the magic byte, the length invariant and the header checksum.
// A packet with an invalid header is damaged and must be discarded.
func (h *UsbHeader) Valid() bool {
	if h.Magic != PacketMagic {
		return false
	}
	if h.UsbLength != h.PayloadLength+UsbHeaderSize {
		return false
	}
	b := h.checksumInput()
	return Checksum16(CrcInit, b[:]) == h.Checksum
}

func (h *UsbHeader) IsFirst() bool {
	return h.Part == PartFirst
}

// PartCount is the total number of packets of the message, only meaningful
// on a First packet.
func (h *UsbHeader) PartCount() int {
	return int(h.Sequence)
}

func (h *UsbHeader) Serialize(buf []byte) {
	buf[0] = h.Magic
	buf[1] = h.UsbLength
	buf[2] = h.Part
	buf[3] = h.PayloadLength
	binary.LittleEndian.PutUint16(buf[4:6], h.Sequence)
	binary.LittleEndian.PutUint16(buf[6:8], h.Checksum)
}

func (h *UsbHeader) String() string {
	if !h.Valid() {
		return fmt.Sprintf("damaged part(%d) len: %d", h.Sequence, h.PayloadLength)
	}
	if h.IsFirst() {
		return fmt.Sprintf("start(%d) len: %d", h.Sequence, h.PayloadLength)
	}
	return fmt.Sprintf("part(%d) len: %d", h.Sequence, h.PayloadLength)
}

// UsbPacketLayer is one fixed-size USB packet carrying part of a logical
// message. The payload buffer holds PayloadLength message bytes followed by
// a 2 byte checksum of those bytes seeded with the header checksum.
type UsbPacketLayer struct {
	layers.BaseLayer
	Header  UsbHeader
	Payload [UsbPacketSize - UsbHeaderSize]byte
}

var UsbLayerType = gopacket.RegisterLayerType(UsbLayerNum,
	gopacket.LayerTypeMetadata{Name: "UsbPacketLayerType", Decoder: gopacket.DecodeFunc(DecodeUsbPacketLayer)})

// LayerType returns the type of the USB packet layer in the layer catalog
func (u *UsbPacketLayer) LayerType() gopacket.LayerType {
	return UsbLayerType
}

// Data returns the message chunk carried by the packet, after verifying the
// trailing payload checksum. It returns nil for a damaged payload, it never
// fails hard so that the feed can decide what to discard.
func (u *UsbPacketLayer) Data() []byte {
	n := int(u.Header.PayloadLength)
	if n > MaxChunkSize {
		return nil
	}
	stored := binary.LittleEndian.Uint16(u.Payload[n : n+2])
	if Checksum16(u.Header.Checksum, u.Payload[:n]) != stored {
		return nil
	}
	return u.Payload[:n]
}

// SetData stores a message chunk in the packet, seals the header and
// computes the trailing payload checksum.
func (u *UsbPacketLayer) SetData(data []byte) error {
	if len(data) > MaxChunkSize {
		return fmt.Errorf("chunk too long: %d > %d", len(data), MaxChunkSize)
	}
	u.Header.PayloadLength = uint8(len(data))
	u.Header.Seal()
	copy(u.Payload[:], data)
	crc := Checksum16(u.Header.Checksum, u.Payload[:len(data)])
	binary.LittleEndian.PutUint16(u.Payload[len(data):len(data)+2], crc)
	return nil
}

// WireLength is the number of bytes the packet occupies on the wire:
// header, payload and the trailing checksum.
func (u *UsbPacketLayer) WireLength() int {
	return UsbHeaderSize + int(u.Header.PayloadLength) + 2
}

// SerializeTo serializes the packet into bytes and writes the bytes to the
// SerializeBuffer
func (u *UsbPacketLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.AppendBytes(u.WireLength())
	if err != nil {
		return err
	}
	u.Header.Serialize(bytes[0:UsbHeaderSize])
	copy(bytes[UsbHeaderSize:], u.Payload[:int(u.Header.PayloadLength)+2])
	return nil
}

// Serialize returns the wire bytes of the packet.
func (u *UsbPacketLayer) Serialize() []byte {
	buf := make([]byte, u.WireLength())
	u.Header.Serialize(buf[0:UsbHeaderSize])
	copy(buf[UsbHeaderSize:], u.Payload[:int(u.Header.PayloadLength)+2])
	return buf
}

// DecodeFromBytes attempts to decode the byte slice as a USB packet
func (u *UsbPacketLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < UsbHeaderSize+2 {
		df.SetTruncated()
		return errors.New("USB packet too short")
	}

	u.Header.Magic = data[0]
	u.Header.UsbLength = data[1]
	u.Header.Part = data[2]
	u.Header.PayloadLength = data[3]
	u.Header.Sequence = binary.LittleEndian.Uint16(data[4:6])
	u.Header.Checksum = binary.LittleEndian.Uint16(data[6:8])

	if !u.Header.Valid() {
		log.Debug("USB packet header damaged: % x", data[0:UsbHeaderSize])
		return errors.New("damaged USB packet header")
	}
	if len(data) < UsbHeaderSize+int(u.Header.PayloadLength)+2 {
		df.SetTruncated()
		return errors.New("USB packet shorter than its declared payload")
	}

	copy(u.Payload[:], data[UsbHeaderSize:])
	u.BaseLayer = layers.BaseLayer{
		Contents: data[0:UsbHeaderSize],
		Payload:  data[UsbHeaderSize:],
	}
	return nil
}

func DecodeUsbPacketLayer(data []byte, p gopacket.PacketBuilder) error {
	u := &UsbPacketLayer{}
	err := u.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(u)
	return nil
}

// DecodePacket parses a single raw USB report outside of a gopacket
// pipeline. Used by the transport session on every read.
func DecodePacket(data []byte) (*UsbPacketLayer, error) {
	u := &UsbPacketLayer{}
	if err := u.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return u, nil
}

// Packetize splits a logical message into USB packets. The first packet
// carries the total part count in its sequence field, continuations carry
// their 1-based chunk index. An empty message still produces one First
// packet with a zero length chunk.
func Packetize(message []byte) ([]*UsbPacketLayer, error) {
	if len(message) > MaxMessageSize {
		return nil, fmt.Errorf("message too long: %d > %d", len(message), MaxMessageSize)
	}

	var chunks [][]byte
	if len(message) == 0 {
		chunks = [][]byte{nil}
	}
	for i := 0; i < len(message); i += MaxChunkSize {
		end := i + MaxChunkSize
		if end > len(message) {
			end = len(message)
		}
		chunks = append(chunks, message[i:end])
	}

	packets := make([]*UsbPacketLayer, 0, len(chunks))
	first := &UsbPacketLayer{}
	first.Header.Part = PartFirst
	first.Header.Sequence = uint16(len(chunks))
	if err := first.SetData(chunks[0]); err != nil {
		return nil, err
	}
	packets = append(packets, first)

	for i := 1; i < len(chunks); i++ {
		p := &UsbPacketLayer{}
		p.Header.Part = PartContinuation
		p.Header.Sequence = uint16(i)
		if err := p.SetData(chunks[i]); err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}
