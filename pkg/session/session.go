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

// Package session drives a packet transport at the message level. The
// protocol is half duplex: the host writes one message and reads one
// reply. The session owns the outgoing packet sequence counter and the
// reassembly feed for incoming packets.
package session

import (
	"time"

	"github.com/gpspod/go-gpspod/pkg/layers"
	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/message"
)

// DefaultReadTimeout bounds one ReadMessage call.
const DefaultReadTimeout = 1000 * time.Millisecond

// drainTimeout bounds the flush of stale packets on Open.
const drainTimeout = 100 * time.Millisecond

// Transport moves raw USB report frames. ReadPacket returns nil data when
// no packet arrived within the timeout; a non-nil error means the
// transport itself failed.
type Transport interface {
	Open() error
	Close() error
	WritePacket(data []byte) error
	ReadPacket(timeout time.Duration) ([]byte, error)
}

// ErrReadTimeout is returned when no complete message arrived in time.
type ErrReadTimeout struct{}

func (ErrReadTimeout) Error() string {
	return "timed out waiting for a message"
}

type Session struct {
	transport   Transport
	feed        *layers.PacketFeed
	sequence    uint16
	ReadTimeout time.Duration
}

func New(t Transport) *Session {
	return &Session{
		transport:   t,
		feed:        layers.NewPacketFeed(),
		ReadTimeout: DefaultReadTimeout,
	}
}

// Open opens the transport and flushes packets left over from an earlier
// conversation.
func (s *Session) Open() error {
	if err := s.transport.Open(); err != nil {
		return err
	}
	s.drain()
	return nil
}

func (s *Session) Close() error {
	return s.transport.Close()
}

func (s *Session) drain() {
	for {
		data, err := s.transport.ReadPacket(drainTimeout)
		if err != nil || data == nil {
			return
		}
		log.Debug("Flushed stale packet of %d bytes", len(data))
	}
}

// WriteMessage encodes the message, stamps it with the next packet
// sequence number and writes its fragments.
func (s *Session) WriteMessage(m message.Message) error {
	data, err := message.Encode(m, s.sequence)
	if err != nil {
		return err
	}
	s.sequence++

	packets, err := layers.Packetize(data)
	if err != nil {
		return err
	}
	for _, p := range packets {
		log.Debug("Writing packet: %s", p.Header.String())
		if err := s.transport.WritePacket(p.Serialize()); err != nil {
			return err
		}
	}
	return nil
}

// ReadMessage reads packets until a whole message decodes or the timeout
// passes. Damaged packets reset the feed and the loop keeps going, the
// device resends nothing by itself so the caller retries the request.
func (s *Session) ReadMessage() (message.Message, error) {
	deadline := time.Now().Add(s.ReadTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrReadTimeout{}
		}
		data, err := s.transport.ReadPacket(remaining)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		p, err := layers.DecodePacket(data)
		if err != nil {
			log.Debug("Dropping packet: %v", err)
			s.feed.Reset()
			continue
		}
		log.Debug("Read packet: %s", p.Header.String())
		if raw := s.feed.Feed(p); raw != nil {
			m, h, err := message.Decode(raw)
			if err != nil {
				return nil, err
			}
			log.Debug("Read message: %s", h.String())
			return m, nil
		}
	}
}

// Request performs one write / read exchange.
func (s *Session) Request(m message.Message) (message.Message, error) {
	if err := s.WriteMessage(m); err != nil {
		return nil, err
	}
	return s.ReadMessage()
}
