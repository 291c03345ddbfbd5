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
	"sort"

	"github.com/gpspod/go-gpspod/pkg/log"
)

/*
 The protocol is strictly half duplex, so at most one message is in flight
 and the feed only has to track a single message. The transport gives no
 ordering guarantee for the continuation packets, they are sorted by their
 sequence field before concatenation.
*/

// PacketFeed accumulates USB packets and emits the reassembled logical
// message once all parts of it have arrived. It is either idle (no First
// packet stored) or accumulating.
type PacketFeed struct {
	first *UsbPacketLayer
	parts []*UsbPacketLayer
}

func NewPacketFeed() *PacketFeed {
	return &PacketFeed{}
}

// Reset drops any partially accumulated message.
func (f *PacketFeed) Reset() {
	f.first = nil
	f.parts = f.parts[:0]
}

// Feed consumes one packet. It returns the complete message payload when
// the packet completes a message and nil otherwise. A packet that breaks
// the in-progress sequence discards the whole message, the caller retries
// the request. No partial message is ever returned.
func (f *PacketFeed) Feed(p *UsbPacketLayer) []byte {
	if p.Header.IsFirst() {
		if f.first != nil || len(f.parts) > 0 {
			log.Warning("New message started while previous one is incomplete, discarding %d parts", 1+len(f.parts))
			f.Reset()
		}
		if p.Header.PartCount() == 0 {
			log.Warning("First packet with zero part count, discarding")
			return nil
		}
		f.first = p
		return f.finish()
	}

	if f.first == nil {
		log.Warning("Continuation packet without a first packet, discarding")
		return nil
	}
	if int(p.Header.Sequence) < 1 || p.Header.PartCount() >= f.first.Header.PartCount() {
		log.Warning("Continuation sequence %d out of range for %d part message",
			p.Header.Sequence, f.first.Header.PartCount())
		f.Reset()
		return nil
	}
	f.parts = append(f.parts, p)
	return f.finish()
}

// finish assembles and returns the message if all parts are present.
func (f *PacketFeed) finish() []byte {
	if len(f.parts) != f.first.Header.PartCount()-1 {
		return nil
	}
	defer f.Reset()

	sort.SliceStable(f.parts, func(i, j int) bool {
		return f.parts[i].Header.Sequence < f.parts[j].Header.Sequence
	})

	var message []byte
	chunk := f.first.Data()
	if chunk == nil {
		log.Warning("Payload checksum failed on first packet, discarding message")
		return nil
	}
	message = append(message, chunk...)
	for _, p := range f.parts {
		chunk = p.Data()
		if chunk == nil {
			log.Warning("Payload checksum failed on part %d, discarding message", p.Header.Sequence)
			return nil
		}
		message = append(message, chunk...)
	}
	return message
}
