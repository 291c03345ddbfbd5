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
	"github.com/gpspod/go-gpspod/pkg/layers"
	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/message"
)

// ReconstructFilesystem rebuilds a filesystem image of the given size from
// the data replies in the incoming half of a recording. The returned
// bitmap marks the bytes that were actually seen; the gaps are logged.
func ReconstructFilesystem(rec *Recording, size int) ([]byte, []bool) {
	fs := make([]byte, size)
	covered := make([]bool, size)

	feed := layers.NewPacketFeed()
	for _, e := range rec.Incoming {
		p, err := layers.DecodePacket(e.Data)
		if err != nil {
			log.Debug("Skipping packet in recording: %v", err)
			continue
		}
		raw := feed.Feed(p)
		if raw == nil {
			continue
		}
		m, _, err := message.Decode(raw)
		if err != nil {
			log.Debug("Skipping message in recording: %v", err)
			continue
		}
		reply, ok := m.(*message.DataReply)
		if !ok {
			continue
		}
		content := reply.Content()
		pos := int(reply.Position)
		if pos < 0 || pos+len(content) > size {
			log.Warning("Data reply outside the filesystem: 0x%X", pos)
			continue
		}
		copy(fs[pos:], content)
		for i := pos; i < pos+len(content); i++ {
			covered[i] = true
		}
	}

	logGaps(covered)
	return fs, covered
}

func logGaps(covered []bool) {
	start := -1
	for i, c := range covered {
		if !c && start < 0 {
			start = i
		}
		if c && start >= 0 {
			log.Info("Missing from 0x%06X up to 0x%06X", start, i)
			start = -1
		}
	}
	if start >= 0 {
		log.Info("Missing from 0x%06X up to 0x%06X", start, len(covered))
	}
}
