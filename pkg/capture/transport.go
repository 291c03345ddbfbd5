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
	"bytes"
	"time"

	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/session"
)

// RecordingTransport wraps a transport and tees all traffic into a
// Recording, written out on Close.
type RecordingTransport struct {
	inner session.Transport
	rec   Recording
	path  string
}

func NewRecordingTransport(inner session.Transport, path string) *RecordingTransport {
	return &RecordingTransport{inner: inner, path: path}
}

func (t *RecordingTransport) Open() error {
	return t.inner.Open()
}

func (t *RecordingTransport) Close() error {
	if t.path != "" {
		if err := t.rec.Save(t.path); err != nil {
			log.Error("Failed to save recording to %s: %v", t.path, err)
		} else {
			log.Info("Saved recording to %s", t.path)
		}
	}
	return t.inner.Close()
}

func (t *RecordingTransport) WritePacket(data []byte) error {
	t.rec.AddOutgoing(data)
	return t.inner.WritePacket(data)
}

func (t *RecordingTransport) ReadPacket(timeout time.Duration) ([]byte, error) {
	data, err := t.inner.ReadPacket(timeout)
	if data != nil {
		t.rec.AddIncoming(data)
	}
	return data, err
}

func (t *RecordingTransport) Recording() *Recording {
	return &t.rec
}

// ErrReplayExhausted is returned when a replay runs past the recorded
// incoming traffic.
type ErrReplayExhausted struct{}

func (ErrReplayExhausted) Error() string {
	return "no more packets in the recording"
}

// ReplayTransport replays a recording. Writes are checked against the
// recorded outgoing traffic, a mismatch is logged but does not fail the
// replay.
type ReplayTransport struct {
	rec      *Recording
	incoming int
	outgoing int
}

func NewReplayTransport(rec *Recording) *ReplayTransport {
	return &ReplayTransport{rec: rec}
}

func (t *ReplayTransport) Open() error  { return nil }
func (t *ReplayTransport) Close() error { return nil }

func (t *ReplayTransport) WritePacket(data []byte) error {
	if t.outgoing >= len(t.rec.Outgoing) {
		log.Warning("Writing more packets than were recorded")
		return nil
	}
	recorded := t.rec.Outgoing[t.outgoing].Data
	t.outgoing++
	if !bytes.Equal(data, recorded) {
		log.Warning("Written packet %d does not match the recording", t.outgoing-1)
	}
	return nil
}

func (t *ReplayTransport) ReadPacket(timeout time.Duration) ([]byte, error) {
	if t.incoming >= len(t.rec.Incoming) {
		return nil, ErrReplayExhausted{}
	}
	data := t.rec.Incoming[t.incoming].Data
	t.incoming++
	return data, nil
}
