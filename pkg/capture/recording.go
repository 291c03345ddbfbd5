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

// Package capture stores raw USB traffic for later analysis and replay.
// The interchange format is JSON with two packet lists, each entry a
// [timestamp, base64] pair, gzip compressed when the path ends in .gz.
// A Wireshark PDML export of the interrupt traffic converts to the same
// structure.
package capture

import (
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Entry is one raw packet with its capture timestamp in epoch seconds.
type Entry struct {
	Time float64
	Data []byte
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.Time, base64.StdEncoding.EncodeToString(e.Data)})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &e.Time); err != nil {
		return err
	}
	var encoded string
	if err := json.Unmarshal(pair[1], &encoded); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	e.Data = decoded
	return nil
}

// Recording is a captured conversation, seen from the host.
type Recording struct {
	Incoming []Entry `json:"incoming"`
	Outgoing []Entry `json:"outgoing"`
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func (r *Recording) AddIncoming(data []byte) {
	r.Incoming = append(r.Incoming, Entry{Time: now(), Data: append([]byte(nil), data...)})
}

func (r *Recording) AddOutgoing(data []byte) {
	r.Outgoing = append(r.Outgoing, Entry{Time: now(), Data: append([]byte(nil), data...)})
}

// TimedPacket is a recording entry tagged with its direction.
type TimedPacket struct {
	Time     float64
	Incoming bool
	Data     []byte
}

// Combined merges both directions into one list ordered by capture time.
func (r *Recording) Combined() []TimedPacket {
	out := make([]TimedPacket, 0, len(r.Incoming)+len(r.Outgoing))
	for _, e := range r.Incoming {
		out = append(out, TimedPacket{Time: e.Time, Incoming: true, Data: e.Data})
	}
	for _, e := range r.Outgoing {
		out = append(out, TimedPacket{Time: e.Time, Data: e.Data})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func (r *Recording) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	return json.NewEncoder(w).Encode(r)
}

func Load(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rd io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		rd = gz
	}

	r := &Recording{}
	if err := json.NewDecoder(rd).Decode(r); err != nil {
		return nil, fmt.Errorf("parsing recording %s: %w", path, err)
	}
	return r, nil
}

// LoadAny loads a capture from a recording or a Wireshark PDML export,
// picked by file name.
func LoadAny(path string) (*Recording, error) {
	if strings.Contains(path, ".xml") {
		return LoadPDML(path)
	}
	return Load(path)
}
