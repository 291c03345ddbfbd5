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

package pmem

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gpspod/go-gpspod/pkg/log"
)

// RecoveryScanBound limits the forward search of RecoverTrack.
const RecoveryScanBound = 65536

// recoveryRunLength is the number of consecutive plausible entries that
// qualifies an alignment.
const recoveryRunLength = 10

// TrackMetadata is the fixed layout header entry of a track.
type TrackMetadata struct {
	Year         uint16
	Month        uint8
	Day          uint8
	Hour         uint8
	Minute       uint8
	Second       uint8
	Activity     uint8
	Interval     uint16
	Duration     uint32 // tenths of a second
	VelocityAvg  uint16 // 0.01 m/s
	VelocityMax  uint16 // 0.01 m/s
	AltitudeMin  int16
	AltitudeMax  int16
	HeartrateAvg uint8
	HeartrateMax uint8
	Distance     uint32 // meters
	Samples      uint32
	Name         [8]byte
}

// StartTime is the wall clock start of the log.
func (m *TrackMetadata) StartTime() time.Time {
	return time.Date(int(m.Year), time.Month(m.Month), int(m.Day),
		int(m.Hour), int(m.Minute), int(m.Second), 0, time.UTC)
}

func (m *TrackMetadata) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d, %d samples, %.1f km, %d s",
		m.Year, m.Month, m.Day, m.Hour, m.Minute, m.Second,
		m.Samples, float64(m.Distance)/1000.0, m.Duration/10)
}

// Track is one GPS log. LoadHeader parses the four fixed header entries,
// LoadEntries decodes the sample stream.
type Track struct {
	img    Image
	reader entryReader
	start  int

	Schema   *PeriodicSchema
	Metadata *TrackMetadata
	// Opaque keeps the two undeciphered header entries
	Opaque [][]byte
	// Recovered marks a track rebuilt by RecoverTrack, its metadata is
	// borrowed from the last indexed track
	Recovered bool

	Records []Record
}

func NewTrack(img Image, sub SubBlock) *Track {
	start := sub.DataOffset()
	return &Track{img: img, reader: entryReader{img: img, pos: start}, start: start}
}

// LoadHeader reads the fixed header entry sequence: the periodic schema,
// the track metadata and two entries kept opaque. A track without them is
// not decodable and reports ErrNoMetadata.
func (t *Track) LoadHeader() error {
	t.reader.pos = t.start

	entry, err := t.reader.pull()
	if err != nil || len(entry) < 1 || entry[0] != entrySchema {
		return ErrNoMetadata{}
	}
	schema, err := ParsePeriodicSchema(entry[1:])
	if err != nil {
		return ErrNoMetadata{}
	}

	entry, err = t.reader.pull()
	if err != nil || len(entry) < 1 || entry[0] != entryMetadata {
		return ErrNoMetadata{}
	}
	metadata := &TrackMetadata{}
	body := entry[1:]
	if size := binary.Size(metadata); len(body) < size {
		padded := make([]byte, size)
		copy(padded, body)
		body = padded
	}
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, metadata); err != nil {
		return ErrNoMetadata{}
	}

	opaque := make([][]byte, 0, 2)
	for i := 0; i < 2; i++ {
		entry, err = t.reader.pull()
		if err != nil {
			return ErrNoMetadata{}
		}
		opaque = append(opaque, append([]byte(nil), entry...))
	}

	t.Schema = schema
	t.Metadata = metadata
	t.Opaque = opaque
	return nil
}

// pullRecord consumes one entry. Entries that produce no record (header
// leftovers, unknown tags) return nil without error.
func (t *Track) pullRecord() (Record, error) {
	entry, err := t.reader.pull()
	if err != nil {
		return nil, err
	}
	if len(entry) == 0 {
		return nil, nil
	}
	switch entry[0] {
	case entryPeriodic:
		return t.Schema.Decode(entry[1:])
	case entryEpisodic:
		return decodeEpisodic(entry[1:])
	case entryTextLine:
		return decodeTextLine(entry[1:])
	default:
		return nil, nil
	}
}

// LoadEntries decodes exactly Metadata.Samples records from the sample
// stream. LoadHeader must have succeeded.
func (t *Track) LoadEntries() error {
	if t.Metadata == nil {
		return ErrNoMetadata{}
	}
	t.Records = make([]Record, 0, t.Metadata.Samples)
	for uint32(len(t.Records)) < t.Metadata.Samples {
		rec, err := t.pullRecord()
		if err != nil {
			return fmt.Errorf("after %d of %d samples: %w",
				len(t.Records), t.Metadata.Samples, err)
		}
		if rec != nil {
			t.Records = append(t.Records, rec)
		}
	}
	return nil
}

// End is the cursor position after the consumed entries.
func (t *Track) End() int {
	return t.reader.pos
}

func decodeTextLine(data []byte) (*TextRecord, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("text line entry of %d bytes", len(data))
	}
	text := data[4:]
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	return &TextRecord{
		Time: binary.LittleEndian.Uint32(data[0:4]),
		Text: string(text),
	}, nil
}

// DebugLog is one internal diagnostic log: a stream of text line entries
// bounded by the region's free pointer.
type DebugLog struct {
	img     Image
	reader  entryReader
	end     int
	Records []*TextRecord
}

// NewDebugLog prepares a log over one sub-block; end is the absolute
// offset where the used region stops.
func NewDebugLog(img Image, sub SubBlock, end int) *DebugLog {
	return &DebugLog{img: img, reader: entryReader{img: img, pos: sub.DataOffset()}, end: end}
}

// LoadEntries reads text lines until the bound, a zero length entry or
// the end of the image. Entries of other types are consumed silently.
func (d *DebugLog) LoadEntries() error {
	for d.reader.pos+2 <= d.end {
		entry, err := d.reader.pull()
		if err != nil || len(entry) == 0 {
			return nil
		}
		if entry[0] != entryTextLine {
			continue
		}
		line, err := decodeTextLine(entry[1:])
		if err != nil {
			log.Debug("Skipping damaged text line: %v", err)
			continue
		}
		d.Records = append(d.Records, line)
	}
	return nil
}

// LoadTracks loads the header of every sub-block of a track block.
// Sub-blocks without a usable header are skipped.
func LoadTracks(img Image, block *Block) []*Track {
	var tracks []*Track
	for _, sub := range block.Subs {
		t := NewTrack(img, sub)
		if err := t.LoadHeader(); err != nil {
			log.Warning("Skipping track at 0x%06X: %v", sub.Offset, err)
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks
}

// RecoverTrack searches for log data written after the last indexed
// track, for the case where a newer log has overwritten the index. It
// borrows the last track's schema and scans forward for an offset where
// recoveryRunLength consecutive entries decode plausibly, then pulls
// entries one at a time until the first implausible one. Alignment on
// lucky garbage is possible, the result is best effort.
func RecoverTrack(img Image, block *Block) (*Track, error) {
	tracks := LoadTracks(img, block)
	if len(tracks) == 0 {
		return nil, ErrNoRecovery{}
	}
	last := tracks[len(tracks)-1]
	if err := last.LoadEntries(); err != nil {
		log.Warning("Last track truncated, searching from its break point: %v", err)
	}
	searchStart := last.End()

	found := -1
	for delta := 0; delta < RecoveryScanBound; delta++ {
		if plausibleRun(img, searchStart+delta, last.Schema) {
			found = searchStart + delta
			break
		}
	}
	if found < 0 {
		return nil, ErrNoRecovery{}
	}
	log.Info("Found plausible log data at 0x%06X", found)

	metadata := *last.Metadata
	metadata.Samples = 0
	recovered := &Track{
		img:       img,
		reader:    entryReader{img: img, pos: found},
		start:     found,
		Schema:    last.Schema,
		Metadata:  &metadata,
		Recovered: true,
	}
	for {
		before := recovered.reader
		rec, err := recovered.pullRecord()
		if err != nil {
			break
		}
		if rec != nil && !Plausible(rec) {
			recovered.reader = before
			break
		}
		if rec != nil {
			recovered.Records = append(recovered.Records, rec)
		}
	}
	recovered.Metadata.Samples = uint32(len(recovered.Records))
	return recovered, nil
}

// plausibleRun probes whether the next recoveryRunLength entries at the
// offset all decode plausibly.
func plausibleRun(img Image, offset int, schema *PeriodicSchema) bool {
	reader := entryReader{img: img, pos: offset}
	for i := 0; i < recoveryRunLength; i++ {
		entry, err := reader.pull()
		if err != nil || len(entry) == 0 {
			return false
		}
		switch entry[0] {
		case entryPeriodic:
			rec, err := schema.Decode(entry[1:])
			if err != nil || !Plausible(rec) {
				return false
			}
		case entryEpisodic:
			rec, err := decodeEpisodic(entry[1:])
			if err != nil || !Plausible(rec) {
				return false
			}
		default:
			// no validation possible for this type
		}
	}
	return true
}
