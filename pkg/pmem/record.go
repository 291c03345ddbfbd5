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
	"math"
)

// Entry type tags, the first byte of an entry.
const (
	entrySchema   = 0
	entryMetadata = 1
	entryPeriodic = 2
	entryEpisodic = 3
	entryTextLine = 7
)

// Record is a decoded log entry: a PeriodicRecord, an EpisodicRecord or a
// TextRecord.
type Record interface {
	record()
}

// sampleDef describes how one periodic sample type decodes.
type sampleDef struct {
	name   string
	signed bool
	scale  float64
}

// Periodic sample types as declared by track schemas. Scales convert the
// raw integer to degrees, meters, seconds, radians and the like.
var sampleDefs = map[uint16]sampleDef{
	0x01: {"latitude", true, 1e-7},
	0x02: {"longitude", true, 1e-7},
	0x03: {"distance", false, 1},
	0x04: {"speed", false, 0.01},
	0x05: {"time", false, 0.001},
	0x06: {"heartrate", false, 1},
	0x07: {"gpsaltitude", true, 1},
	0x08: {"gpsheading", false, 1e-4},
	0x09: {"ehpe", false, 1},
	0x0A: {"evpe", false, 1},
	0x0B: {"verticalvelocity", true, 0.01},
	0x0C: {"cadence", false, 1},
	0x0D: {"temperature", true, 0.1},
	0x0E: {"satellites", false, 1},
}

// SchemaField is one column of a periodic schema declaration. Offset and
// Length address the sample bytes after the entry type tag.
type SchemaField struct {
	TypeID uint16
	Offset uint16
	Length uint16
}

// PeriodicSchema is the per-track declaration of the periodic sample
// layout, parsed once from the type 0 header entry.
type PeriodicSchema struct {
	Fields []SchemaField
}

// ParsePeriodicSchema decodes a schema declaration body: a field count
// followed by count (type, offset, length) triples.
func ParsePeriodicSchema(data []byte) (*PeriodicSchema, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("schema declaration too short: %d bytes", len(data))
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) < 2+count*6 {
		return nil, fmt.Errorf("schema declares %d fields in %d bytes", count, len(data))
	}
	s := &PeriodicSchema{Fields: make([]SchemaField, count)}
	for i := 0; i < count; i++ {
		off := 2 + i*6
		s.Fields[i] = SchemaField{
			TypeID: binary.LittleEndian.Uint16(data[off : off+2]),
			Offset: binary.LittleEndian.Uint16(data[off+2 : off+4]),
			Length: binary.LittleEndian.Uint16(data[off+4 : off+6]),
		}
	}
	return s, nil
}

// Field is one decoded sample value. Raw is the wire integer, Value the
// scaled measurement.
type Field struct {
	Name  string
	Raw   int64
	Value float64
}

// PeriodicRecord is one schema-shaped sample, fields in declaration order.
type PeriodicRecord struct {
	Fields []Field
}

func (*PeriodicRecord) record() {}

func (r *PeriodicRecord) Get(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func readInt(data []byte, signed bool) int64 {
	var raw uint64
	for i := len(data) - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(data[i])
	}
	if signed {
		shift := 64 - 8*len(data)
		return int64(raw<<shift) >> shift
	}
	return int64(raw)
}

// Decode shapes one periodic sample body (the bytes after the type tag)
// into a record. Unknown sample type ids decode as unsigned raw integers.
func (s *PeriodicSchema) Decode(data []byte) (*PeriodicRecord, error) {
	r := &PeriodicRecord{Fields: make([]Field, 0, len(s.Fields))}
	for _, sf := range s.Fields {
		end := int(sf.Offset) + int(sf.Length)
		if end > len(data) || sf.Length == 0 || sf.Length > 8 {
			return nil, fmt.Errorf("sample field %d outside %d byte entry", sf.TypeID, len(data))
		}
		def, known := sampleDefs[sf.TypeID]
		if !known {
			def = sampleDef{name: fmt.Sprintf("type_%d", sf.TypeID), scale: 1}
		}
		raw := readInt(data[sf.Offset:end], def.signed)
		r.Fields = append(r.Fields, Field{
			Name:  def.name,
			Raw:   raw,
			Value: float64(raw) * def.scale,
		})
	}
	return r, nil
}

// Episodic event subtypes.
const (
	eventLapInfo        = 1
	eventGpsUserData    = 2
	eventTimeReference  = 3
	eventDistanceSource = 4
	eventLogPause       = 5
)

// EpisodicEvent is the payload union of an episodic record.
type EpisodicEvent interface {
	episodicEvent()
}

// LapInfo marks a lap, event type 1 is the button press.
type LapInfo struct {
	EventType uint8
	Year      uint16
	Month     uint8
	Day       uint8
	Hour      uint8
	Minute    uint8
	Second    uint8
	Duration  uint32
	Distance  uint32
}

func (*LapInfo) episodicEvent() {}

// GpsUserData closes one GPS fix: position, altitude and the time within
// the log.
type GpsUserData struct {
	Latitude  int32
	Longitude int32
	Altitude  int16
	Time      uint32
}

func (*GpsUserData) episodicEvent() {}

func (g *GpsUserData) LatitudeDegrees() float64  { return float64(g.Latitude) * 1e-7 }
func (g *GpsUserData) LongitudeDegrees() float64 { return float64(g.Longitude) * 1e-7 }

// TimeReference anchors the log timeline to calendar time.
type TimeReference struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
	Ms     uint16
}

func (*TimeReference) episodicEvent() {}

type DistanceSource struct {
	Source uint8
}

func (*DistanceSource) episodicEvent() {}

// LogPause closes the log.
type LogPause struct{}

func (*LogPause) episodicEvent() {}

// UnknownEvent keeps the bytes of an unrecognized subtype.
type UnknownEvent struct {
	Subtype uint8
	Data    []byte
}

func (*UnknownEvent) episodicEvent() {}

// EpisodicRecord is an event-triggered entry. Timestamp is milliseconds
// into the log.
type EpisodicRecord struct {
	Timestamp uint32
	Event     EpisodicEvent
}

func (*EpisodicRecord) record() {}

// decodeEpisodic shapes an episodic entry body: u32 timestamp, subtype
// byte, subtype-shaped payload.
func decodeEpisodic(data []byte) (*EpisodicRecord, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("episodic entry of %d bytes", len(data))
	}
	r := &EpisodicRecord{Timestamp: binary.LittleEndian.Uint32(data[0:4])}
	subtype := data[4]
	body := data[5:]

	var event EpisodicEvent
	switch subtype {
	case eventLapInfo:
		event = &LapInfo{}
	case eventGpsUserData:
		event = &GpsUserData{}
	case eventTimeReference:
		event = &TimeReference{}
	case eventDistanceSource:
		event = &DistanceSource{}
	case eventLogPause:
		event = &LogPause{}
	default:
		r.Event = &UnknownEvent{Subtype: subtype, Data: append([]byte(nil), body...)}
		return r, nil
	}

	size := binary.Size(event)
	if len(body) < size {
		padded := make([]byte, size)
		copy(padded, body)
		body = padded
	}
	if err := binary.Read(bytes.NewReader(body[:size]), binary.LittleEndian, event); err != nil {
		return nil, err
	}
	r.Event = event
	return r, nil
}

// TextRecord is one diagnostic log line.
type TextRecord struct {
	Time uint32
	Text string
}

func (*TextRecord) record() {}

func (r *TextRecord) String() string {
	return fmt.Sprintf("%10.3f %s", float64(r.Time)/1000.0, r.Text)
}

// Plausible is the recovery heuristic's validity predicate. Only a few
// fields can be checked at all: a heading within a full circle, a
// non-negative time, a calendar month below 13. Everything else passes,
// which keeps the heuristic a best effort.
func Plausible(r Record) bool {
	switch rec := r.(type) {
	case *PeriodicRecord:
		for _, f := range rec.Fields {
			switch f.Name {
			case "gpsheading":
				if f.Value < 0 || f.Value >= 2*math.Pi {
					return false
				}
			case "time":
				if int32(f.Raw) < 0 {
					return false
				}
			}
		}
		return true
	case *EpisodicRecord:
		switch ev := rec.Event.(type) {
		case *LapInfo:
			return ev.Month < 13
		case *TimeReference:
			return ev.Month < 13
		}
		return true
	default:
		return true
	}
}
