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

// Package gpx renders decoded tracks as GPX 1.1 documents. Periodic
// samples accumulate into a current state and GPS fix events flush it
// into track points; lap events optionally split segments and add
// waypoints.
package gpx

import (
	"encoding/xml"
	"io"
	"math"
	"os"
	"time"

	"github.com/gpspod/go-gpspod/pkg/pmem"
)

const (
	Creator = "go-gpspod"

	xmlnsGpx      = "http://www.topografix.com/GPX/1/1"
	xmlnsXsi      = "http://www.w3.org/2001/XMLSchema-instance"
	xmlnsGpxdata  = "http://www.cluetrust.com/XML/GPXDATA/1/0"
	schemaLocation = "http://www.topografix.com/GPX/1/1 " +
		"http://www.topografix.com/GPX/1/1/gpx.xsd " +
		"http://www.cluetrust.com/XML/GPXDATA/1/0 " +
		"http://www.cluetrust.com/Schemas/gpxdata10.xsd"
)

// Options select how a track consolidates into GPX.
type Options struct {
	// LapSplitsSegment starts a new track segment on every lap event
	LapSplitsSegment bool
	// LapAddsWaypoint adds a waypoint at the position of every lap event
	LapAddsWaypoint bool
	// WritePeriodic emits a point for every positioned periodic sample
	// instead of GPS fix events only
	WritePeriodic bool
	// LocalTime renders timestamps in the local zone instead of UTC
	LocalTime bool
	// OverrideTime replaces the start time recorded in the track metadata
	OverrideTime *time.Time
}

func DefaultOptions() Options {
	return Options{LapSplitsSegment: true, LapAddsWaypoint: true}
}

type Document struct {
	XMLName        xml.Name    `xml:"gpx"`
	Version        string      `xml:"version,attr"`
	Creator        string      `xml:"creator,attr"`
	Xmlns          string      `xml:"xmlns,attr"`
	XmlnsXsi       string      `xml:"xmlns:xsi,attr"`
	XmlnsGpxdata   string      `xml:"xmlns:gpxdata,attr"`
	SchemaLocation string      `xml:"xsi:schemaLocation,attr"`
	Metadata       *Metadata   `xml:"metadata,omitempty"`
	Waypoints      []*Point    `xml:"wpt,omitempty"`
	Tracks         []*TrackLog `xml:"trk"`
}

type Metadata struct {
	Time string `xml:"time,omitempty"`
}

type TrackLog struct {
	Name     string     `xml:"name,omitempty"`
	Segments []*Segment `xml:"trkseg"`
}

type Segment struct {
	Points []*Point `xml:"trkpt"`
}

type Point struct {
	Lat        float64     `xml:"lat,attr"`
	Lon        float64     `xml:"lon,attr"`
	Ele        *float64    `xml:"ele,omitempty"`
	Time       string      `xml:"time,omitempty"`
	Hdop       *float64    `xml:"hdop,omitempty"`
	Vdop       *float64    `xml:"vdop,omitempty"`
	Extensions *Extensions `xml:"extensions,omitempty"`
}

type Extensions struct {
	Distance *float64 `xml:"gpxdata:distance,omitempty"`
	HR       *int     `xml:"gpxdata:hr,omitempty"`
	Cadence  *int     `xml:"gpxdata:cadence,omitempty"`
	Temp     *float64 `xml:"gpxdata:temp,omitempty"`
	Speed    *float64 `xml:"gpxdata:speed,omitempty"`
	Heading  *float64 `xml:"gpxdata:heading,omitempty"`
}

func (e *Extensions) empty() bool {
	return e.Distance == nil && e.HR == nil && e.Cadence == nil &&
		e.Temp == nil && e.Speed == nil && e.Heading == nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// headingDegrees converts a heading in radians to compass degrees.
func headingDegrees(rad float64) float64 {
	return rad / (2 * math.Pi) * 360
}

type builder struct {
	opts    Options
	base    time.Time
	current map[string]float64
	doc     *Document
	track   *TrackLog
	segment *Segment
}

func newBuilder(track *pmem.Track, opts Options) *builder {
	base := track.Metadata.StartTime()
	if opts.OverrideTime != nil {
		base = *opts.OverrideTime
	}
	b := &builder{
		opts:    opts,
		base:    base,
		current: make(map[string]float64),
		doc: &Document{
			Version:        "1.1",
			Creator:        Creator,
			Xmlns:          xmlnsGpx,
			XmlnsXsi:       xmlnsXsi,
			XmlnsGpxdata:   xmlnsGpxdata,
			SchemaLocation: schemaLocation,
		},
		track: &TrackLog{},
	}
	b.doc.Metadata = &Metadata{Time: b.formatTime(base)}
	b.doc.Tracks = []*TrackLog{b.track}
	return b
}

func (b *builder) formatTime(t time.Time) string {
	if b.opts.LocalTime {
		return t.Local().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}

// timeAt maps a log offset in milliseconds to wall clock time.
func (b *builder) timeAt(ms uint32) time.Time {
	return b.base.Add(time.Duration(ms) * time.Millisecond)
}

func (b *builder) openSegment() *Segment {
	if b.segment == nil {
		b.segment = &Segment{}
		b.track.Segments = append(b.track.Segments, b.segment)
	}
	return b.segment
}

func (b *builder) closeSegment() {
	b.segment = nil
}

// extensions assembles the gpxdata block from the current periodic state.
func (b *builder) extensions() *Extensions {
	ext := &Extensions{}
	if v, ok := b.current["distance"]; ok {
		ext.Distance = floatPtr(v)
	}
	if v, ok := b.current["heartrate"]; ok {
		ext.HR = intPtr(int(v))
	}
	if v, ok := b.current["cadence"]; ok {
		ext.Cadence = intPtr(int(v))
	}
	if v, ok := b.current["temperature"]; ok {
		ext.Temp = floatPtr(v)
	}
	if v, ok := b.current["speed"]; ok {
		ext.Speed = floatPtr(v)
	}
	if v, ok := b.current["gpsheading"]; ok {
		ext.Heading = floatPtr(headingDegrees(v))
	}
	if ext.empty() {
		return nil
	}
	return ext
}

func (b *builder) decorate(p *Point) {
	if v, ok := b.current["gpsaltitude"]; ok && p.Ele == nil {
		p.Ele = floatPtr(v)
	}
	if v, ok := b.current["ehpe"]; ok {
		p.Hdop = floatPtr(v)
	}
	if v, ok := b.current["evpe"]; ok {
		p.Vdop = floatPtr(v)
	}
	p.Extensions = b.extensions()
}

func (b *builder) addPeriodic(rec *pmem.PeriodicRecord) {
	for _, f := range rec.Fields {
		b.current[f.Name] = f.Value
	}
	if !b.opts.WritePeriodic {
		return
	}
	lat, okLat := b.current["latitude"]
	lon, okLon := b.current["longitude"]
	tm, okTime := b.current["time"]
	if !okLat || !okLon || !okTime {
		return
	}
	p := &Point{
		Lat:  lat,
		Lon:  lon,
		Time: b.formatTime(b.base.Add(time.Duration(tm * float64(time.Second)))),
	}
	b.decorate(p)
	b.openSegment().Points = append(b.openSegment().Points, p)
}

func (b *builder) addFix(ms uint32, fix *pmem.GpsUserData) {
	p := &Point{
		Lat:  fix.LatitudeDegrees(),
		Lon:  fix.LongitudeDegrees(),
		Ele:  floatPtr(float64(fix.Altitude)),
		Time: b.formatTime(b.timeAt(ms)),
	}
	b.decorate(p)
	b.openSegment().Points = append(b.openSegment().Points, p)
}

func (b *builder) lastPoint() *Point {
	for i := len(b.track.Segments) - 1; i >= 0; i-- {
		points := b.track.Segments[i].Points
		if len(points) > 0 {
			return points[len(points)-1]
		}
	}
	return nil
}

func (b *builder) addLap(ms uint32) {
	if b.opts.LapAddsWaypoint {
		if last := b.lastPoint(); last != nil {
			b.doc.Waypoints = append(b.doc.Waypoints, &Point{
				Lat:  last.Lat,
				Lon:  last.Lon,
				Time: b.formatTime(b.timeAt(ms)),
			})
		}
	}
	if b.opts.LapSplitsSegment {
		b.closeSegment()
	}
}

func (b *builder) addEpisodic(rec *pmem.EpisodicRecord) {
	switch ev := rec.Event.(type) {
	case *pmem.GpsUserData:
		b.addFix(rec.Timestamp, ev)
	case *pmem.LapInfo:
		b.addLap(rec.Timestamp)
	case *pmem.TimeReference:
		if b.opts.OverrideTime == nil {
			wall := time.Date(int(ev.Year), time.Month(ev.Month), int(ev.Day),
				int(ev.Hour), int(ev.Minute), int(ev.Second),
				int(ev.Ms)*int(time.Millisecond), time.UTC)
			b.base = wall.Add(-time.Duration(rec.Timestamp) * time.Millisecond)
		}
	case *pmem.LogPause:
		b.closeSegment()
	}
}

// Build consolidates the records of a decoded track into a GPX document.
func Build(track *pmem.Track, opts Options) *Document {
	b := newBuilder(track, opts)
	for _, rec := range track.Records {
		switch r := rec.(type) {
		case *pmem.PeriodicRecord:
			b.addPeriodic(r)
		case *pmem.EpisodicRecord:
			b.addEpisodic(r)
		}
	}
	if len(b.track.Segments) == 0 {
		b.openSegment()
	}
	return b.doc
}

// Write renders the track into the writer.
func Write(w io.Writer, track *pmem.Track, opts Options) error {
	doc := Build(track, opts)
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteFile renders the track into a file.
func WriteFile(path string, track *pmem.Track, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Write(f, track, opts)
}
