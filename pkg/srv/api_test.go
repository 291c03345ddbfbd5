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

package srv

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/pmem"
)

func marshalLE(v interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func entry(payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(payload)))
	copy(out[2:], payload)
	return out
}

// buildImage lays out a filesystem dump with one two-sample track and one
// internal log line.
func buildImage() pmem.FileImage {
	fs := make([]byte, pmem.FilesystemSize)
	put := func(off int, b []byte) int {
		copy(fs[off:], b)
		return off + len(b)
	}
	subHeader := func(next, prev uint32) []byte {
		return marshalLE(pmem.SubBlockHeader{Magic: [4]byte{'P', 'M', 'E', 'M'}, Next: next, Prev: prev})
	}

	// Track block: schema (latitude, longitude, time), metadata, two
	// opaque header entries, then periodic samples and a GPS fix.
	sub := uint32(pmem.TrackBlockOffset - pmem.FileOffset + pmem.BlockHeaderSize)
	pos := put(pmem.FileOffset+int(sub), subHeader(sub, sub))
	schema := []byte{0x00, 0x03, 0x00,
		0x01, 0x00, 0x00, 0x00, 0x04, 0x00,
		0x02, 0x00, 0x04, 0x00, 0x04, 0x00,
		0x05, 0x00, 0x08, 0x00, 0x04, 0x00}
	pos = put(pos, entry(schema))
	meta := pmem.TrackMetadata{Year: 2016, Month: 3, Day: 27, Hour: 9,
		Interval: 1, Distance: 1500, Duration: 6000, Samples: 3}
	pos = put(pos, entry(append([]byte{0x01}, marshalLE(meta)...)))
	pos = put(pos, entry([]byte{0x69, 0x00}))
	pos = put(pos, entry([]byte{0xE0, 0x07}))
	sample := func(lat, lon int32, tm uint32) []byte {
		payload := make([]byte, 13)
		payload[0] = 0x02
		binary.LittleEndian.PutUint32(payload[1:5], uint32(lat))
		binary.LittleEndian.PutUint32(payload[5:9], uint32(lon))
		binary.LittleEndian.PutUint32(payload[9:13], tm)
		return entry(payload)
	}
	pos = put(pos, sample(100000000, 40000000, 1000))
	pos = put(pos, sample(100000100, 40000100, 2000))
	fix := make([]byte, 20)
	fix[0] = 0x03
	binary.LittleEndian.PutUint32(fix[1:5], 2000)
	fix[5] = 0x02
	binary.LittleEndian.PutUint32(fix[6:10], uint32(100000100))
	binary.LittleEndian.PutUint32(fix[10:14], uint32(40000100))
	binary.LittleEndian.PutUint16(fix[14:16], 25)
	pos = put(pos, entry(fix))
	put(pmem.TrackBlockOffset, marshalLE(pmem.BlockHeader{
		First: sub, Last: sub, Entries: 1, Free: uint32(pos - pmem.FileOffset),
	}))

	// Internal log block with one text line.
	lsub := uint32(pmem.DebugLogBlockOffset - pmem.FileOffset + pmem.BlockHeaderSize)
	pos = put(pmem.FileOffset+int(lsub), subHeader(lsub, lsub))
	line := append([]byte{0x07, 0x64, 0x00, 0x00, 0x00}, []byte("Version:1.6.39")...)
	pos = put(pos, entry(line))
	put(pmem.DebugLogBlockOffset, marshalLE(pmem.BlockHeader{
		First: lsub, Last: lsub, Entries: 1, Free: uint32(pos - pmem.FileOffset),
	}))
	return fs
}

func testServer() *ApiServer {
	cfg := config.NewDefaultConfig()
	s := NewFileApiServer(context.Background(), cfg, buildImage())
	s.configureRouter()
	return s
}

func TestApiInfoWithoutDevice(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/info", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestApiTracks(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tracks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var tracks []*TrackJSON
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tracks))
	require.Len(t, tracks, 1)
	assert.Equal(t, 0, tracks[0].Index)
	assert.Equal(t, "2016-03-27T09:00:00Z", tracks[0].Start)
	assert.Equal(t, uint32(3), tracks[0].Samples)
	assert.Equal(t, uint32(1500), tracks[0].DistanceM)
	assert.Equal(t, 600.0, tracks[0].Duration)
}

func TestApiTrackGpx(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tracks/0.gpx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gpx+xml", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "<gpx")
	assert.Contains(t, out, "<trkpt")
	assert.Contains(t, out, "2016-03-27T09:00:02Z")
}

func TestApiTrackGpxNotFound(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tracks/5.gpx", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApiInternalLog(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/log", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var lines []*LogLineJSON
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&lines))
	require.Len(t, lines, 1)
	assert.Equal(t, "Version:1.6.39", lines[0].Text)
	assert.Equal(t, 0.1, lines[0].TimeS)
}

func TestApiSetTimeWithoutDevice(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/time", strings.NewReader(`{"time":""}`))
	s.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestApiSwaggerSpec(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/swagger.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var spec map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&spec))
	assert.Equal(t, "2.0", spec["swagger"])
}
