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
	"compress/gzip"
	"encoding/hex"
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gpspod/go-gpspod/pkg/log"
)

// Linux usbmon URB constants as they appear in a Wireshark PDML export.
const (
	urbTypeSubmit    = 0x53
	urbTypeCompleted = 0x43
	urbStatusSuccess = 0

	directionIn = 1
)

type pdmlField struct {
	Name   string      `xml:"name,attr"`
	Show   string      `xml:"show,attr"`
	Value  string      `xml:"value,attr"`
	Fields []pdmlField `xml:"field"`
}

type pdmlProto struct {
	Name   string      `xml:"name,attr"`
	Fields []pdmlField `xml:"field"`
}

type pdmlPacket struct {
	Protos []pdmlProto `xml:"proto"`
}

type pdmlFile struct {
	Packets []pdmlPacket `xml:"packet"`
}

// pdmlValues flattens a packet into name -> (value, show) maps.
type pdmlValues struct {
	value map[string]string
	show  map[string]string
}

func (v *pdmlValues) collect(fields []pdmlField) {
	for _, f := range fields {
		if f.Value != "" {
			v.value[f.Name] = f.Value
		}
		if f.Show != "" {
			v.show[f.Name] = f.Show
		}
		v.collect(f.Fields)
	}
}

func (v *pdmlValues) hexUint(name string) (uint64, bool) {
	s, ok := v.value[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (v *pdmlValues) decUint(name string) (uint64, bool) {
	s, ok := v.show[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (v *pdmlValues) timeEpoch() float64 {
	t, err := strconv.ParseFloat(v.show["frame.time_epoch"], 64)
	if err != nil {
		return 0
	}
	return t
}

func (v *pdmlValues) capdata() []byte {
	s, ok := v.value["usb.capdata"]
	if !ok {
		return nil
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return data
}

// LoadPDML converts a Wireshark PDML export of usbmon traffic into a
// Recording. URB submissions are paired with their completions by id; for
// reads the data rides on the completion, for writes on the submission.
// Timestamps are rebased on the first frame.
func LoadPDML(path string) (*Recording, error) {
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

	var file pdmlFile
	if err := xml.NewDecoder(rd).Decode(&file); err != nil {
		return nil, err
	}

	rec := &Recording{}
	pending := map[uint64]*pdmlValues{}
	startTime := -1.0
	for _, packet := range file.Packets {
		v := &pdmlValues{value: map[string]string{}, show: map[string]string{}}
		for _, proto := range packet.Protos {
			v.collect(proto.Fields)
		}

		urbID, ok := v.hexUint("usb.urb_id")
		if !ok {
			continue
		}
		urbType, _ := v.hexUint("usb.urb_type")
		switch urbType {
		case urbTypeSubmit:
			pending[urbID] = v
		case urbTypeCompleted:
			submit, ok := pending[urbID]
			if !ok {
				log.Warning("URB completion without submission: %x", urbID)
				continue
			}
			delete(pending, urbID)
			if status, _ := v.hexUint("usb.urb_status"); status != urbStatusSuccess {
				log.Warning("Failed USB transfer in capture, urb %x", urbID)
			}

			// The completion carries the direction of the whole
			// transaction.
			direction, _ := v.decUint("usb.endpoint_number.direction")
			carrier := submit
			if direction == directionIn {
				carrier = v
			}
			data := carrier.capdata()
			if data == nil {
				continue
			}
			t := carrier.timeEpoch()
			if startTime < 0 {
				startTime = t
			}
			entry := Entry{Time: t - startTime, Data: data}
			if direction == directionIn {
				rec.Incoming = append(rec.Incoming, entry)
			} else {
				rec.Outgoing = append(rec.Outgoing, entry)
			}
		}
	}
	return rec, nil
}
