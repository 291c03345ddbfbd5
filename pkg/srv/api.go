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

// go-gpspod API
//
// # RESTful APIs to read tracks and control a connected pod
//
// Schemes: http
// Host: localhost:8070
// Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package srv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/device"
	"github.com/gpspod/go-gpspod/pkg/gpx"
	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/pmem"
)

// InfoJSON ...
type InfoJSON struct {
	Model      string `json:"model"`
	Serial     string `json:"serial"`
	FWVersion  string `json:"fw_version"`
	HWVersion  string `json:"hw_version"`
	BSLVersion string `json:"bsl_version"`
}

// StatusJSON ...
type StatusJSON struct {
	Charge uint8 `json:"charge"`
}

// TrackJSON ...
type TrackJSON struct {
	Index     int     `json:"index"`
	Start     string  `json:"start"`
	Samples   uint32  `json:"samples"`
	DistanceM uint32  `json:"distance_m"`
	Duration  float64 `json:"duration_s"`
	Recovered bool    `json:"recovered,omitempty"`
}

// TimeJSON carries the clock value for the set time operation; an empty
// value means the current host time.
type TimeJSON struct {
	Time string `json:"time"`
}

// LogLineJSON ...
type LogLineJSON struct {
	TimeS float64 `json:"time_s"`
	Text  string  `json:"text"`
}

// ApiServer serves decoded data over HTTP. The pod protocol is half
// duplex, so every handler holds the session mutex for its exchange.
// The server can also run on a filesystem dump without a device, then
// the device-only endpoints report 503.
type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	mu  sync.Mutex
	pod *device.Pod
	img pmem.Image
}

// NewApiServer builds a server over a connected pod.
func NewApiServer(ctx context.Context, cfg *config.Config, pod *device.Pod) *ApiServer {
	log.Info("Initializing API server with address: %s port: %d", cfg.API.Host, cfg.API.Port)
	return &ApiServer{
		Context: ctx,
		Config:  cfg,
		pod:     pod,
		img:     pod,
	}
}

// NewFileApiServer builds a server over a filesystem dump.
func NewFileApiServer(ctx context.Context, cfg *config.Config, img pmem.Image) *ApiServer {
	log.Info("Initializing API server with address: %s port: %d (filesystem dump)", cfg.API.Host, cfg.API.Port)
	return &ApiServer{
		Context: ctx,
		Config:  cfg,
		img:     img,
	}
}

// Run starts the server. It blocks until the listener fails.
func (s *ApiServer) Run() error {
	log.Info("Starting API server: address: %s port: %d", s.Config.API.Host, s.Config.API.Port)
	s.configureRouter()
	httpServer := &http.Server{
		Handler: handlers.CombinedLoggingHandler(os.Stdout, s.Router),
		Addr:    fmt.Sprintf("%s:%d", s.Config.API.Host, s.Config.API.Port),
	}
	return httpServer.ListenAndServe()
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix("/api").Subrouter()
	// swagger:operation GET /info device info
	// ---
	// summary: read device identification
	// responses:
	//   "200":
	//     description: OK
	//   "503":
	//     description: no device attached
	subRouter.HandleFunc("/info", s.handleInfo()).Methods("GET")
	// swagger:operation GET /status device status
	// ---
	// summary: read battery charge
	// responses:
	//   "200":
	//     description: OK
	//   "503":
	//     description: no device attached
	subRouter.HandleFunc("/status", s.handleStatus()).Methods("GET")
	// swagger:operation GET /tracks list tracks
	// ---
	// summary: list decodable tracks
	// responses:
	//   "200":
	//     description: OK
	subRouter.HandleFunc("/tracks", s.handleTracks()).Methods("GET")
	// swagger:operation GET /tracks/{index}.gpx get track
	// ---
	// summary: render one track as GPX
	// responses:
	//   "200":
	//     description: OK
	//   "404":
	//     description: no such track
	subRouter.HandleFunc("/tracks/{index:[0-9]+}.gpx", s.handleTrackGpx()).Methods("GET")
	// swagger:operation POST /time set clock
	// ---
	// summary: set the device clock
	// responses:
	//   "200":
	//     description: OK
	//   "503":
	//     description: no device attached
	subRouter.HandleFunc("/time", s.handleSetTime()).Methods("POST")
	// swagger:operation GET /log internal log
	// ---
	// summary: read the internal diagnostic log
	// responses:
	//   "200":
	//     description: OK
	subRouter.HandleFunc("/log", s.handleInternalLog()).Methods("GET")
	s.configureDocs()
}

func (s *ApiServer) requirePod(w http.ResponseWriter) bool {
	if s.pod == nil {
		http.Error(w, "no device attached", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *ApiServer) handleInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requirePod(w) {
			return
		}
		s.mu.Lock()
		info, err := s.pod.Info()
		s.mu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(&InfoJSON{
			Model:      info.ModelString(),
			Serial:     info.SerialString(),
			FWVersion:  versionString(info.FWVersion),
			HWVersion:  versionString(info.HWVersion),
			BSLVersion: versionString(info.BSLVersion),
		})
	}
}

func versionString(v [4]uint8) string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

func (s *ApiServer) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requirePod(w) {
			return
		}
		s.mu.Lock()
		status, err := s.pod.Status()
		s.mu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(&StatusJSON{Charge: status.Charge})
	}
}

// loadTracks reads the track block. The session mutex must be held when
// the image is a live pod.
func (s *ApiServer) loadTracks() ([]*pmem.Track, error) {
	block := pmem.NewBlock(s.img, pmem.TrackBlockOffset)
	if err := block.LoadHeader(); err != nil {
		return nil, err
	}
	if err := block.LoadSubBlocks(); err != nil {
		return nil, err
	}
	return pmem.LoadTracks(s.img, block), nil
}

func (s *ApiServer) handleTracks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		tracks, err := s.loadTracks()
		s.mu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		list := []*TrackJSON{}
		for i, t := range tracks {
			list = append(list, &TrackJSON{
				Index:     i,
				Start:     t.Metadata.StartTime().Format(time.RFC3339),
				Samples:   t.Metadata.Samples,
				DistanceM: t.Metadata.Distance,
				Duration:  float64(t.Metadata.Duration) / 10.0,
				Recovered: t.Recovered,
			})
		}
		json.NewEncoder(w).Encode(list)
	}
}

func (s *ApiServer) handleTrackGpx() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		index, err := strconv.Atoi(vars["index"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		tracks, err := s.loadTracks()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if index < 0 || index >= len(tracks) {
			http.Error(w, fmt.Sprintf("no track %d", index), http.StatusNotFound)
			return
		}
		track := tracks[index]
		if err := track.LoadEntries(); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/gpx+xml")
		if err := gpx.Write(w, track, gpx.DefaultOptions()); err != nil {
			log.Error("Writing GPX response: %v", err)
		}
	}
}

func (s *ApiServer) handleSetTime() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requirePod(w) {
			return
		}
		body := &TimeJSON{}
		if err := json.NewDecoder(r.Body).Decode(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		t := time.Now()
		if body.Time != "" {
			parsed, err := time.Parse(time.RFC3339, body.Time)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			t = parsed
		}
		s.mu.Lock()
		err := s.pod.SetTime(t)
		s.mu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
}

func (s *ApiServer) handleInternalLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		block := pmem.NewBlock(s.img, pmem.DebugLogBlockOffset)
		if err := block.LoadHeader(); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err := block.LoadSubBlocks(); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		lines := []*LogLineJSON{}
		end := pmem.FileOffset + int(block.Header.Free)
		for _, sub := range block.Subs {
			dlog := pmem.NewDebugLog(s.img, sub, end)
			if err := dlog.LoadEntries(); err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			for _, rec := range dlog.Records {
				lines = append(lines, &LogLineJSON{
					TimeS: float64(rec.Time) / 1000.0,
					Text:  rec.Text,
				})
			}
		}
		json.NewEncoder(w).Encode(lines)
	}
}
