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

// Package cmd holds the shared plumbing of the subcommands: picking a
// data source (USB device, packet recording replay, filesystem dump) and
// wiring recording and the block cache around it.
package cmd

import (
	"io/ioutil"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpspod/go-gpspod/pkg/capture"
	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/device"
	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/pmem"
	"github.com/gpspod/go-gpspod/pkg/session"
	"github.com/gpspod/go-gpspod/pkg/usb"
)

const (
	FsOptionName       = "fs"
	RecordOptionName   = "record"
	PlaybackOptionName = "playback"
	NoCacheOptionName  = "no-cache"
)

// DeviceOptions are the source selection flags shared by the subcommands
// that talk to a pod or to a stand-in for one.
type DeviceOptions struct {
	FsPath       string
	RecordPath   string
	PlaybackPath string
	NoCache      bool
}

// AddDeviceFlags registers the source selection flags.
func AddDeviceFlags(cmd *cobra.Command, o *DeviceOptions) {
	cmd.Flags().StringVar(&o.FsPath, FsOptionName, "", "Decode a filesystem dump instead of talking to a device")
	cmd.Flags().StringVar(&o.RecordPath, RecordOptionName, "", "Record the USB exchange to a file")
	cmd.Flags().StringVar(&o.PlaybackPath, PlaybackOptionName, "", "Replay a recorded USB exchange instead of talking to a device")
	cmd.Flags().BoolVar(&o.NoCache, NoCacheOptionName, false, "Do not use the persistent block cache")
}

// OpenPod connects to the data source as a device: USB by default, a
// recording replay with the playback flag. The returned closer shuts the
// session and the cache down.
func (o *DeviceOptions) OpenPod(cfg *config.Config) (*device.Pod, func(), error) {
	var transport session.Transport
	if o.PlaybackPath != "" {
		rec, err := capture.LoadAny(o.PlaybackPath)
		if err != nil {
			return nil, nil, err
		}
		transport = capture.NewReplayTransport(rec)
	} else {
		transport = usb.NewTransport(cfg.Device.VendorID, cfg.Device.ProductID)
	}
	if o.RecordPath != "" {
		transport = capture.NewRecordingTransport(transport, o.RecordPath)
	}

	sess := session.New(transport)
	sess.ReadTimeout = time.Duration(cfg.Device.ReadTimeoutMs) * time.Millisecond

	pod := device.New(sess, cfg.Device)
	var cache *device.BlockCache
	if !o.NoCache && cfg.CachePath != "" {
		c, err := device.OpenBlockCache(cfg.CachePath)
		if err != nil {
			log.Warning("Block cache unavailable: %v", err)
		} else {
			cache = c
			pod.SetCache(cache)
		}
	}

	if err := pod.Open(); err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, nil, err
	}
	closer := func() {
		pod.Close()
		if cache != nil {
			cache.Close()
		}
	}
	return pod, closer, nil
}

// OpenImage opens the data source as a filesystem image: a flat dump
// when the fs flag is set, a connected pod otherwise.
func (o *DeviceOptions) OpenImage(cfg *config.Config) (pmem.Image, func(), error) {
	if o.FsPath != "" {
		data, err := ioutil.ReadFile(o.FsPath)
		if err != nil {
			return nil, nil, err
		}
		return pmem.FileImage(data), func() {}, nil
	}
	pod, closer, err := o.OpenPod(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pod, closer, nil
}

// LoadTrackBlock reads and walks the track region of an image.
func LoadTrackBlock(img pmem.Image) (*pmem.Block, error) {
	block := pmem.NewBlock(img, pmem.TrackBlockOffset)
	if err := block.LoadHeader(); err != nil {
		return nil, err
	}
	if err := block.LoadSubBlocks(); err != nil {
		return nil, err
	}
	return block, nil
}

// LoadDebugLogBlock reads and walks the internal log region of an image.
func LoadDebugLogBlock(img pmem.Image) (*pmem.Block, error) {
	block := pmem.NewBlock(img, pmem.DebugLogBlockOffset)
	if err := block.LoadHeader(); err != nil {
		return nil, err
	}
	if err := block.LoadSubBlocks(); err != nil {
		return nil, err
	}
	return block, nil
}
