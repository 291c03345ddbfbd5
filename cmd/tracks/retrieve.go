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

package tracks

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/gpx"
	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/pmem"
)

// NewRetrieveCommand creates a command that writes tracks as GPX files
func NewRetrieveCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	var (
		trackIndex   int
		recoverLast  bool
		outputDir    string
		overrideTime string
		localTime    bool
		noLapSegment bool
		noLapWpt     bool
		writePoints  bool
	)
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Write tracks as GPX files",
		RunE: func(cmd *cobra.Command, args []string) error {
			gpxOpts := gpx.DefaultOptions()
			gpxOpts.LapSplitsSegment = !noLapSegment
			gpxOpts.LapAddsWaypoint = !noLapWpt
			gpxOpts.WritePeriodic = writePoints
			gpxOpts.LocalTime = localTime
			if overrideTime != "" {
				t, err := time.Parse(time.RFC3339, overrideTime)
				if err != nil {
					return err
				}
				gpxOpts.OverrideTime = &t
			}

			img, closer, err := opts.OpenImage(cfg)
			if err != nil {
				return err
			}
			defer closer()
			block, err := podcmd.LoadTrackBlock(img)
			if err != nil {
				return err
			}

			if recoverLast {
				track, err := pmem.RecoverTrack(img, block)
				if err != nil {
					return err
				}
				return writeTrack(cmd, track, -1, outputDir, gpxOpts)
			}

			tracks := pmem.LoadTracks(img, block)
			if trackIndex >= 0 {
				if trackIndex >= len(tracks) {
					return fmt.Errorf("no track %d, the device has %d", trackIndex, len(tracks))
				}
				tracks = tracks[trackIndex : trackIndex+1]
			}
			for i, track := range tracks {
				index := i
				if trackIndex >= 0 {
					index = trackIndex
				}
				if err := track.LoadEntries(); err != nil {
					log.Warning("Track %d not fully decodable: %v", index, err)
					continue
				}
				if err := writeTrack(cmd, track, index, outputDir, gpxOpts); err != nil {
					return err
				}
			}
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	cmd.Flags().IntVar(&trackIndex, TrackOptionName, -1, "Track index to retrieve, all tracks when negative")
	cmd.Flags().BoolVar(&recoverLast, RecoverOptionName, false, "Search for log data written after the last indexed track")
	cmd.Flags().StringVar(&outputDir, OutputOptionName, ".", "Directory to write the GPX files to")
	cmd.Flags().StringVar(&overrideTime, OverrideTimeOptionName, "", "Replace the recorded start time, RFC3339")
	cmd.Flags().BoolVar(&localTime, LocalTimeOptionName, false, "Render timestamps in the local zone")
	cmd.Flags().BoolVar(&noLapSegment, NoLapSegmentOptionName, false, "Do not split segments on lap events")
	cmd.Flags().BoolVar(&noLapWpt, NoLapWptOptionName, false, "Do not add waypoints on lap events")
	cmd.Flags().BoolVar(&writePoints, WritePointsOptionName, false, "Write a point for every periodic sample instead of GPS fixes only")
	return cmd
}

func writeTrack(cmd *cobra.Command, track *pmem.Track, index int, outputDir string, opts gpx.Options) error {
	name := fmt.Sprintf("track_%02d_%s.gpx", index, track.Metadata.StartTime().Format("20060102_150405"))
	if track.Recovered {
		name = fmt.Sprintf("track_recovered_%s.gpx", track.Metadata.StartTime().Format("20060102_150405"))
	}
	path := filepath.Join(outputDir, name)
	if err := gpx.WriteFile(path, track, opts); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d points\n", path, len(track.Records))
	return nil
}
