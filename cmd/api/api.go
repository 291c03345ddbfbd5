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

package api

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gpspod/go-gpspod/pkg/command"
	"github.com/gpspod/go-gpspod/pkg/config"
)

const (
	TimeOptionName = "time"
)

// NewCommand creates the api command with its subcommands, thin clients
// of a running API server
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Query a running API server",
	}
	cmd.AddCommand(NewInfoCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewTracksCommand())
	cmd.AddCommand(NewTrackGpxCommand())
	cmd.AddCommand(NewSetTimeCommand())
	cmd.AddCommand(NewLogCommand())
	return cmd
}

// NewInfoCommand creates a command that fetches the device identity
func NewInfoCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	return &cobra.Command{
		Use:   "info",
		Short: "Fetch the device identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := command.NewApiClient(cfg).Info()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model: %s\nSerial: %s\nFirmware: %s\nHardware: %s\nBSL: %s\n",
				info.Model, info.Serial, info.FWVersion, info.HWVersion, info.BSLVersion)
			return nil
		},
	}
}

// NewStatusCommand creates a command that fetches the charge level
func NewStatusCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch the battery charge level",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := command.NewApiClient(cfg).Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Charge: %d%%\n", status.Charge)
			return nil
		},
	}
}

// NewTracksCommand creates a command that lists the indexed tracks
func NewTracksCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	return &cobra.Command{
		Use:   "tracks",
		Short: "List the tracks on the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracks, err := command.NewApiClient(cfg).Tracks()
			if err != nil {
				return err
			}
			for _, t := range tracks {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %s, %d samples, %d m, %.1f s\n",
					t.Index, t.Start, t.Samples, t.DistanceM, t.Duration)
			}
			return nil
		},
	}
}

// NewTrackGpxCommand creates a command that fetches one track as GPX
func NewTrackGpxCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	return &cobra.Command{
		Use:   "track-gpx <index>",
		Short: "Fetch one track as GPX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			gpx, err := command.NewApiClient(cfg).TrackGpx(index)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), gpx)
			return nil
		},
	}
}

// NewSetTimeCommand creates a command that sets the device clock through
// the server
func NewSetTimeCommand() *cobra.Command {
	var value string
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "settime",
		Short: "Set the device clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).SetTime(value)
		},
	}
	cmd.Flags().StringVar(&value, TimeOptionName, "", "Clock value, RFC3339. Defaults to the server's current time")
	return cmd
}

// NewLogCommand creates a command that fetches the internal diagnostic log
func NewLogCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	return &cobra.Command{
		Use:   "log",
		Short: "Fetch the internal diagnostic log",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := command.NewApiClient(cfg).InternalLog()
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintf(cmd.OutOrStdout(), "%10.3f %s\n", line.TimeS, line.Text)
			}
			return nil
		},
	}
}
