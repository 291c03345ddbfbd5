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

package settings

import (
	"fmt"
	"io/ioutil"

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/message"
	"github.com/gpspod/go-gpspod/pkg/pmem"
)

const (
	IntervalOptionName  = "interval"
	AutolapOptionName   = "autolap"
	AutostartOptionName = "autostart"
	AutosleepOptionName = "autosleep"
)

// NewCommand creates the settings command with its subcommands
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change device settings",
	}
	cmd.AddCommand(NewShowCommand())
	cmd.AddCommand(NewWriteCommand())
	cmd.AddCommand(NewLogCommand())
	return cmd
}

// NewShowCommand creates a command that dumps the personal settings blob
func NewShowCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Dump the personal settings blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.FsPath != "" {
				img, closer, err := opts.OpenImage(cfg)
				if err != nil {
					return err
				}
				defer closer()
				blob, err := img.Slice(pmem.SettingsOffset, message.SettingsSize)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "% X\n", blob)
				return nil
			}
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			settings, err := pod.Settings()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "% X\n", settings[:])
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}

// NewWriteCommand creates a command that writes a personal settings blob
// back to the device
func NewWriteCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "write <file>",
		Short: "Write a personal settings blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := ioutil.ReadFile(args[0])
			if err != nil {
				return err
			}
			if len(data) != message.SettingsSize {
				return fmt.Errorf("settings blob must be %d bytes, got %d", message.SettingsSize, len(data))
			}
			var blob [message.SettingsSize]uint8
			copy(blob[:], data)
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			return pod.WriteSettings(blob)
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}

// NewLogCommand creates a command that writes the logging parameters
func NewLogCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	var (
		interval  uint16
		autolap   uint16
		autostart uint8
		autosleep uint8
	)
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Write the logging parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			settings := message.LogSettings{
				Interval:  interval,
				Autolap:   autolap,
				Autostart: autostart,
				Autosleep: autosleep,
			}
			if err := pod.WriteLogSettings(settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote log settings: %s\n", settings.String())
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	cmd.Flags().Uint16Var(&interval, IntervalOptionName, 1, "Sample interval in seconds")
	cmd.Flags().Uint16Var(&autolap, AutolapOptionName, 0, "Automatic lap distance in meters, 0 disables")
	cmd.Flags().Uint8Var(&autostart, AutostartOptionName, 0, "Start logging on movement")
	cmd.Flags().Uint8Var(&autosleep, AutosleepOptionName, 0, "Minutes of no movement before sleep, 0 disables")
	return cmd
}
