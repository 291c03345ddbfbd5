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

package sgee

import (
	"fmt"
	"io/ioutil"

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
)

// NewCommand creates the sgee command with its subcommands
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sgee",
		Short: "Manage the GPS ephemeris data",
	}
	cmd.AddCommand(NewDateCommand())
	cmd.AddCommand(NewWriteCommand())
	return cmd
}

// NewDateCommand creates a command that prints the validity start date of
// the ephemeris data on the device
func NewDateCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "date",
		Short: "Show the ephemeris validity start date",
		RunE: func(cmd *cobra.Command, args []string) error {
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			date, err := pod.SGEEDate()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), date.String())
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}

// NewWriteCommand creates a command that uploads an ephemeris file
func NewWriteCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "write <file>",
		Short: "Upload an ephemeris file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := ioutil.ReadFile(args[0])
			if err != nil {
				return err
			}
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			if err := pod.WriteSGEE(data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes of ephemeris data\n", len(data))
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}
