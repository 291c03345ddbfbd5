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

package dump

import (
	"fmt"

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
)

// NewCommand creates a command that reads the whole device filesystem
// into a file
func NewCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Read the whole device filesystem into a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			if err := pod.Dump(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote filesystem dump to %s\n", args[0])
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}
