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

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/pmem"
)

// NewListCommand creates a command that lists the decodable tracks
func NewListCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			img, closer, err := opts.OpenImage(cfg)
			if err != nil {
				return err
			}
			defer closer()
			block, err := podcmd.LoadTrackBlock(img)
			if err != nil {
				return err
			}
			for i, t := range pmem.LoadTracks(img, block) {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %s\n", i, t.Metadata.String())
			}
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}
