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

package internallog

import (
	"fmt"

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/pmem"
)

// NewCommand creates a command that prints the internal diagnostic log
func NewCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "internallog",
		Short: "Show the internal diagnostic log of the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			img, closer, err := opts.OpenImage(cfg)
			if err != nil {
				return err
			}
			defer closer()
			block, err := podcmd.LoadDebugLogBlock(img)
			if err != nil {
				return err
			}
			end := pmem.FileOffset + int(block.Header.Free)
			for _, sub := range block.Subs {
				dlog := pmem.NewDebugLog(img, sub, end)
				if err := dlog.LoadEntries(); err != nil {
					return err
				}
				for _, line := range dlog.Records {
					fmt.Fprintln(cmd.OutOrStdout(), line.String())
				}
			}
			return nil
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}
