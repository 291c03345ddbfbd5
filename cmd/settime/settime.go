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

package settime

import (
	"time"

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
)

const (
	TimeOptionName = "time"
)

// NewCommand creates a command that sets the device clock
func NewCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	var value string
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "settime",
		Short: "Set the device clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := time.Now()
			if value != "" {
				parsed, err := time.Parse(time.RFC3339, value)
				if err != nil {
					return err
				}
				t = parsed
			}
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			return pod.SetTime(t)
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	cmd.Flags().StringVar(&value, TimeOptionName, "", "Clock value, RFC3339. Defaults to the current time")
	return cmd
}
