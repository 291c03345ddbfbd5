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

package serve

import (
	"context"
	"io/ioutil"

	"github.com/spf13/cobra"

	podcmd "github.com/gpspod/go-gpspod/pkg/cmd"
	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/pmem"
	"github.com/gpspod/go-gpspod/pkg/srv"
)

// NewCommand creates a command that runs the API server over a connected
// pod or over a filesystem dump
func NewCommand() *cobra.Command {
	opts := &podcmd.DeviceOptions{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if opts.FsPath != "" {
				data, err := ioutil.ReadFile(opts.FsPath)
				if err != nil {
					return err
				}
				return srv.NewFileApiServer(ctx, cfg, pmem.FileImage(data)).Run()
			}
			pod, closer, err := opts.OpenPod(cfg)
			if err != nil {
				return err
			}
			defer closer()
			return srv.NewApiServer(ctx, cfg, pod).Run()
		},
	}
	podcmd.AddDeviceFlags(cmd, opts)
	return cmd
}
