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

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gpspod/go-gpspod/cmd/api"
	"github.com/gpspod/go-gpspod/cmd/capture"
	"github.com/gpspod/go-gpspod/cmd/completion"
	configcmd "github.com/gpspod/go-gpspod/cmd/config"
	"github.com/gpspod/go-gpspod/cmd/dump"
	"github.com/gpspod/go-gpspod/cmd/info"
	"github.com/gpspod/go-gpspod/cmd/internallog"
	"github.com/gpspod/go-gpspod/cmd/reset"
	"github.com/gpspod/go-gpspod/cmd/serve"
	"github.com/gpspod/go-gpspod/cmd/settime"
	"github.com/gpspod/go-gpspod/cmd/settings"
	"github.com/gpspod/go-gpspod/cmd/sgee"
	"github.com/gpspod/go-gpspod/cmd/status"
	"github.com/gpspod/go-gpspod/cmd/tracks"
	pkgconfig "github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/log"
)

const (
	LogLevelOptionName = "log-level"
)

func NewRootCommand(out io.Writer) *cobra.Command {
	var logLevel string
	cfg := pkgconfig.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "go-gpspod",
		Short: "Tool to work with GPS track pod devices",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			log.Init(cmd.ErrOrStderr(), cfg.LogLevel)
		},
	}
	cmd.SetOut(out)
	cmd.AddCommand(configcmd.NewCommand())
	cmd.AddCommand(info.NewCommand())
	cmd.AddCommand(status.NewCommand())
	cmd.AddCommand(tracks.NewCommand())
	cmd.AddCommand(settime.NewCommand())
	cmd.AddCommand(settings.NewCommand())
	cmd.AddCommand(sgee.NewCommand())
	cmd.AddCommand(internallog.NewCommand())
	cmd.AddCommand(reset.NewCommand())
	cmd.AddCommand(dump.NewCommand())
	cmd.AddCommand(serve.NewCommand())
	cmd.AddCommand(api.NewCommand())
	cmd.AddCommand(capture.NewCommand())
	cmd.AddCommand(completion.NewCommand())
	cmd.PersistentFlags().StringVar(&logLevel, LogLevelOptionName, "", fmt.Sprintf("Log level. %s", log.HelpLevels))
	return cmd
}
