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

package config

import (
	"github.com/spf13/cobra"

	pkgconfig "github.com/gpspod/go-gpspod/pkg/config"
)

const (
	ForceOptionName = "force"
)

// NewCommand creates the config command with its subcommands
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(NewPersistCommand())
	return cmd
}

// NewPersistCommand creates a command that writes the current
// configuration to the config file
func NewPersistCommand() *cobra.Command {
	var force bool
	cfg := pkgconfig.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "persist",
		Short: "Write the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Persist(force)
		},
	}
	cmd.Flags().BoolVar(&force, ForceOptionName, false, "Overwrite an existing config file")
	return cmd
}
