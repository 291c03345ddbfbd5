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

package capture

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/spf13/cobra"

	"github.com/gpspod/go-gpspod/pkg/capture"
	"github.com/gpspod/go-gpspod/pkg/layers"
	"github.com/gpspod/go-gpspod/pkg/log"
	"github.com/gpspod/go-gpspod/pkg/message"
	"github.com/gpspod/go-gpspod/pkg/pmem"
)

// NewCommand creates the capture command with its subcommands
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Work with recorded USB exchanges",
	}
	cmd.AddCommand(NewViewCommand())
	cmd.AddCommand(NewReconstructCommand())
	return cmd
}

// NewViewCommand creates a command that decodes and prints a recording
func NewViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view <file>",
		Short: "Decode and print a recorded exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := capture.LoadAny(args[0])
			if err != nil {
				return err
			}
			return viewRecording(cmd.OutOrStdout(), rec)
		},
	}
}

func viewRecording(out io.Writer, rec *capture.Recording) error {
	feeds := map[bool]*layers.PacketFeed{
		false: layers.NewPacketFeed(),
		true:  layers.NewPacketFeed(),
	}
	for _, p := range rec.Combined() {
		direction := ">"
		if p.Incoming {
			direction = "<"
		}
		packet, err := layers.DecodePacket(p.Data)
		if err != nil {
			log.Warning("Undecodable packet at %.3f: %v", p.Time, err)
			continue
		}
		data := feeds[p.Incoming].Feed(packet)
		if data == nil {
			continue
		}
		msg, header, err := message.Decode(data)
		if err != nil {
			log.Warning("Undecodable message at %.3f: %v", p.Time, err)
			continue
		}
		fmt.Fprintf(out, "%.3f %s %s %T\n", p.Time, direction, header.String(), msg)
	}
	return nil
}

// NewReconstructCommand creates a command that rebuilds a filesystem image
// from the block transfers in a recording
func NewReconstructCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconstruct <recording> <out>",
		Short: "Rebuild a filesystem image from a recorded exchange",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := capture.LoadAny(args[0])
			if err != nil {
				return err
			}
			fs, covered := capture.ReconstructFilesystem(rec, pmem.FilesystemSize)
			n := 0
			for _, c := range covered {
				if c {
					n++
				}
			}
			if err := ioutil.WriteFile(args[1], fs, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s, %d of %d blocks seen\n", args[1], n, len(covered))
			return nil
		},
	}
}
