// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Zeal8bit/zdisk/internal/fuse"
)

// DefineMountCommand exposes internal/fuse.Mount, a read-only FUSE view of
// a ZealFS v2 partition.
func DefineMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mount <disk> <mountpoint>",
		Short:        "Mount a ZealFS v2 partition read-only via FUSE",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runMount,
	}
	cmd.Flags().Int("slot", 0, "partition slot (must be 0 for MBR-less disks)")
	return cmd
}

func runMount(cmd *cobra.Command, args []string) error {
	slot, _ := cmd.Flags().GetInt("slot")

	h, s, err := openSession(args[0], slot)
	if err != nil {
		return err
	}
	defer h.Close()

	log.Infof("mounting %s (slot %d) at %s", args[0], slot, args[1])
	return fuse.Mount(args[1], s)
}
