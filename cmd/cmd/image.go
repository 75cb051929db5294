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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zeal8bit/zdisk/internal/registry"
	"github.com/Zeal8bit/zdisk/pkg/util/format"
)

// DefineImageCommand wraps registry.CreateImage/LoadImage, spec.md
// §4.B's "image files" operations.
func DefineImageCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "image",
		Short: "Create or inspect .img disk image files",
	}

	create := &cobra.Command{
		Use:          "create <path> <size>",
		Short:        "Create a sparse disk image of the given size (e.g. 16MB, 1GB)",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runImageCreate,
	}
	create.Flags().Bool("mbr", true, "stamp a blank MBR signature into the new image")
	root.AddCommand(create)

	root.AddCommand(&cobra.Command{
		Use:          "show <path>",
		Short:        "Show summary information about an image or device",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runImageShow,
	})

	return root
}

func runImageCreate(cmd *cobra.Command, args []string) error {
	size, err := format.ParseBytes(args[1])
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[1], err)
	}
	withMBR, _ := cmd.Flags().GetBool("mbr")

	r := registry.New()
	d, err := r.CreateImage(args[0], int64(size), withMBR)
	if err != nil {
		return err
	}
	log.Infof("created %s (%s, mbr=%v)", d.Path, format.FormatBytes(d.SizeBytes), d.HasMBR)
	return nil
}

func runImageShow(cmd *cobra.Command, args []string) error {
	d, err := loadDisk(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s, mbr=%v, zealfs-at-lba0=%v\n", d.Path, format.FormatBytes(d.SizeBytes), d.HasMBR, d.ZealAtZero)
	return nil
}
