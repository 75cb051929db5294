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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Zeal8bit/zdisk/internal/registry"
	"github.com/Zeal8bit/zdisk/pkg/util/format"
)

// DefineListCommand enumerates candidate devices, per spec.md §4.B's
// registry refresh. Image files made with `zdisk image create`
// aren't re-discovered here, they're addressed directly by path, the
// way every other subcommand takes a disk path argument.
func DefineListCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Short:        "List candidate disk devices",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	r := registry.New()
	if err := r.Refresh(registry.LinuxProbe{}); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSIZE\tMBR\tPARTITIONS")
	for _, d := range r.Disks {
		active := 0
		if d.HasMBR {
			for _, e := range d.StagedEntries() {
				if e.Active() {
					active++
				}
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", d.Path, format.FormatBytes(d.SizeBytes), d.HasMBR, active)
	}
	return w.Flush()
}
