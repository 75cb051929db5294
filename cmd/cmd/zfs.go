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
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Zeal8bit/zdisk/internal/zealfs"
	ioutil "github.com/Zeal8bit/zdisk/pkg/util/io"
	fsutil "github.com/Zeal8bit/zdisk/pkg/util/os"

	"github.com/Zeal8bit/zdisk/pkg/util/format"
)

// DefineZfsCommand exposes spec.md §4.D's ZealFS v2 engine as a set of
// one-shot file operations against a disk+slot pair: each subcommand opens
// its target fresh rather than holding a session across invocations.
func DefineZfsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "zfs",
		Short: "Operate on a ZealFS v2 partition",
	}
	root.PersistentFlags().Int("slot", 0, "partition slot (must be 0 for MBR-less disks)")

	root.AddCommand(&cobra.Command{
		Use:          "format <disk> <slot>",
		Short:        "Format a raw region as a fresh ZealFS v2 filesystem",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runZfsFormat,
	})
	root.AddCommand(&cobra.Command{
		Use:          "ls <disk> <path>",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runZfsLs,
	})
	root.AddCommand(&cobra.Command{
		Use:          "cat <disk> <path>",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runZfsCat,
	})
	root.AddCommand(&cobra.Command{
		Use:          "mkdir <disk> <path>",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runZfsMkdir,
	})
	root.AddCommand(&cobra.Command{
		Use:          "rm <disk> <path>",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runZfsRm,
	})
	root.AddCommand(&cobra.Command{
		Use:          "rmdir <disk> <path>",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runZfsRmdir,
	})
	root.AddCommand(&cobra.Command{
		Use:          "put <disk> <local-file> <zfs-path>",
		Short:        "Copy a local file into the filesystem",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE:         runZfsPut,
	})
	root.AddCommand(&cobra.Command{
		Use:          "get <disk> <zfs-path> <local-file>",
		Short:        "Copy a file out of the filesystem",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE:         runZfsGet,
	})
	root.AddCommand(&cobra.Command{
		Use:          "df <disk> <slot>",
		Short:        "Report free and total space",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runZfsDf,
	})

	return root
}

func slotArg(cmd *cobra.Command) int {
	slot, _ := cmd.Flags().GetInt("slot")
	return slot
}

func runZfsFormat(cmd *cobra.Command, args []string) error {
	d, err := loadDisk(args[0])
	if err != nil {
		return err
	}
	slot, err := parseSlot(args[1])
	if err != nil {
		return err
	}

	entries := d.StagedEntries()
	var partitionBytes int64
	if d.HasMBR {
		if slot < 0 || slot >= len(entries) || !entries[slot].Active() {
			return fmt.Errorf("slot %d is not active on %s", slot, args[0])
		}
		partitionBytes = int64(entries[slot].SizeSectors) * 512
	} else {
		partitionBytes = d.SizeBytes
	}

	h, _, err := openSession(args[0], slot)
	if err != nil {
		return err
	}
	defer h.Close()

	buf := make([]byte, 3*zealfs.PageSizeFor(partitionBytes))
	if err := zealfs.Format(buf, partitionBytes); err != nil {
		return err
	}
	offset, err := partitionOffset(d, slot)
	if err != nil {
		return err
	}
	return h.WriteFull(buf, offset)
}

func runZfsLs(cmd *cobra.Command, args []string) error {
	h, s, err := openSession(args[0], slotArg(cmd))
	if err != nil {
		return err
	}
	defer h.Close()

	dh, err := s.Opendir(args[1])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSIZE")
	for {
		entries, err := s.Readdir(dh, 64)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			kind := "file"
			if e.IsDir() {
				kind = "dir"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\n", e.NameString(), kind, e.Size)
		}
	}
	return w.Flush()
}

func runZfsCat(cmd *cobra.Command, args []string) error {
	h, s, err := openSession(args[0], slotArg(cmd))
	if err != nil {
		return err
	}
	defer h.Close()

	fh, err := s.Open(args[1])
	if err != nil {
		return err
	}

	buf := make([]byte, 64*1024)
	var offset int64
	for {
		n, err := s.Read(fh, buf, offset)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runZfsMkdir(cmd *cobra.Command, args []string) error {
	h, s, err := openSession(args[0], slotArg(cmd))
	if err != nil {
		return err
	}
	defer h.Close()
	return s.Mkdir(args[1])
}

func runZfsRm(cmd *cobra.Command, args []string) error {
	h, s, err := openSession(args[0], slotArg(cmd))
	if err != nil {
		return err
	}
	defer h.Close()
	return s.Unlink(args[1])
}

func runZfsRmdir(cmd *cobra.Command, args []string) error {
	h, s, err := openSession(args[0], slotArg(cmd))
	if err != nil {
		return err
	}
	defer h.Close()
	return s.Rmdir(args[1])
}

func runZfsPut(cmd *cobra.Command, args []string) error {
	h, s, err := openSession(args[0], slotArg(cmd))
	if err != nil {
		return err
	}
	defer h.Close()

	fh, err := s.Create(args[2])
	if err != nil {
		return err
	}

	n, err := fsutil.CopyFile(&sessionWriter{s: s, h: fh}, args[1])
	if err != nil {
		return err
	}
	log.Infof("wrote %d bytes to %s", n, args[2])
	return s.Flush(fh)
}

func runZfsGet(cmd *cobra.Command, args []string) error {
	h, s, err := openSession(args[0], slotArg(cmd))
	if err != nil {
		return err
	}
	defer h.Close()

	fh, err := s.Open(args[1])
	if err != nil {
		return err
	}

	if dir := filepath.Dir(args[2]); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := ioutil.CopyFile(args[2], &sessionReader{s: s, h: fh}); err != nil {
		return err
	}
	log.Infof("wrote %s", args[2])
	return nil
}

func runZfsDf(cmd *cobra.Command, args []string) error {
	slot, err := parseSlot(args[1])
	if err != nil {
		return err
	}
	h, s, err := openSession(args[0], slot)
	if err != nil {
		return err
	}
	defer h.Close()

	free, err := s.FreeSpace()
	if err != nil {
		return err
	}
	total, err := s.TotalSpace()
	if err != nil {
		return err
	}
	fmt.Printf("free=%s total=%s used=%s\n", format.FormatBytes(free), format.FormatBytes(total), format.FormatBytes(total-free))
	return nil
}

func parseSlot(s string) (int, error) {
	var slot int
	if _, err := fmt.Sscanf(s, "%d", &slot); err != nil {
		return 0, fmt.Errorf("invalid slot %q: %w", s, err)
	}
	return slot, nil
}

// sessionWriter adapts zealfs.Session.Write to io.Writer for use with
// fsutil.CopyFile, which only knows how to stream into an io.Writer.
type sessionWriter struct {
	s      *zealfs.Session
	h      *zealfs.Handle
	offset int64
}

func (w *sessionWriter) Write(p []byte) (int, error) {
	n, err := w.s.Write(w.h, p, w.offset)
	w.offset += int64(n)
	return n, err
}

// sessionReader adapts zealfs.Session.Read to io.Reader for use with
// io.Copy on the way out to a local file.
type sessionReader struct {
	s      *zealfs.Session
	h      *zealfs.Handle
	offset int64
}

func (r *sessionReader) Read(p []byte) (int, error) {
	n, err := r.s.Read(r.h, p, r.offset)
	r.offset += int64(n)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}
