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
	"os"

	"github.com/Zeal8bit/zdisk/internal/blockio"
	"github.com/Zeal8bit/zdisk/internal/logger"
	"github.com/Zeal8bit/zdisk/internal/mbr"
	"github.com/Zeal8bit/zdisk/internal/registry"
	"github.com/Zeal8bit/zdisk/internal/zealfs"
	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// log is shared by every subcommand for progress reporting, and also
// handed to the domain packages so their allocation/commit paths log
// through the same sink.
var log = logger.New(os.Stdout, logger.InfoLevel)

func init() {
	mbr.SetLogger(log)
	registry.SetLogger(log)
	zealfs.SetLogger(log)
}

// loadDisk opens path as a registry.Disk, using the same MBR-parsing
// path the registry's enumeration step uses, so every subcommand sees
// the disk exactly as list/mbr would.
func loadDisk(path string) (*registry.Disk, error) {
	r := registry.New()
	return r.LoadImage(registry.NormalizeVolumePath(path))
}

// partitionOffset resolves slot on disk to the byte offset its ZealFS
// session should be opened at, per spec.md §3's MBR-less whole-disk rule.
func partitionOffset(d *registry.Disk, slot int) (int64, error) {
	if !d.HasMBR {
		if slot != 0 || !d.ZealAtZero {
			return 0, zerr.New(zerr.InvalidDisk, "partition", nil)
		}
		return 0, nil
	}
	if slot < 0 || slot >= mbr.MaxSlots {
		return 0, zerr.New(zerr.InvalidDisk, "partition", nil)
	}
	entries := d.StagedEntries()
	e := entries[slot]
	if !e.Active() {
		return 0, zerr.New(zerr.NotFound, "partition", nil)
	}
	return int64(e.StartLBA) * mbr.SectorSizeBytes, nil
}

// openSession opens path read-write and mounts a ZealFS session against
// partition slot, returning both so the caller can close the handle once
// done.
func openSession(path string, slot int) (*blockio.Handle, *zealfs.Session, error) {
	d, err := loadDisk(path)
	if err != nil {
		return nil, nil, err
	}
	offset, err := partitionOffset(d, slot)
	if err != nil {
		return nil, nil, err
	}

	h, err := blockio.Open(path, true)
	if err != nil {
		return nil, nil, err
	}
	provider := zealfs.NewPartitionProvider(h, offset)
	return h, zealfs.NewSession(provider), nil
}

// ExitCode maps a zerr.Kind to the process exit code spec.md §6 assigns:
// 1 on a privilege failure, 0 otherwise (cobra reports every other error
// as a message on stderr, exit 0 being for "closed gracefully" only when
// there was no error at all, see cmd/main.go).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if k, ok := zerr.Of(err); ok && (k == zerr.NotAdmin || k == zerr.NotRoot) {
		return 1
	}
	return 0
}
