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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Zeal8bit/zdisk/internal/blockio"
	"github.com/Zeal8bit/zdisk/internal/mbr"
	"github.com/Zeal8bit/zdisk/internal/registry"
	"github.com/Zeal8bit/zdisk/internal/zealfs"
	"github.com/Zeal8bit/zdisk/pkg/util/format"
)

// DefineMBRCommand exposes spec.md §4.C's staged partition editor. Every
// subcommand here loads the disk, stages exactly one change, and commits
// it immediately unless --stage-only is given, there is no long-lived
// process to hold a staged view open across invocations, so "staging"
// without committing only makes sense as a dry run.
func DefineMBRCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mbr",
		Short: "Inspect and edit a disk's MBR partition table",
	}

	root.AddCommand(&cobra.Command{
		Use:          "show <disk>",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runMBRShow,
	})

	root.AddCommand(&cobra.Command{
		Use:          "create <disk>",
		Short:        "Stamp a blank MBR onto a disk with none",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runMBRCreate,
	})

	alloc := &cobra.Command{
		Use:          "alloc <disk> <lba> <sectors>",
		Short:        "Allocate a ZealFS v2 partition at lba, sectors long",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE:         runMBRAlloc,
	}
	alloc.Flags().Bool("stage-only", false, "stage the change but don't commit it")
	root.AddCommand(alloc)

	allocFree := &cobra.Command{
		Use:          "alloc-largest-free <disk>",
		Short:        "Allocate a ZealFS v2 partition in the largest free gap",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runMBRAllocLargestFree,
	}
	allocFree.Flags().Int("align", mbr.SectorSizeBytes, "alignment in bytes (512 or 1048576)")
	allocFree.Flags().Bool("stage-only", false, "stage the change but don't commit it")
	root.AddCommand(allocFree)

	format := &cobra.Command{
		Use:          "format <disk> <slot>",
		Short:        "Re-format an already-active partition slot",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runMBRFormat,
	}
	format.Flags().Bool("stage-only", false, "stage the change but don't commit it")
	root.AddCommand(format)

	del := &cobra.Command{
		Use:          "delete <disk> <slot>",
		Short:        "Delete a partition slot",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runMBRDelete,
	}
	del.Flags().Bool("stage-only", false, "stage the change but don't commit it")
	root.AddCommand(del)

	return root
}

func runMBRShow(cmd *cobra.Command, args []string) error {
	d, err := loadDisk(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("disk: %s (%s), has_mbr=%v\n", d.Path, format.FormatBytes(d.SizeBytes), d.HasMBR)
	if !d.HasMBR {
		fmt.Printf("  (no MBR; zealfs-at-lba0=%v)\n", d.ZealAtZero)
		return nil
	}
	for slot, e := range d.StagedEntries() {
		if !e.Active() {
			continue
		}
		fmt.Printf("  slot %d: type=0x%02X start_lba=%d sectors=%d\n", slot, e.Type, e.StartLBA, e.SizeSectors)
	}
	return nil
}

func runMBRCreate(cmd *cobra.Command, args []string) error {
	d, err := loadDisk(args[0])
	if err != nil {
		return err
	}
	h, err := blockio.Open(args[0], true)
	if err != nil {
		return err
	}
	defer h.Close()
	return d.CreateMBR(h)
}

func runMBRAlloc(cmd *cobra.Command, args []string) error {
	lba, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid lba %q: %w", args[1], err)
	}
	sectors, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid sector count %q: %w", args[2], err)
	}
	return allocateAndMaybeCommit(cmd, args[0], uint32(lba), uint32(sectors))
}

func runMBRAllocLargestFree(cmd *cobra.Command, args []string) error {
	d, err := loadDisk(args[0])
	if err != nil {
		return err
	}
	align, _ := cmd.Flags().GetInt("align")
	gap := d.FreeGap()
	lba, sectors := mbr.MaxPartitionSize(gap, uint32(align))
	if sectors == 0 {
		return fmt.Errorf("no free space available on %s", args[0])
	}
	return allocateAndMaybeCommit(cmd, args[0], lba, sectors)
}

func allocateAndMaybeCommit(cmd *cobra.Command, path string, lba, sectors uint32) error {
	d, err := loadDisk(path)
	if err != nil {
		return err
	}

	slot := d.FreePartIdx()
	pageBytes := zealfs.PageSizeFor(int64(sectors) * mbr.SectorSizeBytes)
	if err := d.AllocatePartition(lba, sectors, pageBytes, zealfs.Format); err != nil {
		return err
	}
	log.Infof("staged partition at lba=%d sectors=%d (slot %d)", lba, sectors, slot)

	return maybeCommit(cmd, path, d)
}

func runMBRFormat(cmd *cobra.Command, args []string) error {
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid slot %q: %w", args[1], err)
	}
	d, err := loadDisk(args[0])
	if err != nil {
		return err
	}
	entries := d.StagedEntries()
	if slot < 0 || slot >= mbr.MaxSlots || !entries[slot].Active() {
		return fmt.Errorf("slot %d is not active on %s", slot, args[0])
	}
	pageBytes := zealfs.PageSizeFor(int64(entries[slot].SizeSectors) * mbr.SectorSizeBytes)
	if err := d.FormatPartition(slot, pageBytes, zealfs.Format); err != nil {
		return err
	}
	return maybeCommit(cmd, args[0], d)
}

func runMBRDelete(cmd *cobra.Command, args []string) error {
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid slot %q: %w", args[1], err)
	}
	d, err := loadDisk(args[0])
	if err != nil {
		return err
	}
	if err := d.DeletePartition(slot); err != nil {
		return err
	}
	return maybeCommit(cmd, args[0], d)
}

func maybeCommit(cmd *cobra.Command, path string, d *registry.Disk) error {
	stageOnly, _ := cmd.Flags().GetBool("stage-only")
	if stageOnly {
		log.Info("staged only; re-run without --stage-only to commit")
		return nil
	}

	h, err := blockio.Open(path, true)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := d.Commit(h); err != nil {
		return err
	}
	log.Info("committed")
	return nil
}
