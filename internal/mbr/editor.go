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
package mbr

import (
	"io"

	"github.com/Zeal8bit/zdisk/internal/logger"
	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// log is silent until the CLI calls SetLogger with its shared logger.
var log = logger.New(io.Discard, logger.ErrorLevel+1)

// SetLogger replaces the package's logger, letting the caller route
// partition-editor events wherever its own progress reporting goes.
func SetLogger(l *logger.Logger) { log = l }

// FormatFunc formats a freshly allocated partition scratch buffer of
// partitionBytes in size. The editor calls it with the ZealFS engine's
// Format so that mbr never needs to import the filesystem package; the
// engine is the one that knows page sizes and bitmap layout.
type FormatFunc func(buf []byte, partitionBytes int64) error

// Writer is the subset of blockio.Handle the editor needs to commit.
type Writer interface {
	WriteFull(buf []byte, offset int64) error
}

// Editor holds a disk's committed MBR alongside a staged, independently
// mutable copy, per spec.md §3's "Staged" concept. It is embedded inside
// registry.Disk; it never touches the network or filesystem itself -
// that's Commit's job, driven by the caller's blockio.Handle.
type Editor struct {
	HasMBR      bool
	DiskSectors uint32

	committedMBR     [Size]byte
	committedEntries [MaxSlots]Entry

	stagedMBR     [Size]byte
	stagedEntries [MaxSlots]Entry
	stagedBuffers [MaxSlots][]byte

	hasStagedChanges bool
	freePartIdx      int
}

// NewEditor parses mbrSector (the disk's committed sector 0) and seeds
// the staged view as a byte-for-byte copy of it, per spec.md §4.C.
func NewEditor(mbrSector [Size]byte, hasMBR bool, diskSectors uint32) *Editor {
	e := &Editor{
		HasMBR:       hasMBR,
		DiskSectors:  diskSectors,
		committedMBR: mbrSector,
		stagedMBR:    mbrSector,
	}
	if hasMBR {
		e.committedEntries = ParseEntries(mbrSector[:])
		e.stagedEntries = e.committedEntries
	}
	e.recomputeFreeSlot()
	return e
}

// HasStagedChanges reports whether the staged view differs from the
// committed one.
func (e *Editor) HasStagedChanges() bool { return e.hasStagedChanges }

// FreePartIdx returns the first inactive staged slot, or NoFreeSlot.
func (e *Editor) FreePartIdx() int { return e.freePartIdx }

// StagedEntries returns a copy of the staged partition table.
func (e *Editor) StagedEntries() [MaxSlots]Entry { return e.stagedEntries }

// CommittedEntries returns a copy of the committed partition table.
func (e *Editor) CommittedEntries() [MaxSlots]Entry { return e.committedEntries }

func (e *Editor) recomputeFreeSlot() {
	// An MBR-less disk only ever has slot 0 usable, even if the editor
	// considers other slots "inactive". spec.md §9 flags this as a
	// corner case to preserve rather than generalise away.
	if !e.HasMBR {
		if !e.stagedEntries[0].Active() {
			e.freePartIdx = 0
		} else {
			e.freePartIdx = NoFreeSlot
		}
		return
	}

	for i, ent := range e.stagedEntries {
		if !ent.Active() {
			e.freePartIdx = i
			return
		}
	}
	e.freePartIdx = NoFreeSlot
}

// FreeGap returns the largest free run of LBAs in the staged table.
func (e *Editor) FreeGap() Gap {
	return LargestFreeGap(e.stagedEntries, e.HasMBR, e.DiskSectors)
}

// AllocatePartition claims the next free slot at [lba, lba+sectors),
// marks it active with type 0x5A, formats a three-ZealFS-page scratch
// buffer for it via format, and stages the change.
func (e *Editor) AllocatePartition(lba, sectors uint32, pageBytes int, format FormatFunc) error {
	slot := e.freePartIdx
	if slot == NoFreeSlot {
		return zerr.New(zerr.InvalidDisk, "allocate_partition", nil)
	}
	if !e.HasMBR && slot != 0 {
		return zerr.New(zerr.InvalidDisk, "allocate_partition", nil)
	}

	buf := make([]byte, 3*pageBytes)
	if err := format(buf, int64(sectors)*SectorSizeBytes); err != nil {
		return err
	}

	e.stagedEntries[slot] = Entry{
		BootFlag:    0,
		Type:        ZealPartitionType,
		StartLBA:    lba,
		SizeSectors: sectors,
	}
	EncodeEntry(e.stagedMBR[:], slot, e.stagedEntries[slot])
	e.stagedBuffers[slot] = buf

	e.hasStagedChanges = true
	e.recomputeFreeSlot()
	log.Debugf("staged partition alloc: slot=%d lba=%d sectors=%d", slot, lba, sectors)
	return nil
}

// FormatPartition re-runs format over slot's scratch buffer, leaving its
// LBA and size untouched. The caller must ensure slot is active first:
// per spec.md §9 open question 3, this call itself does not check, since
// the original unconditionally re-types the slot to 0x5A even when it
// wasn't active.
func (e *Editor) FormatPartition(slot int, pageBytes int, format FormatFunc) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	ent := e.stagedEntries[slot]
	ent.Type = ZealPartitionType

	buf := make([]byte, 3*pageBytes)
	if err := format(buf, int64(ent.SizeSectors)*SectorSizeBytes); err != nil {
		return err
	}

	e.stagedEntries[slot] = ent
	EncodeEntry(e.stagedMBR[:], slot, ent)
	e.stagedBuffers[slot] = buf

	e.hasStagedChanges = true
	log.Debugf("staged partition format: slot=%d", slot)
	return nil
}

// DeletePartition frees slot's scratch buffer (if any) and zeroes its
// staged entry.
func (e *Editor) DeletePartition(slot int) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	e.stagedBuffers[slot] = nil
	e.stagedEntries[slot] = Entry{}
	EncodeEntry(e.stagedMBR[:], slot, Entry{})

	e.hasStagedChanges = true
	e.recomputeFreeSlot()
	log.Debugf("staged partition delete: slot=%d", slot)
	return nil
}

// Revert discards every staged change, freeing scratch buffers and
// copying the committed MBR and table back over the staged ones.
func (e *Editor) Revert() {
	e.stagedMBR = e.committedMBR
	e.stagedEntries = e.committedEntries
	for i := range e.stagedBuffers {
		e.stagedBuffers[i] = nil
	}
	e.hasStagedChanges = false
	e.recomputeFreeSlot()
	log.Info("reverted staged partition changes")
}

// Commit writes the staged MBR (if this disk carries one) and every
// slot's scratch buffer through w, in that order, then promotes staged
// state to committed. Per spec.md §4.C step 5, a failure partway through
// leaves the staged view untouched. The caller may already have pushed
// some bytes to disk, but no in-memory rollback is attempted.
func (e *Editor) Commit(w Writer) error {
	if e.HasMBR {
		if err := w.WriteFull(e.stagedMBR[:], 0); err != nil {
			return zerr.New(zerr.IoFailure, "commit", err)
		}
	}

	for slot, buf := range e.stagedBuffers {
		if buf == nil {
			continue
		}
		offset := int64(e.stagedEntries[slot].StartLBA) * SectorSizeBytes
		if err := w.WriteFull(buf, offset); err != nil {
			return zerr.New(zerr.IoFailure, "commit", err)
		}
	}

	e.applyChanges()
	log.Info("committed staged partition table")
	return nil
}

func (e *Editor) applyChanges() {
	e.committedMBR = e.stagedMBR
	e.committedEntries = e.stagedEntries
	for i := range e.stagedBuffers {
		e.stagedBuffers[i] = nil
	}
	e.hasStagedChanges = false
}

// CreateMBR stamps a blank staged MBR with just the boot signature and
// commits it immediately, per spec.md §4.C. Existing parsed partitions
// are reset since a freshly MBR'd disk has none.
func (e *Editor) CreateMBR(w Writer) error {
	var blank [Size]byte
	SetSignature(blank[:])

	e.stagedMBR = blank
	e.stagedEntries = [MaxSlots]Entry{}
	e.HasMBR = true

	if err := w.WriteFull(e.stagedMBR[:], 0); err != nil {
		return zerr.New(zerr.IoFailure, "create_mbr", err)
	}
	e.applyChanges()
	e.recomputeFreeSlot()
	log.Info("created blank MBR")
	return nil
}

// StagedBuffer returns the scratch buffer attached to slot, if any.
func (e *Editor) StagedBuffer(slot int) []byte {
	if slot < 0 || slot >= MaxSlots {
		return nil
	}
	return e.stagedBuffers[slot]
}
