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

// Package mbr implements the Master Boot Record partition table: parsing,
// encoding, free-gap computation with alignment, and the staged/committed
// editor that sits on top of it. It is byte-compatible with the standard
// IBM PC MBR layout (entries at 0x1BE, signature 0x55 0xAA at 510/511),
// and adds the staged-editing half spec.md §4.C asks for on top of plain
// parsing.
package mbr

import (
	"encoding/binary"
	"sort"

	"github.com/Zeal8bit/zdisk/internal/zerr"
)

const (
	// Size is the length of an MBR sector.
	Size = 512
	// EntriesOffset is where the four partition entries begin.
	EntriesOffset = 0x1BE
	// EntrySize is the length in bytes of one partition table entry.
	EntrySize = 16
	// SignatureOffset is where the 0x55 0xAA boot signature lives.
	SignatureOffset = 510
	// MaxSlots is the number of partition table entries an MBR holds.
	MaxSlots = 4
	// ZealPartitionType is the partition type byte ZealFS v2 claims.
	ZealPartitionType = 0x5A
	// NoFreeSlot is the "none" sentinel for FreePartIdx.
	NoFreeSlot = -1
)

// Entry is one 16-byte partition table record.
type Entry struct {
	BootFlag    byte
	Type        byte
	StartLBA    uint32
	SizeSectors uint32
}

// Active reports whether the entry should be treated as occupied. Per
// spec.md §3 this is a conservative OR of every field, not just the type
// byte, so partitions of a type this tool doesn't understand are still
// preserved rather than silently dropped.
func (e Entry) Active() bool {
	return e.BootFlag != 0 || e.Type != 0 || e.StartLBA != 0 || e.SizeSectors != 0
}

// End returns the first LBA past the end of the partition.
func (e Entry) End() uint32 { return e.StartLBA + e.SizeSectors }

func decodeEntry(b []byte) Entry {
	return Entry{
		BootFlag:    b[0x00],
		Type:        b[0x04],
		StartLBA:    binary.LittleEndian.Uint32(b[0x08:0x0C]),
		SizeSectors: binary.LittleEndian.Uint32(b[0x0C:0x10]),
	}
}

// encodeEntry writes e into the 16-byte slot b, canonicalising the
// ignored CHS fields to 0xFF as spec.md §3 requires.
func encodeEntry(b []byte, e Entry) {
	for i := range b {
		b[i] = 0
	}
	b[0x00] = e.BootFlag
	b[0x01], b[0x02], b[0x03] = 0xFF, 0xFF, 0xFF
	b[0x04] = e.Type
	b[0x05], b[0x06], b[0x07] = 0xFF, 0xFF, 0xFF
	binary.LittleEndian.PutUint32(b[0x08:0x0C], e.StartLBA)
	binary.LittleEndian.PutUint32(b[0x0C:0x10], e.SizeSectors)
}

// ParseEntries decodes the four partition table entries out of a raw
// 512-byte MBR sector.
func ParseEntries(sector []byte) [MaxSlots]Entry {
	var entries [MaxSlots]Entry
	for i := 0; i < MaxSlots; i++ {
		off := EntriesOffset + i*EntrySize
		entries[i] = decodeEntry(sector[off : off+EntrySize])
	}
	return entries
}

// EncodeEntry writes entries[slot] back into sector at its table offset.
func EncodeEntry(sector []byte, slot int, e Entry) {
	off := EntriesOffset + slot*EntrySize
	encodeEntry(sector[off:off+EntrySize], e)
}

// HasSignature reports whether sector carries the 0x55 0xAA boot
// signature at offset 510/511.
func HasSignature(sector []byte) bool {
	return len(sector) >= Size && sector[SignatureOffset] == 0x55 && sector[SignatureOffset+1] == 0xAA
}

// SetSignature stamps the boot signature onto sector.
func SetSignature(sector []byte) {
	sector[SignatureOffset] = 0x55
	sector[SignatureOffset+1] = 0xAA
}

// Gap is a run of unused LBAs between the reserved MBR sector (or
// partition boundaries) and the next partition, or the end of the disk.
type Gap struct {
	StartLBA uint32
	Sectors  uint32
}

// FreeGaps walks the active entries sorted by start LBA and returns
// every gap between them, per spec.md §4.C. When hasMBR is false the
// entire disk starting at LBA 0 is a single gap, since a partition is
// then allowed to cover the whole device.
func FreeGaps(entries [MaxSlots]Entry, hasMBR bool, diskSectors uint32) []Gap {
	if !hasMBR {
		return []Gap{{StartLBA: 0, Sectors: diskSectors}}
	}

	var active []Entry
	for _, e := range entries {
		if e.Active() {
			active = append(active, e)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartLBA < active[j].StartLBA })

	var gaps []Gap
	cursor := uint32(1) // sector 0 is reserved for the MBR itself
	for _, e := range active {
		if e.StartLBA > cursor {
			gaps = append(gaps, Gap{StartLBA: cursor, Sectors: e.StartLBA - cursor})
		}
		if e.End() > cursor {
			cursor = e.End()
		}
	}
	if diskSectors > cursor {
		gaps = append(gaps, Gap{StartLBA: cursor, Sectors: diskSectors - cursor})
	}
	return gaps
}

// LargestFreeGap returns the largest gap FreeGaps finds, or the zero Gap
// if the disk is completely full.
func LargestFreeGap(entries [MaxSlots]Entry, hasMBR bool, diskSectors uint32) Gap {
	var best Gap
	for _, g := range FreeGaps(entries, hasMBR, diskSectors) {
		if g.Sectors > best.Sectors {
			best = g
		}
	}
	return best
}

// MaxPartitionSize rounds a gap's starting byte offset up to alignBytes
// and returns the LBA and sector count of the usable remainder, per
// spec.md §4.C's alignment rule (512-byte or 1 MiB alignment offered by
// the editor).
func MaxPartitionSize(gap Gap, alignBytes uint32) (startLBA, sizeSectors uint32) {
	if alignBytes == 0 {
		alignBytes = SectorSizeBytes
	}
	startByte := uint64(gap.StartLBA) * SectorSizeBytes
	aligned := (startByte + uint64(alignBytes) - 1) / uint64(alignBytes) * uint64(alignBytes)
	wastedBytes := aligned - startByte
	wastedSectors := uint32(wastedBytes / SectorSizeBytes)
	if wastedSectors >= gap.Sectors {
		return gap.StartLBA, 0
	}
	return gap.StartLBA + wastedSectors, gap.Sectors - wastedSectors
}

// SectorSizeBytes is the fixed MBR sector size.
const SectorSizeBytes = 512

// validateSlot returns an error if slot is out of range.
func validateSlot(slot int) error {
	if slot < 0 || slot >= MaxSlots {
		return zerr.Errorf(zerr.InvalidDisk, "mbr", "invalid partition slot %d", slot)
	}
	return nil
}
