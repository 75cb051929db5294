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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryEncodeDecodeRoundTrip(t *testing.T) {
	var sector [Size]byte
	want := Entry{BootFlag: 0x80, Type: ZealPartitionType, StartLBA: 2048, SizeSectors: 4096}
	EncodeEntry(sector[:], 1, want)

	got := ParseEntries(sector[:])[1]
	require.Equal(t, want, got)
}

func TestEncodeEntryCanonicalisesCHSFields(t *testing.T) {
	var sector [Size]byte
	EncodeEntry(sector[:], 0, Entry{Type: ZealPartitionType, StartLBA: 1, SizeSectors: 1})

	off := EntriesOffset
	require.Equal(t, byte(0xFF), sector[off+1])
	require.Equal(t, byte(0xFF), sector[off+2])
	require.Equal(t, byte(0xFF), sector[off+3])
	require.Equal(t, byte(0xFF), sector[off+5])
	require.Equal(t, byte(0xFF), sector[off+6])
	require.Equal(t, byte(0xFF), sector[off+7])
}

func TestEntryActiveIsConservativeOR(t *testing.T) {
	require.False(t, Entry{}.Active())
	require.True(t, Entry{BootFlag: 1}.Active())
	require.True(t, Entry{Type: 1}.Active())
	require.True(t, Entry{StartLBA: 1}.Active())
	require.True(t, Entry{SizeSectors: 1}.Active())
}

func TestHasSignatureAndSetSignature(t *testing.T) {
	var sector [Size]byte
	require.False(t, HasSignature(sector[:]))
	SetSignature(sector[:])
	require.True(t, HasSignature(sector[:]))
}

func TestFreeGapsMBRLessDiskIsOneGap(t *testing.T) {
	gaps := FreeGaps([MaxSlots]Entry{}, false, 2048)
	require.Len(t, gaps, 1)
	require.Equal(t, Gap{StartLBA: 0, Sectors: 2048}, gaps[0])
}

func TestFreeGapsBetweenPartitions(t *testing.T) {
	entries := [MaxSlots]Entry{
		{Type: ZealPartitionType, StartLBA: 2048, SizeSectors: 1000},
		{Type: ZealPartitionType, StartLBA: 4096, SizeSectors: 1000},
	}
	gaps := FreeGaps(entries, true, 8192)

	require.Equal(t, []Gap{
		{StartLBA: 1, Sectors: 2047},
		{StartLBA: 3048, Sectors: 1048},
		{StartLBA: 5096, Sectors: 3096},
	}, gaps)
}

func TestLargestFreeGapPicksBiggest(t *testing.T) {
	entries := [MaxSlots]Entry{
		{Type: ZealPartitionType, StartLBA: 10, SizeSectors: 10},
	}
	gap := LargestFreeGap(entries, true, 1000)
	require.Equal(t, uint32(20), gap.StartLBA)
	require.Equal(t, uint32(980), gap.Sectors)
}

func TestLargestFreeGapFullDiskIsZero(t *testing.T) {
	entries := [MaxSlots]Entry{
		{Type: ZealPartitionType, StartLBA: 1, SizeSectors: 999},
	}
	gap := LargestFreeGap(entries, true, 1000)
	require.Equal(t, Gap{}, gap)
}

func TestMaxPartitionSizeAlignment(t *testing.T) {
	// Gap starts at LBA 1 (byte 512); 1 MiB alignment rounds up to byte
	// 1048576, i.e. LBA 2048, wasting 2047 sectors off the gap.
	gap := Gap{StartLBA: 1, Sectors: 4096}
	startLBA, sectors := MaxPartitionSize(gap, 1<<20)
	require.Equal(t, uint32(2048), startLBA)
	require.Equal(t, uint32(2049), sectors)
}

func TestMaxPartitionSizeAlignmentExceedsGap(t *testing.T) {
	gap := Gap{StartLBA: 1, Sectors: 10}
	_, sectors := MaxPartitionSize(gap, 1<<20)
	require.Equal(t, uint32(0), sectors)
}

type fakeWriter struct {
	writes map[int64][]byte
}

func (w *fakeWriter) WriteFull(buf []byte, offset int64) error {
	if w.writes == nil {
		w.writes = map[int64][]byte{}
	}
	cp := append([]byte(nil), buf...)
	w.writes[offset] = cp
	return nil
}

func noopFormat(buf []byte, partitionBytes int64) error { return nil }

func TestEditorAllocateStageCommitRoundTrip(t *testing.T) {
	var sector [Size]byte
	SetSignature(sector[:])
	e := NewEditor(sector, true, 1<<20)

	require.False(t, e.HasStagedChanges())
	require.Equal(t, 0, e.FreePartIdx())

	require.NoError(t, e.AllocatePartition(2048, 2048, 512, noopFormat))
	require.True(t, e.HasStagedChanges())
	require.True(t, e.StagedEntries()[0].Active())
	require.False(t, e.CommittedEntries()[0].Active())

	w := &fakeWriter{}
	require.NoError(t, e.Commit(w))

	require.False(t, e.HasStagedChanges())
	require.True(t, e.CommittedEntries()[0].Active())
	require.Contains(t, w.writes, int64(0))
	require.Contains(t, w.writes, int64(2048)*SectorSizeBytes)
}

func TestEditorRevertDiscardsStagedChanges(t *testing.T) {
	var sector [Size]byte
	SetSignature(sector[:])
	e := NewEditor(sector, true, 1<<20)

	require.NoError(t, e.AllocatePartition(2048, 2048, 512, noopFormat))
	require.True(t, e.HasStagedChanges())

	e.Revert()
	require.False(t, e.HasStagedChanges())
	require.False(t, e.StagedEntries()[0].Active())
	require.Nil(t, e.StagedBuffer(0))
}

func TestEditorDeletePartition(t *testing.T) {
	var sector [Size]byte
	SetSignature(sector[:])
	e := NewEditor(sector, true, 1<<20)
	require.NoError(t, e.AllocatePartition(2048, 2048, 512, noopFormat))

	require.NoError(t, e.DeletePartition(0))
	require.False(t, e.StagedEntries()[0].Active())
	require.Equal(t, 0, e.FreePartIdx())
}

func TestEditorMBRLessDiskOnlySlotZeroUsable(t *testing.T) {
	var sector [Size]byte
	e := NewEditor(sector, false, 1<<20)

	require.Equal(t, 0, e.FreePartIdx())
	require.NoError(t, e.AllocatePartition(0, 2048, 512, noopFormat))
	require.Equal(t, NoFreeSlot, e.FreePartIdx())

	err := e.AllocatePartition(2048, 2048, 512, noopFormat)
	require.Error(t, err)
}

func TestEditorCreateMBRCommitsImmediately(t *testing.T) {
	var sector [Size]byte // no signature: disk starts without an MBR
	e := NewEditor(sector, false, 1<<20)

	w := &fakeWriter{}
	require.NoError(t, e.CreateMBR(w))

	require.True(t, e.HasMBR)
	require.False(t, e.HasStagedChanges())
	require.Contains(t, w.writes, int64(0))
	require.True(t, HasSignature(w.writes[0]))
}
