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
package zealfs

import (
	"encoding/binary"

	"github.com/Zeal8bit/zdisk/internal/zerr"
)

const (
	// Magic is the header's first byte, ASCII 'Z'.
	Magic = 'Z'
	// Version is the on-disk format version this package implements.
	Version = 2

	// headerFixedSize is the length of the header's fixed fields, before
	// the variable-length bitmap: magic, version, bitmap size, free
	// pages, page-size code.
	headerFixedSize = 7

	// MaxPageSizeCode bounds the page-size field: page size = 256 << p.
	MaxPageSizeCode = 8
	// MinPageSize and MaxPageSize bound the page size spec.md §3 allows.
	MinPageSize = 256
	MaxPageSize = MinPageSize << MaxPageSizeCode
)

// pageSizeTable maps a partition size ceiling to the page size used for
// it, per spec.md §4.D.1's format table.
var pageSizeTable = []struct {
	maxBytes int64
	pageSize int
}{
	{64 * 1024, 256},
	{256 * 1024, 512},
	{1 * 1024 * 1024, 1024},
	{4 * 1024 * 1024, 2048},
	{16 * 1024 * 1024, 4096},
	{64 * 1024 * 1024, 8192},
	{256 * 1024 * 1024, 16384},
	{1024 * 1024 * 1024, 32768},
}

// PageSizeFor reports the page size Format will choose for a partition
// of partitionSizeBytes, so a caller preparing Format's scratch buffer
// (the MBR editor's AllocatePartition/FormatPartition) can size it
// correctly before calling in.
func PageSizeFor(partitionSizeBytes int64) int {
	return choosePageSize(partitionSizeBytes)
}

// choosePageSize implements the format table: partitions larger than
// every bound in pageSizeTable get the largest page size, 64 KiB.
func choosePageSize(partitionSizeBytes int64) int {
	for _, e := range pageSizeTable {
		if partitionSizeBytes <= e.maxBytes {
			return e.pageSize
		}
	}
	return MaxPageSize
}

// pageSizeCode encodes a page size in bytes as spec.md §3's `p` where
// page size = 256 << p.
func pageSizeCode(pageSizeBytes int) byte {
	code := byte(0)
	for (MinPageSize << code) < pageSizeBytes {
		code++
	}
	return code
}

// fatPages returns how many pages the FAT occupies for a given page
// size: one page when pages are 256 B, two otherwise (to hold a 64Ki
// two-byte-entry table for larger partitions).
func fatPages(pageSizeBytes int) int {
	if pageSizeBytes == MinPageSize {
		return 1
	}
	return 2
}

// header is the in-memory decoding of the fixed fields of page 0, plus
// its allocation bitmap.
type header struct {
	bitmapSize   uint16
	freePages    uint16
	pageSizeCode byte
	bitmap       []byte
}

func (h *header) pageSize() int { return MinPageSize << h.pageSizeCode }

// headerSize is the header's total on-disk footprint, rounded up to a
// 32-byte boundary so the root directory entry array that follows it
// starts entry-aligned, per spec.md §3.
func headerSize(bitmapSize int) int {
	raw := headerFixedSize + bitmapSize
	return (raw + DirEntrySize - 1) / DirEntrySize * DirEntrySize
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < headerFixedSize || buf[0] != Magic || buf[1] != Version {
		return nil, zerr.New(zerr.InvalidDisk, "mount", nil)
	}
	bitmapSize := binary.LittleEndian.Uint16(buf[2:4])
	hs := headerSize(int(bitmapSize))
	if len(buf) < hs {
		return nil, zerr.New(zerr.InvalidDisk, "mount", nil)
	}
	h := &header{
		bitmapSize:   bitmapSize,
		freePages:    binary.LittleEndian.Uint16(buf[4:6]),
		pageSizeCode: buf[6],
		bitmap:       append([]byte(nil), buf[7:7+bitmapSize]...),
	}
	return h, nil
}

func (h *header) encode(buf []byte) {
	buf[0] = Magic
	buf[1] = Version
	binary.LittleEndian.PutUint16(buf[2:4], h.bitmapSize)
	binary.LittleEndian.PutUint16(buf[4:6], h.freePages)
	buf[6] = h.pageSizeCode
	copy(buf[7:7+len(h.bitmap)], h.bitmap)
}

// bitmapSizeFor computes the bitmap length in bytes for totalPages
// pages. Per spec.md §9 open question 1, the source computes
// `size / page_size / 8`, which truncates instead of rounding up and
// under-sizes the bitmap whenever totalPages isn't a multiple of 8. We
// resolve that open question by rounding up, so every page always has a
// bitmap bit to its name; see DESIGN.md for the full writeup.
func bitmapSizeFor(totalPages int) int {
	return (totalPages + 7) / 8
}

func bitGet(bitmap []byte, page int) bool {
	idx := page / 8
	if idx >= len(bitmap) {
		return false
	}
	return bitmap[idx]&(1<<uint(page%8)) != 0
}

func bitSet(bitmap []byte, page int) {
	bitmap[page/8] |= 1 << uint(page%8)
}

func bitClear(bitmap []byte, page int) {
	bitmap[page/8] &^= 1 << uint(page%8)
}
