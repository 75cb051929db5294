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

import "github.com/Zeal8bit/zdisk/internal/zerr"

// Format prepares a fresh ZealFS v2 image in memory, per spec.md §4.D.1.
// buf must hold the header page plus the FAT at the page size Format
// chooses for partitionSizeBytes: two pages when pages are 256 B, three
// otherwise. The MBR editor always allocates three pages before calling in.
func Format(buf []byte, partitionSizeBytes int64) error {
	pageSize := choosePageSize(partitionSizeBytes)
	code := pageSizeCode(pageSize)
	fp := fatPages(pageSize)

	if len(buf) < (1+fp)*pageSize {
		return zerr.Errorf(zerr.InvalidDisk, "format", "scratch buffer too small for page size %d", pageSize)
	}

	totalPages := int(partitionSizeBytes / int64(pageSize))
	bitmapSz := bitmapSizeFor(totalPages)

	h := &header{
		bitmapSize:   uint16(bitmapSz),
		pageSizeCode: code,
		bitmap:       make([]byte, bitmapSz),
	}

	reserved := 1 + fp
	freePages := totalPages - reserved
	if freePages < 0 {
		freePages = 0
	}
	h.freePages = uint16(freePages)

	for p := 0; p < reserved; p++ {
		bitSet(h.bitmap, p)
	}

	for i := range buf {
		buf[i] = 0
	}
	h.encode(buf[:headerFixedSize+bitmapSz])

	// FAT pages start at page 1 and are left fully zeroed (every entry
	// is end-of-chain), nothing else to do, buf was already zeroed.
	return nil
}
