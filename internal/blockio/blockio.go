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

// Package blockio implements the sector-aligned block-device abstraction
// that both the MBR editor and the ZealFS engine sit on top of. It lets
// callers issue reads and writes at arbitrary byte offsets and lengths,
// regardless of whether the backing store is a byte-granular image file
// or a raw character device that only accepts whole-sector I/O (e.g. a
// macOS /dev/rdiskN).
package blockio

import (
	"fmt"
	"io"
	"os"

	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// SectorSize is the alignment unit enforced for raw-device I/O.
const SectorSize = 512

// Handle is an opened disk or image file. All positional I/O against a
// Disk flows through it.
type Handle struct {
	path     string
	file     *os.File
	isDevice bool
	size     int64
}

// Open opens path for positional I/O. readWrite requests read-write
// access; callers that only need to probe a disk should pass false.
func Open(path string, readWrite bool) (*Handle, error) {
	flag := os.O_RDONLY
	if readWrite {
		flag = os.O_RDWR
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, zerr.New(zerr.NotRoot, "open", err).WithPath(path)
		}
		return nil, zerr.New(zerr.IoFailure, "open", err).WithPath(path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, zerr.New(zerr.IoFailure, "stat", err).WithPath(path)
	}

	h := &Handle{
		path:     path,
		file:     f,
		isDevice: info.Mode()&os.ModeDevice != 0,
	}

	h.size, err = deviceSize(f, info)
	if err != nil {
		f.Close()
		return nil, zerr.New(zerr.IoFailure, "size", err).WithPath(path)
	}
	return h, nil
}

// Close releases the underlying file descriptor.
func (h *Handle) Close() error {
	return h.file.Close()
}

// Size reports the total addressable size of the handle in bytes.
func (h *Handle) Size() int64 { return h.size }

// Path returns the path the handle was opened from.
func (h *Handle) Path() string { return h.path }

// ReadAt reads len(buf) bytes starting at offset. On a raw device it
// splits the request into whole-sector reads plus a trailing unaligned
// tail, read through a one-sector scratch buffer, exactly mirroring the
// RMW envelope spec.md §4.A requires for macOS character disks. Image
// files are read directly since they accept byte-granular I/O.
func (h *Handle) ReadAt(buf []byte, offset int64) (int, error) {
	if !h.isDevice {
		n, err := h.file.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return n, zerr.New(zerr.IoFailure, "read", err).WithPath(h.path)
		}
		return n, nil
	}
	return h.readAligned(buf, offset)
}

func (h *Handle) readAligned(buf []byte, offset int64) (int, error) {
	total := 0
	alignedStart := offset - offset%SectorSize
	headSkip := int(offset - alignedStart)

	scratch := make([]byte, SectorSize)
	pos := alignedStart
	remaining := len(buf)
	dst := buf

	for remaining > 0 {
		n, err := h.file.ReadAt(scratch, pos)
		if err != nil && err != io.EOF {
			return total, zerr.New(zerr.IoFailure, "read", err).WithPath(h.path)
		}

		avail := n - headSkip
		if avail < 0 {
			avail = 0
		}
		copyLen := avail
		if copyLen > remaining {
			copyLen = remaining
		}
		copy(dst[:copyLen], scratch[headSkip:headSkip+copyLen])

		total += copyLen
		dst = dst[copyLen:]
		remaining -= copyLen
		pos += SectorSize
		headSkip = 0

		if n < SectorSize {
			break
		}
	}
	return total, nil
}

// WriteAt writes len(buf) bytes starting at offset. On a raw device the
// start offset is aligned down to a sector boundary and the trailing
// partial sector is handled with a read-modify-write so that bytes
// beyond the requested range are preserved, per spec.md §4.A.
func (h *Handle) WriteAt(buf []byte, offset int64) (int, error) {
	if !h.isDevice {
		n, err := h.file.WriteAt(buf, offset)
		if err != nil {
			return n, zerr.New(zerr.IoFailure, "write", err).WithPath(h.path)
		}
		return n, nil
	}
	return h.writeAligned(buf, offset)
}

func (h *Handle) writeAligned(buf []byte, offset int64) (int, error) {
	alignedStart := offset - offset%SectorSize
	headSkip := int(offset - alignedStart)

	total := 0
	pos := alignedStart
	src := buf

	for len(src) > 0 {
		chunk := make([]byte, SectorSize)
		n := copy(chunk[headSkip:], src)

		// The chunk doesn't fill the whole sector: read the existing
		// sector content first so we don't clobber neighbouring bytes.
		if headSkip > 0 || n+headSkip < SectorSize {
			if _, err := h.file.ReadAt(chunk[:headSkip], pos); err != nil && err != io.EOF {
				return total, zerr.New(zerr.IoFailure, "write", err).WithPath(h.path)
			}
			tailStart := headSkip + n
			if tailStart < SectorSize {
				if _, err := h.file.ReadAt(chunk[tailStart:], pos+int64(tailStart)); err != nil && err != io.EOF {
					return total, zerr.New(zerr.IoFailure, "write", err).WithPath(h.path)
				}
			}
		}

		if _, err := h.file.WriteAt(chunk, pos); err != nil {
			return total, zerr.New(zerr.IoFailure, "write", err).WithPath(h.path)
		}

		total += n
		src = src[n:]
		pos += SectorSize
		headSkip = 0
	}
	return total, nil
}

// ReadFull reads exactly len(buf) bytes, returning an error if fewer
// were available. A convenience over ReadAt for the fixed-size header
// and FAT reads the ZealFS engine performs.
func (h *Handle) ReadFull(buf []byte, offset int64) error {
	n, err := h.ReadAt(buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return zerr.Errorf(zerr.IoFailure, "read", "short read: wanted %d, got %d", len(buf), n)
	}
	return nil
}

// WriteFull writes exactly len(buf) bytes, returning an error on a
// short write.
func (h *Handle) WriteFull(buf []byte, offset int64) error {
	n, err := h.WriteAt(buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return zerr.Errorf(zerr.IoFailure, "write", "short write: wanted %d, got %d", len(buf), n)
	}
	return nil
}

func (h *Handle) String() string {
	return fmt.Sprintf("blockio.Handle{path=%s, device=%v, size=%d}", h.path, h.isDevice, h.size)
}
