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

// Package zealfs implements the ZealFS v2 on-disk filesystem: a
// page-allocated, FAT-chained, bitmap-backed tree with fixed-size 32-byte
// directory entries. The struct layouts mirror explicit byte-array
// decoding (explicit offsets, little-endian fields copied out of raw
// slices) rather than binary.Read over a Go struct, since ZealFS entries
// are bit-packed (a single flags byte carries two independent flags) in a
// way binary.Read can't express directly.
package zealfs

import (
	"encoding/binary"
	"time"
)

// DirEntrySize is the fixed size in bytes of one directory entry.
const DirEntrySize = 32

const (
	flagIsDir    = 1 << 0
	flagOccupied = 1 << 7
)

// DirEntry is one 32-byte directory record, per spec.md §3.
type DirEntry struct {
	Flags     byte
	Name      [16]byte
	StartPage uint16
	Size      uint32
	Time      [9]byte // BCD year/year, month, day, weekday, hour, min, sec, reserved
}

// IsDir reports whether the entry names a subdirectory.
func (e DirEntry) IsDir() bool { return e.Flags&flagIsDir != 0 }

// IsOccupied reports whether the entry is in use.
func (e DirEntry) IsOccupied() bool { return e.Flags&flagOccupied != 0 }

// NameString returns the NUL-trimmed name.
func (e DirEntry) NameString() string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

// DecodeDirEntry reads one 32-byte record out of b.
func DecodeDirEntry(b []byte) DirEntry {
	var e DirEntry
	e.Flags = b[0]
	copy(e.Name[:], b[1:17])
	e.StartPage = binary.LittleEndian.Uint16(b[17:19])
	e.Size = binary.LittleEndian.Uint32(b[19:23])
	copy(e.Time[:], b[23:32])
	return e
}

// Encode writes the entry back into the 32-byte slot b.
func (e DirEntry) Encode(b []byte) {
	for i := range b[:DirEntrySize] {
		b[i] = 0
	}
	b[0] = e.Flags
	copy(b[1:17], e.Name[:])
	binary.LittleEndian.PutUint16(b[17:19], e.StartPage)
	binary.LittleEndian.PutUint32(b[19:23], e.Size)
	copy(b[23:32], e.Time[:])
}

// newName copies name into a 16-byte NUL-padded field, reporting
// NameTooLong when it is longer than 16 bytes. A 16-byte name fills the
// field with no NUL terminator.
func newName(name string) ([16]byte, bool) {
	var out [16]byte
	if len(name) > len(out) {
		return out, false
	}
	copy(out[:], name)
	return out, true
}

// encodeBCDTime packs t the way spec.md §3 lays out a directory entry's
// timestamp: two-byte century/year, month, day, weekday, hour, minute,
// second, one reserved byte, each numeric field in binary-coded decimal.
func encodeBCDTime(t time.Time) [9]byte {
	var out [9]byte
	year := t.Year()
	out[0] = toBCD(year / 100)
	out[1] = toBCD(year % 100)
	out[2] = toBCD(int(t.Month()))
	out[3] = toBCD(t.Day())
	out[4] = toBCD(int(t.Weekday()))
	out[5] = toBCD(t.Hour())
	out[6] = toBCD(t.Minute())
	out[7] = toBCD(t.Second())
	out[8] = 0
	return out
}

func decodeBCDTime(b [9]byte) time.Time {
	year := fromBCD(b[0])*100 + fromBCD(b[1])
	return time.Date(year, time.Month(fromBCD(b[2])), fromBCD(b[3]), fromBCD(b[5]), fromBCD(b[6]), fromBCD(b[7]), 0, time.Local)
}

func toBCD(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}

func fromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}
