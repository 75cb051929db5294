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
	"io"

	"github.com/Zeal8bit/zdisk/internal/blockio"
	"github.com/Zeal8bit/zdisk/internal/logger"
	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// log is silent until the CLI calls SetLogger with its shared logger.
var log = logger.New(io.Discard, logger.ErrorLevel+1)

// SetLogger replaces the package's logger, letting the caller route
// allocation/mutation events wherever its own progress reporting goes.
func SetLogger(l *logger.Logger) { log = l }

// Provider is the capability trait a Session needs from its backing
// store: two methods, read and write, already offset to the start of
// the partition. This is spec.md §9's "header polymorphism via function
// pointers" note, modelled as an interface rather than the source's pair
// of thunks plus opaque argument, since a Go interface carries its
// receiver and so needs no extra argument threading.
type Provider interface {
	ReadAt(buf []byte, offset int64) error
	WriteAt(buf []byte, offset int64) error
}

// partitionProvider adapts a blockio.Handle plus a byte offset (the
// partition's starting LBA × 512) into a Provider.
type partitionProvider struct {
	h    *blockio.Handle
	base int64
}

// NewPartitionProvider binds h to the partition starting baseOffset
// bytes into the device or image it was opened from.
func NewPartitionProvider(h *blockio.Handle, baseOffset int64) Provider {
	return &partitionProvider{h: h, base: baseOffset}
}

func (p *partitionProvider) ReadAt(buf []byte, offset int64) error {
	return p.h.ReadFull(buf, p.base+offset)
}

func (p *partitionProvider) WriteAt(buf []byte, offset int64) error {
	return p.h.WriteFull(buf, p.base+offset)
}

// Session binds a Provider to ZealFS v2 semantics: header cache, FAT
// cache, and the directory/file operations of spec.md §4.D. A session
// starts "unmounted" (header cache empty) and transitions to "mounted"
// lazily, on its first operation, see checkHeader.
type Session struct {
	p Provider

	mounted  bool
	hdr      *header
	fat      []uint16
	pageSize int
	fatSize  int // number of FAT pages
}

// NewSession binds p for ZealFS operations. The session performs no I/O
// until its first operation triggers the lazy mount.
func NewSession(p Provider) *Session {
	return &Session{p: p}
}

// Destroy returns the session to its unmounted state, zeroing the
// header cache the way spec.md §4.D's state machine describes.
func (s *Session) Destroy() {
	s.mounted = false
	s.hdr = nil
	s.fat = nil
}

// checkHeader performs the lazy mount: on first touch it reads the
// header (magic, version, bitmap-size, free-pages, page-size, bitmap)
// and the FAT into their caches. Unlike the source, which always reads
// a fixed maximum-sized header buffer regardless of the real bitmap
// size, we read the seven fixed bytes first to learn the real bitmap
// size and then read exactly that many bytes, behaviourally identical
// once mounted, but it never over-reads past a small partition's end.
func (s *Session) checkHeader() error {
	if s.mounted {
		return nil
	}

	var fixed [headerFixedSize]byte
	if err := s.p.ReadAt(fixed[:], 0); err != nil {
		return err
	}
	if fixed[0] == 0 {
		return zerr.New(zerr.InvalidDisk, "mount", nil)
	}

	bitmapSize := int(binary.LittleEndian.Uint16(fixed[2:4]))
	hs := headerSize(bitmapSize)

	buf := make([]byte, hs)
	if err := s.p.ReadAt(buf, 0); err != nil {
		return err
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		return err
	}

	pageSize := hdr.pageSize()
	fp := fatPages(pageSize)

	fatBuf := make([]byte, fp*pageSize)
	if err := s.p.ReadAt(fatBuf, int64(pageSize)); err != nil {
		return err
	}
	fat := make([]uint16, len(fatBuf)/2)
	for i := range fat {
		fat[i] = binary.LittleEndian.Uint16(fatBuf[i*2 : i*2+2])
	}

	s.hdr = hdr
	s.fat = fat
	s.pageSize = pageSize
	s.fatSize = fp
	s.mounted = true
	return nil
}

// totalPages is the number of pages the bitmap covers.
func (s *Session) totalPages() int { return len(s.hdr.bitmap) * 8 }

// FreeSpace returns header.free_pages * page_size_bytes, per spec.md §4.D.6.
func (s *Session) FreeSpace() (int64, error) {
	if err := s.checkHeader(); err != nil {
		return 0, err
	}
	return int64(s.hdr.freePages) * int64(s.pageSize), nil
}

// TotalSpace returns (bitmap_size*8)*page_size_bytes, used when a
// partition lacks an MBR and so has no independently known size.
func (s *Session) TotalSpace() (int64, error) {
	if err := s.checkHeader(); err != nil {
		return 0, err
	}
	return int64(s.totalPages()) * int64(s.pageSize), nil
}

// PageSize returns the mounted partition's page size in bytes.
func (s *Session) PageSize() (int, error) {
	if err := s.checkHeader(); err != nil {
		return 0, err
	}
	return s.pageSize, nil
}

// allocatePage finds the first free page via a linear bitmap scan,
// marks it allocated, and decrements the free-page count. Returns 0 on
// failure: page 0 is never allocatable, so it doubles as the "no space"
// sentinel spec.md §4.D.4 describes.
func (s *Session) allocatePage() (int, error) {
	bitmap := s.hdr.bitmap
	for i, b := range bitmap {
		if b == 0xFF {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				page := i*8 + bit
				bitSet(bitmap, page)
				s.hdr.freePages--
				return page, nil
			}
		}
	}
	log.Warn("page allocation failed: no free pages")
	return 0, zerr.New(zerr.NoSpace, "allocate_page", nil)
}

// freePage clears page's bitmap bit and increments free_pages. Page 0
// can never be freed, it's the header page.
func (s *Session) freePage(page int) {
	if page == 0 {
		return
	}
	bitClear(s.hdr.bitmap, page)
	s.hdr.freePages++
}

func (s *Session) getNext(page int) uint16 {
	if page < 0 || page >= len(s.fat) {
		return 0
	}
	return s.fat[page]
}

func (s *Session) setNext(page int, next uint16) {
	if page >= 0 && page < len(s.fat) {
		s.fat[page] = next
	}
}

func (s *Session) zeroPage(page int) error {
	buf := make([]byte, s.pageSize)
	return s.p.WriteAt(buf, int64(page)*int64(s.pageSize))
}

func (s *Session) readDirEntry(addr int64) (DirEntry, error) {
	var buf [DirEntrySize]byte
	if err := s.p.ReadAt(buf[:], addr); err != nil {
		return DirEntry{}, err
	}
	return DecodeDirEntry(buf[:]), nil
}

func (s *Session) writeDirEntry(addr int64, e DirEntry) error {
	var buf [DirEntrySize]byte
	e.Encode(buf[:])
	return s.p.WriteAt(buf[:], addr)
}

// rootDirMaxEntries is the entry capacity of page 0's directory array,
// smaller than a regular directory page because the header occupies
// part of it.
func (s *Session) rootDirMaxEntries() int {
	return (s.pageSize - headerSize(int(s.hdr.bitmapSize))) / DirEntrySize
}

// dirMaxEntries is the entry capacity of any non-root directory page.
func (s *Session) dirMaxEntries() int {
	return s.pageSize / DirEntrySize
}

// dirEntriesForPage reads every entry slot of page (root-aware) and
// returns them alongside the absolute byte offset of slot 0.
func (s *Session) dirEntriesForPage(page int) ([]DirEntry, int64, error) {
	var start int64
	var count int
	if page == 0 {
		start = int64(headerSize(int(s.hdr.bitmapSize)))
		count = s.rootDirMaxEntries()
	} else {
		start = 0
		count = s.dirMaxEntries()
	}

	base := int64(page)*int64(s.pageSize) + start
	buf := make([]byte, count*DirEntrySize)
	if err := s.p.ReadAt(buf, base); err != nil {
		return nil, 0, err
	}

	entries := make([]DirEntry, count)
	for i := 0; i < count; i++ {
		entries[i] = DecodeDirEntry(buf[i*DirEntrySize : (i+1)*DirEntrySize])
	}
	return entries, base, nil
}

func (s *Session) flushHeader() error {
	buf := make([]byte, headerFixedSize+len(s.hdr.bitmap))
	s.hdr.encode(buf)
	return s.p.WriteAt(buf, 0)
}

func (s *Session) flushFAT() error {
	buf := make([]byte, s.fatSize*s.pageSize)
	for i, v := range s.fat {
		if i*2+2 > len(buf) {
			break
		}
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], v)
	}
	return s.p.WriteAt(buf, int64(s.pageSize))
}
