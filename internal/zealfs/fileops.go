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
	"time"

	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// Handle is an open file or directory entry, positioned for Read/Write/
// Flush by the byte offset of its directory entry.
type Handle struct {
	entry DirEntry
	addr  int64
}

// Entry returns a copy of the handle's directory entry.
func (h *Handle) Entry() DirEntry { return h.entry }

// DirHandle is a cursor over an open directory's FAT chain, produced by
// Opendir and advanced by repeated Readdir calls.
type DirHandle struct {
	page int
	idx  int
	done bool
}

// Open resolves path to an existing, non-directory entry.
func (s *Session) Open(path string) (*Handle, error) {
	if err := s.checkHeader(); err != nil {
		return nil, err
	}
	res, err := s.lookupFull(path)
	if err != nil {
		return nil, err
	}
	if !res.found {
		return nil, zerr.New(zerr.NotFound, "open", nil).WithPath(path)
	}
	if res.entry.IsDir() {
		return nil, zerr.New(zerr.IsDirectory, "open", nil).WithPath(path)
	}
	return &Handle{entry: res.entry, addr: res.addr}, nil
}

// create implements both Create and Mkdir: it resolves path's parent,
// rejects an existing entry of the same name, grows the parent's
// directory chain by one page if every slot in it is taken, and, for a
// directory only, allocates a fresh start page. A plain file is created
// with StartPage 0 and no page of its own; Write allocates its first page.
func (s *Session) create(path string, isDir bool, initialSize uint32) (*Handle, error) {
	if err := s.checkHeader(); err != nil {
		return nil, err
	}

	_, name := splitPath(path)
	if name == "" {
		return nil, zerr.New(zerr.InvalidDisk, "create", nil).WithPath(path)
	}
	nameBytes, ok := newName(name)
	if !ok {
		return nil, zerr.New(zerr.NameTooLong, "create", nil).WithPath(path)
	}

	res, err := s.lookupFull(path)
	if err != nil {
		return nil, err
	}
	if res.found {
		return nil, zerr.New(zerr.Exists, "create", nil).WithPath(path)
	}

	entryAddr := res.freeAddr
	if entryAddr == -1 {
		newPage, err := s.allocatePage()
		if err != nil {
			return nil, err
		}
		if err := s.zeroPage(newPage); err != nil {
			return nil, err
		}
		s.setNext(res.lastPage, uint16(newPage))
		s.setNext(newPage, 0)
		entryAddr = int64(newPage) * int64(s.pageSize)
	}

	// A directory needs its own page the moment it exists, since it must
	// be walkable by Opendir/Readdir right away. A plain file starts with
	// StartPage 0 (no page at all) and gets one lazily on its first
	// Write: charging the page at create time would let that file's
	// first write ride it for free, which undercounts what FreeSpace()
	// actually has left for the rest of the filesystem.
	var startPage int
	if isDir {
		var err error
		startPage, err = s.allocatePage()
		if err != nil {
			return nil, err
		}
		if err := s.zeroPage(startPage); err != nil {
			return nil, err
		}
	}

	flags := byte(flagOccupied)
	if isDir {
		flags |= flagIsDir
	}
	entry := DirEntry{
		Flags:     flags,
		Name:      nameBytes,
		StartPage: uint16(startPage),
		Size:      initialSize,
		Time:      encodeBCDTime(time.Now()),
	}

	// Write ordering: the new page's data (already zeroed above, if one
	// was allocated) lands before the directory entry that names it,
	// which lands before the header/bitmap and FAT that record the
	// allocation as persistent.
	if err := s.writeDirEntry(entryAddr, entry); err != nil {
		return nil, err
	}
	if err := s.flushHeader(); err != nil {
		return nil, err
	}
	if err := s.flushFAT(); err != nil {
		return nil, err
	}

	log.Debugf("created entry %s (dir=%v)", path, isDir)
	return &Handle{entry: entry, addr: entryAddr}, nil
}

// Create makes a new, empty file at path.
func (s *Session) Create(path string) (*Handle, error) {
	return s.create(path, false, 0)
}

// Mkdir makes a new, empty directory at path. Its initial size is one
// page, the page itself counts as the directory's own space.
func (s *Session) Mkdir(path string) error {
	_, err := s.create(path, true, uint32(s.pageSize))
	return err
}

// Read copies up to len(buf) bytes starting at offset into buf, clamped
// to the handle's recorded size, and returns the count actually copied.
func (s *Session) Read(h *Handle, buf []byte, offset int64) (int, error) {
	if err := s.checkHeader(); err != nil {
		return 0, err
	}
	if offset >= int64(h.entry.Size) {
		return 0, nil
	}
	size := len(buf)
	if offset+int64(size) > int64(h.entry.Size) {
		size = int(int64(h.entry.Size) - offset)
	}

	page := int(h.entry.StartPage)
	jumpPages := int(offset / int64(s.pageSize))
	offsetInPage := int(offset % int64(s.pageSize))
	for i := 0; i < jumpPages; i++ {
		next := s.getNext(page)
		if next == 0 {
			return 0, zerr.New(zerr.SeekOutOfRange, "read", nil)
		}
		page = int(next)
	}

	total := 0
	remaining := size
	for remaining > 0 {
		chunk := s.pageSize - offsetInPage
		if chunk > remaining {
			chunk = remaining
		}
		if err := s.p.ReadAt(buf[total:total+chunk], int64(page)*int64(s.pageSize)+int64(offsetInPage)); err != nil {
			return total, err
		}
		total += chunk
		remaining -= chunk
		offsetInPage = 0
		if remaining > 0 {
			next := s.getNext(page)
			if next == 0 {
				break
			}
			page = int(next)
		}
	}
	return total, nil
}

// Write copies buf into the handle's page chain starting at offset,
// which may land at most one page beyond the chain's current end; the
// chain grows by as many pages as buf needs from there. It then advances the handle's recorded size by the number of bytes written.
// Flush must be called afterward to persist the entry, header and FAT.
func (s *Session) Write(h *Handle, buf []byte, offset int64) (int, error) {
	if err := s.checkHeader(); err != nil {
		return 0, err
	}

	free, err := s.FreeSpace()
	if err != nil {
		return 0, err
	}
	offsetInPage := int(offset % int64(s.pageSize))
	jumpPages := int(offset / int64(s.pageSize))

	// landingRoom only counts bytes in a page that already exists in the
	// chain. A jump to or past the chain's current end lands on a page
	// that has to be allocated fresh, so it draws entirely from free,
	// the same as appending to a brand new, still pageless file (Create
	// defers a file's first page rather than charging it up front).
	existingPages := 0
	if h.entry.StartPage != 0 {
		existingPages = int((int64(h.entry.Size) + int64(s.pageSize) - 1) / int64(s.pageSize))
		if existingPages == 0 {
			existingPages = 1
		}
	}
	landingRoom := int64(0)
	if jumpPages < existingPages {
		landingRoom = int64(s.pageSize - offsetInPage)
	}
	if free+landingRoom < int64(len(buf)) {
		return 0, zerr.New(zerr.NoSpace, "write", nil)
	}

	page := int(h.entry.StartPage)
	if page == 0 {
		if offset != 0 {
			return 0, zerr.New(zerr.SeekOutOfRange, "write", nil)
		}
		newPage, err := s.allocatePage()
		if err != nil {
			return 0, err
		}
		if err := s.zeroPage(newPage); err != nil {
			return 0, err
		}
		page = newPage
		h.entry.StartPage = uint16(newPage)
	}

	for i := 0; i < jumpPages; i++ {
		next := s.getNext(page)
		if next == 0 {
			if i != jumpPages-1 {
				return 0, zerr.New(zerr.SeekOutOfRange, "write", nil)
			}
			newPage, err := s.allocatePage()
			if err != nil {
				return 0, err
			}
			if err := s.zeroPage(newPage); err != nil {
				return 0, err
			}
			s.setNext(page, uint16(newPage))
			next = uint16(newPage)
		}
		page = int(next)
	}

	total := 0
	remaining := len(buf)
	for remaining > 0 {
		chunk := s.pageSize - offsetInPage
		if chunk > remaining {
			chunk = remaining
		}
		if err := s.p.WriteAt(buf[total:total+chunk], int64(page)*int64(s.pageSize)+int64(offsetInPage)); err != nil {
			return total, err
		}
		total += chunk
		remaining -= chunk
		offsetInPage = 0
		if remaining > 0 {
			next := s.getNext(page)
			if next == 0 {
				newPage, err := s.allocatePage()
				if err != nil {
					return total, err
				}
				if err := s.zeroPage(newPage); err != nil {
					return total, err
				}
				s.setNext(page, uint16(newPage))
				next = uint16(newPage)
			}
			page = int(next)
		}
	}

	h.entry.Size += uint32(total)
	log.Debugf("wrote %d byte(s) at offset %d", total, offset)
	return total, nil
}

// Flush persists h's directory entry and the session's header/bitmap
// and FAT caches.
func (s *Session) Flush(h *Handle) error {
	if err := s.writeDirEntry(h.addr, h.entry); err != nil {
		return err
	}
	if err := s.flushHeader(); err != nil {
		return err
	}
	return s.flushFAT()
}

// Unlink removes a file, freeing its whole page chain. It refuses a
// directory, use Rmdir for those.
func (s *Session) Unlink(path string) error {
	if err := s.checkHeader(); err != nil {
		return err
	}
	res, err := s.lookupFull(path)
	if err != nil {
		return err
	}
	if !res.found {
		return zerr.New(zerr.NotFound, "unlink", nil).WithPath(path)
	}
	if res.entry.IsDir() {
		return zerr.New(zerr.IsDirectory, "unlink", nil).WithPath(path)
	}

	s.freeChain(int(res.entry.StartPage))

	if err := s.writeDirEntry(res.addr, DirEntry{}); err != nil {
		return err
	}
	if err := s.flushHeader(); err != nil {
		return err
	}
	if err := s.flushFAT(); err != nil {
		return err
	}
	log.Debugf("unlinked %s", path)
	return nil
}

// Rmdir removes an empty, non-root directory, freeing every page in its
// chain (a directory grows past one page when create fills it up).
func (s *Session) Rmdir(path string) error {
	if err := s.checkHeader(); err != nil {
		return err
	}
	if path == "" || path == "/" {
		return zerr.New(zerr.PermissionDenied, "rmdir", nil).WithPath(path)
	}

	res, err := s.lookupFull(path)
	if err != nil {
		return err
	}
	if !res.found {
		return zerr.New(zerr.NotFound, "rmdir", nil).WithPath(path)
	}
	if !res.entry.IsDir() {
		return zerr.New(zerr.NotDirectory, "rmdir", nil).WithPath(path)
	}

	page := int(res.entry.StartPage)
	for p := page; ; {
		entries, _, err := s.dirEntriesForPage(p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsOccupied() {
				return zerr.New(zerr.NotEmpty, "rmdir", nil).WithPath(path)
			}
		}
		next := s.getNext(p)
		if next == 0 {
			break
		}
		p = int(next)
	}

	s.freeChain(page)

	if err := s.writeDirEntry(res.addr, DirEntry{}); err != nil {
		return err
	}
	if err := s.flushHeader(); err != nil {
		return err
	}
	if err := s.flushFAT(); err != nil {
		return err
	}
	log.Debugf("removed directory %s", path)
	return nil
}

// freeChain walks page's FAT chain, freeing every page in it and
// severing the links behind it.
func (s *Session) freeChain(page int) {
	for page != 0 {
		next := s.getNext(page)
		s.setNext(page, 0)
		s.freePage(page)
		page = int(next)
	}
}

// Opendir resolves path to an existing directory and returns a cursor
// over its entries.
func (s *Session) Opendir(path string) (*DirHandle, error) {
	if err := s.checkHeader(); err != nil {
		return nil, err
	}
	page, err := s.resolveDir(splitAllComponents(path))
	if err != nil {
		return nil, err
	}
	return &DirHandle{page: page}, nil
}

// Readdir returns up to max occupied entries starting from dh's current
// position, advancing dh across directory pages as needed. It returns
// fewer than max (possibly zero) once the chain is exhausted.
func (s *Session) Readdir(dh *DirHandle, max int) ([]DirEntry, error) {
	var out []DirEntry
	for len(out) < max && !dh.done {
		entries, _, err := s.dirEntriesForPage(dh.page)
		if err != nil {
			return out, err
		}
		for dh.idx < len(entries) {
			e := entries[dh.idx]
			dh.idx++
			if e.IsOccupied() {
				out = append(out, e)
				if len(out) == max {
					return out, nil
				}
			}
		}
		next := s.getNext(dh.page)
		if next == 0 {
			dh.done = true
			break
		}
		dh.page = int(next)
		dh.idx = 0
	}
	return out, nil
}
