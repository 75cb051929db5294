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
	"strings"

	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// splitPath breaks an absolute, slash-separated path into the directory
// components leading to the final name, and that name itself. Root ("/"
// or "") has no name and is rejected by callers that need one.
func splitPath(path string) (components []string, name string) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// splitAllComponents breaks path into every component, including the
// last, for callers that want to resolve the path itself as a directory.
func splitAllComponents(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// lookupInChain walks startPage's FAT chain looking for an entry named
// name. It always walks the whole chain (even once found, for the
// other two return values) so create() can reuse a free slot opened up
// by an earlier deletion without a second pass.
func (s *Session) lookupInChain(startPage int, name string) (entry DirEntry, addr int64, found bool, freeAddr int64, lastPage int, err error) {
	freeAddr = -1
	page := startPage
	for {
		entries, base, derr := s.dirEntriesForPage(page)
		if derr != nil {
			return DirEntry{}, 0, false, -1, 0, derr
		}
		for i, e := range entries {
			a := base + int64(i)*DirEntrySize
			if !e.IsOccupied() {
				if freeAddr == -1 {
					freeAddr = a
				}
				continue
			}
			if e.NameString() == name {
				entry, addr, found = e, a, true
			}
		}
		lastPage = page
		next := s.getNext(page)
		if next == 0 {
			break
		}
		page = int(next)
	}
	return entry, addr, found, freeAddr, lastPage, nil
}

// resolveDir walks components from the root, requiring each one to name
// an existing directory, and returns the final directory's start page.
func (s *Session) resolveDir(components []string) (int, error) {
	page := 0
	for _, c := range components {
		entry, _, found, _, _, err := s.lookupInChain(page, c)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, zerr.New(zerr.NotFound, "resolve", nil).WithPath(c)
		}
		if !entry.IsDir() {
			return 0, zerr.New(zerr.NotDirectory, "resolve", nil).WithPath(c)
		}
		page = int(entry.StartPage)
	}
	return page, nil
}

// lookupResult is the outcome of resolving a full path against its
// parent directory: either the entry that path names, or (when absent)
// enough state to create it there.
type lookupResult struct {
	entry      DirEntry
	addr       int64
	parentPage int
	freeAddr   int64
	lastPage   int
	found      bool
}

func (s *Session) lookupFull(path string) (*lookupResult, error) {
	components, name := splitPath(path)
	if name == "" {
		return nil, zerr.New(zerr.InvalidDisk, "lookup", nil).WithPath(path)
	}
	parentPage, err := s.resolveDir(components)
	if err != nil {
		return nil, err
	}
	entry, addr, found, freeAddr, lastPage, err := s.lookupInChain(parentPage, name)
	if err != nil {
		return nil, err
	}
	return &lookupResult{
		entry: entry, addr: addr, parentPage: parentPage,
		freeAddr: freeAddr, lastPage: lastPage, found: found,
	}, nil
}
