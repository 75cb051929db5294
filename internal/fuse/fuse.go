//go:build linux
// +build linux

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
package fuse

import (
	"context"
	"os"
	"path"
	"sort"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/Zeal8bit/zdisk/internal/zealfs"
)

// ZealFS exposes a mounted zealfs.Session as a read-only FUSE filesystem.
// Non-goal: no write support through the mount, the CLI's zfs
// subcommands are the write path, per spec.md's single-writer model.
type ZealFS struct {
	s *zealfs.Session
}

// NewZealFS wraps s for FUSE serving.
func NewZealFS(s *zealfs.Session) *ZealFS {
	return &ZealFS{s: s}
}

func (z *ZealFS) Root() (fs.Node, error) {
	return &Dir{fs: z, path: "/"}, nil
}

// Dir implements fs.Node and fs.HandleReadDirAller over one ZealFS
// directory, addressed by its absolute path rather than its start page
// so Lookup can simply join path components.
type Dir struct {
	fs   *ZealFS
	path string
}

func (*Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	child := path.Join(d.path, name)

	if dh, err := d.fs.s.Opendir(child); err == nil {
		_ = dh
		return &Dir{fs: d.fs, path: child}, nil
	}
	if h, err := d.fs.s.Open(child); err == nil {
		return &File{fs: d.fs, path: child, size: uint64(h.Entry().Size)}, nil
	}
	return nil, fuse.ENOENT
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	dh, err := d.fs.s.Opendir(d.path)
	if err != nil {
		return nil, err
	}

	var dirEntries []fuse.Dirent
	for {
		entries, err := d.fs.s.Readdir(dh, 64)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			typ := fuse.DT_File
			if e.IsDir() {
				typ = fuse.DT_Dir
			}
			dirEntries = append(dirEntries, fuse.Dirent{Name: e.NameString(), Type: typ})
		}
	}

	sort.Slice(dirEntries, func(i, j int) bool {
		return dirEntries[i].Name < dirEntries[j].Name
	})
	for i := range dirEntries {
		dirEntries[i].Inode = uint64(i + 1)
	}
	return dirEntries, nil
}

// File implements fs.Node and fs.HandleReader over one ZealFS file.
// It reopens its handle on every read rather than caching one, since
// ZealFS handles carry no OS-level file descriptor to leak.
type File struct {
	fs   *ZealFS
	path string
	size uint64
}

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0444
	a.Size = f.size
	a.Mtime = time.Now()
	return nil
}

func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h, err := f.fs.s.Open(f.path)
	if err != nil {
		return err
	}

	offset := req.Offset
	if offset >= int64(f.size) {
		resp.Data = []byte{}
		return nil
	}

	size := req.Size
	if offset+int64(size) > int64(f.size) {
		size = int(int64(f.size) - offset)
	}

	buf := make([]byte, size)
	n, err := f.fs.s.Read(h, buf, offset)
	if err != nil {
		return err
	}
	resp.Data = buf[:n]
	return nil
}
