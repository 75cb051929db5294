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

// Package registry implements spec.md §4.B: the disk registry that
// enumerates candidate devices and loaded image files, and tracks the
// current disk/partition selection plus each disk's staged MBR editor.
package registry

import (
	"io"
	"os"
	"runtime"
	"strings"
	"unicode"

	"github.com/Zeal8bit/zdisk/internal/blockio"
	"github.com/Zeal8bit/zdisk/internal/logger"
	"github.com/Zeal8bit/zdisk/internal/mbr"
	"github.com/Zeal8bit/zdisk/internal/zealfs"
	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// log is silent until the CLI calls SetLogger with its shared logger.
var log = logger.New(io.Discard, logger.ErrorLevel+1)

// SetLogger replaces the package's logger, letting the caller route
// enumeration/selection events wherever its own progress reporting goes.
func SetLogger(l *logger.Logger) { log = l }

// MaxDisks bounds the registry the way spec.md §4.B requires.
const MaxDisks = 32

// MaxDiskBytes is the 32 GiB ceiling above which a disk is hidden to
// protect internal drives, per spec.md §3.
const MaxDiskBytes = 32 << 30

// Disk is a block device or image file tracked by the registry, per
// spec.md §3. Its MBR parsing and staged/committed views live in the
// embedded *mbr.Editor.
type Disk struct {
	Path      string
	Name      string
	SizeBytes int64
	Valid     bool
	IsImage   bool

	*mbr.Editor

	// ZealAtZero is set when HasMBR is false and the first two bytes of
	// the disk carry the ZealFS v2 magic+version, i.e. the whole disk is
	// usable as partition slot 0 per spec.md §3.
	ZealAtZero bool
}

// Candidate is one device or image path a Probe reports, paired with its
// size so the registry doesn't need to reopen it just to measure it.
type Candidate struct {
	Path      string
	SizeBytes int64
}

// Probe is the external collaborator contract of spec.md §6: enumerate
// candidate device paths on the host platform. The registry owns
// interpretation of what each candidate means; Probe only lists them.
type Probe interface {
	Candidates() ([]Candidate, error)
}

// Registry holds at most MaxDisks Disk records plus the current
// disk/partition selection, per spec.md §4.B.
type Registry struct {
	Disks             []*Disk
	SelectedDisk      int
	SelectedPartition int
}

// New returns an empty registry with nothing selected.
func New() *Registry {
	return &Registry{SelectedDisk: -1, SelectedPartition: -1}
}

// NormalizeVolumePath rewrites a drive-letter path into a raw Windows
// volume path (\\.\C:) on Windows, and returns path unchanged elsewhere.
func NormalizeVolumePath(path string) string {
	if runtime.GOOS != "windows" {
		return path
	}

	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, "/", `\`)
	upper := strings.ToUpper(path)

	if strings.HasPrefix(upper, `\\.\`) {
		return upper
	}
	if len(upper) >= 2 && upper[1] == ':' && unicode.IsLetter(rune(upper[0])) {
		return `\\.\` + strings.ToUpper(string(upper[0])) + `:`
	}
	return path
}

// openDisk opens path read-only, measures and validates its size, reads
// sector 0, and builds the Disk record spec.md §4.B asks an enumeration
// step to produce. It returns (nil, nil) for a disk that should be
// silently hidden (oversized), and an error only for genuine I/O failure.
func openDisk(path string, isImage bool) (*Disk, error) {
	h, err := blockio.Open(path, false)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	size := h.Size()
	if size > MaxDiskBytes {
		return nil, nil
	}

	var sector [mbr.Size]byte
	if err := h.ReadFull(sector[:], 0); err != nil {
		return nil, err
	}

	hasMBR := mbr.HasSignature(sector[:])
	diskSectors := uint32(size / mbr.SectorSizeBytes)

	d := &Disk{
		Path:      path,
		Name:      path,
		SizeBytes: size,
		Valid:     true,
		IsImage:   isImage,
		Editor:    mbr.NewEditor(sector, hasMBR, diskSectors),
	}
	if !hasMBR && sector[0] == zealfs.Magic && sector[1] == zealfs.Version {
		d.ZealAtZero = true
	}
	return d, nil
}

// Refresh re-enumerates physical disks from scratch via probe while
// preserving any loaded image disks, per spec.md §4.B. It refuses to run
// if the currently selected disk carries staged changes.
func (r *Registry) Refresh(probe Probe) error {
	if cur := r.CurrentDisk(); cur != nil && cur.HasStagedChanges() {
		return zerr.New(zerr.StagedChangesPresent, "refresh", nil)
	}

	var images []*Disk
	for _, d := range r.Disks {
		if d.IsImage {
			images = append(images, d)
		}
	}

	candidates, err := probe.Candidates()
	if err != nil {
		return err
	}

	var fresh []*Disk
	for _, c := range candidates {
		if len(fresh)+len(images) >= MaxDisks {
			break
		}
		d, err := openDisk(c.Path, false)
		if err != nil || d == nil {
			continue
		}
		fresh = append(fresh, d)
	}

	r.Disks = append(fresh, images...)
	r.SelectedDisk = -1
	r.SelectedPartition = -1
	if len(r.Disks) > 0 {
		r.SelectedDisk = 0
	}
	log.Infof("refreshed registry: %d disk(s) enumerated", len(fresh))
	return nil
}

// LoadImage opens an existing image file at path and adds it to the
// registry, rejecting a path already present.
func (r *Registry) LoadImage(path string) (*Disk, error) {
	for _, d := range r.Disks {
		if d.Path == path {
			return nil, zerr.Errorf(zerr.Exists, "load_image", "disk %s already loaded", path)
		}
	}
	if len(r.Disks) >= MaxDisks {
		return nil, zerr.New(zerr.InvalidDisk, "load_image", nil)
	}

	d, err := openDisk(path, true)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, zerr.New(zerr.InvalidDisk, "load_image", nil).WithPath(path)
	}

	r.Disks = append(r.Disks, d)
	r.SelectedDisk = len(r.Disks) - 1
	r.SelectedPartition = -1
	log.Infof("loaded image disk %s", path)
	return d, nil
}

// CreateImage creates a sparse file of exactly sizeBytes, optionally
// stamps a blank MBR signature, and registers it as a loaded image disk.
func (r *Registry) CreateImage(path string, sizeBytes int64, withMBR bool) (*Disk, error) {
	for _, d := range r.Disks {
		if d.Path == path {
			return nil, zerr.Errorf(zerr.Exists, "create_image", "disk %s already loaded", path)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, zerr.New(zerr.IoFailure, "create_image", err).WithPath(path)
	}
	if err := f.Truncate(sizeBytes); err != nil {
		f.Close()
		os.Remove(path)
		return nil, zerr.New(zerr.IoFailure, "create_image", err).WithPath(path)
	}
	if withMBR {
		var sector [mbr.Size]byte
		mbr.SetSignature(sector[:])
		if _, err := f.WriteAt(sector[:], 0); err != nil {
			f.Close()
			os.Remove(path)
			return nil, zerr.New(zerr.IoFailure, "create_image", err).WithPath(path)
		}
	}
	if err := f.Close(); err != nil {
		return nil, zerr.New(zerr.IoFailure, "create_image", err).WithPath(path)
	}

	log.Infof("created image disk %s (%d bytes, mbr=%v)", path, sizeBytes, withMBR)
	return r.LoadImage(path)
}

// CurrentDisk returns the selected disk, or nil if none is selected.
func (r *Registry) CurrentDisk() *Disk {
	if r.SelectedDisk < 0 || r.SelectedDisk >= len(r.Disks) {
		return nil
	}
	return r.Disks[r.SelectedDisk]
}

// CurrentPartition returns the selected disk's selected partition table
// entry, or the zero Entry plus false if nothing is selected.
func (r *Registry) CurrentPartition() (mbr.Entry, bool) {
	d := r.CurrentDisk()
	if d == nil || r.SelectedPartition < 0 || r.SelectedPartition >= mbr.MaxSlots {
		return mbr.Entry{}, false
	}
	return d.StagedEntries()[r.SelectedPartition], true
}

// SelectDisk changes the current disk selection, resetting the partition
// selection.
func (r *Registry) SelectDisk(idx int) error {
	if idx < 0 || idx >= len(r.Disks) {
		return zerr.New(zerr.InvalidDisk, "select_disk", nil)
	}
	r.SelectedDisk = idx
	r.SelectedPartition = -1
	return nil
}

// SelectPartition changes the current partition selection within the
// current disk.
func (r *Registry) SelectPartition(slot int) error {
	if r.CurrentDisk() == nil {
		return zerr.New(zerr.InvalidDisk, "select_partition", nil)
	}
	if slot < 0 || slot >= mbr.MaxSlots {
		return zerr.New(zerr.InvalidDisk, "select_partition", nil)
	}
	r.SelectedPartition = slot
	return nil
}
