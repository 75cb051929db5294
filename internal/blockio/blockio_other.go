//go:build !linux
// +build !linux

package blockio

import "os"

// deviceSize falls back to seeking to the end of the handle. Precise
// device-size and sector-size discovery via platform ioctls (Windows
// IOCTL_DISK_GET_DRIVE_GEOMETRY, macOS DKIOCGETBLOCKCOUNT) is part of the
// platform device-probe contract in spec.md §6, out of this engine's
// scope; this fallback keeps the block layer usable against regular
// image files on every platform.
func deviceSize(f *os.File, info os.FileInfo) (int64, error) {
	if info.Mode()&os.ModeDevice == 0 {
		return info.Size(), nil
	}
	end, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, os.SEEK_SET); err != nil {
		return 0, err
	}
	return end, nil
}
