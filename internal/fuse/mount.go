//go:build !linux
// +build !linux

package fuse

import (
	"fmt"

	"github.com/Zeal8bit/zdisk/internal/zealfs"
)

func Mount(mountpoint string, s *zealfs.Session) error {
	return fmt.Errorf("FUSE mount is only supported on Linux")
}
