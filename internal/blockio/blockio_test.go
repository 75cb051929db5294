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
package blockio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempImage(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func TestOpenNonexistentPathFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.img"), false)
	require.Error(t, err)
}

func TestOpenReportsImageSize(t *testing.T) {
	path := tempImage(t, 64*1024)
	h, err := Open(path, false)
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, int64(64*1024), h.Size())
	require.Equal(t, path, h.Path())
}

func TestWriteAtReadAtRoundTripImageFile(t *testing.T) {
	path := tempImage(t, 4096)
	h, err := Open(path, true)
	require.NoError(t, err)
	defer h.Close()

	payload := []byte("hello, block device")
	n, err := h.WriteAt(payload, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = h.ReadAt(out, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestReadFullShortReadErrorsPastEnd(t *testing.T) {
	path := tempImage(t, 16)
	h, err := Open(path, true)
	require.NoError(t, err)
	defer h.Close()

	// An image file accepts writes past its nominal size (the OS grows the
	// file), so exercise ReadFull's short-read detection instead: reading
	// past EOF returns fewer bytes than requested.
	err = h.ReadFull(make([]byte, 64), 0)
	require.Error(t, err)
}

func TestReadAlignedHandlesUnalignedOffsetAndLength(t *testing.T) {
	path := tempImage(t, 4*SectorSize)
	raw, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer raw.Close()

	full := bytes.Repeat([]byte{0xAB}, 4*SectorSize)
	_, err = raw.WriteAt(full, 0)
	require.NoError(t, err)

	h := &Handle{path: path, file: raw, isDevice: true, size: 4 * SectorSize}

	out := make([]byte, 10)
	n, err := h.readAligned(out, SectorSize+5)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, bytes.Repeat([]byte{0xAB}, 10), out)
}

func TestWriteAlignedPreservesNeighbouringBytes(t *testing.T) {
	path := tempImage(t, 2*SectorSize)
	raw, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer raw.Close()

	sentinel := bytes.Repeat([]byte{0xFF}, 2*SectorSize)
	_, err = raw.WriteAt(sentinel, 0)
	require.NoError(t, err)

	h := &Handle{path: path, file: raw, isDevice: true, size: 2 * SectorSize}

	payload := []byte("mid")
	n, err := h.writeAligned(payload, SectorSize+4)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	sector := make([]byte, SectorSize)
	_, err = raw.ReadAt(sector, SectorSize)
	require.NoError(t, err)

	require.Equal(t, byte(0xFF), sector[0])
	require.Equal(t, byte(0xFF), sector[3])
	require.Equal(t, []byte("mid"), sector[4:7])
	require.Equal(t, byte(0xFF), sector[7])
	require.Equal(t, byte(0xFF), sector[SectorSize-1])
}
