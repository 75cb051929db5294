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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zeal8bit/zdisk/internal/zerr"
)

// memProvider is an in-memory Provider backing a fixed-size byte slice,
// standing in for a blockio.Handle without needing a real temp file.
type memProvider struct {
	buf []byte
}

func newMemProvider(size int) *memProvider {
	return &memProvider{buf: make([]byte, size)}
}

func (m *memProvider) ReadAt(buf []byte, offset int64) error {
	copy(buf, m.buf[offset:])
	return nil
}

func (m *memProvider) WriteAt(buf []byte, offset int64) error {
	copy(m.buf[offset:], buf)
	return nil
}

// newFormatted formats and mounts a size-byte partition, returning its
// Session ready for file operations.
func newFormatted(t *testing.T, size int64) *Session {
	t.Helper()
	pageSize := PageSizeFor(size)
	scratch := make([]byte, 3*pageSize)
	require.NoError(t, Format(scratch, size))

	mp := newMemProvider(int(size))
	copy(mp.buf, scratch)

	return NewSession(mp)
}

func TestFormatFreeSpaceInvariant(t *testing.T) {
	const size = 1 << 20 // 1 MiB -> 1024-byte pages
	s := newFormatted(t, size)

	pageSize, err := s.PageSize()
	require.NoError(t, err)
	require.Equal(t, 1024, pageSize)

	total, err := s.TotalSpace()
	require.NoError(t, err)
	free, err := s.FreeSpace()
	require.NoError(t, err)

	totalPages := total / int64(pageSize)
	freePages := free / int64(pageSize)
	// Header page plus its FAT pages are reserved; everything else free.
	require.Equal(t, totalPages-freePages, int64(1+fatPages(pageSize)))
}

func TestCreateWriteFlushReadRoundTrip(t *testing.T) {
	s := newFormatted(t, 1<<20)

	fh, err := s.Create("/hello.txt")
	require.NoError(t, err)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	n, err := s.Write(fh, payload, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, s.Flush(fh))

	opened, err := s.Open("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint32(len(payload)), opened.Entry().Size)

	out := make([]byte, len(payload))
	n, err = s.Read(opened, out, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestWriteAcrossPageBoundaryChainsPages(t *testing.T) {
	s := newFormatted(t, 1<<20) // 1024-byte pages
	fh, err := s.Create("/big.bin")
	require.NoError(t, err)

	payload := make([]byte, 1024+100)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := s.Write(fh, payload, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, s.Flush(fh))

	opened, err := s.Open("/big.bin")
	require.NoError(t, err)
	out := make([]byte, len(payload))
	n, err = s.Read(opened, out, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestUnlinkFreesChainAndRemovesEntry(t *testing.T) {
	s := newFormatted(t, 1<<20)
	fh, err := s.Create("/gone.txt")
	require.NoError(t, err)
	_, err = s.Write(fh, []byte("bye"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Flush(fh))

	freeBefore, err := s.FreeSpace()
	require.NoError(t, err)

	require.NoError(t, s.Unlink("/gone.txt"))

	freeAfter, err := s.FreeSpace()
	require.NoError(t, err)
	require.Greater(t, freeAfter, freeBefore)

	_, err = s.Open("/gone.txt")
	require.ErrorIs(t, err, zerr.NotFound)
}

func TestMkdirRmdirNotEmpty(t *testing.T) {
	s := newFormatted(t, 1<<20)
	require.NoError(t, s.Mkdir("/dir"))

	_, err := s.Create("/dir/file.txt")
	require.NoError(t, err)

	err = s.Rmdir("/dir")
	require.ErrorIs(t, err, zerr.NotEmpty)

	require.NoError(t, s.Unlink("/dir/file.txt"))
	require.NoError(t, s.Rmdir("/dir"))

	_, err = s.Opendir("/dir")
	require.ErrorIs(t, err, zerr.NotFound)
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	s := newFormatted(t, 1<<20)
	_, err := s.Create("/a.txt")
	require.NoError(t, err)

	_, err = s.Create("/a.txt")
	require.ErrorIs(t, err, zerr.Exists)
}

func TestCreateNameTooLongRejected(t *testing.T) {
	s := newFormatted(t, 1<<20)
	longName := "/" + strings.Repeat("x", 17)
	_, err := s.Create(longName)
	require.ErrorIs(t, err, zerr.NameTooLong)
}

func TestWriteExactlyFreeSpaceSucceedsOneByteOverFails(t *testing.T) {
	const size = 64 * 1024 // smallest page size, 256 bytes
	s := newFormatted(t, size)

	fh, err := s.Create("/fill.bin")
	require.NoError(t, err)

	free, err := s.FreeSpace()
	require.NoError(t, err)

	exact := make([]byte, free)
	n, err := s.Write(fh, exact, 0)
	require.NoError(t, err)
	require.Equal(t, len(exact), n)

	// One more byte needs a page beyond the file's exactly-sized chain,
	// and every page is now spoken for.
	_, err = s.Write(fh, []byte{0}, int64(len(exact)))
	require.ErrorIs(t, err, zerr.NoSpace)
}

func TestReaddirListsCreatedEntries(t *testing.T) {
	s := newFormatted(t, 1<<20)
	require.NoError(t, s.Mkdir("/sub"))
	_, err := s.Create("/a.txt")
	require.NoError(t, err)
	_, err = s.Create("/b.txt")
	require.NoError(t, err)

	dh, err := s.Opendir("/")
	require.NoError(t, err)

	entries, err := s.Readdir(dh, 64)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.NameString()] = true
	}
	require.True(t, names["sub"])
	require.True(t, names["a.txt"])
	require.True(t, names["b.txt"])
}
