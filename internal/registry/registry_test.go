package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zeal8bit/zdisk/internal/mbr"
	"github.com/Zeal8bit/zdisk/internal/zealfs"
)

func TestCreateImageWithMBR(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.img")

	r := New()
	d, err := r.CreateImage(path, 1<<20, true)
	require.NoError(t, err)
	require.True(t, d.IsImage)
	require.True(t, d.HasMBR)
	require.Equal(t, int64(1<<20), d.SizeBytes)
	require.Same(t, d, r.CurrentDisk())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, 1<<20)
	require.True(t, mbr.HasSignature(raw))
}

func TestCreateImageDuplicatePathRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.img")

	r := New()
	_, err := r.CreateImage(path, 1<<16, false)
	require.NoError(t, err)

	_, err = r.LoadImage(path)
	require.Error(t, err)
}

func TestRefreshPreservesImagesAndRefusesOnStagedChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.img")

	r := New()
	d, err := r.CreateImage(path, 2<<20, true)
	require.NoError(t, err)

	require.NoError(t, r.Refresh(emptyProbe{}))
	require.Len(t, r.Disks, 1)
	require.True(t, r.Disks[0].IsImage)

	require.NoError(t, d.AllocatePartition(2048, 2046, 1024, zealfs.Format))
	err = r.Refresh(emptyProbe{})
	require.Error(t, err)
}

type emptyProbe struct{}

func (emptyProbe) Candidates() ([]Candidate, error) { return nil, nil }
