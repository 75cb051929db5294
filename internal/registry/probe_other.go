//go:build !linux
// +build !linux

package registry

// LinuxProbe off Linux reports no candidates at all, so `zdisk list`
// finds no devices there. Windows (\\.\PhysicalDriveN) and macOS
// (/dev/rdiskN) device paths are not enumerated by this package.
type LinuxProbe struct{}

func (LinuxProbe) Candidates() ([]Candidate, error) { return nil, nil }
