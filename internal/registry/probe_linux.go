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
package registry

import "os"

// LinuxProbe implements Probe by checking every /dev/sd{a..z} path, per
// spec.md §6's "typical probed paths" table. It attempts a stat and skips
// silently on failure, needing only existence and size here - openDisk
// (registry.go) does the real open/validate/parse work once a candidate
// is known to exist.
type LinuxProbe struct{}

func (LinuxProbe) Candidates() ([]Candidate, error) {
	var out []Candidate
	for c := byte('a'); c <= 'z'; c++ {
		path := "/dev/sd" + string(c)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		out = append(out, Candidate{Path: path, SizeBytes: info.Size()})
	}
	return out, nil
}
