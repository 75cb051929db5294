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

// Package zerr defines the error taxonomy shared by the block, registry,
// MBR editor and ZealFS engine layers.
package zerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure, independent of the message
// text attached to it. Callers should compare with errors.Is against the
// sentinel values below, never against Error.Error() text.
type Kind int

const (
	_ Kind = iota
	IoFailure
	NotAdmin
	NotRoot
	InvalidDisk
	NoSpace
	NotFound
	Exists
	IsDirectory
	NotDirectory
	NotEmpty
	NameTooLong
	SeekOutOfRange
	StagedChangesPresent
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case IoFailure:
		return "io failure"
	case NotAdmin:
		return "not admin"
	case NotRoot:
		return "not root"
	case InvalidDisk:
		return "invalid disk"
	case NoSpace:
		return "no space"
	case NotFound:
		return "not found"
	case Exists:
		return "already exists"
	case IsDirectory:
		return "is a directory"
	case NotDirectory:
		return "not a directory"
	case NotEmpty:
		return "not empty"
	case NameTooLong:
		return "name too long"
	case SeekOutOfRange:
		return "seek out of range"
	case StagedChangesPresent:
		return "staged changes present"
	case PermissionDenied:
		return "permission denied"
	default:
		return "unknown error"
	}
}

// Error wraps a Kind with the operation and optional underlying cause
// that produced it, composing like a plain fmt.Errorf("op: %w", err)
// chain but keeping the Kind available for callers that need to switch
// on it (e.g. the CLI's exit-code mapping).
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target names the same Kind, so callers can write
// errors.Is(err, zerr.NotFound).
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// Error lets a bare Kind value be used directly as an errors.Is target,
// e.g. errors.Is(err, zerr.NotFound).
func (k Kind) Error() string { return k.String() }

// New builds an *Error for op failing with kind, optionally wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithPath attaches a disk/file path to the error for display purposes.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Of returns the Kind of err if it (or something it wraps) is a *Error,
// and false otherwise.
func Of(err error) (Kind, bool) {
	var ze *Error
	if errors.As(err, &ze) {
		return ze.Kind, true
	}
	return 0, false
}

// Errorf is a convenience constructor mirroring fmt.Errorf's formatting
// but tagging the result with kind.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
