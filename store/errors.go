// Copyright 2026 The Quarry Authors
// This file is part of Quarry.
//
// Quarry is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Quarry is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Quarry. If not, see <http://www.gnu.org/licenses/>.

package store

import (
	"errors"
	"fmt"
)

// Code is one of the error kinds surfaced by backends and the façade.
type Code int

const (
	// CodeNotFound: no object with that id in any reachable backend.
	CodeNotFound Code = iota
	// CodeTypeMismatch: header type disagrees with a non-Index expected type.
	CodeTypeMismatch
	// CodeCorruption: checksum failure, decompression failure, part-size
	// mismatch, missing delta base, or an oversized object.
	CodeCorruption
	// CodeCapacityExceeded: content exceeds a backend's per-object limit.
	CodeCapacityExceeded
	// CodeInvalidArgument: malformed hex hash or oversized header size field.
	CodeInvalidArgument
	// CodeIO: an underlying filesystem error.
	CodeIO
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeTypeMismatch:
		return "type_mismatch"
	case CodeCorruption:
		return "corruption"
	case CodeCapacityExceeded:
		return "capacity_exceeded"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is a typed store error: a Code plus a wrapped cause. It supports
// errors.Is against the Code sentinels below and errors.As to recover the
// Code of an arbitrary wrapped error.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("store: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, store.ErrNotFound) style checks against the
// Code sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors usable with errors.Is; only Code is compared.
var (
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrTypeMismatch     = &Error{Code: CodeTypeMismatch}
	ErrCorruption       = &Error{Code: CodeCorruption}
	ErrCapacityExceeded = &Error{Code: CodeCapacityExceeded}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument}
	ErrIO               = &Error{Code: CodeIO}
)

func newErr(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func NotFoundf(op string, format string, args ...any) error {
	return newErr(CodeNotFound, op, fmt.Errorf(format, args...))
}

func TypeMismatchf(op string, format string, args ...any) error {
	return newErr(CodeTypeMismatch, op, fmt.Errorf(format, args...))
}

func Corruptf(op string, format string, args ...any) error {
	return newErr(CodeCorruption, op, fmt.Errorf(format, args...))
}

func CapacityExceededf(op string, format string, args ...any) error {
	return newErr(CodeCapacityExceeded, op, fmt.Errorf(format, args...))
}

func InvalidArgumentf(op string, format string, args ...any) error {
	return newErr(CodeInvalidArgument, op, fmt.Errorf(format, args...))
}

func IOErrorf(op string, err error) error {
	return newErr(CodeIO, op, err)
}

// CodeOf extracts the Code of err if it (or something it wraps) is a *Error.
// For any other error it returns the zero Code and false.
func CodeOf(err error) (Code, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
