// Copyright (C) 2023 Kestrel Data, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package expr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the recoverable
// errors produced by expression lowering
// and plan manipulation.
type ErrorKind int

const (
	// InvalidOperation indicates that an
	// expression was used in a context
	// where it is not meaningful (for example,
	// struct field access outside a struct scope).
	InvalidOperation ErrorKind = iota + 1
	// ShapeMismatch indicates a length or
	// arity mismatch between supplied values
	// and the expected cardinality.
	ShapeMismatch
	// Duplicate indicates a name collision.
	Duplicate
	// ComputeError indicates a semantic
	// violation detected while resolving
	// types or values.
	ComputeError
	// NoData indicates an empty input
	// where at least one value is required.
	NoData
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidOperation:
		return "invalid operation"
	case ShapeMismatch:
		return "shape mismatch"
	case Duplicate:
		return "duplicate"
	case ComputeError:
		return "compute error"
	case NoData:
		return "no data"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by
// lowering and schema operations.
// All Errors are recoverable; contract
// breaches inside this module panic instead.
type Error struct {
	Kind ErrorKind
	Msg  string
}

// Error implements error
func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Msg
}

// Errorf constructs an *Error of the
// given kind with a formatted message.
func Errorf(kind ErrorKind, f string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(f, args...)}
}

// IsError returns whether err is (or wraps)
// an *Error of the given kind.
func IsError(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
