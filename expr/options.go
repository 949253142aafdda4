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

import "strings"

// FunctionFlags describe behavioral contracts
// of a function call that optimizer passes rely
// on without inspecting the implementation.
// Nothing in this module enforces them.
type FunctionFlags uint16

const (
	// AllowRename: the function may change
	// the name of its output column.
	AllowRename FunctionFlags = 1 << iota
	// PassNameToApply: inside a group-by,
	// the input series keeps its name when
	// handed to the function.
	PassNameToApply
	// InputWildcardExpansion: wildcard inputs
	// expand to one function call over all
	// columns rather than one call per column.
	InputWildcardExpansion
	// ReturnsScalar: the output is a scalar
	// regardless of input length. Mutually
	// exclusive with LengthPreserving.
	ReturnsScalar
	// OptionalReentrant: the function may
	// re-enter the engine, so it must not
	// run on the engine's own thread pool.
	OptionalReentrant
	// AllowEmptyInputs: the function accepts
	// an empty input list.
	AllowEmptyInputs
	// RowSeparable: f(concat(a, b)) == concat(f(a), f(b)).
	RowSeparable
	// LengthPreserving: the output length
	// equals the input length.
	LengthPreserving
	// PreservesNullFirstInput: nulls in the
	// first input stay null in the output.
	PreservesNullFirstInput
	// PreservesNullAllInputs: nulls in any
	// input stay null in the output.
	PreservesNullAllInputs
)

var flagNames = []struct {
	flag FunctionFlags
	name string
}{
	{AllowRename, "ALLOW_RENAME"},
	{PassNameToApply, "PASS_NAME_TO_APPLY"},
	{InputWildcardExpansion, "INPUT_WILDCARD_EXPANSION"},
	{ReturnsScalar, "RETURNS_SCALAR"},
	{OptionalReentrant, "OPTIONAL_RE_ENTRANT"},
	{AllowEmptyInputs, "ALLOW_EMPTY_INPUTS"},
	{RowSeparable, "ROW_SEPARABLE"},
	{LengthPreserving, "LENGTH_PRESERVING"},
	{PreservesNullFirstInput, "PRESERVES_NULL_FIRST_INPUT"},
	{PreservesNullAllInputs, "PRESERVES_NULL_ALL_INPUTS"},
}

// Contains returns whether every flag in f2 is set in f.
func (f FunctionFlags) Contains(f2 FunctionFlags) bool {
	return f&f2 == f2
}

func (f FunctionFlags) String() string {
	if f == 0 {
		return "0"
	}
	var sb strings.Builder
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			if sb.Len() > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(fn.name)
		}
	}
	return sb.String()
}

// FunctionOptions carries the metadata
// attached to a function-call expression.
type FunctionOptions struct {
	Flags FunctionFlags
}

// ElementwiseOptions are the options of a
// row-separable, length-preserving function.
func ElementwiseOptions() FunctionOptions {
	return FunctionOptions{Flags: RowSeparable | LengthPreserving}
}

// LengthPreservingOptions are the options of a
// function that preserves its input length but
// is not row-separable (e.g. cumulative sums).
func LengthPreservingOptions() FunctionOptions {
	return FunctionOptions{Flags: LengthPreserving}
}

// AggregationOptions are the options of a
// function that reduces its input to a scalar.
func AggregationOptions() FunctionOptions {
	return FunctionOptions{Flags: ReturnsScalar}
}

// IsElementwise returns whether the function
// is row-separable and length-preserving.
func (o FunctionOptions) IsElementwise() bool {
	return o.Flags.Contains(RowSeparable | LengthPreserving)
}

// ReturnsScalar returns whether the function
// output is a scalar.
func (o FunctionOptions) ReturnsScalar() bool {
	return o.Flags.Contains(ReturnsScalar)
}

// Check validates that the flag combination
// is coherent.
func (o FunctionOptions) Check() error {
	if o.Flags.Contains(ReturnsScalar) && o.Flags.Contains(LengthPreserving) {
		return Errorf(InvalidOperation,
			"function cannot be both scalar-returning and length-preserving")
	}
	return nil
}
