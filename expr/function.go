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
	"strings"
)

// Function is a named engine function
// applied to zero or more inputs.
type Function struct {
	Name    string
	Inputs  []Node
	Options FunctionOptions
}

// Call constructs a named function call.
func Call(name string, inputs ...Node) *Function {
	return &Function{Name: name, Inputs: inputs, Options: ElementwiseOptions()}
}

func (f *Function) text(dst *strings.Builder) {
	dst.WriteString(f.Name)
	dst.WriteByte('(')
	for i := range f.Inputs {
		if i > 0 {
			dst.WriteString(", ")
		}
		f.Inputs[i].text(dst)
	}
	dst.WriteByte(')')
}

func (f *Function) Equals(e Node) bool {
	ef, ok := e.(*Function)
	return ok && f.Name == ef.Name &&
		f.Options == ef.Options &&
		equalNodes(f.Inputs, ef.Inputs)
}

func (f *Function) walk(v Visitor) {
	for i := range f.Inputs {
		Walk(v, f.Inputs[i])
	}
}

// UserFunction is a deferred user-supplied
// function implementation. Resolve validates
// the function against the schema it will
// run over; it is called once during lowering
// and must not have side effects.
type UserFunction interface {
	Resolve(schema *Schema) error
}

// OutputTypeFunc computes the declared output
// type of an anonymous function against the
// schema it will run over.
type OutputTypeFunc interface {
	Resolve(schema *Schema) (DataType, error)
}

// ConstantType adapts a fixed DataType to
// the OutputTypeFunc interface.
type ConstantType DataType

func (c ConstantType) Resolve(*Schema) (DataType, error) {
	return DataType(c), nil
}

// AnonymousFunction is an opaque user-defined
// function call. The engine cannot inspect Fn;
// Options describe the behavioral contract the
// optimizer may assume.
type AnonymousFunction struct {
	Inputs []Node
	Fn     UserFunction
	// Output declares the output type;
	// it is resolved during lowering.
	Output  OutputTypeFunc
	Options FunctionOptions
	// FmtStr is the display name, also used
	// as the output name when Inputs is empty.
	FmtStr string
}

func (a *AnonymousFunction) text(dst *strings.Builder) {
	name := a.FmtStr
	if name == "" {
		name = "anonymous"
	}
	dst.WriteString(name)
	dst.WriteByte('(')
	for i := range a.Inputs {
		if i > 0 {
			dst.WriteString(", ")
		}
		a.Inputs[i].text(dst)
	}
	dst.WriteByte(')')
}

// Equals compares structure and display name;
// the function implementations themselves are
// not comparable.
func (a *AnonymousFunction) Equals(e Node) bool {
	ea, ok := e.(*AnonymousFunction)
	return ok && a.FmtStr == ea.FmtStr &&
		a.Options == ea.Options &&
		equalNodes(a.Inputs, ea.Inputs)
}

func (a *AnonymousFunction) walk(v Visitor) {
	for i := range a.Inputs {
		Walk(v, a.Inputs[i])
	}
}
