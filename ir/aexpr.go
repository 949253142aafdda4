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

package ir

import (
	"github.com/kestreldb/kestrel/expr"
)

// AExpr is one expression operation stored in
// an ExprArena. Variants reference their children
// by Node handle, never by value.
//
// The set of implementations is closed; consumers
// switch exhaustively over the concrete types.
type AExpr interface {
	// Children appends the child expression
	// handles in canonical order.
	Children(dst []Node) []Node
	// WithChildren returns a copy of the node
	// with its child handles replaced. The
	// replacement slice must have the same
	// length and order that Children produces.
	WithChildren(kids []Node) AExpr

	irExpr()
}

// want1 asserts the arity of a WithChildren call.
func want1(kids []Node) Node {
	if len(kids) != 1 {
		panic("ir: WithChildren arity mismatch")
	}
	return kids[0]
}

func want2(kids []Node) (Node, Node) {
	if len(kids) != 2 {
		panic("ir: WithChildren arity mismatch")
	}
	return kids[0], kids[1]
}

func want3(kids []Node) (Node, Node, Node) {
	if len(kids) != 3 {
		panic("ir: WithChildren arity mismatch")
	}
	return kids[0], kids[1], kids[2]
}

// AColumn is a reference to a named input column.
type AColumn struct {
	Name string
}

func (*AColumn) irExpr() {}

func (c *AColumn) Children(dst []Node) []Node { return dst }

func (c *AColumn) WithChildren(kids []Node) AExpr {
	if len(kids) != 0 {
		panic("ir: WithChildren arity mismatch")
	}
	return c
}

// ALiteral is a constant value.
type ALiteral struct {
	Value *expr.Literal
}

func (*ALiteral) irExpr() {}

func (l *ALiteral) Children(dst []Node) []Node { return dst }

func (l *ALiteral) WithChildren(kids []Node) AExpr {
	if len(kids) != 0 {
		panic("ir: WithChildren arity mismatch")
	}
	return l
}

// ABinary applies a binary operator to two expressions.
type ABinary struct {
	Left  Node
	Op    expr.BinaryOp
	Right Node
}

func (*ABinary) irExpr() {}

func (b *ABinary) Children(dst []Node) []Node {
	return append(dst, b.Left, b.Right)
}

func (b *ABinary) WithChildren(kids []Node) AExpr {
	l, r := want2(kids)
	return &ABinary{Left: l, Op: b.Op, Right: r}
}

// ACast converts an expression to a target type.
type ACast struct {
	Expr   Node
	To     expr.DataType
	Strict bool
}

func (*ACast) irExpr() {}

func (c *ACast) Children(dst []Node) []Node { return append(dst, c.Expr) }

func (c *ACast) WithChildren(kids []Node) AExpr {
	return &ACast{Expr: want1(kids), To: c.To, Strict: c.Strict}
}

// AGather selects elements at the given index positions.
type AGather struct {
	Expr          Node
	Idx           Node
	ReturnsScalar bool
}

func (*AGather) irExpr() {}

func (g *AGather) Children(dst []Node) []Node {
	return append(dst, g.Expr, g.Idx)
}

func (g *AGather) WithChildren(kids []Node) AExpr {
	e, idx := want2(kids)
	return &AGather{Expr: e, Idx: idx, ReturnsScalar: g.ReturnsScalar}
}

// ASort sorts the values of its input.
type ASort struct {
	Expr    Node
	Options expr.SortOptions
}

func (*ASort) irExpr() {}

func (s *ASort) Children(dst []Node) []Node { return append(dst, s.Expr) }

func (s *ASort) WithChildren(kids []Node) AExpr {
	return &ASort{Expr: want1(kids), Options: s.Options}
}

// ASortBy sorts its input by one or more keys.
type ASortBy struct {
	Expr    Node
	By      []Node
	Options expr.SortMultipleOptions
}

func (*ASortBy) irExpr() {}

func (s *ASortBy) Children(dst []Node) []Node {
	dst = append(dst, s.Expr)
	return append(dst, s.By...)
}

func (s *ASortBy) WithChildren(kids []Node) AExpr {
	if len(kids) != 1+len(s.By) {
		panic("ir: WithChildren arity mismatch")
	}
	out := &ASortBy{Expr: kids[0], Options: s.Options}
	out.By = append([]Node(nil), kids[1:]...)
	return out
}

// AFilter keeps the elements of Input where By is true.
type AFilter struct {
	Input Node
	By    Node
}

func (*AFilter) irExpr() {}

func (f *AFilter) Children(dst []Node) []Node {
	return append(dst, f.Input, f.By)
}

func (f *AFilter) WithChildren(kids []Node) AExpr {
	in, by := want2(kids)
	return &AFilter{Input: in, By: by}
}

// ATernary selects between two expressions by a predicate.
type ATernary struct {
	Predicate Node
	Truthy    Node
	Falsy     Node
}

func (*ATernary) irExpr() {}

func (t *ATernary) Children(dst []Node) []Node {
	return append(dst, t.Predicate, t.Truthy, t.Falsy)
}

func (t *ATernary) WithChildren(kids []Node) AExpr {
	p, tr, f := want3(kids)
	return &ATernary{Predicate: p, Truthy: tr, Falsy: f}
}

// AAgg is an aggregation over a single input.
type AAgg struct {
	Op            expr.AggOp
	Input         Node
	PropagateNaNs bool
	DDof          int
	IncludeNulls  bool
	// Quantile is the quantile parameter; it is
	// only valid when Op is AggQuantile.
	Quantile Node
	Method   expr.QuantileMethod
}

func (*AAgg) irExpr() {}

func (a *AAgg) Children(dst []Node) []Node {
	dst = append(dst, a.Input)
	if !a.Quantile.IsZero() {
		dst = append(dst, a.Quantile)
	}
	return dst
}

func (a *AAgg) WithChildren(kids []Node) AExpr {
	out := *a
	if a.Quantile.IsZero() {
		out.Input = want1(kids)
	} else {
		out.Input, out.Quantile = want2(kids)
	}
	return &out
}

// AWindow evaluates a function over partitions.
type AWindow struct {
	Function    Node
	PartitionBy []Node
	// OrderBy is the zero Node when absent.
	OrderBy      Node
	OrderOptions expr.SortOptions
	Mapping      expr.WindowMapping
}

func (*AWindow) irExpr() {}

func (w *AWindow) Children(dst []Node) []Node {
	dst = append(dst, w.Function)
	dst = append(dst, w.PartitionBy...)
	if !w.OrderBy.IsZero() {
		dst = append(dst, w.OrderBy)
	}
	return dst
}

func (w *AWindow) WithChildren(kids []Node) AExpr {
	want := 1 + len(w.PartitionBy)
	if !w.OrderBy.IsZero() {
		want++
	}
	if len(kids) != want {
		panic("ir: WithChildren arity mismatch")
	}
	out := &AWindow{
		Function:     kids[0],
		OrderOptions: w.OrderOptions,
		Mapping:      w.Mapping,
	}
	out.PartitionBy = append([]Node(nil), kids[1:1+len(w.PartitionBy)]...)
	if !w.OrderBy.IsZero() {
		out.OrderBy = kids[len(kids)-1]
	}
	return out
}

// ASlice keeps Length elements starting at Offset.
type ASlice struct {
	Input  Node
	Offset Node
	Length Node
}

func (*ASlice) irExpr() {}

func (s *ASlice) Children(dst []Node) []Node {
	return append(dst, s.Input, s.Offset, s.Length)
}

func (s *ASlice) WithChildren(kids []Node) AExpr {
	in, off, length := want3(kids)
	return &ASlice{Input: in, Offset: off, Length: length}
}

// AExplode flattens list values into rows.
type AExplode struct {
	Expr      Node
	SkipEmpty bool
}

func (*AExplode) irExpr() {}

func (x *AExplode) Children(dst []Node) []Node { return append(dst, x.Expr) }

func (x *AExplode) WithChildren(kids []Node) AExpr {
	return &AExplode{Expr: want1(kids), SkipEmpty: x.SkipEmpty}
}

// AEval applies Evaluation over the nested values
// of Expr. Inside Evaluation the element is the
// single column with the empty name.
type AEval struct {
	Expr       Node
	Evaluation Node
	Variant    expr.EvalVariant
	MinSamples int
}

func (*AEval) irExpr() {}

func (e *AEval) Children(dst []Node) []Node {
	return append(dst, e.Expr, e.Evaluation)
}

func (e *AEval) WithChildren(kids []Node) AExpr {
	ex, ev := want2(kids)
	return &AEval{Expr: ex, Evaluation: ev, Variant: e.Variant, MinSamples: e.MinSamples}
}

// ALen is the number of rows in the frame.
type ALen struct{}

func (*ALen) irExpr() {}

func (*ALen) Children(dst []Node) []Node { return dst }

func (l *ALen) WithChildren(kids []Node) AExpr {
	if len(kids) != 0 {
		panic("ir: WithChildren arity mismatch")
	}
	return l
}

// StructFieldByName is the function name of the
// struct field accessor produced by lowering a
// Field expression.
const StructFieldByName = "struct.field_by_name"

// AFunction is a named engine function call.
// Inputs are wrapped ExprRefs so that the
// per-input output names survive rewriting.
type AFunction struct {
	Inputs []ExprRef
	Name   string
	// FieldName is the accessed field when
	// Name is StructFieldByName.
	FieldName string
	Options   expr.FunctionOptions
}

func (*AFunction) irExpr() {}

func (f *AFunction) Children(dst []Node) []Node {
	for i := range f.Inputs {
		dst = append(dst, f.Inputs[i].Expr())
	}
	return dst
}

func (f *AFunction) WithChildren(kids []Node) AExpr {
	if len(kids) != len(f.Inputs) {
		panic("ir: WithChildren arity mismatch")
	}
	out := *f
	out.Inputs = make([]ExprRef, len(f.Inputs))
	for i := range kids {
		out.Inputs[i] = f.Inputs[i].WithExpr(kids[i])
	}
	return &out
}

// AAnonymous is an opaque user-defined function
// call. ResolvedType is the output type resolved
// against the lowering schema.
type AAnonymous struct {
	Inputs       []ExprRef
	Fn           expr.UserFunction
	Output       expr.OutputTypeFunc
	ResolvedType expr.DataType
	Options      expr.FunctionOptions
	FmtStr       string
}

func (*AAnonymous) irExpr() {}

func (a *AAnonymous) Children(dst []Node) []Node {
	for i := range a.Inputs {
		dst = append(dst, a.Inputs[i].Expr())
	}
	return dst
}

func (a *AAnonymous) WithChildren(kids []Node) AExpr {
	if len(kids) != len(a.Inputs) {
		panic("ir: WithChildren arity mismatch")
	}
	out := *a
	out.Inputs = make([]ExprRef, len(a.Inputs))
	for i := range kids {
		out.Inputs[i] = a.Inputs[i].WithExpr(kids[i])
	}
	return &out
}
