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
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Visitor is an interface that must
// be satisfied by the argument to Visit.
//
// A Visitor's Visit method is invoked for each node encountered by Walk. If
// the result visitor w is not nil, Walk visits each of the children of node
// with the visitor w, followed by a call of w.Visit(nil).
//
// (see also: ast.Visitor)
type Visitor interface {
	Visit(Node) Visitor
}

// Walk traverses an expression tree in depth-first order: It starts by
// calling v.Visit(node); node must not be nil. If the visitor w returned by
// v.Visit(node) is not nil, Walk is invoked recursively with visitor w for
// each of the non-nil children of node, followed by a call of w.Visit(nil).
//
// (see also: ast.Walk)
func Walk(v Visitor, n Node) {
	w := v.Visit(n)
	if w != nil {
		n.walk(w)
		w.Visit(nil)
	}
}

// WalkFunc adapts a function to the Visitor
// interface. The function is called for every
// node; traversal continues while it returns true.
type WalkFunc func(Node) bool

func (f WalkFunc) Visit(n Node) Visitor {
	if n == nil || !f(n) {
		return nil
	}
	return f
}

type Printable interface {
	// text writes the textual representation
	// of this node to dst
	text(dst *strings.Builder)
}

// Node is an expression tree node
type Node interface {
	Printable
	// Equals returns whether this node
	// is syntactically equivalent to another node.
	Equals(Node) bool

	walk(Visitor)
}

// ToString returns the string representation
// of an expression node and its children.
func ToString(p Printable) string {
	if p == nil {
		return "<nil>"
	}
	var dst strings.Builder
	p.text(&dst)
	return dst.String()
}

// Equal returns whether a and b are equivalent.
// a or b may be nil.
func Equal(a, b Node) bool {
	if a == nil {
		return b == nil
	}
	return b != nil && a.Equals(b)
}

func equalNodes(a, b []Node) bool {
	return slices.EqualFunc(a, b, Equal)
}

// Column is a reference to a named input column.
type Column string

// Col constructs a column reference.
func Col(name string) Column { return Column(name) }

// Name returns the referenced column name.
func (c Column) Name() string { return string(c) }

func (c Column) text(dst *strings.Builder) {
	fmt.Fprintf(dst, "col(%q)", string(c))
}

func (c Column) Equals(e Node) bool {
	ec, ok := e.(Column)
	return ok && c == ec
}

func (c Column) walk(v Visitor) {}

// Alias renames the output of its inner
// expression. It does not change the
// computed value.
type Alias struct {
	Expr Node
	Name string
}

// As constructs an Alias.
func As(e Node, name string) *Alias {
	return &Alias{Expr: e, Name: name}
}

func (a *Alias) text(dst *strings.Builder) {
	a.Expr.text(dst)
	fmt.Fprintf(dst, ".alias(%q)", a.Name)
}

func (a *Alias) Equals(e Node) bool {
	ea, ok := e.(*Alias)
	return ok && a.Name == ea.Name && a.Expr.Equals(ea.Expr)
}

func (a *Alias) walk(v Visitor) {
	Walk(v, a.Expr)
}

// BinaryOp is one of the binary operators.
type BinaryOp int

const (
	OpNone BinaryOp = iota
	OpEq
	OpNotEq
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpPlus
	OpMinus
	OpMultiply
	OpDivide
	OpFloorDivide
	OpModulus
	OpAnd
	OpOr
	OpXor
)

func (o BinaryOp) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpNotEq:
		return "!="
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpFloorDivide:
		return "//"
	case OpModulus:
		return "%"
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpXor:
		return "^"
	default:
		return "<invalid op>"
	}
}

// IsComparison returns whether o yields
// a boolean regardless of its operand types.
func (o BinaryOp) IsComparison() bool {
	switch o {
	case OpEq, OpNotEq, OpLess, OpLessEq, OpGreater, OpGreaterEq:
		return true
	}
	return false
}

// Binary is a binary operator applied
// to two expressions.
type Binary struct {
	Left  Node
	Op    BinaryOp
	Right Node
}

// Add constructs (left + right)
func Add(left, right Node) *Binary { return &Binary{Left: left, Op: OpPlus, Right: right} }

// Sub constructs (left - right)
func Sub(left, right Node) *Binary { return &Binary{Left: left, Op: OpMinus, Right: right} }

// Mul constructs (left * right)
func Mul(left, right Node) *Binary { return &Binary{Left: left, Op: OpMultiply, Right: right} }

// Div constructs (left / right)
func Div(left, right Node) *Binary { return &Binary{Left: left, Op: OpDivide, Right: right} }

// Mod constructs (left % right)
func Mod(left, right Node) *Binary { return &Binary{Left: left, Op: OpModulus, Right: right} }

// Eq constructs (left == right)
func Eq(left, right Node) *Binary { return &Binary{Left: left, Op: OpEq, Right: right} }

// Less constructs (left < right)
func Less(left, right Node) *Binary { return &Binary{Left: left, Op: OpLess, Right: right} }

// Greater constructs (left > right)
func Greater(left, right Node) *Binary { return &Binary{Left: left, Op: OpGreater, Right: right} }

// And constructs (left & right)
func And(left, right Node) *Binary { return &Binary{Left: left, Op: OpAnd, Right: right} }

// Or constructs (left | right)
func Or(left, right Node) *Binary { return &Binary{Left: left, Op: OpOr, Right: right} }

func (b *Binary) text(dst *strings.Builder) {
	dst.WriteByte('(')
	b.Left.text(dst)
	dst.WriteByte(' ')
	dst.WriteString(b.Op.String())
	dst.WriteByte(' ')
	b.Right.text(dst)
	dst.WriteByte(')')
}

func (b *Binary) Equals(e Node) bool {
	eb, ok := e.(*Binary)
	return ok && b.Op == eb.Op &&
		b.Left.Equals(eb.Left) && b.Right.Equals(eb.Right)
}

func (b *Binary) walk(v Visitor) {
	Walk(v, b.Left)
	Walk(v, b.Right)
}

// Cast converts its inner expression
// to the target type.
type Cast struct {
	Expr Node
	To   DataType
	// Strict casts fail on out-of-range
	// values instead of producing nulls.
	Strict bool
}

func (c *Cast) text(dst *strings.Builder) {
	c.Expr.text(dst)
	fmt.Fprintf(dst, ".cast(%s)", c.To)
}

func (c *Cast) Equals(e Node) bool {
	ec, ok := e.(*Cast)
	return ok && c.Strict == ec.Strict &&
		c.To.Equal(ec.To) && c.Expr.Equals(ec.Expr)
}

func (c *Cast) walk(v Visitor) {
	Walk(v, c.Expr)
}

// Gather selects elements of Expr at the
// positions produced by Idx.
type Gather struct {
	Expr Node
	Idx  Node
	// ReturnsScalar marks a single-index
	// gather whose output is a scalar.
	ReturnsScalar bool
}

func (g *Gather) text(dst *strings.Builder) {
	g.Expr.text(dst)
	dst.WriteString(".gather(")
	g.Idx.text(dst)
	dst.WriteByte(')')
}

func (g *Gather) Equals(e Node) bool {
	eg, ok := e.(*Gather)
	return ok && g.ReturnsScalar == eg.ReturnsScalar &&
		g.Expr.Equals(eg.Expr) && g.Idx.Equals(eg.Idx)
}

func (g *Gather) walk(v Visitor) {
	Walk(v, g.Expr)
	Walk(v, g.Idx)
}

// SortOptions configures a single-column sort.
type SortOptions struct {
	Descending bool
	NullsLast  bool
	// MaintainOrder keeps the original order
	// of equal elements.
	MaintainOrder bool
}

// SortMultipleOptions configures a sort by
// several key expressions. Descending and
// NullsLast are either empty, a single
// element applied to every key, or one
// element per key.
type SortMultipleOptions struct {
	Descending    []bool
	NullsLast     []bool
	MaintainOrder bool
}

// Sort sorts the values of its inner expression.
type Sort struct {
	Expr    Node
	Options SortOptions
}

func (s *Sort) text(dst *strings.Builder) {
	s.Expr.text(dst)
	if s.Options.Descending {
		dst.WriteString(".sort(descending)")
	} else {
		dst.WriteString(".sort()")
	}
}

func (s *Sort) Equals(e Node) bool {
	es, ok := e.(*Sort)
	return ok && s.Options == es.Options && s.Expr.Equals(es.Expr)
}

func (s *Sort) walk(v Visitor) {
	Walk(v, s.Expr)
}

// SortBy sorts the values of Expr by
// one or more key expressions.
type SortBy struct {
	Expr    Node
	By      []Node
	Options SortMultipleOptions
}

func (s *SortBy) text(dst *strings.Builder) {
	s.Expr.text(dst)
	dst.WriteString(".sort_by(")
	for i := range s.By {
		if i > 0 {
			dst.WriteString(", ")
		}
		s.By[i].text(dst)
	}
	dst.WriteByte(')')
}

func (s *SortBy) Equals(e Node) bool {
	es, ok := e.(*SortBy)
	return ok && s.Options.MaintainOrder == es.Options.MaintainOrder &&
		slices.Equal(s.Options.Descending, es.Options.Descending) &&
		slices.Equal(s.Options.NullsLast, es.Options.NullsLast) &&
		s.Expr.Equals(es.Expr) && equalNodes(s.By, es.By)
}

func (s *SortBy) walk(v Visitor) {
	Walk(v, s.Expr)
	for i := range s.By {
		Walk(v, s.By[i])
	}
}

// Filter keeps the elements of Input for
// which By evaluates to true.
type Filter struct {
	Input Node
	By    Node
}

func (f *Filter) text(dst *strings.Builder) {
	f.Input.text(dst)
	dst.WriteString(".filter(")
	f.By.text(dst)
	dst.WriteByte(')')
}

func (f *Filter) Equals(e Node) bool {
	ef, ok := e.(*Filter)
	return ok && f.Input.Equals(ef.Input) && f.By.Equals(ef.By)
}

func (f *Filter) walk(v Visitor) {
	Walk(v, f.Input)
	Walk(v, f.By)
}

// Ternary evaluates to Truthy where
// Predicate holds and Falsy elsewhere.
type Ternary struct {
	Predicate Node
	Truthy    Node
	Falsy     Node
}

// If constructs a Ternary.
func If(predicate, truthy, falsy Node) *Ternary {
	return &Ternary{Predicate: predicate, Truthy: truthy, Falsy: falsy}
}

func (t *Ternary) text(dst *strings.Builder) {
	dst.WriteString("when(")
	t.Predicate.text(dst)
	dst.WriteString(").then(")
	t.Truthy.text(dst)
	dst.WriteString(").otherwise(")
	t.Falsy.text(dst)
	dst.WriteByte(')')
}

func (t *Ternary) Equals(e Node) bool {
	et, ok := e.(*Ternary)
	return ok && t.Predicate.Equals(et.Predicate) &&
		t.Truthy.Equals(et.Truthy) && t.Falsy.Equals(et.Falsy)
}

func (t *Ternary) walk(v Visitor) {
	Walk(v, t.Predicate)
	Walk(v, t.Truthy)
	Walk(v, t.Falsy)
}

// WindowMapping describes how window
// function results map back to rows.
type WindowMapping int

const (
	// MapGroupsToRows maps each aggregated
	// group value back onto its source rows.
	MapGroupsToRows WindowMapping = iota
	// MapExplode flattens the group results.
	MapExplode
	// MapJoin joins group results as lists.
	MapJoin
)

func (m WindowMapping) String() string {
	switch m {
	case MapExplode:
		return "explode"
	case MapJoin:
		return "join"
	default:
		return "groups_to_rows"
	}
}

// Window evaluates Function over partitions
// of the frame rather than the whole column.
type Window struct {
	Function    Node
	PartitionBy []Node
	// OrderBy is optional; nil means the
	// partition order is unspecified.
	OrderBy      Node
	OrderOptions SortOptions
	Mapping      WindowMapping
}

func (w *Window) text(dst *strings.Builder) {
	w.Function.text(dst)
	dst.WriteString(".over(")
	for i := range w.PartitionBy {
		if i > 0 {
			dst.WriteString(", ")
		}
		w.PartitionBy[i].text(dst)
	}
	dst.WriteByte(')')
}

func (w *Window) Equals(e Node) bool {
	ew, ok := e.(*Window)
	return ok && w.Mapping == ew.Mapping &&
		w.OrderOptions == ew.OrderOptions &&
		w.Function.Equals(ew.Function) &&
		equalNodes(w.PartitionBy, ew.PartitionBy) &&
		Equal(w.OrderBy, ew.OrderBy)
}

func (w *Window) walk(v Visitor) {
	Walk(v, w.Function)
	for i := range w.PartitionBy {
		Walk(v, w.PartitionBy[i])
	}
	if w.OrderBy != nil {
		Walk(v, w.OrderBy)
	}
}

// Slice keeps Length elements of Input
// starting at Offset. Offset and Length
// are expressions so that they can depend
// on the data (e.g. len()-1).
type Slice struct {
	Input  Node
	Offset Node
	Length Node
}

func (s *Slice) text(dst *strings.Builder) {
	s.Input.text(dst)
	dst.WriteString(".slice(")
	s.Offset.text(dst)
	dst.WriteString(", ")
	s.Length.text(dst)
	dst.WriteByte(')')
}

func (s *Slice) Equals(e Node) bool {
	es, ok := e.(*Slice)
	return ok && s.Input.Equals(es.Input) &&
		s.Offset.Equals(es.Offset) && s.Length.Equals(es.Length)
}

func (s *Slice) walk(v Visitor) {
	Walk(v, s.Input)
	Walk(v, s.Offset)
	Walk(v, s.Length)
}

// Explode flattens each list element of
// Expr into one output row per element.
type Explode struct {
	Expr Node
	// SkipEmpty drops empty lists instead
	// of producing a null row.
	SkipEmpty bool
}

func (x *Explode) text(dst *strings.Builder) {
	x.Expr.text(dst)
	dst.WriteString(".explode()")
}

func (x *Explode) Equals(e Node) bool {
	ex, ok := e.(*Explode)
	return ok && x.SkipEmpty == ex.SkipEmpty && x.Expr.Equals(ex.Expr)
}

func (x *Explode) walk(v Visitor) {
	Walk(v, x.Expr)
}

// EvalVariant selects how an Eval expression
// applies its evaluation expression.
type EvalVariant int

const (
	// EvalList evaluates over each list
	// element of the input.
	EvalList EvalVariant = iota
	// EvalCumulative evaluates over each
	// growing prefix of the input; the
	// evaluation must produce a scalar.
	EvalCumulative
)

func (ev EvalVariant) String() string {
	if ev == EvalCumulative {
		return "cumulative_eval"
	}
	return "list.eval"
}

// Eval applies Evaluation element-wise over
// the nested values of Expr. Inside Evaluation,
// the element is referred to by the empty
// column name.
type Eval struct {
	Expr       Node
	Evaluation Node
	Variant    EvalVariant
	// MinSamples is the minimum prefix length
	// for the cumulative variant.
	MinSamples int
}

func (ev *Eval) text(dst *strings.Builder) {
	ev.Expr.text(dst)
	dst.WriteByte('.')
	dst.WriteString(ev.Variant.String())
	dst.WriteByte('(')
	ev.Evaluation.text(dst)
	dst.WriteByte(')')
}

func (ev *Eval) Equals(e Node) bool {
	ee, ok := e.(*Eval)
	return ok && ev.Variant == ee.Variant &&
		ev.MinSamples == ee.MinSamples &&
		ev.Expr.Equals(ee.Expr) &&
		ev.Evaluation.Equals(ee.Evaluation)
}

func (ev *Eval) walk(v Visitor) {
	Walk(v, ev.Expr)
	Walk(v, ev.Evaluation)
}

// LenName is the reserved output name
// of the Len expression.
const LenName = "len"

// Len is the number of rows in the frame.
type Len struct{}

func (Len) text(dst *strings.Builder) {
	dst.WriteString("len()")
}

func (Len) Equals(e Node) bool {
	_, ok := e.(Len)
	return ok
}

func (Len) walk(v Visitor) {}

// KeepName renames the output of Expr
// back to its leftmost column input.
type KeepName struct {
	Expr Node
}

func (k *KeepName) text(dst *strings.Builder) {
	k.Expr.text(dst)
	dst.WriteString(".name.keep()")
}

func (k *KeepName) Equals(e Node) bool {
	ek, ok := e.(*KeepName)
	return ok && k.Expr.Equals(ek.Expr)
}

func (k *KeepName) walk(v Visitor) {
	Walk(v, k.Expr)
}

// RenameFunc is a pure transform applied
// to an inherited output name.
type RenameFunc func(string) (string, error)

// RenameAlias transforms the output name
// of Expr with Fn.
type RenameAlias struct {
	Expr Node
	Fn   RenameFunc
}

func (r *RenameAlias) text(dst *strings.Builder) {
	r.Expr.text(dst)
	dst.WriteString(".name.map(<fn>)")
}

// Equals compares the inner expressions only;
// the rename function itself is not comparable.
func (r *RenameAlias) Equals(e Node) bool {
	er, ok := e.(*RenameAlias)
	return ok && r.Expr.Equals(er.Expr)
}

func (r *RenameAlias) walk(v Visitor) {
	Walk(v, r.Expr)
}

// Field accesses a single field of the
// enclosing struct scope. It is only
// meaningful inside expressions that
// establish such a scope.
type Field struct {
	Name string
}

func (f *Field) text(dst *strings.Builder) {
	fmt.Fprintf(dst, "field(%q)", f.Name)
}

func (f *Field) Equals(e Node) bool {
	ef, ok := e.(*Field)
	return ok && f.Name == ef.Name
}

func (f *Field) walk(v Visitor) {}

// SubPlan embeds the result of another plan
// into an expression. SubPlans must be
// expanded before lowering; the lowering
// pass rejects them.
type SubPlan struct {
	Plan interface{}
}

func (s *SubPlan) text(dst *strings.Builder) {
	dst.WriteString("<subplan>")
}

func (s *SubPlan) Equals(e Node) bool { return false }

func (s *SubPlan) walk(v Visitor) {}

// Selector is a multi-column selection
// pattern. Selectors must be expanded
// into concrete columns before lowering;
// the lowering pass rejects them.
type Selector struct {
	Pattern string
}

func (s *Selector) text(dst *strings.Builder) {
	fmt.Fprintf(dst, "selector(%q)", s.Pattern)
}

func (s *Selector) Equals(e Node) bool {
	es, ok := e.(*Selector)
	return ok && s.Pattern == es.Pattern
}

func (s *Selector) walk(v Visitor) {}
