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

// ExprRef pairs an expression handle with its
// externally-visible output name. Every expression
// that is a direct child of a plan operator is
// wrapped in an ExprRef; sub-expressions inside
// an AExpr are bare Node handles.
//
// The name is either an explicit alias or
// inherited from the expression itself (a bare
// column reference keeps its column name).
type ExprRef struct {
	expr      Node
	name      string
	inherited bool
}

// NewAlias wraps an expression handle with an
// explicit output name.
func NewAlias(n Node, name string) ExprRef {
	return ExprRef{expr: n, name: name}
}

// NewInherited wraps an expression handle with
// the name baked into the expression itself.
func NewInherited(n Node, name string) ExprRef {
	return ExprRef{expr: n, name: name, inherited: true}
}

// Expr returns the underlying expression handle.
func (r ExprRef) Expr() Node { return r.expr }

// OutputName returns the name this expression
// is visible under in its plan operator.
func (r ExprRef) OutputName() string { return r.name }

// IsInherited returns whether the output name
// was inherited rather than explicitly aliased.
func (r ExprRef) IsInherited() bool { return r.inherited }

// WithExpr returns a copy of r pointing at a new
// expression handle, keeping the name policy.
func (r ExprRef) WithExpr(n Node) ExprRef {
	r.expr = n
	return r
}

// WithAlias returns a copy of r with an
// explicit output name.
func (r ExprRef) WithAlias(name string) ExprRef {
	r.name = name
	r.inherited = false
	return r
}

// Equal returns whether r and o reference the
// same node under the same visible name.
func (r ExprRef) Equal(o ExprRef) bool {
	return r.expr == o.expr && r.name == o.name && r.inherited == o.inherited
}
