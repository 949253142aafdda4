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

// WalkExpr visits the subtree rooted at n in
// depth-first pre-order, children left to right.
// Traversal continues while f returns true and
// stops early as soon as it returns false.
func (a *ExprArena) WalkExpr(n Node, f func(Node, AExpr) bool) bool {
	e := a.Get(n)
	if !f(n, e) {
		return false
	}
	for _, kid := range e.Children(nil) {
		if !a.WalkExpr(kid, f) {
			return false
		}
	}
	return true
}

// findName returns the leftmost inherited name
// in the subtree rooted at n: the first column
// reference or struct field access encountered.
func (a *ExprArena) findName(n Node) (string, bool) {
	var name string
	found := false
	a.WalkExpr(n, func(_ Node, e AExpr) bool {
		switch e := e.(type) {
		case *AColumn:
			name, found = e.Name, true
			return false
		case *AFunction:
			if e.Name == StructFieldByName {
				name, found = e.FieldName, true
				return false
			}
		}
		return true
	})
	return name, found
}
