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

import "github.com/kestreldb/kestrel/expr"

// IsScalar returns whether the expression rooted
// at n produces a single value regardless of the
// input length.
func IsScalar(a *ExprArena, n Node) bool {
	switch e := a.Get(n).(type) {
	case *ALiteral:
		return e.Value.IsScalar()
	case *AAgg:
		// agg_groups yields one list per group,
		// which does not project as a scalar
		return e.Op != expr.AggGroups
	case *ALen:
		return true
	case *ACast:
		return IsScalar(a, e.Expr)
	case *ATernary:
		return IsScalar(a, e.Truthy) && IsScalar(a, e.Falsy)
	case *ABinary:
		return IsScalar(a, e.Left) && IsScalar(a, e.Right)
	case *AGather:
		return e.ReturnsScalar
	case *AFunction:
		return e.Options.ReturnsScalar()
	case *AAnonymous:
		return e.Options.ReturnsScalar()
	default:
		return false
	}
}
