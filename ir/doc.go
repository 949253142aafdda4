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

// Package ir implements the arena-allocated
// intermediate representation of query plans.
//
// Expressions built with the expr package are
// lowered (see Lower) into AExpr nodes held in
// an ExprArena and referenced by opaque Node
// handles. Relational operators are Op values
// held in a PlanArena and referenced by PlanNode
// handles. Optimizer passes rewrite plans through
// the generic CopyExprs / CopyInputs /
// WithExprsAndInput contract, which round-trips
// every operator without per-operator special
// cases beyond the documented child ordering.
//
// Arenas are append-only and single-writer:
// exactly one goroutine may mutate an arena at
// a time, and handles are only valid against
// the arena that issued them.
package ir
