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

// Package expr implements the
// user-facing expression tree.
//
// Each of the expression node types
// satisfies the Node interface.
// Expressions built from this package
// are owned, recursive trees; the ir
// package lowers them into the compact
// arena representation consumed by
// the optimizer and the physical planner.
package expr
