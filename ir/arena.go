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
	"fmt"
	"sync/atomic"
)

// arena tags distinguish handles issued by
// different arena instances; tag 0 is reserved
// so that the zero handle is always invalid.
var arenaTags uint32

func nextArenaTag() uint32 {
	return atomic.AddUint32(&arenaTags, 1)
}

// Node is an opaque handle to an AExpr stored
// in an ExprArena. The zero Node is invalid.
// A Node is only valid against the arena that
// issued it.
type Node struct {
	idx uint32
	tag uint32
}

// IsZero returns whether n is the invalid zero handle.
func (n Node) IsZero() bool { return n.tag == 0 }

func (n Node) String() string {
	return fmt.Sprintf("expr@%d", n.idx)
}

// PlanNode is an opaque handle to an Op stored
// in a PlanArena. The zero PlanNode is invalid.
// A PlanNode is only valid against the arena
// that issued it.
type PlanNode struct {
	idx uint32
	tag uint32
}

// IsZero returns whether n is the invalid zero handle.
func (n PlanNode) IsZero() bool { return n.tag == 0 }

func (n PlanNode) String() string {
	return fmt.Sprintf("plan@%d", n.idx)
}

// ExprArena is an append-only store of AExpr
// nodes. Handles issued by Add remain valid
// for the lifetime of the arena; nothing is
// ever deleted or renumbered.
type ExprArena struct {
	tag   uint32
	nodes []AExpr
}

// NewExprArena constructs an empty expression arena.
func NewExprArena() *ExprArena {
	return &ExprArena{tag: nextArenaTag()}
}

func (a *ExprArena) check(n Node) {
	// handle provenance is a programming-error
	// contract, not a data-driven failure
	if n.tag != a.tag {
		panic("ir: expression handle used against foreign arena")
	}
}

// Add inserts e and returns its handle.
// Add is the only way to create a Node.
func (a *ExprArena) Add(e AExpr) Node {
	a.nodes = append(a.nodes, e)
	return Node{idx: uint32(len(a.nodes) - 1), tag: a.tag}
}

// Get returns the node behind the handle.
// Get is total for handles issued by a.
func (a *ExprArena) Get(n Node) AExpr {
	a.check(n)
	return a.nodes[n.idx]
}

// Set replaces the node behind an existing
// handle. The handle itself stays valid.
func (a *ExprArena) Set(n Node, e AExpr) {
	a.check(n)
	a.nodes[n.idx] = e
}

// Len returns the number of nodes in the arena.
func (a *ExprArena) Len() int { return len(a.nodes) }

// CloneInto re-inserts the subtree rooted at n
// into dst and returns the remapped root handle.
// Sharing a subtree between two owners of the
// same arena is just copying the handle; CloneInto
// is the deliberate cross-arena alternative.
func (a *ExprArena) CloneInto(n Node, dst *ExprArena) Node {
	e := a.Get(n)
	kids := e.Children(nil)
	if len(kids) == 0 {
		return dst.Add(e)
	}
	mapped := make([]Node, len(kids))
	for i := range kids {
		mapped[i] = a.CloneInto(kids[i], dst)
	}
	return dst.Add(e.WithChildren(mapped))
}

// PlanArena is an append-only store of plan
// operators, with the same handle contract
// as ExprArena.
type PlanArena struct {
	tag uint32
	ops []Op
}

// NewPlanArena constructs an empty plan arena.
func NewPlanArena() *PlanArena {
	return &PlanArena{tag: nextArenaTag()}
}

func (a *PlanArena) check(n PlanNode) {
	if n.tag != a.tag {
		panic("ir: plan handle used against foreign arena")
	}
}

// Add inserts op and returns its handle.
func (a *PlanArena) Add(op Op) PlanNode {
	a.ops = append(a.ops, op)
	return PlanNode{idx: uint32(len(a.ops) - 1), tag: a.tag}
}

// Get returns the operator behind the handle.
func (a *PlanArena) Get(n PlanNode) Op {
	a.check(n)
	return a.ops[n.idx]
}

// Set replaces the operator behind an existing handle.
func (a *PlanArena) Set(n PlanNode, op Op) {
	a.check(n)
	a.ops[n.idx] = op
}

// Len returns the number of operators in the arena.
func (a *PlanArena) Len() int { return len(a.ops) }
