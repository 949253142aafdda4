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

import "golang.org/x/exp/slices"

// This file implements the generic rewriting
// contract: for every operator,
//
//	op.WithExprsAndInput(op.CopyExprs(nil), op.CopyInputs(nil))
//
// yields an operator equal to op. Rewrite passes
// extract, transform and reconstruct through these
// three methods without switching on the variant.

func (o *Scan) CopyExprs(dst []ExprRef) []ExprRef {
	if o.Predicate != nil {
		dst = append(dst, *o.Predicate)
	}
	return dst
}

func (o *Scan) CopyInputs(dst []PlanNode) []PlanNode { return dst }

func (o *Scan) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	if o.Predicate != nil {
		p := exprs[0]
		m.Predicate = &p
	}
	return &m
}

func (o *DataFrameScan) CopyExprs(dst []ExprRef) []ExprRef    { return dst }
func (o *DataFrameScan) CopyInputs(dst []PlanNode) []PlanNode { return dst }

func (o *DataFrameScan) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	return &m
}

func (o *SimpleProjection) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *SimpleProjection) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *SimpleProjection) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Input = inputs[0]
	return &m
}

func (o *Select) CopyExprs(dst []ExprRef) []ExprRef {
	return append(dst, o.Exprs...)
}

func (o *Select) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *Select) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Exprs = slices.Clone(exprs)
	m.Input = inputs[0]
	return &m
}

func (o *Filter) CopyExprs(dst []ExprRef) []ExprRef {
	return append(dst, o.Predicate)
}

func (o *Filter) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *Filter) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Predicate = exprs[0]
	m.Input = inputs[0]
	return &m
}

func (o *Slice) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *Slice) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *Slice) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Input = inputs[0]
	return &m
}

func (o *Sort) CopyExprs(dst []ExprRef) []ExprRef {
	return append(dst, o.ByColumn...)
}

func (o *Sort) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *Sort) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.ByColumn = slices.Clone(exprs)
	m.Input = inputs[0]
	return &m
}

func (o *Cache) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *Cache) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *Cache) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Input = inputs[0]
	return &m
}

// GroupBy owns keys then aggregations, in that
// order; reconstruction splits at len(Keys).
func (o *GroupBy) CopyExprs(dst []ExprRef) []ExprRef {
	dst = append(dst, o.Keys...)
	return append(dst, o.Aggs...)
}

func (o *GroupBy) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *GroupBy) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Keys = slices.Clone(exprs[:len(o.Keys)])
	m.Aggs = slices.Clone(exprs[len(o.Keys):])
	m.Input = inputs[0]
	return &m
}

// Join owns the left keys then the right keys;
// inputs are left then right.
func (o *Join) CopyExprs(dst []ExprRef) []ExprRef {
	dst = append(dst, o.LeftOn...)
	return append(dst, o.RightOn...)
}

func (o *Join) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.InputLeft, o.InputRight)
}

func (o *Join) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.LeftOn = slices.Clone(exprs[:len(o.LeftOn)])
	m.RightOn = slices.Clone(exprs[len(o.LeftOn):])
	m.InputLeft = inputs[0]
	m.InputRight = inputs[1]
	return &m
}

func (o *HStack) CopyExprs(dst []ExprRef) []ExprRef {
	return append(dst, o.Exprs...)
}

func (o *HStack) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *HStack) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Exprs = slices.Clone(exprs)
	m.Input = inputs[0]
	return &m
}

func (o *Distinct) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *Distinct) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *Distinct) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Input = inputs[0]
	return &m
}

func (o *MapFunction) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *MapFunction) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *MapFunction) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Input = inputs[0]
	return &m
}

func (o *Union) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *Union) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Inputs...)
}

func (o *Union) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Inputs = slices.Clone(inputs)
	return &m
}

func (o *HConcat) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *HConcat) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Inputs...)
}

func (o *HConcat) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Inputs = slices.Clone(inputs)
	return &m
}

// ExtContext lists the extra contexts first and
// the primary input last; reconstruction takes the
// trailing handle as the input.
func (o *ExtContext) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *ExtContext) CopyInputs(dst []PlanNode) []PlanNode {
	dst = append(dst, o.Contexts...)
	return append(dst, o.Input)
}

func (o *ExtContext) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Input = inputs[len(inputs)-1]
	m.Contexts = slices.Clone(inputs[:len(inputs)-1])
	return &m
}

// A partitioned sink owns its partition keys
// followed by its per-partition sort keys; the
// sort key options travel with the destination.
func (o *Sink) CopyExprs(dst []ExprRef) []ExprRef {
	if p, ok := o.Payload.(*PartitionSink); ok {
		dst = append(dst, p.KeyExprs...)
		for i := range p.PerPartitionSortBy {
			dst = append(dst, p.PerPartitionSortBy[i].Expr)
		}
	}
	return dst
}

func (o *Sink) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Input)
}

func (o *Sink) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Input = inputs[0]
	if p, ok := o.Payload.(*PartitionSink); ok {
		q := *p
		q.KeyExprs = slices.Clone(exprs[:len(p.KeyExprs)])
		q.PerPartitionSortBy = slices.Clone(p.PerPartitionSortBy)
		for i := range q.PerPartitionSortBy {
			q.PerPartitionSortBy[i].Expr = exprs[len(p.KeyExprs)+i]
		}
		m.Payload = &q
	}
	return &m
}

func (o *SinkMultiple) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *SinkMultiple) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.Inputs...)
}

func (o *SinkMultiple) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.Inputs = slices.Clone(inputs)
	return &m
}

func (o *MergeSorted) CopyExprs(dst []ExprRef) []ExprRef { return dst }

func (o *MergeSorted) CopyInputs(dst []PlanNode) []PlanNode {
	return append(dst, o.InputLeft, o.InputRight)
}

func (o *MergeSorted) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	m := *o
	m.InputLeft = inputs[0]
	m.InputRight = inputs[1]
	return &m
}

func (o *Invalid) CopyExprs(dst []ExprRef) []ExprRef    { return dst }
func (o *Invalid) CopyInputs(dst []PlanNode) []PlanNode { return dst }

func (o *Invalid) WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op {
	return &Invalid{}
}

// ClonePlan re-inserts the plan rooted at n, and
// every expression it owns, into the destination
// arenas. The clone shares no handles with the
// source.
func ClonePlan(n PlanNode, srcOps *PlanArena, srcExprs *ExprArena,
	dstOps *PlanArena, dstExprs *ExprArena) PlanNode {
	op := srcOps.Get(n)
	exprs := op.CopyExprs(nil)
	for i := range exprs {
		exprs[i] = exprs[i].WithExpr(srcExprs.CloneInto(exprs[i].Expr(), dstExprs))
	}
	inputs := op.CopyInputs(nil)
	for i := range inputs {
		inputs[i] = ClonePlan(inputs[i], srcOps, srcExprs, dstOps, dstExprs)
	}
	return dstOps.Add(op.WithExprsAndInput(exprs, inputs))
}

// Clone copies the tree into fresh arenas. The
// clone keeps the plan ID so that cache identity
// is preserved across the copy.
func (t *Tree) Clone() *Tree {
	ops := NewPlanArena()
	exprs := NewExprArena()
	root := ClonePlan(t.Root, t.Ops, t.Exprs, ops, exprs)
	return &Tree{ID: t.ID, Root: root, Ops: ops, Exprs: exprs}
}
