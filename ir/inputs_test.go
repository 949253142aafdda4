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
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/kestreldb/kestrel/expr"
)

// planFixture is a tiny plan with one of every
// handle-bearing ingredient ready to hand out.
type planFixture struct {
	ops   *PlanArena
	exprs *ExprArena
	scan  PlanNode
	scan2 PlanNode
	colA  ExprRef
	colB  ExprRef
	pred  ExprRef
}

func newFixture() *planFixture {
	f := &planFixture{
		ops:   NewPlanArena(),
		exprs: NewExprArena(),
	}
	schema := expr.MustSchema(
		[]string{"a", "b"},
		[]expr.DataType{expr.Int64, expr.Float64},
	)
	f.scan = f.ops.Add(&DataFrameScan{Schema: schema})
	f.scan2 = f.ops.Add(&DataFrameScan{Schema: schema})
	a := f.exprs.Add(&AColumn{Name: "a"})
	b := f.exprs.Add(&AColumn{Name: "b"})
	zero := f.exprs.Add(&ALiteral{Value: expr.TypedLit(0, expr.Int64)})
	gt := f.exprs.Add(&ABinary{Left: a, Op: expr.OpGreater, Right: zero})
	f.colA = NewInherited(a, "a")
	f.colB = NewInherited(b, "b")
	f.pred = NewAlias(gt, "a")
	return f
}

func TestRoundTrip(t *testing.T) {
	f := newFixture()
	schema := expr.MustSchema([]string{"a"}, []expr.DataType{expr.Int64})
	pred := f.pred
	ops := []Op{
		&Scan{Sources: []string{"data.parquet"}, Format: FormatParquet,
			FileSchema: schema, Predicate: &pred},
		&Scan{Sources: []string{"data.csv"}},
		&DataFrameScan{Schema: schema},
		&SimpleProjection{Input: f.scan, Columns: schema},
		&Select{Input: f.scan, Exprs: []ExprRef{f.colA, f.colB}, Schema: schema},
		&Filter{Input: f.scan, Predicate: f.pred},
		&Slice{Input: f.scan, Offset: 5, Len: 10},
		&Sort{Input: f.scan, ByColumn: []ExprRef{f.colA},
			Options: expr.SortMultipleOptions{Descending: []bool{true}}},
		&Cache{Input: f.scan, ID: uuid.New(), Hits: 3},
		&GroupBy{Input: f.scan, Keys: []ExprRef{f.colA},
			Aggs: []ExprRef{f.colB}, Schema: schema, MaintainOrder: true},
		&Join{InputLeft: f.scan, InputRight: f.scan2,
			LeftOn: []ExprRef{f.colA}, RightOn: []ExprRef{f.colB},
			Options: &JoinOptions{How: LeftJoin, Suffix: "_r"}},
		&HStack{Input: f.scan, Exprs: []ExprRef{f.colB}, Schema: schema},
		&Distinct{Input: f.scan, Options: DistinctOptions{
			Subset: []string{"a"}, Keep: KeepLast}},
		&MapFunction{Input: f.scan, Function: namedUDF{name: "rechunk"}},
		&Union{Inputs: []PlanNode{f.scan, f.scan2},
			Options: UnionOptions{Parallel: true}},
		&HConcat{Inputs: []PlanNode{f.scan, f.scan2}, Schema: schema},
		&ExtContext{Input: f.scan, Contexts: []PlanNode{f.scan2}, Schema: schema},
		&Sink{Input: f.scan, Payload: MemorySink{}},
		&Sink{Input: f.scan, Payload: FileSink{Path: "out.parquet", Format: FormatParquet}},
		&Sink{Input: f.scan, Payload: &PartitionSink{
			BasePath: "out/", Format: FormatParquet,
			Variant:  PartitionByKey,
			KeyExprs: []ExprRef{f.colA},
			PerPartitionSortBy: []SortColumn{
				{Expr: f.colB, Descending: true},
			},
		}},
		&SinkMultiple{Inputs: []PlanNode{f.scan, f.scan2}},
		&MergeSorted{InputLeft: f.scan, InputRight: f.scan2, Key: "a"},
		&Invalid{},
	}
	for _, op := range ops {
		t.Run(op.Name(), func(t *testing.T) {
			got := op.WithExprsAndInput(op.CopyExprs(nil), op.CopyInputs(nil))
			if !reflect.DeepEqual(op, got) {
				t.Fatalf("round trip changed the operator:\n  in:  %#v\n  out: %#v", op, got)
			}
		})
	}
}

func TestGroupByCanonicalOrder(t *testing.T) {
	f := newFixture()
	op := &GroupBy{
		Input: f.scan,
		Keys:  []ExprRef{f.colA},
		Aggs:  []ExprRef{f.colB, f.pred},
	}
	exprs := op.CopyExprs(nil)
	if len(exprs) != 3 {
		t.Fatalf("CopyExprs yielded %d refs", len(exprs))
	}
	// keys first, then aggregations
	if !exprs[0].Equal(f.colA) || !exprs[1].Equal(f.colB) || !exprs[2].Equal(f.pred) {
		t.Fatal("keys/aggs extracted out of order")
	}
	// a rewrite that replaces every expression is
	// split back at the key boundary
	repl := f.exprs.Add(&AColumn{Name: "r"})
	for i := range exprs {
		exprs[i] = exprs[i].WithExpr(repl)
	}
	out := op.WithExprsAndInput(exprs, op.CopyInputs(nil)).(*GroupBy)
	if len(out.Keys) != 1 || len(out.Aggs) != 2 {
		t.Fatalf("reconstructed %d keys, %d aggs", len(out.Keys), len(out.Aggs))
	}
	if out.Keys[0].Expr() != repl || out.Aggs[1].Expr() != repl {
		t.Fatal("rewritten expressions not applied")
	}
}

func TestJoinCanonicalOrder(t *testing.T) {
	f := newFixture()
	op := &Join{
		InputLeft:  f.scan,
		InputRight: f.scan2,
		LeftOn:     []ExprRef{f.colA},
		RightOn:    []ExprRef{f.colB},
	}
	exprs := op.CopyExprs(nil)
	if !exprs[0].Equal(f.colA) || !exprs[1].Equal(f.colB) {
		t.Fatal("left keys must precede right keys")
	}
	inputs := op.CopyInputs(nil)
	if inputs[0] != f.scan || inputs[1] != f.scan2 {
		t.Fatal("left input must precede right input")
	}
}

func TestExtContextCanonicalOrder(t *testing.T) {
	f := newFixture()
	op := &ExtContext{Input: f.scan, Contexts: []PlanNode{f.scan2}}
	inputs := op.CopyInputs(nil)
	// contexts first, primary input last
	if len(inputs) != 2 || inputs[0] != f.scan2 || inputs[1] != f.scan {
		t.Fatalf("inputs = %v", inputs)
	}
	out := op.WithExprsAndInput(nil, inputs).(*ExtContext)
	if out.Input != f.scan || len(out.Contexts) != 1 || out.Contexts[0] != f.scan2 {
		t.Fatal("reconstruction mixed up contexts and input")
	}
}

func TestPartitionSinkExprs(t *testing.T) {
	f := newFixture()
	op := &Sink{Input: f.scan, Payload: &PartitionSink{
		BasePath: "out/",
		Variant:  PartitionByKey,
		KeyExprs: []ExprRef{f.colA},
		PerPartitionSortBy: []SortColumn{
			{Expr: f.colB, NullsLast: true},
			{Expr: f.pred, Descending: true},
		},
	}}
	exprs := op.CopyExprs(nil)
	if len(exprs) != 3 {
		t.Fatalf("CopyExprs yielded %d refs", len(exprs))
	}
	// partition keys first, then sort keys in order
	if !exprs[0].Equal(f.colA) || !exprs[1].Equal(f.colB) || !exprs[2].Equal(f.pred) {
		t.Fatal("sink expressions extracted out of order")
	}
	repl := f.exprs.Add(&AColumn{Name: "r"})
	exprs[1] = exprs[1].WithExpr(repl)
	out := op.WithExprsAndInput(exprs, op.CopyInputs(nil)).(*Sink)
	p := out.Payload.(*PartitionSink)
	if p.PerPartitionSortBy[0].Expr.Expr() != repl {
		t.Fatal("sort key rewrite not applied")
	}
	// sort options travel with the destination
	if !p.PerPartitionSortBy[0].NullsLast || !p.PerPartitionSortBy[1].Descending {
		t.Fatal("sort options lost in reconstruction")
	}
}

func buildTestTree(t *testing.T) *Tree {
	t.Helper()
	schema := expr.MustSchema(
		[]string{"a", "b"},
		[]expr.DataType{expr.Int64, expr.Float64},
	)
	exprs := NewExprArena()
	ops := NewPlanArena()

	pred, err := LowerMaterialized(
		expr.Greater(expr.Col("a"), expr.Lit(0)), exprs, schema)
	if err != nil {
		t.Fatal(err)
	}
	projected, err := LowerAll([]expr.Node{
		expr.Col("a"),
		expr.As(expr.Add(expr.Col("a"), expr.Col("b")), "total"),
	}, exprs, schema)
	if err != nil {
		t.Fatal(err)
	}

	scan := ops.Add(&DataFrameScan{Schema: schema})
	filter := ops.Add(&Filter{Input: scan, Predicate: pred})
	sel := ops.Add(&Select{Input: filter, Exprs: projected,
		Schema: expr.MustSchema(
			[]string{"a", "total"},
			[]expr.DataType{expr.Int64, expr.Float64},
		)})
	return NewTree(sel, ops, exprs)
}

func TestClonePlan(t *testing.T) {
	tree := buildTestTree(t)
	clone := tree.Clone()

	if clone.ID != tree.ID {
		t.Error("clone must keep the plan ID")
	}
	if clone.Ops == tree.Ops || clone.Exprs == tree.Exprs {
		t.Fatal("clone must not share arenas")
	}
	if PlanFingerprint(tree.Ops, tree.Exprs, tree.Root) !=
		PlanFingerprint(clone.Ops, clone.Exprs, clone.Root) {
		t.Fatal("clone differs structurally from source")
	}
	// handles from the source are foreign to the clone
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected provenance panic")
			}
		}()
		clone.Ops.Get(tree.Root)
	}()
	// mutating the source does not leak into the clone
	tree.Ops.Set(tree.Root, &Invalid{})
	if _, ok := clone.RootOp().(*Select); !ok {
		t.Fatalf("clone root is %T after source mutation", clone.RootOp())
	}
}
