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
	"strings"
	"testing"

	"github.com/kestreldb/kestrel/expr"
)

func testSchema() *expr.Schema {
	return expr.MustSchema(
		[]string{"a", "b", "s", "xs", "st"},
		[]expr.DataType{
			expr.Int64,
			expr.Float64,
			expr.String,
			expr.ListOf(expr.Int64),
			expr.StructOf(expr.MustSchema(
				[]string{"x", "y"},
				[]expr.DataType{expr.Int64, expr.String},
			)),
		},
	)
}

func mustLower(t *testing.T, e expr.Node) (*ExprArena, ExprRef) {
	t.Helper()
	a := NewExprArena()
	ref, err := Lower(e, a, testSchema())
	if err != nil {
		t.Fatalf("Lower(%s): %v", expr.ToString(e), err)
	}
	return a, ref
}

func TestLowerOutputNames(t *testing.T) {
	cases := []struct {
		e         expr.Node
		name      string
		inherited bool
	}{
		{expr.Col("a"), "a", true},
		{expr.As(expr.Col("a"), "z"), "z", false},
		{expr.As(expr.As(expr.Col("a"), "y"), "z"), "z", false},
		{expr.Lit(1), "literal", false},
		{expr.Add(expr.Col("a"), expr.Col("b")), "a", false},
		{expr.Add(expr.Lit(1), expr.Col("b")), "literal", false},
		{&expr.Cast{Expr: expr.Col("b"), To: expr.Int32}, "b", false},
		{&expr.Sort{Expr: expr.Col("a")}, "a", false},
		{&expr.SortBy{Expr: expr.Col("a"), By: []expr.Node{expr.Col("b")}}, "a", false},
		{&expr.Filter{Input: expr.Col("a"), By: expr.Greater(expr.Col("b"), expr.Lit(0))}, "a", false},
		{&expr.Gather{Expr: expr.Col("a"), Idx: expr.Lit(0)}, "a", false},
		{expr.Sum(expr.Col("a")), "a", false},
		{expr.If(expr.Greater(expr.Col("a"), expr.Lit(0)), expr.Col("b"), expr.LitNone()), "b", false},
		{&expr.Window{Function: expr.Sum(expr.Col("a")), PartitionBy: []expr.Node{expr.Col("s")}}, "a", false},
		{&expr.Slice{Input: expr.Col("a"), Offset: expr.Lit(0), Length: expr.Lit(2)}, "a", false},
		{&expr.Explode{Expr: expr.Col("xs")}, "xs", false},
		{expr.Len{}, "len", false},
		{&expr.KeepName{Expr: expr.Add(expr.Lit(1), expr.Col("a"))}, "a", false},
		{expr.Call("upper", expr.Col("s")), "s", false},
	}
	for i := range cases {
		c := &cases[i]
		_, ref := mustLower(t, c.e)
		if ref.OutputName() != c.name {
			t.Errorf("%s: output name = %q, want %q",
				expr.ToString(c.e), ref.OutputName(), c.name)
		}
		if ref.IsInherited() != c.inherited {
			t.Errorf("%s: inherited = %v, want %v",
				expr.ToString(c.e), ref.IsInherited(), c.inherited)
		}
	}
}

func TestLowerAliasInsertsNoNode(t *testing.T) {
	a, ref := mustLower(t, expr.As(expr.Col("a"), "z"))
	if a.Len() != 1 {
		t.Fatalf("alias inserted %d nodes, want 1", a.Len())
	}
	if _, ok := a.Get(ref.Expr()).(*AColumn); !ok {
		t.Fatalf("aliased column lowered to %T", a.Get(ref.Expr()))
	}
}

func TestLowerLiteralStaysDynamic(t *testing.T) {
	a, ref := mustLower(t, expr.Lit(1))
	lit := a.Get(ref.Expr()).(*ALiteral)
	if !lit.Value.IsDynamic() {
		t.Fatal("top-level literal should stay dynamic")
	}
}

func TestLowerMaterialized(t *testing.T) {
	a := NewExprArena()
	ref, err := LowerMaterialized(expr.Lit(1), a, testSchema())
	if err != nil {
		t.Fatal(err)
	}
	lit := a.Get(ref.Expr()).(*ALiteral)
	if lit.Value.IsDynamic() {
		t.Fatal("LowerMaterialized left the literal dynamic")
	}
	if !lit.Value.Type.Equal(expr.Int64) {
		t.Fatalf("materialized type = %s", lit.Value.Type)
	}

	// an alias over a dynamic literal materializes too
	ref, err = LowerMaterialized(expr.As(expr.LitF(2.5), "q"), a, testSchema())
	if err != nil {
		t.Fatal(err)
	}
	lit = a.Get(ref.Expr()).(*ALiteral)
	if lit.Value.IsDynamic() || !lit.Value.Type.Equal(expr.Float64) {
		t.Fatalf("aliased literal = %+v", lit.Value)
	}
	if ref.OutputName() != "q" {
		t.Errorf("output name = %q", ref.OutputName())
	}
}

// literals in demanding positions materialize even
// under a lazy top-level lowering
func TestLowerDemandingPositions(t *testing.T) {
	check := func(t *testing.T, a *ExprArena, n Node, wantDynamic bool) {
		t.Helper()
		lit, ok := a.Get(n).(*ALiteral)
		if !ok {
			t.Fatalf("node is %T, want literal", a.Get(n))
		}
		if lit.Value.IsDynamic() != wantDynamic {
			t.Fatalf("dynamic = %v, want %v", lit.Value.IsDynamic(), wantDynamic)
		}
	}

	t.Run("gather-idx", func(t *testing.T) {
		a, ref := mustLower(t, &expr.Gather{Expr: expr.Col("a"), Idx: expr.Lit(0)})
		g := a.Get(ref.Expr()).(*AGather)
		check(t, a, g.Idx, false)
	})
	t.Run("slice-bounds", func(t *testing.T) {
		a, ref := mustLower(t, &expr.Slice{Input: expr.Col("a"), Offset: expr.Lit(1), Length: expr.Lit(2)})
		s := a.Get(ref.Expr()).(*ASlice)
		check(t, a, s.Offset, false)
		check(t, a, s.Length, false)
	})
	t.Run("filter-by", func(t *testing.T) {
		a, ref := mustLower(t, &expr.Filter{Input: expr.Col("a"), By: expr.Lit(1)})
		f := a.Get(ref.Expr()).(*AFilter)
		check(t, a, f.By, false)
	})
	t.Run("ternary-predicate", func(t *testing.T) {
		a, ref := mustLower(t, expr.If(expr.Lit(1), expr.Col("a"), expr.Col("b")))
		tern := a.Get(ref.Expr()).(*ATernary)
		check(t, a, tern.Predicate, false)
	})
	t.Run("window-partition", func(t *testing.T) {
		a, ref := mustLower(t, &expr.Window{
			Function:    expr.Sum(expr.Col("a")),
			PartitionBy: []expr.Node{expr.Lit(1)},
		})
		w := a.Get(ref.Expr()).(*AWindow)
		check(t, a, w.PartitionBy[0], false)
	})
	t.Run("agg-input", func(t *testing.T) {
		a, ref := mustLower(t, expr.Sum(expr.Lit(1)))
		agg := a.Get(ref.Expr()).(*AAgg)
		check(t, a, agg.Input, false)
	})
	t.Run("quantile-param", func(t *testing.T) {
		a, ref := mustLower(t, expr.Quantile(expr.Col("a"), expr.LitF(0.5), expr.QuantileLinear))
		agg := a.Get(ref.Expr()).(*AAgg)
		check(t, a, agg.Quantile, false)
	})
	t.Run("function-input", func(t *testing.T) {
		a, ref := mustLower(t, expr.Call("round", expr.Lit(3)))
		fn := a.Get(ref.Expr()).(*AFunction)
		check(t, a, fn.Inputs[0].Expr(), false)
	})
	// a binary operand is NOT a demanding position
	t.Run("binary-operand", func(t *testing.T) {
		a, ref := mustLower(t, expr.Add(expr.Col("a"), expr.Lit(1)))
		b := a.Get(ref.Expr()).(*ABinary)
		check(t, a, b.Right, true)
	})
}

func TestLowerAggErrors(t *testing.T) {
	a := NewExprArena()
	_, err := Lower(&expr.Agg{Op: expr.AggNone, Input: expr.Col("a")}, a, testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("agg without op: %v", err)
	}
	_, err = Lower(&expr.Agg{Op: expr.AggQuantile, Input: expr.Col("a")}, a, testSchema())
	if !expr.IsError(err, expr.ShapeMismatch) {
		t.Errorf("quantile without parameter: %v", err)
	}
}

func TestLowerKeepNameError(t *testing.T) {
	a := NewExprArena()
	_, err := Lower(&expr.KeepName{Expr: expr.Lit(1)}, a, testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
}

func TestLowerRenameAlias(t *testing.T) {
	upper := func(s string) (string, error) { return strings.ToUpper(s), nil }
	a := NewExprArena()
	ref, err := Lower(&expr.RenameAlias{Expr: expr.Col("a"), Fn: upper}, a, testSchema())
	if err != nil {
		t.Fatal(err)
	}
	if ref.OutputName() != "A" {
		t.Errorf("renamed output = %q", ref.OutputName())
	}

	_, err = Lower(&expr.RenameAlias{Expr: expr.Col("a")}, a, testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("nil rename fn: %v", err)
	}

	fail := func(string) (string, error) {
		return "", expr.Errorf(expr.ComputeError, "boom")
	}
	_, err = Lower(&expr.RenameAlias{Expr: expr.Col("a"), Fn: fail}, a, testSchema())
	if !expr.IsError(err, expr.ComputeError) {
		t.Errorf("failing rename fn: %v", err)
	}
}

func TestLowerEvalList(t *testing.T) {
	e := &expr.Eval{
		Expr:       expr.Col("xs"),
		Evaluation: expr.Mul(expr.Col(""), expr.Lit(2)),
		Variant:    expr.EvalList,
	}
	a, ref := mustLower(t, e)
	ev := a.Get(ref.Expr()).(*AEval)
	if ev.Variant != expr.EvalList {
		t.Fatalf("variant = %v", ev.Variant)
	}
	if ref.OutputName() != "xs" {
		t.Errorf("output name = %q", ref.OutputName())
	}
	// result type: list over the evaluation type
	ty, err := TypeOf(a, ref.Expr(), testSchema())
	if err != nil {
		t.Fatal(err)
	}
	if !ty.Equal(expr.ListOf(expr.Int64)) {
		t.Errorf("eval type = %s", ty)
	}
}

func TestLowerEvalErrors(t *testing.T) {
	a := NewExprArena()
	// list.eval over a non-list column
	_, err := Lower(&expr.Eval{
		Expr:       expr.Col("a"),
		Evaluation: expr.Mul(expr.Col(""), expr.Lit(2)),
		Variant:    expr.EvalList,
	}, a, testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("list.eval over i64: %v", err)
	}

	// named columns are not visible inside list.eval
	_, err = Lower(&expr.Eval{
		Expr:       expr.Col("xs"),
		Evaluation: expr.Add(expr.Col(""), expr.Col("a")),
		Variant:    expr.EvalList,
	}, NewExprArena(), testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("named column in list.eval: %v", err)
	}

	// cumulative evaluation must reduce to a scalar
	_, err = Lower(&expr.Eval{
		Expr:       expr.Col("a"),
		Evaluation: expr.Mul(expr.Col(""), expr.Lit(2)),
		Variant:    expr.EvalCumulative,
	}, NewExprArena(), testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("non-scalar cumulative_eval: %v", err)
	}
}

func TestLowerEvalCumulative(t *testing.T) {
	a, ref := mustLower(t, &expr.Eval{
		Expr:       expr.Col("a"),
		Evaluation: expr.Mean(expr.Col("")),
		Variant:    expr.EvalCumulative,
		MinSamples: 2,
	})
	ev := a.Get(ref.Expr()).(*AEval)
	if ev.MinSamples != 2 {
		t.Errorf("min samples = %d", ev.MinSamples)
	}
	ty, err := TypeOf(a, ref.Expr(), testSchema())
	if err != nil {
		t.Fatal(err)
	}
	if !ty.Equal(expr.Float64) {
		t.Errorf("cumulative mean type = %s", ty)
	}
}

func TestLowerField(t *testing.T) {
	schema := testSchema()
	structType, _ := schema.Lookup("st")
	arena := NewExprArena()
	input := arena.Add(&AColumn{Name: "st"})
	ctx := &Context{
		Arena:  arena,
		Schema: schema,
		WithFields: &FieldScope{
			Input:  input,
			Fields: structType.Fields,
		},
	}
	ref, err := LowerWith(&expr.Field{Name: "x"}, ctx)
	if err != nil {
		t.Fatal(err)
	}
	fn := arena.Get(ref.Expr()).(*AFunction)
	if fn.Name != StructFieldByName || fn.FieldName != "x" {
		t.Fatalf("lowered field = %+v", fn)
	}
	if ref.OutputName() != "x" {
		t.Errorf("output name = %q", ref.OutputName())
	}
	ty, err := TypeOf(arena, ref.Expr(), schema)
	if err != nil {
		t.Fatal(err)
	}
	if !ty.Equal(expr.Int64) {
		t.Errorf("field type = %s", ty)
	}

	// unknown field
	_, err = LowerWith(&expr.Field{Name: "nope"}, ctx)
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("unknown field: %v", err)
	}

	// no scope at all
	_, err = Lower(&expr.Field{Name: "x"}, NewExprArena(), schema)
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("field outside struct context: %v", err)
	}
}

func TestLowerFunctionErrors(t *testing.T) {
	a := NewExprArena()
	_, err := Lower(&expr.Function{Name: "pi"}, a, testSchema())
	if !expr.IsError(err, expr.NoData) {
		t.Errorf("empty inputs: %v", err)
	}

	// AllowEmptyInputs lifts the restriction; the
	// display name becomes the output name
	ref, err := Lower(&expr.Function{
		Name:    "pi",
		Options: expr.FunctionOptions{Flags: expr.AllowEmptyInputs | expr.ReturnsScalar},
	}, a, testSchema())
	if err != nil {
		t.Fatal(err)
	}
	if ref.OutputName() != "pi" {
		t.Errorf("output name = %q", ref.OutputName())
	}

	bad := &expr.Function{
		Name:    "broken",
		Inputs:  []expr.Node{expr.Col("a")},
		Options: expr.FunctionOptions{Flags: expr.ReturnsScalar | expr.LengthPreserving},
	}
	_, err = Lower(bad, a, testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("incoherent flags: %v", err)
	}
}

type staticUDF struct {
	err error
}

func (u staticUDF) Resolve(*expr.Schema) error { return u.err }

func TestLowerAnonymous(t *testing.T) {
	fn := &expr.AnonymousFunction{
		Inputs:  []expr.Node{expr.Col("a")},
		Fn:      staticUDF{},
		Output:  expr.ConstantType(expr.Float64),
		Options: expr.LengthPreservingOptions(),
		FmtStr:  "my_udf",
	}
	a, ref := mustLower(t, fn)
	an := a.Get(ref.Expr()).(*AAnonymous)
	if !an.ResolvedType.Equal(expr.Float64) {
		t.Errorf("resolved type = %s", an.ResolvedType)
	}
	if ref.OutputName() != "a" {
		t.Errorf("output name = %q", ref.OutputName())
	}

	// missing implementation
	_, err := Lower(&expr.AnonymousFunction{
		Inputs: []expr.Node{expr.Col("a")},
		FmtStr: "nil_udf",
	}, NewExprArena(), testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("nil Fn: %v", err)
	}

	// resolution failure aborts lowering
	_, err = Lower(&expr.AnonymousFunction{
		Inputs: []expr.Node{expr.Col("a")},
		Fn:     staticUDF{err: expr.Errorf(expr.ComputeError, "no such column")},
		FmtStr: "bad_udf",
	}, NewExprArena(), testSchema())
	if !expr.IsError(err, expr.ComputeError) {
		t.Errorf("failing Resolve: %v", err)
	}
}

func TestLowerRejectsUnexpanded(t *testing.T) {
	a := NewExprArena()
	_, err := Lower(&expr.SubPlan{}, a, testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("subplan: %v", err)
	}
	_, err = Lower(&expr.Selector{Pattern: "^x.*$"}, a, testSchema())
	if !expr.IsError(err, expr.InvalidOperation) {
		t.Errorf("selector: %v", err)
	}
}

func TestLowerAll(t *testing.T) {
	refs, err := LowerAll([]expr.Node{
		expr.Col("a"),
		expr.As(expr.Add(expr.Col("a"), expr.Col("b")), "sum"),
		expr.Len{},
	}, NewExprArena(), testSchema())
	if err != nil {
		t.Fatal(err)
	}
	names := []string{"a", "sum", "len"}
	for i := range refs {
		if refs[i].OutputName() != names[i] {
			t.Errorf("refs[%d] name = %q, want %q", i, refs[i].OutputName(), names[i])
		}
	}
	_, err = LowerAll([]expr.Node{
		expr.Col("a"),
		&expr.Selector{Pattern: "*"},
	}, NewExprArena(), testSchema())
	if err == nil {
		t.Fatal("expected error from second expression")
	}
}

// end-to-end: lower a realistic projection list and
// verify structure, names and derived types together
func TestLowerEndToEnd(t *testing.T) {
	schema := testSchema()
	arena := NewExprArena()
	exprs := []expr.Node{
		expr.As(expr.Add(expr.Mul(expr.Col("a"), expr.Lit(2)), expr.Col("b")), "score"),
		&expr.KeepName{Expr: &expr.Cast{Expr: expr.Col("a"), To: expr.Float64}},
		expr.If(
			expr.Greater(expr.Col("b"), expr.LitF(0)),
			expr.Col("b"),
			expr.LitNone(),
		),
	}
	refs, err := LowerAll(exprs, arena, schema)
	if err != nil {
		t.Fatal(err)
	}

	wantNames := []string{"score", "a", "b"}
	wantTypes := []expr.DataType{expr.Float64, expr.Float64, expr.Float64}
	for i := range refs {
		if refs[i].OutputName() != wantNames[i] {
			t.Errorf("refs[%d] name = %q, want %q", i, refs[i].OutputName(), wantNames[i])
		}
		ty, err := TypeOf(arena, refs[i].Expr(), schema)
		if err != nil {
			t.Fatalf("TypeOf refs[%d]: %v", i, err)
		}
		if !ty.Equal(wantTypes[i]) {
			t.Errorf("refs[%d] type = %s, want %s", i, ty, wantTypes[i])
		}
	}
}
