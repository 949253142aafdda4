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

func TestExprString(t *testing.T) {
	schema := testSchema()
	cases := []struct {
		e    expr.Node
		want string
	}{
		{expr.Col("a"), `col("a")`},
		{expr.Add(expr.Col("a"), expr.Lit(1)), `(col("a") + 1)`},
		{&expr.Cast{Expr: expr.Col("a"), To: expr.Float64}, `col("a").cast(f64)`},
		{expr.Sum(expr.Col("a")), `col("a").sum()`},
		{expr.Quantile(expr.Col("a"), expr.LitF(0.5), expr.QuantileLinear),
			`col("a").quantile(0.5)`},
		{expr.If(expr.Greater(expr.Col("a"), expr.Lit(0)), expr.Col("b"), expr.LitNone()),
			`when((col("a") > 0)).then(col("b")).otherwise(null)`},
		{&expr.Window{Function: expr.Sum(expr.Col("a")), PartitionBy: []expr.Node{expr.Col("s")}},
			`col("a").sum().over(col("s"))`},
		{&expr.Explode{Expr: expr.Col("xs")}, `col("xs").explode()`},
		{expr.Len{}, `len()`},
	}
	for i := range cases {
		c := &cases[i]
		a := NewExprArena()
		ref, err := Lower(c.e, a, schema)
		if err != nil {
			t.Fatalf("Lower(%s): %v", expr.ToString(c.e), err)
		}
		if got := ExprString(a, ref.Expr()); got != c.want {
			t.Errorf("ExprString = %s, want %s", got, c.want)
		}
	}
}

func TestRefString(t *testing.T) {
	a := NewExprArena()
	schema := testSchema()
	inh, err := Lower(expr.Col("a"), a, schema)
	if err != nil {
		t.Fatal(err)
	}
	if got := RefString(a, inh); got != `col("a")` {
		t.Errorf("inherited ref = %s", got)
	}
	al, err := Lower(expr.As(expr.Col("a"), "z"), a, schema)
	if err != nil {
		t.Fatal(err)
	}
	if got := RefString(a, al); got != `col("a").alias("z")` {
		t.Errorf("aliased ref = %s", got)
	}
}

func TestDescribe(t *testing.T) {
	tree := buildTestTree(t)
	got := tree.Describe()
	want := "SELECT col(\"a\"), (col(\"a\") + col(\"b\")).alias(\"total\")\n" +
		"\tFILTER (col(\"a\") > 0).alias(\"a\")\n" +
		"\t\tDF_SCAN [2 columns]\n"
	if got != want {
		t.Fatalf("Describe:\n%s\nwant:\n%s", got, want)
	}
	// String is an alias for Describe
	if tree.String() != got {
		t.Error("String() differs from Describe()")
	}
}

func TestGraphviz(t *testing.T) {
	tree := buildTestTree(t)
	var buf strings.Builder
	if err := Graphviz(tree, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "digraph plan {\n") || !strings.HasSuffix(out, "}\n") {
		t.Fatalf("not a digraph:\n%s", out)
	}
	for _, want := range []string{
		`n0 [label="SELECT`,
		`n1 [label="FILTER`,
		`n2 [label="DF_SCAN`,
		"n1 -> n0;",
		"n2 -> n1;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
