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
	"testing"

	"github.com/kestreldb/kestrel/expr"
)

func lowerFP(t *testing.T, a *ExprArena, e expr.Node) Node {
	t.Helper()
	ref, err := Lower(e, a, testSchema())
	if err != nil {
		t.Fatal(err)
	}
	return ref.Expr()
}

func TestFingerprintEqualAcrossArenas(t *testing.T) {
	e := expr.If(
		expr.Greater(expr.Col("a"), expr.Lit(0)),
		expr.Add(expr.Col("a"), expr.Col("b")),
		expr.LitNone(),
	)
	a1 := NewExprArena()
	a2 := NewExprArena()
	// pad the second arena so positions differ
	a2.Add(&ALen{})
	a2.Add(&AColumn{Name: "pad"})

	n1 := lowerFP(t, a1, e)
	n2 := lowerFP(t, a2, e)
	if Fingerprint(a1, n1) != Fingerprint(a2, n2) {
		t.Fatal("equal trees produced different fingerprints")
	}
}

func TestFingerprintDistinguishes(t *testing.T) {
	base := expr.Add(expr.Col("a"), expr.Lit(1))
	variants := []expr.Node{
		expr.Add(expr.Col("b"), expr.Lit(1)),
		expr.Add(expr.Col("a"), expr.Lit(2)),
		expr.Sub(expr.Col("a"), expr.Lit(1)),
		expr.Add(expr.Lit(1), expr.Col("a")),
		expr.Sum(expr.Add(expr.Col("a"), expr.Lit(1))),
	}
	a := NewExprArena()
	want := Fingerprint(a, lowerFP(t, a, base))
	for _, v := range variants {
		if got := Fingerprint(a, lowerFP(t, a, v)); got == want {
			t.Errorf("%s collides with %s", expr.ToString(v), expr.ToString(base))
		}
	}
}

func TestFingerprintAggOptions(t *testing.T) {
	a := NewExprArena()
	min := Fingerprint(a, lowerFP(t, a, expr.Min(expr.Col("a"))))
	nanMin := Fingerprint(a, lowerFP(t, a, expr.NanMin(expr.Col("a"))))
	if min == nanMin {
		t.Error("NaN propagation must change the fingerprint")
	}
	std1 := Fingerprint(a, lowerFP(t, a, expr.Std(expr.Col("a"), 1)))
	std0 := Fingerprint(a, lowerFP(t, a, expr.Std(expr.Col("a"), 0)))
	if std1 == std0 {
		t.Error("ddof must change the fingerprint")
	}
}

func TestFingerprintWindowOrderOptions(t *testing.T) {
	a := NewExprArena()
	window := func(opts expr.SortOptions) uint64 {
		return Fingerprint(a, lowerFP(t, a, &expr.Window{
			Function:     expr.Sum(expr.Col("a")),
			PartitionBy:  []expr.Node{expr.Col("s")},
			OrderBy:      expr.Col("b"),
			OrderOptions: opts,
		}))
	}
	base := window(expr.SortOptions{})
	if got := window(expr.SortOptions{MaintainOrder: true}); got == base {
		t.Error("MaintainOrder must change the fingerprint")
	}
	if got := window(expr.SortOptions{NullsLast: true}); got == base {
		t.Error("NullsLast must change the fingerprint")
	}
	if got := window(expr.SortOptions{Descending: true}); got == base {
		t.Error("Descending must change the fingerprint")
	}
}

func TestPlanFingerprint(t *testing.T) {
	t1 := buildTestTree(t)
	t2 := buildTestTree(t)
	if PlanFingerprint(t1.Ops, t1.Exprs, t1.Root) !=
		PlanFingerprint(t2.Ops, t2.Exprs, t2.Root) {
		t.Fatal("identical plans produced different fingerprints")
	}
	// a structural change is visible
	filter := t2.Ops.Get(t2.Root).(*Select).Input
	f := t2.Ops.Get(filter).(*Filter)
	t2.Ops.Set(filter, &Distinct{Input: f.Input})
	if PlanFingerprint(t1.Ops, t1.Exprs, t1.Root) ==
		PlanFingerprint(t2.Ops, t2.Exprs, t2.Root) {
		t.Fatal("operator swap not reflected in fingerprint")
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := NewExprArena()
	n := a.Add(&AColumn{Name: "a"})
	first := Fingerprint(a, n)
	for i := 0; i < 3; i++ {
		if got := Fingerprint(a, n); got != first {
			t.Fatal("fingerprint is not deterministic")
		}
	}
}
