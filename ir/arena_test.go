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

func TestArenaAddGet(t *testing.T) {
	a := NewExprArena()
	n1 := a.Add(&AColumn{Name: "a"})
	n2 := a.Add(&AColumn{Name: "b"})
	if a.Len() != 2 {
		t.Fatalf("Len() = %d", a.Len())
	}
	if got := a.Get(n1).(*AColumn).Name; got != "a" {
		t.Errorf("Get(n1) = %q", got)
	}
	if got := a.Get(n2).(*AColumn).Name; got != "b" {
		t.Errorf("Get(n2) = %q", got)
	}
	// handles stay valid after growth
	for i := 0; i < 100; i++ {
		a.Add(&ALen{})
	}
	if got := a.Get(n1).(*AColumn).Name; got != "a" {
		t.Errorf("Get(n1) after growth = %q", got)
	}
}

func TestArenaSet(t *testing.T) {
	a := NewExprArena()
	n := a.Add(&AColumn{Name: "a"})
	a.Set(n, &AColumn{Name: "z"})
	if got := a.Get(n).(*AColumn).Name; got != "z" {
		t.Errorf("Get after Set = %q", got)
	}
	if a.Len() != 1 {
		t.Errorf("Set changed Len to %d", a.Len())
	}
}

func TestZeroHandle(t *testing.T) {
	var n Node
	if !n.IsZero() {
		t.Error("zero Node should report IsZero")
	}
	var p PlanNode
	if !p.IsZero() {
		t.Error("zero PlanNode should report IsZero")
	}
	if NewExprArena().Add(&ALen{}).IsZero() {
		t.Error("issued handle reported zero")
	}
}

func TestForeignHandlePanics(t *testing.T) {
	run := func(name string, f func()) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			f()
		})
	}
	a := NewExprArena()
	b := NewExprArena()
	n := a.Add(&AColumn{Name: "a"})
	run("get", func() { b.Get(n) })
	run("set", func() { b.Set(n, &ALen{}) })
	run("zero", func() { a.Get(Node{}) })

	pa := NewPlanArena()
	pb := NewPlanArena()
	pn := pa.Add(&Invalid{})
	run("plan-get", func() { pb.Get(pn) })
}

func TestCloneInto(t *testing.T) {
	src := NewExprArena()
	// (col("a") + 1).sum()
	col := src.Add(&AColumn{Name: "a"})
	one := src.Add(&ALiteral{Value: expr.Lit(1)})
	add := src.Add(&ABinary{Left: col, Op: expr.OpPlus, Right: one})
	sum := src.Add(&AAgg{Op: expr.AggSum, Input: add})

	dst := NewExprArena()
	got := src.CloneInto(sum, dst)
	if dst.Len() != 4 {
		t.Fatalf("clone inserted %d nodes, want 4", dst.Len())
	}
	if Fingerprint(src, sum) != Fingerprint(dst, got) {
		t.Error("clone does not match source structurally")
	}
	// the clone is independent of the source
	src.Set(col, &AColumn{Name: "changed"})
	agg := dst.Get(got).(*AAgg)
	bin := dst.Get(agg.Input).(*ABinary)
	if name := dst.Get(bin.Left).(*AColumn).Name; name != "a" {
		t.Errorf("clone saw source mutation: %q", name)
	}
}

func TestWalkExpr(t *testing.T) {
	a := NewExprArena()
	col := a.Add(&AColumn{Name: "a"})
	one := a.Add(&ALiteral{Value: expr.Lit(1)})
	add := a.Add(&ABinary{Left: col, Op: expr.OpPlus, Right: one})

	var order []Node
	a.WalkExpr(add, func(n Node, _ AExpr) bool {
		order = append(order, n)
		return true
	})
	want := []Node{add, col, one}
	if len(order) != len(want) {
		t.Fatalf("visited %d nodes, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("visit order %v, want %v", order, want)
		}
	}

	// early stop
	count := 0
	a.WalkExpr(add, func(Node, AExpr) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("early stop visited %d nodes", count)
	}
}
