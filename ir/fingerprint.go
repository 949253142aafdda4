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
	"encoding/binary"
	"math"

	"github.com/dchest/siphash"

	"github.com/kestreldb/kestrel/expr"
)

// fixed fingerprint keys; changing them
// invalidates persisted fingerprints
const (
	fpKey0 = 0x6b65737472656c30 // "kestrel0"
	fpKey1 = 0x6b65737472656c31 // "kestrel1"
)

// Fingerprint computes a structural hash of the
// expression subtree rooted at n. Equal subtrees
// hash equally regardless of which arena they
// live in or at which positions, so fingerprints
// can be used to detect common subexpressions.
func Fingerprint(a *ExprArena, n Node) uint64 {
	var h fpWriter
	h.expr(a, n)
	return siphash.Hash(fpKey0, fpKey1, h.buf)
}

// PlanFingerprint computes a structural hash of
// the plan subtree rooted at n, covering every
// operator and owned expression below it.
func PlanFingerprint(ops *PlanArena, exprs *ExprArena, n PlanNode) uint64 {
	var h fpWriter
	h.plan(ops, exprs, n)
	return siphash.Hash(fpKey0, fpKey1, h.buf)
}

type fpWriter struct {
	buf []byte
}

func (h *fpWriter) u8(v uint8)   { h.buf = append(h.buf, v) }
func (h *fpWriter) u64(v uint64) { h.buf = binary.LittleEndian.AppendUint64(h.buf, v) }
func (h *fpWriter) i64(v int64)  { h.u64(uint64(v)) }
func (h *fpWriter) f64(v float64) {
	h.u64(math.Float64bits(v))
}

func (h *fpWriter) str(s string) {
	h.u64(uint64(len(s)))
	h.buf = append(h.buf, s...)
}

func (h *fpWriter) boolean(v bool) {
	if v {
		h.u8(1)
	} else {
		h.u8(0)
	}
}

func (h *fpWriter) dtype(t expr.DataType) {
	h.u8(uint8(t.Kind))
	if t.Elem != nil {
		h.dtype(*t.Elem)
	}
	if t.Fields != nil {
		for i := 0; i < t.Fields.Len(); i++ {
			h.str(t.Fields.Name(i))
			h.dtype(t.Fields.Type(i))
		}
	}
}

func (h *fpWriter) ref(a *ExprArena, r ExprRef) {
	h.str(r.OutputName())
	h.boolean(r.IsInherited())
	h.expr(a, r.Expr())
}

// variant tags; stable, append-only
const (
	fpColumn uint8 = iota + 1
	fpLiteral
	fpBinary
	fpCast
	fpGather
	fpSort
	fpSortBy
	fpFilter
	fpTernary
	fpAgg
	fpWindow
	fpSlice
	fpExplode
	fpEval
	fpLen
	fpFunction
	fpAnonymous
)

func (h *fpWriter) expr(a *ExprArena, n Node) {
	switch e := a.Get(n).(type) {
	case *AColumn:
		h.u8(fpColumn)
		h.str(e.Name)
	case *ALiteral:
		h.u8(fpLiteral)
		h.u8(uint8(e.Value.Kind))
		h.dtype(e.Value.Type)
		h.i64(e.Value.Int)
		h.f64(e.Value.Float)
		h.str(e.Value.Str)
		h.boolean(e.Value.Bool)
	case *ABinary:
		h.u8(fpBinary)
		h.u8(uint8(e.Op))
		h.expr(a, e.Left)
		h.expr(a, e.Right)
	case *ACast:
		h.u8(fpCast)
		h.dtype(e.To)
		h.boolean(e.Strict)
		h.expr(a, e.Expr)
	case *AGather:
		h.u8(fpGather)
		h.boolean(e.ReturnsScalar)
		h.expr(a, e.Expr)
		h.expr(a, e.Idx)
	case *ASort:
		h.u8(fpSort)
		h.boolean(e.Options.Descending)
		h.boolean(e.Options.NullsLast)
		h.boolean(e.Options.MaintainOrder)
		h.expr(a, e.Expr)
	case *ASortBy:
		h.u8(fpSortBy)
		h.boolean(e.Options.MaintainOrder)
		h.u64(uint64(len(e.Options.Descending)))
		for _, d := range e.Options.Descending {
			h.boolean(d)
		}
		h.u64(uint64(len(e.Options.NullsLast)))
		for _, nl := range e.Options.NullsLast {
			h.boolean(nl)
		}
		h.u64(uint64(len(e.By)))
		h.expr(a, e.Expr)
		for _, by := range e.By {
			h.expr(a, by)
		}
	case *AFilter:
		h.u8(fpFilter)
		h.expr(a, e.Input)
		h.expr(a, e.By)
	case *ATernary:
		h.u8(fpTernary)
		h.expr(a, e.Predicate)
		h.expr(a, e.Truthy)
		h.expr(a, e.Falsy)
	case *AAgg:
		h.u8(fpAgg)
		h.u8(uint8(e.Op))
		h.boolean(e.PropagateNaNs)
		h.i64(int64(e.DDof))
		h.boolean(e.IncludeNulls)
		h.u8(uint8(e.Method))
		h.expr(a, e.Input)
		if !e.Quantile.IsZero() {
			h.expr(a, e.Quantile)
		}
	case *AWindow:
		h.u8(fpWindow)
		h.u8(uint8(e.Mapping))
		h.u64(uint64(len(e.PartitionBy)))
		h.expr(a, e.Function)
		for _, p := range e.PartitionBy {
			h.expr(a, p)
		}
		if !e.OrderBy.IsZero() {
			h.boolean(e.OrderOptions.Descending)
			h.boolean(e.OrderOptions.NullsLast)
			h.boolean(e.OrderOptions.MaintainOrder)
			h.expr(a, e.OrderBy)
		}
	case *ASlice:
		h.u8(fpSlice)
		h.expr(a, e.Input)
		h.expr(a, e.Offset)
		h.expr(a, e.Length)
	case *AExplode:
		h.u8(fpExplode)
		h.boolean(e.SkipEmpty)
		h.expr(a, e.Expr)
	case *AEval:
		h.u8(fpEval)
		h.u8(uint8(e.Variant))
		h.i64(int64(e.MinSamples))
		h.expr(a, e.Expr)
		h.expr(a, e.Evaluation)
	case *ALen:
		h.u8(fpLen)
	case *AFunction:
		h.u8(fpFunction)
		h.str(e.Name)
		h.str(e.FieldName)
		h.u64(uint64(e.Options.Flags))
		h.u64(uint64(len(e.Inputs)))
		for i := range e.Inputs {
			h.ref(a, e.Inputs[i])
		}
	case *AAnonymous:
		h.u8(fpAnonymous)
		h.str(e.FmtStr)
		h.dtype(e.ResolvedType)
		h.u64(uint64(e.Options.Flags))
		h.u64(uint64(len(e.Inputs)))
		for i := range e.Inputs {
			h.ref(a, e.Inputs[i])
		}
	default:
		h.u8(0)
	}
}

func (h *fpWriter) plan(ops *PlanArena, exprs *ExprArena, n PlanNode) {
	op := ops.Get(n)
	h.str(op.Name())
	switch o := op.(type) {
	case *Scan:
		for _, s := range o.Sources {
			h.str(s)
		}
		h.u8(uint8(o.Format))
	case *Slice:
		h.i64(o.Offset)
		h.u64(o.Len)
	case *Cache:
		h.buf = append(h.buf, o.ID[:]...)
	case *Distinct:
		h.u8(uint8(o.Options.Keep))
		h.boolean(o.Options.MaintainOrder)
		for _, s := range o.Options.Subset {
			h.str(s)
		}
	case *MergeSorted:
		h.str(o.Key)
	}
	refs := op.CopyExprs(nil)
	h.u64(uint64(len(refs)))
	for _, r := range refs {
		h.ref(exprs, r)
	}
	inputs := op.CopyInputs(nil)
	h.u64(uint64(len(inputs)))
	for _, in := range inputs {
		h.plan(ops, exprs, in)
	}
}
