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
	"encoding/json"

	"sigs.k8s.io/yaml"

	"github.com/kestreldb/kestrel/expr"
)

// The wire form of a Tree is the two arenas as
// flat arrays plus the root index. Handles are
// encoded as positions into those arrays; decode
// re-issues fresh handles, so wire indexes never
// leak into a live arena.
//
// Opaque values (in-memory frames, user-defined
// functions) encode as their name or schema only:
// a decoded plan is inspectable and rewritable,
// but not executable until the embedding engine
// re-binds them.

type treeJSON struct {
	ID    string     `json:"id"`
	Root  uint32     `json:"root"`
	Exprs []exprJSON `json:"exprs"`
	Ops   []opJSON   `json:"ops"`
}

type fieldJSON struct {
	Name string    `json:"name"`
	Type dtypeJSON `json:"dtype"`
}

type dtypeJSON struct {
	Kind   uint8       `json:"kind"`
	Elem   *dtypeJSON  `json:"elem,omitempty"`
	Fields []fieldJSON `json:"fields,omitempty"`
}

type litJSON struct {
	Kind  uint8      `json:"kind"`
	Type  *dtypeJSON `json:"dtype,omitempty"`
	Int   int64      `json:"int,omitempty"`
	Float float64    `json:"float,omitempty"`
	Str   string     `json:"str,omitempty"`
	Bool  bool       `json:"bool,omitempty"`
}

type refJSON struct {
	Expr      uint32 `json:"expr"`
	Name      string `json:"name"`
	Inherited bool   `json:"inherited,omitempty"`
}

type sortColJSON struct {
	Ref        refJSON `json:"ref"`
	Descending bool    `json:"descending,omitempty"`
	NullsLast  bool    `json:"nulls_last,omitempty"`
}

type exprJSON struct {
	Type string `json:"type"`

	Name  string `json:"name,omitempty"`
	Field string `json:"field,omitempty"`

	Lit *litJSON `json:"lit,omitempty"`

	Op    uint8   `json:"op,omitempty"`
	Left  *uint32 `json:"left,omitempty"`
	Right *uint32 `json:"right,omitempty"`

	Expr       *uint32  `json:"expr,omitempty"`
	Idx        *uint32  `json:"idx,omitempty"`
	Input      *uint32  `json:"input,omitempty"`
	By         *uint32  `json:"by,omitempty"`
	Keys       []uint32 `json:"keys,omitempty"`
	Predicate  *uint32  `json:"predicate,omitempty"`
	Truthy     *uint32  `json:"truthy,omitempty"`
	Falsy      *uint32  `json:"falsy,omitempty"`
	Offset     *uint32  `json:"offset,omitempty"`
	Length     *uint32  `json:"length,omitempty"`
	Function   *uint32  `json:"function,omitempty"`
	OrderBy    *uint32  `json:"order_by,omitempty"`
	Evaluation *uint32  `json:"evaluation,omitempty"`
	Quantile   *uint32  `json:"quantile,omitempty"`

	To     *dtypeJSON `json:"to,omitempty"`
	Strict bool       `json:"strict,omitempty"`

	ReturnsScalar bool `json:"returns_scalar,omitempty"`
	SkipEmpty     bool `json:"skip_empty,omitempty"`

	Descending    bool   `json:"descending,omitempty"`
	NullsLast     bool   `json:"nulls_last,omitempty"`
	MaintainOrder bool   `json:"maintain_order,omitempty"`
	DescList      []bool `json:"desc_list,omitempty"`
	NullsList     []bool `json:"nulls_list,omitempty"`

	AggOp         uint8 `json:"agg_op,omitempty"`
	PropagateNaNs bool  `json:"propagate_nans,omitempty"`
	DDof          int   `json:"ddof,omitempty"`
	IncludeNulls  bool  `json:"include_nulls,omitempty"`
	Method        uint8 `json:"method,omitempty"`

	Mapping    uint8 `json:"mapping,omitempty"`
	Variant    uint8 `json:"variant,omitempty"`
	MinSamples int   `json:"min_samples,omitempty"`

	Flags    uint16     `json:"flags,omitempty"`
	Refs     []refJSON  `json:"refs,omitempty"`
	FmtStr   string     `json:"fmt_str,omitempty"`
	Resolved *dtypeJSON `json:"resolved,omitempty"`
}

type scanJSON struct {
	Sources []string `json:"sources"`
	Format  uint8    `json:"format"`
	NRows   int64    `json:"n_rows,omitempty"`
	Rechunk bool     `json:"rechunk,omitempty"`
}

type joinJSON struct {
	How       uint8  `json:"how"`
	Suffix    string `json:"suffix,omitempty"`
	JoinNulls bool   `json:"join_nulls,omitempty"`
}

type distinctJSON struct {
	Subset        []string `json:"subset,omitempty"`
	Keep          uint8    `json:"keep,omitempty"`
	MaintainOrder bool     `json:"maintain_order,omitempty"`
}

type sinkJSON struct {
	Kind     string        `json:"kind"`
	Path     string        `json:"path,omitempty"`
	Format   uint8         `json:"format,omitempty"`
	Variant  uint8         `json:"variant,omitempty"`
	MaxRows  uint64        `json:"max_rows,omitempty"`
	Keys     []refJSON     `json:"keys,omitempty"`
	SortBy   []sortColJSON `json:"sort_by,omitempty"`
}

type opJSON struct {
	Type string `json:"type"`

	Input      *uint32  `json:"input,omitempty"`
	InputRight *uint32  `json:"input_right,omitempty"`
	Inputs     []uint32 `json:"inputs,omitempty"`
	Contexts   []uint32 `json:"contexts,omitempty"`

	Exprs     []refJSON `json:"exprs,omitempty"`
	Keys      []refJSON `json:"keys,omitempty"`
	Aggs      []refJSON `json:"aggs,omitempty"`
	LeftOn    []refJSON `json:"left_on,omitempty"`
	RightOn   []refJSON `json:"right_on,omitempty"`
	Predicate *refJSON  `json:"predicate,omitempty"`

	Schema       []fieldJSON `json:"schema,omitempty"`
	FileSchema   []fieldJSON `json:"file_schema,omitempty"`
	OutputSchema []fieldJSON `json:"output_schema,omitempty"`
	Columns      []fieldJSON `json:"columns,omitempty"`

	Scan *scanJSON `json:"scan,omitempty"`

	Offset int64  `json:"offset,omitempty"`
	Len    uint64 `json:"len,omitempty"`

	DescList      []bool     `json:"desc_list,omitempty"`
	NullsList     []bool     `json:"nulls_list,omitempty"`
	MaintainOrder bool       `json:"maintain_order,omitempty"`
	Slice         *SliceArgs `json:"slice,omitempty"`

	ID   string `json:"id,omitempty"`
	Hits uint32 `json:"hits,omitempty"`

	Proj     *ProjectionOptions `json:"proj,omitempty"`
	Join     *joinJSON          `json:"join,omitempty"`
	Distinct *distinctJSON      `json:"distinct,omitempty"`
	Union    *UnionOptions      `json:"union,omitempty"`
	HConcat  *HConcatOptions    `json:"hconcat,omitempty"`
	Sink     *sinkJSON          `json:"sink,omitempty"`

	Apply string `json:"apply,omitempty"`
	Key   string `json:"key,omitempty"`
}

func dtypeOut(t expr.DataType) dtypeJSON {
	out := dtypeJSON{Kind: uint8(t.Kind)}
	if t.Elem != nil {
		e := dtypeOut(*t.Elem)
		out.Elem = &e
	}
	if t.Fields != nil {
		out.Fields = schemaOut(t.Fields)
	}
	return out
}

func schemaOut(s *expr.Schema) []fieldJSON {
	if s == nil {
		return nil
	}
	out := make([]fieldJSON, s.Len())
	for i := range out {
		out[i] = fieldJSON{Name: s.Name(i), Type: dtypeOut(s.Type(i))}
	}
	return out
}

func litOut(l *expr.Literal) *litJSON {
	out := &litJSON{
		Kind:  uint8(l.Kind),
		Int:   l.Int,
		Float: l.Float,
		Str:   l.Str,
		Bool:  l.Bool,
	}
	if l.Type.Kind != expr.KindInvalid {
		t := dtypeOut(l.Type)
		out.Type = &t
	}
	return out
}

func refOut(r ExprRef) refJSON {
	return refJSON{
		Expr:      r.expr.idx,
		Name:      r.name,
		Inherited: r.inherited,
	}
}

func refsOut(rs []ExprRef) []refJSON {
	if len(rs) == 0 {
		return nil
	}
	out := make([]refJSON, len(rs))
	for i := range rs {
		out[i] = refOut(rs[i])
	}
	return out
}

func idx(n Node) *uint32 {
	i := n.idx
	return &i
}

func idxOpt(n Node) *uint32 {
	if n.IsZero() {
		return nil
	}
	return idx(n)
}

func nodesOut(ns []Node) []uint32 {
	if len(ns) == 0 {
		return nil
	}
	out := make([]uint32, len(ns))
	for i := range ns {
		out[i] = ns[i].idx
	}
	return out
}

func exprOut(e AExpr) exprJSON {
	switch e := e.(type) {
	case *AColumn:
		return exprJSON{Type: "col", Name: e.Name}
	case *ALiteral:
		return exprJSON{Type: "lit", Lit: litOut(e.Value)}
	case *ABinary:
		return exprJSON{Type: "binary", Op: uint8(e.Op),
			Left: idx(e.Left), Right: idx(e.Right)}
	case *ACast:
		to := dtypeOut(e.To)
		return exprJSON{Type: "cast", Expr: idx(e.Expr), To: &to, Strict: e.Strict}
	case *AGather:
		return exprJSON{Type: "gather", Expr: idx(e.Expr), Idx: idx(e.Idx),
			ReturnsScalar: e.ReturnsScalar}
	case *ASort:
		return exprJSON{Type: "sort", Expr: idx(e.Expr),
			Descending:    e.Options.Descending,
			NullsLast:     e.Options.NullsLast,
			MaintainOrder: e.Options.MaintainOrder}
	case *ASortBy:
		return exprJSON{Type: "sort_by", Expr: idx(e.Expr), Keys: nodesOut(e.By),
			DescList:      e.Options.Descending,
			NullsList:     e.Options.NullsLast,
			MaintainOrder: e.Options.MaintainOrder}
	case *AFilter:
		return exprJSON{Type: "filter", Input: idx(e.Input), By: idx(e.By)}
	case *ATernary:
		return exprJSON{Type: "ternary", Predicate: idx(e.Predicate),
			Truthy: idx(e.Truthy), Falsy: idx(e.Falsy)}
	case *AAgg:
		return exprJSON{Type: "agg", AggOp: uint8(e.Op), Input: idx(e.Input),
			PropagateNaNs: e.PropagateNaNs, DDof: e.DDof,
			IncludeNulls: e.IncludeNulls,
			Quantile:     idxOpt(e.Quantile), Method: uint8(e.Method)}
	case *AWindow:
		return exprJSON{Type: "window", Function: idx(e.Function),
			Keys: nodesOut(e.PartitionBy), OrderBy: idxOpt(e.OrderBy),
			Descending:    e.OrderOptions.Descending,
			NullsLast:     e.OrderOptions.NullsLast,
			MaintainOrder: e.OrderOptions.MaintainOrder,
			Mapping:       uint8(e.Mapping)}
	case *ASlice:
		return exprJSON{Type: "slice", Input: idx(e.Input),
			Offset: idx(e.Offset), Length: idx(e.Length)}
	case *AExplode:
		return exprJSON{Type: "explode", Expr: idx(e.Expr), SkipEmpty: e.SkipEmpty}
	case *AEval:
		return exprJSON{Type: "eval", Expr: idx(e.Expr),
			Evaluation: idx(e.Evaluation),
			Variant:    uint8(e.Variant), MinSamples: e.MinSamples}
	case *ALen:
		return exprJSON{Type: "len"}
	case *AFunction:
		return exprJSON{Type: "function", Name: e.Name, Field: e.FieldName,
			Flags: uint16(e.Options.Flags), Refs: refsOut(e.Inputs)}
	case *AAnonymous:
		resolved := dtypeOut(e.ResolvedType)
		return exprJSON{Type: "anonymous", FmtStr: e.FmtStr,
			Resolved: &resolved,
			Flags:    uint16(e.Options.Flags), Refs: refsOut(e.Inputs)}
	default:
		return exprJSON{Type: "invalid"}
	}
}

func planIdx(n PlanNode) *uint32 {
	i := n.idx
	return &i
}

func plansOut(ns []PlanNode) []uint32 {
	if len(ns) == 0 {
		return nil
	}
	out := make([]uint32, len(ns))
	for i := range ns {
		out[i] = ns[i].idx
	}
	return out
}

func opOut(op Op) opJSON {
	switch o := op.(type) {
	case *Scan:
		out := opJSON{Type: "scan",
			Scan: &scanJSON{Sources: o.Sources, Format: uint8(o.Format),
				NRows: o.Options.NRows, Rechunk: o.Options.Rechunk},
			FileSchema:   schemaOut(o.FileSchema),
			OutputSchema: schemaOut(o.OutputSchema)}
		if o.Predicate != nil {
			p := refOut(*o.Predicate)
			out.Predicate = &p
		}
		return out
	case *DataFrameScan:
		return opJSON{Type: "df_scan",
			Schema:       schemaOut(o.Schema),
			OutputSchema: schemaOut(o.OutputSchema)}
	case *SimpleProjection:
		return opJSON{Type: "simple_projection", Input: planIdx(o.Input),
			Columns: schemaOut(o.Columns)}
	case *Select:
		p := o.Options
		return opJSON{Type: "select", Input: planIdx(o.Input),
			Exprs: refsOut(o.Exprs), Schema: schemaOut(o.Schema), Proj: &p}
	case *Filter:
		p := refOut(o.Predicate)
		return opJSON{Type: "filter", Input: planIdx(o.Input), Predicate: &p}
	case *Slice:
		return opJSON{Type: "slice", Input: planIdx(o.Input),
			Offset: o.Offset, Len: o.Len}
	case *Sort:
		out := opJSON{Type: "sort", Input: planIdx(o.Input),
			Exprs:         refsOut(o.ByColumn),
			DescList:      o.Options.Descending,
			NullsList:     o.Options.NullsLast,
			MaintainOrder: o.Options.MaintainOrder}
		if o.Slice != nil {
			s := *o.Slice
			out.Slice = &s
		}
		return out
	case *Cache:
		return opJSON{Type: "cache", Input: planIdx(o.Input),
			ID: o.ID.String(), Hits: o.Hits}
	case *GroupBy:
		out := opJSON{Type: "group_by", Input: planIdx(o.Input),
			Keys: refsOut(o.Keys), Aggs: refsOut(o.Aggs),
			Schema:        schemaOut(o.Schema),
			MaintainOrder: o.MaintainOrder}
		if o.Options != nil && o.Options.Slice != nil {
			s := *o.Options.Slice
			out.Slice = &s
		}
		if o.Apply != nil {
			out.Apply = o.Apply.Name()
		}
		return out
	case *Join:
		out := opJSON{Type: "join",
			Input: planIdx(o.InputLeft), InputRight: planIdx(o.InputRight),
			LeftOn: refsOut(o.LeftOn), RightOn: refsOut(o.RightOn),
			Schema: schemaOut(o.Schema)}
		if o.Options != nil {
			out.Join = &joinJSON{How: uint8(o.Options.How),
				Suffix: o.Options.Suffix, JoinNulls: o.Options.JoinNulls}
		}
		return out
	case *HStack:
		p := o.Options
		return opJSON{Type: "with_columns", Input: planIdx(o.Input),
			Exprs: refsOut(o.Exprs), Schema: schemaOut(o.Schema), Proj: &p}
	case *Distinct:
		return opJSON{Type: "unique", Input: planIdx(o.Input),
			Distinct: &distinctJSON{Subset: o.Options.Subset,
				Keep:          uint8(o.Options.Keep),
				MaintainOrder: o.Options.MaintainOrder}}
	case *MapFunction:
		return opJSON{Type: "map", Input: planIdx(o.Input),
			Apply: o.Function.Name()}
	case *Union:
		u := o.Options
		return opJSON{Type: "union", Inputs: plansOut(o.Inputs), Union: &u}
	case *HConcat:
		h := o.Options
		return opJSON{Type: "hconcat", Inputs: plansOut(o.Inputs),
			Schema: schemaOut(o.Schema), HConcat: &h}
	case *ExtContext:
		return opJSON{Type: "ext_context", Input: planIdx(o.Input),
			Contexts: plansOut(o.Contexts), Schema: schemaOut(o.Schema)}
	case *Sink:
		out := opJSON{Type: "sink", Input: planIdx(o.Input)}
		switch p := o.Payload.(type) {
		case MemorySink:
			out.Sink = &sinkJSON{Kind: "memory"}
		case FileSink:
			out.Sink = &sinkJSON{Kind: "file", Path: p.Path, Format: uint8(p.Format)}
		case *PartitionSink:
			s := &sinkJSON{Kind: "partition", Path: p.BasePath,
				Format: uint8(p.Format), Variant: uint8(p.Variant),
				MaxRows: p.MaxRows, Keys: refsOut(p.KeyExprs)}
			for i := range p.PerPartitionSortBy {
				col := p.PerPartitionSortBy[i]
				s.SortBy = append(s.SortBy, sortColJSON{
					Ref:        refOut(col.Expr),
					Descending: col.Descending,
					NullsLast:  col.NullsLast,
				})
			}
			out.Sink = s
		}
		return out
	case *SinkMultiple:
		return opJSON{Type: "sink_multiple", Inputs: plansOut(o.Inputs)}
	case *MergeSorted:
		return opJSON{Type: "merge_sorted",
			Input: planIdx(o.InputLeft), InputRight: planIdx(o.InputRight),
			Key: o.Key}
	default:
		return opJSON{Type: "invalid"}
	}
}

func (t *Tree) wire() *treeJSON {
	out := &treeJSON{
		ID:   t.ID.String(),
		Root: t.Root.idx,
	}
	out.Exprs = make([]exprJSON, t.Exprs.Len())
	for i := range t.Exprs.nodes {
		out.Exprs[i] = exprOut(t.Exprs.nodes[i])
	}
	out.Ops = make([]opJSON, t.Ops.Len())
	for i := range t.Ops.ops {
		out.Ops[i] = opOut(t.Ops.ops[i])
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.wire())
}

// EncodeJSON renders the tree as indented JSON.
func EncodeJSON(t *Tree) ([]byte, error) {
	return json.MarshalIndent(t.wire(), "", "  ")
}

// EncodeYAML renders the tree as YAML.
func EncodeYAML(t *Tree) ([]byte, error) {
	return yaml.Marshal(t.wire())
}
