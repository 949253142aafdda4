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
	"fmt"

	"github.com/google/uuid"
	"sigs.k8s.io/yaml"

	"github.com/kestreldb/kestrel/expr"
)

// DecodeJSON rebuilds a Tree from its JSON wire
// form. The arenas of the result are fresh: the
// integer positions on the wire are remapped to
// newly issued handles.
func DecodeJSON(data []byte) (*Tree, error) {
	var w treeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(&w)
}

// DecodeYAML rebuilds a Tree from its YAML form.
func DecodeYAML(data []byte) (*Tree, error) {
	var w treeJSON
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(&w)
}

// decoder remaps wire positions into freshly
// issued handles. Wire form stores children
// before parents, so every referenced position
// has already been added when its parent decodes.
type decoder struct {
	exprs *ExprArena
	ops   *PlanArena
}

func (d *decoder) node(i *uint32, what string) (Node, error) {
	if i == nil {
		return Node{}, fmt.Errorf("ir: decode: missing %s", what)
	}
	if int(*i) >= d.exprs.Len() {
		return Node{}, fmt.Errorf("ir: decode: %s index %d out of range", what, *i)
	}
	return Node{idx: *i, tag: d.exprs.tag}, nil
}

func (d *decoder) nodeOpt(i *uint32, what string) (Node, error) {
	if i == nil {
		return Node{}, nil
	}
	return d.node(i, what)
}

func (d *decoder) nodes(is []uint32, what string) ([]Node, error) {
	if len(is) == 0 {
		return nil, nil
	}
	out := make([]Node, len(is))
	for j := range is {
		n, err := d.node(&is[j], what)
		if err != nil {
			return nil, err
		}
		out[j] = n
	}
	return out, nil
}

func (d *decoder) ref(r refJSON, what string) (ExprRef, error) {
	n, err := d.node(&r.Expr, what)
	if err != nil {
		return ExprRef{}, err
	}
	if r.Inherited {
		return NewInherited(n, r.Name), nil
	}
	return NewAlias(n, r.Name), nil
}

func (d *decoder) refs(rs []refJSON, what string) ([]ExprRef, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	out := make([]ExprRef, len(rs))
	for i := range rs {
		r, err := d.ref(rs[i], what)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (d *decoder) plan(i *uint32, what string) (PlanNode, error) {
	if i == nil {
		return PlanNode{}, fmt.Errorf("ir: decode: missing %s", what)
	}
	if int(*i) >= d.ops.Len() {
		return PlanNode{}, fmt.Errorf("ir: decode: %s index %d out of range", what, *i)
	}
	return PlanNode{idx: *i, tag: d.ops.tag}, nil
}

func (d *decoder) plans(is []uint32, what string) ([]PlanNode, error) {
	if len(is) == 0 {
		return nil, nil
	}
	out := make([]PlanNode, len(is))
	for j := range is {
		n, err := d.plan(&is[j], what)
		if err != nil {
			return nil, err
		}
		out[j] = n
	}
	return out, nil
}

func dtypeIn(w *dtypeJSON) (expr.DataType, error) {
	if w == nil {
		return expr.DataType{}, nil
	}
	out := expr.DataType{Kind: expr.TypeKind(w.Kind)}
	if w.Elem != nil {
		e, err := dtypeIn(w.Elem)
		if err != nil {
			return expr.DataType{}, err
		}
		out.Elem = &e
	}
	// an empty field list is omitted on the wire,
	// but a struct type always carries a schema
	if out.Kind == expr.KindStruct || len(w.Fields) > 0 {
		fields, err := schemaIn(w.Fields)
		if err != nil {
			return expr.DataType{}, err
		}
		if fields == nil {
			fields = expr.MustSchema(nil, nil)
		}
		out.Fields = fields
	}
	return out, nil
}

func schemaIn(fields []fieldJSON) (*expr.Schema, error) {
	if fields == nil {
		return nil, nil
	}
	names := make([]string, len(fields))
	types := make([]expr.DataType, len(fields))
	for i := range fields {
		names[i] = fields[i].Name
		t, err := dtypeIn(&fields[i].Type)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return expr.NewSchema(names, types)
}

func litIn(w *litJSON) (*expr.Literal, error) {
	t, err := dtypeIn(w.Type)
	if err != nil {
		return nil, err
	}
	return &expr.Literal{
		Kind:  expr.LiteralKind(w.Kind),
		Type:  t,
		Int:   w.Int,
		Float: w.Float,
		Str:   w.Str,
		Bool:  w.Bool,
	}, nil
}

func (d *decoder) expr(w *exprJSON) (AExpr, error) {
	switch w.Type {
	case "col":
		return &AColumn{Name: w.Name}, nil
	case "lit":
		if w.Lit == nil {
			return nil, fmt.Errorf("ir: decode: literal without value")
		}
		v, err := litIn(w.Lit)
		if err != nil {
			return nil, err
		}
		return &ALiteral{Value: v}, nil
	case "binary":
		l, err := d.node(w.Left, "binary left")
		if err != nil {
			return nil, err
		}
		r, err := d.node(w.Right, "binary right")
		if err != nil {
			return nil, err
		}
		return &ABinary{Left: l, Op: expr.BinaryOp(w.Op), Right: r}, nil
	case "cast":
		e, err := d.node(w.Expr, "cast expr")
		if err != nil {
			return nil, err
		}
		to, err := dtypeIn(w.To)
		if err != nil {
			return nil, err
		}
		return &ACast{Expr: e, To: to, Strict: w.Strict}, nil
	case "gather":
		e, err := d.node(w.Expr, "gather expr")
		if err != nil {
			return nil, err
		}
		ix, err := d.node(w.Idx, "gather idx")
		if err != nil {
			return nil, err
		}
		return &AGather{Expr: e, Idx: ix, ReturnsScalar: w.ReturnsScalar}, nil
	case "sort":
		e, err := d.node(w.Expr, "sort expr")
		if err != nil {
			return nil, err
		}
		return &ASort{Expr: e, Options: expr.SortOptions{
			Descending:    w.Descending,
			NullsLast:     w.NullsLast,
			MaintainOrder: w.MaintainOrder,
		}}, nil
	case "sort_by":
		e, err := d.node(w.Expr, "sort_by expr")
		if err != nil {
			return nil, err
		}
		by, err := d.nodes(w.Keys, "sort_by key")
		if err != nil {
			return nil, err
		}
		return &ASortBy{Expr: e, By: by, Options: expr.SortMultipleOptions{
			Descending:    w.DescList,
			NullsLast:     w.NullsList,
			MaintainOrder: w.MaintainOrder,
		}}, nil
	case "filter":
		in, err := d.node(w.Input, "filter input")
		if err != nil {
			return nil, err
		}
		by, err := d.node(w.By, "filter by")
		if err != nil {
			return nil, err
		}
		return &AFilter{Input: in, By: by}, nil
	case "ternary":
		p, err := d.node(w.Predicate, "ternary predicate")
		if err != nil {
			return nil, err
		}
		tr, err := d.node(w.Truthy, "ternary truthy")
		if err != nil {
			return nil, err
		}
		f, err := d.node(w.Falsy, "ternary falsy")
		if err != nil {
			return nil, err
		}
		return &ATernary{Predicate: p, Truthy: tr, Falsy: f}, nil
	case "agg":
		in, err := d.node(w.Input, "agg input")
		if err != nil {
			return nil, err
		}
		q, err := d.nodeOpt(w.Quantile, "agg quantile")
		if err != nil {
			return nil, err
		}
		return &AAgg{
			Op:            expr.AggOp(w.AggOp),
			Input:         in,
			PropagateNaNs: w.PropagateNaNs,
			DDof:          w.DDof,
			IncludeNulls:  w.IncludeNulls,
			Quantile:      q,
			Method:        expr.QuantileMethod(w.Method),
		}, nil
	case "window":
		fn, err := d.node(w.Function, "window function")
		if err != nil {
			return nil, err
		}
		parts, err := d.nodes(w.Keys, "window partition")
		if err != nil {
			return nil, err
		}
		order, err := d.nodeOpt(w.OrderBy, "window order_by")
		if err != nil {
			return nil, err
		}
		return &AWindow{
			Function:    fn,
			PartitionBy: parts,
			OrderBy:     order,
			OrderOptions: expr.SortOptions{
				Descending:    w.Descending,
				NullsLast:     w.NullsLast,
				MaintainOrder: w.MaintainOrder,
			},
			Mapping: expr.WindowMapping(w.Mapping),
		}, nil
	case "slice":
		in, err := d.node(w.Input, "slice input")
		if err != nil {
			return nil, err
		}
		off, err := d.node(w.Offset, "slice offset")
		if err != nil {
			return nil, err
		}
		length, err := d.node(w.Length, "slice length")
		if err != nil {
			return nil, err
		}
		return &ASlice{Input: in, Offset: off, Length: length}, nil
	case "explode":
		e, err := d.node(w.Expr, "explode expr")
		if err != nil {
			return nil, err
		}
		return &AExplode{Expr: e, SkipEmpty: w.SkipEmpty}, nil
	case "eval":
		e, err := d.node(w.Expr, "eval expr")
		if err != nil {
			return nil, err
		}
		ev, err := d.node(w.Evaluation, "eval evaluation")
		if err != nil {
			return nil, err
		}
		return &AEval{Expr: e, Evaluation: ev,
			Variant:    expr.EvalVariant(w.Variant),
			MinSamples: w.MinSamples}, nil
	case "len":
		return &ALen{}, nil
	case "function":
		refs, err := d.refs(w.Refs, "function input")
		if err != nil {
			return nil, err
		}
		return &AFunction{
			Inputs:    refs,
			Name:      w.Name,
			FieldName: w.Field,
			Options:   expr.FunctionOptions{Flags: expr.FunctionFlags(w.Flags)},
		}, nil
	case "anonymous":
		refs, err := d.refs(w.Refs, "anonymous input")
		if err != nil {
			return nil, err
		}
		resolved, err := dtypeIn(w.Resolved)
		if err != nil {
			return nil, err
		}
		// the callable itself does not survive the
		// wire; the embedding engine must re-bind it
		return &AAnonymous{
			Inputs:       refs,
			ResolvedType: resolved,
			Options:      expr.FunctionOptions{Flags: expr.FunctionFlags(w.Flags)},
			FmtStr:       w.FmtStr,
		}, nil
	default:
		return nil, fmt.Errorf("ir: decode: unknown expression type %q", w.Type)
	}
}

// namedUDF is the wire stand-in for an opaque
// user-defined frame function.
type namedUDF struct {
	name string
}

func (u namedUDF) Name() string { return u.name }

func (d *decoder) op(w *opJSON) (Op, error) {
	switch w.Type {
	case "scan":
		if w.Scan == nil {
			return nil, fmt.Errorf("ir: decode: scan without options")
		}
		fileSchema, err := schemaIn(w.FileSchema)
		if err != nil {
			return nil, err
		}
		outSchema, err := schemaIn(w.OutputSchema)
		if err != nil {
			return nil, err
		}
		out := &Scan{
			Sources:      w.Scan.Sources,
			Format:       FileFormat(w.Scan.Format),
			FileSchema:   fileSchema,
			OutputSchema: outSchema,
			Options:      ScanOptions{NRows: w.Scan.NRows, Rechunk: w.Scan.Rechunk},
		}
		if w.Predicate != nil {
			p, err := d.ref(*w.Predicate, "scan predicate")
			if err != nil {
				return nil, err
			}
			out.Predicate = &p
		}
		return out, nil
	case "df_scan":
		schema, err := schemaIn(w.Schema)
		if err != nil {
			return nil, err
		}
		outSchema, err := schemaIn(w.OutputSchema)
		if err != nil {
			return nil, err
		}
		return &DataFrameScan{Schema: schema, OutputSchema: outSchema}, nil
	case "simple_projection":
		in, err := d.plan(w.Input, "projection input")
		if err != nil {
			return nil, err
		}
		cols, err := schemaIn(w.Columns)
		if err != nil {
			return nil, err
		}
		return &SimpleProjection{Input: in, Columns: cols}, nil
	case "select":
		in, err := d.plan(w.Input, "select input")
		if err != nil {
			return nil, err
		}
		exprs, err := d.refs(w.Exprs, "select expr")
		if err != nil {
			return nil, err
		}
		schema, err := schemaIn(w.Schema)
		if err != nil {
			return nil, err
		}
		out := &Select{Input: in, Exprs: exprs, Schema: schema}
		if w.Proj != nil {
			out.Options = *w.Proj
		}
		return out, nil
	case "filter":
		in, err := d.plan(w.Input, "filter input")
		if err != nil {
			return nil, err
		}
		if w.Predicate == nil {
			return nil, fmt.Errorf("ir: decode: filter without predicate")
		}
		p, err := d.ref(*w.Predicate, "filter predicate")
		if err != nil {
			return nil, err
		}
		return &Filter{Input: in, Predicate: p}, nil
	case "slice":
		in, err := d.plan(w.Input, "slice input")
		if err != nil {
			return nil, err
		}
		return &Slice{Input: in, Offset: w.Offset, Len: w.Len}, nil
	case "sort":
		in, err := d.plan(w.Input, "sort input")
		if err != nil {
			return nil, err
		}
		by, err := d.refs(w.Exprs, "sort key")
		if err != nil {
			return nil, err
		}
		out := &Sort{Input: in, ByColumn: by, Options: expr.SortMultipleOptions{
			Descending:    w.DescList,
			NullsLast:     w.NullsList,
			MaintainOrder: w.MaintainOrder,
		}}
		if w.Slice != nil {
			s := *w.Slice
			out.Slice = &s
		}
		return out, nil
	case "cache":
		in, err := d.plan(w.Input, "cache input")
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(w.ID)
		if err != nil {
			return nil, fmt.Errorf("ir: decode: cache id: %w", err)
		}
		return &Cache{Input: in, ID: id, Hits: w.Hits}, nil
	case "group_by":
		in, err := d.plan(w.Input, "group_by input")
		if err != nil {
			return nil, err
		}
		keys, err := d.refs(w.Keys, "group_by key")
		if err != nil {
			return nil, err
		}
		aggs, err := d.refs(w.Aggs, "group_by agg")
		if err != nil {
			return nil, err
		}
		schema, err := schemaIn(w.Schema)
		if err != nil {
			return nil, err
		}
		out := &GroupBy{Input: in, Keys: keys, Aggs: aggs,
			Schema:        schema,
			MaintainOrder: w.MaintainOrder}
		if w.Slice != nil {
			s := *w.Slice
			out.Options = &GroupByOptions{Slice: &s}
		}
		if w.Apply != "" {
			out.Apply = namedUDF{name: w.Apply}
		}
		return out, nil
	case "join":
		left, err := d.plan(w.Input, "join left input")
		if err != nil {
			return nil, err
		}
		right, err := d.plan(w.InputRight, "join right input")
		if err != nil {
			return nil, err
		}
		leftOn, err := d.refs(w.LeftOn, "join left key")
		if err != nil {
			return nil, err
		}
		rightOn, err := d.refs(w.RightOn, "join right key")
		if err != nil {
			return nil, err
		}
		schema, err := schemaIn(w.Schema)
		if err != nil {
			return nil, err
		}
		out := &Join{InputLeft: left, InputRight: right,
			Schema: schema,
			LeftOn: leftOn, RightOn: rightOn}
		if w.Join != nil {
			out.Options = &JoinOptions{How: JoinKind(w.Join.How),
				Suffix: w.Join.Suffix, JoinNulls: w.Join.JoinNulls}
		}
		return out, nil
	case "with_columns":
		in, err := d.plan(w.Input, "with_columns input")
		if err != nil {
			return nil, err
		}
		exprs, err := d.refs(w.Exprs, "with_columns expr")
		if err != nil {
			return nil, err
		}
		schema, err := schemaIn(w.Schema)
		if err != nil {
			return nil, err
		}
		out := &HStack{Input: in, Exprs: exprs, Schema: schema}
		if w.Proj != nil {
			out.Options = *w.Proj
		}
		return out, nil
	case "unique":
		in, err := d.plan(w.Input, "unique input")
		if err != nil {
			return nil, err
		}
		out := &Distinct{Input: in}
		if w.Distinct != nil {
			out.Options = DistinctOptions{Subset: w.Distinct.Subset,
				Keep:          UniqueKeep(w.Distinct.Keep),
				MaintainOrder: w.Distinct.MaintainOrder}
		}
		return out, nil
	case "map":
		in, err := d.plan(w.Input, "map input")
		if err != nil {
			return nil, err
		}
		return &MapFunction{Input: in, Function: namedUDF{name: w.Apply}}, nil
	case "union":
		inputs, err := d.plans(w.Inputs, "union input")
		if err != nil {
			return nil, err
		}
		out := &Union{Inputs: inputs}
		if w.Union != nil {
			out.Options = *w.Union
		}
		return out, nil
	case "hconcat":
		inputs, err := d.plans(w.Inputs, "hconcat input")
		if err != nil {
			return nil, err
		}
		schema, err := schemaIn(w.Schema)
		if err != nil {
			return nil, err
		}
		out := &HConcat{Inputs: inputs, Schema: schema}
		if w.HConcat != nil {
			out.Options = *w.HConcat
		}
		return out, nil
	case "ext_context":
		in, err := d.plan(w.Input, "ext_context input")
		if err != nil {
			return nil, err
		}
		ctxs, err := d.plans(w.Contexts, "ext_context context")
		if err != nil {
			return nil, err
		}
		schema, err := schemaIn(w.Schema)
		if err != nil {
			return nil, err
		}
		return &ExtContext{Input: in, Contexts: ctxs, Schema: schema}, nil
	case "sink":
		in, err := d.plan(w.Input, "sink input")
		if err != nil {
			return nil, err
		}
		out := &Sink{Input: in}
		if w.Sink == nil {
			return nil, fmt.Errorf("ir: decode: sink without destination")
		}
		switch w.Sink.Kind {
		case "memory":
			out.Payload = MemorySink{}
		case "file":
			out.Payload = FileSink{Path: w.Sink.Path, Format: FileFormat(w.Sink.Format)}
		case "partition":
			keys, err := d.refs(w.Sink.Keys, "sink partition key")
			if err != nil {
				return nil, err
			}
			p := &PartitionSink{BasePath: w.Sink.Path,
				Format:  FileFormat(w.Sink.Format),
				Variant: PartitionVariant(w.Sink.Variant),
				MaxRows: w.Sink.MaxRows, KeyExprs: keys}
			for _, col := range w.Sink.SortBy {
				r, err := d.ref(col.Ref, "sink sort key")
				if err != nil {
					return nil, err
				}
				p.PerPartitionSortBy = append(p.PerPartitionSortBy, SortColumn{
					Expr: r, Descending: col.Descending, NullsLast: col.NullsLast,
				})
			}
			out.Payload = p
		default:
			return nil, fmt.Errorf("ir: decode: unknown sink kind %q", w.Sink.Kind)
		}
		return out, nil
	case "sink_multiple":
		inputs, err := d.plans(w.Inputs, "sink_multiple input")
		if err != nil {
			return nil, err
		}
		return &SinkMultiple{Inputs: inputs}, nil
	case "merge_sorted":
		left, err := d.plan(w.Input, "merge_sorted left input")
		if err != nil {
			return nil, err
		}
		right, err := d.plan(w.InputRight, "merge_sorted right input")
		if err != nil {
			return nil, err
		}
		return &MergeSorted{InputLeft: left, InputRight: right, Key: w.Key}, nil
	case "invalid":
		return &Invalid{}, nil
	default:
		return nil, fmt.Errorf("ir: decode: unknown operator type %q", w.Type)
	}
}

func fromWire(w *treeJSON) (*Tree, error) {
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return nil, fmt.Errorf("ir: decode: plan id: %w", err)
	}
	d := &decoder{exprs: NewExprArena(), ops: NewPlanArena()}
	// children precede parents on the wire; the
	// index bounds checks enforce that
	d.exprs.nodes = make([]AExpr, 0, len(w.Exprs))
	d.ops.ops = make([]Op, 0, len(w.Ops))
	for i := range w.Exprs {
		e, err := d.expr(&w.Exprs[i])
		if err != nil {
			return nil, err
		}
		d.exprs.Add(e)
	}
	for i := range w.Ops {
		op, err := d.op(&w.Ops[i])
		if err != nil {
			return nil, err
		}
		d.ops.Add(op)
	}
	root, err := d.plan(&w.Root, "root")
	if err != nil {
		return nil, err
	}
	return &Tree{ID: id, Root: root, Ops: d.ops, Exprs: d.exprs}, nil
}
