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
	"github.com/kestreldb/kestrel/expr"
)

// FieldScope is the enclosing struct scope used
// to resolve Field expressions: the handle of the
// struct-valued input and the schema of its fields.
type FieldScope struct {
	Input  Node
	Fields *expr.Schema
}

// Context carries the state of one lowering pass.
type Context struct {
	Arena  *ExprArena
	Schema *expr.Schema
	// WithFields is non-nil inside expressions
	// that establish a struct field scope.
	WithFields *FieldScope
}

// Lower converts a DSL expression into arena
// nodes and returns the wrapped top-level
// reference. Dynamic literals stay dynamic;
// see LowerMaterialized.
//
// On error the arena may contain orphaned nodes
// from the failed walk; callers are expected to
// discard it wholesale.
func Lower(e expr.Node, arena *ExprArena, schema *expr.Schema) (ExprRef, error) {
	return LowerWith(e, &Context{Arena: arena, Schema: schema})
}

// LowerMaterialized is Lower for call sites that
// demand a concrete type: a top-level dynamic
// literal is materialized before insertion.
func LowerMaterialized(e expr.Node, arena *ExprArena, schema *expr.Schema) (ExprRef, error) {
	ctx := &Context{Arena: arena, Schema: schema}
	n, name, err := lowerMat(e, ctx)
	if err != nil {
		return ExprRef{}, err
	}
	return wrapRef(arena, n, name), nil
}

// LowerAll lowers a list of expressions into the
// same arena, stopping at the first failure.
func LowerAll(es []expr.Node, arena *ExprArena, schema *expr.Schema) ([]ExprRef, error) {
	ctx := &Context{Arena: arena, Schema: schema}
	return lowerAll(es, ctx)
}

// LowerWith lowers an expression in an explicit
// context; it is the entry point for lowering
// inside a struct field scope.
func LowerWith(e expr.Node, ctx *Context) (ExprRef, error) {
	n, name, err := lowerExpr(e, ctx)
	if err != nil {
		return ExprRef{}, err
	}
	return wrapRef(ctx.Arena, n, name), nil
}

func lowerAll(es []expr.Node, ctx *Context) ([]ExprRef, error) {
	out := make([]ExprRef, 0, len(es))
	for i := range es {
		r, err := LowerWith(es[i], ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// lowerAllMat is lowerAll for argument positions
// that demand concrete types (function inputs).
func lowerAllMat(es []expr.Node, ctx *Context) ([]ExprRef, error) {
	out := make([]ExprRef, 0, len(es))
	for i := range es {
		n, name, err := lowerMat(es[i], ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, wrapRef(ctx.Arena, n, name))
	}
	return out, nil
}

// wrapRef picks the output-name policy: a bare
// column reference keeps the name baked into the
// node; everything else gets an explicit alias.
func wrapRef(a *ExprArena, n Node, name string) ExprRef {
	if c, ok := a.Get(n).(*AColumn); ok && c.Name == name {
		return NewInherited(n, name)
	}
	return NewAlias(n, name)
}

// lowerMat lowers an expression in a position
// that demands a concrete type: a dynamic
// literal (possibly under an alias) is
// materialized before insertion.
func lowerMat(e expr.Node, ctx *Context) (Node, string, error) {
	switch t := e.(type) {
	case *expr.Literal:
		if t.IsDynamic() {
			e = t.Materialize()
		}
	case *expr.Alias:
		if lit, ok := t.Expr.(*expr.Literal); ok && lit.IsDynamic() {
			e = &expr.Alias{Expr: lit.Materialize(), Name: t.Name}
		}
	}
	return lowerExpr(e, ctx)
}

// lowerExpr converts one DSL node and its children
// into arena nodes, returning the inserted handle
// and the propagated output name.
func lowerExpr(e expr.Node, ctx *Context) (Node, string, error) {
	switch t := e.(type) {
	case *expr.Alias:
		// an alias renames the propagated result;
		// it does not insert a node of its own
		n, _, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		return n, t.Name, nil

	case expr.Column:
		n := ctx.Arena.Add(&AColumn{Name: string(t)})
		return n, string(t), nil

	case *expr.Literal:
		n := ctx.Arena.Add(&ALiteral{Value: t})
		return n, expr.LiteralName, nil

	case *expr.Binary:
		l, name, err := lowerExpr(t.Left, ctx)
		if err != nil {
			return Node{}, "", err
		}
		r, _, err := lowerExpr(t.Right, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&ABinary{Left: l, Op: t.Op, Right: r})
		return n, name, nil

	case *expr.Cast:
		inner, name, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&ACast{Expr: inner, To: t.To, Strict: t.Strict})
		return n, name, nil

	case *expr.Gather:
		inner, name, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		idx, _, err := lowerMat(t.Idx, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&AGather{Expr: inner, Idx: idx, ReturnsScalar: t.ReturnsScalar})
		return n, name, nil

	case *expr.Sort:
		inner, name, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&ASort{Expr: inner, Options: t.Options})
		return n, name, nil

	case *expr.SortBy:
		inner, name, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		by := make([]Node, 0, len(t.By))
		for i := range t.By {
			b, _, err := lowerExpr(t.By[i], ctx)
			if err != nil {
				return Node{}, "", err
			}
			by = append(by, b)
		}
		n := ctx.Arena.Add(&ASortBy{Expr: inner, By: by, Options: t.Options})
		return n, name, nil

	case *expr.Filter:
		input, name, err := lowerExpr(t.Input, ctx)
		if err != nil {
			return Node{}, "", err
		}
		by, _, err := lowerMat(t.By, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&AFilter{Input: input, By: by})
		return n, name, nil

	case *expr.Agg:
		return lowerAgg(t, ctx)

	case *expr.Ternary:
		p, _, err := lowerMat(t.Predicate, ctx)
		if err != nil {
			return Node{}, "", err
		}
		tr, name, err := lowerExpr(t.Truthy, ctx)
		if err != nil {
			return Node{}, "", err
		}
		f, _, err := lowerExpr(t.Falsy, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&ATernary{Predicate: p, Truthy: tr, Falsy: f})
		return n, name, nil

	case *expr.Window:
		fn, name, err := lowerExpr(t.Function, ctx)
		if err != nil {
			return Node{}, "", err
		}
		parts := make([]Node, 0, len(t.PartitionBy))
		for i := range t.PartitionBy {
			p, _, err := lowerMat(t.PartitionBy[i], ctx)
			if err != nil {
				return Node{}, "", err
			}
			parts = append(parts, p)
		}
		var order Node
		if t.OrderBy != nil {
			order, _, err = lowerExpr(t.OrderBy, ctx)
			if err != nil {
				return Node{}, "", err
			}
		}
		n := ctx.Arena.Add(&AWindow{
			Function:     fn,
			PartitionBy:  parts,
			OrderBy:      order,
			OrderOptions: t.OrderOptions,
			Mapping:      t.Mapping,
		})
		return n, name, nil

	case *expr.Slice:
		input, name, err := lowerExpr(t.Input, ctx)
		if err != nil {
			return Node{}, "", err
		}
		off, _, err := lowerMat(t.Offset, ctx)
		if err != nil {
			return Node{}, "", err
		}
		length, _, err := lowerMat(t.Length, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&ASlice{Input: input, Offset: off, Length: length})
		return n, name, nil

	case *expr.Explode:
		inner, name, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		n := ctx.Arena.Add(&AExplode{Expr: inner, SkipEmpty: t.SkipEmpty})
		return n, name, nil

	case *expr.Eval:
		return lowerEval(t, ctx)

	case expr.Len:
		return ctx.Arena.Add(&ALen{}), expr.LenName, nil

	case *expr.KeepName:
		inner, _, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		name, ok := ctx.Arena.findName(inner)
		if !ok {
			return Node{}, "", expr.Errorf(expr.InvalidOperation,
				"`name.keep` expected at least one column or struct.field")
		}
		return inner, name, nil

	case *expr.RenameAlias:
		inner, name, err := lowerExpr(t.Expr, ctx)
		if err != nil {
			return Node{}, "", err
		}
		if t.Fn == nil {
			return Node{}, "", expr.Errorf(expr.InvalidOperation,
				"`name.map` requires a rename function")
		}
		renamed, err := t.Fn(name)
		if err != nil {
			return Node{}, "", err
		}
		return inner, renamed, nil

	case *expr.Field:
		return lowerField(t, ctx)

	case *expr.Function:
		return lowerFunction(t, ctx)

	case *expr.AnonymousFunction:
		return lowerAnonymous(t, ctx)

	case *expr.SubPlan:
		return Node{}, "", expr.Errorf(expr.InvalidOperation,
			"subplan expressions are not allowed in this context; expand them first")

	case *expr.Selector:
		return Node{}, "", expr.Errorf(expr.InvalidOperation,
			"selector %q is not allowed in this context; expand it into columns first",
			t.Pattern)

	default:
		return Node{}, "", expr.Errorf(expr.InvalidOperation,
			"cannot lower expression %s", expr.ToString(e))
	}
}

// lowerAgg lowers an aggregation; aggregation
// cannot operate on a deferred literal, so the
// input is always materialized.
func lowerAgg(t *expr.Agg, ctx *Context) (Node, string, error) {
	if t.Op == expr.AggNone {
		return Node{}, "", expr.Errorf(expr.InvalidOperation, "aggregate without an operation")
	}
	input, name, err := lowerMat(t.Input, ctx)
	if err != nil {
		return Node{}, "", err
	}
	out := &AAgg{
		Op:            t.Op,
		Input:         input,
		PropagateNaNs: t.PropagateNaNs,
		DDof:          t.DDof,
		IncludeNulls:  t.IncludeNulls,
		Method:        t.Method,
	}
	if t.Op == expr.AggQuantile {
		if t.Quantile == nil {
			return Node{}, "", expr.Errorf(expr.ShapeMismatch,
				"quantile aggregate requires a quantile parameter")
		}
		q, _, err := lowerMat(t.Quantile, ctx)
		if err != nil {
			return Node{}, "", err
		}
		out.Quantile = q
	}
	return ctx.Arena.Add(out), name, nil
}

// lowerEval lowers an element-wise evaluation.
// The evaluation expression runs in a nested
// context whose schema is a single anonymous
// column of the element type.
func lowerEval(t *expr.Eval, ctx *Context) (Node, string, error) {
	inner, name, err := lowerExpr(t.Expr, ctx)
	if err != nil {
		return Node{}, "", err
	}
	innerType, err := TypeOf(ctx.Arena, inner, ctx.Schema)
	if err != nil {
		return Node{}, "", err
	}
	elem, err := evalElementType(t.Variant, innerType)
	if err != nil {
		return Node{}, "", err
	}
	elemSchema := expr.MustSchema([]string{""}, []expr.DataType{elem})
	nested := &Context{Arena: ctx.Arena, Schema: elemSchema}
	evaluation, _, err := lowerExpr(t.Evaluation, nested)
	if err != nil {
		return Node{}, "", err
	}

	switch t.Variant {
	case expr.EvalList:
		var bad string
		ctx.Arena.WalkExpr(evaluation, func(_ Node, e AExpr) bool {
			if c, ok := e.(*AColumn); ok && c.Name != "" {
				bad = c.Name
				return false
			}
			return true
		})
		if bad != "" {
			return Node{}, "", expr.Errorf(expr.InvalidOperation,
				"named column %q is not allowed in `list.eval`; use the anonymous element column", bad)
		}
	case expr.EvalCumulative:
		if !IsScalar(ctx.Arena, evaluation) {
			return Node{}, "", expr.Errorf(expr.InvalidOperation,
				"`cumulative_eval` is not allowed with non-scalar output")
		}
	}

	n := ctx.Arena.Add(&AEval{
		Expr:       inner,
		Evaluation: evaluation,
		Variant:    t.Variant,
		MinSamples: t.MinSamples,
	})
	return n, name, nil
}

// lowerField resolves a struct field access
// against the enclosing struct scope.
func lowerField(t *expr.Field, ctx *Context) (Node, string, error) {
	if ctx.WithFields == nil {
		return Node{}, "", expr.Errorf(expr.InvalidOperation,
			"`field(%q)` called outside of struct context", t.Name)
	}
	if !ctx.WithFields.Fields.Contains(t.Name) {
		return Node{}, "", expr.Errorf(expr.InvalidOperation,
			"field %q does not exist on struct with fields %v",
			t.Name, ctx.WithFields.Fields.Names())
	}
	n := ctx.Arena.Add(&AFunction{
		Inputs:    []ExprRef{NewAlias(ctx.WithFields.Input, "")},
		Name:      StructFieldByName,
		FieldName: t.Name,
		Options:   expr.ElementwiseOptions(),
	})
	return n, t.Name, nil
}

// functionOutputName implements the shared naming
// rule of function calls: the first input's name,
// or the function's display string when there are
// no inputs.
func functionOutputName(inputs []ExprRef, display string) string {
	if len(inputs) == 0 {
		return display
	}
	return inputs[0].OutputName()
}

func lowerFunction(t *expr.Function, ctx *Context) (Node, string, error) {
	if err := t.Options.Check(); err != nil {
		return Node{}, "", err
	}
	if len(t.Inputs) == 0 && !t.Options.Flags.Contains(expr.AllowEmptyInputs) {
		return Node{}, "", expr.Errorf(expr.NoData,
			"function %q expects at least one input", t.Name)
	}
	inputs, err := lowerAllMat(t.Inputs, ctx)
	if err != nil {
		return Node{}, "", err
	}
	n := ctx.Arena.Add(&AFunction{
		Inputs:  inputs,
		Name:    t.Name,
		Options: t.Options,
	})
	return n, functionOutputName(inputs, t.Name), nil
}

func lowerAnonymous(t *expr.AnonymousFunction, ctx *Context) (Node, string, error) {
	if err := t.Options.Check(); err != nil {
		return Node{}, "", err
	}
	if t.Fn == nil {
		return Node{}, "", expr.Errorf(expr.InvalidOperation,
			"anonymous function %q has no implementation", t.FmtStr)
	}
	if len(t.Inputs) == 0 && !t.Options.Flags.Contains(expr.AllowEmptyInputs) {
		return Node{}, "", expr.Errorf(expr.NoData,
			"function %q expects at least one input", t.FmtStr)
	}
	inputs, err := lowerAllMat(t.Inputs, ctx)
	if err != nil {
		return Node{}, "", err
	}
	// the function and its declared output type
	// are resolved against the schema up front;
	// resolution failure aborts the lowering
	if err := t.Fn.Resolve(ctx.Schema); err != nil {
		return Node{}, "", err
	}
	resolved := expr.Unknown
	if t.Output != nil {
		resolved, err = t.Output.Resolve(ctx.Schema)
		if err != nil {
			return Node{}, "", err
		}
	}
	n := ctx.Arena.Add(&AAnonymous{
		Inputs:       inputs,
		Fn:           t.Fn,
		Output:       t.Output,
		ResolvedType: resolved,
		Options:      t.Options,
		FmtStr:       t.FmtStr,
	})
	return n, functionOutputName(inputs, t.FmtStr), nil
}
