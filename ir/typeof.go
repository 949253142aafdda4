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

import "github.com/kestreldb/kestrel/expr"

// TypeOf computes the output type of the
// expression rooted at n against schema.
//
// This is deliberately not a full inference
// engine: it covers exactly what lowering
// needs (deriving element types for Eval and
// unifying branches), and reports Unknown for
// constructs whose type depends on an external
// function registry.
func TypeOf(a *ExprArena, n Node, schema *expr.Schema) (expr.DataType, error) {
	switch e := a.Get(n).(type) {
	case *AColumn:
		t, ok := schema.Lookup(e.Name)
		if !ok {
			return expr.DataType{}, expr.Errorf(expr.ComputeError,
				"column %q not found in schema", e.Name)
		}
		return t, nil
	case *ALiteral:
		return e.Value.DataType(), nil
	case *ABinary:
		if e.Op.IsComparison() {
			return expr.Boolean, nil
		}
		lt, err := TypeOf(a, e.Left, schema)
		if err != nil {
			return expr.DataType{}, err
		}
		rt, err := TypeOf(a, e.Right, schema)
		if err != nil {
			return expr.DataType{}, err
		}
		return expr.Supertype(lt, rt)
	case *ACast:
		return e.To, nil
	case *AGather:
		return TypeOf(a, e.Expr, schema)
	case *ASort:
		return TypeOf(a, e.Expr, schema)
	case *ASortBy:
		return TypeOf(a, e.Expr, schema)
	case *AFilter:
		return TypeOf(a, e.Input, schema)
	case *ASlice:
		return TypeOf(a, e.Input, schema)
	case *ATernary:
		tt, err := TypeOf(a, e.Truthy, schema)
		if err != nil {
			return expr.DataType{}, err
		}
		ft, err := TypeOf(a, e.Falsy, schema)
		if err != nil {
			return expr.DataType{}, err
		}
		return expr.Supertype(tt, ft)
	case *AExplode:
		t, err := TypeOf(a, e.Expr, schema)
		if err != nil {
			return expr.DataType{}, err
		}
		if t.Kind == expr.KindList {
			return *t.Elem, nil
		}
		return t, nil
	case *AAgg:
		return aggType(a, e, schema)
	case *AWindow:
		return TypeOf(a, e.Function, schema)
	case *ALen:
		return expr.UInt32, nil
	case *AEval:
		inner, err := TypeOf(a, e.Expr, schema)
		if err != nil {
			return expr.DataType{}, err
		}
		elem, err := evalElementType(e.Variant, inner)
		if err != nil {
			return expr.DataType{}, err
		}
		elemSchema := expr.MustSchema([]string{""}, []expr.DataType{elem})
		out, err := TypeOf(a, e.Evaluation, elemSchema)
		if err != nil {
			return expr.DataType{}, err
		}
		if e.Variant == expr.EvalList {
			return expr.ListOf(out), nil
		}
		return out, nil
	case *AFunction:
		if e.Name == StructFieldByName && len(e.Inputs) == 1 {
			t, err := TypeOf(a, e.Inputs[0].Expr(), schema)
			if err != nil {
				return expr.DataType{}, err
			}
			if t.Kind == expr.KindStruct {
				if ft, ok := t.Fields.Lookup(e.FieldName); ok {
					return ft, nil
				}
			}
		}
		// resolving a named function requires the
		// external registry; not needed for lowering
		return expr.Unknown, nil
	case *AAnonymous:
		return e.ResolvedType, nil
	default:
		return expr.Unknown, nil
	}
}

func aggType(a *ExprArena, e *AAgg, schema *expr.Schema) (expr.DataType, error) {
	in, err := TypeOf(a, e.Input, schema)
	if err != nil {
		return expr.DataType{}, err
	}
	switch e.Op {
	case expr.AggCount, expr.AggNUnique:
		return expr.UInt32, nil
	case expr.AggMean, expr.AggMedian, expr.AggQuantile:
		if in.Kind == expr.KindFloat32 {
			return expr.Float32, nil
		}
		return expr.Float64, nil
	case expr.AggStd, expr.AggVar:
		return expr.Float64, nil
	case expr.AggImplode:
		return expr.ListOf(in), nil
	case expr.AggGroups:
		return expr.ListOf(expr.UInt32), nil
	default:
		return in, nil
	}
}

// evalElementType derives the schema type of the
// evaluation placeholder column from the type of
// the evaluated expression.
func evalElementType(variant expr.EvalVariant, t expr.DataType) (expr.DataType, error) {
	switch variant {
	case expr.EvalList:
		if t.Kind != expr.KindList {
			return expr.DataType{}, expr.Errorf(expr.InvalidOperation,
				"`list.eval` expects a list type, got %s", t)
		}
		return *t.Elem, nil
	default:
		// cumulative evaluation runs over prefixes
		// of the input series itself
		return t, nil
	}
}
