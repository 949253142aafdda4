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
	"fmt"
	"strings"

	"github.com/kestreldb/kestrel/expr"
)

// ExprString renders the expression rooted at n
// back into DSL-like notation.
func ExprString(a *ExprArena, n Node) string {
	var dst strings.Builder
	writeExpr(&dst, a, n)
	return dst.String()
}

func writeExpr(dst *strings.Builder, a *ExprArena, n Node) {
	switch e := a.Get(n).(type) {
	case *AColumn:
		fmt.Fprintf(dst, "col(%q)", e.Name)
	case *ALiteral:
		dst.WriteString(expr.ToString(e.Value))
	case *ABinary:
		dst.WriteByte('(')
		writeExpr(dst, a, e.Left)
		dst.WriteByte(' ')
		dst.WriteString(e.Op.String())
		dst.WriteByte(' ')
		writeExpr(dst, a, e.Right)
		dst.WriteByte(')')
	case *ACast:
		writeExpr(dst, a, e.Expr)
		fmt.Fprintf(dst, ".cast(%s)", e.To)
	case *AGather:
		writeExpr(dst, a, e.Expr)
		dst.WriteString(".gather(")
		writeExpr(dst, a, e.Idx)
		dst.WriteByte(')')
	case *ASort:
		writeExpr(dst, a, e.Expr)
		if e.Options.Descending {
			dst.WriteString(".sort(descending)")
		} else {
			dst.WriteString(".sort()")
		}
	case *ASortBy:
		writeExpr(dst, a, e.Expr)
		dst.WriteString(".sort_by(")
		writeExprList(dst, a, e.By)
		dst.WriteByte(')')
	case *AFilter:
		writeExpr(dst, a, e.Input)
		dst.WriteString(".filter(")
		writeExpr(dst, a, e.By)
		dst.WriteByte(')')
	case *ATernary:
		dst.WriteString("when(")
		writeExpr(dst, a, e.Predicate)
		dst.WriteString(").then(")
		writeExpr(dst, a, e.Truthy)
		dst.WriteString(").otherwise(")
		writeExpr(dst, a, e.Falsy)
		dst.WriteByte(')')
	case *AAgg:
		writeExpr(dst, a, e.Input)
		if e.Op == expr.AggQuantile && !e.Quantile.IsZero() {
			dst.WriteString(".quantile(")
			writeExpr(dst, a, e.Quantile)
			dst.WriteByte(')')
			return
		}
		fmt.Fprintf(dst, ".%s()", e.Op)
	case *AWindow:
		writeExpr(dst, a, e.Function)
		dst.WriteString(".over(")
		writeExprList(dst, a, e.PartitionBy)
		dst.WriteByte(')')
	case *ASlice:
		writeExpr(dst, a, e.Input)
		dst.WriteString(".slice(")
		writeExpr(dst, a, e.Offset)
		dst.WriteString(", ")
		writeExpr(dst, a, e.Length)
		dst.WriteByte(')')
	case *AExplode:
		writeExpr(dst, a, e.Expr)
		dst.WriteString(".explode()")
	case *AEval:
		writeExpr(dst, a, e.Expr)
		dst.WriteByte('.')
		dst.WriteString(e.Variant.String())
		dst.WriteByte('(')
		writeExpr(dst, a, e.Evaluation)
		dst.WriteByte(')')
	case *ALen:
		dst.WriteString("len()")
	case *AFunction:
		if e.Name == StructFieldByName && len(e.Inputs) == 1 {
			writeExpr(dst, a, e.Inputs[0].Expr())
			fmt.Fprintf(dst, ".struct.field(%q)", e.FieldName)
			return
		}
		dst.WriteString(e.Name)
		dst.WriteByte('(')
		writeRefList(dst, a, e.Inputs)
		dst.WriteByte(')')
	case *AAnonymous:
		name := e.FmtStr
		if name == "" {
			name = "anonymous_function"
		}
		dst.WriteString(name)
		dst.WriteByte('(')
		writeRefList(dst, a, e.Inputs)
		dst.WriteByte(')')
	default:
		dst.WriteString("<invalid>")
	}
}

func writeExprList(dst *strings.Builder, a *ExprArena, nodes []Node) {
	for i := range nodes {
		if i > 0 {
			dst.WriteString(", ")
		}
		writeExpr(dst, a, nodes[i])
	}
}

func writeRefList(dst *strings.Builder, a *ExprArena, refs []ExprRef) {
	for i := range refs {
		if i > 0 {
			dst.WriteString(", ")
		}
		writeExpr(dst, a, refs[i].Expr())
	}
}

// RefString renders an ExprRef: the expression,
// plus its alias when the name is not inherited.
func RefString(a *ExprArena, r ExprRef) string {
	s := ExprString(a, r.Expr())
	if !r.IsInherited() {
		s += fmt.Sprintf(".alias(%q)", r.OutputName())
	}
	return s
}

func tabify(n int, dst *strings.Builder) {
	for n > 0 {
		dst.WriteByte('\t')
		n--
	}
}

func tabline(dst *strings.Builder, indent int, line string) {
	tabify(indent, dst)
	dst.WriteString(line)
	dst.WriteByte('\n')
}

func refLine(a *ExprArena, refs []ExprRef) string {
	parts := make([]string, len(refs))
	for i := range refs {
		parts[i] = RefString(a, refs[i])
	}
	return strings.Join(parts, ", ")
}

// opLine renders the single-line summary of op.
func opLine(a *ExprArena, op Op) string {
	switch o := op.(type) {
	case *Scan:
		s := fmt.Sprintf("SCAN %s [%s]", o.Format, strings.Join(o.Sources, ", "))
		if o.Predicate != nil {
			s += " WHERE " + RefString(a, *o.Predicate)
		}
		return s
	case *DataFrameScan:
		return fmt.Sprintf("DF_SCAN [%d columns]", o.Schema.Len())
	case *SimpleProjection:
		return "SIMPLE_PROJECTION " + strings.Join(o.Columns.Names(), ", ")
	case *Select:
		return "SELECT " + refLine(a, o.Exprs)
	case *Filter:
		return "FILTER " + RefString(a, o.Predicate)
	case *Slice:
		return fmt.Sprintf("SLICE %d %d", o.Offset, o.Len)
	case *Sort:
		return "SORT BY " + refLine(a, o.ByColumn)
	case *Cache:
		return fmt.Sprintf("CACHE id=%s hits=%d", o.ID, o.Hits)
	case *GroupBy:
		return fmt.Sprintf("GROUP_BY %s AGG %s",
			refLine(a, o.Keys), refLine(a, o.Aggs))
	case *Join:
		how := InnerJoin
		if o.Options != nil {
			how = o.Options.How
		}
		return fmt.Sprintf("%s JOIN ON %s == %s",
			how, refLine(a, o.LeftOn), refLine(a, o.RightOn))
	case *HStack:
		return "WITH_COLUMNS " + refLine(a, o.Exprs)
	case *Distinct:
		return fmt.Sprintf("UNIQUE keep=%s", o.Options.Keep)
	case *MapFunction:
		return "MAP " + o.Function.Name()
	case *Union:
		return "UNION"
	case *HConcat:
		return "HCONCAT"
	case *ExtContext:
		return "EXTERNAL_CONTEXT"
	case *Sink:
		switch p := o.Payload.(type) {
		case MemorySink:
			return "SINK memory"
		case FileSink:
			return fmt.Sprintf("SINK %s (%s)", p.Path, p.Format)
		case *PartitionSink:
			return fmt.Sprintf("SINK partitioned %s (%s) BY %s",
				p.BasePath, p.Format, refLine(a, p.KeyExprs))
		default:
			return "SINK"
		}
	case *SinkMultiple:
		return "SINK_MULTIPLE"
	case *MergeSorted:
		return fmt.Sprintf("MERGE_SORTED key=%s", o.Key)
	default:
		return op.Name()
	}
}

func (t *Tree) describe(n PlanNode, indent int, dst *strings.Builder) {
	op := t.Ops.Get(n)
	tabline(dst, indent, opLine(t.Exprs, op))
	for _, in := range op.CopyInputs(nil) {
		t.describe(in, indent+1, dst)
	}
}

// Describe renders the plan as an indented tree,
// one operator per line, children below their
// parent.
func (t *Tree) Describe() string {
	var out strings.Builder
	t.describe(t.Root, 0, &out)
	return out.String()
}
