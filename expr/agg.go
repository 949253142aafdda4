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

package expr

import (
	"strings"
)

// AggOp is one of the aggregation operations
type AggOp int

const (
	AggNone AggOp = iota
	AggMin
	AggMax
	AggSum
	AggMean
	AggMedian
	AggStd
	AggVar
	AggCount
	AggNUnique
	AggFirst
	AggLast
	// AggImplode collects the input into a single list value.
	AggImplode
	AggQuantile
	// AggGroups yields the row indices of each group.
	AggGroups
)

func (a AggOp) String() string {
	switch a {
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggSum:
		return "sum"
	case AggMean:
		return "mean"
	case AggMedian:
		return "median"
	case AggStd:
		return "std"
	case AggVar:
		return "var"
	case AggCount:
		return "count"
	case AggNUnique:
		return "n_unique"
	case AggFirst:
		return "first"
	case AggLast:
		return "last"
	case AggImplode:
		return "implode"
	case AggQuantile:
		return "quantile"
	case AggGroups:
		return "agg_groups"
	default:
		return "none"
	}
}

// QuantileMethod selects the interpolation
// strategy of the quantile aggregate.
type QuantileMethod int

const (
	QuantileNearest QuantileMethod = iota
	QuantileLower
	QuantileHigher
	QuantileMidpoint
	QuantileLinear
)

func (q QuantileMethod) String() string {
	switch q {
	case QuantileLower:
		return "lower"
	case QuantileHigher:
		return "higher"
	case QuantileMidpoint:
		return "midpoint"
	case QuantileLinear:
		return "linear"
	default:
		return "nearest"
	}
}

// Agg is an aggregation expression.
type Agg struct {
	// Op is the aggregation operation
	// (sum, min, max, etc.)
	Op AggOp
	// Input is the expression to be aggregated.
	Input Node
	// PropagateNaNs makes min/max treat NaN
	// as largest/smallest instead of skipping it.
	PropagateNaNs bool
	// DDof is the delta degrees of freedom
	// for std and var.
	DDof int
	// IncludeNulls makes count include null values.
	IncludeNulls bool
	// Quantile is the quantile parameter
	// expression for the quantile aggregate.
	Quantile Node
	// Method is the quantile interpolation method.
	Method QuantileMethod
}

// Min produces the min(e) aggregate
func Min(e Node) *Agg { return &Agg{Op: AggMin, Input: e} }

// NanMin produces the min(e) aggregate that propagates NaN
func NanMin(e Node) *Agg { return &Agg{Op: AggMin, Input: e, PropagateNaNs: true} }

// Max produces the max(e) aggregate
func Max(e Node) *Agg { return &Agg{Op: AggMax, Input: e} }

// NanMax produces the max(e) aggregate that propagates NaN
func NanMax(e Node) *Agg { return &Agg{Op: AggMax, Input: e, PropagateNaNs: true} }

// Sum produces the sum(e) aggregate
func Sum(e Node) *Agg { return &Agg{Op: AggSum, Input: e} }

// Mean produces the mean(e) aggregate
func Mean(e Node) *Agg { return &Agg{Op: AggMean, Input: e} }

// Median produces the median(e) aggregate
func Median(e Node) *Agg { return &Agg{Op: AggMedian, Input: e} }

// Std produces the std(e, ddof) aggregate
func Std(e Node, ddof int) *Agg { return &Agg{Op: AggStd, Input: e, DDof: ddof} }

// Var produces the var(e, ddof) aggregate
func Var(e Node, ddof int) *Agg { return &Agg{Op: AggVar, Input: e, DDof: ddof} }

// Count produces the count(e) aggregate
func Count(e Node, includeNulls bool) *Agg {
	return &Agg{Op: AggCount, Input: e, IncludeNulls: includeNulls}
}

// NUnique produces the n_unique(e) aggregate
func NUnique(e Node) *Agg { return &Agg{Op: AggNUnique, Input: e} }

// First produces the first(e) aggregate
func First(e Node) *Agg { return &Agg{Op: AggFirst, Input: e} }

// Last produces the last(e) aggregate
func Last(e Node) *Agg { return &Agg{Op: AggLast, Input: e} }

// Implode produces the implode(e) aggregate
func Implode(e Node) *Agg { return &Agg{Op: AggImplode, Input: e} }

// Quantile produces the quantile(e, q) aggregate
func Quantile(e, q Node, method QuantileMethod) *Agg {
	return &Agg{Op: AggQuantile, Input: e, Quantile: q, Method: method}
}

// AggGroupsOf produces the agg_groups(e) aggregate
func AggGroupsOf(e Node) *Agg { return &Agg{Op: AggGroups, Input: e} }

func (a *Agg) text(dst *strings.Builder) {
	a.Input.text(dst)
	dst.WriteByte('.')
	dst.WriteString(a.Op.String())
	dst.WriteByte('(')
	if a.Op == AggQuantile && a.Quantile != nil {
		a.Quantile.text(dst)
	}
	dst.WriteByte(')')
}

func (a *Agg) Equals(e Node) bool {
	ea, ok := e.(*Agg)
	if !ok {
		return false
	}
	return a.Op == ea.Op &&
		a.PropagateNaNs == ea.PropagateNaNs &&
		a.DDof == ea.DDof &&
		a.IncludeNulls == ea.IncludeNulls &&
		a.Method == ea.Method &&
		a.Input.Equals(ea.Input) &&
		Equal(a.Quantile, ea.Quantile)
}

func (a *Agg) walk(v Visitor) {
	Walk(v, a.Input)
	if a.Quantile != nil {
		Walk(v, a.Quantile)
	}
}
