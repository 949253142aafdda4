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
	"fmt"
	"strconv"
	"strings"
)

// LiteralName is the output name of a
// literal expression that has not been
// given an explicit alias.
const LiteralName = "literal"

// LiteralKind discriminates the value
// stored in a Literal.
type LiteralKind uint8

const (
	LitNull LiteralKind = iota
	LitBool
	LitString
	// LitInt is an integer with a decided width.
	LitInt
	// LitFloat is a float with a decided width.
	LitFloat
	// LitDynInt is an integer literal whose
	// concrete width is decided by the context
	// that materializes it.
	LitDynInt
	// LitDynFloat is a float literal whose
	// concrete width is decided by the context
	// that materializes it.
	LitDynFloat
)

// Literal is a constant expression.
//
// Numeric literals start out dynamic: their
// concrete type is undecided until a context
// that requires a concrete type materializes
// them (see Materialize and the lowering rules
// in the ir package).
type Literal struct {
	Kind LiteralKind
	// Type is the concrete type of LitInt
	// and LitFloat literals. It is the zero
	// DataType for dynamic literals.
	Type  DataType
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// Lit constructs a dynamic integer literal.
func Lit(v int64) *Literal {
	return &Literal{Kind: LitDynInt, Int: v}
}

// LitF constructs a dynamic float literal.
func LitF(v float64) *Literal {
	return &Literal{Kind: LitDynFloat, Float: v}
}

// LitS constructs a string literal.
func LitS(v string) *Literal {
	return &Literal{Kind: LitString, Type: String, Str: v}
}

// LitB constructs a boolean literal.
func LitB(v bool) *Literal {
	return &Literal{Kind: LitBool, Type: Boolean, Bool: v}
}

// LitNone constructs the null literal.
func LitNone() *Literal {
	return &Literal{Kind: LitNull, Type: Null}
}

// TypedLit constructs an integer literal
// with an already-decided type.
func TypedLit(v int64, t DataType) *Literal {
	return &Literal{Kind: LitInt, Type: t, Int: v}
}

// IsDynamic returns whether the literal's
// concrete type is still undecided.
func (l *Literal) IsDynamic() bool {
	return l.Kind == LitDynInt || l.Kind == LitDynFloat
}

// Materialize resolves a dynamic literal to
// its default concrete type. It is idempotent
// and returns a new node, leaving l unchanged.
func (l *Literal) Materialize() *Literal {
	switch l.Kind {
	case LitDynInt:
		return &Literal{Kind: LitInt, Type: Int64, Int: l.Int}
	case LitDynFloat:
		return &Literal{Kind: LitFloat, Type: Float64, Float: l.Float}
	default:
		return l
	}
}

// DataType returns the type of the literal;
// dynamic literals report the undecided kinds.
func (l *Literal) DataType() DataType {
	switch l.Kind {
	case LitDynInt:
		return DataType{Kind: KindUnknownInt}
	case LitDynFloat:
		return DataType{Kind: KindUnknownFloat}
	default:
		return l.Type
	}
}

// IsScalar returns whether the literal is a
// single value (as opposed to a series).
// Every literal this package can express
// is a scalar.
func (l *Literal) IsScalar() bool { return true }

func (l *Literal) text(dst *strings.Builder) {
	switch l.Kind {
	case LitNull:
		dst.WriteString("null")
	case LitBool:
		if l.Bool {
			dst.WriteString("true")
		} else {
			dst.WriteString("false")
		}
	case LitString:
		fmt.Fprintf(dst, "%q", l.Str)
	case LitInt, LitDynInt:
		dst.WriteString(strconv.FormatInt(l.Int, 10))
	case LitFloat, LitDynFloat:
		dst.WriteString(strconv.FormatFloat(l.Float, 'g', -1, 64))
	}
}

func (l *Literal) Equals(e Node) bool {
	el, ok := e.(*Literal)
	if !ok || l.Kind != el.Kind {
		return false
	}
	switch l.Kind {
	case LitNull:
		return true
	case LitBool:
		return l.Bool == el.Bool
	case LitString:
		return l.Str == el.Str
	case LitInt, LitDynInt:
		return l.Int == el.Int && l.Type.Equal(el.Type)
	case LitFloat, LitDynFloat:
		return l.Float == el.Float && l.Type.Equal(el.Type)
	default:
		return false
	}
}

func (l *Literal) walk(v Visitor) {}
