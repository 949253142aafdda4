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

	"golang.org/x/exp/slices"
)

// TypeKind enumerates the leaf and
// container kinds a DataType can have.
type TypeKind uint8

const (
	KindInvalid TypeKind = iota
	KindBoolean
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindString
	KindNull
	KindList
	KindStruct
	// KindUnknownInt is an integer literal
	// whose width has not been decided yet.
	KindUnknownInt
	// KindUnknownFloat is a float literal
	// whose width has not been decided yet.
	KindUnknownFloat
	// KindUnknown is a value with no type
	// information at all.
	KindUnknown
)

func (k TypeKind) String() string {
	switch k {
	case KindBoolean:
		return "bool"
	case KindInt8:
		return "i8"
	case KindInt16:
		return "i16"
	case KindInt32:
		return "i32"
	case KindInt64:
		return "i64"
	case KindUInt8:
		return "u8"
	case KindUInt16:
		return "u16"
	case KindUInt32:
		return "u32"
	case KindUInt64:
		return "u64"
	case KindFloat32:
		return "f32"
	case KindFloat64:
		return "f64"
	case KindString:
		return "str"
	case KindNull:
		return "null"
	case KindList:
		return "list"
	case KindStruct:
		return "struct"
	case KindUnknownInt:
		return "unknown(int)"
	case KindUnknownFloat:
		return "unknown(float)"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// DataType is the type of a single column
// or scalar value. List and Struct types
// carry their element type and field schema
// respectively; all other kinds are leaves.
type DataType struct {
	Kind   TypeKind
	Elem   *DataType // list element type
	Fields *Schema   // struct field schema
}

// Leaf type singletons.
var (
	Boolean = DataType{Kind: KindBoolean}
	Int8    = DataType{Kind: KindInt8}
	Int16   = DataType{Kind: KindInt16}
	Int32   = DataType{Kind: KindInt32}
	Int64   = DataType{Kind: KindInt64}
	UInt8   = DataType{Kind: KindUInt8}
	UInt16  = DataType{Kind: KindUInt16}
	UInt32  = DataType{Kind: KindUInt32}
	UInt64  = DataType{Kind: KindUInt64}
	Float32 = DataType{Kind: KindFloat32}
	Float64 = DataType{Kind: KindFloat64}
	String  = DataType{Kind: KindString}
	Null    = DataType{Kind: KindNull}
	Unknown = DataType{Kind: KindUnknown}
)

// ListOf returns the list type with the
// given element type.
func ListOf(elem DataType) DataType {
	return DataType{Kind: KindList, Elem: &elem}
}

// StructOf returns the struct type with the
// given field schema.
func StructOf(fields *Schema) DataType {
	return DataType{Kind: KindStruct, Fields: fields}
}

func (d DataType) String() string {
	switch d.Kind {
	case KindList:
		return "list[" + d.Elem.String() + "]"
	case KindStruct:
		var sb strings.Builder
		sb.WriteString("struct{")
		for i := 0; i < d.Fields.Len(); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Fields.Name(i))
			sb.WriteString(": ")
			sb.WriteString(d.Fields.Type(i).String())
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return d.Kind.String()
	}
}

// Equal returns whether d and other denote
// the same type, recursively.
func (d DataType) Equal(other DataType) bool {
	if d.Kind != other.Kind {
		return false
	}
	switch d.Kind {
	case KindList:
		return d.Elem.Equal(*other.Elem)
	case KindStruct:
		return d.Fields.Equal(other.Fields)
	default:
		return true
	}
}

// IsNumeric returns whether d is an integer
// or floating-point type, including the
// undecided literal kinds.
func (d DataType) IsNumeric() bool {
	return d.IsInteger() || d.IsFloat()
}

// IsInteger returns whether d is a (possibly
// undecided) integer type.
func (d DataType) IsInteger() bool {
	switch d.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64,
		KindUInt8, KindUInt16, KindUInt32, KindUInt64,
		KindUnknownInt:
		return true
	}
	return false
}

// IsFloat returns whether d is a (possibly
// undecided) floating-point type.
func (d DataType) IsFloat() bool {
	switch d.Kind {
	case KindFloat32, KindFloat64, KindUnknownFloat:
		return true
	}
	return false
}

// IsSigned returns whether d is a signed integer type.
func (d DataType) IsSigned() bool {
	switch d.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindUnknownInt:
		return true
	}
	return false
}

// IsUnknown returns whether d carries
// undecided type information.
func (d DataType) IsUnknown() bool {
	switch d.Kind {
	case KindUnknown, KindUnknownInt, KindUnknownFloat:
		return true
	}
	return false
}

// IsNested returns whether d is a container type.
func (d DataType) IsNested() bool {
	return d.Kind == KindList || d.Kind == KindStruct
}

// intWidth returns the bit width of an integer kind.
func (d DataType) intWidth() int {
	switch d.Kind {
	case KindInt8, KindUInt8:
		return 8
	case KindInt16, KindUInt16:
		return 16
	case KindInt32, KindUInt32:
		return 32
	default:
		return 64
	}
}

func intType(signed bool, width int) DataType {
	if signed {
		switch width {
		case 8:
			return Int8
		case 16:
			return Int16
		case 32:
			return Int32
		default:
			return Int64
		}
	}
	switch width {
	case 8:
		return UInt8
	case 16:
		return UInt16
	case 32:
		return UInt32
	default:
		return UInt64
	}
}

// Supertype returns the least common type
// of a and b, or a ComputeError if no
// common type exists.
func Supertype(a, b DataType) (DataType, error) {
	if a.Equal(b) {
		return a, nil
	}
	// null unifies with everything
	if a.Kind == KindNull {
		return b, nil
	}
	if b.Kind == KindNull {
		return a, nil
	}
	// undecided literals defer to any concrete numeric type
	if a.Kind == KindUnknownInt && b.IsNumeric() {
		return b, nil
	}
	if b.Kind == KindUnknownInt && a.IsNumeric() {
		return a, nil
	}
	if a.Kind == KindUnknownFloat && b.IsFloat() {
		return b, nil
	}
	if b.Kind == KindUnknownFloat && a.IsFloat() {
		return a, nil
	}
	if (a.Kind == KindUnknownFloat && b.IsNumeric()) ||
		(b.Kind == KindUnknownFloat && a.IsNumeric()) {
		return Float64, nil
	}
	if a.Kind == KindUnknown {
		return b, nil
	}
	if b.Kind == KindUnknown {
		return a, nil
	}
	if a.IsNumeric() && b.IsNumeric() {
		return numericSupertype(a, b), nil
	}
	if a.Kind == KindList && b.Kind == KindList {
		elem, err := Supertype(*a.Elem, *b.Elem)
		if err != nil {
			return DataType{}, err
		}
		return ListOf(elem), nil
	}
	return DataType{}, Errorf(ComputeError,
		"cannot determine supertype of %s and %s", a, b)
}

func numericSupertype(a, b DataType) DataType {
	if a.IsFloat() || b.IsFloat() {
		if a.Kind == KindFloat32 && b.Kind == KindFloat32 {
			return Float32
		}
		return Float64
	}
	aw, bw := a.intWidth(), b.intWidth()
	if a.IsSigned() == b.IsSigned() {
		if aw > bw {
			return intType(a.IsSigned(), aw)
		}
		return intType(a.IsSigned(), bw)
	}
	// mixed signedness widens to the next
	// signed type that holds both ranges
	uw := aw
	if !b.IsSigned() {
		uw = bw
	}
	sw := bw
	if !b.IsSigned() {
		sw = aw
	}
	w := sw
	if uw*2 > w {
		w = uw * 2
	}
	if w > 64 {
		w = 64
	}
	return intType(true, w)
}

// Supertypes folds Supertype over all of types.
func Supertypes(types ...DataType) (DataType, error) {
	if len(types) == 0 {
		return DataType{}, Errorf(NoData, "no types to unify")
	}
	out := types[0]
	var err error
	for _, t := range types[1:] {
		out, err = Supertype(out, t)
		if err != nil {
			return DataType{}, err
		}
	}
	return out, nil
}

// Schema is an ordered name-to-type mapping.
// Names are unique within a Schema.
type Schema struct {
	names []string
	types []DataType
	index map[string]int
}

// NewSchema constructs a Schema from parallel
// name and type slices. It returns a ShapeMismatch
// error if the slices have different lengths and
// a Duplicate error on name collision.
func NewSchema(names []string, types []DataType) (*Schema, error) {
	if len(names) != len(types) {
		return nil, Errorf(ShapeMismatch,
			"schema has %d names but %d types", len(names), len(types))
	}
	s := &Schema{
		names: slices.Clone(names),
		types: slices.Clone(types),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if _, ok := s.index[n]; ok {
			return nil, Errorf(Duplicate, "column %q occurs more than once", n)
		}
		s.index[n] = i
	}
	return s, nil
}

// MustSchema is NewSchema, panicking on error.
// It is intended for statically-known schemas.
func MustSchema(names []string, types []DataType) *Schema {
	s, err := NewSchema(names, types)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Name returns the name of column i.
func (s *Schema) Name(i int) string { return s.names[i] }

// Type returns the type of column i.
func (s *Schema) Type(i int) DataType { return s.types[i] }

// Lookup returns the type bound to name.
func (s *Schema) Lookup(name string) (DataType, bool) {
	if s == nil {
		return DataType{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return DataType{}, false
	}
	return s.types[i], true
}

// Contains returns whether name is bound in s.
func (s *Schema) Contains(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Names returns a copy of the column names in order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.names)
}

// Equal returns whether s and o have the same
// columns with the same types in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.names[i] != o.names[i] || !s.types[i].Equal(o.types[i]) {
			return false
		}
	}
	return true
}
