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
	"github.com/google/uuid"

	"github.com/kestreldb/kestrel/expr"
)

// Op represents a single relational operator in
// the query plan. Operators reference their child
// plans by PlanNode handle and their owned
// expressions as ExprRefs.
//
// The set of implementations is closed. Every Op
// supports the generic extraction/reconstruction
// contract (CopyExprs, CopyInputs,
// WithExprsAndInput); optimizer passes rewrite
// plans exclusively through it.
type Op interface {
	// Name returns the display name of the operator.
	Name() string

	// CopyExprs appends, in the operator's canonical
	// order, every ExprRef the operator owns.
	CopyExprs(dst []ExprRef) []ExprRef

	// CopyInputs appends the child plan handles in
	// the operator's canonical order.
	CopyInputs(dst []PlanNode) []PlanNode

	// WithExprsAndInput returns an operator of the
	// same variant whose expressions and inputs are
	// replaced by the given containers, which must
	// be populated in the same canonical orders that
	// CopyExprs and CopyInputs produce. All non-tree
	// metadata (schema, options, identity) is
	// carried over unchanged.
	WithExprsAndInput(exprs []ExprRef, inputs []PlanNode) Op
}

// Frame is an in-memory table provided by the
// embedding engine; the IR only needs its shape.
type Frame interface {
	Schema() *expr.Schema
	Height() int
}

// FrameUDF is an opaque user-defined whole-frame
// transformation.
type FrameUDF interface {
	Name() string
}

// FileFormat identifies an external scan source
// or sink format.
type FileFormat int

const (
	FormatCSV FileFormat = iota
	FormatParquet
	FormatIPC
	FormatNDJSON
)

func (f FileFormat) String() string {
	switch f {
	case FormatParquet:
		return "parquet"
	case FormatIPC:
		return "ipc"
	case FormatNDJSON:
		return "ndjson"
	default:
		return "csv"
	}
}

// SliceArgs is an offset/length pair applied to
// the output of an operator.
type SliceArgs struct {
	Offset int64
	Len    uint64
}

// ScanOptions are the format-independent options
// of an external scan.
type ScanOptions struct {
	// NRows limits the number of rows read;
	// negative means no limit.
	NRows   int64
	Rechunk bool
}

// Scan reads from an external source, optionally
// filtered by a predicate and projected to a
// subset of columns.
type Scan struct {
	Sources []string
	Format  FileFormat
	// FileSchema is the full schema of the source.
	FileSchema *expr.Schema
	// OutputSchema is the projected schema;
	// nil means no projection.
	OutputSchema *expr.Schema
	// Predicate is optional.
	Predicate *ExprRef
	Options   ScanOptions
}

func (*Scan) Name() string { return "SCAN" }

// DataFrameScan reads an in-memory frame.
type DataFrameScan struct {
	Frame  Frame
	Schema *expr.Schema
	// OutputSchema is the projected schema;
	// nil means no projection.
	OutputSchema *expr.Schema
}

func (*DataFrameScan) Name() string { return "DF_SCAN" }

// SimpleProjection selects columns by name only;
// it never materializes expressions.
type SimpleProjection struct {
	Input   PlanNode
	Columns *expr.Schema
}

func (*SimpleProjection) Name() string { return "SIMPLE_PROJECTION" }

// ProjectionOptions configure Select and HStack.
type ProjectionOptions struct {
	RunParallel bool
	// DuplicateCheck verifies output name
	// uniqueness at execution time.
	DuplicateCheck bool
	// ShouldBroadcast allows scalar results to be
	// broadcast to the frame height.
	ShouldBroadcast bool
}

// Select is a general projection: it evaluates
// expressions against its input.
type Select struct {
	Input   PlanNode
	Exprs   []ExprRef
	Schema  *expr.Schema
	Options ProjectionOptions
}

func (*Select) Name() string { return "SELECT" }

// Filter keeps the rows for which the predicate
// evaluates to true.
type Filter struct {
	Input     PlanNode
	Predicate ExprRef
}

func (*Filter) Name() string { return "FILTER" }

// Slice keeps Len rows starting at Offset.
type Slice struct {
	Input  PlanNode
	Offset int64
	Len    uint64
}

func (*Slice) Name() string { return "SLICE" }

// Sort orders the frame by its key expressions.
type Sort struct {
	Input    PlanNode
	ByColumn []ExprRef
	// Slice optionally keeps a window of the
	// sorted output (top-k).
	Slice   *SliceArgs
	Options expr.SortMultipleOptions
}

func (*Sort) Name() string { return "SORT" }

// Cache marks a sub-plan that is computed once
// and reused. ID identifies the sub-plan; equal
// IDs mean identical sub-plans.
type Cache struct {
	Input PlanNode
	ID    uuid.UUID
	// Hits is the number of times the cached
	// result must stay resident.
	Hits uint32
}

func (*Cache) Name() string { return "CACHE" }

// GroupByOptions carry the dynamic options of a
// group-by that do not participate in rewriting.
type GroupByOptions struct {
	Slice *SliceArgs
}

// GroupBy aggregates the frame by its key
// expressions.
type GroupBy struct {
	Input         PlanNode
	Keys          []ExprRef
	Aggs          []ExprRef
	Schema        *expr.Schema
	MaintainOrder bool
	Options       *GroupByOptions
	// Apply is an optional user-defined function
	// applied to each group in place of Aggs.
	Apply FrameUDF
}

func (*GroupBy) Name() string { return "GROUP_BY" }

// JoinKind is the join strategy.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	FullJoin
	CrossJoin
	SemiJoin
	AntiJoin
)

func (j JoinKind) String() string {
	switch j {
	case LeftJoin:
		return "LEFT"
	case RightJoin:
		return "RIGHT"
	case FullJoin:
		return "FULL"
	case CrossJoin:
		return "CROSS"
	case SemiJoin:
		return "SEMI"
	case AntiJoin:
		return "ANTI"
	default:
		return "INNER"
	}
}

// JoinOptions configure a join.
type JoinOptions struct {
	How JoinKind
	// Suffix disambiguates right-side column names.
	Suffix    string
	JoinNulls bool
}

// Join combines two inputs on key expressions.
type Join struct {
	InputLeft  PlanNode
	InputRight PlanNode
	Schema     *expr.Schema
	LeftOn     []ExprRef
	RightOn    []ExprRef
	Options    *JoinOptions
}

func (*Join) Name() string { return "JOIN" }

// HStack adds computed columns to its input.
type HStack struct {
	Input   PlanNode
	Exprs   []ExprRef
	Schema  *expr.Schema
	Options ProjectionOptions
}

func (*HStack) Name() string { return "WITH_COLUMNS" }

// UniqueKeep selects which duplicate row survives
// a Distinct.
type UniqueKeep int

const (
	KeepAny UniqueKeep = iota
	KeepFirst
	KeepLast
	KeepNone
)

func (k UniqueKeep) String() string {
	switch k {
	case KeepFirst:
		return "first"
	case KeepLast:
		return "last"
	case KeepNone:
		return "none"
	default:
		return "any"
	}
}

// DistinctOptions configure a Distinct.
type DistinctOptions struct {
	// Subset restricts the uniqueness check to
	// the named columns; nil means all columns.
	Subset        []string
	Keep          UniqueKeep
	MaintainOrder bool
}

// Distinct drops duplicate rows.
type Distinct struct {
	Input   PlanNode
	Options DistinctOptions
}

func (*Distinct) Name() string { return "UNIQUE" }

// MapFunction applies an opaque whole-frame
// transformation.
type MapFunction struct {
	Input    PlanNode
	Function FrameUDF
}

func (*MapFunction) Name() string { return "MAP" }

// UnionOptions configure a vertical concatenation.
type UnionOptions struct {
	Parallel bool
	Rechunk  bool
	// ToSupertypes casts the inputs to their
	// common supertypes before concatenating.
	ToSupertypes  bool
	MaintainOrder bool
}

// Union concatenates its inputs vertically.
type Union struct {
	Inputs  []PlanNode
	Options UnionOptions
}

func (*Union) Name() string { return "UNION" }

// HConcatOptions configure a horizontal
// concatenation.
type HConcatOptions struct {
	Parallel bool
}

// HConcat concatenates its inputs horizontally.
// Column names across inputs are unique.
type HConcat struct {
	Inputs  []PlanNode
	Schema  *expr.Schema
	Options HConcatOptions
}

func (*HConcat) Name() string { return "HCONCAT" }

// ExtContext brings extra frames into scope for
// expression evaluation over the primary input.
type ExtContext struct {
	Input    PlanNode
	Contexts []PlanNode
	Schema   *expr.Schema
}

func (*ExtContext) Name() string { return "EXTERNAL_CONTEXT" }

// SinkDest is the destination of a Sink operator.
// The set of implementations is closed: MemorySink,
// FileSink and PartitionSink.
type SinkDest interface {
	sinkDest()
}

// MemorySink collects the result in memory.
type MemorySink struct{}

func (MemorySink) sinkDest() {}

// FileSink writes the result to a single file.
type FileSink struct {
	Path   string
	Format FileFormat
}

func (FileSink) sinkDest() {}

// PartitionVariant selects how a partitioned sink
// splits its input.
type PartitionVariant int

const (
	// PartitionByKey groups rows by key value.
	PartitionByKey PartitionVariant = iota
	// PartitionParted expects the input to be
	// pre-grouped by the key expressions.
	PartitionParted
	// PartitionMaxSize starts a new partition
	// every MaxRows rows.
	PartitionMaxSize
)

func (v PartitionVariant) String() string {
	switch v {
	case PartitionParted:
		return "parted"
	case PartitionMaxSize:
		return "max_size"
	default:
		return "by_key"
	}
}

// SortColumn is one per-partition sort key.
type SortColumn struct {
	Expr       ExprRef
	Descending bool
	NullsLast  bool
}

// PartitionSink writes the result to one file
// per partition.
type PartitionSink struct {
	BasePath string
	Format   FileFormat
	Variant  PartitionVariant
	// KeyExprs are the partitioning keys; empty
	// for the PartitionMaxSize variant.
	KeyExprs []ExprRef
	// MaxRows is only meaningful for the
	// PartitionMaxSize variant.
	MaxRows uint64
	// PerPartitionSortBy optionally sorts each
	// partition before writing.
	PerPartitionSortBy []SortColumn
}

func (*PartitionSink) sinkDest() {}

// Sink writes the result of its input to a
// single destination.
type Sink struct {
	Input   PlanNode
	Payload SinkDest
}

func (*Sink) Name() string { return "SINK" }

// SinkMultiple executes several sink plans
// together so that shared sub-plans are
// computed once.
type SinkMultiple struct {
	Inputs []PlanNode
}

func (*SinkMultiple) Name() string { return "SINK_MULTIPLE" }

// MergeSorted merges two inputs that are both
// sorted on Key.
type MergeSorted struct {
	InputLeft  PlanNode
	InputRight PlanNode
	Key        string
}

func (*MergeSorted) Name() string { return "MERGE_SORTED" }

// Invalid is the zero operator; reaching one at
// rewrite time is a programming error.
type Invalid struct{}

func (*Invalid) Name() string { return "INVALID" }

// Tree bundles a finished plan: the root handle
// and the two arenas every handle in the plan
// points into.
type Tree struct {
	// ID identifies the plan for caching and
	// diagnostics.
	ID    uuid.UUID
	Root  PlanNode
	Ops   *PlanArena
	Exprs *ExprArena
}

// NewTree constructs a Tree with a fresh ID.
func NewTree(root PlanNode, ops *PlanArena, exprs *ExprArena) *Tree {
	return &Tree{ID: uuid.New(), Root: root, Ops: ops, Exprs: exprs}
}

// RootOp returns the operator behind the root handle.
func (t *Tree) RootOp() Op {
	return t.Ops.Get(t.Root)
}

// String implements fmt.Stringer
func (t *Tree) String() string {
	return t.Describe()
}
