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
	"io"
)

// Graphviz dumps the plan 't'
// to 'dst' as dot(1)-compatible text.
// Edges point from input to consumer.
func Graphviz(t *Tree, dst io.Writer) error {
	_, err := io.WriteString(dst, "digraph plan {\n")
	if err != nil {
		return err
	}
	_, err = gv(t, t.Root, dst, 0)
	if err != nil {
		return err
	}
	_, err = io.WriteString(dst, "}\n")
	return err
}

func gv(t *Tree, n PlanNode, dst io.Writer, id int) (int, error) {
	op := t.Ops.Get(n)
	self := id
	_, err := fmt.Fprintf(dst, "n%d [label=%q];\n", self, opLine(t.Exprs, op))
	if err != nil {
		return id, err
	}
	id++
	for _, in := range op.CopyInputs(nil) {
		child := id
		id, err = gv(t, in, dst, id)
		if err != nil {
			return id, err
		}
		_, err = fmt.Fprintf(dst, "n%d -> n%d;\n", child, self)
		if err != nil {
			return id, err
		}
	}
	return id, nil
}
