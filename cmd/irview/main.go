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

// irview prints a serialized query plan in a
// human-readable form.
//
// Usage:
//
//	irview [-dot|-json|-yaml] plan.bin
//
// The input may be a snapshot blob, JSON, or
// YAML; the format is detected from the content.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/kestreldb/kestrel/ir"
)

var (
	dashDot  = flag.Bool("dot", false, "emit dot(1) graph output")
	dashJSON = flag.Bool("json", false, "emit the JSON wire form")
	dashYAML = flag.Bool("yaml", false, "emit the YAML wire form")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: irview [-dot|-json|-yaml] <plan-file>")
		os.Exit(1)
	}
	buf, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tree, err := load(buf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	switch {
	case *dashDot:
		err = ir.Graphviz(tree, os.Stdout)
	case *dashJSON:
		var out []byte
		out, err = ir.EncodeJSON(tree)
		if err == nil {
			_, err = os.Stdout.Write(append(out, '\n'))
		}
	case *dashYAML:
		var out []byte
		out, err = ir.EncodeYAML(tree)
		if err == nil {
			_, err = os.Stdout.Write(out)
		}
	default:
		fmt.Printf("plan %s\n", tree.ID)
		fmt.Print(tree.Describe())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func load(buf []byte) (*ir.Tree, error) {
	trimmed := bytes.TrimLeft(buf, " \t\r\n")
	switch {
	case bytes.HasPrefix(buf, []byte("KIRS")):
		return ir.RestoreSnapshot(buf)
	case len(trimmed) > 0 && trimmed[0] == '{':
		return ir.DecodeJSON(buf)
	default:
		return ir.DecodeYAML(buf)
	}
}
