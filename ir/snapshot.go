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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// Snapshot layout:
//
//	magic   4 bytes "KIRS"
//	version 1 byte
//	digest  32 bytes, blake2b-256 of the payload
//	payload zstd-compressed JSON wire form
//
// The digest covers the uncompressed payload, so
// corruption is detected even when the compressed
// stream happens to decode.

var snapMagic = []byte("KIRS")

const snapVersion = 1

var (
	snapEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault))
	snapDecoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1))
)

// Snapshot serializes the tree into a compressed,
// checksummed byte blob suitable for persisting
// or shipping between processes.
func Snapshot(t *Tree) ([]byte, error) {
	payload, err := json.Marshal(t.wire())
	if err != nil {
		return nil, err
	}
	digest := blake2b.Sum256(payload)
	out := make([]byte, 0, len(snapMagic)+1+len(digest)+len(payload)/2)
	out = append(out, snapMagic...)
	out = append(out, snapVersion)
	out = append(out, digest[:]...)
	return snapEncoder.EncodeAll(payload, out), nil
}

// RestoreSnapshot rebuilds a Tree from a blob
// produced by Snapshot.
func RestoreSnapshot(data []byte) (*Tree, error) {
	hdr := len(snapMagic) + 1 + blake2b.Size256
	if len(data) < hdr {
		return nil, fmt.Errorf("ir: snapshot too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(snapMagic)], snapMagic) {
		return nil, fmt.Errorf("ir: bad snapshot magic")
	}
	if v := data[len(snapMagic)]; v != snapVersion {
		return nil, fmt.Errorf("ir: unsupported snapshot version %d", v)
	}
	want := data[len(snapMagic)+1 : hdr]
	payload, err := snapDecoder.DecodeAll(data[hdr:], nil)
	if err != nil {
		return nil, fmt.Errorf("ir: snapshot payload: %w", err)
	}
	digest := blake2b.Sum256(payload)
	if !bytes.Equal(digest[:], want) {
		return nil, fmt.Errorf("ir: snapshot checksum mismatch")
	}
	var w treeJSON
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, err
	}
	return fromWire(&w)
}
