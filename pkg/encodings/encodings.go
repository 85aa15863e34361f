// Copyright 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package encodings implements the value and level codecs of the page
// format. Every decoder is positional: Decode(n) and Skip(n) advance the
// same cursor, so a reader can skip into the middle of a page without
// materializing what it skips over.
package encodings

import (
	"encoding/binary"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

// Value encodings a DATA stream page may carry.
const (
	Plain uint8 = iota
	Rle
	Delta
	Dict
)

func EncodingName(e uint8) string {
	switch e {
	case Plain:
		return "plain"
	case Rle:
		return "rle"
	case Delta:
		return "delta"
	case Dict:
		return "dict"
	}
	return "unknown"
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

func readUvarint(data []byte, off int) (uint64, int, error) {
	v, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return 0, 0, moerr.NewDataCorruptedNoCtx("", "truncated varint at offset %d", off)
	}
	return v, off + n, nil
}
