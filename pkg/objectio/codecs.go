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

package objectio

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

func appendUvarintBuf(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

func readUvarintBuf(data []byte, off int) (uint64, int, error) {
	v, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return 0, 0, moerr.NewDataCorruptedNoCtx("", "truncated varint at offset %d", off)
	}
	return v, off + n, nil
}

// appendChecksummed appends body prefixed by its crc32 (Castagnoli).
func appendChecksummed(dst, body []byte) []byte {
	sum := crc32.Checksum(body, crc32.MakeTable(crc32.Castagnoli))
	dst = binary.LittleEndian.AppendUint32(dst, sum)
	return append(dst, body...)
}

// verifyChecksummed strips and verifies the crc32 prefix.
func verifyChecksummed(data []byte, what string) ([]byte, error) {
	if len(data) < 4 {
		return nil, moerr.NewDataCorruptedNoCtx("", "%s too short for checksum", what)
	}
	want := binary.LittleEndian.Uint32(data[:4])
	body := data[4:]
	if got := crc32.Checksum(body, crc32.MakeTable(crc32.Castagnoli)); got != want {
		return nil, moerr.NewBadChecksumNoCtx(what)
	}
	return body, nil
}
