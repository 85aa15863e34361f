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

// Package compress is the block codec used for page bodies and metadata
// sections. The original size is stored out of band (extent / page header),
// so decompression always knows its output length; a mismatch is corruption.
package compress

import (
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/pierrec/lz4/v4"
)

const (
	None uint8 = iota
	Lz4
)

// Compress appends the compressed form of src to dst and returns it. For
// Lz4, incompressible input falls back to a stored block: the caller decides
// by comparing the returned length with len(src) and recording the algorithm
// actually used.
func Compress(src, dst []byte, alg uint8) ([]byte, error) {
	switch alg {
	case None:
		return append(dst, src...), nil
	case Lz4:
		bound := lz4.CompressBlockBound(len(src))
		off := len(dst)
		dst = append(dst, make([]byte, bound)...)
		n, err := lz4.CompressBlock(src, dst[off:], nil)
		if err != nil {
			return nil, moerr.NewInternalErrorNoCtx("lz4 compress: %v", err)
		}
		if n == 0 || n >= len(src) {
			// incompressible, store raw
			dst = append(dst[:off], src...)
			return dst, nil
		}
		return dst[:off+n], nil
	}
	return nil, moerr.NewNotSupportedNoCtx("compress algorithm %d", alg)
}

// Decompress expands src into dst, which must be sized to the recorded
// original length. A short or failed expansion is a corruption error.
func Decompress(src, dst []byte, alg uint8) ([]byte, error) {
	switch alg {
	case None:
		if len(src) != len(dst) {
			return nil, moerr.NewDataCorruptedNoCtx("", "stored block length %d, want %d", len(src), len(dst))
		}
		copy(dst, src)
		return dst, nil
	case Lz4:
		if len(src) == len(dst) {
			// stored block
			copy(dst, src)
			return dst, nil
		}
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, moerr.NewDataCorruptedNoCtx("", "lz4 decompress: %v", err)
		}
		if n != len(dst) {
			return nil, moerr.NewDataCorruptedNoCtx("", "lz4 decompressed %d bytes, want %d", n, len(dst))
		}
		return dst, nil
	}
	return nil, moerr.NewNotSupportedNoCtx("compress algorithm %d", alg)
}
