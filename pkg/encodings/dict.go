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

package encodings

import (
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

// EncodeDictRanks encodes ranks into the chunk dictionary: one bit-width
// byte, then the hybrid stream. dictSize fixes the width so every page of
// the chunk agrees with the final dictionary.
func EncodeDictRanks(ranks []uint32, dictSize int) []byte {
	width := BitWidth(uint32(dictSize - 1))
	if width == 0 {
		width = 1
	}
	enc := newHybridEncoder(width)
	for _, r := range ranks {
		enc.put(r)
	}
	return append([]byte{byte(width)}, enc.finish()...)
}

// DictDecoder reads rank streams back. Ranks are validated against the
// dictionary size by the caller, which owns the dictionary.
type DictDecoder struct {
	inner *hybridDecoder
}

func NewDictDecoder(data []byte) (*DictDecoder, error) {
	if len(data) == 0 {
		return nil, moerr.NewDataCorruptedNoCtx("", "empty dictionary rank stream")
	}
	width := int(data[0])
	if width == 0 || width > 32 {
		return nil, moerr.NewDataCorruptedNoCtx("", "dictionary rank width %d", width)
	}
	return &DictDecoder{inner: newHybridDecoder(data[1:], width)}, nil
}

func (d *DictDecoder) Decode(out []uint32) error {
	return d.inner.decode(out)
}

func (d *DictDecoder) Skip(n int) error {
	return d.inner.skip(n)
}
