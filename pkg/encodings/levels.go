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

// EncodeLevels encodes one page's definition or repetition levels. maxLevel
// determines the bit width; callers with maxLevel 0 omit the stream instead
// of calling this.
func EncodeLevels(levels []uint8, maxLevel uint8) []byte {
	enc := newHybridEncoder(BitWidth(uint32(maxLevel)))
	for _, lv := range levels {
		enc.put(uint32(lv))
	}
	return enc.finish()
}

// LevelDecoder reads back one page's level stream. A nil data slice stands
// for an absent stream (maxLevel 0): every level decodes as zero.
type LevelDecoder struct {
	inner *hybridDecoder
	buf   []uint32
}

func NewLevelDecoder(data []byte, maxLevel uint8) *LevelDecoder {
	if maxLevel == 0 {
		return &LevelDecoder{}
	}
	return &LevelDecoder{inner: newHybridDecoder(data, BitWidth(uint32(maxLevel)))}
}

func (d *LevelDecoder) Decode(out []uint8) error {
	if d.inner == nil {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	if cap(d.buf) < len(out) {
		d.buf = make([]uint32, len(out))
	}
	d.buf = d.buf[:len(out)]
	if err := d.inner.decode(d.buf); err != nil {
		return err
	}
	for i, v := range d.buf {
		out[i] = uint8(v)
	}
	return nil
}

func (d *LevelDecoder) Skip(n int) error {
	if d.inner == nil {
		return nil
	}
	return d.inner.skip(n)
}
