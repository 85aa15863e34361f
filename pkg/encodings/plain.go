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

// PlainFixedDecoder walks a plain stream of fixed-width values and hands
// out raw little-endian bytes; the caller reinterprets them with the
// unsafe slice helpers.
type PlainFixedDecoder struct {
	width int
	data  []byte
	off   int
}

func NewPlainFixedDecoder(data []byte, width int) *PlainFixedDecoder {
	return &PlainFixedDecoder{width: width, data: data}
}

func (d *PlainFixedDecoder) Decode(n int) ([]byte, error) {
	sz := n * d.width
	if d.off+sz > len(d.data) {
		return nil, moerr.NewDataCorruptedNoCtx("", "plain stream exhausted: need %d bytes, have %d", sz, len(d.data)-d.off)
	}
	out := d.data[d.off : d.off+sz : d.off+sz]
	d.off += sz
	return out, nil
}

func (d *PlainFixedDecoder) Skip(n int) error {
	sz := n * d.width
	if d.off+sz > len(d.data) {
		return moerr.NewDataCorruptedNoCtx("", "plain stream exhausted on skip")
	}
	d.off += sz
	return nil
}

// EncodeBytesPlain encodes varlen values as uvarint length + bytes.
func EncodeBytesPlain(values [][]byte) []byte {
	var buf []byte
	for _, v := range values {
		buf = appendUvarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// PlainBytesDecoder walks a plain varlen stream.
type PlainBytesDecoder struct {
	data []byte
	off  int
}

func NewPlainBytesDecoder(data []byte) *PlainBytesDecoder {
	return &PlainBytesDecoder{data: data}
}

func (d *PlainBytesDecoder) Next() ([]byte, error) {
	sz, off, err := readUvarint(d.data, d.off)
	if err != nil {
		return nil, err
	}
	end := off + int(sz)
	if end > len(d.data) {
		return nil, moerr.NewDataCorruptedNoCtx("", "varlen value of %d bytes overruns stream", sz)
	}
	v := d.data[off:end:end]
	d.off = end
	return v, nil
}

func (d *PlainBytesDecoder) Skip(n int) error {
	for i := 0; i < n; i++ {
		sz, off, err := readUvarint(d.data, d.off)
		if err != nil {
			return err
		}
		end := off + int(sz)
		if end > len(d.data) {
			return moerr.NewDataCorruptedNoCtx("", "varlen value of %d bytes overruns stream", sz)
		}
		d.off = end
	}
	return nil
}
