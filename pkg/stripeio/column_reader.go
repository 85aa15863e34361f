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

package stripeio

import (
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/common/mpool"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/container/vector"
	"github.com/matrixorigin/stripeio/pkg/encodings"
	"github.com/matrixorigin/stripeio/pkg/objectio"
)

// leafChunk is what one leaf contributes to a batch: the level entries
// consumed and the dense slot vector (nulls included, empties excluded).
type leafChunk struct {
	reps []uint8
	defs []uint8
	vec  *vector.Vector
}

// columnReader decodes one leaf column chunk. It walks pages inside the
// byte span it was given, keeping a cursor over level entries so that
// split reads and skips are position-exact.
type columnReader struct {
	node     *objectio.Node
	encoding uint8
	alg      uint8
	dict     [][]byte

	// span of whole pages currently readable
	span    []byte
	spanOff int

	// current page
	reps        []uint8
	defs        []uint8
	cursor      int
	pagePresent int

	fixedDec *encodings.PlainFixedDecoder
	bytesDec *encodings.PlainBytesDecoder
	intDec   *encodings.IntDecoder
	dictDec  *encodings.DictDecoder
}

func newColumnReader(node *objectio.Node, chunk *objectio.ColumnChunkMeta, dictRaw []byte, alg uint8) (*columnReader, error) {
	r := &columnReader{
		node:     node,
		encoding: chunk.Encoding,
		alg:      alg,
	}
	if chunk.DictEntries > 0 {
		if r.encoding != encodings.Dict {
			return nil, moerr.NewDataCorruptedNoCtx("", "column %s has a dictionary but encoding %s",
				node.Name, encodings.EncodingName(r.encoding))
		}
		dec := encodings.NewPlainBytesDecoder(dictRaw)
		r.dict = make([][]byte, chunk.DictEntries)
		for i := range r.dict {
			v, err := dec.Next()
			if err != nil {
				return nil, err
			}
			r.dict[i] = v
		}
	} else if r.encoding == encodings.Dict {
		return nil, moerr.NewDataCorruptedNoCtx("", "column %s dictionary-encoded without a dictionary", node.Name)
	}
	return r, nil
}

// openSpan points the reader at a byte range of whole pages: one selected
// row group, or the entire data stream in degraded mode.
func (r *columnReader) openSpan(span []byte) {
	r.span = span
	r.spanOff = 0
	r.reps = r.reps[:0]
	r.defs = r.defs[:0]
	r.cursor = 0
	r.pagePresent = 0
}

// openPage decodes the level streams of the next page and readies the
// value decoder.
func (r *columnReader) openPage() error {
	if r.spanOff >= len(r.span) {
		return moerr.NewDataCorruptedNoCtx("", "column %s: pages exhausted with values pending", r.node.Name)
	}
	h, err := objectio.ParsePageHeader(r.span[r.spanOff:])
	if err != nil {
		return err
	}
	bodyStart := r.spanOff + h.HeaderLen
	if bodyStart+h.BodyLen > len(r.span) {
		return moerr.NewDataCorruptedNoCtx("", "column %s: page body overruns stream", r.node.Name)
	}
	if h.Encoding != r.encoding {
		return moerr.NewDataCorruptedNoCtx("", "column %s: page encoding %s, chunk encoding %s",
			r.node.Name, encodings.EncodingName(h.Encoding), encodings.EncodingName(r.encoding))
	}
	rep, def, values, err := objectio.DecodePageBody(h, r.span[bodyStart:bodyStart+h.BodyLen], r.alg)
	if err != nil {
		return err
	}
	r.spanOff = bodyStart + h.BodyLen

	if cap(r.reps) < h.ValueCount {
		r.reps = make([]uint8, h.ValueCount)
		r.defs = make([]uint8, h.ValueCount)
	}
	r.reps = r.reps[:h.ValueCount]
	r.defs = r.defs[:h.ValueCount]
	if r.node.Rep > 0 {
		if err := encodings.NewLevelDecoder(rep, r.node.Rep).Decode(r.reps); err != nil {
			return err
		}
	} else {
		for i := range r.reps {
			r.reps[i] = 0
		}
	}
	if err := encodings.NewLevelDecoder(def, r.node.Def).Decode(r.defs); err != nil {
		return err
	}

	r.pagePresent = 0
	for _, d := range r.defs {
		if d == r.node.Def {
			r.pagePresent++
		}
	}
	r.cursor = 0

	r.fixedDec, r.bytesDec, r.intDec, r.dictDec = nil, nil, nil, nil
	switch r.encoding {
	case encodings.Plain:
		if r.node.Type.IsVarlen() {
			r.bytesDec = encodings.NewPlainBytesDecoder(values)
		} else {
			r.fixedDec = encodings.NewPlainFixedDecoder(values, int(r.node.Type.Size))
		}
	case encodings.Rle, encodings.Delta:
		if r.intDec, err = encodings.NewIntDecoder(r.encoding, values); err != nil {
			return err
		}
	case encodings.Dict:
		if r.pagePresent > 0 {
			if r.dictDec, err = encodings.NewDictDecoder(values); err != nil {
				return err
			}
		}
	default:
		return moerr.NewNotSupportedNoCtx("value encoding %d", r.encoding)
	}
	return nil
}

func (r *columnReader) pageDrained() bool {
	return r.cursor >= len(r.reps)
}

// readRows consumes entries for up to n top-level rows and returns their
// levels plus the decoded slot vector. The span ending mid-row is a
// corruption error; ending exactly at a row boundary returns what was
// read.
func (r *columnReader) readRows(n int, mp *mpool.MPool) (*leafChunk, int, error) {
	chunk := &leafChunk{vec: vector.New(r.node.Type, mp)}
	rows := 0
	for rows < n {
		if r.pageDrained() {
			if r.spanOff >= len(r.span) {
				if rows > 0 {
					break
				}
				return nil, 0, moerr.NewDataCorruptedNoCtx("", "column %s: pages exhausted with %d rows pending", r.node.Name, n)
			}
			if err := r.openPage(); err != nil {
				return nil, 0, err
			}
		}
		start := r.cursor
		for r.cursor < len(r.reps) {
			if r.reps[r.cursor] == 0 {
				if rows == n {
					break
				}
				rows++
			}
			r.cursor++
			// the next entry decides whether this row continues
			if r.cursor < len(r.reps) && r.reps[r.cursor] == 0 && rows == n {
				break
			}
		}
		if err := r.emit(chunk, start, r.cursor); err != nil {
			return nil, 0, err
		}
	}
	return chunk, rows, nil
}

// skipRows advances past n top-level rows without materializing values.
func (r *columnReader) skipRows(n int) error {
	rows := 0
	for rows < n {
		if r.pageDrained() {
			if r.spanOff >= len(r.span) {
				return moerr.NewDataCorruptedNoCtx("", "column %s: pages exhausted while skipping", r.node.Name)
			}
			if err := r.openPage(); err != nil {
				return err
			}
		}
		start := r.cursor
		for r.cursor < len(r.reps) {
			if r.reps[r.cursor] == 0 {
				if rows == n {
					break
				}
				rows++
			}
			r.cursor++
			if r.cursor < len(r.reps) && r.reps[r.cursor] == 0 && rows == n {
				break
			}
		}
		skipped := 0
		for i := start; i < r.cursor; i++ {
			if r.defs[i] == r.node.Def {
				skipped++
			}
		}
		if err := r.skipValues(skipped); err != nil {
			return err
		}
	}
	return nil
}

func (r *columnReader) skipValues(n int) error {
	if n == 0 {
		return nil
	}
	switch {
	case r.fixedDec != nil:
		return r.fixedDec.Skip(n)
	case r.bytesDec != nil:
		return r.bytesDec.Skip(n)
	case r.intDec != nil:
		return r.intDec.Skip(n)
	case r.dictDec != nil:
		return r.dictDec.Skip(n)
	}
	return moerr.NewInvalidStateNoCtx("column %s has no open page", r.node.Name)
}

// emit appends the entries [start, end) of the current page to the chunk.
func (r *columnReader) emit(chunk *leafChunk, start, end int) error {
	if end == start {
		return nil
	}
	chunk.reps = append(chunk.reps, r.reps[start:end]...)
	chunk.defs = append(chunk.defs, r.defs[start:end]...)

	needed := 0
	for i := start; i < end; i++ {
		if r.defs[i] == r.node.Def {
			needed++
		}
	}
	values, err := r.decodeValues(needed)
	if err != nil {
		return err
	}

	valueIdx := 0
	for i := start; i < end; i++ {
		d := r.defs[i]
		if d < r.node.PresenceDef {
			continue
		}
		isNull := d < r.node.Def
		var v []byte
		if !isNull {
			v = values[valueIdx]
			valueIdx++
		}
		if r.node.Type.IsVarlen() {
			err = vector.AppendBytes(chunk.vec, v, isNull)
		} else {
			err = vector.AppendRawFixed(chunk.vec, v, isNull)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeValues pulls n present values from the page decoder as raw bytes.
func (r *columnReader) decodeValues(n int) ([][]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([][]byte, n)
	switch {
	case r.fixedDec != nil:
		width := int(r.node.Type.Size)
		raw, err := r.fixedDec.Decode(n)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = raw[i*width : (i+1)*width]
		}
	case r.bytesDec != nil:
		for i := range out {
			v, err := r.bytesDec.Next()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
	case r.intDec != nil:
		ints := make([]int64, n)
		if err := r.intDec.Decode(ints); err != nil {
			return nil, err
		}
		width := int(r.node.Type.Size)
		buf := make([]byte, 0, n*width)
		for _, v := range ints {
			if width == 4 {
				buf = append(buf, types.EncodeFixed(int32(v))...)
			} else {
				buf = append(buf, types.EncodeFixed(v)...)
			}
		}
		for i := range out {
			out[i] = buf[i*width : (i+1)*width]
		}
	case r.dictDec != nil:
		ranks := make([]uint32, n)
		if err := r.dictDec.Decode(ranks); err != nil {
			return nil, err
		}
		for i, rank := range ranks {
			if int(rank) >= len(r.dict) {
				return nil, moerr.NewDataCorruptedNoCtx("", "column %s: rank %d outside dictionary of %d",
					r.node.Name, rank, len(r.dict))
			}
			out[i] = r.dict[rank]
		}
	default:
		return nil, moerr.NewInvalidStateNoCtx("column %s has no open page", r.node.Name)
	}
	return out, nil
}
