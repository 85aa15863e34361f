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
	"context"

	"github.com/google/uuid"
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/compress"
	"github.com/matrixorigin/stripeio/pkg/container/batch"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/container/vector"
	"github.com/matrixorigin/stripeio/pkg/encodings"
	"github.com/matrixorigin/stripeio/pkg/fileservice"
	"github.com/matrixorigin/stripeio/pkg/index"
	"github.com/matrixorigin/stripeio/pkg/logutil"
)

type WriterOptions struct {
	// RowsPerGroup is the row index granularity.
	RowsPerGroup uint32 `toml:"rows-per-group"`

	// StripeRows flushes a stripe once this many rows are buffered.
	StripeRows uint32 `toml:"stripe-rows"`

	// Compression is "lz4" or "none".
	Compression string `toml:"compression"`

	DisableDictionary  bool `toml:"disable-dictionary"`
	DisableBloomFilter bool `toml:"disable-bloom-filter"`
}

func (o *WriterOptions) FillDefaults() {
	if o.RowsPerGroup == 0 {
		o.RowsPerGroup = DefaultRowsPerGroup
	}
	if o.StripeRows == 0 {
		o.StripeRows = DefaultStripeRows
	}
	if o.Compression == "" {
		o.Compression = "lz4"
	}
}

func (o *WriterOptions) alg() (uint8, error) {
	switch o.Compression {
	case "lz4":
		return compress.Lz4, nil
	case "none":
		return compress.None, nil
	}
	return 0, moerr.NewInvalidInputNoCtx("compression %q", o.Compression)
}

// dictMaxEntries bounds dictionary size; chunks with more distinct values
// fall back to a direct encoding.
const dictMaxEntries = 1 << 16

// Writer shreds batches into leaf streams and assembles the file in
// memory, committing it in one immutable Write on Close.
type Writer struct {
	fs     fileservice.FileService
	path   string
	schema *Schema
	opts   WriterOptions
	alg    uint8

	leaves       []*leafShred
	rowsBuffered uint32

	// assembled file image, header included
	buf     []byte
	stripes []StripeInfo
	stats   []ColumnStats

	closed bool
}

// leafShred is the write-side buffer of one leaf column within the
// current stripe: levels for every slot, raw value bytes for present
// slots.
type leafShred struct {
	node *Node

	reps []uint8
	defs []uint8

	arena   []byte
	lens    []uint32
	present int
}

func (l *leafShred) addLevel(rep, def uint8) {
	l.reps = append(l.reps, rep)
	l.defs = append(l.defs, def)
}

func (l *leafShred) addValue(rep, def uint8, v []byte) {
	l.addLevel(rep, def)
	l.arena = append(l.arena, v...)
	l.lens = append(l.lens, uint32(len(v)))
	l.present++
}

func (l *leafShred) reset() {
	l.reps = l.reps[:0]
	l.defs = l.defs[:0]
	l.arena = l.arena[:0]
	l.lens = l.lens[:0]
	l.present = 0
}

// value returns the i-th present value.
func (l *leafShred) value(i int, offs []uint32) []byte {
	return l.arena[offs[i] : offs[i]+l.lens[i]]
}

func (l *leafShred) valueOffsets() []uint32 {
	offs := make([]uint32, len(l.lens))
	var off uint32
	for i, ln := range l.lens {
		offs[i] = off
		off += ln
	}
	return offs
}

func NewWriter(fs fileservice.FileService, name string, schema *Schema, opts WriterOptions) (*Writer, error) {
	opts.FillDefaults()
	alg, err := opts.alg()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = uuid.New().String() + ".stripe"
	}
	w := &Writer{
		fs:     fs,
		path:   name,
		schema: schema,
		opts:   opts,
		alg:    alg,
		buf:    BuildHeader(),
	}
	for _, leaf := range schema.Leaves() {
		w.leaves = append(w.leaves, &leafShred{node: leaf})
		zm := index.NewZM(leaf.Type.Oid)
		w.stats = append(w.stats, ColumnStats{ZoneMap: zm})
	}
	return w, nil
}

func (w *Writer) Name() string {
	return w.path
}

// Write shreds one batch. Vectors are matched to top-level columns by
// attribute name; value bytes are copied, the batch stays caller-owned.
func (w *Writer) Write(bat *batch.Batch) error {
	if w.closed {
		return moerr.NewInvalidStateNoCtx("writer %s is closed", w.path)
	}
	cols := w.schema.Root.Children
	vecs := make([]*vector.Vector, len(cols))
	for i, col := range cols {
		vec := bat.Attr(col.Name)
		if vec == nil {
			return moerr.NewInvalidInputNoCtx("batch has no column %q", col.Name)
		}
		vecs[i] = vec
	}
	rows := bat.RowCount()
	for r := 0; r < rows; r++ {
		for i, col := range cols {
			w.shred(col, vecs[i], r, 0, 0)
		}
		w.rowsBuffered++
		if w.rowsBuffered >= w.opts.StripeRows {
			if err := w.flushStripe(); err != nil {
				return err
			}
		}
	}
	return nil
}

// shred emits levels and values for the subtree of node at row/element
// position idx of vec. def is the definition level already achieved by
// the ancestors, rep the repetition level owed to the first emitted slot.
func (w *Writer) shred(node *Node, vec *vector.Vector, idx int, def, rep uint8) {
	if vec.IsNull(idx) {
		w.emitNulls(node, rep, def)
		return
	}
	switch node.Type.Oid {
	case types.T_struct:
		children := vec.Children()
		for i, child := range node.Children {
			w.shred(child, children[i], idx, node.Def, rep)
		}
	case types.T_array:
		offs := vec.Offsets()
		start, end := offs[idx], offs[idx+1]
		if start == end {
			// present but empty: one slot below element existence
			w.emitNulls(node, rep, node.Def-1)
			return
		}
		elem := vec.Children()[0]
		for p := start; p < end; p++ {
			elemRep := node.Rep
			if p == start {
				elemRep = rep
			}
			w.shred(node.Children[0], elem, int(p), node.Def, elemRep)
		}
	case types.T_map:
		offs := vec.Offsets()
		start, end := offs[idx], offs[idx+1]
		if start == end {
			w.emitNulls(node, rep, node.Def-1)
			return
		}
		children := vec.Children()
		for p := start; p < end; p++ {
			elemRep := node.Rep
			if p == start {
				elemRep = rep
			}
			w.shred(node.Children[0], children[0], int(p), node.Def, elemRep)
			w.shred(node.Children[1], children[1], int(p), node.Def, elemRep)
		}
	default:
		l := w.leaves[node.LeafStart]
		l.addValue(rep, node.Def, w.leafBytes(node, vec, idx))
	}
}

// emitNulls records one slot at the given definition level for every leaf
// under node.
func (w *Writer) emitNulls(node *Node, rep, def uint8) {
	for ord := node.LeafStart; ord < node.LeafEnd; ord++ {
		w.leaves[ord].addLevel(rep, def)
	}
}

func (w *Writer) leafBytes(node *Node, vec *vector.Vector, idx int) []byte {
	if node.Type.IsVarlen() {
		return vec.GetRawBytesAt(idx)
	}
	width := int(node.Type.Oid.FixedSize())
	return vec.Data()[idx*width : (idx+1)*width]
}

// flushStripe encodes the buffered rows into one stripe appended to the
// file image.
func (w *Writer) flushStripe() error {
	if w.rowsBuffered == 0 {
		return nil
	}
	stripeOffset := uint32(len(w.buf))

	chunks := make([]chunkOut, len(w.leaves))
	for i, l := range w.leaves {
		out, err := w.encodeChunk(l)
		if err != nil {
			return err
		}
		chunks[i] = *out
	}

	// data section: per leaf DICTIONARY then DATA
	var footer StripeFooter
	for i := range chunks {
		c := &chunks[i]
		if len(c.dict) > 0 {
			compressed, err := compress.Compress(c.dict, nil, w.alg)
			if err != nil {
				return err
			}
			c.meta.Streams = append(c.meta.Streams, StreamInfo{
				Kind:   StreamDictionary,
				Offset: uint32(len(w.buf)) - stripeOffset,
				Len:    uint32(len(compressed)),
				RawLen: uint32(len(c.dict)),
			})
			w.buf = append(w.buf, compressed...)
		}
		c.meta.Streams = append(c.meta.Streams, StreamInfo{
			Kind:   StreamData,
			Offset: uint32(len(w.buf)) - stripeOffset,
			Len:    uint32(len(c.data)),
			RawLen: uint32(len(c.data)),
		})
		w.buf = append(w.buf, c.data...)
	}
	dataLen := uint32(len(w.buf)) - stripeOffset

	// index section: per leaf ROW_INDEX then optional BLOOM_FILTER
	for i := range chunks {
		c := &chunks[i]
		c.meta.Streams = append(c.meta.Streams, StreamInfo{
			Kind:   StreamRowIndex,
			Offset: uint32(len(w.buf)) - stripeOffset,
			Len:    uint32(len(c.rowIndex)),
			RawLen: uint32(len(c.rowIndex)),
		})
		w.buf = append(w.buf, c.rowIndex...)
		if len(c.bloom) > 0 {
			c.meta.Streams = append(c.meta.Streams, StreamInfo{
				Kind:   StreamBloomFilter,
				Offset: uint32(len(w.buf)) - stripeOffset,
				Len:    uint32(len(c.bloom)),
				RawLen: uint32(len(c.bloom)),
			})
			w.buf = append(w.buf, c.bloom...)
		}
		footer.Columns = append(footer.Columns, c.meta)
	}
	indexLen := uint32(len(w.buf)) - stripeOffset - dataLen

	footerBytes := footer.Marshal()
	w.buf = append(w.buf, footerBytes...)

	w.stripes = append(w.stripes, StripeInfo{
		Offset:    stripeOffset,
		DataLen:   dataLen,
		IndexLen:  indexLen,
		FooterLen: uint32(len(footerBytes)),
		Rows:      w.rowsBuffered,
	})
	logutil.Debugf("stripe %d flushed: %d rows, %d data bytes, %d index bytes",
		len(w.stripes)-1, w.rowsBuffered, dataLen, indexLen)

	for _, l := range w.leaves {
		l.reset()
	}
	w.rowsBuffered = 0
	return nil
}

// chunkOut is the encoded form of one leaf column chunk before stream
// placement.
type chunkOut struct {
	meta     ColumnChunkMeta
	dict     []byte
	data     []byte
	rowIndex []byte
	bloom    []byte
}

// encodeChunk turns one leaf's buffered stripe content into its streams.
func (w *Writer) encodeChunk(l *leafShred) (*chunkOut, error) {
	offs := l.valueOffsets()
	encoding, dict, ranks := w.chooseEncoding(l, offs)

	groups := w.splitGroups(l)

	var data []byte
	entries := make([]RowGroupIndex, 0, len(groups))
	stats := &w.stats[l.node.LeafStart]

	for _, g := range groups {
		pageStart := uint32(len(data))

		var repBytes, defBytes []byte
		if l.node.Rep > 0 {
			repBytes = encodings.EncodeLevels(l.reps[g.start:g.end], l.node.Rep)
		}
		if l.node.Def > 0 {
			defBytes = encodings.EncodeLevels(l.defs[g.start:g.end], l.node.Def)
		}

		values, err := w.encodeValues(l, offs, encoding, ranks, dict, g)
		if err != nil {
			return nil, err
		}
		if data, err = AppendPage(data, g.end-g.start, encoding, repBytes, defBytes, values, w.alg); err != nil {
			return nil, err
		}

		zm := index.NewZM(l.node.Type.Oid)
		for i := g.valStart; i < g.valEnd; i++ {
			v := l.value(i, offs)
			zm.Update(v)
			stats.ZoneMap.Update(v)
		}
		slots := 0
		for i := g.start; i < g.end; i++ {
			if l.defs[i] >= l.node.PresenceDef {
				slots++
			}
		}
		nullCnt := uint32(slots - (g.valEnd - g.valStart))
		stats.NullCnt += uint64(nullCnt)

		entries = append(entries, RowGroupIndex{
			Offset:     pageStart,
			Len:        uint32(len(data)) - pageStart,
			ValueCount: uint32(g.end - g.start),
			NullCnt:    nullCnt,
			ZoneMap:    zm,
		})
	}

	out := &chunkOut{
		meta: ColumnChunkMeta{
			Encoding:    encoding,
			DictEntries: uint32(len(dict)),
		},
		data:     data,
		rowIndex: MarshalRowIndex(entries),
	}
	if len(dict) > 0 {
		out.dict = encodings.EncodeBytesPlain(dict)
	}
	if !w.opts.DisableBloomFilter && l.present > 0 {
		keys := dict
		if keys == nil {
			keys = make([][]byte, 0, l.present)
			for i := 0; i < l.present; i++ {
				keys = append(keys, l.value(i, offs))
			}
		}
		sf, err := index.NewBloomFilter(keys)
		if err != nil {
			return nil, err
		}
		if out.bloom, err = sf.Marshal(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rowGroupSpan is one row group's slice of a leaf's buffered levels and
// present values.
type rowGroupSpan struct {
	start, end       int // level entry range
	valStart, valEnd int // present value range
}

// splitGroups cuts the leaf's level entries at row boundaries: a level
// entry with rep == 0 opens a new top-level row.
func (w *Writer) splitGroups(l *leafShred) []rowGroupSpan {
	var groups []rowGroupSpan
	rowsPerGroup := int(w.opts.RowsPerGroup)

	cur := rowGroupSpan{}
	rowsInGroup := 0
	valPos := 0
	for i := range l.defs {
		if l.reps[i] == 0 {
			if rowsInGroup == rowsPerGroup {
				cur.end = i
				cur.valEnd = valPos
				groups = append(groups, cur)
				cur = rowGroupSpan{start: i, valStart: valPos}
				rowsInGroup = 0
			}
			rowsInGroup++
		}
		if l.defs[i] == l.node.Def {
			valPos++
		}
	}
	cur.end = len(l.defs)
	cur.valEnd = valPos
	return append(groups, cur)
}

// chooseEncoding picks the chunk encoding: dictionary when the distinct
// set is small, delta or rle for integer leaves, plain otherwise.
func (w *Writer) chooseEncoding(l *leafShred, offs []uint32) (uint8, [][]byte, []uint32) {
	if l.present == 0 {
		return encodings.Plain, nil, nil
	}
	if !w.opts.DisableDictionary {
		distinct := make(map[string]uint32, l.present)
		ranks := make([]uint32, 0, l.present)
		var dict [][]byte
		ok := true
		for i := 0; i < l.present; i++ {
			v := l.value(i, offs)
			rank, seen := distinct[string(v)]
			if !seen {
				if len(dict) >= dictMaxEntries {
					ok = false
					break
				}
				rank = uint32(len(dict))
				distinct[string(v)] = rank
				dict = append(dict, v)
			}
			ranks = append(ranks, rank)
		}
		if ok && len(dict)*2 <= l.present {
			return encodings.Dict, dict, ranks
		}
	}
	if isIntLike(l.node.Type.Oid) {
		runs := 1
		for i := 1; i < l.present; i++ {
			if string(l.value(i, offs)) != string(l.value(i-1, offs)) {
				runs++
			}
		}
		if runs*4 <= l.present {
			return encodings.Rle, nil, nil
		}
		return encodings.Delta, nil, nil
	}
	return encodings.Plain, nil, nil
}

func isIntLike(t types.T) bool {
	switch t {
	case types.T_int32, types.T_int64, types.T_timestamp, types.T_decimal64:
		return true
	}
	return false
}

func (w *Writer) encodeValues(l *leafShred, offs []uint32, encoding uint8, ranks []uint32, dict [][]byte, g rowGroupSpan) ([]byte, error) {
	switch encoding {
	case encodings.Dict:
		if g.valEnd == g.valStart {
			return nil, nil
		}
		return encodings.EncodeDictRanks(ranks[g.valStart:g.valEnd], len(dict)), nil
	case encodings.Rle, encodings.Delta:
		ints := make([]int64, 0, g.valEnd-g.valStart)
		for i := g.valStart; i < g.valEnd; i++ {
			ints = append(ints, decodeIntValue(l.node.Type.Oid, l.value(i, offs)))
		}
		if encoding == encodings.Rle {
			return encodings.EncodeIntRle(ints), nil
		}
		return encodings.EncodeIntDelta(ints), nil
	case encodings.Plain:
		if l.node.Type.IsVarlen() {
			values := make([][]byte, 0, g.valEnd-g.valStart)
			for i := g.valStart; i < g.valEnd; i++ {
				values = append(values, l.value(i, offs))
			}
			return encodings.EncodeBytesPlain(values), nil
		}
		if g.valEnd == g.valStart {
			return nil, nil
		}
		return l.arena[offs[g.valStart] : offs[g.valEnd-1]+l.lens[g.valEnd-1]], nil
	}
	return nil, moerr.NewNotSupportedNoCtx("value encoding %s", encodings.EncodingName(encoding))
}

func decodeIntValue(t types.T, v []byte) int64 {
	switch t {
	case types.T_int32:
		return int64(types.DecodeFixed[int32](v))
	default:
		return types.DecodeFixed[int64](v)
	}
}

// Close flushes the last stripe, appends meta and footer and commits the
// file.
func (w *Writer) Close(ctx context.Context) (*FileMeta, error) {
	if w.closed {
		return nil, moerr.NewInvalidStateNoCtx("writer %s is closed", w.path)
	}
	w.closed = true
	if err := w.flushStripe(); err != nil {
		return nil, err
	}

	meta := &FileMeta{
		Version:      Version,
		RowsPerGroup: w.opts.RowsPerGroup,
		CompressAlg:  w.alg,
		Schema:       w.schema,
		Stripes:      w.stripes,
		ColStats:     w.stats,
	}
	metaBytes := meta.Marshal()
	metaStart := uint32(len(w.buf))
	w.buf = append(w.buf, metaBytes...)
	w.buf = append(w.buf, BuildFooter(metaStart, uint32(len(metaBytes)))...)

	err := w.fs.Write(ctx, fileservice.IOVector{
		FilePath: w.path,
		Entries: []fileservice.IOEntry{
			{Offset: 0, Size: int64(len(w.buf)), Data: w.buf},
		},
	})
	if err != nil {
		return nil, err
	}
	logutil.Infof("object %s committed: %d stripes, %d rows, %d bytes",
		w.path, len(w.stripes), meta.Rows(), len(w.buf))
	return meta, nil
}
