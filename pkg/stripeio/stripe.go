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
	"context"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/common/mpool"
	"github.com/matrixorigin/stripeio/pkg/compress"
	"github.com/matrixorigin/stripeio/pkg/container/vector"
	"github.com/matrixorigin/stripeio/pkg/encodings"
	"github.com/matrixorigin/stripeio/pkg/fileservice"
	"github.com/matrixorigin/stripeio/pkg/index"
	"github.com/matrixorigin/stripeio/pkg/logutil"
	"github.com/matrixorigin/stripeio/pkg/objectio"
)

type stripeState uint8

const (
	stripeUnopened stripeState = iota
	stripeFooterLoaded
	stripeIndexesEvaluated
	stripeStreamsFetched
	stripeExhausted
)

type selectionKind uint8

const (
	// selectionOK: the listed row groups survived pruning.
	selectionOK selectionKind = iota
	// selectionDegraded: checkpoints were unusable, the whole stripe is
	// read as one group with no skipping.
	selectionDegraded
)

// groupSelection is the outcome of row group pruning over one stripe.
type groupSelection struct {
	kind   selectionKind
	groups []int
}

// stripeReader walks one stripe: footer, indexes, pruning, stream fetch,
// then group-by-group decoding.
type stripeReader struct {
	r     *Reader
	idx   int
	info  objectio.StripeInfo
	state stripeState

	footer *objectio.StripeFooter

	// per leaf ordinal; rowIndexes nil where the checkpoint stream failed
	// to parse
	rowIndexes map[uint16][]objectio.RowGroupIndex
	blooms     map[uint16]index.StaticFilter

	selection groupSelection

	dataVec *fileservice.IOVector
	spans   map[uint16]map[int][]byte // ord -> group -> page bytes
	dicts   map[uint16][]byte
	readers map[uint16]*columnReader

	groupPos  int // index into selection.groups, -1 before the first
	groupRows int // rows left in the open group

	mp *mpool.MPool
}

func newStripeReader(r *Reader, idx int) *stripeReader {
	return &stripeReader{
		r:        r,
		idx:      idx,
		info:     r.meta.Stripes[idx],
		mp:       r.mp.NewChild(r.path, 0),
		groupPos: -1,
	}
}

func (s *stripeReader) groupCount() int {
	per := int(s.r.meta.RowsPerGroup)
	return (int(s.info.Rows) + per - 1) / per
}

func (s *stripeReader) rowsInGroup(g int) int {
	per := int(s.r.meta.RowsPerGroup)
	rows := int(s.info.Rows) - g*per
	if rows > per {
		rows = per
	}
	return rows
}

func (s *stripeReader) loadFooter(ctx context.Context) error {
	footer, err := objectio.ReadStripeFooter(ctx, s.r.fs, s.r.path, s.info)
	if err != nil {
		return err
	}
	if len(footer.Columns) != len(s.r.leaves) {
		return moerr.NewDataCorrupted(ctx, s.r.path, "stripe %d footer has %d columns, schema has %d",
			s.idx, len(footer.Columns), len(s.r.leaves))
	}
	s.footer = footer
	s.state = stripeFooterLoaded
	return nil
}

// evaluateIndexes reads the stripe's index section, prunes row groups
// against the predicate and decides between normal, degraded and fatal
// handling of corrupt checkpoints.
func (s *stripeReader) evaluateIndexes(ctx context.Context) error {
	vec := fileservice.IOVector{
		FilePath:    s.r.path,
		MaxMergeGap: s.r.opts.MaxMergeGap,
		Entries: []fileservice.IOEntry{
			{Offset: int64(s.info.IndexOffset()), Size: int64(s.info.IndexLen)},
		},
	}
	if err := s.r.fs.Read(ctx, &vec); err != nil {
		return err
	}
	section := vec.Entries[0].Data
	base := s.info.IndexOffset() - s.info.Offset

	s.rowIndexes = make(map[uint16][]objectio.RowGroupIndex, len(s.r.projected))
	s.blooms = make(map[uint16]index.StaticFilter)
	corrupt := false
	for _, ord := range s.r.statLeaves {
		col := &s.footer.Columns[ord]
		ri, ok := col.Stream(objectio.StreamRowIndex)
		if !ok {
			return moerr.NewDataCorrupted(ctx, s.r.path, "stripe %d column %d has no row index", s.idx, ord)
		}
		entries, err := objectio.UnmarshalRowIndex(section[ri.Offset-base : ri.Offset-base+ri.Len])
		if err != nil {
			if !moerr.IsDataCorrupted(err) {
				return err
			}
			logutil.Warnf("stripe %d column %d: unreadable checkpoints: %v", s.idx, ord, err)
			corrupt = true
			s.rowIndexes[ord] = nil
			continue
		}
		if len(entries) != s.groupCount() {
			logutil.Warnf("stripe %d column %d: %d checkpoints for %d groups", s.idx, ord, len(entries), s.groupCount())
			corrupt = true
			s.rowIndexes[ord] = nil
			continue
		}
		s.rowIndexes[ord] = entries

		if bf, ok := col.Stream(objectio.StreamBloomFilter); ok {
			sf := index.NewEmptyBloomFilter()
			if err := sf.Unmarshal(section[bf.Offset-base : bf.Offset-base+bf.Len]); err != nil {
				logutil.Warnf("stripe %d column %d: unreadable bloom filter: %v", s.idx, ord, err)
			} else {
				s.blooms[ord] = sf
			}
		}
	}

	if corrupt {
		// skipping inside a chunk needs its checkpoints; without them a
		// dictionary chunk cannot even be validated, so give up on those
		for _, ord := range s.r.projected {
			if s.footer.Columns[ord].Encoding == encodings.Dict {
				return moerr.NewDataCorrupted(ctx, s.r.path,
					"stripe %d: corrupt checkpoints on dictionary-encoded data", s.idx)
			}
		}
		logutil.Warnf("stripe %d: reading in degraded single-group mode", s.idx)
		s.selection = groupSelection{kind: selectionDegraded, groups: []int{0}}
		s.state = stripeIndexesEvaluated
		return nil
	}

	s.selection = s.selectGroups()
	s.state = stripeIndexesEvaluated
	if len(s.selection.groups) == 0 {
		// fully pruned: no data section read at all
		s.state = stripeExhausted
	}
	return nil
}

// selectGroups applies the predicate at stripe scope, then per row group.
// A predicate error never prunes.
func (s *stripeReader) selectGroups() groupSelection {
	groups := make([]int, 0, s.groupCount())

	ok, err := s.r.pred.Matches(&stripeStatsProvider{s: s})
	if err != nil {
		logutil.Warnf("stripe %d: predicate not decidable at stripe scope: %v", s.idx, err)
		ok = true
	}
	if !ok {
		return groupSelection{kind: selectionOK}
	}
	for g := 0; g < s.groupCount(); g++ {
		ok, err := s.r.pred.Matches(&groupStatsProvider{s: s, group: g})
		if err != nil {
			logutil.Warnf("stripe %d group %d: predicate not decidable: %v", s.idx, g, err)
			ok = true
		}
		if ok {
			groups = append(groups, g)
		}
	}
	return groupSelection{kind: selectionOK, groups: groups}
}

// stripeStatsProvider merges group stats to stripe scope and carries the
// stripe bloom filter.
type stripeStatsProvider struct {
	s *stripeReader
}

func (p *stripeStatsProvider) ColumnStats(name string) *ColumnStats {
	ord, ok := p.s.r.statColumn(name)
	if !ok {
		return nil
	}
	entries := p.s.rowIndexes[ord]
	if entries == nil {
		return nil
	}
	node := p.s.r.schema.Column(name)
	zm := index.NewZM(node.Type.Oid)
	var nullCnt uint64
	for _, e := range entries {
		if e.ZoneMap.Valid() {
			if err := zm.Merge(e.ZoneMap); err != nil {
				return nil
			}
		}
		nullCnt += uint64(e.NullCnt)
	}
	return &ColumnStats{
		ZoneMap: zm,
		NullCnt: nullCnt,
		Rows:    uint64(p.s.info.Rows),
		Bloom:   p.s.blooms[ord],
	}
}

// groupStatsProvider exposes one row group's checkpoint stats.
type groupStatsProvider struct {
	s     *stripeReader
	group int
}

func (p *groupStatsProvider) ColumnStats(name string) *ColumnStats {
	ord, ok := p.s.r.statColumn(name)
	if !ok {
		return nil
	}
	entries := p.s.rowIndexes[ord]
	if entries == nil {
		return nil
	}
	e := entries[p.group]
	return &ColumnStats{
		ZoneMap: e.ZoneMap,
		NullCnt: uint64(e.NullCnt),
		Rows:    uint64(p.s.rowsInGroup(p.group)),
	}
}

// fetchStreams reads exactly the byte ranges the selection retained:
// dictionaries plus the selected groups' page ranges, or whole data
// streams in degraded mode.
func (s *stripeReader) fetchStreams(ctx context.Context) error {
	vec := &fileservice.IOVector{
		FilePath:    s.r.path,
		MaxMergeGap: s.r.opts.MaxMergeGap,
		Accounting:  s.mp,
	}
	type pending struct {
		ord   uint16
		group int // -1 for a dictionary or a degraded whole stream
		dict  bool
	}
	var plan []pending

	for _, ord := range s.r.projected {
		col := &s.footer.Columns[ord]
		if dict, ok := col.Stream(objectio.StreamDictionary); ok {
			vec.Entries = append(vec.Entries, fileservice.IOEntry{
				Offset: int64(s.info.Offset + dict.Offset),
				Size:   int64(dict.Len),
			})
			plan = append(plan, pending{ord: ord, dict: true})
		}
		data, ok := col.Stream(objectio.StreamData)
		if !ok {
			return moerr.NewDataCorrupted(ctx, s.r.path, "stripe %d column %d has no data stream", s.idx, ord)
		}
		if s.selection.kind == selectionDegraded {
			vec.Entries = append(vec.Entries, fileservice.IOEntry{
				Offset: int64(s.info.Offset + data.Offset),
				Size:   int64(data.Len),
			})
			plan = append(plan, pending{ord: ord, group: -1})
			continue
		}
		entries := s.rowIndexes[ord]
		for _, g := range s.selection.groups {
			vec.Entries = append(vec.Entries, fileservice.IOEntry{
				Offset: int64(s.info.Offset+data.Offset) + int64(entries[g].Offset),
				Size:   int64(entries[g].Len),
			})
			plan = append(plan, pending{ord: ord, group: g})
		}
	}

	if err := s.r.fs.Read(ctx, vec); err != nil {
		return err
	}
	s.dataVec = vec

	s.spans = make(map[uint16]map[int][]byte)
	s.dicts = make(map[uint16][]byte)
	for i, p := range plan {
		data := vec.Entries[i].Data
		if p.dict {
			s.dicts[p.ord] = data
			continue
		}
		if s.spans[p.ord] == nil {
			s.spans[p.ord] = make(map[int][]byte)
		}
		if p.group == -1 {
			s.spans[p.ord][0] = data
		} else {
			s.spans[p.ord][p.group] = data
		}
	}

	s.readers = make(map[uint16]*columnReader, len(s.r.projected))
	for _, ord := range s.r.projected {
		col := &s.footer.Columns[ord]
		var dictRaw []byte
		if col.DictEntries > 0 {
			dict, _ := col.Stream(objectio.StreamDictionary)
			raw := make([]byte, dict.RawLen)
			var err error
			if raw, err = compress.Decompress(s.dicts[ord], raw, s.r.meta.CompressAlg); err != nil {
				return err
			}
			dictRaw = raw
		}
		reader, err := newColumnReader(s.r.leaves[ord], col, dictRaw, s.r.meta.CompressAlg)
		if err != nil {
			return err
		}
		s.readers[ord] = reader
	}
	s.state = stripeStreamsFetched
	return nil
}

// prepare runs the stripe through footer load, pruning and stream fetch.
// A fully pruned stripe comes back in the exhausted state without having
// touched the data section.
func (s *stripeReader) prepare(ctx context.Context) error {
	if err := s.loadFooter(ctx); err != nil {
		return err
	}
	if err := s.evaluateIndexes(ctx); err != nil {
		return err
	}
	if s.state == stripeExhausted {
		return nil
	}
	return s.fetchStreams(ctx)
}

// advance opens the next selected group on every column reader. Returns
// false when the stripe is exhausted.
func (s *stripeReader) advance() bool {
	s.groupPos++
	if s.groupPos >= len(s.selection.groups) {
		s.state = stripeExhausted
		return false
	}
	g := s.selection.groups[s.groupPos]
	if s.selection.kind == selectionDegraded {
		s.groupRows = int(s.info.Rows)
	} else {
		s.groupRows = s.rowsInGroup(g)
	}
	for _, ord := range s.r.projected {
		s.readers[ord].openSpan(s.spans[ord][g])
	}
	return true
}

// readBatch decodes up to want rows from the open group into one vector
// per projected top-level column.
func (s *stripeReader) readBatch(want int) ([]*vector.Vector, int, error) {
	if want > s.groupRows {
		want = s.groupRows
	}
	// output vectors outlive the stripe, charge them to the reader pool
	chunks := make([]*leafChunk, len(s.r.leaves))
	rows := -1
	for _, ord := range s.r.projected {
		chunk, n, err := s.readers[ord].readRows(want, s.r.mp)
		if err != nil {
			return nil, 0, err
		}
		if rows == -1 {
			rows = n
		} else if rows != n {
			return nil, 0, moerr.NewDataCorruptedNoCtx(s.r.path, "column %d returned %d rows, want %d", ord, n, rows)
		}
		chunks[ord] = chunk
	}
	s.groupRows -= rows

	asm := &assembler{chunks: chunks, mp: s.r.mp}
	vecs := make([]*vector.Vector, len(s.r.columns))
	for i, col := range s.r.columns {
		vec, err := asm.build(col)
		if err != nil {
			return nil, 0, err
		}
		if vec.Length() != rows {
			return nil, 0, moerr.NewInternalErrorNoCtx("column %s assembled %d rows, want %d", col.Name, vec.Length(), rows)
		}
		vecs[i] = vec
	}
	return vecs, rows, nil
}

func (s *stripeReader) close() {
	if s.dataVec != nil {
		s.dataVec.Release()
		s.dataVec = nil
	}
	s.mp.Close()
	s.state = stripeExhausted
}
