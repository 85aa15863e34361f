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

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/index"
)

// StripeInfo locates one stripe within the file. The three sections are
// contiguous: data at Offset, index right after, footer last.
type StripeInfo struct {
	Offset    uint32
	DataLen   uint32
	IndexLen  uint32
	FooterLen uint32
	Rows      uint32
}

func (s StripeInfo) IndexOffset() uint32 {
	return s.Offset + s.DataLen
}

func (s StripeInfo) FooterOffset() uint32 {
	return s.Offset + s.DataLen + s.IndexLen
}

// ColumnStats is the file-scoped summary of one leaf column.
type ColumnStats struct {
	ZoneMap index.ZM
	NullCnt uint64
}

// FileMeta is the file's self-description: schema, stripe catalog and
// file-level column stats. It lives between the last stripe and the
// footer, crc-protected.
type FileMeta struct {
	Version      uint16
	RowsPerGroup uint32
	CompressAlg  uint8
	Schema       *Schema
	Stripes      []StripeInfo
	ColStats     []ColumnStats
}

func (m *FileMeta) Rows() uint64 {
	var rows uint64
	for _, s := range m.Stripes {
		rows += uint64(s.Rows)
	}
	return rows
}

func (m *FileMeta) Marshal() []byte {
	var body []byte
	body = binary.LittleEndian.AppendUint16(body, m.Version)
	body = binary.LittleEndian.AppendUint32(body, m.RowsPerGroup)
	body = append(body, m.CompressAlg)

	schema := m.Schema.Marshal()
	body = appendUvarintBuf(body, uint64(len(schema)))
	body = append(body, schema...)

	body = appendUvarintBuf(body, uint64(len(m.Stripes)))
	for _, s := range m.Stripes {
		body = binary.LittleEndian.AppendUint32(body, s.Offset)
		body = binary.LittleEndian.AppendUint32(body, s.DataLen)
		body = binary.LittleEndian.AppendUint32(body, s.IndexLen)
		body = binary.LittleEndian.AppendUint32(body, s.FooterLen)
		body = binary.LittleEndian.AppendUint32(body, s.Rows)
	}

	body = appendUvarintBuf(body, uint64(len(m.ColStats)))
	for _, cs := range m.ColStats {
		zm := cs.ZoneMap
		if len(zm) != index.ZMSize {
			zm = make(index.ZM, index.ZMSize)
		}
		body = append(body, zm...)
		body = binary.LittleEndian.AppendUint64(body, cs.NullCnt)
	}
	return appendChecksummed(nil, body)
}

func UnmarshalMeta(buf []byte) (*FileMeta, error) {
	body, err := verifyChecksummed(buf, "file meta")
	if err != nil {
		return nil, err
	}
	if len(body) < 7 {
		return nil, moerr.NewDataCorruptedNoCtx("", "file meta too short")
	}
	m := &FileMeta{}
	m.Version = binary.LittleEndian.Uint16(body[0:2])
	m.RowsPerGroup = binary.LittleEndian.Uint32(body[2:6])
	m.CompressAlg = body[6]
	off := 7

	schemaLen, off, err := readUvarintBuf(body, off)
	if err != nil {
		return nil, err
	}
	if off+int(schemaLen) > len(body) {
		return nil, moerr.NewDataCorruptedNoCtx("", "schema overruns file meta")
	}
	if m.Schema, err = UnmarshalSchema(body[off : off+int(schemaLen)]); err != nil {
		return nil, err
	}
	off += int(schemaLen)

	stripeCount, off, err := readUvarintBuf(body, off)
	if err != nil {
		return nil, err
	}
	if off+int(stripeCount)*20 > len(body) {
		return nil, moerr.NewDataCorruptedNoCtx("", "stripe catalog overruns file meta")
	}
	m.Stripes = make([]StripeInfo, stripeCount)
	for i := range m.Stripes {
		s := &m.Stripes[i]
		s.Offset = binary.LittleEndian.Uint32(body[off:])
		s.DataLen = binary.LittleEndian.Uint32(body[off+4:])
		s.IndexLen = binary.LittleEndian.Uint32(body[off+8:])
		s.FooterLen = binary.LittleEndian.Uint32(body[off+12:])
		s.Rows = binary.LittleEndian.Uint32(body[off+16:])
		off += 20
	}

	statsCount, off, err := readUvarintBuf(body, off)
	if err != nil {
		return nil, err
	}
	if int(statsCount) != m.Schema.LeafCount() {
		return nil, moerr.NewDataCorruptedNoCtx("", "file stats for %d columns, schema has %d leaves", statsCount, m.Schema.LeafCount())
	}
	if off+int(statsCount)*(index.ZMSize+8) > len(body) {
		return nil, moerr.NewDataCorruptedNoCtx("", "file stats overrun file meta")
	}
	m.ColStats = make([]ColumnStats, statsCount)
	for i := range m.ColStats {
		m.ColStats[i].ZoneMap = index.ZM(append([]byte(nil), body[off:off+index.ZMSize]...))
		off += index.ZMSize
		m.ColStats[i].NullCnt = binary.LittleEndian.Uint64(body[off:])
		off += 8
	}
	return m, nil
}

// BuildHeader assembles the fixed file header.
func BuildHeader() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	binary.LittleEndian.PutUint16(buf[8:], Version)
	return buf
}

func CheckHeader(buf []byte, path string) error {
	if len(buf) < HeaderSize || string(buf[:8]) != Magic {
		return moerr.NewBadMagicNumber(moerr.Context(), path)
	}
	if v := binary.LittleEndian.Uint16(buf[8:]); v > Version {
		return moerr.NewNotSupportedNoCtx("stripe file version %d", v)
	}
	return nil
}

// BuildFooter assembles the fixed tail: metaStart, metaLen, magic.
func BuildFooter(metaStart, metaLen uint32) []byte {
	buf := make([]byte, 0, FooterSize)
	buf = binary.LittleEndian.AppendUint32(buf, metaStart)
	buf = binary.LittleEndian.AppendUint32(buf, metaLen)
	return binary.LittleEndian.AppendUint64(buf, FooterMagic)
}

func ParseFooter(buf []byte, path string) (metaStart, metaLen uint32, err error) {
	if len(buf) != FooterSize {
		return 0, 0, moerr.NewDataCorruptedNoCtx(path, "footer length %d", len(buf))
	}
	if binary.LittleEndian.Uint64(buf[8:]) != FooterMagic {
		return 0, 0, moerr.NewBadMagicNumber(moerr.Context(), path)
	}
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8]), nil
}

// StreamInfo locates one stream within a stripe; Offset is relative to
// the stripe start. RawLen is the uncompressed length for streams that
// are compressed as a unit, equal to Len for the rest.
type StreamInfo struct {
	Kind   uint8
	Offset uint32
	Len    uint32
	RawLen uint32
}

// ColumnChunkMeta describes one leaf column within one stripe.
type ColumnChunkMeta struct {
	Encoding    uint8
	DictEntries uint32
	Streams     []StreamInfo
}

func (c *ColumnChunkMeta) Stream(kind uint8) (StreamInfo, bool) {
	for _, st := range c.Streams {
		if st.Kind == kind {
			return st, true
		}
	}
	return StreamInfo{}, false
}

// StripeFooter is the per-stripe stream catalog, one entry per leaf.
type StripeFooter struct {
	Columns []ColumnChunkMeta
}

func (f *StripeFooter) Marshal() []byte {
	body := appendUvarintBuf(nil, uint64(len(f.Columns)))
	for i := range f.Columns {
		c := &f.Columns[i]
		body = append(body, c.Encoding)
		body = binary.LittleEndian.AppendUint32(body, c.DictEntries)
		body = appendUvarintBuf(body, uint64(len(c.Streams)))
		for _, st := range c.Streams {
			body = append(body, st.Kind)
			body = binary.LittleEndian.AppendUint32(body, st.Offset)
			body = binary.LittleEndian.AppendUint32(body, st.Len)
			body = binary.LittleEndian.AppendUint32(body, st.RawLen)
		}
	}
	return appendChecksummed(nil, body)
}

func UnmarshalStripeFooter(buf []byte) (*StripeFooter, error) {
	body, err := verifyChecksummed(buf, "stripe footer")
	if err != nil {
		return nil, err
	}
	count, off, err := readUvarintBuf(body, 0)
	if err != nil {
		return nil, err
	}
	footer := &StripeFooter{Columns: make([]ColumnChunkMeta, count)}
	for i := range footer.Columns {
		c := &footer.Columns[i]
		if off+5 > len(body) {
			return nil, moerr.NewDataCorruptedNoCtx("", "stripe footer truncated")
		}
		c.Encoding = body[off]
		c.DictEntries = binary.LittleEndian.Uint32(body[off+1:])
		off += 5
		var streamCount uint64
		if streamCount, off, err = readUvarintBuf(body, off); err != nil {
			return nil, err
		}
		if off+int(streamCount)*13 > len(body) {
			return nil, moerr.NewDataCorruptedNoCtx("", "stream catalog truncated")
		}
		c.Streams = make([]StreamInfo, streamCount)
		for j := range c.Streams {
			st := &c.Streams[j]
			st.Kind = body[off]
			st.Offset = binary.LittleEndian.Uint32(body[off+1:])
			st.Len = binary.LittleEndian.Uint32(body[off+5:])
			st.RawLen = binary.LittleEndian.Uint32(body[off+9:])
			off += 13
		}
	}
	return footer, nil
}

// RowGroupIndex is one row group's checkpoint within a column chunk:
// the byte range of its pages inside the DATA stream, the leaf value
// count, the null count and the group zonemap.
type RowGroupIndex struct {
	Offset     uint32
	Len        uint32
	ValueCount uint32
	NullCnt    uint32
	ZoneMap    index.ZM
}

const rowGroupIndexSize = 16 + index.ZMSize

// MarshalRowIndex serializes one column's ROW_INDEX stream, crc-prefixed
// so per-column corruption is detected in isolation.
func MarshalRowIndex(entries []RowGroupIndex) []byte {
	body := make([]byte, 0, len(entries)*rowGroupIndexSize)
	for _, e := range entries {
		body = binary.LittleEndian.AppendUint32(body, e.Offset)
		body = binary.LittleEndian.AppendUint32(body, e.Len)
		body = binary.LittleEndian.AppendUint32(body, e.ValueCount)
		body = binary.LittleEndian.AppendUint32(body, e.NullCnt)
		zm := e.ZoneMap
		if len(zm) != index.ZMSize {
			zm = make(index.ZM, index.ZMSize)
		}
		body = append(body, zm...)
	}
	return appendChecksummed(nil, body)
}

func UnmarshalRowIndex(buf []byte) ([]RowGroupIndex, error) {
	body, err := verifyChecksummed(buf, "row index")
	if err != nil {
		return nil, err
	}
	if len(body)%rowGroupIndexSize != 0 {
		return nil, moerr.NewDataCorruptedNoCtx("", "row index length %d", len(body))
	}
	entries := make([]RowGroupIndex, len(body)/rowGroupIndexSize)
	off := 0
	for i := range entries {
		e := &entries[i]
		e.Offset = binary.LittleEndian.Uint32(body[off:])
		e.Len = binary.LittleEndian.Uint32(body[off+4:])
		e.ValueCount = binary.LittleEndian.Uint32(body[off+8:])
		e.NullCnt = binary.LittleEndian.Uint32(body[off+12:])
		e.ZoneMap = index.ZM(append([]byte(nil), body[off+16:off+16+index.ZMSize]...))
		off += rowGroupIndexSize
	}
	return entries, nil
}
