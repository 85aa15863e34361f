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
	"fmt"
	"testing"

	"github.com/matrixorigin/stripeio/pkg/container/batch"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/container/vector"
	"github.com/matrixorigin/stripeio/pkg/encodings"
	"github.com/matrixorigin/stripeio/pkg/fileservice"
	"github.com/stretchr/testify/require"
)

func int64Vector(t *testing.T, values []int64, nullAt map[int]bool) *vector.Vector {
	vec := vector.New(types.T_int64.ToType(), nil)
	for i, v := range values {
		require.NoError(t, vector.AppendFixed(vec, v, nullAt[i]))
	}
	return vec
}

func varcharVector(t *testing.T, values []string, nullAt map[int]bool) *vector.Vector {
	vec := vector.New(types.T_varchar.ToType(), nil)
	for i, v := range values {
		require.NoError(t, vector.AppendBytes(vec, []byte(v), nullAt[i]))
	}
	return vec
}

func flatTestBatch(t *testing.T, rows int) *batch.Batch {
	ids := make([]int64, rows)
	names := make([]string, rows)
	for i := range ids {
		ids[i] = int64(i)
		names[i] = fmt.Sprintf("name-%d", i%100)
	}
	bat := batch.New([]string{"id", "name"})
	bat.SetVector(0, int64Vector(t, ids, nil))
	bat.SetVector(1, varcharVector(t, names, map[int]bool{3: true}))
	bat.SetRowCount(rows)
	return bat
}

func TestWriterFlatFile(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	s, err := NewSchema([]Field{
		NewPrimitiveField("id", types.T_int64),
		NewPrimitiveField("name", types.T_varchar),
	})
	require.NoError(t, err)

	w, err := NewWriter(fs, "obj/flat", s, WriterOptions{RowsPerGroup: 1000})
	require.NoError(t, err)
	require.NoError(t, w.Write(flatTestBatch(t, 2500)))
	meta, err := w.Close(ctx)
	require.NoError(t, err)
	require.Len(t, meta.Stripes, 1)
	require.Equal(t, uint32(2500), meta.Stripes[0].Rows)
	require.Equal(t, uint64(1), meta.ColStats[1].NullCnt)
	require.True(t, meta.ColStats[0].ZoneMap.ContainsKey(types.EncodeFixed(int64(2499))))
	require.False(t, meta.ColStats[0].ZoneMap.ContainsKey(types.EncodeFixed(int64(2500))))

	// reread everything through the parse helpers
	got, err := ReadMeta(ctx, fs, "obj/flat")
	require.NoError(t, err)
	require.Equal(t, meta.Stripes, got.Stripes)
	require.Equal(t, 2, got.Schema.LeafCount())

	footer, err := ReadStripeFooter(ctx, fs, "obj/flat", got.Stripes[0])
	require.NoError(t, err)
	require.Len(t, footer.Columns, 2)

	// the id chunk is monotonic, so it must not be dictionary-encoded
	require.NotEqual(t, encodings.Dict, footer.Columns[0].Encoding)
	// 100 distinct names over 2500 rows dictionary-encode
	require.Equal(t, encodings.Dict, footer.Columns[1].Encoding)
	require.Equal(t, uint32(100), footer.Columns[1].DictEntries)

	// three row groups per column
	stripe := got.Stripes[0]
	ri, ok := footer.Columns[0].Stream(StreamRowIndex)
	require.True(t, ok)
	vec := fileservice.IOVector{
		FilePath: "obj/flat",
		Entries: []fileservice.IOEntry{
			{Offset: int64(stripe.Offset + ri.Offset), Size: int64(ri.Len)},
		},
	}
	require.NoError(t, fs.Read(ctx, &vec))
	entries, err := UnmarshalRowIndex(vec.Entries[0].Data)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, uint32(1000), entries[0].ValueCount)
	require.Equal(t, uint32(500), entries[2].ValueCount)
	require.True(t, entries[1].ZoneMap.ContainsKey(types.EncodeFixed(int64(1500))))
	require.False(t, entries[1].ZoneMap.ContainsKey(types.EncodeFixed(int64(2100))))

	// group 0's page decodes back to ids 0..999
	data, ok := footer.Columns[0].Stream(StreamData)
	require.True(t, ok)
	pageVec := fileservice.IOVector{
		FilePath: "obj/flat",
		Entries: []fileservice.IOEntry{
			{Offset: int64(stripe.Offset+data.Offset) + int64(entries[0].Offset), Size: int64(entries[0].Len)},
		},
	}
	require.NoError(t, fs.Read(ctx, &pageVec))
	page := pageVec.Entries[0].Data
	h, err := ParsePageHeader(page)
	require.NoError(t, err)
	require.Equal(t, 1000, h.ValueCount)
	_, def, values, err := DecodePageBody(h, page[h.HeaderLen:h.HeaderLen+h.BodyLen], got.CompressAlg)
	require.NoError(t, err)

	defDec := encodings.NewLevelDecoder(def, 1)
	defs := make([]uint8, 1000)
	require.NoError(t, defDec.Decode(defs))
	for _, d := range defs {
		require.Equal(t, uint8(1), d)
	}

	intDec, err := encodings.NewIntDecoder(h.Encoding, values)
	require.NoError(t, err)
	ids := make([]int64, 1000)
	require.NoError(t, intDec.Decode(ids))
	for i, v := range ids {
		require.Equal(t, int64(i), v)
	}
}

func TestWriterMultipleStripes(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	s, err := NewSchema([]Field{NewPrimitiveField("id", types.T_int64)})
	require.NoError(t, err)

	w, err := NewWriter(fs, "obj/striped", s, WriterOptions{
		RowsPerGroup: 100,
		StripeRows:   1000,
		Compression:  "none",
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ids := make([]int64, 500)
		for j := range ids {
			ids[j] = int64(i*500 + j)
		}
		bat := batch.New([]string{"id"})
		bat.SetVector(0, int64Vector(t, ids, nil))
		bat.SetRowCount(500)
		require.NoError(t, w.Write(bat))
	}
	meta, err := w.Close(ctx)
	require.NoError(t, err)
	require.Len(t, meta.Stripes, 3)
	require.Equal(t, uint32(1000), meta.Stripes[0].Rows)
	require.Equal(t, uint32(500), meta.Stripes[2].Rows)
	require.Equal(t, uint64(2500), meta.Rows())
}

func TestWriterClosedState(t *testing.T) {
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()
	s, err := NewSchema([]Field{NewPrimitiveField("id", types.T_int64)})
	require.NoError(t, err)

	w, err := NewWriter(fs, "", s, WriterOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, w.Name())
	_, err = w.Close(context.Background())
	require.NoError(t, err)

	require.Error(t, w.Write(batch.New([]string{"id"})))
	_, err = w.Close(context.Background())
	require.Error(t, err)
}
