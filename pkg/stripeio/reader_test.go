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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/container/batch"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/container/vector"
	"github.com/matrixorigin/stripeio/pkg/fileservice"
	"github.com/matrixorigin/stripeio/pkg/objectio"
)

func int64Vector(t *testing.T, values []int64, nullAt map[int]bool) *vector.Vector {
	vec := vector.New(types.T_int64.ToType(), nil)
	for i, v := range values {
		require.NoError(t, vector.AppendFixed(vec, v, nullAt[i]))
	}
	return vec
}

func int32Vector(t *testing.T, values []int32, nullAt map[int]bool) *vector.Vector {
	vec := vector.New(types.T_int32.ToType(), nil)
	for i, v := range values {
		require.NoError(t, vector.AppendFixed(vec, v, nullAt[i]))
	}
	return vec
}

func float64Vector(t *testing.T, values []float64, nullAt map[int]bool) *vector.Vector {
	vec := vector.New(types.T_float64.ToType(), nil)
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

func flatSchema(t *testing.T) *objectio.Schema {
	s, err := objectio.NewSchema([]objectio.Field{
		objectio.NewPrimitiveField("id", types.T_int64),
		objectio.NewPrimitiveField("tag", types.T_varchar),
		objectio.NewPrimitiveField("val", types.T_float64),
	})
	require.NoError(t, err)
	return s
}

// writeFlatFile writes rows of (id=i, tag=tagFn(i), val=i/4) and returns
// the committed meta. tagNull rows get a null tag.
func writeFlatFile(
	t *testing.T,
	fs fileservice.FileService,
	name string,
	rows int,
	tagFn func(i int) string,
	tagNull func(i int) bool,
	opts objectio.WriterOptions,
) *objectio.FileMeta {
	w, err := objectio.NewWriter(fs, name, flatSchema(t), opts)
	require.NoError(t, err)

	ids := make([]int64, rows)
	tags := make([]string, rows)
	vals := make([]float64, rows)
	nullAt := map[int]bool{}
	for i := 0; i < rows; i++ {
		ids[i] = int64(i)
		tags[i] = tagFn(i)
		vals[i] = float64(i) / 4
		if tagNull != nil && tagNull(i) {
			nullAt[i] = true
		}
	}
	bat := batch.New([]string{"id", "tag", "val"})
	bat.SetVector(0, int64Vector(t, ids, nil))
	bat.SetVector(1, varcharVector(t, tags, nullAt))
	bat.SetVector(2, float64Vector(t, vals, nil))
	bat.SetRowCount(rows)
	require.NoError(t, w.Write(bat))

	meta, err := w.Close(context.Background())
	require.NoError(t, err)
	return meta
}

// scanAll drains the reader, returning every batch in order.
func scanAll(t *testing.T, rd *Reader) []*batch.Batch {
	var bats []*batch.Batch
	for {
		bat, err := rd.NextBatch(context.Background())
		require.NoError(t, err)
		if bat == nil {
			return bats
		}
		require.Equal(t, bat.RowCount(), bat.GetVector(0).Length())
		bats = append(bats, bat)
	}
}

func TestReadFlatFile(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	tagFn := func(i int) string { return fmt.Sprintf("tag-%d", i%7) }
	tagNull := func(i int) bool { return i%97 == 0 }
	writeFlatFile(t, fs, "obj/flat", 2500, tagFn, tagNull, objectio.WriterOptions{
		RowsPerGroup: 1000,
		StripeRows:   1000,
	})

	rd, err := NewReader(ctx, fs, "obj/flat", nil, ReaderOptions{}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "tag", "val"}, rd.Schema().ColumnNames())

	bats := scanAll(t, rd)
	require.Equal(t, 1, bats[0].RowCount())
	require.Equal(t, 2, bats[1].RowCount())

	row := 0
	for _, bat := range bats {
		require.LessOrEqual(t, bat.RowCount(), MaxBatchSize)
		ids := vector.MustFixedCol[int64](bat.Attr("id"))
		vals := vector.MustFixedCol[float64](bat.Attr("val"))
		tags := bat.Attr("tag")
		for i := 0; i < bat.RowCount(); i++ {
			require.Equal(t, int64(row), ids[i])
			require.Equal(t, float64(row)/4, vals[i])
			if tagNull(row) {
				require.True(t, tags.IsNull(i))
			} else {
				require.Equal(t, tagFn(row), tags.GetStringAt(i))
			}
			row++
		}
		bat.Clean()
	}
	require.Equal(t, 2500, row)

	rd.Close()
	_, err = rd.NextBatch(ctx)
	require.Error(t, err)
}

// groupTag is constant within each 1000-row group so zonemaps prune at
// group granularity.
func groupTag(i int) string {
	g := i / 1000
	if g == 3 || g == 7 {
		return "target"
	}
	return fmt.Sprintf("cold-%02d", g)
}

func TestGroupPruning(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	meta := writeFlatFile(t, fs, "obj/pruned", 10000, groupTag, nil, objectio.WriterOptions{
		RowsPerGroup: 1000,
		StripeRows:   10000,
	})
	require.Len(t, meta.Stripes, 1)
	stripe := meta.Stripes[0]

	// account the exact bytes the pruned scan is allowed to touch: stripe
	// footer, index section, dictionaries and the two selected groups
	footer, err := objectio.ReadStripeFooter(ctx, fs, "obj/pruned", stripe)
	require.NoError(t, err)
	expected := int64(stripe.FooterLen + stripe.IndexLen)
	idxVec := fileservice.IOVector{
		FilePath: "obj/pruned",
		Entries: []fileservice.IOEntry{
			{Offset: int64(stripe.IndexOffset()), Size: int64(stripe.IndexLen)},
		},
	}
	require.NoError(t, fs.Read(ctx, &idxVec))
	base := stripe.IndexOffset() - stripe.Offset
	section := idxVec.Entries[0].Data
	for i := range footer.Columns {
		if dict, ok := footer.Columns[i].Stream(objectio.StreamDictionary); ok {
			expected += int64(dict.Len)
		}
		ri, ok := footer.Columns[i].Stream(objectio.StreamRowIndex)
		require.True(t, ok)
		entries, err := objectio.UnmarshalRowIndex(section[ri.Offset-base : ri.Offset-base+ri.Len])
		require.NoError(t, err)
		require.Len(t, entries, 10)
		expected += int64(entries[3].Len + entries[7].Len)
	}

	rd, err := NewReader(ctx, fs, "obj/pruned", Eq("tag", []byte("target")), ReaderOptions{
		MaxMergeGap: 1,
	}, nil)
	require.NoError(t, err)
	defer rd.Close()
	fs.ResetCounters()

	var ids []int64
	for _, bat := range scanAll(t, rd) {
		ids = append(ids, vector.MustFixedCol[int64](bat.Attr("id"))[:bat.RowCount()]...)
		bat.Clean()
	}
	require.Len(t, ids, 2000)
	for i := 0; i < 1000; i++ {
		require.Equal(t, int64(3000+i), ids[i])
		require.Equal(t, int64(7000+i), ids[1000+i])
	}
	require.Equal(t, expected, fs.ReadBytes())
}

func TestFullyPrunedStripe(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	meta := writeFlatFile(t, fs, "obj/cold", 4000, groupTag, nil, objectio.WriterOptions{
		RowsPerGroup: 1000,
		StripeRows:   4000,
	})
	stripe := meta.Stripes[0]

	rd, err := NewReader(ctx, fs, "obj/cold", Eq("tag", []byte("absent")), ReaderOptions{
		MaxMergeGap: 1,
	}, nil)
	require.NoError(t, err)
	defer rd.Close()
	fs.ResetCounters()

	bat, err := rd.NextBatch(ctx)
	require.NoError(t, err)
	require.Nil(t, bat)

	// the data section was never touched
	require.Equal(t, int64(stripe.FooterLen+stripe.IndexLen), fs.ReadBytes())
}

func TestRangePredicate(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	writeFlatFile(t, fs, "obj/range", 10000, groupTag, nil, objectio.WriterOptions{
		RowsPerGroup: 1000,
		StripeRows:   10000,
	})

	pred := Range("id",
		types.EncodeFixed(int64(4200)),
		types.EncodeFixed(int64(5100)))
	rd, err := NewReader(ctx, fs, "obj/range", pred, ReaderOptions{}, nil)
	require.NoError(t, err)
	defer rd.Close()

	// groups 4 and 5 survive; pruning is conservative, the caller still
	// filters rows
	var rows int
	for _, bat := range scanAll(t, rd) {
		rows += bat.RowCount()
		bat.Clean()
	}
	require.Equal(t, 2000, rows)
}

func nestedSchema(t *testing.T) *objectio.Schema {
	s, err := objectio.NewSchema([]objectio.Field{
		objectio.NewStructField("user",
			objectio.NewPrimitiveField("name", types.T_varchar),
			objectio.NewPrimitiveField("age", types.T_int32)),
		objectio.NewArrayField("tags", objectio.NewPrimitiveField("tag", types.T_varchar)),
		objectio.NewMapField("props",
			objectio.NewPrimitiveField("key", types.T_varchar),
			objectio.NewPrimitiveField("value", types.T_int64)),
	})
	require.NoError(t, err)
	return s
}

// nestedTestBatch builds six rows covering null structs, null struct
// fields, null and empty containers and null elements:
//
//	0: user{ann, 30}   tags [a b]      props {k1:1}
//	1: user null       tags []         props null
//	2: user{null, 41}  tags null       props {k2:2, k3:3}
//	3: user{bob, 17}   tags [c]        props {}
//	4: user{eve, null} tags [d ∅ e]    props {k4:null}
//	5: user{joe, 5}    tags [f]        props {k5:5}
func nestedTestBatch(t *testing.T) *batch.Batch {
	user := vector.New(types.T_struct.ToType(), nil)
	user.SetChildren(
		varcharVector(t, []string{"ann", "", "", "bob", "eve", "joe"}, map[int]bool{1: true, 2: true}),
		int32Vector(t, []int32{30, 0, 41, 17, 0, 5}, map[int]bool{1: true, 4: true}),
	)
	user.GetNulls().Add(1)
	user.SetLength(6)

	tags := vector.New(types.T_array.ToType(), nil)
	tags.SetChildren(varcharVector(t,
		[]string{"a", "b", "c", "d", "", "e", "f"}, map[int]bool{4: true}))
	tags.SetOffsets([]uint32{0, 2, 2, 2, 3, 6, 7})
	tags.GetNulls().Add(2)
	tags.SetLength(6)

	props := vector.New(types.T_map.ToType(), nil)
	props.SetChildren(
		varcharVector(t, []string{"k1", "k2", "k3", "k4", "k5"}, nil),
		int64Vector(t, []int64{1, 2, 3, 0, 5}, map[int]bool{3: true}),
	)
	props.SetOffsets([]uint32{0, 1, 1, 3, 3, 4, 5})
	props.GetNulls().Add(1)
	props.SetLength(6)

	bat := batch.New([]string{"user", "tags", "props"})
	bat.SetVector(0, user)
	bat.SetVector(1, tags)
	bat.SetVector(2, props)
	bat.SetRowCount(6)
	return bat
}

func TestNestedRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	w, err := objectio.NewWriter(fs, "obj/nested", nestedSchema(t), objectio.WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Write(nestedTestBatch(t)))
	_, err = w.Close(ctx)
	require.NoError(t, err)

	rd, err := NewReader(ctx, fs, "obj/nested", nil, ReaderOptions{}, nil)
	require.NoError(t, err)
	defer rd.Close()

	bats := scanAll(t, rd)
	var rows int
	for _, bat := range bats {
		rows += bat.RowCount()
	}
	require.Equal(t, 6, rows)

	// small file, everything lands in the first adaptive batches; stitch
	// per-row checks over the batch sequence
	type cursor struct {
		bat *batch.Batch
		idx int
	}
	cursors := make([]cursor, 0, 6)
	for _, bat := range bats {
		for i := 0; i < bat.RowCount(); i++ {
			cursors = append(cursors, cursor{bat: bat, idx: i})
		}
	}

	// user struct
	wantName := []string{"ann", "", "", "bob", "eve", "joe"}
	wantAge := []int32{30, 0, 41, 17, 0, 5}
	userNull := map[int]bool{1: true}
	nameNull := map[int]bool{1: true, 2: true}
	ageNull := map[int]bool{1: true, 4: true}
	for row, c := range cursors {
		user := c.bat.Attr("user")
		require.Equal(t, userNull[row], user.IsNull(c.idx), "user row %d", row)
		name, age := user.Children()[0], user.Children()[1]
		require.Equal(t, nameNull[row], name.IsNull(c.idx), "name row %d", row)
		if !nameNull[row] {
			require.Equal(t, wantName[row], name.GetStringAt(c.idx))
		}
		require.Equal(t, ageNull[row], age.IsNull(c.idx), "age row %d", row)
		if !ageNull[row] {
			require.Equal(t, wantAge[row], vector.MustFixedCol[int32](age)[c.idx])
		}
	}

	// containers: verify against the per-batch slice of the expected shape
	wantTags := [][]string{{"a", "b"}, nil, nil, {"c"}, {"d", "", "e"}, {"f"}}
	tagsNull := map[int]bool{2: true}
	elemNull := map[int]bool{4: true} // global element ordinal
	elemBase := 0
	for row, c := range cursors {
		tags := c.bat.Attr("tags")
		offs := tags.Offsets()
		n := int(offs[c.idx+1] - offs[c.idx])
		if tagsNull[row] {
			require.True(t, tags.IsNull(c.idx), "tags row %d", row)
			require.Zero(t, n)
			continue
		}
		require.False(t, tags.IsNull(c.idx))
		require.Equal(t, len(wantTags[row]), n, "tags row %d", row)
		elem := tags.Children()[0]
		for j := 0; j < n; j++ {
			at := int(offs[c.idx]) + j
			if elemNull[elemBase+j] {
				require.True(t, elem.IsNull(at))
			} else {
				require.Equal(t, wantTags[row][j], elem.GetStringAt(at))
			}
		}
		elemBase += n
	}

	wantKeys := [][]string{{"k1"}, nil, {"k2", "k3"}, {}, {"k4"}, {"k5"}}
	wantVals := [][]int64{{1}, nil, {2, 3}, {}, {0}, {5}}
	propsNull := map[int]bool{1: true}
	valNull := map[int]bool{3: true} // global entry ordinal
	entryBase := 0
	for row, c := range cursors {
		props := c.bat.Attr("props")
		offs := props.Offsets()
		n := int(offs[c.idx+1] - offs[c.idx])
		if propsNull[row] {
			require.True(t, props.IsNull(c.idx), "props row %d", row)
			require.Zero(t, n)
			continue
		}
		require.False(t, props.IsNull(c.idx))
		require.Equal(t, len(wantKeys[row]), n, "props row %d", row)
		keys, vals := props.Children()[0], props.Children()[1]
		for j := 0; j < n; j++ {
			at := int(offs[c.idx]) + j
			require.Equal(t, wantKeys[row][j], keys.GetStringAt(at))
			if valNull[entryBase+j] {
				require.True(t, vals.IsNull(at))
			} else {
				require.Equal(t, wantVals[row][j], vector.MustFixedCol[int64](vals)[at])
			}
		}
		entryBase += n
	}

	for _, bat := range bats {
		bat.Clean()
	}
}

func TestProjection(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	writeFlatFile(t, fs, "obj/proj", 100, groupTag, nil, objectio.WriterOptions{})

	// projected columns come back in schema order
	rd, err := NewReader(ctx, fs, "obj/proj", nil, ReaderOptions{
		Columns: []string{"val", "id"},
	}, nil)
	require.NoError(t, err)
	var rows int
	for _, bat := range scanAll(t, rd) {
		require.Equal(t, []string{"id", "val"}, bat.Attrs)
		require.Nil(t, bat.Attr("tag"))
		rows += bat.RowCount()
		bat.Clean()
	}
	require.Equal(t, 100, rows)
	rd.Close()

	_, err = NewReader(ctx, fs, "obj/proj", nil, ReaderOptions{
		Columns: []string{"nope"},
	}, nil)
	require.Error(t, err)
}

func TestStructFieldProjection(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	w, err := objectio.NewWriter(fs, "obj/sub", nestedSchema(t), objectio.WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Write(nestedTestBatch(t)))
	_, err = w.Close(ctx)
	require.NoError(t, err)

	rd, err := NewReader(ctx, fs, "obj/sub", nil, ReaderOptions{
		Columns: []string{"user.name"},
	}, nil)
	require.NoError(t, err)
	defer rd.Close()

	var rows int
	for _, bat := range scanAll(t, rd) {
		user := bat.Attr("user")
		require.NotNil(t, user)
		name, age := user.Children()[0], user.Children()[1]
		for i := 0; i < bat.RowCount(); i++ {
			// the unprojected sibling is an all-null placeholder
			require.True(t, age.IsNull(i))
		}
		require.Equal(t, bat.RowCount(), name.Length())
		rows += bat.RowCount()
		bat.Clean()
	}
	require.Equal(t, 6, rows)

	_, err = NewReader(ctx, fs, "obj/sub", nil, ReaderOptions{
		Columns: []string{"user.nope"},
	}, nil)
	require.Error(t, err)

	// arrays cannot be partially projected
	_, err = NewReader(ctx, fs, "obj/sub", nil, ReaderOptions{
		Columns: []string{"tags.tag"},
	}, nil)
	require.Error(t, err)
}

func TestBatchSizeCap(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	s, err := objectio.NewSchema([]objectio.Field{
		objectio.NewPrimitiveField("id", types.T_int64),
		objectio.NewPrimitiveField("payload", types.T_varchar),
	})
	require.NoError(t, err)
	w, err := objectio.NewWriter(fs, "obj/wide", s, objectio.WriterOptions{RowsPerGroup: 64})
	require.NoError(t, err)

	ids := make([]int64, 64)
	payloads := make([]string, 64)
	for i := range ids {
		ids[i] = int64(i)
		payloads[i] = strings.Repeat(fmt.Sprintf("%04d", i), 512) // 2 KiB, all distinct
	}
	bat := batch.New([]string{"id", "payload"})
	bat.SetVector(0, int64Vector(t, ids, nil))
	bat.SetVector(1, varcharVector(t, payloads, nil))
	bat.SetRowCount(64)
	require.NoError(t, w.Write(bat))
	_, err = w.Close(ctx)
	require.NoError(t, err)

	rd, err := NewReader(ctx, fs, "obj/wide", nil, ReaderOptions{
		MaxReadBlockBytes: 8192,
	}, nil)
	require.NoError(t, err)
	defer rd.Close()

	var rows, capped int
	for _, got := range scanAll(t, rd) {
		// ~2 KiB per row against an 8 KiB budget keeps batches tiny even
		// though MaxBatchSize would allow 1024 rows
		require.LessOrEqual(t, got.RowCount(), 4)
		if got.RowCount() >= 3 {
			capped++
		}
		rows += got.RowCount()
		got.Clean()
	}
	require.Equal(t, 64, rows)
	require.NotZero(t, capped)
	require.LessOrEqual(t, rd.BatchRows(), 4)
}

// corruptRowIndex flips one byte inside the checksummed payload of the
// given column's checkpoint stream, directly in the backing file.
func corruptRowIndex(t *testing.T, dir, name string, ord int) {
	ctx := context.Background()
	fs, err := fileservice.NewLocalFS("local", dir)
	require.NoError(t, err)
	meta, err := objectio.ReadMeta(ctx, fs, name)
	require.NoError(t, err)
	stripe := meta.Stripes[0]
	footer, err := objectio.ReadStripeFooter(ctx, fs, name, stripe)
	require.NoError(t, err)
	ri, ok := footer.Columns[ord].Stream(objectio.StreamRowIndex)
	require.True(t, ok)

	path := filepath.Join(dir, name)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	content[int64(stripe.Offset+ri.Offset)+8] ^= 0xff
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func TestCorruptCheckpointDegrades(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := fileservice.NewLocalFS("local", dir)
	require.NoError(t, err)
	defer fs.Close()

	// no dictionary chunks, so corrupt checkpoints only cost the pruning
	writeFlatFile(t, fs, "corrupt.stripe", 2000, groupTag, nil, objectio.WriterOptions{
		RowsPerGroup:      500,
		DisableDictionary: true,
	})
	corruptRowIndex(t, dir, "corrupt.stripe", 0)

	rd, err := NewReader(ctx, fs, "corrupt.stripe", Eq("tag", []byte("absent")), ReaderOptions{}, nil)
	require.NoError(t, err)
	defer rd.Close()

	// degraded mode reads the whole stripe, predicate or not
	var ids []int64
	for _, bat := range scanAll(t, rd) {
		ids = append(ids, vector.MustFixedCol[int64](bat.Attr("id"))[:bat.RowCount()]...)
		bat.Clean()
	}
	require.Len(t, ids, 2000)
	for i, id := range ids {
		require.Equal(t, int64(i), id)
	}
}

func TestCorruptCheckpointDictionaryFatal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := fileservice.NewLocalFS("local", dir)
	require.NoError(t, err)
	defer fs.Close()

	// the tag chunk dictionary-encodes; without checkpoints it cannot be
	// read safely
	writeFlatFile(t, fs, "fatal.stripe", 2000, groupTag, nil, objectio.WriterOptions{
		RowsPerGroup: 500,
	})
	corruptRowIndex(t, dir, "fatal.stripe", 1)

	rd, err := NewReader(ctx, fs, "fatal.stripe", nil, ReaderOptions{}, nil)
	require.NoError(t, err)
	defer rd.Close()

	_, err = rd.NextBatch(ctx)
	require.Error(t, err)
	require.True(t, moerr.IsDataCorrupted(err))
}

func TestPrefetch(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	meta := writeFlatFile(t, fs, "obj/prefetch", 2500, groupTag, nil, objectio.WriterOptions{
		RowsPerGroup: 250,
		StripeRows:   500,
	})
	require.Len(t, meta.Stripes, 5)

	rd, err := NewReader(ctx, fs, "obj/prefetch", nil, ReaderOptions{
		PrefetchStripes: 2,
	}, nil)
	require.NoError(t, err)
	defer rd.Close()

	var ids []int64
	for _, bat := range scanAll(t, rd) {
		ids = append(ids, vector.MustFixedCol[int64](bat.Attr("id"))[:bat.RowCount()]...)
		bat.Clean()
	}
	require.Len(t, ids, 2500)
	for i, id := range ids {
		require.Equal(t, int64(i), id)
	}
}

func TestPrefetchClosedEarly(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS("mem")
	defer fs.Close()

	writeFlatFile(t, fs, "obj/early", 2000, groupTag, nil, objectio.WriterOptions{
		StripeRows: 250,
	})

	rd, err := NewReader(ctx, fs, "obj/early", nil, ReaderOptions{
		PrefetchStripes: 3,
	}, nil)
	require.NoError(t, err)
	bat, err := rd.NextBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, bat)
	bat.Clean()
	// closing with prefetches in flight must release them all
	rd.Close()
}
