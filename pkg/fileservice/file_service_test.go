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

package fileservice

import (
	"bytes"
	"context"
	"testing"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/common/mpool"
	"github.com/stretchr/testify/require"
)

func testContent(n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte(i % 251)
	}
	return content
}

func writeTestFile(t *testing.T, fs FileService, path string, content []byte) {
	t.Helper()
	err := fs.Write(context.Background(), IOVector{
		FilePath: path,
		Entries: []IOEntry{
			{Offset: 0, Size: int64(len(content)), Data: content},
		},
	})
	require.NoError(t, err)
}

func testService(t *testing.T, newFS func(t *testing.T) FileService) {
	ctx := context.Background()

	t.Run("read entries", func(t *testing.T) {
		fs := newFS(t)
		defer fs.Close()
		content := testContent(4096)
		writeTestFile(t, fs, "obj/a", content)

		vec := IOVector{
			FilePath: "obj/a",
			Entries: []IOEntry{
				{Offset: 0, Size: 16},
				{Offset: 1000, Size: 24},
				{Offset: 4000, Size: -1},
			},
		}
		require.NoError(t, fs.Read(ctx, &vec))
		require.Equal(t, content[:16], vec.Entries[0].Data)
		require.Equal(t, content[1000:1024], vec.Entries[1].Data)
		require.Equal(t, content[4000:], vec.Entries[2].Data)
		require.Equal(t, int64(96), vec.Entries[2].Size)
	})

	t.Run("preallocated data", func(t *testing.T) {
		fs := newFS(t)
		defer fs.Close()
		content := testContent(256)
		writeTestFile(t, fs, "obj/b", content)

		buf := make([]byte, 100)
		vec := IOVector{
			FilePath: "obj/b",
			Entries: []IOEntry{
				{Offset: 50, Size: 100, Data: buf},
			},
		}
		require.NoError(t, fs.Read(ctx, &vec))
		require.Equal(t, content[50:150], buf)
	})

	t.Run("file not found", func(t *testing.T) {
		fs := newFS(t)
		defer fs.Close()
		vec := IOVector{
			FilePath: "missing",
			Entries:  []IOEntry{{Offset: 0, Size: 1}},
		}
		err := fs.Read(ctx, &vec)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrFileNotFound))
	})

	t.Run("empty vector", func(t *testing.T) {
		fs := newFS(t)
		defer fs.Close()
		err := fs.Read(ctx, &IOVector{FilePath: "x"})
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrEmptyRange))
	})

	t.Run("write once", func(t *testing.T) {
		fs := newFS(t)
		defer fs.Close()
		writeTestFile(t, fs, "obj/c", []byte("hello"))
		err := fs.Write(ctx, IOVector{
			FilePath: "obj/c",
			Entries:  []IOEntry{{Offset: 0, Size: 5, Data: []byte("world")}},
		})
		require.Error(t, err)
	})

	t.Run("stat", func(t *testing.T) {
		fs := newFS(t)
		defer fs.Close()
		writeTestFile(t, fs, "obj/d", testContent(777))
		entry, err := fs.StatFile(ctx, "obj/d")
		require.NoError(t, err)
		require.Equal(t, int64(777), entry.Size)
	})
}

func TestMemFS(t *testing.T) {
	testService(t, func(t *testing.T) FileService {
		return NewMemFS("mem")
	})
}

func TestLocalFS(t *testing.T) {
	testService(t, func(t *testing.T) FileService {
		fs, err := NewLocalFS("local", t.TempDir())
		require.NoError(t, err)
		return fs
	})
}

func TestRangeMerging(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS("mem")
	defer fs.Close()
	content := testContent(1 << 20)
	writeTestFile(t, fs, "obj/m", content)
	fs.ResetCounters()

	// three ranges within one merge gap collapse to one read
	vec := IOVector{
		FilePath: "obj/m",
		Entries: []IOEntry{
			{Offset: 0, Size: 100},
			{Offset: 5000, Size: 100},
			{Offset: 20000, Size: 100},
		},
	}
	require.NoError(t, fs.Read(ctx, &vec))
	require.Equal(t, int64(1), fs.ReadCalls())
	require.Equal(t, int64(20100), fs.ReadBytes())
	for i, entry := range vec.Entries {
		require.Equal(t, content[entry.Offset:entry.Offset+100], entry.Data, "entry %d", i)
	}

	// a gap wider than MaxMergeGap splits the plan
	fs.ResetCounters()
	vec = IOVector{
		FilePath:    "obj/m",
		MaxMergeGap: 1024,
		Entries: []IOEntry{
			{Offset: 0, Size: 100},
			{Offset: 5000, Size: 100},
		},
	}
	require.NoError(t, fs.Read(ctx, &vec))
	require.Equal(t, int64(2), fs.ReadCalls())
	require.Equal(t, int64(200), fs.ReadBytes())
}

func TestReadAccounting(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS("mem")
	defer fs.Close()
	content := testContent(8192)
	writeTestFile(t, fs, "obj/acct", content)

	mp := mpool.MustNew("fileservice-test")
	vec := IOVector{
		FilePath:   "obj/acct",
		Accounting: mp,
		Entries: []IOEntry{
			{Offset: 0, Size: 4096},
			{Offset: 4096, Size: 4096},
		},
	}
	require.NoError(t, fs.Read(ctx, &vec))
	require.Greater(t, mp.CurrNB(), int64(0))
	require.True(t, bytes.Equal(content[:4096], vec.Entries[0].Data))

	vec.Release()
	require.Equal(t, int64(0), mp.CurrNB())
	require.Nil(t, vec.Entries[0].Data)
}

func TestUnsortedEntries(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS("mem")
	defer fs.Close()
	content := testContent(1024)
	writeTestFile(t, fs, "obj/u", content)

	vec := IOVector{
		FilePath: "obj/u",
		Entries: []IOEntry{
			{Offset: 512, Size: 64},
			{Offset: 0, Size: 64},
		},
	}
	require.NoError(t, fs.Read(ctx, &vec))
	require.Equal(t, content[512:576], vec.Entries[0].Data)
	require.Equal(t, content[:64], vec.Entries[1].Data)
}
