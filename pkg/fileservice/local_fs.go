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
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

// LocalFS serves stripe files from a directory on the local filesystem.
type LocalFS struct {
	name    string
	rootDir string

	readCalls atomic.Int64
	readBytes atomic.Int64
}

var _ FileService = (*LocalFS)(nil)

func NewLocalFS(name string, rootDir string) (*LocalFS, error) {
	if rootDir == "" {
		return nil, moerr.NewInvalidPath(moerr.Context(), rootDir)
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, err
	}
	return &LocalFS{name: name, rootDir: rootDir}, nil
}

func (l *LocalFS) Name() string {
	return l.name
}

func (l *LocalFS) fullPath(filePath string) (string, error) {
	if filePath == "" || strings.Contains(filePath, "..") {
		return "", moerr.NewInvalidPath(moerr.Context(), filePath)
	}
	return filepath.Join(l.rootDir, filePath), nil
}

func (l *LocalFS) Read(ctx context.Context, vector *IOVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vector.Entries) == 0 {
		return moerr.NewEmptyRange(ctx, vector.FilePath)
	}
	path, err := l.fullPath(vector.FilePath)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return moerr.NewFileNotFound(ctx, vector.FilePath)
		}
		return err
	}
	defer f.Close()

	merged, err := mergeRanges(vector)
	if err != nil {
		return err
	}
	for _, m := range merged {
		size := m.size
		if size == -1 {
			info, err := f.Stat()
			if err != nil {
				return err
			}
			size = info.Size() - m.offset
		}
		if size < 0 {
			return moerr.NewInvalidExtent(ctx, vector.FilePath, m.offset, m.offset+size)
		}
		buf, err := l.allocate(vector, int(size))
		if err != nil {
			return err
		}
		n, err := f.ReadAt(buf, m.offset)
		if err != nil && err != io.EOF {
			return err
		}
		if int64(n) != size {
			return moerr.NewUnexpectedEOF(ctx, vector.FilePath)
		}
		l.readCalls.Add(1)
		l.readBytes.Add(size)
		if err := fillEntries(vector, m, buf); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalFS) allocate(vector *IOVector, size int) ([]byte, error) {
	if vector.Accounting == nil {
		return make([]byte, size), nil
	}
	buf, err := vector.Accounting.Alloc(size)
	if err != nil {
		return nil, err
	}
	mp := vector.Accounting
	vector.releases = append(vector.releases, func() { mp.Free(buf) })
	return buf, nil
}

func (l *LocalFS) Write(ctx context.Context, vector IOVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.fullPath(vector.FilePath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return moerr.NewInternalError(ctx, "file %s already exists", vector.FilePath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	entries := make([]IOEntry, len(vector.Entries))
	copy(entries, vector.Entries)
	sort.Slice(entries, func(a, b int) bool { return entries[a].Offset < entries[b].Offset })
	for _, entry := range entries {
		if _, err := f.WriteAt(entry.Data[:entry.Size], entry.Offset); err != nil {
			return err
		}
	}
	return f.Sync()
}

func (l *LocalFS) StatFile(ctx context.Context, filePath string) (*DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.fullPath(filePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, moerr.NewFileNotFound(ctx, filePath)
		}
		return nil, err
	}
	return &DirEntry{Name: filePath, Size: info.Size()}, nil
}

// ReadCalls reports the number of underlying preads issued so far.
func (l *LocalFS) ReadCalls() int64 {
	return l.readCalls.Load()
}

// ReadBytes reports the total bytes fetched from disk so far.
func (l *LocalFS) ReadBytes() int64 {
	return l.readBytes.Load()
}

func (l *LocalFS) Close() {}
