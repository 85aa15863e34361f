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
	"sort"
	"sync"
	"sync/atomic"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

// MemFS keeps whole files in memory. It is the service of choice in tests:
// the read counters let a test assert exactly how many bytes a plan touched.
type MemFS struct {
	name string

	sync.RWMutex
	files map[string][]byte

	readCalls atomic.Int64
	readBytes atomic.Int64
}

var _ FileService = (*MemFS)(nil)

func NewMemFS(name string) *MemFS {
	return &MemFS{
		name:  name,
		files: make(map[string][]byte),
	}
}

func (m *MemFS) Name() string {
	return m.name
}

func (m *MemFS) Read(ctx context.Context, vector *IOVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vector.Entries) == 0 {
		return moerr.NewEmptyRange(ctx, vector.FilePath)
	}
	m.RLock()
	content, ok := m.files[vector.FilePath]
	m.RUnlock()
	if !ok {
		return moerr.NewFileNotFound(ctx, vector.FilePath)
	}

	merged, err := mergeRanges(vector)
	if err != nil {
		return err
	}
	for _, mr := range merged {
		size := mr.size
		if size == -1 {
			size = int64(len(content)) - mr.offset
		}
		if size < 0 || mr.offset+size > int64(len(content)) {
			return moerr.NewUnexpectedEOF(ctx, vector.FilePath)
		}
		buf, err := m.allocate(vector, int(size))
		if err != nil {
			return err
		}
		copy(buf, content[mr.offset:mr.offset+size])
		m.readCalls.Add(1)
		m.readBytes.Add(size)
		if err := fillEntries(vector, mr, buf); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemFS) allocate(vector *IOVector, size int) ([]byte, error) {
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

func (m *MemFS) Write(ctx context.Context, vector IOVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	if _, ok := m.files[vector.FilePath]; ok {
		return moerr.NewInternalError(ctx, "file %s already exists", vector.FilePath)
	}

	entries := make([]IOEntry, len(vector.Entries))
	copy(entries, vector.Entries)
	sort.Slice(entries, func(a, b int) bool { return entries[a].Offset < entries[b].Offset })
	var size int64
	for _, entry := range entries {
		if end := entry.Offset + entry.Size; end > size {
			size = end
		}
	}
	content := make([]byte, size)
	for _, entry := range entries {
		copy(content[entry.Offset:], entry.Data[:entry.Size])
	}
	m.files[vector.FilePath] = content
	return nil
}

func (m *MemFS) StatFile(ctx context.Context, filePath string) (*DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.RLock()
	content, ok := m.files[filePath]
	m.RUnlock()
	if !ok {
		return nil, moerr.NewFileNotFound(ctx, filePath)
	}
	return &DirEntry{Name: filePath, Size: int64(len(content))}, nil
}

// ReadCalls reports the number of merged reads served so far.
func (m *MemFS) ReadCalls() int64 {
	return m.readCalls.Load()
}

// ReadBytes reports the total bytes served so far.
func (m *MemFS) ReadBytes() int64 {
	return m.readBytes.Load()
}

// ResetCounters zeroes the read counters.
func (m *MemFS) ResetCounters() {
	m.readCalls.Store(0)
	m.readBytes.Store(0)
}

func (m *MemFS) Close() {
	m.Lock()
	defer m.Unlock()
	m.files = make(map[string][]byte)
}
