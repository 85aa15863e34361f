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

// Package fileservice is the byte source abstraction of the reader: a
// random-access store addressed by path, with vectorized range reads. The
// reader hands one IOVector per stripe fetch; the service coalesces nearby
// ranges into as few underlying reads as possible.
package fileservice

import (
	"context"

	"github.com/matrixorigin/stripeio/pkg/common/mpool"
)

// DefaultMaxMergeGap is the largest hole, in bytes, bridged when coalescing
// two requested ranges into one underlying read.
const DefaultMaxMergeGap = 64 * 1024

type FileService interface {
	// Name identifies the service instance in error messages.
	Name() string

	// Read fills every entry of the vector. Entries with preallocated Data
	// are read in place; others get buffers accounted to vector.Accounting
	// when set. Blocking happens here and nowhere else in the library.
	Read(ctx context.Context, vector *IOVector) error

	// Write creates the file from the vector's entries. Writing an existing
	// path fails: files are immutable once written.
	Write(ctx context.Context, vector IOVector) error

	// StatFile returns the size of a file.
	StatFile(ctx context.Context, filePath string) (*DirEntry, error)

	Close()
}

type DirEntry struct {
	Name string
	Size int64
}

// IOEntry is one requested byte range. Size of -1 means "to end of file"
// and is only valid on the last entry of a read vector.
type IOEntry struct {
	Offset int64
	Size   int64
	Data   []byte

	done bool
}

type IOVector struct {
	FilePath string
	Entries  []IOEntry

	// Accounting, when set, is charged for every buffer the service
	// allocates on behalf of this vector and released by Release.
	Accounting *mpool.MPool

	// MaxMergeGap overrides DefaultMaxMergeGap when positive.
	MaxMergeGap int64

	releases []func()
}

func (v *IOVector) mergeGap() int64 {
	if v.MaxMergeGap > 0 {
		return v.MaxMergeGap
	}
	return DefaultMaxMergeGap
}

func (v *IOVector) allDone() bool {
	for i := range v.Entries {
		if !v.Entries[i].done {
			return false
		}
	}
	return true
}

// Release returns all buffers the service allocated for this vector to the
// accounting pool. Entry Data slices must not be used afterwards.
func (v *IOVector) Release() {
	for _, fn := range v.releases {
		fn()
	}
	v.releases = nil
	for i := range v.Entries {
		v.Entries[i].Data = nil
		v.Entries[i].done = false
	}
}
