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
	"sort"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

// mergedRange covers one underlying read serving one or more entries.
type mergedRange struct {
	offset  int64
	size    int64 // -1 means to end of file
	entries []int
}

// mergeRanges plans the minimum set of underlying reads for the vector:
// entries are sorted by offset and coalesced whenever the gap between two
// consecutive ranges is at most maxGap. Entries carrying their own Data
// buffer still participate, they are just copied out of the merged buffer.
func mergeRanges(vector *IOVector) ([]mergedRange, error) {
	idx := make([]int, 0, len(vector.Entries))
	for i := range vector.Entries {
		entry := &vector.Entries[i]
		if entry.done {
			continue
		}
		if entry.Offset < 0 || (entry.Size < 0 && entry.Size != -1) {
			return nil, moerr.NewInvalidExtent(moerr.Context(), vector.FilePath, entry.Offset, entry.Offset+entry.Size)
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return nil, nil
	}
	sort.Slice(idx, func(a, b int) bool {
		return vector.Entries[idx[a]].Offset < vector.Entries[idx[b]].Offset
	})

	maxGap := vector.mergeGap()
	var merged []mergedRange
	for _, i := range idx {
		entry := &vector.Entries[i]
		if entry.Size == -1 {
			// open-ended ranges never merge
			merged = append(merged, mergedRange{offset: entry.Offset, size: -1, entries: []int{i}})
			continue
		}
		end := entry.Offset + entry.Size
		if n := len(merged); n > 0 && merged[n-1].size != -1 {
			last := &merged[n-1]
			lastEnd := last.offset + last.size
			if entry.Offset <= lastEnd+maxGap {
				if end > lastEnd {
					last.size = end - last.offset
				}
				last.entries = append(last.entries, i)
				continue
			}
		}
		merged = append(merged, mergedRange{offset: entry.Offset, size: entry.Size, entries: []int{i}})
	}
	return merged, nil
}

// fillEntries distributes one merged buffer to its entries. buf starts at
// m.offset.
func fillEntries(vector *IOVector, m mergedRange, buf []byte) error {
	for _, i := range m.entries {
		entry := &vector.Entries[i]
		start := entry.Offset - m.offset
		size := entry.Size
		if size == -1 {
			size = int64(len(buf)) - start
		}
		if start < 0 || start+size > int64(len(buf)) {
			return moerr.NewInvalidExtent(moerr.Context(), vector.FilePath, entry.Offset, entry.Offset+size)
		}
		if entry.Data != nil {
			copy(entry.Data, buf[start:start+size])
			entry.Data = entry.Data[:size]
		} else {
			entry.Data = buf[start : start+size : start+size]
		}
		entry.Size = size
		entry.done = true
	}
	return nil
}
