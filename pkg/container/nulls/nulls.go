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

// Package nulls wraps the roaring bitmap library into the null-indicator
// channel of a column vector. A nil *Nulls or a nil inner bitmap both mean
// "no nulls".
package nulls

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
)

type Nulls struct {
	Np *roaring64.Bitmap
}

func NewWithSize(size int) *Nulls {
	_ = size
	return &Nulls{Np: roaring64.New()}
}

func Build(size int, rows ...uint64) *Nulls {
	nsp := NewWithSize(size)
	nsp.Np.AddMany(rows)
	return nsp
}

func (nsp *Nulls) Clone() *Nulls {
	if nsp == nil {
		return nil
	}
	if nsp.Np == nil {
		return &Nulls{}
	}
	return &Nulls{Np: nsp.Np.Clone()}
}

func (nsp *Nulls) Add(rows ...uint64) {
	if nsp.Np == nil {
		nsp.Np = roaring64.New()
	}
	nsp.Np.AddMany(rows)
}

func (nsp *Nulls) Contains(row uint64) bool {
	return nsp != nil && nsp.Np != nil && nsp.Np.Contains(row)
}

// Any reports whether at least one row is null.
func Any(nsp *Nulls) bool {
	return nsp != nil && nsp.Np != nil && !nsp.Np.IsEmpty()
}

// Length returns the number of null rows.
func Length(nsp *Nulls) int {
	if nsp == nil || nsp.Np == nil {
		return 0
	}
	return int(nsp.Np.GetCardinality())
}

// Or unions nsp and m into r.
func Or(nsp, m, r *Nulls) {
	if !Any(nsp) && !Any(m) {
		r.Np = nil
		return
	}
	r.Np = roaring64.New()
	if Any(nsp) {
		r.Np.Or(nsp.Np)
	}
	if Any(m) {
		r.Np.Or(m.Np)
	}
}

// Range adds the nulls of [start, end) in nsp, shifted by bias, into r.
func Range(nsp *Nulls, start, end, bias uint64, r *Nulls) {
	if !Any(nsp) {
		return
	}
	it := nsp.Np.Iterator()
	it.AdvanceIfNeeded(start)
	for it.HasNext() {
		row := it.Next()
		if row >= end {
			break
		}
		r.Add(row - bias)
	}
}

func String(nsp *Nulls) string {
	if nsp == nil || nsp.Np == nil {
		return "[]"
	}
	return fmt.Sprintf("%v", nsp.Np.ToArray())
}
