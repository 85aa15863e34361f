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

// Package batch groups the per-column vectors produced by one NextBatch
// call. Columns are aligned by row position.
package batch

import (
	"github.com/matrixorigin/stripeio/pkg/container/vector"
)

type Batch struct {
	Attrs []string
	Vecs  []*vector.Vector
	rows  int
}

func New(attrs []string) *Batch {
	return &Batch{
		Attrs: attrs,
		Vecs:  make([]*vector.Vector, len(attrs)),
	}
}

func (bat *Batch) SetVector(i int, vec *vector.Vector) {
	bat.Vecs[i] = vec
}

func (bat *Batch) GetVector(i int) *vector.Vector {
	return bat.Vecs[i]
}

// Attr returns the vector of the named column, or nil.
func (bat *Batch) Attr(name string) *vector.Vector {
	for i, attr := range bat.Attrs {
		if attr == name {
			return bat.Vecs[i]
		}
	}
	return nil
}

func (bat *Batch) SetRowCount(rows int) {
	bat.rows = rows
}

func (bat *Batch) RowCount() int {
	return bat.rows
}

func (bat *Batch) Size() int {
	var sz int
	for _, vec := range bat.Vecs {
		if vec != nil {
			sz += vec.Size()
		}
	}
	return sz
}

// Clean closes every vector in the batch.
func (bat *Batch) Clean() {
	for _, vec := range bat.Vecs {
		if vec != nil {
			vec.Close()
		}
	}
	bat.Vecs = nil
	bat.rows = 0
}
