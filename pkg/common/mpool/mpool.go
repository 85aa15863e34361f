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

// Package mpool implements hierarchical memory accounting. Every buffer the
// reader retains (fetched ranges, decoded pages, output vectors) is charged
// against an MPool. Pools form a tree: a stripe pool is a child of the reader
// pool, page pools are children of the stripe pool. Closing a pool returns
// any residual charge to its parent, so accounted bytes cannot leak as long
// as every opened pool is eventually closed.
package mpool

import (
	"sync/atomic"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/logutil"
	"go.uber.org/zap"
)

// NoFixed means no cap: the pool only tracks usage.
const NoFixed int64 = 0

type MPool struct {
	name   string
	cap    int64 // 0 means unlimited
	parent *MPool

	currNB    atomic.Int64
	highWater atomic.Int64
	closed    atomic.Bool
}

// NewMPool creates a root pool. A cap of NoFixed means track-only.
func NewMPool(name string, cap int64) (*MPool, error) {
	if cap < 0 {
		return nil, moerr.NewInvalidInputNoCtx("mpool %s: negative cap %d", name, cap)
	}
	return &MPool{name: name, cap: cap}, nil
}

// MustNew is NewMPool for static configuration that cannot fail.
func MustNew(name string) *MPool {
	m, err := NewMPool(name, NoFixed)
	if err != nil {
		panic(err)
	}
	return m
}

// NewChild creates a nested accounting scope. Charges propagate to every
// ancestor, and each level enforces its own cap.
func (m *MPool) NewChild(name string, cap int64) *MPool {
	return &MPool{name: name, cap: cap, parent: m}
}

func (m *MPool) Name() string {
	return m.name
}

// CurrNB returns the bytes currently accounted to this pool, including the
// charges of its live children.
func (m *MPool) CurrNB() int64 {
	return m.currNB.Load()
}

// HighWaterMark returns the largest value CurrNB has reached.
func (m *MPool) HighWaterMark() int64 {
	return m.highWater.Load()
}

// Acquire charges sz bytes to the pool and all its ancestors. It fails with
// an OOM error when any level would exceed its cap, leaving all counters
// unchanged.
func (m *MPool) Acquire(sz int64) error {
	if sz < 0 {
		return moerr.NewInvalidInputNoCtx("mpool %s: negative acquire %d", m.name, sz)
	}
	for p := m; p != nil; p = p.parent {
		nb := p.currNB.Add(sz)
		if p.cap != NoFixed && nb > p.cap {
			// undo the charges made so far, this level included
			for q := m; ; q = q.parent {
				q.currNB.Add(-sz)
				if q == p {
					break
				}
			}
			return moerr.NewOOM(moerr.Context())
		}
		for {
			hw := p.highWater.Load()
			if nb <= hw || p.highWater.CompareAndSwap(hw, nb) {
				break
			}
		}
	}
	return nil
}

// Release returns sz bytes to the pool and all its ancestors.
func (m *MPool) Release(sz int64) {
	if sz <= 0 {
		return
	}
	for p := m; p != nil; p = p.parent {
		p.currNB.Add(-sz)
	}
}

// Alloc charges and returns a zeroed buffer of sz bytes.
func (m *MPool) Alloc(sz int) ([]byte, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidInputNoCtx("mpool %s: negative alloc %d", m.name, sz)
	}
	if sz == 0 {
		return nil, nil
	}
	if err := m.Acquire(int64(sz)); err != nil {
		return nil, err
	}
	return make([]byte, sz), nil
}

// Free releases the accounting of a buffer obtained from Alloc.
func (m *MPool) Free(buf []byte) {
	if buf == nil {
		return
	}
	m.Release(int64(cap(buf)))
}

// Close releases whatever the pool still accounts for and detaches it from
// its parent. Closing twice is a no-op. A non-zero residue means some buffer
// was not freed; it is logged and returned to the parent anyway so ancestors
// stay balanced.
func (m *MPool) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	residue := m.currNB.Swap(0)
	if residue != 0 {
		logutil.Debug("mpool closed with residue",
			zap.String("pool", m.name),
			zap.Int64("bytes", residue))
	}
	if m.parent != nil && residue > 0 {
		m.parent.Release(residue)
	}
}
