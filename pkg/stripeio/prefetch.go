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
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/matrixorigin/stripeio/pkg/logutil"
)

// prefetcher runs stripe preparation (footer, pruning, stream fetch) for
// upcoming stripes on a worker pool so NextBatch finds them ready. The
// window stays at most `ahead` stripes past the one being read.
type prefetcher struct {
	r     *Reader
	ahead int
	pool  *ants.Pool

	mu      sync.Mutex
	pending map[int]*prefetchedStripe
	next    int // first stripe index not yet scheduled
	closed  bool
}

type prefetchedStripe struct {
	wg  sync.WaitGroup
	s   *stripeReader
	err error
}

func newPrefetcher(r *Reader, ahead int) (*prefetcher, error) {
	pool, err := ants.NewPool(ahead)
	if err != nil {
		return nil, err
	}
	return &prefetcher{
		r:       r,
		ahead:   ahead,
		pool:    pool,
		pending: make(map[int]*prefetchedStripe),
	}, nil
}

// schedule submits preparation of every unscheduled stripe in
// [from, from+ahead).
func (p *prefetcher) schedule(from int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.next < from {
		p.next = from
	}
	for p.next < from+p.ahead && p.next < len(p.r.meta.Stripes) {
		idx := p.next
		ps := &prefetchedStripe{}
		ps.wg.Add(1)
		if err := p.pool.Submit(func() {
			defer ps.wg.Done()
			s := newStripeReader(p.r, idx)
			if err := s.prepare(context.Background()); err != nil {
				logutil.Warnf("prefetch of stripe %d failed: %v", idx, err)
				s.close()
				ps.err = err
				return
			}
			ps.s = s
		}); err != nil {
			// pool saturated or released; the stripe will be read inline
			ps.wg.Done()
			break
		}
		p.pending[idx] = ps
		p.next++
	}
}

// take hands over the prepared stripe, blocking if preparation is still
// running. ok is false when the stripe was never scheduled.
func (p *prefetcher) take(idx int) (*stripeReader, error, bool) {
	p.mu.Lock()
	ps := p.pending[idx]
	delete(p.pending, idx)
	p.mu.Unlock()
	if ps == nil {
		return nil, nil, false
	}
	ps.wg.Wait()
	if ps.s == nil && ps.err == nil {
		return nil, nil, false
	}
	return ps.s, ps.err, true
}

// close waits out in-flight preparations and releases every stripe no one
// consumed.
func (p *prefetcher) close() {
	p.mu.Lock()
	p.closed = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ps := range pending {
		ps.wg.Wait()
		if ps.s != nil {
			ps.s.close()
		}
	}
	p.pool.Release()
}
