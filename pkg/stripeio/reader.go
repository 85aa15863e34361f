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
	"strings"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/common/mpool"
	"github.com/matrixorigin/stripeio/pkg/container/batch"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/fileservice"
	"github.com/matrixorigin/stripeio/pkg/logutil"
	"github.com/matrixorigin/stripeio/pkg/objectio"
)

// Reader scans one stripe file batch by batch. Stripes are visited in
// file order; inside each stripe only the row groups surviving the
// predicate are fetched and decoded. Every batch hands vector ownership
// to the caller.
type Reader struct {
	fs     fileservice.FileService
	path   string
	opts   ReaderOptions
	pred   Predicate
	mp     *mpool.MPool
	ownsMP bool

	meta   *objectio.FileMeta
	schema *objectio.Schema

	leaves     []*objectio.Node
	columns    []*objectio.Node // projected top-level columns, declared order
	attrs      []string
	projected  []uint16 // projected leaf ordinals, ascending
	statLeaves []uint16 // leaves whose checkpoints are loaded per stripe

	cur       *stripeReader
	stripeIdx int

	batchRows   int
	maxRowBytes int64

	pf     *prefetcher
	closed bool
}

// NewReader opens path, reads its meta and resolves the projection. A nil
// predicate matches everything; a nil pool makes the reader account
// against its own unbounded pool.
func NewReader(ctx context.Context, fs fileservice.FileService, path string, pred Predicate, opts ReaderOptions, mp *mpool.MPool) (*Reader, error) {
	opts.FillDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if pred == nil {
		pred = All()
	}
	r := &Reader{
		fs:        fs,
		path:      path,
		opts:      opts,
		pred:      pred,
		mp:        mp,
		batchRows: InitialBatchSize,
	}
	if r.mp == nil {
		r.mp = mpool.MustNew("stripeio-reader")
		r.ownsMP = true
	}

	meta, err := objectio.ReadMeta(ctx, fs, path)
	if err != nil {
		return nil, err
	}
	r.meta = meta
	r.schema = meta.Schema
	r.leaves = meta.Schema.Leaves()

	if err := r.resolveProjection(opts.Columns); err != nil {
		return nil, err
	}

	if opts.PrefetchStripes > 0 {
		if r.pf, err = newPrefetcher(r, opts.PrefetchStripes); err != nil {
			return nil, err
		}
		r.pf.schedule(0)
	}
	logutil.Debugf("opened %s: %d stripes, %d of %d leaves projected",
		path, len(meta.Stripes), len(r.projected), len(r.leaves))
	return r, nil
}

// resolveProjection maps the requested column names to leaf ordinals.
// Dotted names select struct sub-fields; unselected siblings come back as
// all-null placeholders. Arrays and maps are always selected whole, their
// structure cannot be rebuilt from a partial subtree.
func (r *Reader) resolveProjection(names []string) error {
	sel := make([]bool, len(r.leaves))
	if len(names) == 0 {
		for i := range sel {
			sel[i] = true
		}
	}
	for _, name := range names {
		parts := strings.Split(name, ".")
		node := r.schema.Column(parts[0])
		if node == nil {
			return moerr.NewInvalidInputNoCtx("projected column %q does not exist", parts[0])
		}
		for _, part := range parts[1:] {
			if node.Type.Oid != types.T_struct {
				return moerr.NewInvalidInputNoCtx("projection %q descends into %s %q",
					name, node.Type.String(), node.Name)
			}
			var next *objectio.Node
			for _, child := range node.Children {
				if child.Name == part {
					next = child
					break
				}
			}
			if next == nil {
				return moerr.NewInvalidInputNoCtx("projection %q: %q has no field %q", name, node.Name, part)
			}
			node = next
		}
		for ord := node.LeafStart; ord < node.LeafEnd; ord++ {
			sel[ord] = true
		}
	}

	for _, col := range r.schema.Root.Children {
		marked := 0
		for ord := col.LeafStart; ord < col.LeafEnd; ord++ {
			if sel[ord] {
				marked++
			}
		}
		if marked == 0 {
			continue
		}
		if err := checkContainerProjection(col, sel); err != nil {
			return err
		}
		r.columns = append(r.columns, col)
		r.attrs = append(r.attrs, col.Name)
	}
	if len(r.columns) == 0 {
		return moerr.NewInvalidInputNoCtx("projection selects no columns")
	}

	for ord := range sel {
		if sel[ord] {
			r.projected = append(r.projected, uint16(ord))
		}
	}

	// checkpoints are also loaded for prunable columns outside the
	// projection, so predicates can reference them
	stat := make([]bool, len(r.leaves))
	for _, ord := range r.projected {
		stat[ord] = true
	}
	for _, col := range r.schema.Root.Children {
		if col.IsLeaf() {
			stat[col.LeafStart] = true
		}
	}
	for ord := range stat {
		if stat[ord] {
			r.statLeaves = append(r.statLeaves, uint16(ord))
		}
	}
	return nil
}

// checkContainerProjection rejects projections that keep only part of an
// array or map subtree.
func checkContainerProjection(node *objectio.Node, sel []bool) error {
	marked := 0
	for ord := node.LeafStart; ord < node.LeafEnd; ord++ {
		if sel[ord] {
			marked++
		}
	}
	if marked == 0 {
		return nil
	}
	if node.Type.Oid == types.T_array || node.Type.Oid == types.T_map {
		if marked != int(node.LeafEnd-node.LeafStart) {
			return moerr.NewInvalidInputNoCtx("projection selects part of %s %q",
				node.Type.String(), node.Name)
		}
		return nil
	}
	for _, child := range node.Children {
		if err := checkContainerProjection(child, sel); err != nil {
			return err
		}
	}
	return nil
}

// statColumn resolves a predicate column to its leaf ordinal. Only
// top-level primitive columns carry checkpoint stats.
func (r *Reader) statColumn(name string) (uint16, bool) {
	node := r.schema.Column(name)
	if node == nil || !node.IsLeaf() {
		return 0, false
	}
	return node.LeafStart, true
}

// Meta exposes the parsed file meta.
func (r *Reader) Meta() *objectio.FileMeta {
	return r.meta
}

// Schema exposes the file's compiled schema.
func (r *Reader) Schema() *objectio.Schema {
	return r.schema
}

// NextBatch returns the next batch of rows, or nil at end of file. The
// caller owns the batch and releases it with Clean.
func (r *Reader) NextBatch(ctx context.Context) (*batch.Batch, error) {
	if r.closed {
		return nil, moerr.NewInvalidStateNoCtx("reader of %s is closed", r.path)
	}
	for {
		if r.cur == nil {
			if r.stripeIdx >= len(r.meta.Stripes) {
				return nil, nil
			}
			s, err := r.openStripe(ctx, r.stripeIdx)
			r.stripeIdx++
			if err != nil {
				return nil, err
			}
			if r.pf != nil {
				r.pf.schedule(r.stripeIdx)
			}
			if s.state == stripeExhausted || !s.advance() {
				s.close()
				continue
			}
			r.cur = s
		}
		if r.cur.groupRows == 0 && !r.cur.advance() {
			r.cur.close()
			r.cur = nil
			continue
		}

		vecs, rows, err := r.cur.readBatch(r.batchRows)
		if err != nil {
			return nil, err
		}
		bat := batch.New(r.attrs)
		for i, vec := range vecs {
			bat.SetVector(i, vec)
		}
		bat.SetRowCount(rows)
		r.adapt(bat.Size(), rows)
		return bat, nil
	}
}

// BatchRows returns the row count the next batch aims for.
func (r *Reader) BatchRows() int {
	return r.batchRows
}

// adapt doubles the batch size after every batch, capped by MaxBatchSize
// and by the row count that keeps the estimated decoded bytes under
// MaxReadBlockBytes, using the densest row seen so far as the estimate.
func (r *Reader) adapt(batchBytes, rows int) {
	if rows > 0 {
		if per := int64(batchBytes / rows); per > r.maxRowBytes {
			r.maxRowBytes = per
		}
	}
	next := r.batchRows * BatchSizeGrowthFactor
	if next > MaxBatchSize {
		next = MaxBatchSize
	}
	if r.maxRowBytes > 0 {
		if limit := int(r.opts.MaxReadBlockBytes / r.maxRowBytes); next > limit {
			next = limit
		}
	}
	if next < 1 {
		next = 1
	}
	r.batchRows = next
}

func (r *Reader) openStripe(ctx context.Context, idx int) (*stripeReader, error) {
	if r.pf != nil {
		if s, err, ok := r.pf.take(idx); ok {
			return s, err
		}
	}
	s := newStripeReader(r, idx)
	if err := s.prepare(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// Close releases the open stripe and the prefetcher. Batches already
// handed out stay valid; their memory is released by Clean.
func (r *Reader) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.cur != nil {
		r.cur.close()
		r.cur = nil
	}
	if r.pf != nil {
		r.pf.close()
	}
	if r.ownsMP {
		r.mp.Close()
	}
}
