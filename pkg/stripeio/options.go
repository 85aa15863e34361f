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

// Package stripeio is the batch reader over stripe files: lazy stream
// fetching, row-group pruning through zonemaps and bloom filters, nested
// column assembly and adaptive batch sizing.
package stripeio

import (
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

const (
	// Adaptive batch sizing: start at one row, double after every batch,
	// never exceed MaxBatchSize rows, and cap so the estimated batch bytes
	// stay under MaxReadBlockBytes.
	InitialBatchSize      = 1
	BatchSizeGrowthFactor = 2
	MaxBatchSize          = 1024

	DefaultMaxReadBlockBytes = 8 << 20
)

type ReaderOptions struct {
	// Columns projects top-level columns by name; empty means all.
	Columns []string `toml:"columns"`

	// MaxReadBlockBytes bounds the estimated decoded size of one batch.
	MaxReadBlockBytes int64 `toml:"max-read-block-bytes"`

	// MaxMergeGap is handed to the fileservice when fetching streams.
	MaxMergeGap int64 `toml:"max-merge-gap"`

	// PrefetchStripes, when positive, drives footer and stream reads of
	// upcoming stripes ahead of NextBatch on a worker pool.
	PrefetchStripes int `toml:"prefetch-stripes"`
}

func (o *ReaderOptions) FillDefaults() {
	if o.MaxReadBlockBytes == 0 {
		o.MaxReadBlockBytes = DefaultMaxReadBlockBytes
	}
}

func (o *ReaderOptions) Validate() error {
	if o.MaxReadBlockBytes < 0 {
		return moerr.NewInvalidInputNoCtx("max-read-block-bytes %d", o.MaxReadBlockBytes)
	}
	if o.MaxMergeGap < 0 {
		return moerr.NewInvalidInputNoCtx("max-merge-gap %d", o.MaxMergeGap)
	}
	if o.PrefetchStripes < 0 {
		return moerr.NewInvalidInputNoCtx("prefetch-stripes %d", o.PrefetchStripes)
	}
	return nil
}
