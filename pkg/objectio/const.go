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

// Package objectio defines the on-disk layout of stripe files and the
// writer producing them. A file is a header, a run of stripes, a meta
// section and a fixed footer:
//
//	| Header | Stripe 0 | ... | Stripe n-1 | Meta | Footer |
//
// Each stripe is a data section (per-leaf DICTIONARY then DATA streams),
// an index section (per-leaf ROW_INDEX and optional BLOOM_FILTER streams)
// and a stripe footer. All multi-byte integers are little-endian.
package objectio

const (
	// Magic opens the file: "STRIPEIO".
	Magic = "STRIPEIO"

	Version uint16 = 1

	// HeaderSize is magic + version + reserved.
	HeaderSize = 8 + 2 + 6

	// FooterSize closes the file: metaStart u32 | metaLen u32 | magic u64.
	FooterSize = 4 + 4 + 8

	// FooterMagic is "STRIPEIO" read as a little-endian u64.
	FooterMagic uint64 = 0x4f49455049525453
)

// Stream kinds within a stripe.
const (
	StreamData uint8 = iota
	StreamDictionary
	StreamRowIndex
	StreamBloomFilter
)

func StreamKindName(k uint8) string {
	switch k {
	case StreamData:
		return "DATA"
	case StreamDictionary:
		return "DICTIONARY"
	case StreamRowIndex:
		return "ROW_INDEX"
	case StreamBloomFilter:
		return "BLOOM_FILTER"
	}
	return "UNKNOWN"
}

// DefaultRowsPerGroup is the row index granularity recorded in Meta.
const DefaultRowsPerGroup = 1000

// DefaultStripeRows is the writer's stripe flush threshold.
const DefaultStripeRows = 100000
