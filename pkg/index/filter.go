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

package index

import (
	"strconv"

	"github.com/FastFilter/xorfilter"
	"github.com/cespare/xxhash/v2"
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/samber/lo"
)

const fuseFilterError = "too many iterations, you probably have duplicate keys"

// StaticFilter is the membership summary of one column within one stripe.
// It is built once at write time and never updated.
type StaticFilter interface {
	MayContainsKey(key []byte) (bool, error)
	Marshal() ([]byte, error)
	Unmarshal(buf []byte) error
	String() string
}

func hashV1(v []byte) uint64 {
	return xxhash.Sum64(v)
}

type bloomFilter struct {
	xorfilter.BinaryFuse8
}

func NewEmptyBloomFilter() StaticFilter {
	return &bloomFilter{}
}

// NewBloomFilter builds a fuse filter over the raw key bytes of one column.
func NewBloomFilter(keys [][]byte) (StaticFilter, error) {
	hashes := make([]uint64, 0, len(keys))
	for _, key := range keys {
		hashes = append(hashes, hashV1(key))
	}
	return buildFuseFilter(hashes)
}

func buildFuseFilter(hashes []uint64) (*bloomFilter, error) {
	inner, err := xorfilter.PopulateBinaryFuse8(hashes)
	if err != nil {
		if err.Error() != fuseFilterError {
			return nil, err
		}
		// too many duplicate keys, retry on the distinct set
		hashes = lo.Uniq(hashes)
		if inner, err = xorfilter.PopulateBinaryFuse8(hashes); err != nil {
			return nil, err
		}
	}
	sf := &bloomFilter{}
	sf.BinaryFuse8 = *inner
	return sf, nil
}

func (filter *bloomFilter) MayContainsKey(key []byte) (bool, error) {
	if len(filter.Fingerprints) == 0 {
		return false, moerr.NewInvalidStateNoCtx("bloom filter not populated")
	}
	return filter.Contains(hashV1(key)), nil
}

func (filter *bloomFilter) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 24+len(filter.Fingerprints))
	buf = append(buf, types.EncodeUint64(&filter.Seed)...)
	buf = append(buf, types.EncodeUint32(&filter.SegmentLength)...)
	buf = append(buf, types.EncodeUint32(&filter.SegmentLengthMask)...)
	buf = append(buf, types.EncodeUint32(&filter.SegmentCount)...)
	buf = append(buf, types.EncodeUint32(&filter.SegmentCountLength)...)
	buf = append(buf, filter.Fingerprints...)
	return buf, nil
}

func (filter *bloomFilter) Unmarshal(buf []byte) error {
	if len(buf) < 24 {
		return moerr.NewDataCorruptedNoCtx("", "bloom filter length %d", len(buf))
	}
	filter.Seed = types.DecodeUint64(buf[:8])
	buf = buf[8:]
	filter.SegmentLength = types.DecodeUint32(buf[:4])
	buf = buf[4:]
	filter.SegmentLengthMask = types.DecodeUint32(buf[:4])
	buf = buf[4:]
	filter.SegmentCount = types.DecodeUint32(buf[:4])
	buf = buf[4:]
	filter.SegmentCountLength = types.DecodeUint32(buf[:4])
	buf = buf[4:]
	filter.Fingerprints = append([]byte(nil), buf...)
	return nil
}

func (filter *bloomFilter) String() string {
	s := "<BF>\n"
	s += strconv.Itoa(int(filter.SegmentCount))
	s += "\n"
	s += strconv.Itoa(int(filter.SegmentLength))
	s += "\n"
	s += strconv.Itoa(len(filter.Fingerprints))
	s += "\n"
	s += "</BF>"
	return s
}
