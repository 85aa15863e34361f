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

// Package index holds the per-row-group pruning structures: the 64-byte
// zonemap and the fuse bloom filter. Both answer conservatively: a "maybe"
// never loses rows, only a definite "no" skips a group.
package index

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/container/types"
)

const (
	ZMSize = 64

	// fixed 64-byte layout:
	// [0..29]  min value (or prefix)
	// [30]     min length
	// [31..60] max value (or prefix)
	// [61]     max length
	// [62]     flags
	// [63]     type
	zmMaxValueLen = 30

	zmInited       = 0x01
	zmMaxTruncated = 0x02
)

// ZM is a fixed-size min/max summary of one column within one row group.
// Values are stored in the comparable byte encoding of the column type;
// varlen values longer than 30 bytes keep a prefix, with the max side
// flagged truncated so upper-bound checks stay conservative.
type ZM []byte

func NewZM(t types.T) ZM {
	zm := ZM(make([]byte, ZMSize))
	zm[63] = byte(t)
	return zm
}

func BuildZM(t types.T, v []byte) ZM {
	zm := NewZM(t)
	zm.Update(v)
	return zm
}

func (zm ZM) GetType() types.T {
	return types.T(zm[63])
}

func (zm ZM) IsInited() bool {
	return zm[62]&zmInited != 0
}

func (zm ZM) MaxTruncated() bool {
	return zm[62]&zmMaxTruncated != 0
}

func (zm ZM) Valid() bool {
	return len(zm) == ZMSize && zm.IsInited()
}

func (zm ZM) GetMinBuf() []byte {
	return zm[0:zm[30]]
}

func (zm ZM) GetMaxBuf() []byte {
	return zm[31 : 31+int(zm[61])]
}

// Update widens the zonemap to cover v.
func (zm ZM) Update(v []byte) {
	if !zm.IsInited() {
		zm.setMin(v)
		zm.setMax(v)
		zm[62] |= zmInited
		return
	}
	t := zm.GetType()
	if zm.compareMin(t, v) < 0 {
		zm.setMin(v)
	}
	if zm.compareMax(t, v) > 0 {
		zm.setMax(v)
	}
}

// compareMin reports the ordering of v against the stored min. A truncated
// min is a prefix of the true min, hence never greater than it; keeping the
// prefix only widens the range downward.
func (zm ZM) compareMin(t types.T, v []byte) int {
	return t.Compare(v, zm.GetMinBuf())
}

func (zm ZM) compareMax(t types.T, v []byte) int {
	return t.Compare(v, zm.GetMaxBuf())
}

func (zm ZM) setMin(v []byte) {
	if len(v) > zmMaxValueLen {
		v = v[:zmMaxValueLen]
	}
	copy(zm[0:], v)
	zm[30] = byte(len(v))
}

func (zm ZM) setMax(v []byte) {
	if len(v) > zmMaxValueLen {
		v = v[:zmMaxValueLen]
		zm[62] |= zmMaxTruncated
	}
	copy(zm[31:], v)
	zm[61] = byte(len(v))
}

// ContainsKey reports whether v may fall inside [min, max]. An uninited
// zonemap covers nothing.
func (zm ZM) ContainsKey(v []byte) bool {
	if !zm.IsInited() {
		return false
	}
	t := zm.GetType()
	if zm.compareMin(t, v) < 0 {
		return false
	}
	if zm.MaxTruncated() {
		return true
	}
	return zm.compareMax(t, v) <= 0
}

// AnyGE reports whether some value in the range may be >= v.
func (zm ZM) AnyGE(v []byte) bool {
	if !zm.IsInited() {
		return false
	}
	if zm.MaxTruncated() {
		return true
	}
	return zm.compareMax(zm.GetType(), v) <= 0
}

// AnyLE reports whether some value in the range may be <= v.
func (zm ZM) AnyLE(v []byte) bool {
	if !zm.IsInited() {
		return false
	}
	return zm.compareMin(zm.GetType(), v) >= 0
}

// AnyBetween reports whether [min, max] intersects [lo, hi].
func (zm ZM) AnyBetween(lo, hi []byte) bool {
	return zm.AnyGE(lo) && zm.AnyLE(hi)
}

// Merge widens zm to also cover everything o covers. Both sides must carry
// the same type.
func (zm ZM) Merge(o ZM) error {
	if zm.GetType() != o.GetType() {
		return moerr.NewInternalErrorNoCtx(
			"zonemap type mismatch: %s vs %s", zm.GetType(), o.GetType())
	}
	if !o.IsInited() {
		return nil
	}
	if !zm.IsInited() {
		copy(zm[:], o[:])
		return nil
	}
	t := zm.GetType()
	if zm.compareMin(t, o.GetMinBuf()) < 0 {
		zm.setMin(o.GetMinBuf())
	}
	if o.MaxTruncated() {
		zm[62] |= zmMaxTruncated
		copy(zm[31:], o[31:62])
	} else if zm.compareMax(t, o.GetMaxBuf()) > 0 {
		zm.setMax(o.GetMaxBuf())
	}
	return nil
}

func (zm ZM) Clone() ZM {
	cloned := make(ZM, ZMSize)
	copy(cloned, zm)
	return cloned
}

func (zm ZM) String() string {
	display := func(b []byte) string {
		for _, c := range b {
			if !strconv.IsPrint(rune(c)) {
				return hex.EncodeToString(b)
			}
		}
		return string(b)
	}
	s := fmt.Sprintf("ZM(%s)[%s,%s]",
		zm.GetType(), display(zm.GetMinBuf()), display(zm.GetMaxBuf()))
	if zm.MaxTruncated() {
		s += "+"
	}
	if !zm.IsInited() {
		s += "--"
	}
	return s
}

// DecodeZM validates raw bytes from a row index entry.
func DecodeZM(buf []byte) (ZM, error) {
	if len(buf) != ZMSize {
		return nil, moerr.NewDataCorruptedNoCtx("", "zonemap length %d", len(buf))
	}
	return ZM(buf), nil
}
