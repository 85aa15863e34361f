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

// Package vector implements the typed, nullable column vector handed out by
// the reader. Fixed-width values live in data and are reinterpreted through
// types.DecodeSlice; varlen values live in area addressed by per-row
// offset/length pairs; composite vectors carry child vectors plus container
// offsets. Ownership of a vector transfers to the caller on every batch; the
// reader never retains one.
package vector

import (
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/common/mpool"
	"github.com/matrixorigin/stripeio/pkg/container/nulls"
	"github.com/matrixorigin/stripeio/pkg/container/types"
)

type class uint8

const (
	classFixed class = iota
	classVarlen
	classComposite
)

type Vector struct {
	typ   types.Type
	class class

	data []byte // fixed-width values

	area  []byte // varlen bytes
	voffs []uint32
	vlens []uint32

	// composite layout: array has one child, map has key and value children
	// sharing offsets, struct has one child per field and no offsets
	offsets  []uint32
	children []*Vector

	nsp    *nulls.Nulls
	length int

	mp        *mpool.MPool
	accounted int64
}

func New(typ types.Type, mp *mpool.MPool) *Vector {
	vec := &Vector{typ: typ, mp: mp}
	switch {
	case typ.IsComposite():
		vec.class = classComposite
	case typ.IsVarlen():
		vec.class = classVarlen
	default:
		vec.class = classFixed
	}
	return vec
}

// NewConstNull builds an all-null vector of the given length. Used as the
// placeholder for struct fields absent from the projection.
func NewConstNull(typ types.Type, length int, mp *mpool.MPool) *Vector {
	vec := New(typ, mp)
	vec.nsp = nulls.NewWithSize(length)
	for i := 0; i < length; i++ {
		vec.nsp.Add(uint64(i))
	}
	if vec.class == classFixed {
		vec.data = make([]byte, length*int(typ.Size))
	} else if vec.class == classVarlen {
		vec.voffs = make([]uint32, length)
		vec.vlens = make([]uint32, length)
	}
	vec.length = length
	return vec
}

func (vec *Vector) GetType() types.Type   { return vec.typ }
func (vec *Vector) Length() int           { return vec.length }
func (vec *Vector) SetLength(n int)       { vec.length = n }
func (vec *Vector) GetNulls() *nulls.Nulls {
	if vec.nsp == nil {
		vec.nsp = &nulls.Nulls{}
	}
	return vec.nsp
}

func (vec *Vector) SetNulls(nsp *nulls.Nulls) { vec.nsp = nsp }

func (vec *Vector) IsNull(i int) bool {
	return vec.nsp.Contains(uint64(i))
}

func (vec *Vector) HasNull() bool {
	return nulls.Any(vec.nsp)
}

// Data exposes the raw fixed-width value bytes.
func (vec *Vector) Data() []byte { return vec.data }

// Offsets exposes the container offsets of an array or map vector. Its
// length is Length()+1.
func (vec *Vector) Offsets() []uint32 { return vec.offsets }

func (vec *Vector) SetOffsets(offs []uint32) { vec.offsets = offs }

func (vec *Vector) Children() []*Vector { return vec.children }

func (vec *Vector) SetChildren(children ...*Vector) { vec.children = children }

// Size returns the decoded payload bytes, the quantity the adaptive batch
// sizing tracks.
func (vec *Vector) Size() int {
	sz := len(vec.data) + len(vec.area) + 8*len(vec.voffs) + 4*len(vec.offsets)
	for _, child := range vec.children {
		sz += child.Size()
	}
	return sz
}

// AppendFixed appends one fixed-width value. A null appends a zero slot so
// positions stay aligned.
func AppendFixed[T types.FixedSizeT](vec *Vector, v T, isNull bool) error {
	if vec.class != classFixed {
		return moerr.NewInternalErrorNoCtx("append fixed to %s vector", vec.typ.String())
	}
	if isNull {
		vec.GetNulls().Add(uint64(vec.length))
		var zero T
		v = zero
	}
	buf := types.EncodeFixed(v)
	if err := vec.grow(len(buf)); err != nil {
		return err
	}
	vec.data = append(vec.data, buf...)
	vec.length++
	return nil
}

// AppendBytes appends one varlen value.
func AppendBytes(vec *Vector, v []byte, isNull bool) error {
	if vec.class != classVarlen {
		return moerr.NewInternalErrorNoCtx("append bytes to %s vector", vec.typ.String())
	}
	if isNull {
		vec.GetNulls().Add(uint64(vec.length))
		v = nil
	}
	if err := vec.grow(len(v)); err != nil {
		return err
	}
	vec.voffs = append(vec.voffs, uint32(len(vec.area)))
	vec.vlens = append(vec.vlens, uint32(len(v)))
	vec.area = append(vec.area, v...)
	vec.length++
	return nil
}

// AppendRawFixed appends one fixed-width value given its raw little-endian
// encoding. A null appends a zero slot of the type's width.
func AppendRawFixed(vec *Vector, v []byte, isNull bool) error {
	if vec.class != classFixed {
		return moerr.NewInternalErrorNoCtx("append fixed to %s vector", vec.typ.String())
	}
	width := int(vec.typ.Size)
	if isNull {
		vec.GetNulls().Add(uint64(vec.length))
		if err := vec.grow(width); err != nil {
			return err
		}
		for i := 0; i < width; i++ {
			vec.data = append(vec.data, 0)
		}
		vec.length++
		return nil
	}
	if len(v) != width {
		return moerr.NewInternalErrorNoCtx("append %d bytes to %s vector", len(v), vec.typ.String())
	}
	if err := vec.grow(width); err != nil {
		return err
	}
	vec.data = append(vec.data, v...)
	vec.length++
	return nil
}

// MustFixedCol reinterprets the data area as a typed slice. The caller must
// consult the null bitmap; null slots hold zero values.
func MustFixedCol[T types.FixedSizeT](vec *Vector) []T {
	return types.DecodeSlice[T](vec.data)
}

// GetBytesAt returns the i-th varlen value. Null rows return nil.
func (vec *Vector) GetBytesAt(i int) []byte {
	if vec.IsNull(i) {
		return nil
	}
	off := vec.voffs[i]
	return vec.area[off : off+vec.vlens[i]]
}

// GetStringAt returns the i-th varlen value as a string.
func (vec *Vector) GetStringAt(i int) string {
	return string(vec.GetBytesAt(i))
}

// GetRawBytesAt is GetBytesAt without the null check, for stats collection.
func (vec *Vector) GetRawBytesAt(i int) []byte {
	off := vec.voffs[i]
	return vec.area[off : off+vec.vlens[i]]
}

func (vec *Vector) grow(n int) error {
	if vec.mp == nil || n <= 0 {
		return nil
	}
	if err := vec.mp.Acquire(int64(n)); err != nil {
		return err
	}
	vec.accounted += int64(n)
	return nil
}

// Close releases the memory accounted to the vector. The slices themselves
// are left for the garbage collector.
func (vec *Vector) Close() {
	if vec.mp != nil && vec.accounted > 0 {
		vec.mp.Release(vec.accounted)
		vec.accounted = 0
	}
	for _, child := range vec.children {
		child.Close()
	}
}
