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

package types

import (
	"golang.org/x/exp/constraints"
)

type T uint8

const (
	T_any T = iota

	// fixed-width primitives
	T_bool
	T_int32
	T_int64
	T_float32
	T_float64
	T_decimal64
	T_decimal128
	T_timestamp

	// variable-length primitives
	T_char
	T_varchar

	// composites; never stored as leaf streams
	T_array
	T_map
	T_struct
)

// Type is the physical type descriptor carried by every column and vector.
type Type struct {
	Oid   T
	Size  int32 // fixed width in bytes, 0 for varlen and composites
	Width int32
	Scale int32
}

type Decimal64 int64

type Decimal128 struct {
	B0_63   uint64
	B64_127 uint64
}

// Timestamp is microseconds since the Unix epoch, UTC.
type Timestamp int64

type FixedSizeT interface {
	bool | int32 | int64 | float32 | float64 |
		Decimal64 | Decimal128 | Timestamp
}

type OrderedT interface {
	constraints.Integer | constraints.Float
}

func New(oid T, width, scale int32) Type {
	return Type{Oid: oid, Size: oid.FixedSize(), Width: width, Scale: scale}
}

func (t T) ToType() Type {
	return New(t, 0, 0)
}

func (t T) FixedSize() int32 {
	switch t {
	case T_bool:
		return 1
	case T_int32, T_float32:
		return 4
	case T_int64, T_float64, T_decimal64, T_timestamp:
		return 8
	case T_decimal128:
		return 16
	default:
		return 0
	}
}

// IsFixedLen reports whether values of the type occupy a constant number of
// bytes in a vector's data area.
func (t T) IsFixedLen() bool {
	return t.FixedSize() > 0
}

func (t T) IsVarlen() bool {
	return t == T_char || t == T_varchar
}

func (t T) IsComposite() bool {
	return t == T_array || t == T_map || t == T_struct
}

func (t Type) IsFixedLen() bool {
	return t.Oid.IsFixedLen()
}

func (t Type) IsVarlen() bool {
	return t.Oid.IsVarlen()
}

func (t Type) IsComposite() bool {
	return t.Oid.IsComposite()
}

func (t T) String() string {
	switch t {
	case T_any:
		return "ANY"
	case T_bool:
		return "BOOL"
	case T_int32:
		return "INT32"
	case T_int64:
		return "INT64"
	case T_float32:
		return "FLOAT32"
	case T_float64:
		return "FLOAT64"
	case T_decimal64:
		return "DECIMAL64"
	case T_decimal128:
		return "DECIMAL128"
	case T_timestamp:
		return "TIMESTAMP"
	case T_char:
		return "CHAR"
	case T_varchar:
		return "VARCHAR"
	case T_array:
		return "ARRAY"
	case T_map:
		return "MAP"
	case T_struct:
		return "STRUCT"
	}
	return "UNKNOWN"
}

func (t Type) String() string {
	return t.Oid.String()
}

// Compare orders two encoded values of the type. Varlen values compare as
// raw bytes.
func (t T) Compare(a, b []byte) int {
	switch t {
	case T_bool:
		x, y := int8(0), int8(0)
		if a[0] != 0 {
			x = 1
		}
		if b[0] != 0 {
			y = 1
		}
		return int(x - y)
	case T_int32:
		return compareOrdered(DecodeFixed[int32](a), DecodeFixed[int32](b))
	case T_int64:
		return compareOrdered(DecodeFixed[int64](a), DecodeFixed[int64](b))
	case T_float32:
		return compareOrdered(DecodeFixed[float32](a), DecodeFixed[float32](b))
	case T_float64:
		return compareOrdered(DecodeFixed[float64](a), DecodeFixed[float64](b))
	case T_decimal64:
		return compareOrdered(int64(DecodeFixed[Decimal64](a)), int64(DecodeFixed[Decimal64](b)))
	case T_timestamp:
		return compareOrdered(int64(DecodeFixed[Timestamp](a)), int64(DecodeFixed[Timestamp](b)))
	case T_decimal128:
		x := DecodeFixed[Decimal128](a)
		y := DecodeFixed[Decimal128](b)
		return x.Compare(y)
	default:
		return compareBytes(a, b)
	}
}

func (d Decimal128) Compare(o Decimal128) int {
	// B64_127 holds the signed high limb
	hi, ohi := int64(d.B64_127), int64(o.B64_127)
	if hi != ohi {
		if hi < ohi {
			return -1
		}
		return 1
	}
	if d.B0_63 != o.B0_63 {
		if d.B0_63 < o.B0_63 {
			return -1
		}
		return 1
	}
	return 0
}

func compareOrdered[T OrderedT](a, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
