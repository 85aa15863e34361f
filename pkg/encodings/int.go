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

package encodings

import (
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
)

// EncodeIntRle encodes integers as alternating runs: header uvarint with
// the kind in the low bit, repeated runs carry one zigzag value, literal
// runs carry count zigzag values.
func EncodeIntRle(values []int64) []byte {
	var buf []byte
	var literals []int64
	flushLiterals := func() {
		if len(literals) == 0 {
			return
		}
		buf = appendUvarint(buf, uint64(len(literals))<<1|1)
		for _, v := range literals {
			buf = appendUvarint(buf, zigzagEncode(v))
		}
		literals = literals[:0]
	}

	i := 0
	for i < len(values) {
		j := i + 1
		for j < len(values) && values[j] == values[i] {
			j++
		}
		if run := j - i; run >= 3 {
			flushLiterals()
			buf = appendUvarint(buf, uint64(run)<<1)
			buf = appendUvarint(buf, zigzagEncode(values[i]))
		} else {
			literals = append(literals, values[i:j]...)
		}
		i = j
	}
	flushLiterals()
	return buf
}

// EncodeIntDelta stores the first value then zigzag deltas.
func EncodeIntDelta(values []int64) []byte {
	if len(values) == 0 {
		return nil
	}
	buf := appendUvarint(nil, zigzagEncode(values[0]))
	for i := 1; i < len(values); i++ {
		buf = appendUvarint(buf, zigzagEncode(values[i]-values[i-1]))
	}
	return buf
}

// IntDecoder decodes rle or delta streams into int64. The caller narrows to
// the physical width afterwards.
type IntDecoder struct {
	encoding uint8
	data     []byte
	off      int

	// rle run state
	runValue int64
	runLeft  int
	literal  bool
	litLeft  int

	// delta state
	started bool
	prev    int64
}

func NewIntDecoder(encoding uint8, data []byte) (*IntDecoder, error) {
	switch encoding {
	case Rle, Delta:
	default:
		return nil, moerr.NewNotSupportedNoCtx("int decoder encoding %s", EncodingName(encoding))
	}
	return &IntDecoder{encoding: encoding, data: data}, nil
}

func (d *IntDecoder) Decode(out []int64) error {
	if d.encoding == Delta {
		return d.decodeDelta(out)
	}
	return d.decodeRle(out)
}

func (d *IntDecoder) Skip(n int) error {
	// both encodings are cheap to scan, skip decodes into a scratch window
	var scratch [64]int64
	for n > 0 {
		step := n
		if step > len(scratch) {
			step = len(scratch)
		}
		if err := d.Decode(scratch[:step]); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

func (d *IntDecoder) decodeDelta(out []int64) error {
	for i := range out {
		u, off, err := readUvarint(d.data, d.off)
		if err != nil {
			return err
		}
		d.off = off
		v := zigzagDecode(u)
		if d.started {
			v += d.prev
		}
		d.started = true
		d.prev = v
		out[i] = v
	}
	return nil
}

func (d *IntDecoder) decodeRle(out []int64) error {
	for len(out) > 0 {
		if d.runLeft == 0 && d.litLeft == 0 {
			header, off, err := readUvarint(d.data, d.off)
			if err != nil {
				return err
			}
			d.off = off
			if header&1 == 0 {
				count := int(header >> 1)
				u, off, err := readUvarint(d.data, d.off)
				if err != nil {
					return err
				}
				d.off = off
				d.runValue = zigzagDecode(u)
				d.runLeft = count
				d.literal = false
			} else {
				d.litLeft = int(header >> 1)
				d.literal = true
			}
			if d.runLeft == 0 && d.litLeft == 0 {
				return moerr.NewDataCorruptedNoCtx("", "empty rle run")
			}
		}
		if d.literal {
			for d.litLeft > 0 && len(out) > 0 {
				u, off, err := readUvarint(d.data, d.off)
				if err != nil {
					return err
				}
				d.off = off
				out[0] = zigzagDecode(u)
				out = out[1:]
				d.litLeft--
			}
		} else {
			n := len(out)
			if n > d.runLeft {
				n = d.runLeft
			}
			for i := 0; i < n; i++ {
				out[i] = d.runValue
			}
			d.runLeft -= n
			out = out[n:]
		}
	}
	return nil
}
