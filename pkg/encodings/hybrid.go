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

// The hybrid codec alternates two run kinds behind a uvarint header:
//
//	header & 1 == 0: repeated run, count = header >> 1, followed by one
//	                 value in ceil(bitWidth/8) little-endian bytes;
//	header & 1 == 1: bit-packed run, groupCount = header >> 1, followed by
//	                 groupCount groups of 8 values at bitWidth bits each.
//
// Levels and dictionary ranks both ride on it; only the bit width differs.

const hybridGroupSize = 8

func byteWidth(bitWidth int) int {
	return (bitWidth + 7) / 8
}

// BitWidth returns the number of bits needed to hold values in [0, max].
func BitWidth(max uint32) int {
	w := 0
	for max > 0 {
		w++
		max >>= 1
	}
	return w
}

type hybridEncoder struct {
	bitWidth int

	buf []byte

	// pending literal values not yet flushed into a bit-packed run
	literals []uint32

	// current repeat candidate
	repeatValue uint32
	repeatCount int
}

func newHybridEncoder(bitWidth int) *hybridEncoder {
	return &hybridEncoder{bitWidth: bitWidth}
}

func (e *hybridEncoder) put(v uint32) {
	if e.repeatCount > 0 && v == e.repeatValue {
		e.repeatCount++
		return
	}
	// a run of 8+ equal values pays for a repeated-run header
	if e.repeatCount >= hybridGroupSize {
		e.flushLiterals()
		e.flushRepeat()
	} else {
		for i := 0; i < e.repeatCount; i++ {
			e.literals = append(e.literals, e.repeatValue)
		}
	}
	e.repeatValue = v
	e.repeatCount = 1
}

func (e *hybridEncoder) finish() []byte {
	if e.repeatCount >= hybridGroupSize {
		e.flushLiterals()
		e.flushRepeat()
	} else {
		for i := 0; i < e.repeatCount; i++ {
			e.literals = append(e.literals, e.repeatValue)
		}
		e.repeatCount = 0
		e.flushLiterals()
	}
	return e.buf
}

func (e *hybridEncoder) flushRepeat() {
	if e.repeatCount == 0 {
		return
	}
	e.buf = appendUvarint(e.buf, uint64(e.repeatCount)<<1)
	v := e.repeatValue
	for i := 0; i < byteWidth(e.bitWidth); i++ {
		e.buf = append(e.buf, byte(v))
		v >>= 8
	}
	e.repeatCount = 0
}

func (e *hybridEncoder) flushLiterals() {
	if len(e.literals) == 0 {
		return
	}
	groups := (len(e.literals) + hybridGroupSize - 1) / hybridGroupSize
	e.buf = appendUvarint(e.buf, uint64(groups)<<1|1)

	var acc uint64
	accBits := 0
	total := groups * hybridGroupSize
	for i := 0; i < total; i++ {
		var v uint32
		if i < len(e.literals) {
			v = e.literals[i]
		}
		acc |= uint64(v) << accBits
		accBits += e.bitWidth
		for accBits >= 8 {
			e.buf = append(e.buf, byte(acc))
			acc >>= 8
			accBits -= 8
		}
	}
	if accBits > 0 {
		e.buf = append(e.buf, byte(acc))
	}
	e.literals = e.literals[:0]
}

type hybridDecoder struct {
	bitWidth int
	data     []byte
	off      int

	// current run
	repeated  bool
	runValue  uint32
	runLeft   int
	unpacked  []uint32
	unpackPos int
}

func newHybridDecoder(data []byte, bitWidth int) *hybridDecoder {
	return &hybridDecoder{bitWidth: bitWidth, data: data}
}

func (d *hybridDecoder) nextRun() error {
	header, off, err := readUvarint(d.data, d.off)
	if err != nil {
		return err
	}
	d.off = off
	if header&1 == 0 {
		count := int(header >> 1)
		if count == 0 {
			return moerr.NewDataCorruptedNoCtx("", "empty repeated run")
		}
		w := byteWidth(d.bitWidth)
		if d.off+w > len(d.data) {
			return moerr.NewDataCorruptedNoCtx("", "truncated repeated run")
		}
		var v uint32
		for i := w - 1; i >= 0; i-- {
			v = v<<8 | uint32(d.data[d.off+i])
		}
		d.off += w
		d.repeated = true
		d.runValue = v
		d.runLeft = count
		return nil
	}
	groups := int(header >> 1)
	if groups == 0 {
		return moerr.NewDataCorruptedNoCtx("", "empty bit-packed run")
	}
	total := groups * hybridGroupSize
	nbytes := (total*d.bitWidth + 7) / 8
	if d.off+nbytes > len(d.data) {
		return moerr.NewDataCorruptedNoCtx("", "truncated bit-packed run")
	}
	if cap(d.unpacked) < total {
		d.unpacked = make([]uint32, total)
	}
	d.unpacked = d.unpacked[:total]
	var acc uint64
	accBits := 0
	pos := d.off
	mask := uint32(1)<<d.bitWidth - 1
	for i := 0; i < total; i++ {
		for accBits < d.bitWidth {
			acc |= uint64(d.data[pos]) << accBits
			pos++
			accBits += 8
		}
		d.unpacked[i] = uint32(acc) & mask
		acc >>= d.bitWidth
		accBits -= d.bitWidth
	}
	d.off += nbytes
	d.repeated = false
	d.runLeft = total
	d.unpackPos = 0
	return nil
}

// decode fills out with the next len(out) values.
func (d *hybridDecoder) decode(out []uint32) error {
	for len(out) > 0 {
		if d.runLeft == 0 {
			if err := d.nextRun(); err != nil {
				return err
			}
		}
		n := len(out)
		if n > d.runLeft {
			n = d.runLeft
		}
		if d.repeated {
			for i := 0; i < n; i++ {
				out[i] = d.runValue
			}
		} else {
			copy(out, d.unpacked[d.unpackPos:d.unpackPos+n])
			d.unpackPos += n
		}
		d.runLeft -= n
		out = out[n:]
	}
	return nil
}

func (d *hybridDecoder) skip(n int) error {
	for n > 0 {
		if d.runLeft == 0 {
			if err := d.nextRun(); err != nil {
				return err
			}
		}
		step := n
		if step > d.runLeft {
			step = d.runLeft
		}
		if !d.repeated {
			d.unpackPos += step
		}
		d.runLeft -= step
		n -= step
	}
	return nil
}
