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

package objectio

import (
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/compress"
)

// PageHeader describes one page of a DATA stream:
//
//	uvarint valueCount | encoding u8 | uvarint repLen | uvarint defLen |
//	uvarint rawLen | uvarint bodyLen | body
//
// The body is rep ‖ def ‖ values compressed as one unit; bodyLen equal to
// rawLen marks a stored (uncompressed) body. valueCount counts level
// positions, including nulls and empty containers.
type PageHeader struct {
	ValueCount int
	Encoding   uint8
	RepLen     int
	DefLen     int
	RawLen     int
	BodyLen    int

	// HeaderLen is the encoded header size; the body starts right after.
	HeaderLen int
}

func ParsePageHeader(data []byte) (PageHeader, error) {
	var h PageHeader
	vc, off, err := readUvarintBuf(data, 0)
	if err != nil {
		return h, err
	}
	if off >= len(data) {
		return h, moerr.NewDataCorruptedNoCtx("", "page header truncated")
	}
	h.ValueCount = int(vc)
	h.Encoding = data[off]
	off++
	fields := [4]*int{&h.RepLen, &h.DefLen, &h.RawLen, &h.BodyLen}
	for _, field := range fields {
		v, next, err := readUvarintBuf(data, off)
		if err != nil {
			return h, err
		}
		*field = int(v)
		off = next
	}
	h.HeaderLen = off
	if h.RepLen+h.DefLen > h.RawLen {
		return h, moerr.NewDataCorruptedNoCtx("", "page levels exceed raw length")
	}
	return h, nil
}

// AppendPage encodes one page onto dst. rep and def are the already
// encoded level segments, values the encoded value segment.
func AppendPage(dst []byte, valueCount int, encoding uint8, rep, def, values []byte, alg uint8) ([]byte, error) {
	rawLen := len(rep) + len(def) + len(values)
	raw := make([]byte, 0, rawLen)
	raw = append(raw, rep...)
	raw = append(raw, def...)
	raw = append(raw, values...)

	body, err := compress.Compress(raw, nil, alg)
	if err != nil {
		return nil, err
	}
	dst = appendUvarintBuf(dst, uint64(valueCount))
	dst = append(dst, encoding)
	dst = appendUvarintBuf(dst, uint64(len(rep)))
	dst = appendUvarintBuf(dst, uint64(len(def)))
	dst = appendUvarintBuf(dst, uint64(rawLen))
	dst = appendUvarintBuf(dst, uint64(len(body)))
	return append(dst, body...), nil
}

// DecodePageBody expands a page body back to rep, def and value segments.
func DecodePageBody(h PageHeader, body []byte, alg uint8) (rep, def, values []byte, err error) {
	if len(body) != h.BodyLen {
		return nil, nil, nil, moerr.NewDataCorruptedNoCtx("", "page body length %d, want %d", len(body), h.BodyLen)
	}
	raw := body
	if h.BodyLen != h.RawLen {
		raw = make([]byte, h.RawLen)
		if raw, err = compress.Decompress(body, raw, alg); err != nil {
			return nil, nil, nil, err
		}
	} else if len(raw) != h.RawLen {
		return nil, nil, nil, moerr.NewDataCorruptedNoCtx("", "stored page body length %d, want %d", len(raw), h.RawLen)
	}
	rep = raw[:h.RepLen]
	def = raw[h.RepLen : h.RepLen+h.DefLen]
	values = raw[h.RepLen+h.DefLen:]
	return rep, def, values, nil
}
