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
	"context"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/fileservice"
)

// ReadMeta fetches and parses the file meta: one read for header and
// footer, one for the meta section they locate.
func ReadMeta(ctx context.Context, fs fileservice.FileService, path string) (*FileMeta, error) {
	entry, err := fs.StatFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if entry.Size < HeaderSize+FooterSize {
		return nil, moerr.NewDataCorruptedNoCtx(path, "file of %d bytes", entry.Size)
	}
	vec := fileservice.IOVector{
		FilePath: path,
		Entries: []fileservice.IOEntry{
			{Offset: 0, Size: HeaderSize},
			{Offset: entry.Size - FooterSize, Size: FooterSize},
		},
	}
	if err := fs.Read(ctx, &vec); err != nil {
		return nil, err
	}
	if err := CheckHeader(vec.Entries[0].Data, path); err != nil {
		return nil, err
	}
	metaStart, metaLen, err := ParseFooter(vec.Entries[1].Data, path)
	if err != nil {
		return nil, err
	}
	if int64(metaStart)+int64(metaLen) > entry.Size {
		return nil, moerr.NewDataCorruptedNoCtx(path, "meta extent [%d, %d) outside file", metaStart, metaStart+metaLen)
	}

	metaVec := fileservice.IOVector{
		FilePath: path,
		Entries: []fileservice.IOEntry{
			{Offset: int64(metaStart), Size: int64(metaLen)},
		},
	}
	if err := fs.Read(ctx, &metaVec); err != nil {
		return nil, err
	}
	return UnmarshalMeta(metaVec.Entries[0].Data)
}

// ReadStripeFooter fetches and parses one stripe's stream catalog.
func ReadStripeFooter(ctx context.Context, fs fileservice.FileService, path string, info StripeInfo) (*StripeFooter, error) {
	vec := fileservice.IOVector{
		FilePath: path,
		Entries: []fileservice.IOEntry{
			{Offset: int64(info.FooterOffset()), Size: int64(info.FooterLen)},
		},
	}
	if err := fs.Read(ctx, &vec); err != nil {
		return nil, err
	}
	footer, err := UnmarshalStripeFooter(vec.Entries[0].Data)
	if err != nil {
		return nil, err
	}
	if len(footer.Columns) == 0 {
		return nil, moerr.NewDataCorruptedNoCtx(path, "stripe footer has no columns")
	}
	return footer, nil
}
