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

package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/stretchr/testify/require"
)

func TestLz4RoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("stripeio"), 4096)
	compressed, err := Compress(src, nil, Lz4)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(src))

	dst := make([]byte, len(src))
	dst, err = Decompress(compressed, dst, Lz4)
	require.NoError(t, err)
	require.Equal(t, src, dst)
}

func TestLz4Incompressible(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	src := make([]byte, 1<<16)
	_, err := rng.Read(src)
	require.NoError(t, err)

	compressed, err := Compress(src, nil, Lz4)
	require.NoError(t, err)
	// random data stores raw
	require.Equal(t, len(src), len(compressed))

	dst := make([]byte, len(src))
	dst, err = Decompress(compressed, dst, Lz4)
	require.NoError(t, err)
	require.Equal(t, src, dst)
}

func TestNoneRoundTrip(t *testing.T) {
	src := []byte("plain bytes")
	compressed, err := Compress(src, nil, None)
	require.NoError(t, err)
	require.Equal(t, src, compressed)

	dst := make([]byte, len(src))
	dst, err = Decompress(compressed, dst, None)
	require.NoError(t, err)
	require.Equal(t, src, dst)
}

func TestDecompressCorruption(t *testing.T) {
	src := bytes.Repeat([]byte("abcd1234"), 1024)
	compressed, err := Compress(src, nil, Lz4)
	require.NoError(t, err)

	// a truncated stream cannot fill the recorded original size
	truncated := compressed[:len(compressed)/2]
	dst := make([]byte, len(src))
	_, err = Decompress(truncated, dst, Lz4)
	require.Error(t, err)
	require.True(t, moerr.IsDataCorrupted(err))
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := Compress([]byte("x"), nil, 0xee)
	require.True(t, moerr.IsNotSupported(err))
	_, err = Decompress([]byte("x"), make([]byte, 1), 0xee)
	require.True(t, moerr.IsNotSupported(err))
}
