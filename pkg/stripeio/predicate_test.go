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

package stripeio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/index"
)

type mapStats map[string]*ColumnStats

func (m mapStats) ColumnStats(name string) *ColumnStats { return m[name] }

type stubFilter struct {
	contains bool
	err      error
}

func (f stubFilter) MayContainsKey([]byte) (bool, error) { return f.contains, f.err }
func (f stubFilter) Marshal() ([]byte, error)            { return nil, nil }
func (f stubFilter) Unmarshal([]byte) error              { return nil }
func (f stubFilter) String() string                      { return "stub" }

func int64ZM(lo, hi int64) index.ZM {
	zm := index.BuildZM(types.T_int64, types.EncodeFixed(lo))
	zm.Update(types.EncodeFixed(hi))
	return zm
}

func TestEqPredicate(t *testing.T) {
	stats := mapStats{"id": {ZoneMap: int64ZM(10, 20), NullCnt: 3, Rows: 100}}

	ok, err := Eq("id", types.EncodeFixed(int64(15))).Matches(stats)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Eq("id", types.EncodeFixed(int64(25))).Matches(stats)
	require.NoError(t, err)
	require.False(t, ok)

	// unknown columns never prune
	ok, err = Eq("nope", types.EncodeFixed(int64(15))).Matches(stats)
	require.NoError(t, err)
	require.True(t, ok)

	// an all-null scope cannot contain any key
	allNull := mapStats{"id": {ZoneMap: int64ZM(10, 20), NullCnt: 100, Rows: 100}}
	ok, err = Eq("id", types.EncodeFixed(int64(15))).Matches(allNull)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEqPredicateBloom(t *testing.T) {
	base := ColumnStats{ZoneMap: int64ZM(10, 20), Rows: 100}
	key := types.EncodeFixed(int64(15))

	miss := base
	miss.Bloom = stubFilter{contains: false}
	ok, err := Eq("id", key).Matches(mapStats{"id": &miss})
	require.NoError(t, err)
	require.False(t, ok)

	hit := base
	hit.Bloom = stubFilter{contains: true}
	ok, err = Eq("id", key).Matches(mapStats{"id": &hit})
	require.NoError(t, err)
	require.True(t, ok)

	// a filter that cannot answer must not prune
	broken := base
	broken.Bloom = stubFilter{err: moerr.NewInternalErrorNoCtx("no filter")}
	ok, err = Eq("id", key).Matches(mapStats{"id": &broken})
	require.Error(t, err)
	require.True(t, ok)
}

func TestRangePredicateBounds(t *testing.T) {
	stats := mapStats{"id": {ZoneMap: int64ZM(100, 200), Rows: 50}}

	cases := []struct {
		lo, hi int64
		noLo   bool
		noHi   bool
		want   bool
	}{
		{lo: 150, hi: 160, want: true},
		{lo: 250, hi: 300, want: false},
		{lo: 0, hi: 50, want: false},
		{lo: 200, hi: 500, want: true}, // touches the max
		{lo: 0, hi: 100, want: true},   // touches the min
		{noLo: true, hi: 99, want: false},
		{noLo: true, hi: 100, want: true},
		{lo: 201, noHi: true, want: false},
	}
	for _, c := range cases {
		var lo, hi []byte
		if !c.noLo {
			lo = types.EncodeFixed(c.lo)
		}
		if !c.noHi {
			hi = types.EncodeFixed(c.hi)
		}
		ok, err := Range("id", lo, hi).Matches(stats)
		require.NoError(t, err)
		require.Equal(t, c.want, ok, "range [%d, %d]", c.lo, c.hi)
	}
}

func TestAndPredicate(t *testing.T) {
	stats := mapStats{
		"id":  {ZoneMap: int64ZM(10, 20), Rows: 100},
		"seq": {ZoneMap: int64ZM(1000, 2000), Rows: 100},
	}
	in := types.EncodeFixed(int64(15))
	out := types.EncodeFixed(int64(25))

	ok, err := And(Eq("id", in), Range("seq", types.EncodeFixed(int64(1500)), nil)).Matches(stats)
	require.NoError(t, err)
	require.True(t, ok)

	// one definite miss prunes
	ok, err = And(Eq("id", in), Eq("seq", in)).Matches(stats)
	require.NoError(t, err)
	require.False(t, ok)

	// a failing child keeps its error but cannot veto pruning by others
	broken := mapStats{
		"id": {ZoneMap: int64ZM(10, 20), Rows: 100,
			Bloom: stubFilter{err: moerr.NewInternalErrorNoCtx("no filter")}},
	}
	ok, err = And(Eq("id", in)).Matches(broken)
	require.Error(t, err)
	require.True(t, ok)

	ok, err = And(All(), Eq("id", out)).Matches(stats)
	require.NoError(t, err)
	require.False(t, ok)
}
