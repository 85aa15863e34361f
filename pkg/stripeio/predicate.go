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
	"github.com/matrixorigin/stripeio/pkg/index"
)

// ColumnStats is the pruning view of one primitive column at some scope:
// the whole file, one stripe or one row group. Bloom is only populated at
// stripe scope and may be nil everywhere.
type ColumnStats struct {
	ZoneMap index.ZM
	NullCnt uint64
	Rows    uint64
	Bloom   index.StaticFilter
}

// StatsProvider hands a predicate the stats of a named top-level column.
// Composite columns have no stats and return nil.
type StatsProvider interface {
	ColumnStats(name string) *ColumnStats
}

// Predicate decides whether a scope may contain matching rows. Returning
// an error means the question could not be answered; callers must treat
// that as "matches" and not skip. Only a definite false prunes.
type Predicate interface {
	Matches(stats StatsProvider) (bool, error)
}

type allPredicate struct{}

func (allPredicate) Matches(StatsProvider) (bool, error) { return true, nil }

// All matches everything.
func All() Predicate { return allPredicate{} }

type eqPredicate struct {
	column string
	key    []byte
}

// Eq matches scopes that may contain key in the named column. key is the
// comparable byte encoding of the value.
func Eq(column string, key []byte) Predicate {
	return &eqPredicate{column: column, key: key}
}

func (p *eqPredicate) Matches(stats StatsProvider) (bool, error) {
	cs := stats.ColumnStats(p.column)
	if cs == nil {
		return true, nil
	}
	if cs.ZoneMap.Valid() && !cs.ZoneMap.ContainsKey(p.key) {
		return false, nil
	}
	if cs.Rows > 0 && cs.NullCnt == cs.Rows {
		return false, nil
	}
	if cs.Bloom != nil {
		ok, err := cs.Bloom.MayContainsKey(p.key)
		if err != nil {
			return true, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type rangePredicate struct {
	column string
	lo, hi []byte
}

// Range matches scopes that may contain a value in [lo, hi]. A nil bound
// is unbounded on that side.
func Range(column string, lo, hi []byte) Predicate {
	return &rangePredicate{column: column, lo: lo, hi: hi}
}

func (p *rangePredicate) Matches(stats StatsProvider) (bool, error) {
	cs := stats.ColumnStats(p.column)
	if cs == nil || !cs.ZoneMap.Valid() {
		return true, nil
	}
	if p.lo != nil && !cs.ZoneMap.AnyGE(p.lo) {
		return false, nil
	}
	if p.hi != nil && !cs.ZoneMap.AnyLE(p.hi) {
		return false, nil
	}
	return true, nil
}

type andPredicate struct {
	children []Predicate
}

// And matches only when every child may match. A child error does not
// veto the others; the error is kept but pruning stays conservative.
func And(children ...Predicate) Predicate {
	return &andPredicate{children: children}
}

func (p *andPredicate) Matches(stats StatsProvider) (bool, error) {
	var firstErr error
	for _, child := range p.children {
		ok, err := child.Matches(stats)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			return false, nil
		}
	}
	return true, firstErr
}
