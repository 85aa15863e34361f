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
	"github.com/matrixorigin/stripeio/pkg/common/moerr"
	"github.com/matrixorigin/stripeio/pkg/common/mpool"
	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/container/vector"
	"github.com/matrixorigin/stripeio/pkg/objectio"
)

// assembler rebuilds nested column vectors from leaf chunks. Container
// structure is reconstructed from the levels of the leftmost projected
// leaf under each composite node; struct fields outside the projection
// come back as all-null placeholders sized to the parent.
type assembler struct {
	chunks []*leafChunk // by leaf ordinal, nil when not projected
	mp     *mpool.MPool
}

// leftmost returns the ordinal of the first projected leaf under node,
// or -1.
func (a *assembler) leftmost(node *objectio.Node) int {
	for ord := node.LeafStart; ord < node.LeafEnd; ord++ {
		if a.chunks[ord] != nil {
			return int(ord)
		}
	}
	return -1
}

func (a *assembler) build(node *objectio.Node) (*vector.Vector, error) {
	if node.IsLeaf() {
		chunk := a.chunks[node.LeafStart]
		if chunk == nil {
			return nil, moerr.NewInternalErrorNoCtx("column %s not loaded", node.Name)
		}
		return chunk.vec, nil
	}
	lead := a.leftmost(node)
	if lead < 0 {
		return nil, moerr.NewInternalErrorNoCtx("column %s has no loaded leaves", node.Name)
	}
	switch node.Type.Oid {
	case types.T_struct:
		return a.buildStruct(node, a.chunks[lead])
	case types.T_array, types.T_map:
		return a.buildContainer(node, a.chunks[lead])
	}
	return nil, moerr.NewInternalErrorNoCtx("column %s: unexpected composite %s", node.Name, node.Type.String())
}

// buildStruct sizes the struct from the lead leaf's levels and assembles
// every child at full struct length, null-padded where the struct itself
// is null.
func (a *assembler) buildStruct(node *objectio.Node, lead *leafChunk) (*vector.Vector, error) {
	vec := vector.New(node.Type, a.mp)
	slots := 0
	for i := range lead.reps {
		if lead.reps[i] > node.Rep {
			continue
		}
		d := lead.defs[i]
		if d < node.PresenceDef {
			continue
		}
		if d < node.Def {
			vec.GetNulls().Add(uint64(slots))
		}
		slots++
	}

	children := make([]*vector.Vector, len(node.Children))
	for i, child := range node.Children {
		if a.leftmost(child) < 0 {
			children[i] = vector.NewConstNull(child.Type, slots, a.mp)
			continue
		}
		built, err := a.build(child)
		if err != nil {
			return nil, err
		}
		if built.Length() != slots {
			return nil, moerr.NewInternalErrorNoCtx("struct %s: field %s has %d slots, struct has %d",
				node.Name, child.Name, built.Length(), slots)
		}
		children[i] = built
	}
	vec.SetChildren(children...)
	vec.SetLength(slots)
	return vec, nil
}

// buildContainer assembles an array or map: offsets from the lead leaf's
// levels, elements recursively.
func (a *assembler) buildContainer(node *objectio.Node, lead *leafChunk) (*vector.Vector, error) {
	vec := vector.New(node.Type, a.mp)

	// entries with rep below the node's own repetition level open a new
	// container occurrence
	contRep := node.Rep - 1
	var starts []int
	for i := range lead.reps {
		if lead.reps[i] <= contRep {
			starts = append(starts, i)
		}
	}

	offs := make([]uint32, 1, len(starts)+1)
	var count uint32
	slots := 0
	for k, st := range starts {
		end := len(lead.reps)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		d := lead.defs[st]
		if d < node.PresenceDef {
			continue
		}
		if d < node.Def-1 {
			vec.GetNulls().Add(uint64(slots))
		} else {
			for i := st; i < end; i++ {
				if lead.defs[i] >= node.Def && lead.reps[i] <= node.Rep {
					count++
				}
			}
		}
		offs = append(offs, count)
		slots++
	}

	children := make([]*vector.Vector, len(node.Children))
	for i, child := range node.Children {
		built, err := a.build(child)
		if err != nil {
			return nil, err
		}
		if built.Length() != int(count) {
			return nil, moerr.NewInternalErrorNoCtx("%s %s: %d elements, offsets cover %d",
				node.Type.String(), node.Name, built.Length(), count)
		}
		children[i] = built
	}
	vec.SetChildren(children...)
	vec.SetOffsets(offs)
	vec.SetLength(slots)
	return vec, nil
}
