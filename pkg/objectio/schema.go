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
	"github.com/matrixorigin/stripeio/pkg/container/types"
)

// Field is one node of the declared schema. Composite fields carry
// children: struct members by name, array one element, map a key and a
// value. Every field is nullable.
type Field struct {
	Name     string
	Type     types.Type
	Children []Field
}

func NewPrimitiveField(name string, t types.T) Field {
	return Field{Name: name, Type: t.ToType()}
}

func NewArrayField(name string, elem Field) Field {
	return Field{Name: name, Type: types.T_array.ToType(), Children: []Field{elem}}
}

func NewMapField(name string, key, value Field) Field {
	return Field{Name: name, Type: types.T_map.ToType(), Children: []Field{key, value}}
}

func NewStructField(name string, children ...Field) Field {
	return Field{Name: name, Type: types.T_struct.ToType(), Children: children}
}

// Node is a compiled schema node. Def is the definition level at which a
// value of this node is fully present; Rep the number of repeated
// ancestors including the node itself. PresenceDef, on leaves, is the
// definition level that makes the leaf occupy a slot in the decoded
// vector: the element-existence level of the innermost repeated ancestor,
// or zero when there is none, in which case the leaf is dense over rows.
type Node struct {
	Field

	Def         uint8
	Rep         uint8
	PresenceDef uint8

	Children []*Node

	// Leaf ordinal range [LeafStart, LeafEnd) of the subtree, depth-first.
	LeafStart uint16
	LeafEnd   uint16
}

func (n *Node) IsLeaf() bool {
	return !n.Type.IsComposite()
}

// Schema is the compiled field tree. The root is an unnamed struct whose
// children are the top-level columns.
type Schema struct {
	Root   *Node
	leaves []*Node
}

// NewSchema compiles the declared top-level fields: definition levels gain
// one per nullable field plus one per repeated (array/map) level,
// repetition levels one per repeated level, leaf ordinals assigned
// depth-first.
func NewSchema(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, moerr.NewInvalidInputNoCtx("schema has no columns")
	}
	s := &Schema{
		Root: &Node{
			Field: Field{Type: types.T_struct.ToType(), Children: fields},
		},
	}
	for i := range fields {
		child, err := s.compile(&fields[i], 0, 0, 0)
		if err != nil {
			return nil, err
		}
		s.Root.Children = append(s.Root.Children, child)
	}
	s.Root.LeafEnd = uint16(len(s.leaves))
	return s, nil
}

func (s *Schema) compile(f *Field, def, rep, presence uint8) (*Node, error) {
	node := &Node{
		Field:     *f,
		LeafStart: uint16(len(s.leaves)),
	}
	def++ // the field itself is nullable

	switch f.Type.Oid {
	case types.T_struct:
		if len(f.Children) == 0 {
			return nil, moerr.NewInvalidInputNoCtx("struct field %q has no members", f.Name)
		}
		node.Def, node.Rep, node.PresenceDef = def, rep, presence
		for i := range f.Children {
			child, err := s.compile(&f.Children[i], def, rep, presence)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	case types.T_array:
		if len(f.Children) != 1 {
			return nil, moerr.NewInvalidInputNoCtx("array field %q needs exactly one element", f.Name)
		}
		def++ // element existence
		rep++
		node.Def, node.Rep, node.PresenceDef = def, rep, presence
		child, err := s.compile(&f.Children[0], def, rep, def)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	case types.T_map:
		if len(f.Children) != 2 {
			return nil, moerr.NewInvalidInputNoCtx("map field %q needs a key and a value", f.Name)
		}
		def++ // entry existence
		rep++
		node.Def, node.Rep, node.PresenceDef = def, rep, presence
		for i := range f.Children {
			child, err := s.compile(&f.Children[i], def, rep, def)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	case types.T_any:
		return nil, moerr.NewInvalidInputNoCtx("field %q has no type", f.Name)
	default:
		node.Def, node.Rep, node.PresenceDef = def, rep, presence
		s.leaves = append(s.leaves, node)
	}
	node.LeafEnd = uint16(len(s.leaves))
	return node, nil
}

func (s *Schema) Leaves() []*Node {
	return s.leaves
}

func (s *Schema) LeafCount() int {
	return len(s.leaves)
}

// Column returns the top-level column node by name.
func (s *Schema) Column(name string) *Node {
	for _, child := range s.Root.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

func (s *Schema) ColumnNames() []string {
	names := make([]string, 0, len(s.Root.Children))
	for _, child := range s.Root.Children {
		names = append(names, child.Name)
	}
	return names
}

// Marshal serializes the declared field tree. The compiled levels are
// recomputed on load; only names, types and shape go to disk.
func (s *Schema) Marshal() []byte {
	buf := appendUvarintBuf(nil, uint64(len(s.Root.Children)))
	for _, child := range s.Root.Children {
		buf = marshalField(buf, &child.Field)
	}
	return buf
}

func marshalField(buf []byte, f *Field) []byte {
	buf = appendUvarintBuf(buf, uint64(len(f.Name)))
	buf = append(buf, f.Name...)
	t := f.Type
	buf = append(buf, types.EncodeType(&t)...)
	buf = appendUvarintBuf(buf, uint64(len(f.Children)))
	for i := range f.Children {
		buf = marshalField(buf, &f.Children[i])
	}
	return buf
}

func UnmarshalSchema(buf []byte) (*Schema, error) {
	count, off, err := readUvarintBuf(buf, 0)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, count)
	for i := uint64(0); i < count; i++ {
		var f Field
		if f, off, err = unmarshalField(buf, off); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return NewSchema(fields)
}

func unmarshalField(buf []byte, off int) (Field, int, error) {
	var f Field
	nameLen, off, err := readUvarintBuf(buf, off)
	if err != nil {
		return f, 0, err
	}
	if off+int(nameLen)+types.TSize > len(buf) {
		return f, 0, moerr.NewDataCorruptedNoCtx("", "schema field overruns buffer")
	}
	f.Name = string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	f.Type = types.DecodeType(buf[off : off+types.TSize])
	off += types.TSize
	childCount, off, err := readUvarintBuf(buf, off)
	if err != nil {
		return f, 0, err
	}
	for i := uint64(0); i < childCount; i++ {
		var child Field
		if child, off, err = unmarshalField(buf, off); err != nil {
			return f, 0, err
		}
		f.Children = append(f.Children, child)
	}
	return f, off, nil
}
