// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
)

// Tensor provides properties of a tensor, as described within a
// safetensors header.
type Tensor struct {
	Name        string
	DType       dtype.DType
	Shape       Shape
	DataOffsets DataOffsets
}

// ByteSize returns End - Begin of the tensor's DataOffsets.
func (t Tensor) ByteSize() int {
	return t.DataOffsets.End - t.DataOffsets.Begin
}

// TensorSlice is a slice of Tensor objects.
type TensorSlice []Tensor

// TensorSliceByDataOffsets implements sort.Interface allowing to sort a
// TensorSlice by ascending DataOffsets values, then by name.
// It provides Less, while using Len and Swap methods of the embedded
// TensorSlice value.
type TensorSliceByDataOffsets struct{ TensorSlice }

// Less reports whether DataOffsets "a" is ordered before DataOffsets "b".
func (a DataOffsets) Less(b DataOffsets) bool {
	return a.Begin < b.Begin || (a.Begin == b.Begin && a.End < b.End)
}

// Names returns the names of all tensors, in slice order.
func (ts TensorSlice) Names() []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}

// DataSize returns the highest DataOffsets.End among all tensors, that is
// the byte-buffer size implied by the tensors, or 0 for an empty slice.
func (ts TensorSlice) DataSize() int {
	size := 0
	for _, t := range ts {
		size = max(size, t.DataOffsets.End)
	}
	return size
}

// Clone returns a copy of the slice, with Shapes copied too.
func (ts TensorSlice) Clone() TensorSlice {
	if ts == nil {
		return nil
	}
	c := make(TensorSlice, len(ts))
	for i, t := range ts {
		t.Shape = t.Shape.Clone()
		c[i] = t
	}
	return c
}

// Len is the number of elements in the collection.
// This function partially satisfies sort.Interface.
func (ts TensorSlice) Len() int {
	return len(ts)
}

// Swap swaps the elements with indexes i and j.
// This function partially satisfies sort.Interface.
func (ts TensorSlice) Swap(i, j int) {
	ts[i], ts[j] = ts[j], ts[i]
}

// Less reports whether the Tensor with index i must sort before the Tensor
// with index j, according to their DataOffsets and, for equal offsets,
// their names.
func (t TensorSliceByDataOffsets) Less(i, j int) bool {
	a, b := &t.TensorSlice[i], &t.TensorSlice[j]
	if a.DataOffsets != b.DataOffsets {
		return a.DataOffsets.Less(b.DataOffsets)
	}
	return a.Name < b.Name
}
