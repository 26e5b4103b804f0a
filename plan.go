// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import (
	"fmt"
	"maps"
	"slices"

	"github.com/RIKEN-RCCS/dalotia/safetensors/header"
)

// plan is the layout of a set of views ready to be written: the header
// and the views in byte-buffer order.
type plan[V View] struct {
	header header.Header
	views  []NamedView[V]
}

// makePlan sorts the views by name (byte-wise, case-sensitive) and packs
// their data one after the other, with no padding, starting at offset 0.
// The resulting header is validated before being returned.
func makePlan[V View](views map[string]V, metadata map[string]string) (plan[V], error) {
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	slices.Sort(names)

	p := plan[V]{
		views: make([]NamedView[V], len(names)),
	}
	if len(names) > 0 {
		p.header.Tensors = make(header.TensorSlice, len(names))
	}
	offset := 0
	for i, name := range names {
		v := views[name]
		t, err := newHeaderTensor(name, v, offset)
		if err != nil {
			return plan[V]{}, fmt.Errorf("invalid tensor %q: %w", name, err)
		}
		p.header.Tensors[i] = t
		p.views[i] = NamedView[V]{Name: name, View: v}
		offset = t.DataOffsets.End
	}
	if len(metadata) > 0 {
		p.header.Metadata = maps.Clone(metadata)
	}

	if err := p.header.Validate(); err != nil {
		return plan[V]{}, fmt.Errorf("failed to generate a valid header: %w", err)
	}
	return p, nil
}

func newHeaderTensor(name string, v View, begin int) (header.Tensor, error) {
	dType := v.DType()
	shape := copyShape(v.Shape())
	size, err := header.ByteSize(dType, shape)
	if err != nil {
		return header.Tensor{}, err
	}
	if n := len(v.Data()); n != size {
		return header.Tensor{}, fmt.Errorf("%w: byte size computed from shape (%d) differs from data length (%d)",
			ErrShapeDTypeMismatch, size, n)
	}
	end, err := checkedAdd(begin, size)
	if err != nil {
		return header.Tensor{}, fmt.Errorf("%w: data-offsets end: %w", ErrInvalidLayout, err)
	}
	return header.Tensor{
		Name:        name,
		DType:       dType,
		Shape:       shape,
		DataOffsets: header.DataOffsets{Begin: begin, End: end},
	}, nil
}

// dataSize is the byte length of the whole packed byte-buffer.
func (p plan[V]) dataSize() int {
	return p.header.Tensors.DataSize()
}
