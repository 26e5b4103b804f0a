// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import (
	"fmt"
	"slices"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
	"github.com/RIKEN-RCCS/dalotia/safetensors/header"
)

// TensorView is a view of a tensor within a byte-buffer.
//
// Views obtained from a SafeTensors contain references to data within the
// container's byte-buffer, and are thus read-only: modifying the content of
// Data would corrupt the container.
type TensorView struct {
	dType dtype.DType
	shape []int
	data  []byte
}

// NamedTensorView is a pair of a TensorView and its name (or label, or key).
type NamedTensorView struct {
	Name       string
	TensorView TensorView
}

// NewTensorView creates a new TensorView, checking that the length of data
// is consistent with dType and shape.
//
// The shape is copied, while data is referenced as it is.
func NewTensorView(dType dtype.DType, shape []int, data []byte) (TensorView, error) {
	size, err := header.ByteSize(dType, shape)
	if err != nil {
		return TensorView{}, fmt.Errorf("invalid tensor view: %w", err)
	}
	if len(data) != size {
		return TensorView{}, fmt.Errorf("%w: invalid tensor view: dtype %s and shape %v require %d bytes, actual %d",
			ErrShapeDTypeMismatch, dType, shape, size, len(data))
	}
	return TensorView{
		dType: dType,
		shape: copyShape(shape),
		data:  data,
	}, nil
}

// viewOf builds a TensorView over the byte-range of an already validated
// header tensor.
func viewOf(t header.Tensor, data []byte) TensorView {
	return TensorView{
		dType: t.DType,
		shape: t.Shape,
		data:  data[t.DataOffsets.Begin:t.DataOffsets.End:t.DataOffsets.End],
	}
}

// DType returns the data type of the tensor.
func (tv TensorView) DType() dtype.DType { return tv.dType }

// Shape returns a copy of the shape of the tensor, or nil for scalars.
func (tv TensorView) Shape() []int { return copyShape(tv.shape) }

// Data returns the raw little-endian bytes of the tensor, without copy.
func (tv TensorView) Data() []byte { return tv.data }

// DataLen returns the length of the data in bytes.
func (tv TensorView) DataLen() int { return len(tv.data) }

// NumElements returns the number of values held by the tensor;
// it is 1 for scalars.
func (tv TensorView) NumElements() int {
	n := 1
	for _, v := range tv.shape {
		n *= v
	}
	return n
}

// Clone returns a TensorView that owns a copy of the data.
func (tv TensorView) Clone() TensorView {
	return TensorView{
		dType: tv.dType,
		shape: copyShape(tv.shape),
		data:  slices.Clone(tv.data),
	}
}

func copyShape(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	return slices.Clone(shape)
}
