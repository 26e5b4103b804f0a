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

// Strided is a read-only, possibly non-contiguous view over the data of
// a tensor. Strides and offset are expressed in elements, not bytes.
//
// A Strided is not a View: it must be turned into a row-major TensorView
// with Contiguous before being serialized.
type Strided struct {
	dType   dtype.DType
	shape   []int
	strides []int
	offset  int
	data    []byte
}

// NewStrided returns a Strided over a row-major View. The View data
// length must match its DType and Shape.
func NewStrided(v View) (Strided, error) {
	tv, err := NewTensorView(v.DType(), v.Shape(), v.Data())
	if err != nil {
		return Strided{}, err
	}
	return Strided{
		dType:   tv.dType,
		shape:   tv.shape,
		strides: rowMajorStrides(tv.shape),
		data:    tv.data,
	}, nil
}

// NewStridedView creates a Strided checking that every addressed element
// lies within data.
func NewStridedView(dt dtype.DType, shape, strides []int, offset int, data []byte) (Strided, error) {
	if err := dt.Validate(); err != nil {
		return Strided{}, err
	}
	if len(shape) != len(strides) {
		return Strided{}, fmt.Errorf("%w: shape has %d dimensions, strides %d",
			ErrShapeDTypeMismatch, len(shape), len(strides))
	}
	numElements, err := header.NumElements(shape)
	if err != nil {
		return Strided{}, err
	}
	if offset < 0 {
		return Strided{}, fmt.Errorf("%w: negative strided offset %d", ErrInvalidLayout, offset)
	}
	for _, s := range strides {
		if s < 0 {
			return Strided{}, fmt.Errorf("%w: negative stride %d", ErrInvalidLayout, s)
		}
	}
	if numElements > 0 {
		last, err := lastElementIndex(shape, strides, offset)
		if err != nil {
			return Strided{}, fmt.Errorf("%w: strided view: %w", ErrInvalidLayout, err)
		}
		if avail := len(data) / dt.Size(); last >= avail {
			return Strided{}, fmt.Errorf("%w: strided view addresses element %d, only %d available",
				ErrInvalidLayout, last, avail)
		}
	}
	return Strided{
		dType:   dt,
		shape:   copyShape(shape),
		strides: copyShape(strides),
		offset:  offset,
		data:    data,
	}, nil
}

func lastElementIndex(shape, strides []int, offset int) (int, error) {
	last := offset
	for i, dim := range shape {
		step, err := checkedMul(dim-1, strides[i])
		if err != nil {
			return 0, err
		}
		if last, err = checkedAdd(last, step); err != nil {
			return 0, err
		}
	}
	return last, nil
}

func rowMajorStrides(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// DType returns the data type of the elements.
func (s Strided) DType() dtype.DType { return s.dType }

// Shape returns a copy of the shape.
func (s Strided) Shape() []int { return copyShape(s.shape) }

// Strides returns a copy of the strides, in elements.
func (s Strided) Strides() []int { return copyShape(s.strides) }

// Offset returns the index of the first element within the data.
func (s Strided) Offset() int { return s.offset }

// Permute returns a Strided whose dimension i is the dimension axes[i] of s.
// The data is not moved. It fails with ErrInvalidPermutation unless axes
// contains each dimension index exactly once.
func (s Strided) Permute(axes ...int) (Strided, error) {
	if len(axes) != len(s.shape) {
		return Strided{}, fmt.Errorf("%w: %d axes for %d dimensions", ErrInvalidPermutation, len(axes), len(s.shape))
	}
	seen := make([]bool, len(axes))
	shape := make([]int, len(axes))
	strides := make([]int, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			return Strided{}, fmt.Errorf("%w: %v", ErrInvalidPermutation, axes)
		}
		seen[a] = true
		shape[i] = s.shape[a]
		strides[i] = s.strides[a]
	}
	p := s
	p.shape = copyShape(shape)
	p.strides = copyShape(strides)
	return p, nil
}

// Transpose reverses the order of all dimensions. Applied to data stored
// in column-major ("Fortran") order, with its shape reversed, it gives the
// row-major interpretation of the same tensor.
func (s Strided) Transpose() Strided {
	p := s
	p.shape = copyShape(s.shape)
	p.strides = copyShape(s.strides)
	slices.Reverse(p.shape)
	slices.Reverse(p.strides)
	return p
}

// IsContiguous reports whether the elements, visited in row-major order,
// are laid out one after the other in data.
func (s Strided) IsContiguous() bool {
	expected := 1
	for i := len(s.shape) - 1; i >= 0; i-- {
		switch dim := s.shape[i]; dim {
		case 0:
			return true
		case 1:
			continue
		default:
			if s.strides[i] != expected {
				return false
			}
			expected *= dim
		}
	}
	return true
}

// Contiguous copies the elements, in row-major order, into a new
// TensorView with the same shape.
func (s Strided) Contiguous() TensorView {
	size := s.dType.Size()
	n := 1
	for _, dim := range s.shape {
		n *= dim
	}
	out := make([]byte, n*size)
	if n > 0 && s.IsContiguous() {
		copy(out, s.data[s.offset*size:])
	} else if n > 0 {
		index := make([]int, len(s.shape))
		pos := s.offset
		for i := 0; i < n; i++ {
			copy(out[i*size:(i+1)*size], s.data[pos*size:])
			pos = s.next(index, pos)
		}
	}
	return TensorView{
		dType: s.dType,
		shape: copyShape(s.shape),
		data:  out,
	}
}

// next advances the row-major multi-index in place and returns the
// element position it addresses.
func (s Strided) next(index []int, pos int) int {
	for d := len(index) - 1; d >= 0; d-- {
		index[d]++
		pos += s.strides[d]
		if index[d] < s.shape[d] {
			return pos
		}
		pos -= s.strides[d] * index[d]
		index[d] = 0
	}
	return pos
}
