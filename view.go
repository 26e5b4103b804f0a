// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import "github.com/RIKEN-RCCS/dalotia/safetensors/dtype"

// View is an interface to enable safetensors to serialize a tensor.
//
// Data must hold the row-major, little-endian bytes of the tensor, and its
// length must be the product of Shape times the DType size.
type View interface {
	// The DType of the tensor.
	DType() dtype.DType

	// The Shape of the tensor. An empty shape denotes a scalar.
	Shape() []int

	// The Data of the tensor.
	Data() []byte
}

// NamedView is a pair of a View and its name (or label, or key).
type NamedView[V View] struct {
	Name string
	View V
}
