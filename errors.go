// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import (
	"errors"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
	"github.com/RIKEN-RCCS/dalotia/safetensors/header"
)

// Error kinds returned by this package, to be tested with errors.Is.
// Some of them are defined by subpackages and only re-exported here.
var (
	ErrMalformedHeader    = header.ErrMalformedHeader
	ErrShapeDTypeMismatch = header.ErrShapeDTypeMismatch
	ErrInvalidLayout      = header.ErrInvalidLayout
	ErrTruncatedFile      = header.ErrTruncatedFile
	ErrUnsupportedDType   = dtype.ErrUnsupportedDType

	// ErrTensorNotFound is returned when looking up a name that does not
	// belong to any tensor of the container.
	ErrTensorNotFound = errors.New("tensor not found")
	// ErrInvalidPermutation is returned by Strided.Permute when the given
	// axes are not a permutation of the view dimensions.
	ErrInvalidPermutation = errors.New("invalid permutation")
)
