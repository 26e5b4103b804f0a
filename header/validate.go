// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"unicode/utf8"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
)

// Validate checks whether the content of a Header is valid according to
// safetensors format, returning an error if a problem is encountered,
// otherwise nil.
//
// This validation can serve as an early isolated checking mechanism to
// identify bogus values before performing further actions that
// heavily depend upon the Header, such as reading tensors data from
// byte-buffer.
//
// The Header is checked against the following rules:
//
//   - ByteBufferOffset must not be negative
//   - tensor names must be unique, valid UTF-8, and differ from "__metadata__"
//   - metadata keys and values must be valid UTF-8
//   - the union of DataOffsets of all Tensors must cover an entire contiguous
//     area of the byte-buffer, starting from offset 0
//   - DataOffsets of any pair of tensors must not overlap
//   - for each Tensor, its DataOffsets.Begin must be <= DataOffsets.End
//   - each Tensor's DType must be valid
//   - each Tensor's Shape must not contain negative values
//   - for each Tensor, its explicit byte size described by DataOffsets
//     (End - Begin) must coincide with the implicit byte size computed
//     from Shape and DType (product of all Shape items * DType size; an empty
//     shape counts as 1 scalar value)
//   - no overflow must occur during calculations at any step, making sure
//     that all computed values fit within the "int" type
//
// Names and metadata that cannot be encoded faithfully wrap
// ErrMalformedHeader, layout violations wrap ErrInvalidLayout, size
// inconsistencies wrap ErrShapeDTypeMismatch, and invalid DTypes wrap
// dtype.ErrUnsupportedDType.
func (h Header) Validate() error {
	if h.ByteBufferOffset < 0 {
		return invalidLayout("invalid byte-buffer offset negative value %d", h.ByteBufferOffset)
	}
	if err := validateMetadata(h.Metadata); err != nil {
		return err
	}
	return validateTensors(h.Tensors)
}

func validateMetadata(m Metadata) error {
	for k, v := range m {
		if !utf8.ValidString(k) {
			return malformed("metadata key %q is not valid UTF-8", k)
		}
		if !utf8.ValidString(v) {
			return malformed("metadata value %q of key %q is not valid UTF-8", v, k)
		}
	}
	return nil
}

func validateTensors(ts TensorSlice) error {
	if err := validateTensorNames(ts); err != nil {
		return err
	}

	sorted := make(TensorSlice, len(ts))
	copy(sorted, ts)
	sort.Sort(TensorSliceByDataOffsets{sorted})

	expectedBegin := 0
	for _, t := range sorted {
		if err := validateTensor(t, expectedBegin); err != nil {
			return fmt.Errorf("invalid tensor %q: %w", t.Name, err)
		}
		expectedBegin = t.DataOffsets.End
	}
	return nil
}

func validateTensorNames(ts TensorSlice) error {
	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		if t.Name == metadataKey {
			return malformed("tensor name %q is reserved", t.Name)
		}
		if !utf8.ValidString(t.Name) {
			return malformed("tensor name %q is not valid UTF-8", t.Name)
		}
		if _, ok := seen[t.Name]; ok {
			return invalidLayout("duplicate tensor name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

func validateTensor(t Tensor, expectedBegin int) error {
	switch {
	case t.DataOffsets.Begin < expectedBegin:
		return invalidLayout("data-offsets begin %d overlaps previous data ending at %d", t.DataOffsets.Begin, expectedBegin)
	case t.DataOffsets.Begin > expectedBegin:
		return invalidLayout("expected data-offsets begin %d, actual %d", expectedBegin, t.DataOffsets.Begin)
	case t.DataOffsets.End < t.DataOffsets.Begin:
		return invalidLayout("expected data-offsets end >= %d (begin), actual %d", t.DataOffsets.Begin, t.DataOffsets.End)
	}

	byteSize, err := ByteSize(t.DType, t.Shape)
	if err != nil {
		return err
	}
	if offSize := t.ByteSize(); offSize != byteSize {
		return mismatch("byte size computed from shape (%d) differs from data-offsets size (%d)", byteSize, offSize)
	}
	return nil
}

// ByteSize returns the number of bytes taken by the data of a tensor
// with the given DType and Shape: the product of all Shape items (1 for
// an empty Shape) times the DType size.
//
// It fails if the DType is invalid, if the Shape contains negative values,
// or if the result does not fit in an int.
func ByteSize(dt dtype.DType, s Shape) (int, error) {
	if err := dt.Validate(); err != nil {
		return 0, err
	}

	numElements, err := NumElements(s)
	if err != nil {
		return 0, err
	}

	hi, byteSize := bits.Mul(uint(numElements), uint(dt.Size()))
	if hi != 0 || byteSize > math.MaxInt {
		return 0, mismatch("int overflow computing tensor byte size from shape")
	}
	return int(byteSize), nil
}

// NumElements returns the product of all Shape items (1 for an empty
// Shape), checking for negative values and int overflow.
func NumElements(s Shape) (int, error) {
	size := uint(1)
	for _, v := range s {
		if v < 0 {
			return 0, mismatch("shape contains negative value %d", v)
		}
		var hi uint
		if hi, size = bits.Mul(size, uint(v)); hi != 0 || size > math.MaxInt {
			return 0, mismatch("int overflow computing tensor elements size from shape")
		}
	}
	return int(size), nil
}
