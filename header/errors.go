// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"errors"
	"fmt"
)

// Error kinds reported by this package. Every returned error wraps
// exactly one of them (or dtype.ErrUnsupportedDType), so that callers can
// classify failures with errors.Is.
var (
	// ErrMalformedHeader reports header bytes that are not a structurally
	// valid safetensors JSON header.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrInvalidLayout reports data-offsets which overlap, leave gaps,
	// or fall outside the byte-buffer.
	ErrInvalidLayout = errors.New("invalid layout")
	// ErrShapeDTypeMismatch reports a byte length which is not consistent
	// with the product of the shape and the dtype size.
	ErrShapeDTypeMismatch = errors.New("shape and dtype mismatch")
	// ErrTruncatedFile reports data shorter than what the header declares.
	ErrTruncatedFile = errors.New("truncated file")
)

func malformed(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHeader, fmt.Sprintf(format, a...))
}

func invalidLayout(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidLayout, fmt.Sprintf(format, a...))
}

func mismatch(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeDTypeMismatch, fmt.Sprintf(format, a...))
}
