// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MappedFile is a SafeTensors deserialized in place from a read-only
// memory-mapped file.
//
// Views obtained from a MappedFile reference the mapped memory directly:
// they must not be used after Close.
type MappedFile struct {
	SafeTensors
	mm mmap.MMap
}

// OpenFile maps the file at the given path in memory and deserializes it,
// with the same checks performed by Deserialize.
func OpenFile(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open safetensors file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat safetensors file: %w", err)
	}
	if fi.Size() == 0 {
		// an empty file cannot be mapped
		return nil, fmt.Errorf("%w: header size is missing: 0 bytes available", ErrTruncatedFile)
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to map safetensors file: %w", err)
	}
	st, err := Deserialize(mm)
	if err != nil {
		return nil, errors.Join(err, mm.Unmap())
	}
	return &MappedFile{SafeTensors: st, mm: mm}, nil
}

// Close unmaps the file. Calling Close more than once has no effect.
//
// Views obtained before Close must not be accessed afterwards; use
// TensorView.Clone to keep a copy of the data beyond the mapping.
func (mf *MappedFile) Close() error {
	if mf.mm == nil {
		return nil
	}
	err := mf.mm.Unmap()
	mf.mm = nil
	mf.SafeTensors = SafeTensors{}
	if err != nil {
		return fmt.Errorf("failed to unmap safetensors file: %w", err)
	}
	return nil
}
