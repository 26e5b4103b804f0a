// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package header implements reading, writing and validation of the JSON
// header of the safetensors format.
package header

// MaxSize is the largest header size, in bytes, accepted by Parse and
// Read. Bigger values are treated as garbage or tampered data.
const MaxSize = 100_000_000

// Header provides tensors information and metadata, as defined by
// the safetensors format.
type Header struct {
	// Tensors are sorted by ascending DataOffsets when the Header comes
	// from Decode, Parse or Read. Tensors sharing the same offsets (only
	// possible for zero-sized data) keep their order of appearance.
	Tensors  TensorSlice
	Metadata Metadata
	// ByteBufferOffset indicates the byte index position where the byte-buffer
	// is expected to start, relative to the beginning of the whole
	// safetensors data stream (or file).
	ByteBufferOffset int
}

// Metadata is a set of free-form key/value string pairs.
type Metadata map[string]string

const metadataKey = "__metadata__"
