// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package safetensors reads and writes the safetensors format: a binary
// container of named tensors made of an 8-byte little-endian header size,
// a JSON header describing each tensor, and a raw byte-buffer holding the
// tensors data.
package safetensors

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/RIKEN-RCCS/dalotia/safetensors/header"
)

// SafeTensors is an immutable container of named tensors, sharing a
// single byte-buffer.
//
// It is safe for concurrent use. Views returned by its methods reference
// the shared byte-buffer and must not be modified.
type SafeTensors struct {
	header header.Header
	index  map[string]int
	// prefix holds the 8-byte size and the JSON header exactly as written
	// or read.
	prefix []byte
	data   []byte
}

// FromTensors builds a new container from a set of views and optional
// metadata. Tensors are laid out in ascending name order, packed without
// padding. Views data is copied, so the container does not retain any
// reference to the given values.
func FromTensors[V View](views map[string]V, metadata map[string]string) (SafeTensors, error) {
	p, err := makePlan(views, metadata)
	if err != nil {
		return SafeTensors{}, err
	}
	prefix, err := header.AppendEncoded(nil, p.header)
	if err != nil {
		return SafeTensors{}, err
	}
	data := make([]byte, 0, p.dataSize())
	for _, nv := range p.views {
		data = append(data, nv.View.Data()...)
	}
	p.header.ByteBufferOffset = len(prefix)
	return newSafeTensors(p.header, prefix, data), nil
}

// Deserialize parses a byte-buffer representing the whole safetensors
// file and returns the deserialized form, without any tensor allocation:
// the returned container and its views reference "buf" directly.
//
// The header is validated, and the length of the byte-buffer must match
// the layout exactly: shorter data is reported as ErrTruncatedFile,
// trailing bytes as ErrInvalidLayout.
func Deserialize(buf []byte) (SafeTensors, error) {
	h, err := header.Parse(buf)
	if err != nil {
		return SafeTensors{}, fmt.Errorf("failed to read safetensors header: %w", err)
	}
	if err = h.Validate(); err != nil {
		return SafeTensors{}, fmt.Errorf("safetensors header is invalid: %w", err)
	}
	data := buf[h.ByteBufferOffset:]
	switch size := h.Tensors.DataSize(); {
	case len(data) < size:
		return SafeTensors{}, fmt.Errorf("%w: byte-buffer size is %d, expected %d", ErrTruncatedFile, len(data), size)
	case len(data) > size:
		return SafeTensors{}, fmt.Errorf("%w: %d trailing bytes after byte-buffer end", ErrInvalidLayout, len(data)-size)
	}
	return newSafeTensors(h, buf[:h.ByteBufferOffset], data), nil
}

func newSafeTensors(h header.Header, prefix, data []byte) SafeTensors {
	index := make(map[string]int, len(h.Tensors))
	for i, t := range h.Tensors {
		index[t.Name] = i
	}
	return SafeTensors{
		header: h,
		index:  index,
		prefix: prefix,
		data:   data,
	}
}

// Serialize the dictionary of tensors, and optional metadata, to a new
// byte buffer in safetensors format.
func Serialize[V View](views map[string]V, metadata map[string]string) ([]byte, error) {
	p, err := makePlan(views, metadata)
	if err != nil {
		return nil, err
	}
	buf, err := header.AppendEncoded(nil, p.header)
	if err != nil {
		return nil, err
	}
	buf = slices.Grow(buf, p.dataSize())
	for _, nv := range p.views {
		buf = append(buf, nv.View.Data()...)
	}
	return buf, nil
}

// SerializeTo writes the dictionary of tensors, and optional metadata, to
// an io.Writer (such as a file) in safetensors format.
//
// Compared to Serialize, this procedure avoids allocating the whole
// output in memory.
func SerializeTo[V View](w io.Writer, views map[string]V, metadata map[string]string) error {
	p, err := makePlan(views, metadata)
	if err != nil {
		return err
	}
	if _, err = header.Write(w, p.header); err != nil {
		return err
	}
	for _, nv := range p.views {
		if _, err = w.Write(nv.View.Data()); err != nil {
			return fmt.Errorf("failed to write data of tensor %q: %w", nv.Name, err)
		}
	}
	return nil
}

// Bytes returns a new byte slice with the whole container in safetensors
// format. For a container obtained from Deserialize, the result is
// identical to the original input.
func (st SafeTensors) Bytes() []byte {
	buf := make([]byte, 0, len(st.prefix)+len(st.data))
	buf = append(buf, st.prefix...)
	return append(buf, st.data...)
}

// WriteTo writes the whole container in safetensors format to w.
// It satisfies io.WriterTo interface.
func (st SafeTensors) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(st.prefix)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write header: %w", err)
	}
	m, err := w.Write(st.data)
	if err != nil {
		return int64(n + m), fmt.Errorf("failed to write byte-buffer: %w", err)
	}
	return int64(n + m), nil
}

// Tensor returns the view of a specific tensor by name. Names are
// case-sensitive. If there is no such tensor, the error wraps
// ErrTensorNotFound.
func (st SafeTensors) Tensor(name string) (TensorView, error) {
	i, ok := st.index[name]
	if !ok {
		return TensorView{}, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	return viewOf(st.header.Tensors[i], st.data), nil
}

// Tensors returns a list of named views of all tensors, in byte-buffer
// order.
func (st SafeTensors) Tensors() []NamedTensorView {
	tensors := make([]NamedTensorView, len(st.header.Tensors))
	for i, t := range st.header.Tensors {
		tensors[i] = NamedTensorView{
			Name:       t.Name,
			TensorView: viewOf(t, st.data),
		}
	}
	return tensors
}

// Names returns the names of all tensors, in byte-buffer order.
func (st SafeTensors) Names() []string {
	return st.header.Tensors.Names()
}

// Metadata returns a copy of the free-form key/value string pairs of the
// header. It is nil if there is no metadata.
func (st SafeTensors) Metadata() map[string]string {
	if len(st.header.Metadata) == 0 {
		return nil
	}
	return maps.Clone(st.header.Metadata)
}

// Len returns how many tensors are stored within the SafeTensors.
func (st SafeTensors) Len() int {
	return len(st.header.Tensors)
}

// IsEmpty reports whether the SafeTensors contains no tensors.
func (st SafeTensors) IsEmpty() bool {
	return len(st.header.Tensors) == 0
}

// DataSize returns the size in bytes of the byte-buffer.
func (st SafeTensors) DataSize() int {
	return len(st.data)
}
