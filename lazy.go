// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import (
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
	"github.com/RIKEN-RCCS/dalotia/safetensors/header"
)

// Lazy allows to read safetensors content lazy-loading data of individual
// tensors from an io.ReadSeeker.
//
// Lazy and the LazyTensor values obtained from it share the same
// io.ReadSeeker, so they are NOT safe for concurrent use.
type Lazy struct {
	rs     io.ReadSeeker
	header header.Header
	index  map[string]int
	// dataOffset is the byte-buffer offset relative to the start of rs
	dataOffset int64
}

// LazyTensor provides information about a tensor and allows lazy loading
// its data.
//
// It only retains in-memory information from the safetensors header, and only
// small references to know how to retrieve the tensor's data later.
type LazyTensor struct {
	rs io.ReadSeeker
	t  header.Tensor
	// dataOffset is the byte-buffer offset relative to the start of rs
	dataOffset int64
}

// NewLazy reads from "rs" the safetensors header and validates it, then
// returns a new Lazy in case of success, otherwise nil and an error.
//
// If headerSizeLimit is set to a positive number, headers declaring a
// bigger JSON size are rejected before allocating memory for them. This
// can be useful to guard against tampered or garbage data. A value of zero,
// or a negative number, only applies the header.MaxSize limit.
//
// The current "seek" position of "rs" is used as a base for all further
// seek-based operations to read tensor data. The stream must be long enough
// to hold the whole byte-buffer, otherwise the error wraps
// ErrTruncatedFile; any data following the byte-buffer is ignored.
//
// The given io.ReadSeeker must remain available for operations as long as
// you are handling a Lazy object and any LazyTensor obtained from it.
func NewLazy(rs io.ReadSeeker, headerSizeLimit int) (*Lazy, error) {
	initialOffset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial offset: %w", err)
	}

	h, err := header.ReadWithLimit(rs, headerSizeLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read safetensors header: %w", err)
	}
	if err = h.Validate(); err != nil {
		return nil, fmt.Errorf("safetensors header is invalid: %w", err)
	}

	dataOffset, err := checkedAddNonNegInt64(initialOffset, int64(h.ByteBufferOffset))
	if err != nil {
		return nil, fmt.Errorf("failed to calculate total byte-buffer offset: %w", err)
	}
	if err = checkStreamSize(rs, dataOffset, h.Tensors.DataSize()); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(h.Tensors))
	for i, t := range h.Tensors {
		index[t.Name] = i
	}
	return &Lazy{
		rs:         rs,
		header:     h,
		index:      index,
		dataOffset: dataOffset,
	}, nil
}

func checkStreamSize(rs io.ReadSeeker, dataOffset int64, dataSize int) error {
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to get stream size: %w", err)
	}
	if avail := end - dataOffset; avail < int64(dataSize) {
		return fmt.Errorf("%w: byte-buffer size is %d, expected %d", ErrTruncatedFile, max(avail, 0), dataSize)
	}
	return nil
}

// Metadata returns a copy of the free-form key/value string pairs as read
// from the safetensors header. It is nil if there is no metadata.
func (l *Lazy) Metadata() map[string]string {
	if len(l.header.Metadata) == 0 {
		return nil
	}
	return maps.Clone(l.header.Metadata)
}

// Names returns the names of all tensors, in byte-buffer order.
func (l *Lazy) Names() []string {
	return l.header.Tensors.Names()
}

// Len returns the number of tensors.
func (l *Lazy) Len() int {
	return len(l.header.Tensors)
}

// Tensor returns a LazyTensor by its name. If there is no such tensor,
// the error wraps ErrTensorNotFound.
func (l *Lazy) Tensor(name string) (LazyTensor, error) {
	i, ok := l.index[name]
	if !ok {
		return LazyTensor{}, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	return l.lazyTensor(i), nil
}

// Tensors returns a LazyTensor for each tensor, in byte-buffer order.
func (l *Lazy) Tensors() []LazyTensor {
	out := make([]LazyTensor, len(l.header.Tensors))
	for i := range out {
		out[i] = l.lazyTensor(i)
	}
	return out
}

func (l *Lazy) lazyTensor(i int) LazyTensor {
	return LazyTensor{
		rs:         l.rs,
		t:          l.header.Tensors[i],
		dataOffset: l.dataOffset,
	}
}

// Load reads the whole byte-buffer in memory and returns an independent
// SafeTensors, no longer bound to the io.ReadSeeker.
//
// The header of the returned container is re-encoded, so its Bytes may
// differ from the original stream when the latter was not produced by
// this package.
func (l *Lazy) Load() (SafeTensors, error) {
	if _, err := l.rs.Seek(l.dataOffset, io.SeekStart); err != nil {
		return SafeTensors{}, fmt.Errorf("failed to seek to byte-buffer offset: %w", err)
	}
	data := make([]byte, l.header.Tensors.DataSize())
	if _, err := io.ReadFull(l.rs, data); err != nil {
		return SafeTensors{}, readDataError(err)
	}

	h := header.Header{
		Tensors:  l.header.Tensors.Clone(),
		Metadata: l.Metadata(),
	}
	prefix, err := header.AppendEncoded(nil, h)
	if err != nil {
		return SafeTensors{}, err
	}
	h.ByteBufferOffset = len(prefix)
	return newSafeTensors(h, prefix, data), nil
}

// Name returns the name of the tensor.
func (lt LazyTensor) Name() string {
	return lt.t.Name
}

// DType returns the safetensors-specific data type of the tensor.
func (lt LazyTensor) DType() dtype.DType {
	return lt.t.DType
}

// Shape returns the shape of the tensor.
//
// If the shape is zero-length, it returns nil, otherwise a new slice
// is allocated and returned (the shape is copied to prevent tampering).
func (lt LazyTensor) Shape() []int {
	return copyShape(lt.t.Shape)
}

// DataLen returns the size in bytes of the tensor data.
func (lt LazyTensor) DataLen() int {
	return lt.t.ByteSize()
}

// ReadData reads and returns the raw []byte data of the tensor.
//
// Safetensors data is expected to be little-endian and row-major ("C")
// ordered. There is no striding.
func (lt LazyTensor) ReadData() ([]byte, error) {
	size := lt.t.ByteSize()
	if size == 0 {
		return []byte{}, nil
	}
	if err := lt.seekTensorData(); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(lt.rs, data); err != nil {
		return nil, readDataError(err)
	}
	return data, nil
}

// View reads the tensor data and returns it as a TensorView owning it.
func (lt LazyTensor) View() (TensorView, error) {
	data, err := lt.ReadData()
	if err != nil {
		return TensorView{}, err
	}
	return TensorView{
		dType: lt.t.DType,
		shape: copyShape(lt.t.Shape),
		data:  data,
	}, nil
}

// WriteTo reads raw tensor data and copies it to the given io.Writer.
// This method satisfies io.WriterTo interface.
//
// Data is copied with io.CopyN, so, apart from an internal buffer, this
// function does not allocate the entire tensor's data in memory.
func (lt LazyTensor) WriteTo(w io.Writer) (int64, error) {
	size := lt.t.ByteSize()
	if size == 0 {
		return 0, nil
	}
	if err := lt.seekTensorData(); err != nil {
		return 0, err
	}
	n, err := io.CopyN(w, lt.rs, int64(size))
	if err != nil {
		return n, readDataError(err)
	}
	return n, nil
}

func (lt LazyTensor) seekTensorData() error {
	offset, err := checkedAddNonNegInt64(lt.dataOffset, int64(lt.t.DataOffsets.Begin))
	if err != nil {
		return fmt.Errorf("failed to calculate tensor data offset: %w", err)
	}
	if _, err = lt.rs.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to tensor data offset: %w", err)
	}
	return nil
}

func readDataError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: failed to read tensor data: %w", ErrTruncatedFile, err)
	}
	return fmt.Errorf("failed to read tensor data: %w", err)
}
