// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
	"github.com/RIKEN-RCCS/dalotia/safetensors/float16"
	"github.com/RIKEN-RCCS/dalotia/safetensors/float8"
)

// Typed values of a tensor are exchanged as a slice whose element type
// must match the DType, according to the following pairs:
//
//	DType   | Values type
//	--------+---------------
//	Bool    | []bool
//	U8      | []uint8
//	I8      | []int8
//	F8E4M3  | []float8.E4M3
//	F8E5M2  | []float8.E5M2
//	U16     | []uint16
//	I16     | []int16
//	F16     | []float16.F16
//	BF16    | []float16.BF16
//	U32     | []uint32
//	I32     | []int32
//	F32     | []float32
//	U64     | []uint64
//	I64     | []int64
//	F64     | []float64

var le = binary.LittleEndian

// EncodeValues converts a typed slice of values to safetensors little-endian
// byte format. A nil values argument is treated as an empty slice.
//
// If the type of values does not match dt, the error wraps
// ErrShapeDTypeMismatch.
func EncodeValues(dt dtype.DType, values any) ([]byte, error) {
	switch dt {
	case dtype.Bool:
		return encodeValues(dt, values, func(b []byte, x bool) []byte {
			if x {
				return append(b, 1)
			}
			return append(b, 0)
		})
	case dtype.U8:
		return encodeValues(dt, values, func(b []byte, x uint8) []byte { return append(b, x) })
	case dtype.I8:
		return encodeValues(dt, values, func(b []byte, x int8) []byte { return append(b, byte(x)) })
	case dtype.F8E4M3:
		return encodeValues(dt, values, func(b []byte, x float8.E4M3) []byte { return append(b, byte(x)) })
	case dtype.F8E5M2:
		return encodeValues(dt, values, func(b []byte, x float8.E5M2) []byte { return append(b, byte(x)) })
	case dtype.U16:
		return encodeValues(dt, values, le.AppendUint16)
	case dtype.I16:
		return encodeValues(dt, values, func(b []byte, x int16) []byte { return le.AppendUint16(b, uint16(x)) })
	case dtype.F16:
		return encodeValues(dt, values, func(b []byte, x float16.F16) []byte { return le.AppendUint16(b, x.Bits()) })
	case dtype.BF16:
		return encodeValues(dt, values, func(b []byte, x float16.BF16) []byte { return le.AppendUint16(b, x.Bits()) })
	case dtype.U32:
		return encodeValues(dt, values, le.AppendUint32)
	case dtype.I32:
		return encodeValues(dt, values, func(b []byte, x int32) []byte { return le.AppendUint32(b, uint32(x)) })
	case dtype.F32:
		return encodeValues(dt, values, func(b []byte, x float32) []byte { return le.AppendUint32(b, math.Float32bits(x)) })
	case dtype.U64:
		return encodeValues(dt, values, le.AppendUint64)
	case dtype.I64:
		return encodeValues(dt, values, func(b []byte, x int64) []byte { return le.AppendUint64(b, uint64(x)) })
	case dtype.F64:
		return encodeValues(dt, values, func(b []byte, x float64) []byte { return le.AppendUint64(b, math.Float64bits(x)) })
	}
	return nil, dt.Validate()
}

func encodeValues[T any](dt dtype.DType, values any, appendValue func([]byte, T) []byte) ([]byte, error) {
	v, err := castSlice[T](dt, values)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(v)*dt.Size())
	for _, x := range v {
		buf = appendValue(buf, x)
	}
	return buf, nil
}

func castSlice[T any](dt dtype.DType, values any) ([]T, error) {
	if values == nil {
		return nil, nil
	}
	v, ok := values.([]T)
	if !ok {
		return nil, fmt.Errorf("%w: expected DType %s to match values type %T, actual type %T",
			ErrShapeDTypeMismatch, dt, v, values)
	}
	return v, nil
}

// DecodeValues interprets safetensors little-endian data as a newly
// allocated typed slice, as documented for EncodeValues.
//
// The length of data must be a multiple of the DType size, otherwise the
// error wraps ErrShapeDTypeMismatch.
func DecodeValues(dt dtype.DType, data []byte) (any, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	if len(data)%dt.Size() != 0 {
		return nil, fmt.Errorf("%w: data length %d is not a multiple of %s size %d",
			ErrShapeDTypeMismatch, len(data), dt, dt.Size())
	}

	switch dt {
	case dtype.Bool:
		return decodeValues(data, 1, func(b []byte) bool { return b[0] != 0 }), nil
	case dtype.U8:
		return decodeValues(data, 1, func(b []byte) uint8 { return b[0] }), nil
	case dtype.I8:
		return decodeValues(data, 1, func(b []byte) int8 { return int8(b[0]) }), nil
	case dtype.F8E4M3:
		return decodeValues(data, 1, func(b []byte) float8.E4M3 { return float8.E4M3(b[0]) }), nil
	case dtype.F8E5M2:
		return decodeValues(data, 1, func(b []byte) float8.E5M2 { return float8.E5M2(b[0]) }), nil
	case dtype.U16:
		return decodeValues(data, 2, le.Uint16), nil
	case dtype.I16:
		return decodeValues(data, 2, func(b []byte) int16 { return int16(le.Uint16(b)) }), nil
	case dtype.F16:
		return decodeValues(data, 2, func(b []byte) float16.F16 { return float16.F16FromBits(le.Uint16(b)) }), nil
	case dtype.BF16:
		return decodeValues(data, 2, func(b []byte) float16.BF16 { return float16.BF16(le.Uint16(b)) }), nil
	case dtype.U32:
		return decodeValues(data, 4, le.Uint32), nil
	case dtype.I32:
		return decodeValues(data, 4, func(b []byte) int32 { return int32(le.Uint32(b)) }), nil
	case dtype.F32:
		return decodeValues(data, 4, func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }), nil
	case dtype.U64:
		return decodeValues(data, 8, le.Uint64), nil
	case dtype.I64:
		return decodeValues(data, 8, func(b []byte) int64 { return int64(le.Uint64(b)) }), nil
	default: // dtype.F64
		return decodeValues(data, 8, func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }), nil
	}
}

func decodeValues[T any](data []byte, size int, read func([]byte) T) []T {
	out := make([]T, len(data)/size)
	for i := range out {
		out[i] = read(data[i*size:])
	}
	return out
}

// NewTypedView creates a new TensorView encoding the given typed values.
// The number of values must match the shape.
func NewTypedView(dt dtype.DType, shape []int, values any) (TensorView, error) {
	data, err := EncodeValues(dt, values)
	if err != nil {
		return TensorView{}, err
	}
	return NewTensorView(dt, shape, data)
}

// Values decodes the data of the tensor into a new typed slice, as
// documented for EncodeValues.
func (tv TensorView) Values() (any, error) {
	return DecodeValues(tv.dType, tv.data)
}

// ValuesAs decodes the data of a View into a new []T. It fails with
// ErrShapeDTypeMismatch if T is not the values type of the view DType.
func ValuesAs[T any](v View) ([]T, error) {
	values, err := DecodeValues(v.DType(), v.Data())
	if err != nil {
		return nil, err
	}
	out, ok := values.([]T)
	if !ok {
		return nil, fmt.Errorf("%w: DType %s values are %T, requested %T",
			ErrShapeDTypeMismatch, v.DType(), values, out)
	}
	return out, nil
}
