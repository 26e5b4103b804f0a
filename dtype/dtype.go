// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dtype

import (
	"errors"
	"fmt"
)

// ErrUnsupportedDType is returned for any data type that is not part of
// the safetensors format.
var ErrUnsupportedDType = errors.New("unsupported dtype")

// DType represents a safetensors data type.
type DType uint8

const (
	// Bool represents an 8-bit boolean data type.
	Bool DType = iota + 1
	// U8 represents an 8-bit unsigned integer data type.
	U8
	// I8 represents an 8-bit signed integer data type.
	I8
	// F8E4M3 represents an 8-bit floating point data type with 4 exponent
	// bits and 3 mantissa bits (no infinities).
	F8E4M3
	// F8E5M2 represents an 8-bit floating point data type with 5 exponent
	// bits and 2 mantissa bits.
	F8E5M2
	// U16 represents a 16-bit unsigned integer data type.
	U16
	// I16 represents a 16-bit signed integer data type.
	I16
	// F16 represents a 16-bit half-precision floating point data type.
	F16
	// BF16 represents a 16-bit brain floating point data type.
	BF16
	// U32 represents a 32-bit unsigned integer data type.
	U32
	// I32 represents a 32-bit signed integer data type.
	I32
	// F32 represents a 32-bit floating point data type.
	F32
	// U64 represents a 64-bit unsigned integer data type.
	U64
	// I64 represents a 64-bit signed integer data type.
	I64
	// F64 represents a 64-bit floating point data type.
	F64
)

var (
	dTypeToString = [...]string{
		Bool:   "BOOL",
		U8:     "U8",
		I8:     "I8",
		F8E4M3: "F8_E4M3",
		F8E5M2: "F8_E5M2",
		U16:    "U16",
		I16:    "I16",
		F16:    "F16",
		BF16:   "BF16",
		U32:    "U32",
		I32:    "I32",
		F32:    "F32",
		U64:    "U64",
		I64:    "I64",
		F64:    "F64",
	}
	dTypeToSize = [...]int{
		Bool:   1,
		U8:     1,
		I8:     1,
		F8E4M3: 1,
		F8E5M2: 1,
		U16:    2,
		I16:    2,
		F16:    2,
		BF16:   2,
		U32:    4,
		I32:    4,
		F32:    4,
		U64:    8,
		I64:    8,
		F64:    8,
	}
	stringToDType = map[string]DType{
		"BOOL":    Bool,
		"U8":      U8,
		"I8":      I8,
		"F8_E4M3": F8E4M3,
		"F8_E5M2": F8E5M2,
		"U16":     U16,
		"I16":     I16,
		"F16":     F16,
		"BF16":    BF16,
		"U32":     U32,
		"I32":     I32,
		"F32":     F32,
		"U64":     U64,
		"I64":     I64,
		"F64":     F64,
	}
)

// All returns every valid DType, in increasing enum order.
func All() []DType {
	all := make([]DType, 0, F64)
	for dt := Bool; dt <= F64; dt++ {
		all = append(all, dt)
	}
	return all
}

// Parse converts the safetensors string form of a data type (such as
// "F64" or "F8_E4M3") to a DType. Unknown strings produce an error
// wrapping ErrUnsupportedDType.
func Parse(s string) (DType, error) {
	dt, ok := stringToDType[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
	}
	return dt, nil
}

// Validate returns an error if the DType is not valid, otherwise nil.
func (dt DType) Validate() error {
	if dt == 0 || dt > F64 {
		return fmt.Errorf("%w: DType(%d)", ErrUnsupportedDType, dt)
	}
	return nil
}

// String returns a string representation of a DType.
func (dt DType) String() string {
	if dt.Validate() != nil {
		return fmt.Sprintf("DType(%d)", dt)
	}
	return dTypeToString[dt]
}

// Size returns the size in bytes of one element of this data type,
// or -1 if the DType value is invalid.
func (dt DType) Size() int {
	if dt.Validate() != nil {
		return -1
	}
	return dTypeToSize[dt]
}

// MarshalText satisfies encoding.TextMarshaler interface.
// The JSON form is derived from it by encoding/json.
func (dt DType) MarshalText() ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return []byte(dTypeToString[dt]), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler interface.
func (dt *DType) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*dt = v
	return nil
}
