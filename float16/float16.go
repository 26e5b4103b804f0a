// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package float16 provides the 16-bit floating point element types
// of safetensors F16 and BF16 tensors.
package float16

import (
	"math"

	"github.com/x448/float16"
)

// F16 is an IEEE 754 half-precision floating-point value, stored as its
// raw bits.
type F16 = float16.Float16

// F16FromBits returns the F16 with the given IEEE 754 binary16 bits.
func F16FromBits(b uint16) F16 {
	return float16.Frombits(b)
}

// F16FromFloat32 converts f to the nearest F16, rounding to nearest even.
func F16FromFloat32(f float32) F16 {
	return float16.Fromfloat32(f)
}

// BF16 is a brain floating-point value: the upper 16 bits of
// an IEEE 754 binary32 value.
type BF16 uint16

// BF16FromFloat32 converts f to the nearest BF16, rounding to nearest even.
// NaN values stay NaN.
func BF16FromFloat32(f float32) BF16 {
	u := math.Float32bits(f)
	if f != f {
		return BF16(u>>16 | 0x0040)
	}
	rounding := (u>>16)&1 + 0x7fff
	return BF16((u + rounding) >> 16)
}

// Bits returns the raw bits of the value.
func (b BF16) Bits() uint16 {
	return uint16(b)
}

// Float32 returns the exact float32 value of b.
func (b BF16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}
