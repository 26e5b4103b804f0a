// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package float8 provides the 8-bit floating point element types of
// safetensors F8_E4M3 and F8_E5M2 tensors.
package float8

import (
	"math"

	"github.com/x448/float16"
)

// E4M3 is an 8-bit floating-point value with 1 sign bit, 4 exponent bits
// (bias 7) and 3 mantissa bits, stored as raw bits. It has no infinities;
// S.1111.111 is NaN.
type E4M3 uint8

// Float32 returns the exact float32 value of e.
func (e E4M3) Float32() float32 {
	sign := float32(1)
	if e&0x80 != 0 {
		sign = -1
	}
	exp := int(e>>3) & 0x0f
	man := float64(e & 0x07)
	switch {
	case exp == 0x0f && man == 7:
		return float32(math.NaN())
	case exp == 0:
		return sign * float32(math.Ldexp(man/8, -6))
	}
	return sign * float32(math.Ldexp(1+man/8, exp-7))
}

// E5M2 is an 8-bit floating-point value with 1 sign bit, 5 exponent bits
// (bias 15) and 2 mantissa bits, stored as raw bits. It is the upper half
// of an IEEE 754 binary16 value.
type E5M2 uint8

// Float32 returns the exact float32 value of e.
func (e E5M2) Float32() float32 {
	return float16.Frombits(uint16(e) << 8).Float32()
}
