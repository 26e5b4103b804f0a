// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import (
	"errors"
	"math"
	"math/bits"
)

var (
	errIntOverflow        = errors.New("int overflow")
	errInt64SumOverflow   = errors.New("int64 sum overflow")
	errUnexpectedNegative = errors.New("unexpected negative number")
)

// checkedMul multiplies two non-negative ints and checks for overflow.
func checkedMul(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, errUnexpectedNegative
	}
	hi, lo := bits.Mul(uint(a), uint(b))
	if hi != 0 || lo > math.MaxInt {
		return 0, errIntOverflow
	}
	return int(lo), nil
}

// checkedAdd adds two non-negative ints and checks for overflow.
func checkedAdd(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, errUnexpectedNegative
	}
	if a > math.MaxInt-b {
		return 0, errIntOverflow
	}
	return a + b, nil
}

func checkedAddNonNegInt64(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, errUnexpectedNegative
	}
	if a == 0 || b == 0 {
		return a + b, nil
	}
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 || sum > math.MaxInt64 {
		return 0, errInt64SumOverflow
	}
	return int64(sum), nil
}
