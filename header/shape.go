// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import "encoding/json"

// The Shape of a tensor. An empty Shape describes a scalar.
type Shape []int

// MarshalJSON prevents a nil Shape to be serialized as "null",
// preferring an empty array "[]" instead. This allows the JSON
// value to be compliant with safetensors format.
func (s Shape) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// UnmarshalJSON deserializes a Shape from a JSON array of non-negative
// integers. An empty array produces an empty, non-nil Shape.
func (s *Shape) UnmarshalJSON(b []byte) error {
	decoded, err := decodeNonNegInts(b)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// Clone returns a copy of the Shape. It returns nil for an empty Shape.
func (s Shape) Clone() Shape {
	if len(s) == 0 {
		return nil
	}
	c := make(Shape, len(s))
	copy(c, s)
	return c
}
