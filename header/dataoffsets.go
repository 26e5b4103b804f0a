// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"encoding/json"
)

// DataOffsets describes "[Begin, End)" byte range of the tensor's data
// within the safetensors byte-buffer.
//
// Tensor data starts at Begin byte index (inclusive) and ends at End byte
// index (exclusive). Both positions are relative to the beginning of the
// byte-buffer.
type DataOffsets struct {
	// Begin is the lower bound byte index (included).
	Begin int
	// End is the upper bound byte index (excluded).
	End int
}

// UnmarshalJSON deserializes a DataOffsets object from the JSON
// value expected from safetensors format (that is, an array of two
// non-negative integers in ascending order).
func (a *DataOffsets) UnmarshalJSON(b []byte) error {
	decoded, err := decodeNonNegInts(b)
	if err != nil {
		return err
	}
	if l := len(decoded); l != 2 {
		return malformed("bad data-offsets length: expected 2, actual %d", l)
	}
	if decoded[0] > decoded[1] {
		return malformed("data-offsets are not ascending: [%d, %d]", decoded[0], decoded[1])
	}
	*a = DataOffsets{
		Begin: decoded[0],
		End:   decoded[1],
	}
	return nil
}

// MarshalJSON serializes a DataOffsets object to a value appropriate for
// safetensors format (that is, an array of two numbers).
func (a DataOffsets) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{a.Begin, a.End})
}
