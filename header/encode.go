// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
)

// Alignment is the byte multiple the encoded header is padded to, so that
// the byte-buffer starts 8-byte aligned within the file.
const Alignment = 8

type jsonTensor struct {
	DType       dtype.DType `json:"dtype"`
	Shape       Shape       `json:"shape"`
	DataOffsets DataOffsets `json:"data_offsets"`
}

// Encode serializes the Header to its safetensors JSON form, padded with
// trailing spaces to a multiple of Alignment bytes.
//
// The output is deterministic: the "__metadata__" object comes first (only
// if Metadata is not empty) with keys in ascending order, followed by the
// tensors sorted by DataOffsets, and then by name.
//
// Encode does not validate the Header; it only fails for values that
// cannot be represented, such as invalid DTypes, and for encoded headers
// larger than MaxSize.
func Encode(h Header) ([]byte, error) {
	return encode(h, MaxSize)
}

func encode(h Header, sizeLimit int) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(key string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeJSON(&buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		return nil
	}

	if len(h.Metadata) > 0 {
		if err := writeKey(metadataKey); err != nil {
			return nil, err
		}
		if err := writeJSON(&buf, map[string]string(h.Metadata)); err != nil {
			return nil, fmt.Errorf("failed to encode header metadata: %w", err)
		}
	}

	ts := make(TensorSlice, len(h.Tensors))
	copy(ts, h.Tensors)
	sort.Sort(TensorSliceByDataOffsets{ts})

	for _, t := range ts {
		if err := writeKey(t.Name); err != nil {
			return nil, err
		}
		jt := jsonTensor{DType: t.DType, Shape: t.Shape, DataOffsets: t.DataOffsets}
		if err := writeJSON(&buf, jt); err != nil {
			return nil, fmt.Errorf("failed to encode header tensor %q: %w", t.Name, err)
		}
	}
	buf.WriteByte('}')

	if extra := (Alignment - buf.Len()%Alignment) % Alignment; extra > 0 {
		buf.Write(bytes.Repeat([]byte{' '}, extra))
	}
	if buf.Len() > sizeLimit {
		return nil, malformed("header size too large: max %d, actual %d", sizeLimit, buf.Len())
	}
	return buf.Bytes(), nil
}

// writeJSON appends the JSON encoding of v to buf, without HTML escaping
// and without the trailing newline added by json.Encoder.
// Maps are encoded with sorted keys.
func writeJSON(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// Write encodes the Header and writes it to "w" preceded by its
// 8-byte little-endian size. It returns the number of bytes written.
func Write(w io.Writer, h Header) (int64, error) {
	encoded, err := Encode(h)
	if err != nil {
		return 0, err
	}
	var arr [8]byte
	binary.LittleEndian.PutUint64(arr[:], uint64(len(encoded)))
	n, err := w.Write(arr[:])
	if err != nil {
		return int64(n), fmt.Errorf("failed to write header size: %w", err)
	}
	m, err := w.Write(encoded)
	if err != nil {
		return int64(n + m), fmt.Errorf("failed to write header: %w", err)
	}
	return int64(n + m), nil
}

// AppendEncoded appends the size-prefixed encoded Header to buf.
func AppendEncoded(buf []byte, h Header) ([]byte, error) {
	encoded, err := Encode(h)
	if err != nil {
		return nil, err
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(encoded)))
	return append(buf, encoded...), nil
}
