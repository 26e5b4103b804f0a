// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
)

// Parse reads the header of a whole safetensors file held in memory:
// the 8-byte little-endian size, followed by as many bytes of JSON.
//
// The byte-buffer following the header is not inspected, and NO
// validation is performed on the obtained Header (see Header.Validate).
func Parse(buf []byte) (Header, error) {
	if len(buf) < 8 {
		return Header{}, fmt.Errorf("%w: header size is missing: %d bytes available", ErrTruncatedFile, len(buf))
	}
	size, err := checkSize(binary.LittleEndian.Uint64(buf), MaxSize)
	if err != nil {
		return Header{}, err
	}
	if avail := len(buf) - 8; size > avail {
		return Header{}, fmt.Errorf("%w: header size is %d, only %d bytes available", ErrTruncatedFile, size, avail)
	}
	h, err := Decode(buf[8 : 8+size])
	if err != nil {
		return Header{}, err
	}
	h.ByteBufferOffset = 8 + size
	return h, nil
}

// Read reads and parses from "r" the initial part of a safetensors
// data stream: the 8-byte little-endian size, followed by as many bytes
// of JSON. After a successful call, "r" is positioned at the beginning
// of the byte-buffer.
//
// Note that after successfully reading and parsing, NO validation is
// performed on the obtained Header.
func Read(r io.Reader) (Header, error) {
	return ReadWithLimit(r, MaxSize)
}

// ReadWithLimit is like Read, but fails with ErrMalformedHeader if the
// declared JSON size exceeds sizeLimit, before allocating memory for it.
// A sizeLimit <= 0, or greater than MaxSize, is replaced by MaxSize.
func ReadWithLimit(r io.Reader, sizeLimit int) (Header, error) {
	if sizeLimit <= 0 || sizeLimit > MaxSize {
		sizeLimit = MaxSize
	}
	var arr [8]byte
	if _, err := io.ReadFull(r, arr[:]); err != nil {
		return Header{}, fmt.Errorf("%w: failed to read header size: %w", ErrTruncatedFile, err)
	}
	size, err := checkSize(binary.LittleEndian.Uint64(arr[:]), sizeLimit)
	if err != nil {
		return Header{}, err
	}
	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("%w: failed to read header: %w", ErrTruncatedFile, err)
	}
	h, err := Decode(buf)
	if err != nil {
		return Header{}, err
	}
	h.ByteBufferOffset = 8 + size
	return h, nil
}

func checkSize(size uint64, limit int) (int, error) {
	switch {
	case size < 2: // a bare minimum header is "{}"
		return 0, malformed("header size too small: %d", size)
	case size > uint64(limit):
		return 0, malformed("header size too large: max %d, actual %d", limit, size)
	}
	return int(size), nil
}

// Decode interprets the JSON part of a safetensors header.
//
// The JSON value must be a single object, optionally surrounded by
// whitespace (commonly used as padding). Each member is either the
// reserved "__metadata__" object of string values, or a tensor object
// with exactly the keys "dtype", "shape" and "data_offsets".
//
// The resulting Header.Tensors are sorted by ascending DataOffsets; tensors
// with equal offsets keep their order of appearance. NO layout validation
// is performed (see Header.Validate).
func Decode(data []byte) (Header, error) {
	if !utf8.Valid(data) {
		return Header{}, malformed("header is not valid UTF-8")
	}
	entries, err := decodeEntries(data)
	if err != nil {
		return Header{}, err
	}
	var h Header
	for _, e := range entries {
		e.addTo(&h)
	}
	sort.SliceStable(h.Tensors, func(i, j int) bool {
		return h.Tensors[i].DataOffsets.Less(h.Tensors[j].DataOffsets)
	})
	return h, nil
}

// entry is a top-level member of the header object, already classified
// as either a tensorEntry or a metadataEntry.
type entry interface {
	addTo(*Header)
}

type tensorEntry Tensor

func (e tensorEntry) addTo(h *Header) {
	h.Tensors = append(h.Tensors, Tensor(e))
}

type metadataEntry Metadata

func (e metadataEntry) addTo(h *Header) {
	if len(e) > 0 {
		h.Metadata = Metadata(e)
	}
}

func decodeEntries(data []byte) ([]entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var entries []entry
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformedJSON(err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, malformed("unexpected object key %v", tok)
		}
		if _, dup := seen[key]; dup {
			return nil, malformed("duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err = dec.Decode(&raw); err != nil {
			return nil, malformedJSON(err)
		}
		e, err := decodeEntry(key, raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	// take care of possible padding spaces after JSON object
	if tok, err := dec.Token(); err == nil {
		return nil, malformed("unexpected data after JSON object: %v", tok)
	} else if err != io.EOF {
		return nil, malformedJSON(err)
	}
	return entries, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return malformedJSON(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return malformed("expected '%s', found %v", want, tok)
	}
	return nil
}

func malformedJSON(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: failed to JSON-decode header: %w", ErrMalformedHeader, err)
}

func decodeEntry(key string, raw json.RawMessage) (entry, error) {
	if key == metadataKey {
		m, err := decodeMetadata(raw)
		if err != nil {
			return nil, err
		}
		return metadataEntry(m), nil
	}
	t, err := decodeTensor(key, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to interpret header tensor %q: %w", key, err)
	}
	return tensorEntry(t), nil
}

func decodeMetadata(raw json.RawMessage) (Metadata, error) {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, malformed("failed to interpret header metadata: expected JSON object")
	}
	if len(values) == 0 {
		return nil, nil
	}
	metadata := make(Metadata, len(values))
	for key, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, malformed("failed to interpret header metadata: found non-string value for key %q", key)
		}
		metadata[key] = s
	}
	return metadata, nil
}

func decodeTensor(name string, raw json.RawMessage) (t Tensor, err error) {
	var fields map[string]json.RawMessage
	if err = json.Unmarshal(raw, &fields); err != nil {
		return t, malformed("expected JSON object")
	}
	t.Name = name
	if t.DType, err = decodeTensorDType(fields); err != nil {
		return
	}
	rawShape, err := requireField(fields, "shape")
	if err != nil {
		return
	}
	if err = t.Shape.UnmarshalJSON(rawShape); err != nil {
		return t, fmt.Errorf(`invalid "shape": %w`, err)
	}
	rawOffsets, err := requireField(fields, "data_offsets")
	if err != nil {
		return
	}
	if err = t.DataOffsets.UnmarshalJSON(rawOffsets); err != nil {
		return t, fmt.Errorf(`invalid "data_offsets": %w`, err)
	}
	if len(fields) != 3 {
		err = malformed("JSON object contains unknown keys")
	}
	return
}

func requireField(fields map[string]json.RawMessage, key string) (json.RawMessage, error) {
	v, ok := fields[key]
	if !ok {
		return nil, malformed("%q is missing", key)
	}
	return v, nil
}

func decodeTensorDType(fields map[string]json.RawMessage) (dtype.DType, error) {
	raw, err := requireField(fields, "dtype")
	if err != nil {
		return 0, err
	}
	var s string
	if err = json.Unmarshal(raw, &s); err != nil || bytes.Equal(raw, []byte("null")) {
		return 0, malformed(`found non-string "dtype" value`)
	}
	return dtype.Parse(s)
}

func decodeNonNegInts(b []byte) ([]int, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformedJSON(err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, malformed("found non-array value")
	}
	values := make([]int, len(items))
	for i, item := range items {
		var err error
		if values[i], err = convertNonNegInt(item); err != nil {
			return nil, fmt.Errorf("failed to interpret value at index %d: %w", i, err)
		}
	}
	return values, nil
}

func convertNonNegInt(value any) (int, error) {
	jNum, ok := value.(json.Number)
	if !ok {
		return 0, malformed("value is not a number")
	}
	num, err := strconv.ParseInt(jNum.String(), 10, strconv.IntSize)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, malformed("failed to convert value %q to int: %v", jNum.String(), err)
	}
	if num < 0 {
		return 0, malformed("value is negative: %d", num)
	}
	return int(num), nil
}
