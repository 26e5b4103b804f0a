// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"testing"
	"testing/iotest"

	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decodeSuccessCases = []struct {
	name string
	json string
	want Header
}{
	{
		"empty object",
		`{}`,
		Header{},
	},
	{
		"empty metadata",
		`{"__metadata__": {}}`,
		Header{},
	},
	{
		"null metadata",
		`{"__metadata__": null}`,
		Header{},
	},
	{
		"metadata",
		`{"__metadata__": {"foo": "bar", "baz": "qux"}}`,
		Header{Metadata: Metadata{"foo": "bar", "baz": "qux"}},
	},
	{
		"tensors sorted by offsets",
		`{"bar": {"dtype": "I8", "shape": [4, 5], "data_offsets": [6, 26]},` +
			`"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]}}`,
		Header{Tensors: TensorSlice{
			Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
			Tensor{Name: "bar", DType: dtype.I8, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 6, End: 26}},
		}},
	},
	{
		"tensors and metadata",
		`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
			`"bar": {"dtype": "F8_E4M3", "shape": [4, 5], "data_offsets": [6, 26]},` +
			`"__metadata__": {"foo": "bar", "baz": "qux"}}`,
		Header{
			Metadata: Metadata{"foo": "bar", "baz": "qux"},
			Tensors: TensorSlice{
				Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
				Tensor{Name: "bar", DType: dtype.F8E4M3, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 6, End: 26}},
			},
		},
	},
	{
		"zero-sized tensors keep their order of appearance",
		`{"z": {"dtype": "F64", "shape": [0, 5], "data_offsets": [8, 8]},` +
			`"s": {"dtype": "F64", "shape": [], "data_offsets": [0, 8]},` +
			`"a": {"dtype": "F64", "shape": [2, 0], "data_offsets": [8, 8]}}`,
		Header{Tensors: TensorSlice{
			Tensor{Name: "s", DType: dtype.F64, Shape: Shape{}, DataOffsets: DataOffsets{Begin: 0, End: 8}},
			Tensor{Name: "z", DType: dtype.F64, Shape: Shape{0, 5}, DataOffsets: DataOffsets{Begin: 8, End: 8}},
			Tensor{Name: "a", DType: dtype.F64, Shape: Shape{2, 0}, DataOffsets: DataOffsets{Begin: 8, End: 8}},
		}},
	},
	{
		"case-sensitive names",
		`{"Weight": {"dtype": "U8", "shape": [1], "data_offsets": [0, 1]},` +
			`"weight": {"dtype": "U8", "shape": [1], "data_offsets": [1, 2]}}`,
		Header{Tensors: TensorSlice{
			Tensor{Name: "Weight", DType: dtype.U8, Shape: Shape{1}, DataOffsets: DataOffsets{Begin: 0, End: 1}},
			Tensor{Name: "weight", DType: dtype.U8, Shape: Shape{1}, DataOffsets: DataOffsets{Begin: 1, End: 2}},
		}},
	},
	{
		"padding before and after",
		" \n\r\t" + `{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
			`"__metadata__": {"foo": "bar"}}` + " \n\r\t",
		Header{
			Metadata: Metadata{"foo": "bar"},
			Tensors: TensorSlice{
				Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
			},
		},
	},
}

var decodeFailureCases = []struct {
	name     string
	json     string
	kind     error
	contains string
}{
	{"bad trailing data, valid JSON token", "{}9", ErrMalformedHeader, "unexpected data after JSON object"},
	{"bad trailing data, invalid JSON token", "{}~", ErrMalformedHeader, "invalid character '~'"},
	{"second object", "{}{}", ErrMalformedHeader, "unexpected data after JSON object"},
	{"incomplete JSON", `{"foo`, ErrMalformedHeader, "failed to JSON-decode header"},
	{"bad JSON", `{1: 2}`, ErrMalformedHeader, "failed to JSON-decode header"},
	{"not an object", `[1, 2]`, ErrMalformedHeader, "expected '{', found ["},
	{"not UTF-8", "{\"\xff\": 1}", ErrMalformedHeader, "header is not valid UTF-8"},
	{
		"duplicate tensor",
		`{"foo": {"dtype": "U8", "shape": [1], "data_offsets": [0, 1]},` +
			`"foo": {"dtype": "U8", "shape": [1], "data_offsets": [1, 2]}}`,
		ErrMalformedHeader, `duplicate key "foo"`,
	},
	{"metadata is not object", `{"__metadata__": [1]}`, ErrMalformedHeader, "failed to interpret header metadata: expected JSON object"},
	{"bad metadata", `{"__metadata__": {"foo": 1}}`, ErrMalformedHeader, `found non-string value for key "foo"`},
	{"tensor is not object", `{"foo": 42}`, ErrMalformedHeader, `failed to interpret header tensor "foo": malformed header: expected JSON object`},
	{
		"dtype missing",
		`{"foo": {"shape": [2, 3], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `failed to interpret header tensor "foo": malformed header: "dtype" is missing`,
	},
	{
		"shape missing",
		`{"foo": {"dtype": "U8", "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `failed to interpret header tensor "foo": malformed header: "shape" is missing`,
	},
	{
		"data_offsets missing",
		`{"foo": {"dtype": "U8", "shape": [2, 3]}}`,
		ErrMalformedHeader, `failed to interpret header tensor "foo": malformed header: "data_offsets" is missing`,
	},
	{
		"unknown tensor key",
		`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6], "bar": "baz"}}`,
		ErrMalformedHeader, `failed to interpret header tensor "foo": malformed header: JSON object contains unknown keys`,
	},
	{
		"dtype is not string",
		`{"foo": {"dtype": 123, "shape": [2, 3], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `found non-string "dtype" value`,
	},
	{
		"dtype is null",
		`{"foo": {"dtype": null, "shape": [2, 3], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `found non-string "dtype" value`,
	},
	{
		"unsupported dtype",
		`{"foo": {"dtype": "X9", "shape": [2, 3], "data_offsets": [0, 6]}}`,
		dtype.ErrUnsupportedDType, `failed to interpret header tensor "foo": unsupported dtype: "X9"`,
	},
	{
		"shape is not array",
		`{"foo": {"dtype": "U8", "shape": 123, "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `invalid "shape": malformed header: found non-array value`,
	},
	{
		"shape item is not number",
		`{"foo": {"dtype": "U8", "shape": [2, "3"], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `invalid "shape": failed to interpret value at index 1: malformed header: value is not a number`,
	},
	{
		"shape item is float with fraction",
		`{"foo": {"dtype": "U8", "shape": [2, 3.0], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `failed to convert value "3.0" to int: invalid syntax`,
	},
	{
		"shape item is float with exponent",
		`{"foo": {"dtype": "U8", "shape": [2, 3e1], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `failed to convert value "3e1" to int: invalid syntax`,
	},
	{
		"shape item int too big",
		`{"foo": {"dtype": "U8", "shape": [2, 18446744073709551615], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `failed to convert value "18446744073709551615" to int: value out of range`,
	},
	{
		"shape item is negative",
		`{"foo": {"dtype": "U8", "shape": [2, -1], "data_offsets": [0, 6]}}`,
		ErrMalformedHeader, `invalid "shape": failed to interpret value at index 1: malformed header: value is negative: -1`,
	},
	{
		"data_offsets is not array",
		`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": 123}}`,
		ErrMalformedHeader, `invalid "data_offsets": malformed header: found non-array value`,
	},
	{
		"data_offsets len is not 2",
		`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [1, 2, 3]}}`,
		ErrMalformedHeader, `bad data-offsets length: expected 2, actual 3`,
	},
	{
		"data_offsets not ascending",
		`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [6, 0]}}`,
		ErrMalformedHeader, `data-offsets are not ascending: [6, 0]`,
	},
	{
		"data_offsets item is negative",
		`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, -1]}}`,
		ErrMalformedHeader, `value is negative: -1`,
	},
}

func TestDecode_Success(t *testing.T) {
	for _, tc := range decodeSuccessCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := Decode([]byte(tc.json))
			require.NoError(t, err)
			assert.Equal(t, tc.want, h)
		})
	}
}

func TestDecode_Failure(t *testing.T) {
	for _, tc := range decodeFailureCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := Decode([]byte(tc.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.ErrorContains(t, err, tc.contains)
			assert.Equal(t, Header{}, h)
		})
	}
}

func TestParse_Success(t *testing.T) {
	for _, tc := range decodeSuccessCases {
		want := tc.want
		want.ByteBufferOffset = 8 + len(tc.json)

		for _, byteBufferSize := range []int{0, 100} {
			t.Run(fmt.Sprintf("%s plus %d bytes", tc.name, byteBufferSize), func(t *testing.T) {
				h, err := Parse(makeData(tc.json, byteBufferSize))
				require.NoError(t, err)
				assert.Equal(t, want, h)
			})
		}
	}
}

func TestParse_Failure(t *testing.T) {
	for _, tc := range decodeFailureCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := Parse(makeData(tc.json, 0))
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, Header{}, h)
		})
	}

	testCases := []struct {
		name   string
		data   []byte
		kind   error
		errMsg string
	}{
		{"no data", nil, ErrTruncatedFile, "truncated file: header size is missing: 0 bytes available"},
		{"partial size", []byte{2, 0, 0}, ErrTruncatedFile, "truncated file: header size is missing: 3 bytes available"},
		{"size 0", makeData("", 0), ErrMalformedHeader, "malformed header: header size too small: 0"},
		{"size 1", makeData(" ", 0), ErrMalformedHeader, "malformed header: header size too small: 1"},
		{
			"size too large",
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			ErrMalformedHeader,
			"malformed header: header size too large: max 100000000, actual 18446744073709551615",
		},
		{
			"size larger than data",
			makeData("{}", 0)[:9],
			ErrTruncatedFile,
			"truncated file: header size is 2, only 1 bytes available",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := Parse(tc.data)
			require.EqualError(t, err, tc.errMsg)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, Header{}, h)
		})
	}
}

func TestRead_Success(t *testing.T) {
	for _, tc := range decodeSuccessCases {
		want := tc.want
		want.ByteBufferOffset = 8 + len(tc.json)

		for _, byteBufferSize := range []int{0, 100} {
			t.Run(fmt.Sprintf("%s plus %d bytes", tc.name, byteBufferSize), func(t *testing.T) {
				r := bytes.NewReader(makeData(tc.json, byteBufferSize))
				h, err := Read(r)
				require.NoError(t, err)
				assert.Equal(t, want, h)
				assert.Equal(t, byteBufferSize, r.Len())
			})
		}
	}
}

func TestRead_Failure(t *testing.T) {
	for _, tc := range decodeFailureCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := Read(bytes.NewReader(makeData(tc.json, 0)))
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, Header{}, h)
		})
	}

	t.Run("size too large", func(t *testing.T) {
		data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff} // max uint64
		h, err := Read(bytes.NewReader(data))
		require.EqualError(t, err, "malformed header: header size too large: max 100000000, actual 18446744073709551615")
		assert.Equal(t, Header{}, h)
	})

	t.Run("reader error reading size", func(t *testing.T) {
		data := []byte{2, 0, 0, 0, 0, 0, 0} // one byte is missing
		h, err := Read(iotest.DataErrReader(bytes.NewReader(data)))
		require.EqualError(t, err, "truncated file: failed to read header size: unexpected EOF")
		assert.ErrorIs(t, err, ErrTruncatedFile)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Equal(t, Header{}, h)
	})

	t.Run("reader error reading JSON", func(t *testing.T) {
		data := makeData(`{"foo": 1}`, 0)[:12]
		h, err := Read(iotest.DataErrReader(bytes.NewReader(data)))
		require.EqualError(t, err, "truncated file: failed to read header: unexpected EOF")
		assert.ErrorIs(t, err, ErrTruncatedFile)
		assert.Equal(t, Header{}, h)
	})
}

func TestReadWithLimit(t *testing.T) {
	data := makeData(`{"a":{"dtype":"U8","shape":[1],"data_offsets":[0,1]}}`, 1)

	t.Run("within limit", func(t *testing.T) {
		h, err := ReadWithLimit(bytes.NewReader(data), 53)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, h.Tensors.Names())
	})

	t.Run("over limit", func(t *testing.T) {
		h, err := ReadWithLimit(bytes.NewReader(data), 52)
		require.EqualError(t, err, "malformed header: header size too large: max 52, actual 53")
		assert.ErrorIs(t, err, ErrMalformedHeader)
		assert.Equal(t, Header{}, h)
	})

	t.Run("non-positive limit means MaxSize", func(t *testing.T) {
		for _, limit := range []int{0, -1} {
			_, err := ReadWithLimit(bytes.NewReader(data), limit)
			assert.NoError(t, err)
		}
	})
}

func makeData(json string, byteBufferSize int) []byte {
	data := make([]byte, 8+len(json)+byteBufferSize)
	binary.LittleEndian.PutUint64(data, uint64(len(json)))
	copy(data[8:len(json)+8], json)
	for i := len(json) + 8; i < len(data); i++ {
		data[i] = 0xff
	}
	return data
}
