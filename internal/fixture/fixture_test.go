// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fixture_test

import (
	"testing"

	"github.com/RIKEN-RCCS/dalotia/safetensors"
	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
	"github.com/RIKEN-RCCS/dalotia/safetensors/internal/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize(t *testing.T) {
	data, err := fixture.Serialize(nil)
	require.NoError(t, err)

	st, err := safetensors.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, data, st.Bytes())
	assert.Nil(t, st.Metadata())
	assert.Equal(t, []string{
		fixture.Attention,
		fixture.Embedding,
		fixture.EmbeddingFirstChanged,
	}, st.Names())
	assert.Equal(t, (6+60+60)*8, st.DataSize())

	t.Run("embedding", func(t *testing.T) {
		tv, err := st.Tensor(fixture.Embedding)
		require.NoError(t, err)
		assert.Equal(t, dtype.F64, tv.DType())
		assert.Equal(t, []int{3, 4, 5}, tv.Shape())

		values, err := safetensors.ValuesAs[float64](tv)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				for k := 0; k < 5; k++ {
					assert.Equal(t, float64(i*20+j*5+k), values[i*20+j*5+k], "index [%d,%d,%d]", i, j, k)
				}
			}
		}
	})

	t.Run("embedding_firstchanged", func(t *testing.T) {
		tv, err := st.Tensor(fixture.EmbeddingFirstChanged)
		require.NoError(t, err)
		assert.Equal(t, dtype.F64, tv.DType())
		assert.Equal(t, []int{4, 3, 5}, tv.Shape())

		values, err := safetensors.ValuesAs[float64](tv)
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			for j := 0; j < 3; j++ {
				for k := 0; k < 5; k++ {
					assert.Equal(t, float64(j*20+i*5+k), values[i*15+j*5+k], "index [%d,%d,%d]", i, j, k)
				}
			}
		}
	})

	t.Run("attention", func(t *testing.T) {
		tv, err := st.Tensor(fixture.Attention)
		require.NoError(t, err)
		assert.Equal(t, dtype.F64, tv.DType())
		assert.Equal(t, []int{2, 3}, tv.Shape())

		values, err := safetensors.ValuesAs[float64](tv)
		require.NoError(t, err)
		assert.Equal(t, make([]float64, 6), values)
	})
}

func TestSerialize_metadata(t *testing.T) {
	data, err := fixture.Serialize(map[string]string{"format": "pt"})
	require.NoError(t, err)

	st, err := safetensors.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"format": "pt"}, st.Metadata())
	assert.Equal(t, 3, st.Len())
}

func TestSerialize_deterministic(t *testing.T) {
	a, err := fixture.Serialize(nil)
	require.NoError(t, err)
	b, err := fixture.Serialize(nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
