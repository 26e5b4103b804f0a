// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fixture builds the reference tensor set stored in the
// repository test file "model.safetensors".
package fixture

import (
	"fmt"

	"github.com/RIKEN-RCCS/dalotia/safetensors"
	"github.com/RIKEN-RCCS/dalotia/safetensors/dtype"
)

// Tensor names of the fixture.
const (
	Embedding             = "embedding"
	EmbeddingFirstChanged = "embedding_firstchanged"
	Attention             = "attention"
)

// EmbeddingShape is the shape of the Embedding tensor. EmbeddingFirstChanged
// has the first two dimensions swapped.
var EmbeddingShape = []int{3, 4, 5}

// AttentionShape is the shape of the all-zeros Attention tensor.
var AttentionShape = []int{2, 3}

// Tensors returns the fixture tensors, all of type F64:
//
//   - Embedding holds 0, 1, ... 59 in row-major order;
//   - EmbeddingFirstChanged is Embedding with axes (1, 0, 2) permuted,
//     stored contiguously, so that element [i][j][k] is j*20 + i*5 + k;
//   - Attention is zero-filled.
func Tensors() (map[string]safetensors.TensorView, error) {
	n := EmbeddingShape[0] * EmbeddingShape[1] * EmbeddingShape[2]
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i)
	}
	embedding, err := safetensors.NewTypedView(dtype.F64, EmbeddingShape, values)
	if err != nil {
		return nil, fmt.Errorf("failed to build %q: %w", Embedding, err)
	}

	strided, err := safetensors.NewStrided(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to build %q: %w", EmbeddingFirstChanged, err)
	}
	permuted, err := strided.Permute(1, 0, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to build %q: %w", EmbeddingFirstChanged, err)
	}

	attention, err := safetensors.NewTypedView(dtype.F64, AttentionShape,
		make([]float64, AttentionShape[0]*AttentionShape[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to build %q: %w", Attention, err)
	}

	return map[string]safetensors.TensorView{
		Embedding:             embedding,
		EmbeddingFirstChanged: permuted.Contiguous(),
		Attention:             attention,
	}, nil
}

// Serialize returns the fixture encoded as a safetensors file.
func Serialize(metadata map[string]string) ([]byte, error) {
	tensors, err := Tensors()
	if err != nil {
		return nil, err
	}
	return safetensors.Serialize(tensors, metadata)
}
