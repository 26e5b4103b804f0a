// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command stfixture writes the reference tensor set used by the tests of
// other safetensors implementations, then reads it back and lists its
// tensors.
//
// Usage:
//
//	stfixture [-o path] [-meta key=value]...
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/RIKEN-RCCS/dalotia/safetensors"
	"github.com/RIKEN-RCCS/dalotia/safetensors/internal/fixture"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("stfixture: ")

	output := flag.String("o", "model.safetensors", "output file `path`")
	metadata := map[string]string{}
	flag.Func("meta", "add a `key=value` metadata entry (repeatable)", func(s string) error {
		key, value, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return errors.New("expected key=value")
		}
		metadata[key] = value
		return nil
	})
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := write(*output, metadata); err != nil {
		log.Fatal(err)
	}
	if err := list(*output); err != nil {
		log.Fatal(err)
	}
}

func write(path string, metadata map[string]string) (err error) {
	tensors, err := fixture.Tensors()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if err = safetensors.SerializeTo(f, tensors, metadata); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func list(path string) error {
	mf, err := safetensors.OpenFile(path)
	if err != nil {
		return err
	}
	defer mf.Close()

	metadata := mf.Metadata()
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Printf("metadata %s=%s\n", key, metadata[key])
	}
	for _, nt := range mf.Tensors() {
		fmt.Printf("%s %s %v\n", nt.Name, nt.TensorView.DType(), nt.TensorView.Shape())
	}
	return nil
}
