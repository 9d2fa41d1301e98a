// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command findsym prints the inputs that transitively contain a symbol.
//
// Usage:
//
//	findsym needle path...
//
// Paths may be ELF objects or ar archives. Only inputs that could define
// needle are fully loaded; the rest are pruned by the archive symbol
// index and per-object bloom filters, and findsym reports how effective
// that pruning was.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-link/bloom"
	"github.com/aclements/go-link/loader"
	"github.com/aclements/go-moremath/stats"
)

func main() {
	log.SetPrefix("findsym: ")
	log.SetFlags(0)
	if len(os.Args) < 3 {
		log.Fatal("usage: findsym needle path...")
	}
	needle := []byte(os.Args[1])

	states := make([]loader.State, 0, len(os.Args)-2)
	for _, p := range os.Args[2:] {
		states = append(states, &loader.Path{Path: p})
	}

	onError := func(err error, name string) []loader.State {
		log.Printf("%s: %v", name, err)
		return nil
	}

	states = loader.LoadIfAll(states, [][]byte{needle}, onError)

	var matches []*loader.Object
	// Members that did not match stay in the Elf state; sample whether
	// the bloom filter alone was enough to reject them.
	var rejects stats.Sample
	hash := bloom.Hash(needle)
	for _, s := range states {
		switch s := s.(type) {
		case *loader.Object:
			matches = append(matches, s)
		case *loader.Elf:
			if s.Bloom().Contains(hash) {
				rejects.Xs = append(rejects.Xs, 0)
			} else {
				rejects.Xs = append(rejects.Xs, 1)
			}
		}
	}

	fmt.Printf("%d objects matched\n", len(matches))
	for _, m := range matches {
		fmt.Printf("  - %s\n", m.Name())
	}
	if len(rejects.Xs) > 0 {
		fmt.Printf("bloom filter rejected %.0f%% of %d non-matching members before scan\n",
			100*rejects.Mean(), len(rejects.Xs))
	}
}
