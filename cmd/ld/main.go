// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ld links relocatable objects and archives into a
// position-independent executable for x86-64.
//
// Usage:
//
//	ld root-sym input...
//
// Inputs may be ELF relocatable objects or ar archives; archive members
// are only admitted if they supply a wanted symbol. The output path and
// the requested dynamic loader come from the LD_OUTPUT and LD_INTERP
// environment variables.
package main

import (
	"log"
	"os"

	"github.com/aclements/go-link/ld"
	"github.com/aclements/go-link/loader"
	"github.com/xyproto/env/v2"
)

func main() {
	log.SetPrefix("ld: ")
	log.SetFlags(0)
	if len(os.Args) < 3 {
		log.Fatal("usage: ld root-sym input...")
	}
	root := []byte(os.Args[1])
	inputs := os.Args[2:]

	output := env.Str("LD_OUTPUT", "a.out")
	interp := env.Str("LD_INTERP", ld.DefaultInterp)

	onError := func(err error, name string) []loader.State {
		log.Printf("%s: %v", name, err)
		return nil
	}

	f, err := ld.Link(inputs, root, interp, onError)
	if err != nil {
		log.Fatal(err)
	}

	out, err := os.OpenFile(output, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		log.Fatal(err)
	}
	if err := f.ToWriter(out); err != nil {
		out.Close()
		log.Fatal(err)
	}
	if err := out.Chmod(0755); err != nil {
		log.Fatal(err)
	}
	if err := out.Close(); err != nil {
		log.Fatal(err)
	}
}
