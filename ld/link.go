// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	debugelf "debug/elf"

	"github.com/aclements/go-link/elf"
	"github.com/aclements/go-link/linker"
	"github.com/aclements/go-link/loader"
)

// DefaultInterp is the dynamic loader requested by emitted executables.
const DefaultInterp = "/lib64/ld-linux-x86-64.so.2"

// NewOutputHeader returns the header of an emitted executable: an ELF64
// little-endian SysV PIE for x86-64. This is the only image shape the
// linker emits, though the codec reads others.
func NewOutputHeader() elf.Header {
	return elf.Header{
		Class:      debugelf.ELFCLASS64,
		Endianness: debugelf.ELFDATA2LSB,
		Version:    1,
		ABI:        debugelf.ELFOSABI_NONE,
		Type:       debugelf.ET_DYN,
		Machine:    debugelf.EM_X86_64,
	}
}

// Link runs the whole pipeline over the given input paths: demand-loading,
// symbol resolution, dead-code elimination, section merge, the gnu-ld
// compatibility pass, dynamic relocation, layout, and program-segment
// synthesis. root is forced into the gc root set alongside _start. The
// returned container is ready for ToWriter.
func Link(paths []string, root []byte, interp string, onError loader.ErrorHandler) (*elf.File, error) {
	states := make([]loader.State, 0, len(paths))
	for _, p := range paths {
		states = append(states, &loader.Path{Path: p})
	}

	l := linker.New()
	if err := l.Link(states, [][]byte{root}, onError); err != nil {
		return nil, err
	}
	l.GC(root)

	f := elf.NewFile(NewOutputHeader())
	f.Sections = append(f.Sections, elf.NullSection())
	f.Sections = append(f.Sections, elf.NewSection([]byte(".interp"), debugelf.SHT_PROGBITS,
		debugelf.SHF_ALLOC, elf.Raw(append([]byte(interp), 0)), 0, 0))

	c := NewCollector(f)
	c.Collect(l)
	f, err := c.IntoElf()
	if err != nil {
		return nil, err
	}

	if err := f.MakeSymtabGnuldCompat(); err != nil {
		return nil, err
	}
	if err := Relocate(f); err != nil {
		return nil, err
	}
	if err := Relayout(f); err != nil {
		return nil, err
	}
	segs, err := Segments(f)
	if err != nil {
		return nil, err
	}
	f.Segments = segs
	return f, nil
}
