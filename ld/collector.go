// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ld assembles a linked ELF image: it merges the linker's
// surviving objects into output sections, rewrites input relocations into
// dynamic relocations, lays out file offsets and virtual addresses, and
// synthesizes program segments.
//
// Precondition violations in this package come from bugs upstream, not
// from malformed input, and panic.
package ld

import (
	"bytes"
	"fmt"
	"sort"

	debugelf "debug/elf"

	"github.com/aclements/go-link/elf"
	"github.com/aclements/go-link/linker"
)

// canonicalPrefixes are output bucket names: an input section whose name
// starts with one of these merges into a bucket of exactly that name.
// Everything else buckets under its full name.
var canonicalPrefixes = [][]byte{
	[]byte(".bss"),
	[]byte(".rodata"),
	[]byte(".data"),
	[]byte(".text"),
}

func bucketName(name []byte) []byte {
	for _, p := range canonicalPrefixes {
		if bytes.HasPrefix(name, p) {
			return p
		}
	}
	return name
}

// A Collector merges link objects into output sections.
type Collector struct {
	file   *elf.File
	symtab elf.Symbols

	// index maps bucket names to section indices in file. Buckets keep
	// insertion order because they live in file.Sections.
	index map[string]int

	// relocs accumulates input relocations per bucket index.
	relocs map[int]elf.Relocations
}

// NewCollector wraps an output container. Pre-seeded sections (the null
// section, .interp) become buckets under their own names.
func NewCollector(f *elf.File) *Collector {
	c := &Collector{
		file:   f,
		index:  make(map[string]int),
		relocs: make(map[int]elf.Relocations),
	}
	if len(f.Sections) == 0 {
		f.Sections = append(f.Sections, elf.NullSection())
	}
	for i, sec := range f.Sections {
		c.index[string(sec.Name)] = i
	}
	return c
}

// Collect merges every surviving object of l and rewrites the merged
// symbol table onto the output sections.
func (c *Collector) Collect(l *linker.Linker) {
	lids := make([]int, 0, len(l.Objects))
	for lid := range l.Objects {
		lids = append(lids, lid)
	}
	sort.Ints(lids)

	type target struct{ shndx, off int }
	inputMap := make(map[int]target, len(lids))
	for _, lid := range lids {
		obj := l.Objects[lid]
		if obj.Section == nil {
			continue
		}
		shndx, off := c.merge(obj.Section, obj.Relocs)
		inputMap[lid] = target{shndx, off}
	}

	for _, loc := range l.Symtab {
		sym := loc.Sym
		if _, defined := sym.DefinedIn(); defined {
			t, ok := inputMap[loc.Obj]
			if !ok {
				panic(fmt.Sprintf("linker emitted dangling link %d -> %v", loc.Obj, &sym))
			}
			sym.Shndx = debugelf.SectionIndex(t.shndx)
			sym.Value += uint64(t.off)
		}
		// Undefined, absolute and common symbols pass through unchanged.
		c.symtab = append(c.symtab, sym)
	}
}

// merge appends sec's content to its output bucket and returns the bucket
// index and the offset the content landed at.
func (c *Collector) merge(sec *elf.Section, relocs elf.Relocations) (int, int) {
	name := bucketName(sec.Name)

	var shndx, off int
	if i, ok := c.index[string(name)]; ok {
		shndx = i
		dst := c.file.Sections[i]
		switch content := sec.Content.(type) {
		case elf.Raw:
			align := dst.Header.Addralign
			if sec.Header.Addralign > align {
				align = sec.Header.Addralign
			}
			dst.Header.Addralign = align

			raw, ok := dst.Raw()
			if !ok {
				panic(fmt.Sprintf("merging raw %s into non-raw bucket %s", sec.Name, dst.Name))
			}
			if align > 0 && uint64(len(raw))%align != 0 {
				raw = append(raw, make(elf.Raw, align-uint64(len(raw))%align)...)
			}
			off = len(raw)
			dst.Content = append(raw, content...)
		case elf.NoBits:
			off = int(dst.Header.Size)
			dst.Header.Size += sec.Header.Size
		default:
			panic(fmt.Sprintf("merging %s: content %T cannot be merged", sec.Name, content))
		}
	} else {
		shndx = len(c.file.Sections)
		sec.Name = name
		c.file.Sections = append(c.file.Sections, sec)
		c.index[string(name)] = shndx
	}

	c.relocs[shndx] = append(c.relocs[shndx], relocs...)
	return shndx, off
}

// IntoElf appends the metadata sections (.strtab, .symtab, one
// .rela<bucket> per bucket with relocations, .shstrtab), lays the image
// out, and returns the container.
func (c *Collector) IntoElf() (*elf.File, error) {
	f := c.file

	shndxStrtab := len(f.Sections)
	f.Sections = append(f.Sections, elf.NewSection([]byte(".strtab"), debugelf.SHT_STRTAB,
		0, elf.NewStrtab(), 0, 0))

	shndxSymtab := len(f.Sections)
	firstGlobal := 0
	for i := range c.symtab {
		if c.symtab[i].Bind == debugelf.STB_GLOBAL {
			firstGlobal = i
			break
		}
	}
	f.Sections = append(f.Sections, elf.NewSection([]byte(".symtab"), debugelf.SHT_SYMTAB,
		0, c.symtab, uint32(shndxStrtab), uint32(firstGlobal)))

	buckets := make([]int, 0, len(c.relocs))
	for shndx := range c.relocs {
		buckets = append(buckets, shndx)
	}
	sort.Ints(buckets)
	for _, shndx := range buckets {
		relocs := c.relocs[shndx]
		if len(relocs) == 0 {
			continue
		}
		name := append([]byte(".rela"), f.Sections[shndx].Name...)
		f.Sections = append(f.Sections, elf.NewSection(name, debugelf.SHT_RELA,
			0, relocs, uint32(shndxSymtab), uint32(shndx)))
	}

	f.Sections = append(f.Sections, elf.NewSection([]byte(".shstrtab"), debugelf.SHT_STRTAB,
		0, elf.NewStrtab(), 0, 0))

	if err := Relayout(f); err != nil {
		return nil, err
	}
	return f, nil
}
