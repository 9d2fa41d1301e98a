// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"debug/elf"
	"fmt"
	"sort"
)

// MakeSymtabGnuldCompat reorders every SYMTAB section the way GNU ld lays
// its symbol tables out, so tools that rely on specific gnu-ld behavior
// keep working:
//
//   - globals are moved after locals and sorted by value
//   - the original SECTION symbols are dissolved into relocation addends
//   - fresh SECTION symbols, one per section at a matching index, plus a
//     trailing FILE symbol are inserted
//
// Relocation sections linked to the symbol table are remapped through the
// new ordering. SyncAll runs afterwards.
func (f *File) MakeSymtabGnuldCompat() error {
	for i := range f.Sections {
		if f.Sections[i].Header.Type == elf.SHT_SYMTAB {
			f.makeSymtabGnuldCompat(i)
		}
	}
	return f.SyncAll()
}

type symEntry struct {
	oi  int // original index, or a fresh placeholder past the table end
	sym Symbol
}

func (f *File) makeSymtabGnuldCompat(shndx int) {
	syms, ok := f.Sections[shndx].Symbols()
	if !ok {
		panic(fmt.Sprintf("section %d is SYMTAB but has no symbol content", shndx))
	}
	originalSize := len(syms)

	// Pull SECTION symbols into a side table; partition the rest.
	secSyms := make(map[int]Symbol)
	var ls, gs []symEntry
	for i, sym := range syms {
		switch {
		case sym.Type == elf.STT_SECTION:
			secSyms[i] = sym
		case sym.Bind == elf.STB_GLOBAL:
			gs = append(gs, symEntry{i, sym})
		default:
			ls = append(ls, symEntry{i, sym})
		}
	}
	sort.SliceStable(gs, func(a, b int) bool {
		return gs[a].sym.Value < gs[b].sym.Value
	})

	// Null symbol at index 0.
	ls = append([]symEntry{{originalSize, Symbol{}}}, ls...)
	originalSize++

	// One fresh SECTION symbol per section, placed so its index matches
	// the section index.
	nuSecSyms := []int{0}
	for i := 1; i < len(f.Sections); i++ {
		e := symEntry{originalSize, Symbol{
			Shndx: elf.SectionIndex(i),
			Type:  elf.STT_SECTION,
			Bind:  elf.STB_LOCAL,
		}}
		ls = append(ls, symEntry{})
		copy(ls[i+1:], ls[i:])
		ls[i] = e
		nuSecSyms = append(nuSecSyms, originalSize)
		originalSize++
	}

	ls = append(ls, symEntry{originalSize, Symbol{
		Shndx: elf.SHN_ABS,
		Type:  elf.STT_FILE,
		Bind:  elf.STB_LOCAL,
	}})
	originalSize++

	order := append(ls, gs...)
	remap := make(map[int]int, len(order))
	nu := make(Symbols, len(order))
	for newIdx, e := range order {
		remap[e.oi] = newIdx
		nu[newIdx] = e.sym
	}

	for _, sec := range f.Sections {
		if sec.Header.Type != elf.SHT_RELA || sec.Header.Link != uint32(shndx) {
			continue
		}
		relocs, ok := sec.Relocations()
		if !ok {
			continue
		}
		for ri := range relocs {
			r := &relocs[ri]
			if secsym, ok := secSyms[int(r.Sym)]; ok {
				so, defined := secsym.DefinedIn()
				if !defined {
					panic("SECTION symbol without a section index")
				}
				r.Addend += int64(secsym.Value)
				r.Sym = uint32(nuSecSyms[so])
			}
			ni, ok := remap[int(r.Sym)]
			if !ok {
				panic(fmt.Sprintf("dangling relocation against symbol %d", r.Sym))
			}
			r.Sym = uint32(ni)
		}
	}

	f.Sections[shndx].Content = nu
}
