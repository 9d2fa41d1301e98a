// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"debug/elf"
	"testing"
)

func TestMakeSymtabGnuldCompat(t *testing.T) {
	t.Parallel()
	f := NewFile(*testHeader(elf.ELFCLASS64, elf.ELFDATA2LSB))
	f.Sections = append(f.Sections, NullSection())
	f.Sections = append(f.Sections, NewSection([]byte(".text"), elf.SHT_PROGBITS,
		elf.SHF_ALLOC|elf.SHF_EXECINSTR, make(Raw, 0x40), 0, 0))

	syms := Symbols{
		{},
		{Name: []byte("localA"), Bind: elf.STB_LOCAL, Shndx: 1, Value: 0x4},
		{Type: elf.STT_SECTION, Bind: elf.STB_LOCAL, Shndx: 1, Value: 0x10},
		{Name: []byte("late"), Bind: elf.STB_GLOBAL, Shndx: 1, Value: 0x20},
		{Name: []byte("early"), Bind: elf.STB_GLOBAL, Shndx: 1, Value: 0x8},
	}
	f.Sections = append(f.Sections, NewSection([]byte(".symtab"), elf.SHT_SYMTAB, 0, syms, 3, 0))
	f.Sections = append(f.Sections, NewSection([]byte(".strtab"), elf.SHT_STRTAB, 0, NewStrtab(), 0, 0))

	relocs := Relocations{
		{Addr: 0x0, Type: elf.R_X86_64_64, Sym: 2, Addend: 5},  // against the SECTION symbol
		{Addr: 0x8, Type: elf.R_X86_64_64, Sym: 3, Addend: 0},  // against late
		{Addr: 0x16, Type: elf.R_X86_64_64, Sym: 4, Addend: 0}, // against early
	}
	f.Sections = append(f.Sections, NewSection([]byte(".rela.text"), elf.SHT_RELA, 0, relocs, 2, 1))
	f.Sections = append(f.Sections, NewSection([]byte(".shstrtab"), elf.SHT_STRTAB, 0, NewStrtab(), 0, 0))

	if err := f.MakeSymtabGnuldCompat(); err != nil {
		t.Fatalf("MakeSymtabGnuldCompat: %v", err)
	}

	nu, _ := f.Sections[2].Symbols()
	// Expected shape: null, one SECTION symbol per section (indices match
	// section indices), the original locals, a FILE symbol, then globals
	// sorted by value.
	nsec := len(f.Sections)
	wantLen := 1 + (nsec - 1) + 2 /* orig null + localA */ + 1 /* FILE */ + 2
	if len(nu) != wantLen {
		t.Fatalf("want %d symbols, got %d", wantLen, len(nu))
	}
	if len(nu[0].Name) != 0 || nu[0].Type != 0 || nu[0].Bind != 0 || nu[0].Vis != 0 ||
		nu[0].Shndx != 0 || nu[0].Value != 0 || nu[0].Size != 0 {
		t.Errorf("symbol 0 is not the null symbol: %+v", nu[0])
	}
	for i := 1; i < nsec; i++ {
		if nu[i].Type != elf.STT_SECTION || nu[i].Shndx != elf.SectionIndex(i) {
			t.Errorf("symbol %d: want SECTION for section %d, got %+v", i, i, nu[i])
		}
	}
	fileIdx := nsec + 2
	if nu[fileIdx].Type != elf.STT_FILE {
		t.Errorf("symbol %d: want FILE, got %+v", fileIdx, nu[fileIdx])
	}
	g0, g1 := fileIdx+1, fileIdx+2
	if !bytes.Equal(nu[g0].Name, []byte("early")) || !bytes.Equal(nu[g1].Name, []byte("late")) {
		t.Errorf("globals not sorted by value: %s, %s", nu[g0].Name, nu[g1].Name)
	}
	// Sync pointed info at the first global.
	if got := f.Sections[2].Header.Info; got != uint32(g0) {
		t.Errorf("symtab info: want %d, got %d", g0, got)
	}

	rel, _ := f.Sections[4].Relocations()
	// The SECTION symbol dissolved into the addend and repointed at the
	// fresh section symbol for .text.
	if rel[0].Sym != 1 || rel[0].Addend != 5+0x10 {
		t.Errorf("section reloc: want sym 1 addend 0x15, got sym %d addend %#x", rel[0].Sym, rel[0].Addend)
	}
	if rel[1].Sym != uint32(g1) {
		t.Errorf("late reloc: want sym %d, got %d", g1, rel[1].Sym)
	}
	if rel[2].Sym != uint32(g0) {
		t.Errorf("early reloc: want sym %d, got %d", g0, rel[2].Sym)
	}
}
