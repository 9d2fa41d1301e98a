// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command elfdump prints an ELF file's header, section table and symbols,
// and disassembles its executable sections.
//
// Usage:
//
//	elfdump path
package main

import (
	"fmt"
	"log"
	"os"

	debugelf "debug/elf"

	"github.com/aclements/go-link/arch"
	"github.com/aclements/go-link/asm"
	"github.com/aclements/go-link/elf"
	"github.com/aclements/go-link/symtab"
)

func main() {
	log.SetPrefix("elfdump: ")
	log.SetFlags(0)
	if len(os.Args) != 2 {
		log.Fatal("usage: elfdump path")
	}

	fp, err := os.Open(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer fp.Close()

	f, err := elf.FromReader(fp)
	if err != nil {
		log.Fatal(err)
	}
	if err := f.LoadAll(fp); err != nil {
		log.Fatal(err)
	}

	h := &f.Header
	fmt.Printf("%s %s %s %s %s entry %#x\n", h.Class, h.Endianness, h.ABI, h.Type, h.Machine, h.Entry)

	fmt.Printf("\nsections:\n")
	for i, sec := range f.Sections {
		fmt.Printf("  [%2d] %-20s %-12s %-10s addr %#8x off %#8x size %#8x link %d info %d align %d\n",
			i, sec.Name, sec.Header.Type, flagString(sec.Header.Flags),
			sec.Header.Addr, sec.Header.Offset, sec.Header.Size,
			sec.Header.Link, sec.Header.Info, sec.Header.Addralign)
	}

	for _, seg := range f.Segments {
		fmt.Printf("segment: %s\n", &seg)
	}

	var tab *symtab.Table
	for _, sec := range f.Sections {
		switch sec.Header.Type {
		case debugelf.SHT_SYMTAB, debugelf.SHT_DYNSYM:
			syms, ok := sec.Symbols()
			if !ok {
				continue
			}
			fmt.Printf("\n%s:\n", sec.Name)
			for i := range syms {
				s := &syms[i]
				fmt.Printf("  %4d: %016x %8d %-8s %-7s %-9s %4s %s\n",
					i, s.Value, s.Size, s.Type, s.Bind, s.Vis, shndxString(s.Shndx), s.Name)
			}
			if sec.Header.Type == debugelf.SHT_SYMTAB {
				tab = symtab.NewTable(syms)
			}
		}
	}

	if h.Machine != debugelf.EM_X86_64 {
		return
	}
	symName := func(addr uint64) (string, uint64) { return "", 0 }
	if tab != nil {
		symName = tab.SymName
	}
	for _, sec := range f.Sections {
		if sec.Header.Flags&debugelf.SHF_EXECINSTR == 0 {
			continue
		}
		raw, ok := sec.Raw()
		if !ok {
			continue
		}
		fmt.Printf("\ndisassembly of %s:\n", sec.Name)
		seq, err := asm.Disasm(arch.AMD64, raw, sec.Header.Addr)
		if err != nil {
			log.Fatal(err)
		}
		for i := 0; i < seq.Len(); i++ {
			inst := seq.Get(i)
			fmt.Printf("  %8x: %s\n", inst.PC(), inst.GoSyntax(symName))
		}
	}
}

func flagString(f debugelf.SectionFlag) string {
	var s []byte
	if f&debugelf.SHF_ALLOC != 0 {
		s = append(s, 'A')
	}
	if f&debugelf.SHF_WRITE != 0 {
		s = append(s, 'W')
	}
	if f&debugelf.SHF_EXECINSTR != 0 {
		s = append(s, 'X')
	}
	if f&debugelf.SHF_TLS != 0 {
		s = append(s, 'T')
	}
	if len(s) == 0 {
		return "-"
	}
	return string(s)
}

func shndxString(shndx debugelf.SectionIndex) string {
	switch shndx {
	case debugelf.SHN_UNDEF:
		return "UND"
	case debugelf.SHN_ABS:
		return "ABS"
	case debugelf.SHN_COMMON:
		return "COM"
	}
	return fmt.Sprintf("%d", shndx)
}
