// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"bytes"
	"fmt"

	debugelf "debug/elf"

	"github.com/aclements/go-link/elf"
)

// An UnsupportedRelocationError is the panic value for input relocation
// kinds the dynamic relocator does not convert. Only R_X86_64_64 is
// handled; everything else is rejected rather than silently mislinked.
type UnsupportedRelocationError struct {
	Reloc elf.Relocation
}

func (e *UnsupportedRelocationError) Error() string {
	return fmt.Sprintf("unsupported relocation %v", e.Reloc)
}

// Relocate converts a fully merged, laid-out image into a PIE-ready one:
// symbol values become absolute virtual addresses, input RELA sections are
// rewritten into dynamic relocations, and the .dynstr/.hash/.dynsym/
// .rela.dyn/.dynamic sections are synthesized after the last allocated
// section.
func Relocate(f *elf.File) error {
	var dynrel elf.Relocations
	dynsym := elf.Symbols{{}}
	shndxDynstr := -1
	lastAlloc := 0
	var deleteSecs []int

	for i, sec := range f.Sections {
		if sec.Header.Flags&debugelf.SHF_ALLOC != 0 {
			lastAlloc = i
		}

		switch sec.Header.Type {
		case debugelf.SHT_STRTAB:
			if bytes.Equal(sec.Name, []byte(".dynstr")) {
				shndxDynstr = i
			}

		case debugelf.SHT_SYMTAB:
			syms, ok := sec.Symbols()
			if !ok {
				panic(fmt.Sprintf("section %s is SYMTAB without symbol content", sec.Name))
			}
			for j := range syms {
				sym := &syms[j]
				so, defined := sym.DefinedIn()
				if !defined {
					continue
				}
				sym.Value += f.Sections[so].Header.Addr
				if sym.Bind == debugelf.STB_GLOBAL && bytes.Equal(sym.Name, []byte("_start")) {
					f.Header.Entry = sym.Value
				}
			}

		case debugelf.SHT_RELA:
			deleteSecs = append(deleteSecs, i)

			target := f.Sections[sec.Header.Info]
			// The target needs load-time fixups, so it must be writable.
			target.Header.Flags |= debugelf.SHF_WRITE
			secaddr := target.Header.Addr
			symtab, ok := f.Sections[sec.Header.Link].Symbols()
			if !ok {
				panic(fmt.Sprintf("relocation section %s links to non-symbol section %d", sec.Name, sec.Header.Link))
			}
			relocs, _ := sec.Relocations()
			for _, r := range relocs {
				sym := &symtab[r.Sym]
				switch r.Type {
				case debugelf.R_X86_64_64:
					r.Sym = 0
					r.Addr += secaddr
					r.Addend += int64(sym.Value)
					dynrel = append(dynrel, r)
				default:
					panic(&UnsupportedRelocationError{r})
				}
			}
		}
	}

	// Delete the consumed RELA sections, highest index first so the
	// remaining scheduled indices stay valid.
	for i := len(deleteSecs) - 1; i >= 0; i-- {
		at := deleteSecs[i]
		if at <= lastAlloc {
			panic(fmt.Sprintf("RELA section %d precedes the last allocated section %d", at, lastAlloc))
		}
		f.RemoveSection(at)
	}

	if shndxDynstr < 0 {
		lastAlloc++
		shndxDynstr = lastAlloc
		f.InsertSection(lastAlloc, elf.NewSection([]byte(".dynstr"), debugelf.SHT_STRTAB,
			debugelf.SHF_ALLOC, elf.NewStrtab(), 0, 0))
	}

	lastAlloc++
	shndxHash := lastAlloc
	shndxDynsym := shndxHash + 1
	hash, err := elf.SymHash(&f.Header, dynsym, uint32(shndxDynsym))
	if err != nil {
		return err
	}
	f.InsertSection(shndxHash, hash)

	lastAlloc++
	firstGlobal := 0
	for i := range dynsym {
		if dynsym[i].Bind == debugelf.STB_GLOBAL {
			firstGlobal = i
			break
		}
	}
	f.InsertSection(shndxDynsym, elf.NewSection([]byte(".dynsym"), debugelf.SHT_DYNSYM,
		debugelf.SHF_ALLOC, dynsym, uint32(shndxDynstr), uint32(firstGlobal)))
	// Inserting .dynsym bumped the hash section's forward link; repoint
	// it at .dynsym.
	f.Sections[shndxHash].Header.Link = uint32(shndxDynsym)

	lastAlloc++
	f.InsertSection(lastAlloc, elf.NewSection([]byte(".rela.dyn"), debugelf.SHT_RELA,
		debugelf.SHF_ALLOC, dynrel, uint32(shndxDynsym), 0))

	if err := Relayout(f); err != nil {
		return err
	}

	lastAlloc++
	dynamic, err := buildDynamic(f)
	if err != nil {
		return err
	}
	f.InsertSection(lastAlloc, elf.NewSection([]byte(".dynamic"), debugelf.SHT_DYNAMIC,
		debugelf.SHF_ALLOC|debugelf.SHF_WRITE, dynamic, uint32(shndxDynstr), 0))

	return nil
}

// buildDynamic derives the .dynamic table from the laid-out sections. The
// table leads with FLAGS_1 = PIE and ends with DT_NULL.
func buildDynamic(f *elf.File) (elf.DynamicTable, error) {
	r := elf.DynamicTable{
		{Tag: debugelf.DT_FLAGS_1, Val: uint64(debugelf.DF_1_PIE)},
	}

	for _, sec := range f.Sections {
		switch string(sec.Name) {
		case ".hash":
			r = append(r, elf.Dynamic{Tag: debugelf.DT_HASH, Val: sec.Header.Addr})
		case ".dynstr":
			r = append(r,
				elf.Dynamic{Tag: debugelf.DT_STRTAB, Val: sec.Header.Addr},
				elf.Dynamic{Tag: debugelf.DT_STRSZ, Val: sec.Header.Size})
		case ".dynsym":
			r = append(r,
				elf.Dynamic{Tag: debugelf.DT_SYMTAB, Val: sec.Header.Addr},
				elf.Dynamic{Tag: debugelf.DT_SYMENT, Val: sec.Header.Entsize})
		case ".rela.dyn":
			r = append(r,
				elf.Dynamic{Tag: debugelf.DT_RELA, Val: sec.Header.Addr},
				elf.Dynamic{Tag: debugelf.DT_RELASZ, Val: sec.Header.Size},
				elf.Dynamic{Tag: debugelf.DT_RELAENT, Val: sec.Header.Entsize})

			relocs, ok := sec.Relocations()
			if !ok {
				return nil, elf.ErrUnexpectedContent
			}
			firstNonRela := len(relocs)
			for i, rel := range relocs {
				if rel.Type != debugelf.R_X86_64_RELATIVE && rel.Type != debugelf.R_X86_64_JMP_SLOT {
					firstNonRela = i
					break
				}
			}
			if firstNonRela > 0 {
				r = append(r, elf.Dynamic{Tag: debugelf.DT_RELACOUNT, Val: uint64(firstNonRela)})
			}
			if firstNonRela < len(relocs) {
				r = append(r, elf.Dynamic{Tag: debugelf.DT_TEXTREL, Val: uint64(firstNonRela)})
			}
		}
	}

	r = append(r, elf.Dynamic{Tag: debugelf.DT_NULL, Val: 0})
	return r, nil
}
