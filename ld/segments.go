// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"bytes"

	debugelf "debug/elf"

	"github.com/aclements/go-link/elf"
)

// Segments derives program headers from fully laid-out, synced sections:
// a PHDR segment describing the program header table itself, one INTERP,
// DYNAMIC and TLS segment per matching section, and LOAD segments that
// greedily coalesce contiguous allocated sections sharing one file/memory
// skew.
func Segments(f *elf.File) ([]elf.SegmentHeader, error) {
	var r []elf.SegmentHeader
	if len(f.Sections) < 2 {
		return r, nil
	}

	vshift := int64(0)
	voff := f.Sections[1].Header.Addr
	poff := f.Sections[1].Header.Offset
	var vstart, pstart uint64
	flags := debugelf.PF_R

	for _, sec := range f.Sections {
		switch {
		case bytes.Equal(sec.Name, []byte(".dynamic")):
			r = append(r, elf.SegmentHeader{
				Type:   debugelf.PT_DYNAMIC,
				Flags:  debugelf.PF_R | debugelf.PF_W,
				Offset: sec.Header.Offset,
				Vaddr:  sec.Header.Addr,
				Paddr:  sec.Header.Addr,
				Filesz: sec.Header.Size,
				Memsz:  sec.Header.Size,
				Align:  0x8,
			})
		case bytes.Equal(sec.Name, []byte(".interp")):
			r = append(r, elf.SegmentHeader{
				Type:   debugelf.PT_INTERP,
				Flags:  debugelf.PF_R,
				Offset: sec.Header.Offset,
				Vaddr:  sec.Header.Addr,
				Paddr:  sec.Header.Addr,
				Filesz: sec.Header.Size,
				Memsz:  sec.Header.Size,
				Align:  0x1,
			})
		}

		if sec.Header.Flags&debugelf.SHF_TLS != 0 {
			r = append(r, elf.SegmentHeader{
				Type:   debugelf.PT_TLS,
				Flags:  debugelf.PF_R,
				Offset: sec.Header.Offset,
				Vaddr:  sec.Header.Addr,
				Paddr:  sec.Header.Addr,
				Filesz: sec.Header.Size,
				Memsz:  sec.Header.Size,
				Align:  0x10,
			})
		}

		// Mirror ld's habit of skipping over non-allocated sections while
		// still sometimes carrying them inside a LOAD: only allocated
		// sections move the segment cursors.
		if sec.Header.Flags&debugelf.SHF_ALLOC == 0 {
			continue
		}

		if sec.Header.Type == debugelf.SHT_NOBITS {
			// Extends memory without extending the file.
			voff = sec.Header.Addr + sec.Header.Size
			poff = sec.Header.Offset
			continue
		}

		if int64(sec.Header.Offset)+vshift != int64(sec.Header.Addr) {
			// The skew changed; close the running LOAD and open another.
			r = append(r, elf.SegmentHeader{
				Type:   debugelf.PT_LOAD,
				Flags:  flags,
				Offset: pstart,
				Vaddr:  vstart,
				Paddr:  vstart,
				Filesz: poff - pstart,
				Memsz:  voff - vstart,
				Align:  loadAlign,
			})
			vshift = int64(sec.Header.Addr) - int64(sec.Header.Offset)
			vstart = sec.Header.Addr
			pstart = sec.Header.Offset
			flags = debugelf.PF_R
		}

		voff = sec.Header.Addr + sec.Header.Size
		poff = sec.Header.Offset + sec.Header.Size

		if sec.Header.Flags&debugelf.SHF_EXECINSTR != 0 {
			flags |= debugelf.PF_X
		}
		if sec.Header.Flags&debugelf.SHF_WRITE != 0 {
			flags |= debugelf.PF_W
		}
	}
	r = append(r, elf.SegmentHeader{
		Type:   debugelf.PT_LOAD,
		Flags:  flags,
		Offset: pstart,
		Vaddr:  vstart,
		Paddr:  vstart,
		Filesz: poff - pstart,
		Memsz:  voff - vstart,
		Align:  loadAlign,
	})

	first := f.Sections[1].Header
	if first.Offset > first.Addr {
		return nil, elf.ErrFirstSectionOffset
	}
	firstVshift := first.Addr - first.Offset
	segmentsSize := uint64(elf.SegmentHeaderEntsize(&f.Header) * (len(r) + 1))
	phdr := elf.SegmentHeader{
		Type:   debugelf.PT_PHDR,
		Flags:  debugelf.PF_R | debugelf.PF_X,
		Offset: uint64(f.Header.Size()),
		Vaddr:  firstVshift + uint64(f.Header.Size()),
		Paddr:  firstVshift + uint64(f.Header.Size()),
		Filesz: segmentsSize,
		Memsz:  segmentsSize,
		Align:  0x8,
	}
	r = append([]elf.SegmentHeader{phdr}, r...)

	return r, nil
}
