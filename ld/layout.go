// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"fmt"

	debugelf "debug/elf"

	"github.com/aclements/go-link/elf"
)

// layoutBase is where section content starts, as both file offset and
// virtual address. It leaves room for the ELF header and the program
// header table; a very large program header table would collide with it.
const layoutBase = 0x300

// loadAlign is the LOAD segment alignment. File offset and virtual
// address of loadable content must stay congruent modulo it.
const loadAlign = 0x200000

// Relayout assigns file offsets and virtual addresses to every section
// after the null section, walking both cursors from layoutBase. It syncs
// the container first so sizes are reliable.
func Relayout(f *elf.File) error {
	if err := f.SyncAll(); err != nil {
		return err
	}

	poff := uint64(layoutBase)
	voff := uint64(layoutBase)
	for _, sec := range f.Sections {
		if sec == f.Sections[0] {
			continue
		}
		if sec.Header.Addralign > 0 {
			if oa := poff % sec.Header.Addralign; oa != 0 {
				poff += sec.Header.Addralign - oa
				voff += sec.Header.Addralign - oa
			}
		}
		if sec.Header.Type != debugelf.SHT_NOBITS {
			if poff > voff {
				panic(fmt.Sprintf("relayout: poff %#x > voff %#x in %s", poff, voff, sec.Name))
			}
			if (voff-poff)%loadAlign != 0 {
				voff += loadAlign - (voff-poff)%loadAlign
			}
		}
		sec.Header.Offset = poff
		poff += uint64(sec.Size(&f.Header))

		sec.Header.Addr = voff
		voff += sec.Header.Size
	}
	return nil
}
