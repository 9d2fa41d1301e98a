// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linker

import (
	"bytes"
	"fmt"

	debugelf "debug/elf"
)

// ctorPrefixes name sections that must survive gc even without an
// explicit reference: constructors and destructors run by the runtime.
var ctorPrefixes = [][]byte{
	[]byte(".ctors"),
	[]byte(".dtors"),
	[]byte(".init_array"),
	[]byte(".fini_array"),
	[]byte(".preinit_array"),
}

// GC removes every object unreachable from the root set, then compacts
// the Loc table and rewrites the surviving relocations' symbol indices.
//
// The root set is _start, constructor sections, and any extra names the
// caller forces.
func (l *Linker) GC(forced ...[]byte) {
	marked := make(map[int]bool)
	var work []int

	mark := func(lid int) {
		if lid == noObject || marked[lid] {
			return
		}
		marked[lid] = true
		work = append(work, lid)
	}

	roots := append([][]byte{EntryRoot}, forced...)
	for _, name := range roots {
		if at, ok := l.byName[string(name)]; ok {
			mark(l.Symtab[at].Obj)
		}
	}
	for lid, obj := range l.Objects {
		if obj.Section == nil {
			continue
		}
		for _, p := range ctorPrefixes {
			if bytes.HasPrefix(obj.Section.Name, p) {
				mark(lid)
				break
			}
		}
	}

	for len(work) > 0 {
		lid := work[len(work)-1]
		work = work[:len(work)-1]
		for _, r := range l.Objects[lid].Relocs {
			mark(l.Symtab[r.Sym].Obj)
		}
	}

	for lid := range l.Objects {
		if !marked[lid] {
			delete(l.Objects, lid)
		}
	}

	// Compact the Loc table: drop Locs of swept objects, remap the rest.
	remap := make(map[int]int, len(l.Symtab))
	nu := l.Symtab[:0]
	for i, loc := range l.Symtab {
		if loc.Obj != noObject && !marked[loc.Obj] {
			continue
		}
		remap[i] = len(nu)
		nu = append(nu, loc)
	}
	l.Symtab = nu

	l.byName = make(map[string]int, len(l.Symtab))
	for i, loc := range l.Symtab {
		if len(loc.Sym.Name) == 0 || loc.Sym.Shndx == debugelf.SHN_UNDEF {
			continue
		}
		if loc.Sym.Bind == debugelf.STB_LOCAL {
			continue
		}
		l.byName[string(loc.Sym.Name)] = i
	}

	for _, obj := range l.Objects {
		for ri := range obj.Relocs {
			r := &obj.Relocs[ri]
			at, ok := remap[int(r.Sym)]
			if !ok {
				panic(fmt.Sprintf("%s: relocation escaped gc against dropped symbol %d", obj.Name, r.Sym))
			}
			r.Sym = uint32(at)
		}
	}
}
