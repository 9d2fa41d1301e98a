// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab implements symbol lookup by name and address over a
// laid-out image's symbol table.
package symtab

import (
	"sort"

	debugelf "debug/elf"

	"github.com/aclements/go-link/elf"
)

// NoSym is returned by lookups that find no symbol.
const NoSym = -1

// Table facilitates fast symbol lookup by name and address.
type Table struct {
	// syms is the original symbol slice, indexed by table position.
	syms []elf.Symbol

	// addr contains boundaries of symbols ordered by address. The
	// boundary from a symbol to NoSym is not explicitly represented,
	// since lookup can check the size of the symbol.
	//
	// If symbols overlap, this may contain the same symbol multiple
	// times. E.g., given one symbol strictly nested in another, the
	// outer symbol will appear both at its beginning address and at the
	// end address of the inner symbol.
	addr []symAddr

	// name indexes non-local symbols by name.
	name map[string]int
}

type symAddr struct {
	// addr is the address of this symbol boundary. Usually this is the
	// beginning of the symbol, except in the case of overlapping
	// symbols.
	addr uint64
	id   int
}

// NewTable creates a new table for syms. Symbols of size 0 can't be the
// result of an address lookup and are omitted from the address index.
func NewTable(syms []elf.Symbol) *Table {
	name := make(map[string]int)
	var ids []int
	for i := range syms {
		s := &syms[i]
		if s.Bind != debugelf.STB_LOCAL && len(s.Name) > 0 {
			name[string(s.Name)] = i
		}
		if _, defined := s.DefinedIn(); defined && s.Size != 0 {
			ids = append(ids, i)
		}
	}
	return &Table{syms, makeAddrIndex(syms, ids), name}
}

func makeAddrIndex(syms []elf.Symbol, ids []int) []symAddr {
	// Sort by starting address then priority, with low priority symbols
	// before higher priority so the higher priority ones override the
	// lower priority as we loop over the slice.
	sort.Slice(ids, func(i, j int) bool {
		si, sj := &syms[ids[i]], &syms[ids[j]]
		if si.Value != sj.Value {
			return si.Value < sj.Value
		}
		// Then size, preferring smaller symbols.
		if si.Size != sj.Size {
			return si.Size > sj.Size
		}
		// Then by index, which is guaranteed to be unique.
		return ids[i] > ids[j]
	})

	// Create the address index. This would be trivial except that
	// symbols can and do overlap. We iterate through each symbol
	// boundary (beginning and end) and keep a stack of symbols at the
	// current address, lowest end address at top of stack.
	var out []symAddr
	stack := make([]symAddr, 0, 8) // addr is *end* address
	drainStack := func(addr uint64) {
		for len(stack) > 0 {
			endAddr := stack[len(stack)-1].addr
			if endAddr > addr {
				return
			}
			// Pop all of the symbols that end at the next boundary.
			for len(stack) > 0 && stack[len(stack)-1].addr == endAddr {
				stack = stack[:len(stack)-1]
			}
			// At endAddr, we drop to the symbol at top of stack. If the
			// stack is empty now, we drop to NoSym, which doesn't have
			// an explicit marker.
			if len(stack) > 0 {
				out = append(out, symAddr{endAddr, stack[len(stack)-1].id})
			}
		}
	}
	for _, id := range ids {
		sym := &syms[id]
		drainStack(sym.Value)
		// Transition to sym at sym.Value.
		start := symAddr{sym.Value, id}
		if len(out) > 0 && out[len(out)-1].addr == sym.Value {
			out[len(out)-1] = start
		} else {
			out = append(out, start)
		}
		// Add symbol to the stack, keeping it ordered by end address.
		stack = append(stack, symAddr{sym.Value + sym.Size, id})
		for i := len(stack) - 1; i >= 1 && stack[i].addr > stack[i-1].addr; i-- {
			stack[i], stack[i-1] = stack[i-1], stack[i]
		}
	}
	drainStack(^uint64(0))

	return out
}

// Syms returns all symbols in the Table. The caller must not modify the
// returned slice.
func (t *Table) Syms() []elf.Symbol {
	return t.syms
}

// Name returns the index of the (global) symbol with the given name, or
// NoSym. This symbol may not be unique.
func (t *Table) Name(name string) int {
	if i, ok := t.name[name]; ok {
		return i
	}
	return NoSym
}

// Addr returns the index of the symbol containing addr, or NoSym.
//
// This symbol may not be unique, in which case Addr prioritizes the
// symbol with the latest starting address, followed by the symbol with
// the smallest size.
func (t *Table) Addr(addr uint64) int {
	i := sort.Search(len(t.addr), func(i int) bool {
		return addr < t.addr[i].addr
	}) - 1
	if i < 0 {
		return NoSym
	}
	id := t.addr[i].id
	sym := &t.syms[id]
	if sym.Value+sym.Size <= addr {
		// The symbol ends before addr.
		return NoSym
	}
	return id
}

// SymName is a symname callback for asm.Inst.GoSyntax: it returns the
// name and base address of the symbol containing addr.
func (t *Table) SymName(addr uint64) (string, uint64) {
	id := t.Addr(addr)
	if id == NoSym {
		return "", 0
	}
	return string(t.syms[id].Name), t.syms[id].Value
}
