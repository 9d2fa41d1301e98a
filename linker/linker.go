// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linker resolves symbols across link inputs and prunes
// unreachable code.
//
// Each contributing input section becomes one link Object, so dead-code
// elimination works at section granularity. Symbols and relocations are
// re-keyed from per-input section indices to (object, offset) pairs, and
// all inputs' symbol tables merge into one Loc table indexed by name.
package linker

import (
	"fmt"

	debugelf "debug/elf"

	"github.com/aclements/go-link/elf"
	"github.com/aclements/go-link/loader"
)

// An UnresolvedSymbolError reports a non-weak global reference with no
// definition in any admitted input.
type UnresolvedSymbolError struct {
	Name []byte
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("unresolved symbol %q", e.Name)
}

// A DuplicateDefinitionError reports two strong global definitions of the
// same name.
type DuplicateDefinitionError struct {
	Name []byte
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("duplicate definition of %q", e.Name)
}

// noObject marks a Loc that is not backed by a link object (absolute,
// common, and unresolved weak symbols).
const noObject = -1

// A Loc is one entry of the merged symbol table: a symbol plus the link
// object defining it.
type Loc struct {
	// Obj is the lid of the defining object, or noObject.
	Obj int
	Sym elf.Symbol
}

// An Object is one contributing input section with its relocations. After
// Link returns, relocation symbol indices refer to the merged Loc table.
type Object struct {
	Lid     int
	Name    string
	Section *elf.Section
	Relocs  elf.Relocations
}

// A Linker owns the object pool and the merged symbol table.
type Linker struct {
	Objects map[int]*Object
	Symtab  []Loc

	// byName indexes definitions in Symtab by symbol name.
	byName map[string]int

	nextLid int

	// inputs carries per-input resolution state until resolve runs.
	inputs []*input

	// undefined accumulates names awaiting a definition, to feed back
	// into the loader as needles.
	undefined map[string]debugelf.SymBind
}

// An input is one ingested ELF: its local-to-global symbol index mapping
// and the references resolve still has to patch.
type input struct {
	name string
	// localMap maps input symtab indices to Symtab indices. A pending
	// undefined reference holds the placeholder pendingRef.
	localMap map[int]int
	pending  map[int]pendingSym
	// lids maps input section indices to object lids.
	lids map[int]int
}

type pendingSym struct {
	name []byte
	bind debugelf.SymBind
	sym  elf.Symbol
}

const pendingRef = -2

// New returns an empty linker.
func New() *Linker {
	return &Linker{
		Objects:   make(map[int]*Object),
		byName:    make(map[string]int),
		undefined: make(map[string]debugelf.SymBind),
	}
}

// EntryRoot is the name of the synthesized root reference.
var EntryRoot = []byte("_start")

// Link demand-loads states against the root symbols and merges every
// admitted object. It synthesizes an entry-root object holding a single
// undefined global FUNC reference to _start, so linking an input set that
// cannot supply _start fails with an UnresolvedSymbolError.
func (l *Linker) Link(states []loader.State, roots [][]byte, onError loader.ErrorHandler) error {
	l.addEntryRoot()

	needles := [][]byte{EntryRoot}
	requested := map[string]bool{string(EntryRoot): true}
	for _, r := range roots {
		if !requested[string(r)] {
			requested[string(r)] = true
			needles = append(needles, r)
		}
	}

	ingested := make(map[*loader.Object]bool)
	for {
		states = loader.LoadIfAll(states, needles, onError)
		for _, s := range states {
			if obj, ok := s.(*loader.Object); ok && !ingested[obj] {
				ingested[obj] = true
				if err := l.ingest(obj.Name(), obj.File()); err != nil {
					return fmt.Errorf("%s: %w", obj.Name(), err)
				}
			}
		}

		// New undefined references become demand for the next round.
		fresh := false
		for name := range l.undefined {
			if _, ok := l.byName[name]; ok {
				continue
			}
			if !requested[name] {
				requested[name] = true
				needles = append(needles, []byte(name))
				fresh = true
			}
		}
		if !fresh {
			break
		}
	}

	return l.resolve()
}

func (l *Linker) addEntryRoot() {
	in := &input{
		name:     "___linker_entry",
		localMap: map[int]int{},
		pending: map[int]pendingSym{0: {
			name: EntryRoot,
			bind: debugelf.STB_GLOBAL,
			sym: elf.Symbol{
				Name:  EntryRoot,
				Type:  debugelf.STT_FUNC,
				Bind:  debugelf.STB_GLOBAL,
				Shndx: debugelf.SHN_UNDEF,
			},
		}},
		lids: map[int]int{},
	}
	l.inputs = append(l.inputs, in)
	l.undefined[string(EntryRoot)] = debugelf.STB_GLOBAL
}

// contributing reports whether a section's content takes part in the
// output image (as opposed to symbol, string, and relocation metadata).
func contributing(sec *elf.Section) bool {
	switch sec.Header.Type {
	case debugelf.SHT_PROGBITS, debugelf.SHT_NOBITS,
		debugelf.SHT_INIT_ARRAY, debugelf.SHT_FINI_ARRAY, debugelf.SHT_PREINIT_ARRAY:
		return true
	}
	return false
}

// ingest splits f into per-section link objects and merges its symbol
// table into the Loc table. Undefined references stay pending until
// resolve.
func (l *Linker) ingest(name string, f *elf.File) error {
	in := &input{
		name:     name,
		localMap: map[int]int{},
		pending:  map[int]pendingSym{},
		lids:     map[int]int{},
	}

	for i, sec := range f.Sections {
		if !contributing(sec) {
			continue
		}
		lid := l.nextLid
		l.nextLid++
		l.Objects[lid] = &Object{
			Lid:     lid,
			Name:    fmt.Sprintf("%s:%s", name, sec.Name),
			Section: sec,
		}
		in.lids[i] = lid
	}

	localBase := 0
	for _, sec := range f.Sections {
		if sec.Header.Type != debugelf.SHT_SYMTAB {
			continue
		}
		syms, ok := sec.Symbols()
		if !ok {
			return elf.ErrUnexpectedContent
		}
		for i := range syms {
			if err := l.mergeSymbol(in, localBase+i, &syms[i]); err != nil {
				return err
			}
		}
		localBase += len(syms)
	}

	// Attach relocations to the object of their target section. Symbol
	// indices are rewritten to Loc indices during resolve.
	for _, sec := range f.Sections {
		if sec.Header.Type != debugelf.SHT_RELA {
			continue
		}
		relocs, ok := sec.Relocations()
		if !ok {
			return elf.ErrUnexpectedContent
		}
		lid, ok := in.lids[int(sec.Header.Info)]
		if !ok {
			// Relocations against metadata (e.g. debug info) vanish with
			// their target.
			continue
		}
		obj := l.Objects[lid]
		obj.Relocs = append(obj.Relocs, relocs...)
	}

	l.inputs = append(l.inputs, in)
	return nil
}

// mergeSymbol merges one input symbol into the Loc table and records the
// local index mapping.
func (l *Linker) mergeSymbol(in *input, local int, sym *elf.Symbol) error {
	switch sym.Shndx {
	case debugelf.SHN_UNDEF:
		if len(sym.Name) == 0 {
			// The null symbol. It is never a meaningful target, but keep a
			// valid mapping for reloc rewriting.
			in.localMap[local] = l.appendLoc(Loc{noObject, *sym}, false)
			return nil
		}
		in.pending[local] = pendingSym{name: sym.Name, bind: sym.Bind, sym: *sym}
		in.localMap[local] = pendingRef
		if _, ok := l.undefined[string(sym.Name)]; !ok {
			l.undefined[string(sym.Name)] = sym.Bind
		}
		return nil

	case debugelf.SHN_ABS:
		in.localMap[local] = l.appendLoc(Loc{noObject, *sym}, sym.Bind != debugelf.STB_LOCAL)
		return nil

	case debugelf.SHN_COMMON:
		l.mergeCommon(in, local, sym)
		return nil
	}

	so, defined := sym.DefinedIn()
	if !defined {
		// Reserved index outside the ranges we model; treat as absolute.
		in.localMap[local] = l.appendLoc(Loc{noObject, *sym}, false)
		return nil
	}
	lid, ok := in.lids[int(so)]
	if !ok {
		// Defined in a non-contributing section. Only relocations could
		// reach it, and rewriting one through this mapping is a bug
		// upstream.
		in.localMap[local] = pendingRef
		return nil
	}

	loc := Loc{lid, *sym}
	if sym.Bind == debugelf.STB_LOCAL || len(sym.Name) == 0 {
		in.localMap[local] = l.appendLoc(loc, false)
		return nil
	}

	// Global or weak definition: dedup by name.
	if at, ok := l.byName[string(sym.Name)]; ok {
		prev := &l.Symtab[at]
		switch {
		case sym.Bind == debugelf.STB_WEAK:
			// Weak loses to any earlier definition.
		case prev.Sym.Bind == debugelf.STB_WEAK || prev.Sym.Shndx == debugelf.SHN_COMMON:
			// Strong global overrides a weak or tentative definition in
			// place, so earlier references rebind to it.
			*prev = loc
		default:
			return &DuplicateDefinitionError{sym.Name}
		}
		in.localMap[local] = at
		return nil
	}
	in.localMap[local] = l.appendLoc(loc, true)
	return nil
}

// mergeCommon merges a tentative definition: commons of the same name
// merge by maximum size, and any real definition wins over them.
func (l *Linker) mergeCommon(in *input, local int, sym *elf.Symbol) {
	if at, ok := l.byName[string(sym.Name)]; ok {
		prev := &l.Symtab[at]
		if prev.Sym.Shndx == debugelf.SHN_COMMON && sym.Size > prev.Sym.Size {
			prev.Sym.Size = sym.Size
		}
		in.localMap[local] = at
		return
	}
	in.localMap[local] = l.appendLoc(Loc{noObject, *sym}, true)
}

func (l *Linker) appendLoc(loc Loc, index bool) int {
	at := len(l.Symtab)
	l.Symtab = append(l.Symtab, loc)
	if index {
		l.byName[string(loc.Sym.Name)] = at
	}
	return at
}

// resolve patches every pending undefined reference to its definition and
// rewrites relocation symbol indices into the Loc table.
func (l *Linker) resolve() error {
	for _, in := range l.inputs {
		for local, p := range in.pending {
			at, ok := l.byName[string(p.name)]
			if !ok {
				if p.bind == debugelf.STB_WEAK {
					// Unresolved weak references bind to zero.
					at = l.appendLoc(Loc{noObject, p.sym}, false)
				} else {
					return &UnresolvedSymbolError{p.name}
				}
			}
			in.localMap[local] = at
		}
	}

	for _, in := range l.inputs {
		for _, lid := range in.lids {
			obj := l.Objects[lid]
			for ri := range obj.Relocs {
				r := &obj.Relocs[ri]
				at, ok := in.localMap[int(r.Sym)]
				if !ok || at == pendingRef {
					panic(fmt.Sprintf("%s: relocation against unmapped symbol %d", obj.Name, r.Sym))
				}
				r.Sym = uint32(at)
			}
		}
	}
	return nil
}
