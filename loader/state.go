// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader drives demand-resolved loading of link inputs.
//
// Each input is a State that advances from Path through Archive or Elf to
// a terminal Object or Error. LoadIf only advances a state if it could
// contribute one of the wanted symbols, so archives are opened and members
// admitted lazily, pruned first by the archive's symbol index and then by
// a per-object bloom filter.
//
// States are linear: Load consumes the state and yields its successors.
// Each state owns its reader exclusively, so independent states may be
// driven from different goroutines.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	debugelf "debug/elf"

	"github.com/aclements/go-link/bloom"
	"github.com/aclements/go-link/elf"
	"github.com/blakesmith/ar"
)

// ErrNoSymbolsInObject indicates an input ELF defines no admissible symbol
// (GLOBAL or WEAK, neither undefined nor absolute), which makes it useless
// as a link input.
var ErrNoSymbolsInObject = errors.New("no symbols in object")

// An ErrorHandler observes a failed input and returns replacement states
// (usually none).
type ErrorHandler func(err error, name string) []State

// A State is one link input at some stage of loading.
type State interface {
	// Name identifies the input, for diagnostics.
	Name() string

	// Contains reports whether this input could define needle. It errs
	// toward true: states that cannot know without opening report true.
	Contains(needle []byte, needleHash [2]uint64) bool

	// Load advances the state by one step and returns its successors.
	// Terminal states return themselves; Error states are handed to
	// onError.
	Load(onError ErrorHandler) []State
}

// LoadIf advances s, and recursively its successors, as long as some
// needle may be defined by it. States that cannot contribute any needle
// are returned unchanged.
func LoadIf(s State, needles [][]byte, onError ErrorHandler) []State {
	for _, n := range needles {
		if !s.Contains(n, bloom.Hash(n)) {
			continue
		}
		var out []State
		for _, nu := range s.Load(onError) {
			out = append(out, LoadIf(nu, needles, onError)...)
		}
		return out
	}
	return []State{s}
}

// LoadIfAll applies LoadIf over a set of independent states.
func LoadIfAll(states []State, needles [][]byte, onError ErrorHandler) []State {
	var out []State
	for _, s := range states {
		out = append(out, LoadIf(s, needles, onError)...)
	}
	return out
}

// Path is an input that has not been opened yet.
type Path struct {
	Path string
}

func (s *Path) Name() string { return s.Path }

func (s *Path) Contains(needle []byte, needleHash [2]uint64) bool {
	// Can't know without opening.
	return true
}

func (s *Path) Load(onError ErrorHandler) []State {
	f, err := os.Open(s.Path)
	if err != nil {
		return []State{&Error{s.Path, err}}
	}
	t, err := Sniff(f)
	if err != nil {
		f.Close()
		return []State{&Error{s.Path, err}}
	}
	switch t {
	case FileTypeElf:
		st, err := makeObject(s.Path, f, f)
		if err != nil {
			f.Close()
			return []State{&Error{s.Path, err}}
		}
		return []State{st}
	case FileTypeArchive:
		return []State{newArchive(s.Path, f)}
	}
	f.Close()
	return []State{&Error{s.Path, elf.ErrInvalidMagic}}
}

// Archive is an opened ar archive whose members have not been admitted.
type Archive struct {
	name string
	f    *os.File

	// symbols is the archive's symbol index, or nil if the archive has
	// none (which forces admission).
	symbols [][]byte
}

func newArchive(name string, f *os.File) *Archive {
	a := &Archive{name: name, f: f}
	// Pre-read the symbol index member so Contains can prune without
	// touching the members. A missing or unreadable index leaves symbols
	// nil.
	if _, err := f.Seek(0, io.SeekStart); err == nil {
		rdr := ar.NewReader(f)
		if hdr, err := rdr.Next(); err == nil && (hdr.Name == "/" || hdr.Name == "__.SYMDEF") {
			b := make([]byte, hdr.Size)
			if _, err := io.ReadFull(rdr, b); err == nil {
				if syms, err := parseArSymbolIndex(b); err == nil {
					a.symbols = syms
				}
			}
		}
	}
	return a
}

func (s *Archive) Name() string { return s.name }

func (s *Archive) Contains(needle []byte, needleHash [2]uint64) bool {
	if s.symbols == nil {
		// No readable index; must open the members to know.
		return true
	}
	for _, sym := range s.symbols {
		if bytes.Equal(sym, needle) {
			return true
		}
	}
	return false
}

func (s *Archive) Load(onError ErrorHandler) []State {
	defer s.f.Close()
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return []State{&Error{s.name, err}}
	}
	rdr := ar.NewReader(s.f)

	var out []State
	var longnames []byte
	for {
		hdr, err := rdr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			out = append(out, &Error{s.name, err})
			break
		}
		b := make([]byte, hdr.Size)
		if _, err := io.ReadFull(rdr, b); err != nil {
			out = append(out, &Error{s.name, err})
			break
		}
		switch hdr.Name {
		case "/", "__.SYMDEF":
			continue
		case "//":
			longnames = b
			continue
		}
		name := fmt.Sprintf("%s (%s)", s.name, resolveArName(hdr.Name, longnames))
		st, err := makeObject(name, bytes.NewReader(b), nil)
		if err != nil {
			out = append(out, &Error{name, err})
			continue
		}
		out = append(out, st)
	}
	return out
}

// Elf is a parsed ELF input whose symbol tables are loaded but whose
// remaining sections are not.
type Elf struct {
	name   string
	file   *elf.File
	r      io.ReadSeeker
	closer io.Closer
	bloom  *bloom.Filter
}

func (s *Elf) Name() string { return s.name }

// Bloom exposes the state's symbol filter, for membership statistics.
func (s *Elf) Bloom() *bloom.Filter { return s.bloom }

// admissible reports whether sym can satisfy an external reference:
// GLOBAL or WEAK and backed by a section (or common storage).
func admissible(sym *elf.Symbol) bool {
	if sym.Bind != debugelf.STB_GLOBAL && sym.Bind != debugelf.STB_WEAK {
		return false
	}
	return sym.Shndx != debugelf.SHN_UNDEF && sym.Shndx != debugelf.SHN_ABS
}

func (s *Elf) Contains(needle []byte, needleHash [2]uint64) bool {
	if !s.bloom.Contains(needleHash) {
		return false
	}
	for _, sec := range s.file.Sections {
		switch sec.Header.Type {
		case debugelf.SHT_SYMTAB, debugelf.SHT_DYNSYM:
			syms, ok := sec.Symbols()
			if !ok {
				continue
			}
			for i := range syms {
				if admissible(&syms[i]) && bytes.Equal(syms[i].Name, needle) {
					return true
				}
			}
		}
	}
	return false
}

func (s *Elf) Load(onError ErrorHandler) []State {
	if err := s.file.LoadAll(s.r); err != nil {
		if s.closer != nil {
			s.closer.Close()
		}
		return []State{&Error{s.name, err}}
	}
	if s.closer != nil {
		s.closer.Close()
	}
	return []State{&Object{s.name, s.file}}
}

// Object is a fully loaded input, committed to the link.
type Object struct {
	name string
	file *elf.File
}

// NewObject returns a terminal Object state over file. The linker uses
// this to inject synthetic inputs such as the entry root.
func NewObject(name string, file *elf.File) *Object {
	return &Object{name, file}
}

func (s *Object) Name() string { return s.name }

// File returns the loaded ELF.
func (s *Object) File() *elf.File { return s.file }

func (s *Object) Contains(needle []byte, needleHash [2]uint64) bool {
	// Already committed; demand can't change anything.
	return false
}

func (s *Object) Load(onError ErrorHandler) []State {
	return []State{s}
}

// Error is a failed input, carrying the offending input's name.
type Error struct {
	name string
	Err  error
}

func (s *Error) Name() string { return s.name }

func (s *Error) Error() string {
	return fmt.Sprintf("%s: %v", s.name, s.Err)
}

func (s *Error) Unwrap() error { return s.Err }

func (s *Error) Contains(needle []byte, needleHash [2]uint64) bool {
	return true
}

func (s *Error) Load(onError ErrorHandler) []State {
	if onError == nil {
		return nil
	}
	return onError(s.Err, s.name)
}

// makeObject parses an ELF input, loads its symbol tables, and builds the
// bloom filter over its admissible symbols. closer, if non-nil, is adopted
// by the resulting state.
func makeObject(name string, r io.ReadSeeker, closer io.Closer) (State, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	f, err := elf.FromReader(r)
	if err != nil {
		return nil, err
	}

	numSymbols := 0
	for i, sec := range f.Sections {
		switch sec.Header.Type {
		case debugelf.SHT_SYMTAB, debugelf.SHT_DYNSYM:
			if err := f.Load(i, r); err != nil {
				return nil, err
			}
			syms, _ := sec.Symbols()
			numSymbols += len(syms)
		}
	}
	if numSymbols == 0 {
		return nil, ErrNoSymbolsInObject
	}

	filter := bloom.New(numSymbols)
	numAdmissible := 0
	for _, sec := range f.Sections {
		switch sec.Header.Type {
		case debugelf.SHT_SYMTAB, debugelf.SHT_DYNSYM:
			syms, _ := sec.Symbols()
			for i := range syms {
				if admissible(&syms[i]) {
					filter.Insert(bloom.Hash(syms[i].Name))
					numAdmissible++
				}
			}
		}
	}
	if numAdmissible == 0 {
		return nil, ErrNoSymbolsInObject
	}

	return &Elf{name: name, file: f, r: r, closer: closer, bloom: filter}, nil
}
