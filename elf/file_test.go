// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"testing"
)

func errorsAs(err error, target interface{}) bool {
	return errors.As(err, target)
}

// seekBuffer is an in-memory io.WriteSeeker; seeking past the end and
// writing zero-fills the gap, like a sparse file.
type seekBuffer struct {
	b   []byte
	off int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.off+len(p) > len(s.b) {
		s.b = append(s.b, make([]byte, s.off+len(p)-len(s.b))...)
	}
	copy(s.b[s.off:], p)
	s.off += len(p)
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.off = int(offset)
	case io.SeekCurrent:
		s.off += int(offset)
	case io.SeekEnd:
		s.off = len(s.b) + int(offset)
	}
	if s.off < 0 {
		return 0, fmt.Errorf("seek to negative offset")
	}
	return int64(s.off), nil
}

// layoutSequential assigns non-overlapping offsets to every section after
// the null section. Tests use this instead of the linker's address-aware
// layout.
func layoutSequential(f *File) {
	off := uint64(0x200)
	for _, sec := range f.Sections[1:] {
		sec.Header.Offset = off
		off += sec.Header.Size
	}
}

// makeTestFile builds a small relocatable image: .text with one global
// and one local symbol, a relocation against the global, and the string
// tables.
func makeTestFile() *File {
	f := NewFile(*testHeader(elf.ELFCLASS64, elf.ELFDATA2LSB))
	f.Sections = append(f.Sections, NullSection())
	text := NewSection([]byte(".text"), elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR,
		Raw{0x48, 0x31, 0xff, 0xb8, 0x3c, 0x00, 0x00, 0x00, 0x0f, 0x05}, 0, 0)
	text.Header.Addralign = 16
	f.Sections = append(f.Sections, text)

	syms := Symbols{
		{},
		{Name: []byte("local"), Type: elf.STT_NOTYPE, Bind: elf.STB_LOCAL, Shndx: 1, Value: 0},
		{Name: []byte("_start"), Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Shndx: 1, Value: 0, Size: 10},
	}
	f.Sections = append(f.Sections, NewSection([]byte(".symtab"), elf.SHT_SYMTAB, 0, syms, 3, 0))
	f.Sections = append(f.Sections, NewSection([]byte(".strtab"), elf.SHT_STRTAB, 0, NewStrtab(), 0, 0))

	rela := Relocations{{Addr: 4, Type: elf.R_X86_64_64, Sym: 2, Addend: 0}}
	f.Sections = append(f.Sections, NewSection([]byte(".rela.text"), elf.SHT_RELA, 0, rela, 2, 1))

	f.Sections = append(f.Sections, NewSection([]byte(".shstrtab"), elf.SHT_STRTAB, 0, NewStrtab(), 0, 0))
	return f
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	if err := f.SyncAll(); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	layoutSequential(f)

	var buf seekBuffer
	if err := f.ToWriter(&buf); err != nil {
		t.Fatalf("ToWriter: %v", err)
	}

	got, err := FromReader(bytes.NewReader(buf.b))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if err := got.LoadAll(bytes.NewReader(buf.b)); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if len(got.Sections) != len(f.Sections) {
		t.Fatalf("want %d sections, got %d", len(f.Sections), len(got.Sections))
	}
	for i, sec := range got.Sections {
		if !bytes.Equal(sec.Name, f.Sections[i].Name) {
			t.Errorf("section %d: want name %q, got %q", i, f.Sections[i].Name, sec.Name)
		}
		if sec.Header.Type != f.Sections[i].Header.Type {
			t.Errorf("section %q: want type %v, got %v", sec.Name, f.Sections[i].Header.Type, sec.Header.Type)
		}
	}

	raw, ok := got.Sections[1].Raw()
	want, _ := f.Sections[1].Raw()
	if !ok || !bytes.Equal(raw, want) {
		t.Errorf(".text content mismatch: want % x, got % x", want, raw)
	}

	syms, ok := got.Sections[2].Symbols()
	if !ok {
		t.Fatalf(".symtab did not decode as symbols")
	}
	if len(syms) != 3 || !bytes.Equal(syms[2].Name, []byte("_start")) {
		t.Errorf("symbols did not survive: %+v", syms)
	}
	if syms[2].Bind != elf.STB_GLOBAL || syms[2].Size != 10 {
		t.Errorf("_start symbol corrupted: %+v", syms[2])
	}

	relocs, ok := got.Sections[4].Relocations()
	wantRelocs, _ := f.Sections[4].Relocations()
	if !ok || len(relocs) != 1 || relocs[0] != wantRelocs[0] {
		t.Errorf("relocations: want %+v, got %+v", wantRelocs, relocs)
	}

	// A second write after sync must be byte-identical: sync is a
	// normalization fixed point.
	if err := got.SyncAll(); err != nil {
		t.Fatalf("second SyncAll: %v", err)
	}
	var buf2 seekBuffer
	if err := got.ToWriter(&buf2); err != nil {
		t.Fatalf("second ToWriter: %v", err)
	}
	if !bytes.Equal(buf.b, buf2.b) {
		t.Errorf("second write differs from first (%d vs %d bytes)", len(buf.b), len(buf2.b))
	}
}

func TestSyncAllFixpoint(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	if err := f.SyncAll(); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	// Symbol names must have reached the linked strtab.
	strs, _ := f.Sections[3].Strtab()
	found := false
	off := uint32(0)
	for int(off) < strs.Len() {
		s := strs.Get(off)
		if bytes.Equal(s, []byte("_start")) {
			found = true
		}
		off += uint32(len(s)) + 1
	}
	if !found {
		t.Errorf("_start never reached .strtab")
	}

	// Sizes are derived, not user-set.
	if want := uint64(3 * SymbolEntsize(&f.Header)); f.Sections[2].Header.Size != want {
		t.Errorf(".symtab size: want %d, got %d", want, f.Sections[2].Header.Size)
	}
	if f.Sections[2].Header.Entsize != uint64(SymbolEntsize(&f.Header)) {
		t.Errorf(".symtab entsize: got %d", f.Sections[2].Header.Entsize)
	}
	// Info points at the first global.
	if f.Sections[2].Header.Info != 2 {
		t.Errorf(".symtab info: want 2, got %d", f.Sections[2].Header.Info)
	}
	// The name table index follows the .shstrtab section.
	if f.Header.Shstrndx != 5 {
		t.Errorf("shstrndx: want 5, got %d", f.Header.Shstrndx)
	}

	// Syncing again must not change any derived field.
	size := f.Sections[5].Header.Size
	if err := f.SyncAll(); err != nil {
		t.Fatalf("second SyncAll: %v", err)
	}
	if f.Sections[5].Header.Size != size {
		t.Errorf(".shstrtab grew on re-sync: %d -> %d", size, f.Sections[5].Header.Size)
	}
}

func TestSyncUnloaded(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	f.Sections[1].Content = Unloaded{}
	err := f.SyncAll()
	if !errors.Is(err, ErrSyncingUnloaded) {
		t.Errorf("want ErrSyncingUnloaded, got %v", err)
	}
}

func TestWriteUnloaded(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	if err := f.SyncAll(); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	layoutSequential(f)
	f.Sections[1].Content = Unloaded{}
	var buf seekBuffer
	err := f.ToWriter(&buf)
	if !errors.Is(err, ErrWritingUnloaded) {
		t.Errorf("want ErrWritingUnloaded, got %v", err)
	}
}

// linkTargets records which logical section each link/info referred to
// before an edit, by name.
func linkTargets(f *File) map[string][2]string {
	out := make(map[string][2]string)
	for _, sec := range f.Sections {
		var link, info string
		if int(sec.Header.Link) < len(f.Sections) {
			link = string(f.Sections[sec.Header.Link].Name)
		}
		if sec.Header.Flags&elf.SHF_INFO_LINK != 0 && int(sec.Header.Info) < len(f.Sections) {
			info = string(f.Sections[sec.Header.Info].Name)
		}
		out[string(sec.Name)] = [2]string{link, info}
	}
	return out
}

func TestRemoveSection(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	// .symtab is at 2, .strtab at 3, .rela.text at 4 (link=2, info=1).
	f.Sections[4].Header.Flags |= elf.SHF_INFO_LINK

	f.RemoveSection(1) // remove .text
	// .symtab moved to 1; its link to .strtab must follow it down.
	if got := f.Sections[1].Header.Link; got != 2 {
		t.Errorf(".symtab link: want 2, got %d", got)
	}
	// .rela.text's info link to the removed section dangles to 0.
	if got := f.Sections[3].Header.Info; got != 0 {
		t.Errorf(".rela.text info: want 0 (dangling), got %d", got)
	}
	// Its symtab link shifts down.
	if got := f.Sections[3].Header.Link; got != 1 {
		t.Errorf(".rela.text link: want 1, got %d", got)
	}
}

func TestInsertSection(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	f.Sections[4].Header.Flags |= elf.SHF_INFO_LINK
	before := linkTargets(f)

	f.InsertSection(3, NewSection([]byte(".interp"), elf.SHT_PROGBITS, elf.SHF_ALLOC, Raw("x"), 0, 0))

	after := linkTargets(f)
	for name, want := range before {
		if got := after[name]; got != want {
			t.Errorf("section %s: links changed from %v to %v", name, want, got)
		}
	}
}

func TestMoveSectionInverse(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	f.Sections[4].Header.Flags |= elf.SHF_INFO_LINK
	before := linkTargets(f)
	var names []string
	for _, sec := range f.Sections {
		names = append(names, string(sec.Name))
	}

	const i, j = 1, 4
	f.MoveSection(i, j)
	f.MoveSection(j-1, i)

	for k, sec := range f.Sections {
		if string(sec.Name) != names[k] {
			t.Errorf("section %d: want %s, got %s", k, names[k], sec.Name)
		}
	}
	after := linkTargets(f)
	for name, want := range before {
		if got := after[name]; got != want {
			t.Errorf("section %s: links changed from %v to %v", name, want, got)
		}
	}
}

func TestMoveSectionTracksLinks(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	// Move .strtab (3) to the end; .symtab's link must follow it.
	f.MoveSection(3, len(f.Sections))
	if want := string(f.Sections[f.Sections[2].Header.Link].Name); want != ".strtab" {
		t.Errorf(".symtab link points at %q after move", want)
	}
}

func TestLoadLinkedFirst(t *testing.T) {
	t.Parallel()
	f := makeTestFile()
	if err := f.SyncAll(); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	layoutSequential(f)
	var buf seekBuffer
	if err := f.ToWriter(&buf); err != nil {
		t.Fatalf("ToWriter: %v", err)
	}

	got, err := FromReader(bytes.NewReader(buf.b))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	// Loading only the symbol table must pull in its string table so
	// symbol names resolve.
	if err := got.Load(2, bytes.NewReader(buf.b)); err != nil {
		t.Fatalf("Load(.symtab): %v", err)
	}
	if _, ok := got.Sections[3].Strtab(); !ok {
		t.Errorf("linked .strtab was not loaded")
	}
	syms, _ := got.Sections[2].Symbols()
	if len(syms) != 3 || !bytes.Equal(syms[2].Name, []byte("_start")) {
		t.Errorf("symbol names not resolved: %+v", syms)
	}
	// Unrelated sections stay unloaded.
	if _, ok := got.Sections[1].Content.(Unloaded); !ok {
		t.Errorf(".text was loaded eagerly")
	}
}

func TestSymHash(t *testing.T) {
	t.Parallel()
	eh := testHeader(elf.ELFCLASS64, elf.ELFDATA2LSB)
	syms := Symbols{{}, {Name: []byte("f"), Bind: elf.STB_GLOBAL}}
	sec, err := SymHash(eh, syms, 3)
	if err != nil {
		t.Fatalf("SymHash: %v", err)
	}
	if sec.Header.Type != elf.SHT_HASH || sec.Header.Link != 3 {
		t.Errorf("hash header: %+v", sec.Header)
	}
	raw, _ := sec.Raw()
	l := eh.Layout()
	nbucket := l.Uint32(raw[0:])
	nchain := l.Uint32(raw[4:])
	if nbucket != 3 || nchain != 2 {
		t.Fatalf("nbucket/nchain: got %d/%d", nbucket, nchain)
	}
	// Symbol 1 must be reachable from its bucket.
	b := elfHash([]byte("f")) % nbucket
	if got := l.Uint32(raw[8+4*b:]); got != 1 {
		t.Errorf("bucket %d: want symbol 1, got %d", b, got)
	}
	if len(raw) != int(4*(2+nbucket+nchain)) {
		t.Errorf("hash section size %d", len(raw))
	}
}
