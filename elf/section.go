// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"debug/elf"
	"fmt"
	"io"
)

// A SectionHeader is the wire-level description of a section.
type SectionHeader struct {
	Name      uint32
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// sectionFlagMask is the set of flag bits defined by the gABI and the
// OS/processor-reserved ranges.
const sectionFlagMask = elf.SHF_WRITE | elf.SHF_ALLOC | elf.SHF_EXECINSTR |
	elf.SHF_MERGE | elf.SHF_STRINGS | elf.SHF_INFO_LINK | elf.SHF_LINK_ORDER |
	elf.SHF_OS_NONCONFORMING | elf.SHF_GROUP | elf.SHF_TLS | elf.SHF_COMPRESSED |
	elf.SHF_MASKOS | elf.SHF_MASKPROC

// SectionHeaderEntsize returns the encoded size of one section header.
func SectionHeaderEntsize(eh *Header) int {
	if eh.Class == elf.ELFCLASS32 {
		return 40
	}
	return 64
}

// FromReader decodes one section header.
func (sh *SectionHeader) FromReader(r io.Reader, eh *Header) error {
	n := SectionHeaderEntsize(eh)
	if int(eh.Shentsize) > n {
		n = int(eh.Shentsize)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return &TruncatedError{"section header", err}
	}

	l := eh.Layout()
	ws := l.WordSize()
	sh.Name = l.Uint32(b[0:])
	sh.Type = elf.SectionType(l.Uint32(b[4:]))
	b = b[8:]
	flags := l.Word(b)
	if flags&^uint64(sectionFlagMask) != 0 {
		return &InvalidSectionFlagsError{flags}
	}
	sh.Flags = elf.SectionFlag(flags)
	sh.Addr = l.Word(b[ws:])
	sh.Offset = l.Word(b[2*ws:])
	sh.Size = l.Word(b[3*ws:])
	b = b[4*ws:]
	sh.Link = l.Uint32(b[0:])
	sh.Info = l.Uint32(b[4:])
	b = b[8:]
	sh.Addralign = l.Word(b)
	sh.Entsize = l.Word(b[ws:])
	return nil
}

// ToWriter encodes one section header.
func (sh *SectionHeader) ToWriter(w io.Writer, eh *Header) error {
	if uint64(sh.Flags)&^uint64(sectionFlagMask) != 0 {
		return &InvalidSectionFlagsError{uint64(sh.Flags)}
	}
	l := eh.Layout()
	ws := l.WordSize()
	b := make([]byte, SectionHeaderEntsize(eh))
	l.PutUint32(b[0:], sh.Name)
	l.PutUint32(b[4:], uint32(sh.Type))
	p := b[8:]
	l.PutWord(p, uint64(sh.Flags))
	l.PutWord(p[ws:], sh.Addr)
	l.PutWord(p[2*ws:], sh.Offset)
	l.PutWord(p[3*ws:], sh.Size)
	p = p[4*ws:]
	l.PutUint32(p[0:], sh.Link)
	l.PutUint32(p[4:], sh.Info)
	l.PutWord(p[8:], sh.Addralign)
	l.PutWord(p[8+ws:], sh.Entsize)
	_, err := w.Write(b)
	return err
}

// Content is the typed payload of a section. It is a tagged union;
// consumers switch on the concrete type, or use the partial accessors on
// Section.
type Content interface {
	size(eh *Header) int
}

// Unloaded marks a section whose header has been parsed but whose bytes
// have not been materialized.
type Unloaded struct{}

func (Unloaded) size(eh *Header) int { panic("size of unloaded section") }

// NoBits marks a section that occupies no file bytes (SHT_NOBITS).
type NoBits struct{}

func (NoBits) size(eh *Header) int { return 0 }

// Raw is untyped section content.
type Raw []byte

func (c Raw) size(eh *Header) int { return len(c) }

// Symbols is the content of a SYMTAB or DYNSYM section.
type Symbols []Symbol

func (c Symbols) size(eh *Header) int { return len(c) * SymbolEntsize(eh) }

// Relocations is the content of a RELA section.
type Relocations []Relocation

func (c Relocations) size(eh *Header) int { return len(c) * RelocationEntsize(eh) }

// DynamicTable is the content of a DYNAMIC section.
type DynamicTable []Dynamic

func (c DynamicTable) size(eh *Header) int { return len(c) * DynamicEntsize(eh) }

func (t *Strtab) size(eh *Header) int { return t.Len() }

// A Section is a named section with its header and typed content.
type Section struct {
	Name    []byte
	Header  SectionHeader
	Content Content
}

// NewSection returns a section with the given name, type, flags, content
// and cross-references. Size and entsize are filled in by Sync, the name
// offset by File.SyncAll.
func NewSection(name []byte, typ elf.SectionType, flags elf.SectionFlag, content Content, link, info uint32) *Section {
	return &Section{
		Name: name,
		Header: SectionHeader{
			Type:  typ,
			Flags: flags,
			Link:  link,
			Info:  info,
		},
		Content: content,
	}
}

// NullSection returns the reserved section at index 0.
func NullSection() *Section {
	return &Section{Content: NoBits{}}
}

// Size returns the encoded size of the section's content.
func (s *Section) Size(eh *Header) int {
	return s.Content.size(eh)
}

// Symbols returns the section's symbol content, if it has any.
func (s *Section) Symbols() (Symbols, bool) {
	c, ok := s.Content.(Symbols)
	return c, ok
}

// Relocations returns the section's relocation content, if it has any.
func (s *Section) Relocations() (Relocations, bool) {
	c, ok := s.Content.(Relocations)
	return c, ok
}

// Strtab returns the section's string table content, if it has any.
func (s *Section) Strtab() (*Strtab, bool) {
	c, ok := s.Content.(*Strtab)
	return c, ok
}

// Raw returns the section's raw content, if it has any.
func (s *Section) Raw() (Raw, bool) {
	c, ok := s.Content.(Raw)
	return c, ok
}

// DynamicTable returns the section's dynamic content, if it has any.
func (s *Section) DynamicTable() (DynamicTable, bool) {
	c, ok := s.Content.(DynamicTable)
	return c, ok
}

func (s *Section) String() string {
	return fmt.Sprintf("%s %s", s.Name, s.Header.Type)
}

// Sync writes derived header fields (size, entsize, first-global info for
// symbol tables) and pushes content that lives in a linked section, such
// as symbol names, into linked.
func (s *Section) Sync(eh *Header, linked Content) error {
	switch c := s.Content.(type) {
	case Unloaded:
		return ErrSyncingUnloaded
	case Relocations:
		s.Header.Entsize = uint64(RelocationEntsize(eh))
	case Symbols:
		for i := range c {
			if c[i].Bind == elf.STB_GLOBAL {
				s.Header.Info = uint32(i)
				break
			}
		}
		for i := range c {
			if err := c[i].sync(linked, eh); err != nil {
				return err
			}
		}
		s.Header.Entsize = uint64(SymbolEntsize(eh))
	case DynamicTable:
		s.Header.Entsize = uint64(DynamicEntsize(eh))
	case *Strtab:
		s.Header.Entsize = 0
	}
	if s.Header.Type != elf.SHT_NOBITS {
		s.Header.Size = uint64(s.Size(eh))
	}
	return nil
}

// fromReader materializes the section's content. linked is the section
// named by Header.Link, already loaded, or nil.
func (s *Section) fromReader(r io.ReadSeeker, linked *Section, eh *Header) error {
	if _, ok := s.Content.(Unloaded); !ok {
		return nil
	}
	if _, err := r.Seek(int64(s.Header.Offset), io.SeekStart); err != nil {
		return err
	}
	var linkedContent Content
	if linked != nil {
		linkedContent = linked.Content
	}

	if s.Header.Type == elf.SHT_NOBITS {
		s.Content = NoBits{}
		return nil
	}
	b := make([]byte, s.Header.Size)
	if _, err := io.ReadFull(r, b); err != nil {
		return &TruncatedError{"section", err}
	}
	var err error
	switch s.Header.Type {
	case elf.SHT_STRTAB:
		s.Content = strtabFromBytes(b)
	case elf.SHT_RELA:
		s.Content, err = decodeRelocations(b, eh)
	case elf.SHT_SYMTAB, elf.SHT_DYNSYM:
		s.Content, err = decodeSymbols(b, linkedContent, eh)
	case elf.SHT_DYNAMIC:
		s.Content, err = decodeDynamic(b, eh)
	default:
		s.Content = Raw(b)
	}
	return err
}

// toWriter encodes the section's content at the current position. The
// caller has already sought to Header.Offset.
func (s *Section) toWriter(w io.Writer, eh *Header) error {
	var n int
	switch c := s.Content.(type) {
	case Unloaded:
		return ErrWritingUnloaded
	case NoBits:
		// Occupies no file bytes; size stays whatever layout assigned.
		return nil
	case Raw:
		if _, err := w.Write(c); err != nil {
			return err
		}
		n = len(c)
	case Relocations:
		es := RelocationEntsize(eh)
		b := make([]byte, es)
		for i := range c {
			c[i].encode(b, eh)
			if _, err := w.Write(b); err != nil {
				return err
			}
		}
		n = len(c) * es
	case Symbols:
		es := SymbolEntsize(eh)
		b := make([]byte, es)
		for i := range c {
			c[i].encode(b, eh)
			if _, err := w.Write(b); err != nil {
				return err
			}
		}
		n = len(c) * es
	case DynamicTable:
		es := DynamicEntsize(eh)
		b := make([]byte, es)
		for i := range c {
			c[i].encode(b, eh)
			if _, err := w.Write(b); err != nil {
				return err
			}
		}
		n = len(c) * es
	case *Strtab:
		if _, err := w.Write(c.Bytes()); err != nil {
			return err
		}
		n = c.Len()
	default:
		return ErrUnexpectedContent
	}
	if uint64(n) != s.Header.Size {
		panic(fmt.Sprintf("section %s size out of sync: wrote %d, header says %d (missing Sync?)", s.Name, n, s.Header.Size))
	}
	return nil
}
