// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"sort"
)

// A File is a mutable ELF container: a header, an ordered section
// sequence, and a program header sequence.
//
// The section at index 0 is the reserved null section. Sections refer to
// each other by index through Header.Link and Header.Info; the structural
// edit methods keep those references valid.
type File struct {
	Header   Header
	Sections []*Section
	Segments []SegmentHeader
}

// NewFile returns an empty container with the given header.
func NewFile(h Header) *File {
	return &File{Header: h}
}

// FromReader parses the header, the program header table and all section
// headers, and resolves section names from the section name table. Section
// contents are left Unloaded.
func FromReader(r io.ReadSeeker) (*File, error) {
	f := new(File)
	if err := f.Header.FromReader(r); err != nil {
		return nil, err
	}

	if f.Header.Phnum > 0 {
		if _, err := r.Seek(int64(f.Header.Phoff), io.SeekStart); err != nil {
			return nil, err
		}
		f.Segments = make([]SegmentHeader, f.Header.Phnum)
		for i := range f.Segments {
			if err := f.Segments[i].FromReader(r, &f.Header); err != nil {
				return nil, err
			}
		}
	}

	if _, err := r.Seek(int64(f.Header.Shoff), io.SeekStart); err != nil {
		return nil, err
	}
	f.Sections = make([]*Section, 0, f.Header.Shnum)
	for i := 0; i < int(f.Header.Shnum); i++ {
		s := &Section{Content: Unloaded{}}
		if err := s.Header.FromReader(r, &f.Header); err != nil {
			return nil, err
		}
		f.Sections = append(f.Sections, s)
	}

	// Resolve section names. The name table is read raw here rather than
	// through Load so parsing leaves every section Unloaded.
	if int(f.Header.Shstrndx) >= len(f.Sections) {
		return nil, ErrMissingShstrtab
	}
	shstr := f.Sections[f.Header.Shstrndx]
	if _, err := r.Seek(int64(shstr.Header.Offset), io.SeekStart); err != nil {
		return nil, err
	}
	names := make([]byte, shstr.Header.Size)
	if _, err := io.ReadFull(r, names); err != nil {
		return nil, &TruncatedError{"section name table", err}
	}
	for _, s := range f.Sections {
		if int(s.Header.Name) < len(names) {
			n := names[s.Header.Name:]
			if i := bytes.IndexByte(n, 0); i >= 0 {
				n = n[:i]
			}
			s.Name = n
		}
	}
	return f, nil
}

// Load materializes section i. If the section links to another section
// (symbols need their string table, relocations their symbol table), the
// linked section is loaded first. Loading an already-loaded section is a
// no-op.
func (f *File) Load(i int, r io.ReadSeeker) error {
	sec := f.Sections[i]
	if _, ok := sec.Content.(Unloaded); !ok {
		return nil
	}
	var linked *Section
	if l := int(sec.Header.Link); l >= 1 && l < len(f.Sections) {
		if err := f.Load(l, r); err != nil {
			return err
		}
		linked = f.Sections[l]
	}
	return sec.fromReader(r, linked, &f.Header)
}

// LoadAll materializes every section.
func (f *File) LoadAll(r io.ReadSeeker) error {
	for i := range f.Sections {
		if err := f.Load(i, r); err != nil {
			return fmt.Errorf("loading section %d (%s): %w", i, f.Sections[i].Name, err)
		}
	}
	return nil
}

// SyncAll flows derived state into linked sections and headers: section
// names are re-interned into .shstrtab, and every section's Sync runs to a
// fixed point. Symbol sync grows its linked string table, which dirties the
// string table again; the queue terminates once all strings are interned.
// After SyncAll, Size is reliable for every section.
func (f *File) SyncAll() error {
	for i, s := range f.Sections {
		if bytes.Equal(s.Name, []byte(".shstrtab")) {
			f.Header.Shstrndx = uint16(i)
			strs, ok := s.Strtab()
			if !ok {
				return fmt.Errorf("section .shstrtab: %w", ErrUnexpectedContent)
			}
			for _, sec := range f.Sections {
				sec.Header.Name = strs.Insert(sec.Name)
			}
			break
		}
	}

	dirty := make([]int, len(f.Sections))
	for i := range dirty {
		dirty[i] = i
	}
	for len(dirty) > 0 {
		work := dirty
		dirty = nil
		for _, i := range work {
			sec := f.Sections[i]
			var linked Content
			if l := int(sec.Header.Link); l >= 1 && l < len(f.Sections) {
				dirty = append(dirty, l)
				linked = f.Sections[l].Content
			}
			if err := sec.Sync(&f.Header, linked); err != nil {
				return fmt.Errorf("syncing section %d (%s): %w", i, sec.Name, err)
			}
		}
	}
	return nil
}

// ToWriter writes the image: the header, the program header table directly
// after it (it must land inside the first LOAD segment or the kernel
// passes an invalid aux vector), section contents ordered by their
// assigned offsets, and, when Header.Shstrndx names a section name table,
// the section header table at end of file. The header is rewritten at
// offset 0 with final counts and offsets.
func (f *File) ToWriter(w io.WriteSeeker) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	off := f.Header.Size()
	if _, err := w.Write(make([]byte, off)); err != nil {
		return err
	}

	if len(f.Segments) > 0 {
		f.Header.Phoff = uint64(off)
		for i := range f.Segments {
			if err := f.Segments[i].ToWriter(w, &f.Header); err != nil {
				return err
			}
		}
		f.Header.Phnum = uint16(len(f.Segments))
		f.Header.Phentsize = uint16(SegmentHeaderEntsize(&f.Header))
	}

	// Snapshot headers in table order before writing contents in offset
	// order.
	headers := make([]SectionHeader, len(f.Sections))
	for i, s := range f.Sections {
		headers[i] = s.Header
	}

	sorted := make([]*Section, len(f.Sections))
	copy(sorted, f.Sections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Header.Offset < sorted[j].Header.Offset
	})
	for _, sec := range sorted {
		if _, err := w.Seek(int64(sec.Header.Offset), io.SeekStart); err != nil {
			return err
		}
		if err := sec.toWriter(w, &f.Header); err != nil {
			return fmt.Errorf("writing section %s: %w", sec.Name, err)
		}
	}

	if f.Header.Shstrndx > 0 {
		end, err := w.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		f.Header.Shoff = uint64(end)
		for i := range headers {
			if err := headers[i].ToWriter(w, &f.Header); err != nil {
				return err
			}
		}
		f.Header.Shnum = uint16(len(headers))
		f.Header.Shentsize = uint16(SectionHeaderEntsize(&f.Header))
	}

	f.Header.Ehsize = uint16(f.Header.Size())
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return f.Header.ToWriter(w)
}

// RemoveSection removes the section at index at and returns it. Links to
// the removed section dangle to 0; links past it shift down. Info
// references are treated the same way for sections carrying INFO_LINK.
func (f *File) RemoveSection(at int) *Section {
	r := f.Sections[at]
	f.Sections = append(f.Sections[:at], f.Sections[at+1:]...)

	for _, sec := range f.Sections {
		if sec.Header.Link == uint32(at) {
			sec.Header.Link = 0
		} else if sec.Header.Link > uint32(at) {
			sec.Header.Link--
		}
		if sec.Header.Flags&elf.SHF_INFO_LINK != 0 {
			if sec.Header.Info == uint32(at) {
				sec.Header.Info = 0
			} else if sec.Header.Info > uint32(at) {
				sec.Header.Info--
			}
		}
	}
	return r
}

// InsertSection inserts s at index at, shifting cross-references up.
func (f *File) InsertSection(at int, s *Section) {
	f.Sections = append(f.Sections, nil)
	copy(f.Sections[at+1:], f.Sections[at:])
	f.Sections[at] = s

	for _, sec := range f.Sections {
		if sec.Header.Link >= uint32(at) {
			sec.Header.Link++
		}
		if sec.Header.Flags&elf.SHF_INFO_LINK != 0 {
			if sec.Header.Info >= uint32(at) {
				sec.Header.Info++
			}
		}
	}
}

// moveSentinel is a link/info placeholder that survives the remove+insert
// index shifts of MoveSection.
const moveSentinel = 0xF423F

// MoveSection moves the section at index from to index to, translating
// every link/info reference to the moved section through a sentinel so it
// lands on the final index.
func (f *File) MoveSection(from, to int) {
	if from == to {
		return
	}
	if to > from {
		to--
	}

	for _, sec := range f.Sections {
		if sec.Header.Link == uint32(from) {
			sec.Header.Link = moveSentinel
		}
		if sec.Header.Flags&elf.SHF_INFO_LINK != 0 {
			if sec.Header.Info == uint32(from) {
				sec.Header.Info = moveSentinel
			}
		}
	}
	s := f.RemoveSection(from)
	f.InsertSection(to, s)
	for _, sec := range f.Sections {
		if sec.Header.Link == moveSentinel {
			sec.Header.Link = uint32(to)
		}
		if sec.Header.Flags&elf.SHF_INFO_LINK != 0 {
			if sec.Header.Info == moveSentinel {
				sec.Header.Info = uint32(to)
			}
		}
	}
}
