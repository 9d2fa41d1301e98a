// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elf reads and writes ELF object files.
//
// Unlike debug/elf, this package models an ELF file as a mutable container:
// sections carry typed content (symbols, relocations, dynamic entries,
// string tables) that can be edited, synced back into wire form, and written
// out again. All psABI constants come from debug/elf.
package elf

import (
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/aclements/go-link/arch"
)

// A Header is the ELF file header.
//
// Offsets and counts for the program and section header tables are
// maintained by File.ToWriter; callers normally set only the identity
// fields (class, endianness, ABI, type, machine) and Entry.
type Header struct {
	Class      elf.Class
	Endianness elf.Data
	Version    uint8
	ABI        elf.OSABI
	ABIVersion uint8

	Type    elf.Type
	Machine elf.Machine
	Entry   uint64
	Flags   uint32

	Phoff     uint64
	Shoff     uint64
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Layout returns the byte order and word size implied by the header's
// ident fields. It defaults to ELF64 little-endian when the ident fields
// are unset.
func (h *Header) Layout() arch.Layout {
	order := binary.ByteOrder(binary.LittleEndian)
	if h.Endianness == elf.ELFDATA2MSB {
		order = binary.BigEndian
	}
	wordSize := 8
	if h.Class == elf.ELFCLASS32 {
		wordSize = 4
	}
	return arch.NewLayout(order, wordSize)
}

// Size returns the encoded size of the header in bytes.
func (h *Header) Size() int {
	if h.Class == elf.ELFCLASS32 {
		return 52
	}
	return 64
}

// FromReader decodes the ELF header, including the 16-byte ident.
func (h *Header) FromReader(r io.Reader) error {
	var ident [16]byte
	if _, err := io.ReadFull(r, ident[:]); err != nil {
		return &TruncatedError{"header", err}
	}
	if ident[0] != '\x7f' || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return ErrInvalidMagic
	}
	h.Class = elf.Class(ident[elf.EI_CLASS])
	h.Endianness = elf.Data(ident[elf.EI_DATA])
	h.Version = ident[elf.EI_VERSION]
	h.ABI = elf.OSABI(ident[elf.EI_OSABI])
	h.ABIVersion = ident[elf.EI_ABIVERSION]

	l := h.Layout()
	b := make([]byte, h.Size()-16)
	if _, err := io.ReadFull(r, b); err != nil {
		return &TruncatedError{"header", err}
	}
	h.Type = elf.Type(l.Uint16(b[0:]))
	h.Machine = elf.Machine(l.Uint16(b[2:]))
	b = b[8:] // skip e_version
	h.Entry = l.Word(b)
	b = b[l.WordSize():]
	h.Phoff = l.Word(b)
	b = b[l.WordSize():]
	h.Shoff = l.Word(b)
	b = b[l.WordSize():]
	h.Flags = l.Uint32(b[0:])
	h.Ehsize = l.Uint16(b[4:])
	h.Phentsize = l.Uint16(b[6:])
	h.Phnum = l.Uint16(b[8:])
	h.Shentsize = l.Uint16(b[10:])
	h.Shnum = l.Uint16(b[12:])
	h.Shstrndx = l.Uint16(b[14:])
	return nil
}

// ToWriter encodes the header.
func (h *Header) ToWriter(w io.Writer) error {
	b := make([]byte, h.Size())
	b[0], b[1], b[2], b[3] = '\x7f', 'E', 'L', 'F'
	b[elf.EI_CLASS] = byte(h.Class)
	b[elf.EI_DATA] = byte(h.Endianness)
	b[elf.EI_VERSION] = byte(h.Version)
	b[elf.EI_OSABI] = byte(h.ABI)
	b[elf.EI_ABIVERSION] = byte(h.ABIVersion)

	l := h.Layout()
	p := b[16:]
	l.PutUint16(p[0:], uint16(h.Type))
	l.PutUint16(p[2:], uint16(h.Machine))
	l.PutUint32(p[4:], 1) // e_version
	p = p[8:]
	l.PutWord(p, h.Entry)
	p = p[l.WordSize():]
	l.PutWord(p, h.Phoff)
	p = p[l.WordSize():]
	l.PutWord(p, h.Shoff)
	p = p[l.WordSize():]
	l.PutUint32(p[0:], h.Flags)
	l.PutUint16(p[4:], h.Ehsize)
	l.PutUint16(p[6:], h.Phentsize)
	l.PutUint16(p[8:], h.Phnum)
	l.PutUint16(p[10:], h.Shentsize)
	l.PutUint16(p[12:], h.Shnum)
	l.PutUint16(p[14:], h.Shstrndx)
	_, err := w.Write(b)
	return err
}
