// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"debug/elf"
	"fmt"
)

// elfHash is the SysV ABI symbol hash function.
func elfHash(name []byte) uint32 {
	var h uint32
	for _, c := range name {
		h = h<<4 + uint32(c)
		g := h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}
		h &^= g
	}
	return h
}

// SymHash builds a SysV .hash section over syms. nbucket is also the
// section index the linked symbol table will be inserted at, and doubles
// as the bucket count.
//
// Using the symbol table's upcoming index as the bucket count is an oddity
// inherited from the original layout code; the SysV ABI derives the bucket
// count from the symbol count instead. See DESIGN.md.
func SymHash(eh *Header, syms Symbols, nbucket uint32) (*Section, error) {
	if nbucket == 0 {
		return nil, fmt.Errorf("symbol hash: zero bucket count")
	}
	nchain := uint32(len(syms))
	buckets := make([]uint32, nbucket)
	chains := make([]uint32, nchain)
	for i := 1; i < len(syms); i++ {
		b := elfHash(syms[i].Name) % nbucket
		chains[i] = buckets[b]
		buckets[b] = uint32(i)
	}

	l := eh.Layout()
	raw := make(Raw, 4*(2+int(nbucket)+int(nchain)))
	l.PutUint32(raw[0:], nbucket)
	l.PutUint32(raw[4:], nchain)
	p := raw[8:]
	for _, v := range buckets {
		l.PutUint32(p, v)
		p = p[4:]
	}
	for _, v := range chains {
		l.PutUint32(p, v)
		p = p[4:]
	}

	sec := NewSection([]byte(".hash"), elf.SHT_HASH, elf.SHF_ALLOC, raw, nbucket, 0)
	sec.Header.Addralign = 8
	sec.Header.Entsize = 4
	return sec, nil
}
