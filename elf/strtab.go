// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import "bytes"

// A Strtab is a content-addressed ELF string table.
//
// Offset 0 is always the empty string. Inserting equal bytes yields equal
// offsets.
type Strtab struct {
	data  []byte
	index map[string]uint32
}

// NewStrtab returns an empty string table containing only the leading NUL.
func NewStrtab() *Strtab {
	return &Strtab{data: []byte{0}, index: map[string]uint32{"": 0}}
}

// strtabFromBytes reconstructs a string table from its wire form, indexing
// every NUL-terminated entry so later inserts reuse existing offsets.
func strtabFromBytes(b []byte) *Strtab {
	t := &Strtab{data: b, index: make(map[string]uint32)}
	if len(b) == 0 {
		t.data = []byte{0}
	}
	off := 0
	for off < len(t.data) {
		end := bytes.IndexByte(t.data[off:], 0)
		if end < 0 {
			end = len(t.data) - off
		}
		s := string(t.data[off : off+end])
		if _, ok := t.index[s]; !ok {
			t.index[s] = uint32(off)
		}
		off += end + 1
	}
	return t
}

// Insert interns s and returns its offset.
func (t *Strtab) Insert(s []byte) uint32 {
	if off, ok := t.index[string(s)]; ok {
		return off
	}
	off := uint32(len(t.data))
	t.data = append(t.data, s...)
	t.data = append(t.data, 0)
	t.index[string(s)] = off
	return off
}

// Get returns the NUL-terminated string at off, without the NUL. An offset
// past the end of the table yields an empty string.
func (t *Strtab) Get(off uint32) []byte {
	if int(off) >= len(t.data) {
		return nil
	}
	s := t.data[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

// Len returns the encoded size of the table in bytes.
func (t *Strtab) Len() int {
	return len(t.data)
}

// Bytes returns the wire form of the table. Callers must not modify it.
func (t *Strtab) Bytes() []byte {
	return t.data
}
