// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"testing"
)

func TestStrtabInterning(t *testing.T) {
	t.Parallel()
	tab := NewStrtab()

	if off := tab.Insert(nil); off != 0 {
		t.Errorf("Insert(\"\"): want offset 0, got %d", off)
	}
	a := tab.Insert([]byte(".text"))
	b := tab.Insert([]byte(".data"))
	if a == b {
		t.Errorf("distinct strings share offset %d", a)
	}
	if got := tab.Insert([]byte(".text")); got != a {
		t.Errorf("Insert(.text) twice: want %d, got %d", a, got)
	}
	if got := tab.Get(a); !bytes.Equal(got, []byte(".text")) {
		t.Errorf("Get(%d): want .text, got %q", a, got)
	}
}

func TestStrtabRoundTrip(t *testing.T) {
	t.Parallel()
	tab := NewStrtab()
	names := [][]byte{[]byte(".text"), []byte(".symtab"), []byte("_start")}
	offs := make([]uint32, len(names))
	for i, n := range names {
		offs[i] = tab.Insert(n)
	}

	nu := strtabFromBytes(append([]byte(nil), tab.Bytes()...))
	for i, n := range names {
		if got := nu.Get(offs[i]); !bytes.Equal(got, n) {
			t.Errorf("after round trip, Get(%d): want %q, got %q", offs[i], n, got)
		}
		// Re-inserting must find the existing entry, not grow the table.
		if got := nu.Insert(n); got != offs[i] {
			t.Errorf("after round trip, Insert(%q): want %d, got %d", n, offs[i], got)
		}
	}
	if nu.Len() != tab.Len() {
		t.Errorf("round trip changed length: %d != %d", nu.Len(), tab.Len())
	}
}

func TestStrtabEmptyWire(t *testing.T) {
	t.Parallel()
	// A zero-length loaded table must still intern the empty string at 0.
	tab := strtabFromBytes(nil)
	if off := tab.Insert(nil); off != 0 {
		t.Errorf("Insert(\"\") on empty wire table: want 0, got %d", off)
	}
}
