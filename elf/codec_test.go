// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"debug/elf"
	"reflect"
	"testing"
)

func testHeader(class elf.Class, data elf.Data) *Header {
	return &Header{
		Class:      class,
		Endianness: data,
		Version:    1,
		Type:       elf.ET_REL,
		Machine:    elf.EM_X86_64,
	}
}

func forEachLayout(t *testing.T, cb func(t *testing.T, eh *Header)) {
	for _, class := range []elf.Class{elf.ELFCLASS64, elf.ELFCLASS32} {
		for _, data := range []elf.Data{elf.ELFDATA2LSB, elf.ELFDATA2MSB} {
			eh := testHeader(class, data)
			t.Run(class.String()+"/"+data.String(), func(t *testing.T) {
				cb(t, eh)
			})
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	forEachLayout(t, func(t *testing.T, eh *Header) {
		eh.Entry = 0x12345
		eh.Shstrndx = 3
		eh.Shnum = 7

		var buf bytes.Buffer
		if err := eh.ToWriter(&buf); err != nil {
			t.Fatalf("ToWriter: %v", err)
		}
		if buf.Len() != eh.Size() {
			t.Fatalf("wrote %d bytes, want %d", buf.Len(), eh.Size())
		}

		var got Header
		if err := got.FromReader(bytes.NewReader(buf.Bytes())); err != nil {
			t.Fatalf("FromReader: %v", err)
		}
		if got != *eh {
			t.Errorf("round trip:\nwant %+v\ngot  %+v", *eh, got)
		}
	})
}

func TestHeaderInvalidMagic(t *testing.T) {
	t.Parallel()
	var h Header
	err := h.FromReader(bytes.NewReader(make([]byte, 64)))
	if err != ErrInvalidMagic {
		t.Errorf("want ErrInvalidMagic, got %v", err)
	}
}

func TestHeaderTruncated(t *testing.T) {
	t.Parallel()
	var h Header
	err := h.FromReader(bytes.NewReader([]byte{'\x7f', 'E', 'L', 'F'}))
	var te *TruncatedError
	if !errorsAs(err, &te) {
		t.Errorf("want TruncatedError, got %v", err)
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	t.Parallel()
	forEachLayout(t, func(t *testing.T, eh *Header) {
		want := Symbol{
			Name:  []byte("_start"),
			Type:  elf.STT_FUNC,
			Bind:  elf.STB_GLOBAL,
			Vis:   elf.STV_DEFAULT,
			Shndx: 2,
			Value: 0x40,
			Size:  0x10,
		}
		strs := NewStrtab()
		if err := want.sync(strs, eh); err != nil {
			t.Fatalf("sync: %v", err)
		}

		b := make([]byte, SymbolEntsize(eh))
		want.encode(b, eh)
		got, err := decodeSymbols(b, strs, eh)
		if err != nil {
			t.Fatalf("decodeSymbols: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("want 1 symbol, got %d", len(got))
		}
		if !reflect.DeepEqual(got[0], want) {
			t.Errorf("round trip:\nwant %+v\ngot  %+v", want, got[0])
		}
	})
}

func TestSymbolTruncated(t *testing.T) {
	t.Parallel()
	eh := testHeader(elf.ELFCLASS64, elf.ELFDATA2LSB)
	_, err := decodeSymbols(make([]byte, SymbolEntsize(eh)+1), nil, eh)
	var te *TruncatedError
	if !errorsAs(err, &te) {
		t.Errorf("want TruncatedError, got %v", err)
	}
}

func TestRelocationRoundTrip(t *testing.T) {
	t.Parallel()
	forEachLayout(t, func(t *testing.T, eh *Header) {
		want := Relocation{Addr: 0x102, Type: elf.R_X86_64_64, Sym: 7, Addend: -4}
		b := make([]byte, RelocationEntsize(eh))
		want.encode(b, eh)
		got, err := decodeRelocations(b, eh)
		if err != nil {
			t.Fatalf("decodeRelocations: %v", err)
		}
		if len(got) != 1 || got[0] != want {
			t.Errorf("round trip: want %+v, got %+v", want, got)
		}
	})
}

func TestDynamicRoundTrip(t *testing.T) {
	t.Parallel()
	forEachLayout(t, func(t *testing.T, eh *Header) {
		want := DynamicTable{
			{Tag: elf.DT_FLAGS_1, Val: uint64(elf.DF_1_PIE)},
			{Tag: elf.DT_NULL, Val: 0},
		}
		b := make([]byte, len(want)*DynamicEntsize(eh))
		for i := range want {
			want[i].encode(b[i*DynamicEntsize(eh):], eh)
		}
		got, err := decodeDynamic(b, eh)
		if err != nil {
			t.Fatalf("decodeDynamic: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip: want %+v, got %+v", want, got)
		}
	})
}

func TestSegmentHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	forEachLayout(t, func(t *testing.T, eh *Header) {
		want := SegmentHeader{
			Type:   elf.PT_LOAD,
			Flags:  elf.PF_R | elf.PF_X,
			Offset: 0x300,
			Vaddr:  0x300,
			Paddr:  0x300,
			Filesz: 0x40,
			Memsz:  0x50,
			Align:  0x200000,
		}
		var buf bytes.Buffer
		if err := want.ToWriter(&buf, eh); err != nil {
			t.Fatalf("ToWriter: %v", err)
		}
		if buf.Len() != SegmentHeaderEntsize(eh) {
			t.Fatalf("wrote %d bytes, want %d", buf.Len(), SegmentHeaderEntsize(eh))
		}
		var got SegmentHeader
		if err := got.FromReader(bytes.NewReader(buf.Bytes()), eh); err != nil {
			t.Fatalf("FromReader: %v", err)
		}
		if got != want {
			t.Errorf("round trip:\nwant %+v\ngot  %+v", want, got)
		}
	})
}

func TestSectionHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	forEachLayout(t, func(t *testing.T, eh *Header) {
		eh.Shentsize = uint16(SectionHeaderEntsize(eh))
		want := SectionHeader{
			Name:      5,
			Type:      elf.SHT_PROGBITS,
			Flags:     elf.SHF_ALLOC | elf.SHF_EXECINSTR,
			Addr:      0x400,
			Offset:    0x300,
			Size:      0x42,
			Link:      1,
			Info:      2,
			Addralign: 16,
			Entsize:   0,
		}
		var buf bytes.Buffer
		if err := want.ToWriter(&buf, eh); err != nil {
			t.Fatalf("ToWriter: %v", err)
		}
		var got SectionHeader
		if err := got.FromReader(bytes.NewReader(buf.Bytes()), eh); err != nil {
			t.Fatalf("FromReader: %v", err)
		}
		if got != want {
			t.Errorf("round trip:\nwant %+v\ngot  %+v", want, got)
		}
	})
}

func TestSectionHeaderInvalidFlags(t *testing.T) {
	t.Parallel()
	eh := testHeader(elf.ELFCLASS64, elf.ELFDATA2LSB)
	eh.Shentsize = uint16(SectionHeaderEntsize(eh))
	sh := SectionHeader{Flags: elf.SectionFlag(0x10000)} // undefined gABI bit
	var buf bytes.Buffer
	if err := sh.ToWriter(&buf, eh); err == nil {
		t.Fatalf("ToWriter accepted invalid flags")
	}

	raw := make([]byte, SectionHeaderEntsize(eh))
	eh.Layout().PutUint64(raw[8:], 0x10000)
	var got SectionHeader
	err := got.FromReader(bytes.NewReader(raw), eh)
	var fe *InvalidSectionFlagsError
	if !errorsAs(err, &fe) {
		t.Fatalf("want InvalidSectionFlagsError, got %v", err)
	}
	if fe.Raw != 0x10000 {
		t.Errorf("want raw flags %#x, got %#x", 0x10000, fe.Raw)
	}
}
