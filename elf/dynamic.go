// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"debug/elf"
	"fmt"
)

// A Dynamic is one entry of a DYNAMIC section. Val holds an address, a
// size or a flag word depending on Tag; all three serialize identically.
type Dynamic struct {
	Tag elf.DynTag
	Val uint64
}

func (d Dynamic) String() string {
	return fmt.Sprintf("%s %#x", d.Tag, d.Val)
}

// DynamicEntsize returns the encoded size of one dynamic entry.
func DynamicEntsize(eh *Header) int {
	if eh.Class == elf.ELFCLASS32 {
		return 8
	}
	return 16
}

func decodeDynamic(b []byte, eh *Header) (DynamicTable, error) {
	l := eh.Layout()
	es := DynamicEntsize(eh)

	dyn := make(DynamicTable, 0, len(b)/es)
	for len(b) > 0 {
		if len(b) < es {
			return nil, &TruncatedError{"dynamic", fmt.Errorf("%d trailing bytes", len(b))}
		}
		dyn = append(dyn, Dynamic{
			Tag: elf.DynTag(l.Word(b)),
			Val: l.Word(b[l.WordSize():]),
		})
		b = b[es:]
	}
	return dyn, nil
}

func (d *Dynamic) encode(b []byte, eh *Header) {
	l := eh.Layout()
	l.PutWord(b, uint64(d.Tag))
	l.PutWord(b[l.WordSize():], d.Val)
}
