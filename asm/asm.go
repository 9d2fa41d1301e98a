// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm disassembles x86-64 machine code for the inspection tools.
package asm

import (
	"fmt"

	"github.com/aclements/go-link/arch"
)

// Disasm disassembles machine code for the given architecture. pc is
// the program counter at which text begins.
func Disasm(a *arch.Arch, text []byte, pc uint64) (Seq, error) {
	switch a.GoArch {
	case "amd64":
		return disasmX86(text, pc, 64), nil
	case "386":
		return disasmX86(text, pc, 32), nil
	}
	return nil, fmt.Errorf("unsupported assembly architecture: %s", a)
}

// Seq is a sequence of instructions.
type Seq interface {
	Len() int
	Get(i int) Inst
}

// Inst is a single machine instruction.
type Inst interface {
	// GoSyntax returns the Go assembler syntax representation of
	// this instruction. symname, if non-nil, must return the name
	// and base of the symbol containing address addr, or "" if
	// symbol lookup fails.
	GoSyntax(symName func(addr uint64) (string, uint64)) string

	// PC returns the address of this instruction.
	PC() uint64

	// Len returns the length of this instruction in bytes.
	Len() int
}
