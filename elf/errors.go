// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"errors"
	"fmt"
)

// Errors reported by the codec and container layers. Loader and linker
// packages wrap these with the offending input's name.
var (
	// ErrInvalidMagic indicates a file does not start with \x7fELF.
	ErrInvalidMagic = errors.New("invalid ELF magic")

	// ErrMissingShstrtab indicates the header's section name table index
	// does not reference a section.
	ErrMissingShstrtab = errors.New("missing .shstrtab section")

	// ErrUnexpectedContent indicates a section's content variant does not
	// match what its header type or its consumer requires.
	ErrUnexpectedContent = errors.New("unexpected section content")

	// ErrSyncingUnloaded indicates Sync was called on a section whose
	// content was never materialized.
	ErrSyncingUnloaded = errors.New("syncing unloaded section")

	// ErrWritingUnloaded indicates ToWriter reached a section whose
	// content was never materialized.
	ErrWritingUnloaded = errors.New("writing unloaded section")

	// ErrFirstSectionOffset indicates the first section's file offset
	// exceeds its virtual address, which makes the load bias negative.
	ErrFirstSectionOffset = errors.New("first section offset can not be larger than address")
)

// An InvalidSectionFlagsError reports section flag bits outside the set
// defined by the gABI.
type InvalidSectionFlagsError struct {
	Raw uint64
}

func (e *InvalidSectionFlagsError) Error() string {
	return fmt.Sprintf("invalid section flags %#x", e.Raw)
}

// A TruncatedError reports a record that ended before its class-determined
// entry size.
type TruncatedError struct {
	Record string
	Err    error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated %s record: %v", e.Record, e.Err)
}

func (e *TruncatedError) Unwrap() error {
	return e.Err
}
