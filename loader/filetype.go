// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"io"
)

// A FileType is the result of sniffing an input's magic prefix.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeElf
	FileTypeArchive
)

var (
	elfMagic     = []byte{'\x7f', 'E', 'L', 'F'}
	archiveMagic = []byte("!<arch>\n")
)

// Sniff reads the magic prefix of r and classifies it. The reader is left
// positioned after the bytes read.
func Sniff(r io.Reader) (FileType, error) {
	var magic [8]byte
	n, err := io.ReadFull(r, magic[:])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, err
	}
	if n >= 4 && bytes.Equal(magic[:4], elfMagic) {
		return FileTypeElf, nil
	}
	if n >= 8 && bytes.Equal(magic[:], archiveMagic) {
		return FileTypeArchive, nil
	}
	return FileTypeUnknown, nil
}
