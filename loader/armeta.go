// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// parseArSymbolIndex decodes a GNU archive symbol index member ("/"): a
// big-endian entry count, one big-endian member offset per entry, then the
// NUL-terminated symbol names.
func parseArSymbolIndex(b []byte) ([][]byte, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("archive symbol index too short")
	}
	count := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint64(len(b)) < 4*uint64(count) {
		return nil, fmt.Errorf("archive symbol index truncated: %d entries", count)
	}
	b = b[4*count:]

	syms := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		end := bytes.IndexByte(b, 0)
		if end < 0 {
			return nil, fmt.Errorf("archive symbol index name %d unterminated", i)
		}
		syms = append(syms, b[:end])
		b = b[end+1:]
	}
	return syms, nil
}

// resolveArName maps a member header name to the member's file name. GNU
// archives end short names with "/" and store long names in the "//" member
// as "/offset" references.
func resolveArName(name string, longnames []byte) string {
	if strings.HasPrefix(name, "/") && len(name) > 1 {
		off, err := strconv.Atoi(name[1:])
		if err == nil && longnames != nil && off < len(longnames) {
			n := longnames[off:]
			if i := bytes.IndexByte(n, '\n'); i >= 0 {
				n = n[:i]
			}
			return strings.TrimSuffix(string(n), "/")
		}
		return name
	}
	return strings.TrimSuffix(name, "/")
}
