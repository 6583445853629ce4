// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowbuffer implements the row-oriented byte store the encrypter
// uses to buffer a deferred-size member's entire remainder (file name,
// extra field, payload, and trailing data descriptor) until its true
// size is known. Grounded on the chunked-buffer idiom in
// other_examples/martin-sucha-zipserve__writer.go, which accumulates a
// streamed write into fixed-size blocks rather than one growing slice —
// this avoids the repeated full-buffer copies a naive append(buf, b)
// would incur on a large deferred-size payload.
package rowbuffer

// Buffer accumulates bytes into fixed-size rows, avoiding the repeated
// full-buffer copies a single growing slice would incur while an
// encrypter buffers a deferred-size member's entire remainder.
type Buffer struct {
	rowSize int
	rows    [][]byte
	length  int
}

// New creates an empty Buffer with the given row size.
func New(rowSize int) *Buffer {
	if rowSize <= 0 {
		rowSize = 65536
	}
	return &Buffer{rowSize: rowSize}
}

// Len returns the total number of bytes written so far.
func (b *Buffer) Len() int { return b.length }

// WriteByte appends one byte, allocating a new row on demand.
func (b *Buffer) WriteByte(c byte) {
	row, col := b.length/b.rowSize, b.length%b.rowSize
	if row == len(b.rows) {
		b.rows = append(b.rows, make([]byte, b.rowSize))
	}
	b.rows[row][col] = c
	b.length++
}

// Bytes copies the whole buffer out as one contiguous slice, row by row.
// Used once, when a deferred-size member's boundary is finally found and
// its buffered remainder must be sliced into filename/extra/payload/
// trailer.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, b.length)
	for i, row := range b.rows {
		copy(out[i*b.rowSize:], row)
	}
	return out
}
