// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package envelope recognizes ZIP record boundaries in a forward-only
// byte stream by their 4-byte signatures, without ever seeking. The
// teacher repo has no analogue for this (its zipReader finds records by
// seeking an io.ReaderAt), so this is grounded instead on
// other_examples/raff-zipscanner__zipscanner.go and
// other_examples/xenking-zipstream__stolen.go, both of which walk ZIP
// signatures linearly over a live stream.
package envelope

import "github.com/martinmatula/go-ziputils/internal"

// Record classifies which kind of record a 4-byte signature identifies.
type Record int

const (
	None Record = iota
	LocalFileHeader
	CentralDirectoryHeader
	EndOfCentralDir
	DataDescriptor
)

var signatures = map[uint32]Record{
	internal.LocalFileHeaderSignature:  LocalFileHeader,
	internal.CentralDirectorySignature: CentralDirectoryHeader,
	internal.EndOfCentralDirSignature:  EndOfCentralDir,
	internal.DataDescriptorSignature:   DataDescriptor,
}

// Classify performs a fixed-window compare: given a little-endian 4-byte
// signature, it returns the record type it identifies, or None. It never
// accepts a partial (prefix) match.
func Classify(sig [4]byte) Record {
	v := uint32(sig[0]) | uint32(sig[1])<<8 | uint32(sig[2])<<16 | uint32(sig[3])<<24
	return signatures[v]
}
