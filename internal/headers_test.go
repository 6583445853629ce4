// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestLocalFileHeaderEncode(t *testing.T) {
	h := LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  FlagDataDescriptor,
		CompressionMethod:      8,
		CRC32:                  0x12345678,
		CompressedSize:         100,
		UncompressedSize:       200,
		FilenameLength:         8,
		Filename:               "test.txt",
	}
	encoded := h.Encode()

	if got := len(encoded); got != LocalFileHeaderLen+len(h.Filename) {
		t.Fatalf("encoded length = %d, want %d", got, LocalFileHeaderLen+len(h.Filename))
	}
	if sig := binary.LittleEndian.Uint32(encoded[0:4]); sig != LocalFileHeaderSignature {
		t.Errorf("signature = %#x, want %#x", sig, LocalFileHeaderSignature)
	}
	if flags := binary.LittleEndian.Uint16(encoded[LFHFlagsOffset : LFHFlagsOffset+2]); flags != FlagDataDescriptor {
		t.Errorf("flags at LFHFlagsOffset = %#x, want %#x", flags, FlagDataDescriptor)
	}
	if crc := binary.LittleEndian.Uint32(encoded[LFHCRC32Offset : LFHCRC32Offset+4]); crc != h.CRC32 {
		t.Errorf("crc at LFHCRC32Offset = %#x, want %#x", crc, h.CRC32)
	}
	if csize := binary.LittleEndian.Uint32(encoded[LFHCompressedSizeOffset : LFHCompressedSizeOffset+4]); csize != h.CompressedSize {
		t.Errorf("compressed size at LFHCompressedSizeOffset = %d, want %d", csize, h.CompressedSize)
	}
	if fnLen := binary.LittleEndian.Uint16(encoded[LFHFilenameLenOffset : LFHFilenameLenOffset+2]); fnLen != h.FilenameLength {
		t.Errorf("filename length at LFHFilenameLenOffset = %d, want %d", fnLen, h.FilenameLength)
	}
	if got := string(encoded[LocalFileHeaderLen:]); got != h.Filename {
		t.Errorf("trailing filename = %q, want %q", got, h.Filename)
	}
}

func TestLocalFileHeaderRoundTrip(t *testing.T) {
	h := LocalFileHeader{
		VersionNeededToExtract: 20,
		CompressionMethod:      0,
		CRC32:                  0xdeadbeef,
		CompressedSize:         42,
		UncompressedSize:       42,
		FilenameLength:         8,
		ExtraFieldLength:       3,
		Filename:               "folder/a",
		ExtraField:             []byte{0x01, 0x02, 0x03},
	}
	encoded := h.Encode()

	got, err := ReadLocalFileHeader(bytes.NewReader(encoded[4:])) // signature already consumed by the caller
	if err != nil {
		t.Fatalf("ReadLocalFileHeader: %v", err)
	}
	if got.CRC32 != h.CRC32 || got.CompressedSize != h.CompressedSize || got.UncompressedSize != h.UncompressedSize {
		t.Errorf("decoded sizes = %+v, want matching %+v", got, h)
	}
	if got.Filename != h.Filename {
		t.Errorf("decoded filename = %q, want %q", got.Filename, h.Filename)
	}
	if !bytes.Equal(got.ExtraField, h.ExtraField) {
		t.Errorf("decoded extra field = %v, want %v", got.ExtraField, h.ExtraField)
	}
}

func TestCentralDirectoryHeaderEncode(t *testing.T) {
	d := CentralDirectoryHeader{
		VersionMadeBy:     63,
		CRC32:             0xaabbccdd,
		CompressedSize:    12,
		UncompressedSize:  12,
		FilenameLength:    8,
		LocalHeaderOffset: 12345,
		Filename:          "test.txt",
	}
	encoded := d.Encode()

	if got := len(encoded); got != CentralDirectoryHeaderLen+len(d.Filename) {
		t.Fatalf("encoded length = %d, want %d", got, CentralDirectoryHeaderLen+len(d.Filename))
	}
	if sig := binary.LittleEndian.Uint32(encoded[0:4]); sig != CentralDirectorySignature {
		t.Errorf("signature = %#x, want %#x", sig, CentralDirectorySignature)
	}
	if crc := binary.LittleEndian.Uint32(encoded[CFHCRCAndSizeOffset : CFHCRCAndSizeOffset+4]); crc != d.CRC32 {
		t.Errorf("crc at CFHCRCAndSizeOffset = %#x, want %#x", crc, d.CRC32)
	}
	if off := binary.LittleEndian.Uint32(encoded[CFHLocalHeaderOffsetOffset : CFHLocalHeaderOffsetOffset+4]); off != d.LocalHeaderOffset {
		t.Errorf("local header offset at CFHLocalHeaderOffsetOffset = %d, want %d", off, d.LocalHeaderOffset)
	}
	if got := string(encoded[CentralDirectoryHeaderLen:]); got != d.Filename {
		t.Errorf("trailing filename = %q, want %q", got, d.Filename)
	}
}

func TestEndOfCentralDirectoryEncode(t *testing.T) {
	e := EndOfCentralDirectory{
		TotalNumberOfEntriesOnThisDisk: 3,
		TotalNumberOfEntries:           3,
		CentralDirSize:                 1024,
		CentralDirOffset:               2048,
	}
	encoded := e.Encode()

	if got := len(encoded); got != EndOfCentralDirLen {
		t.Fatalf("encoded length = %d, want %d", got, EndOfCentralDirLen)
	}
	if sig := binary.LittleEndian.Uint32(encoded[0:4]); sig != EndOfCentralDirSignature {
		t.Errorf("signature = %#x, want %#x", sig, EndOfCentralDirSignature)
	}
	if off := binary.LittleEndian.Uint32(encoded[ECDCentralDirOffsetOffset : ECDCentralDirOffsetOffset+4]); off != e.CentralDirOffset {
		t.Errorf("central dir offset at ECDCentralDirOffsetOffset = %d, want %d", off, e.CentralDirOffset)
	}
}
