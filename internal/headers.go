// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package internal documents the fixed-width ZIP record layouts this
// module's state machines walk over, and provides encode/decode helpers
// used by tests to build synthetic archives. Production code in the
// zipcrypto package never decodes a full header into these structs —
// it rewrites only the handful of fields encryption touches, passing
// every other byte through unexamined — but the field offsets here are
// the ground truth both sides agree on.
package internal

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Each record type is identified by a 4-byte little-endian signature
// beginning with the "PK" marker (0x4b50).
const (
	LocalFileHeaderSignature  uint32 = 0x04034b50
	CentralDirectorySignature uint32 = 0x02014b50
	EndOfCentralDirSignature  uint32 = 0x06054b50
	DataDescriptorSignature   uint32 = 0x08074b50
)

// LocalFileHeaderLen is the fixed-size portion of a local file header,
// not counting the trailing file name and extra field.
const LocalFileHeaderLen = 30

// CentralDirectoryHeaderLen is the fixed-size portion of a central
// directory file header, not counting the trailing name/extra/comment.
const CentralDirectoryHeaderLen = 46

// EndOfCentralDirLen is the fixed-size portion of the end-of-central-
// directory record, not counting the trailing comment.
const EndOfCentralDirLen = 22

// Byte offsets (from the start of the record, signature included) of
// the fields the encrypter/decrypter rewrite in place.
const (
	LFHFlagsOffset          = 6
	LFHCRC32Offset          = 14
	LFHCompressedSizeOffset = 18
	LFHFilenameLenOffset    = 26
	LFHExtraLenOffset       = 28

	CFHFlagsOffset             = 8
	CFHCRCAndSizeOffset        = 16 // CRC32, CompressedSize, UncompressedSize: 12 contiguous bytes
	CFHFilenameLenOffset       = 28
	CFHExtraLenOffset          = 30
	CFHCommentLenOffset        = 32
	CFHLocalHeaderOffsetOffset = 42

	ECDCentralDirOffsetOffset = 16
)

// GeneralPurposeBitFlag bits this module inspects or rewrites.
const (
	FlagEncrypted      uint16 = 1 << 0
	FlagDataDescriptor uint16 = 1 << 3
	FlagStrongEncrypt  uint16 = 1 << 6
)

// LocalFileHeader is the fixed-size prefix of an LFH record, used by
// tests to build synthetic archives.
type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraField             []byte
}

// Encode renders the header (fixed prefix + name + extra field) to bytes.
func (h LocalFileHeader) Encode() []byte {
	size := LocalFileHeaderLen + int(h.FilenameLength) + int(h.ExtraFieldLength)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[LFHFlagsOffset:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[LFHCRC32Offset:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[LFHCompressedSizeOffset:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[LFHFilenameLenOffset:28], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[LFHExtraLenOffset:30], h.ExtraFieldLength)

	copy(buf[LocalFileHeaderLen:], h.Filename)
	copy(buf[LocalFileHeaderLen+int(h.FilenameLength):], h.ExtraField)

	return buf
}

// CentralDirectoryHeader is the fixed-size prefix of a CFH record.
type CentralDirectoryHeader struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             []byte
	Comment                string
}

// Encode renders the header (fixed prefix + name + extra + comment) to bytes.
func (d CentralDirectoryHeader) Encode() []byte {
	total := CentralDirectoryHeaderLen + int(d.FilenameLength) + int(d.ExtraFieldLength) + int(d.FileCommentLength)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[CFHFlagsOffset:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[CFHCRCAndSizeOffset:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[CFHFilenameLenOffset:30], d.FilenameLength)
	binary.LittleEndian.PutUint16(buf[CFHExtraLenOffset:32], d.ExtraFieldLength)
	binary.LittleEndian.PutUint16(buf[CFHCommentLenOffset:34], d.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[CFHLocalHeaderOffsetOffset:46], d.LocalHeaderOffset)

	offset := CentralDirectoryHeaderLen
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], d.ExtraField)
	copy(buf[offset:], d.Comment)

	return buf
}

// EndOfCentralDirectory is the fixed-size prefix of the ECD record.
type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
	Comment                         string
}

// Encode renders the ECD record (fixed prefix + comment) to bytes.
func (e EndOfCentralDirectory) Encode() []byte {
	buf := make([]byte, EndOfCentralDirLen+int(e.CommentLength))

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], e.ThisDiskNum)
	binary.LittleEndian.PutUint16(buf[6:8], e.DiskNumWithTheStartOfCentralDir)
	binary.LittleEndian.PutUint16(buf[8:10], e.TotalNumberOfEntriesOnThisDisk)
	binary.LittleEndian.PutUint16(buf[10:12], e.TotalNumberOfEntries)
	binary.LittleEndian.PutUint32(buf[12:16], e.CentralDirSize)
	binary.LittleEndian.PutUint32(buf[ECDCentralDirOffsetOffset:20], e.CentralDirOffset)
	binary.LittleEndian.PutUint16(buf[20:22], e.CommentLength)
	copy(buf[EndOfCentralDirLen:], e.Comment)

	return buf
}

// ReadLocalFileHeader reads a full LFH (fixed prefix + name + extra)
// from src, whose first 4 bytes are assumed to already be the signature.
func ReadLocalFileHeader(src io.Reader) (LocalFileHeader, error) {
	var buf [LocalFileHeaderLen - 4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return LocalFileHeader{}, fmt.Errorf("read local file header: %w", err)
	}
	h := LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[0:2]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[2:4]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[4:6]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[6:8]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[8:10]),
		CRC32:                  binary.LittleEndian.Uint32(buf[10:14]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[14:18]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[18:22]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[22:24]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[24:26]),
	}
	if h.FilenameLength > 0 {
		name := make([]byte, h.FilenameLength)
		if _, err := io.ReadFull(src, name); err != nil {
			return LocalFileHeader{}, fmt.Errorf("read filename: %w", err)
		}
		h.Filename = string(name)
	}
	if h.ExtraFieldLength > 0 {
		extra := make([]byte, h.ExtraFieldLength)
		if _, err := io.ReadFull(src, extra); err != nil {
			return LocalFileHeader{}, fmt.Errorf("read extra field: %w", err)
		}
		h.ExtraField = extra
	}
	return h, nil
}
