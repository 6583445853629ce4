package zipcrypto

import (
	"hash/crc32"

	"github.com/martinmatula/go-ziputils/internal"
)

// testFile describes one stored (uncompressed) member of a synthetic
// plain ZIP archive built for tests.
type testFile struct {
	name     string
	content  []byte
	deferred bool // emit with general-purpose bit 3 set and a trailing data descriptor
}

// buildPlainArchive assembles a minimal, valid, uncompressed ("store"
// method) plain ZIP archive out of files, using the header codecs in
// internal/headers.go so every fixed-width offset matches what the
// state machines under test expect to find.
func buildPlainArchive(files []testFile) []byte {
	var buf []byte
	var cfhs [][]byte
	var localOffsets []uint32

	for _, f := range files {
		localOffsets = append(localOffsets, uint32(len(buf)))
		crc := crc32.ChecksumIEEE(f.content)
		size := uint32(len(f.content))

		var flags uint16
		lfh := internal.LocalFileHeader{
			VersionNeededToExtract: 20,
			CompressionMethod:      0,
			FilenameLength:         uint16(len(f.name)),
			Filename:               f.name,
		}
		if f.deferred {
			flags |= internal.FlagDataDescriptor
			lfh.GeneralPurposeBitFlag = flags
			lfh.CRC32 = 0
			lfh.CompressedSize = 0
			lfh.UncompressedSize = 0
		} else {
			lfh.GeneralPurposeBitFlag = flags
			lfh.CRC32 = crc
			lfh.CompressedSize = size
			lfh.UncompressedSize = size
		}

		buf = append(buf, lfh.Encode()...)
		buf = append(buf, f.content...)

		if f.deferred {
			dd := make([]byte, 16)
			dd[0], dd[1], dd[2], dd[3] = 0x50, 0x4B, 0x07, 0x08
			le4PutInto(dd[4:8], crc)
			le4PutInto(dd[8:12], size)
			le4PutInto(dd[12:16], size)
			buf = append(buf, dd...)
		}

		cfh := internal.CentralDirectoryHeader{
			VersionMadeBy:          20,
			VersionNeededToExtract: 20,
			GeneralPurposeBitFlag:  flags,
			CRC32:                  crc,
			CompressedSize:         size,
			UncompressedSize:       size,
			FilenameLength:         uint16(len(f.name)),
			LocalHeaderOffset:      localOffsets[len(localOffsets)-1],
			Filename:               f.name,
		}
		cfhs = append(cfhs, cfh.Encode())
	}

	cdStart := uint32(len(buf))
	for _, c := range cfhs {
		buf = append(buf, c...)
	}
	cdSize := uint32(len(buf)) - cdStart

	ecd := internal.EndOfCentralDirectory{
		TotalNumberOfEntriesOnThisDisk: uint16(len(files)),
		TotalNumberOfEntries:           uint16(len(files)),
		CentralDirSize:                 cdSize,
		CentralDirOffset:               cdStart,
	}
	buf = append(buf, ecd.Encode()...)

	return buf
}

func le4PutInto(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
