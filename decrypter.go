// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipcrypto streams ZIP archives between plain and PKWARE
// "traditional encryption" (ZipCrypto) form, one byte at a time.
//
// Both directions are pure byte-level transformers: neither seeks the
// underlying source/sink, nor builds an in-memory model of the archive.
// Compressed content, CRC-32 verification, and the ZIP object model
// itself are out of scope — a Decrypter/Encrypter only recognizes record
// boundaries by their signatures and rewrites the handful of fields that
// encryption touches (flag bits, sizes, and the central directory's
// offset bookkeeping), passing every other byte through unexamined.
//
// Strong Encryption, AES, ZIP64, and multi-disk archives are not
// supported; an Encrypter also refuses an already-encrypted input.
package zipcrypto

import (
	"io"

	"github.com/martinmatula/go-ziputils/internal"
	"github.com/martinmatula/go-ziputils/internal/envelope"
	"github.com/martinmatula/go-ziputils/internal/peekbuf"
)

// decState names the broad phase of the decrypter's state machine. Most
// of the work happens inside decAcc, which collects a small fixed-size
// field before deciding what to do with it — this collapses what would
// otherwise be a dozen near-identical states (FLAGS, CRC, COMPRESSED_SIZE,
// FN_LENGTH and their central-directory counterparts) into one driven by
// a completion callback.
type decState int

const (
	decSig decState = iota
	decAcc
	decSkip
	decData
	decTail
	decDone
)

// Decrypter turns an encrypted ZIP archive into a plain one, one byte at
// a time. It never seeks and never buffers more than a handful of bytes
// beyond the current record field.
type Decrypter struct {
	src io.Reader
	cfg config

	pwdKeys cipherKeys
	keys    cipherKeys

	q       *peekbuf.Queue
	pending []byte
	err     error
	closed  bool

	state decState

	// decAcc
	accBuf  []byte
	accWant int
	onAcc   func(buf []byte) error

	// decSkip
	skipRemaining int
	afterSkip     func() error

	// LFH/file bookkeeping
	unknownSize    bool
	crcLowByte     byte
	crcLowByteKnown bool
	dataRemaining  uint32
	sizeDelta      *le4Delta
	dd             ddMatcher
	fileCount      uint32

	// central directory bookkeeping
	cfhIndex                          int
	cfhFnLen, cfhEfLen, cfhCommentLen uint16

	lfhFnLen uint16
}

// NewDecrypter wraps src, which must begin at the first byte of an
// encrypted ZIP archive, decrypting its payload(s) with password as the
// bytes are read.
func NewDecrypter(src io.Reader, password []byte, opts ...Option) (*Decrypter, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Decrypter{src: src, cfg: cfg}
	d.pwdKeys.initFromPassword(password)
	d.q = peekbuf.New(d.pullRaw)
	d.state = decSig
	return d, nil
}

func (d *Decrypter) pullRaw() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.src, b[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	return b[0], nil
}

// ReadByte returns the next byte of the decrypted archive.
func (d *Decrypter) ReadByte() (byte, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if d.err != nil {
		return 0, d.err
	}
	for len(d.pending) == 0 {
		if err := d.advance(); err != nil {
			if err == io.EOF && d.state != decDone {
				err = ErrMalformedArchive // input ended inside a field or payload
			}
			if err != io.EOF {
				err = poison(err)
			}
			d.err = err
			return 0, err
		}
	}
	b := d.pending[0]
	d.pending = d.pending[1:]
	return b, nil
}

// Read implements io.Reader as a convenience wrapper around ReadByte.
func (d *Decrypter) Read(p []byte) (int, error) {
	for i := range p {
		b, err := d.ReadByte()
		if err != nil {
			if err == io.EOF && i > 0 {
				return i, nil
			}
			return i, err
		}
		p[i] = b
	}
	return len(p), nil
}

// Close releases no resources of its own (src is owned by the caller)
// but poisons the Decrypter against further use.
func (d *Decrypter) Close() error {
	d.closed = true
	return nil
}

func (d *Decrypter) emit(b byte)        { d.pending = append(d.pending, b) }
func (d *Decrypter) emitAll(bs []byte)  { d.pending = append(d.pending, bs...) }

// advance performs one unit of work, appending zero or more bytes to
// d.pending. It returns io.EOF once the underlying source is exhausted
// in a state where that's legitimate (decTail, or decSig between files).
func (d *Decrypter) advance() error {
	switch d.state {
	case decDone:
		return io.EOF

	case decSig:
		return d.stepSig()

	case decAcc:
		b, err := d.q.Next()
		if err != nil {
			return err
		}
		d.accBuf = append(d.accBuf, b)
		if len(d.accBuf) < d.accWant {
			return nil
		}
		buf := d.accBuf
		d.accBuf = nil
		return d.onAcc(buf)

	case decSkip:
		b, err := d.q.Next()
		if err != nil {
			return err
		}
		d.emit(b)
		d.skipRemaining--
		if d.skipRemaining == 0 {
			return d.afterSkip()
		}
		return nil

	case decData:
		return d.stepData()

	case decTail:
		b, err := d.q.Next()
		if err != nil {
			if err == io.EOF {
				d.state = decDone
			}
			return err
		}
		d.emit(b)
		return nil
	}
	panic("zipcrypto: unreachable decrypter state")
}

// stepSig peeks the next 4 bytes and classifies them as an LFH, CFH, ECD
// or none of the above. A local file header starts a new member; a
// central directory header or end-of-central-directory record is passed
// through with its offset-carrying fields corrected for the cumulative
// 12 bytes removed per member; anything else ends recognition for good —
// a candidate signature is matched in full or not honored at all.
func (d *Decrypter) stepSig() error {
	peeked, err := d.q.Peek(4)
	if err != nil {
		return err
	}
	if len(peeked) < 4 {
		d.emitAll(peeked)
		d.q.Drop(len(peeked))
		d.state = decTail
		return nil
	}
	var sig [4]byte
	copy(sig[:], peeked)

	switch envelope.Classify(sig) {
	case envelope.LocalFileHeader:
		d.cfg.debugf("zipcrypto: SIGNATURE -> FLAGS (local file header, file %d)", d.fileCount)
		d.emitAll(peeked)
		d.q.Drop(4)
		return d.beginSkip(2, d.afterVersionField) // skip "version needed"
	case envelope.CentralDirectoryHeader:
		d.cfg.debugf("zipcrypto: SIGNATURE -> FLAGS (central directory header, entry %d)", d.cfhIndex)
		d.emitAll(peeked)
		d.q.Drop(4)
		return d.beginSkip(4, d.afterCFHVersionFields) // versionMadeBy + versionNeeded
	case envelope.EndOfCentralDir:
		d.cfg.debugf("zipcrypto: SIGNATURE -> ECD_OFFSET")
		d.emitAll(peeked)
		d.q.Drop(4)
		return d.beginSkip(12, d.beginECDOffset)
	default:
		d.cfg.debugf("zipcrypto: SIGNATURE -> TAIL")
		d.emitAll(peeked)
		d.q.Drop(4)
		d.state = decTail
		return nil
	}
}

func (d *Decrypter) beginSkip(n int, after func() error) error {
	d.skipRemaining = n
	d.afterSkip = after
	d.state = decSkip
	return nil
}

func (d *Decrypter) beginAcc(n int, onAcc func([]byte) error) error {
	d.accBuf = d.accBuf[:0]
	d.accWant = n
	d.onAcc = onAcc
	d.state = decAcc
	return nil
}

// --- Local file header path ---

func (d *Decrypter) afterVersionField() error {
	return d.beginAcc(2, d.onLFHFlags)
}

func (d *Decrypter) onLFHFlags(buf []byte) error {
	b0, b1 := buf[0], buf[1]
	if b0&byte(internal.FlagEncrypted) == 0 {
		return ErrNotEncrypted
	}
	if b0&byte(internal.FlagStrongEncrypt) != 0 {
		return ErrStrongEncryptionUnsupported
	}
	d.unknownSize = b0&byte(internal.FlagDataDescriptor) != 0
	d.emit(b0 &^ byte(internal.FlagEncrypted))
	d.emit(b1)

	if d.unknownSize {
		d.cfg.debugf("zipcrypto: FLAGS -> FILENAME_LENGTH (deferred size)")
		d.crcLowByteKnown = false
		// compression method(2) + mod time(2) + mod date(2) + crc(4) +
		// compressed size(4) + uncompressed size(4) = 18 bytes, landing
		// exactly at the file name length field.
		return d.beginSkip(18, d.afterVersionSkipToFnLen)
	}
	d.cfg.debugf("zipcrypto: FLAGS -> CRC")
	return d.beginSkip(6, d.beginCRC)
}

func (d *Decrypter) afterVersionSkipToFnLen() error {
	return d.beginAcc(2, d.onFnLen)
}

func (d *Decrypter) beginCRC() error {
	return d.beginAcc(4, d.onCRC)
}

func (d *Decrypter) onCRC(buf []byte) error {
	d.crcLowByte = buf[0]
	d.crcLowByteKnown = true
	d.emitAll(buf)
	d.sizeDelta = newLE4Delta(-12)
	return d.beginAcc(4, d.onLFHSize)
}

func (d *Decrypter) onLFHSize(buf []byte) error {
	for _, b := range buf {
		d.emit(d.sizeDelta.step(b))
	}
	raw := le4Decode([4]byte{buf[0], buf[1], buf[2], buf[3]})
	if raw < 12 {
		return ErrMalformedArchive
	}
	d.dataRemaining = raw - 12
	return d.beginSkip(4, d.afterVersionSkipToFnLen) // uncompressed size, unchanged
}

func (d *Decrypter) onFnLen(buf []byte) error {
	d.emitAll(buf)
	d.lfhFnLen = uint16(buf[0]) | uint16(buf[1])<<8
	return d.beginAcc(2, d.onEfLen)
}

func (d *Decrypter) onEfLen(buf []byte) error {
	d.emitAll(buf)
	if d.lfhFnLen == 0 {
		return ErrMalformedArchive
	}
	efLen := uint16(buf[0]) | uint16(buf[1])<<8
	return d.beginSkip(int(d.lfhFnLen)+int(efLen), d.beginHeader)
}

func (d *Decrypter) beginHeader() error {
	return d.beginAcc(12, d.onHeader)
}

func (d *Decrypter) onHeader(buf []byte) error {
	d.keys.reset(&d.pwdKeys)
	recovered := append([]byte(nil), buf...)
	d.keys.decryptBytes(recovered)

	if d.crcLowByteKnown && recovered[11] != d.crcLowByte {
		if d.cfg.strictPasswordCheck {
			return ErrPasswordCheckFailed
		}
		d.cfg.warnf("zipcrypto: password check byte mismatch (advisory)")
	}
	d.crcLowByteKnown = false

	if !d.unknownSize && d.dataRemaining == 0 {
		d.cfg.debugf("zipcrypto: ENCRYPTION_HEADER -> SIGNATURE (empty file)")
		d.fileCount++
		d.state = decSig
		return nil
	}
	d.cfg.debugf("zipcrypto: ENCRYPTION_HEADER -> DATA")
	d.state = decData
	return nil
}

func (d *Decrypter) stepData() error {
	b, err := d.q.Next()
	if err != nil {
		return err
	}
	if !d.unknownSize {
		d.emit(d.keys.decryptByte(b))
		d.dataRemaining--
		if d.dataRemaining == 0 {
			d.fileCount++
			d.state = decSig
		}
		return nil
	}

	flush, sigBytes, matched := d.dd.feed(b)
	for _, fb := range flush {
		d.emit(d.keys.decryptByte(fb))
	}
	if matched {
		d.emitAll(sigBytes)
		d.sizeDelta = newLE4Delta(-12)
		return d.beginAcc(4, d.onDDCRC)
	}
	return nil
}

func (d *Decrypter) onDDCRC(buf []byte) error {
	d.emitAll(buf) // data descriptor CRC is unaffected by the header removal
	return d.beginAcc(4, d.onDDSize)
}

func (d *Decrypter) onDDSize(buf []byte) error {
	for _, b := range buf {
		d.emit(d.sizeDelta.step(b))
	}
	return d.beginSkip(4, d.afterDD) // uncompressed size, unchanged
}

func (d *Decrypter) afterDD() error {
	d.cfg.debugf("zipcrypto: DATA_DESCRIPTOR -> SIGNATURE")
	d.fileCount++
	d.state = decSig
	return nil
}

// --- Central directory header path ---
//
// The encrypter rewrites every CFH's CRC/size triple, offset field, and
// flag word, and the ECD's central directory offset, to keep the archive
// internally consistent after growing each member by the 12-byte
// encryption header. Decrypting must undo exactly that, or a round trip
// back to the original plain archive would leave the central directory
// pointing at the wrong offsets and carrying the encrypted sizes.

func (d *Decrypter) afterCFHVersionFields() error {
	return d.beginAcc(2, d.onCFHFlags)
}

func (d *Decrypter) onCFHFlags(buf []byte) error {
	d.emit(buf[0] &^ byte(internal.FlagEncrypted))
	d.emit(buf[1])
	return d.beginSkip(6, d.beginCFHCRC) // compression method + mod time + mod date
}

func (d *Decrypter) beginCFHCRC() error {
	return d.beginAcc(4, d.onCFHCRC)
}

func (d *Decrypter) onCFHCRC(buf []byte) error {
	d.emitAll(buf)
	d.sizeDelta = newLE4Delta(-12)
	return d.beginAcc(4, d.onCFHSize)
}

func (d *Decrypter) onCFHSize(buf []byte) error {
	for _, b := range buf {
		d.emit(d.sizeDelta.step(b))
	}
	return d.beginSkip(4, d.afterCFHUsize) // uncompressed size, unchanged
}

func (d *Decrypter) afterCFHUsize() error {
	return d.beginAcc(2, d.onCFHFnLen)
}

func (d *Decrypter) onCFHFnLen(buf []byte) error {
	d.emitAll(buf)
	d.cfhFnLen = uint16(buf[0]) | uint16(buf[1])<<8
	return d.beginAcc(2, d.onCFHEfLen)
}

func (d *Decrypter) onCFHEfLen(buf []byte) error {
	d.emitAll(buf)
	d.cfhEfLen = uint16(buf[0]) | uint16(buf[1])<<8
	return d.beginAcc(2, d.onCFHCommentLen)
}

func (d *Decrypter) onCFHCommentLen(buf []byte) error {
	d.emitAll(buf)
	d.cfhCommentLen = uint16(buf[0]) | uint16(buf[1])<<8
	return d.beginSkip(8, d.beginCFHOffset) // disk num + internal attrs + external attrs
}

func (d *Decrypter) beginCFHOffset() error {
	return d.beginAcc(4, d.onCFHOffset)
}

func (d *Decrypter) onCFHOffset(buf []byte) error {
	var raw [4]byte
	copy(raw[:], buf)
	v := le4Decode(raw)
	adjusted := v - uint32(12*d.cfhIndex)
	out := le4Encode(adjusted)
	d.emitAll(out[:])
	d.cfhIndex++
	trailer := int(d.cfhFnLen) + int(d.cfhEfLen) + int(d.cfhCommentLen)
	if trailer == 0 {
		d.state = decSig
		return nil
	}
	return d.beginSkip(trailer, d.afterCFHTrailer)
}

func (d *Decrypter) afterCFHTrailer() error {
	d.state = decSig
	return nil
}

// --- End of central directory path ---

func (d *Decrypter) beginECDOffset() error {
	return d.beginAcc(4, d.onECDOffset)
}

func (d *Decrypter) onECDOffset(buf []byte) error {
	var raw [4]byte
	copy(raw[:], buf)
	v := le4Decode(raw)
	adjusted := v - uint32(12*d.fileCount)
	out := le4Encode(adjusted)
	d.emitAll(out[:])
	d.state = decTail
	return nil
}

// ddMatcher recognizes the optional data descriptor signature
// (50 4B 07 08) inside a deferred-size member's ciphertext stream,
// without ever looking more than 4 bytes ahead. On a mismatch it flushes
// whatever prefix it had matched as confirmed ciphertext; the
// mismatching byte itself restarts the match if it equals the
// signature's first byte (0x50 appears nowhere else in the signature,
// so this needs no deeper KMP-style fallback), otherwise it is flushed
// too.
type ddMatcher struct {
	matched int
	buf     [4]byte
}

var ddSignature = [4]byte{0x50, 0x4B, 0x07, 0x08}

func (m *ddMatcher) feed(b byte) (flush []byte, sigOut []byte, full bool) {
	if b == ddSignature[m.matched] {
		m.buf[m.matched] = b
		m.matched++
		if m.matched == 4 {
			sigOut = append([]byte(nil), m.buf[:]...)
			m.matched = 0
			return nil, sigOut, true
		}
		return nil, nil, false
	}
	flush = append([]byte(nil), m.buf[:m.matched]...)
	if b == ddSignature[0] {
		m.buf[0] = b
		m.matched = 1
	} else {
		flush = append(flush, b)
		m.matched = 0
	}
	return flush, nil, false
}
