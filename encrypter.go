// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipcrypto

import (
	"io"

	"github.com/martinmatula/go-ziputils/internal"
	"github.com/martinmatula/go-ziputils/internal/envelope"
	"github.com/martinmatula/go-ziputils/internal/rowbuffer"
)

type encState int

const (
	encSig encState = iota
	encAcc
	encCopy
	encDiscard
	encData
	encBuffer
	encTail
)

// Encrypter turns a plain ZIP archive into one protected with ZipCrypto,
// one byte at a time. It writes directly to dst as soon as a field's
// fate is decided; the only data held in memory is a deferred-size
// member's buffered remainder.
type Encrypter struct {
	dst io.Writer
	cfg config

	pwdKeys cipherKeys
	keys    cipherKeys

	bytesWritten uint32
	err          error
	closed       bool

	state encState

	accBuf  []byte
	accWant int
	onAcc   func([]byte) error

	copyRemaining int
	afterCopy     func() error

	discardRemaining int
	afterDiscard      func() error

	localHeaderOffsets []uint32
	crcAndSize         [][12]byte
	centralDirectoryOffset uint32
	haveCentralDirOffset   bool

	// in-progress LFH (known-size path)
	lfhCRC      [4]byte
	lfhCSizeOriginal uint32
	lfhUSize    [4]byte
	lfhFnLen, lfhEfLen uint16
	dataRemaining uint32

	// in-progress LFH (deferred-size / buffered path)
	bufFlags   [2]byte
	bufMatcher boundaryMatcher
	rowbuf     *rowbuffer.Buffer

	// in-progress CFH
	cfhIndex                          int
	cfhFnLen, cfhEfLen, cfhCommentLen uint16
}

// NewEncrypter wraps dst, which receives a freshly-encrypted ZIP
// archive as plain-archive bytes are written in, one at a time,
// encrypted with password.
func NewEncrypter(dst io.Writer, password []byte, opts ...Option) (*Encrypter, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Encrypter{dst: dst, cfg: cfg}
	e.pwdKeys.initFromPassword(password)
	e.state = encSig
	e.accBuf = make([]byte, 0, 4)
	return e, nil
}

// WriteByte feeds one byte of the plain archive into the encrypter.
func (e *Encrypter) WriteByte(b byte) error {
	if e.closed {
		return ErrClosed
	}
	if e.err != nil {
		return e.err
	}
	if err := e.feed(b); err != nil {
		e.err = poison(err)
		return e.err
	}
	return nil
}

// Write implements io.Writer as a convenience wrapper around WriteByte.
func (e *Encrypter) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := e.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Close checks that no record was left mid-parse and marks the
// Encrypter unusable. It does not close dst, which the caller owns.
func (e *Encrypter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.err != nil {
		return nil
	}
	if e.state != encTail && e.state != encSig {
		return ErrMalformedArchive
	}
	return nil
}

func (e *Encrypter) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := e.dst.Write(b); err != nil {
		return err
	}
	e.bytesWritten += uint32(len(b))
	return nil
}

func (e *Encrypter) emit(b byte) error      { return e.write([]byte{b}) }
func (e *Encrypter) emitAll(b []byte) error { return e.write(b) }

func (e *Encrypter) beginAcc(n int, onAcc func([]byte) error) {
	e.accBuf = e.accBuf[:0]
	e.accWant = n
	e.onAcc = onAcc
	e.state = encAcc
}

func (e *Encrypter) beginCopy(n int, after func() error) {
	e.copyRemaining = n
	e.afterCopy = after
	e.state = encCopy
}

func (e *Encrypter) beginDiscard(n int, after func() error) {
	e.discardRemaining = n
	e.afterDiscard = after
	e.state = encDiscard
}

// feed processes exactly one input byte.
func (e *Encrypter) feed(b byte) error {
	switch e.state {
	case encSig:
		e.accBuf = append(e.accBuf, b)
		if len(e.accBuf) < 4 {
			return nil
		}
		buf := append([]byte(nil), e.accBuf...)
		e.accBuf = e.accBuf[:0]
		return e.onSig(buf)

	case encAcc:
		e.accBuf = append(e.accBuf, b)
		if len(e.accBuf) < e.accWant {
			return nil
		}
		buf := e.accBuf
		e.accBuf = nil
		return e.onAcc(buf)

	case encCopy:
		if err := e.emit(b); err != nil {
			return err
		}
		e.copyRemaining--
		if e.copyRemaining == 0 {
			return e.afterCopy()
		}
		return nil

	case encDiscard:
		e.discardRemaining--
		if e.discardRemaining == 0 {
			return e.afterDiscard()
		}
		return nil

	case encData:
		if err := e.emit(e.keys.encryptByte(b)); err != nil {
			return err
		}
		e.dataRemaining--
		if e.dataRemaining == 0 {
			e.state = encSig
			e.accBuf = e.accBuf[:0]
		}
		return nil

	case encBuffer:
		return e.feedBuffer(b)

	case encTail:
		return e.emit(b)
	}
	panic("zipcrypto: unreachable encrypter state")
}

func (e *Encrypter) onSig(sig []byte) error {
	var arr [4]byte
	copy(arr[:], sig)

	switch envelope.Classify(arr) {
	case envelope.LocalFileHeader:
		e.cfg.debugf("zipcrypto: SIGNATURE -> FLAGS (local file header, file %d)", len(e.localHeaderOffsets))
		e.localHeaderOffsets = append(e.localHeaderOffsets, e.bytesWritten)
		if err := e.emitAll(sig); err != nil {
			return err
		}
		e.beginCopy(2, e.afterLFHVersion)
		return nil
	case envelope.CentralDirectoryHeader:
		e.cfg.debugf("zipcrypto: SIGNATURE -> FLAGS (central directory header, entry %d)", e.cfhIndex)
		if !e.haveCentralDirOffset {
			e.centralDirectoryOffset = e.bytesWritten
			e.haveCentralDirOffset = true
		}
		if err := e.emitAll(sig); err != nil {
			return err
		}
		e.beginCopy(4, e.afterCFHVersion)
		return nil
	case envelope.EndOfCentralDir:
		e.cfg.debugf("zipcrypto: SIGNATURE -> ECD_OFFSET")
		if err := e.emitAll(sig); err != nil {
			return err
		}
		e.beginCopy(12, e.beginECDOffset)
		return nil
	default:
		e.cfg.debugf("zipcrypto: SIGNATURE -> TAIL")
		if err := e.emitAll(sig); err != nil {
			return err
		}
		e.state = encTail
		return nil
	}
}

// --- Local file header path ---

func (e *Encrypter) afterLFHVersion() error {
	e.beginAcc(2, e.onLFHFlags)
	return nil
}

func (e *Encrypter) onLFHFlags(buf []byte) error {
	b0, b1 := buf[0], buf[1]
	if b0&byte(internal.FlagEncrypted) != 0 {
		return ErrAlreadyEncrypted
	}
	if b0&byte(internal.FlagStrongEncrypt) != 0 {
		return ErrStrongEncryptionUnsupported
	}
	deferred := b0&byte(internal.FlagDataDescriptor) != 0
	outB0 := (b0 &^ byte(internal.FlagDataDescriptor)) | byte(internal.FlagEncrypted)

	if !deferred {
		e.cfg.debugf("zipcrypto: FLAGS -> CRC")
		if err := e.emit(outB0); err != nil {
			return err
		}
		if err := e.emit(b1); err != nil {
			return err
		}
		e.beginCopy(6, e.beginLFHCRC) // compression method + mod time + mod date
		return nil
	}

	e.cfg.debugf("zipcrypto: FLAGS -> BUFFER (deferred size)")
	e.bufFlags = [2]byte{outB0, b1}
	e.bufMatcher = boundaryMatcher{}
	e.rowbuf = rowbuffer.New(e.cfg.rowSize)
	e.state = encBuffer
	return nil
}

func (e *Encrypter) beginLFHCRC() error {
	e.beginAcc(4, e.onLFHCRC)
	return nil
}

func (e *Encrypter) onLFHCRC(buf []byte) error {
	copy(e.lfhCRC[:], buf)
	if err := e.emitAll(buf); err != nil {
		return err
	}
	e.beginAcc(4, e.onLFHSize)
	return nil
}

func (e *Encrypter) onLFHSize(buf []byte) error {
	var raw [4]byte
	copy(raw[:], buf)
	orig := le4Decode(raw)
	e.lfhCSizeOriginal = orig
	adjusted := le4Encode(orig + 12)
	if err := e.emitAll(adjusted[:]); err != nil {
		return err
	}
	e.beginAcc(4, e.onLFHUSize)
	return nil
}

func (e *Encrypter) onLFHUSize(buf []byte) error {
	copy(e.lfhUSize[:], buf)
	if err := e.emitAll(buf); err != nil {
		return err
	}
	e.beginAcc(2, e.onLFHFnLen)
	return nil
}

func (e *Encrypter) onLFHFnLen(buf []byte) error {
	if err := e.emitAll(buf); err != nil {
		return err
	}
	e.lfhFnLen = uint16(buf[0]) | uint16(buf[1])<<8
	e.beginAcc(2, e.onLFHEfLen)
	return nil
}

func (e *Encrypter) onLFHEfLen(buf []byte) error {
	if err := e.emitAll(buf); err != nil {
		return err
	}
	if e.lfhFnLen == 0 {
		return ErrMalformedArchive
	}
	e.lfhEfLen = uint16(buf[0]) | uint16(buf[1])<<8

	var triple [12]byte
	copy(triple[0:4], e.lfhCRC[:])
	adjusted := le4Encode(e.lfhCSizeOriginal + 12)
	copy(triple[4:8], adjusted[:])
	copy(triple[8:12], e.lfhUSize[:])

	e.crcAndSize = append(e.crcAndSize, triple)
	e.beginCopy(int(e.lfhFnLen)+int(e.lfhEfLen), e.beginEncryptionHeader)
	return nil
}

func (e *Encrypter) beginEncryptionHeader() error {
	return e.writeEncryptionHeaderAndPayload(e.lfhCRC, e.lfhCSizeOriginal)
}

// writeEncryptionHeaderAndPayload synthesizes and emits the 12-byte
// ZipCrypto header for the current file and sets up the data state to
// encrypt exactly payloadLen subsequent bytes.
func (e *Encrypter) writeEncryptionHeaderAndPayload(crc [4]byte, payloadLen uint32) error {
	e.keys.reset(&e.pwdKeys)

	header := make([]byte, 12)
	if _, err := io.ReadFull(e.cfg.random, header[:10]); err != nil {
		return err
	}
	header[10] = crc[2]
	header[11] = crc[3]
	e.keys.encryptBytes(header)
	if err := e.emitAll(header); err != nil {
		return err
	}

	e.dataRemaining = payloadLen
	if payloadLen == 0 {
		e.cfg.debugf("zipcrypto: ENCRYPTION_HEADER -> SIGNATURE (empty file)")
		e.state = encSig
		e.accBuf = e.accBuf[:0]
		return nil
	}
	e.cfg.debugf("zipcrypto: ENCRYPTION_HEADER -> DATA")
	e.state = encData
	return nil
}

// --- Deferred-size (buffered) path ---

func (e *Encrypter) feedBuffer(b byte) error {
	flush, matched, sig, isCFH := e.bufMatcher.feed(b)
	for _, fb := range flush {
		if e.cfg.maxBufferedPayload > 0 && int64(e.rowbuf.Len()) >= e.cfg.maxBufferedPayload {
			return ErrBufferedPayloadTooLarge
		}
		e.rowbuf.WriteByte(fb)
	}
	if !matched {
		return nil
	}

	if err := e.flushBufferedFile(); err != nil {
		return err
	}

	if isCFH {
		if !e.haveCentralDirOffset {
			e.centralDirectoryOffset = e.bytesWritten
			e.haveCentralDirOffset = true
		}
		if err := e.emitAll(sig[:]); err != nil {
			return err
		}
		e.beginCopy(4, e.afterCFHVersion)
		return nil
	}
	e.localHeaderOffsets = append(e.localHeaderOffsets, e.bytesWritten)
	if err := e.emitAll(sig[:]); err != nil {
		return err
	}
	e.beginCopy(2, e.afterLFHVersion)
	return nil
}

// flushBufferedFile parses a deferred-size member's buffered remainder
// (compression method through the trailing data descriptor) and emits
// the rewritten LFH tail, encryption header, and encrypted payload in
// one go.
func (e *Encrypter) flushBufferedFile() error {
	buf := e.rowbuf.Bytes()
	e.rowbuf = nil

	const fixedLen = 22 // compmethod(2)+modtime(2)+moddate(2)+crc(4)+csize(4)+usize(4)+fnLen(2)+efLen(2)
	if len(buf) < fixedLen {
		return ErrMalformedArchive
	}
	fnLen := int(buf[18]) | int(buf[19])<<8
	efLen := int(buf[20]) | int(buf[21])<<8
	if fnLen == 0 {
		return ErrMalformedArchive
	}
	headerEnd := fixedLen + fnLen + efLen
	if len(buf) < headerEnd+16 {
		return ErrMalformedArchive
	}

	ddStart := len(buf) - 12 // crc/csize/usize; the DD's own 4-byte signature sits just before this
	var crc [4]byte
	copy(crc[:], buf[ddStart:ddStart+4])
	usize := buf[ddStart+8 : ddStart+12]
	payload := buf[headerEnd : ddStart-4]
	csizeAdjusted := le4Encode(uint32(len(payload)) + 12)

	if err := e.emitAll(e.bufFlags[:]); err != nil {
		return err
	}
	if err := e.emitAll(buf[0:6]); err != nil { // compression method + mod time + mod date
		return err
	}
	if err := e.emitAll(crc[:]); err != nil {
		return err
	}
	if err := e.emitAll(csizeAdjusted[:]); err != nil {
		return err
	}
	if err := e.emitAll(usize); err != nil {
		return err
	}
	if err := e.emitAll(buf[18:22]); err != nil { // fnLen + efLen
		return err
	}
	if err := e.emitAll(buf[22:headerEnd]); err != nil { // filename + extra field
		return err
	}

	var triple [12]byte
	copy(triple[0:4], crc[:])
	copy(triple[4:8], csizeAdjusted[:])
	copy(triple[8:12], usize)
	e.crcAndSize = append(e.crcAndSize, triple)

	e.keys.reset(&e.pwdKeys)
	header := make([]byte, 12)
	if _, err := io.ReadFull(e.cfg.random, header[:10]); err != nil {
		return err
	}
	header[10], header[11] = crc[2], crc[3]
	e.keys.encryptBytes(header)
	if err := e.emitAll(header); err != nil {
		return err
	}

	cipher := make([]byte, len(payload))
	copy(cipher, payload)
	e.keys.encryptBytes(cipher)
	return e.emitAll(cipher)
}

// --- Central directory header path ---

func (e *Encrypter) afterCFHVersion() error {
	e.beginAcc(2, e.onCFHFlags)
	return nil
}

func (e *Encrypter) onCFHFlags(buf []byte) error {
	outB0 := (buf[0] &^ byte(internal.FlagDataDescriptor)) | byte(internal.FlagEncrypted)
	if err := e.emit(outB0); err != nil {
		return err
	}
	if err := e.emit(buf[1]); err != nil {
		return err
	}
	e.beginCopy(6, e.beginCFHTripleDiscard) // compression method + mod time + mod date
	return nil
}

func (e *Encrypter) beginCFHTripleDiscard() error {
	e.beginDiscard(12, e.onCFHTripleDiscarded)
	return nil
}

func (e *Encrypter) onCFHTripleDiscarded() error {
	if e.cfhIndex >= len(e.crcAndSize) {
		return ErrMalformedArchive
	}
	triple := e.crcAndSize[e.cfhIndex]
	if err := e.emitAll(triple[:]); err != nil {
		return err
	}
	e.beginAcc(2, e.onCFHFnLen)
	return nil
}

func (e *Encrypter) onCFHFnLen(buf []byte) error {
	if err := e.emitAll(buf); err != nil {
		return err
	}
	e.cfhFnLen = uint16(buf[0]) | uint16(buf[1])<<8
	e.beginAcc(2, e.onCFHEfLen)
	return nil
}

func (e *Encrypter) onCFHEfLen(buf []byte) error {
	if err := e.emitAll(buf); err != nil {
		return err
	}
	e.cfhEfLen = uint16(buf[0]) | uint16(buf[1])<<8
	e.beginAcc(2, e.onCFHCommentLen)
	return nil
}

func (e *Encrypter) onCFHCommentLen(buf []byte) error {
	if err := e.emitAll(buf); err != nil {
		return err
	}
	e.cfhCommentLen = uint16(buf[0]) | uint16(buf[1])<<8
	e.beginCopy(8, e.beginCFHOffsetDiscard) // disk num + internal attrs + external attrs
	return nil
}

func (e *Encrypter) beginCFHOffsetDiscard() error {
	e.beginDiscard(4, e.onCFHOffsetDiscarded)
	return nil
}

func (e *Encrypter) onCFHOffsetDiscarded() error {
	if e.cfhIndex >= len(e.localHeaderOffsets) {
		return ErrMalformedArchive
	}
	offset := le4Encode(e.localHeaderOffsets[e.cfhIndex])
	if err := e.emitAll(offset[:]); err != nil {
		return err
	}
	e.cfhIndex++

	trailer := int(e.cfhFnLen) + int(e.cfhEfLen) + int(e.cfhCommentLen)
	if trailer == 0 {
		e.state = encSig
		e.accBuf = e.accBuf[:0]
		return nil
	}
	e.beginCopy(trailer, e.afterCFHTrailer)
	return nil
}

func (e *Encrypter) afterCFHTrailer() error {
	e.state = encSig
	e.accBuf = e.accBuf[:0]
	return nil
}

// --- End of central directory path ---

func (e *Encrypter) beginECDOffset() error {
	e.beginDiscard(4, e.onECDOffsetDiscarded)
	return nil
}

func (e *Encrypter) onECDOffsetDiscarded() error {
	offset := le4Encode(e.centralDirectoryOffset)
	if err := e.emitAll(offset[:]); err != nil {
		return err
	}
	e.state = encTail
	return nil
}

// boundaryMatcher recognizes the start of the next LFH or CFH signature
// within a deferred-size member's buffered remainder, without ever
// looking more than 4 bytes ahead. Adapted from decrypter.ddMatcher to
// two candidates that share a 2-byte prefix and diverge at byte index 2.
// On a mismatch, a byte equal to 0x50 (the only byte either signature
// repeats) restarts the match instead of being flushed with the rest of
// the broken prefix — otherwise a real boundary whose leading 0x50
// immediately follows an already-in-progress false start would be
// missed.
type boundaryMatcher struct {
	pos  int
	buf  [4]byte
	isCFH bool
}

// restart flushes n already-buffered bytes, then either restarts the
// match at position 1 (if b is the signature's leading byte) or flushes
// b too and resets to position 0.
func (m *boundaryMatcher) restart(n int, b byte) (flush []byte, matched bool, sig [4]byte, isCFH bool) {
	flush = append(flush, m.buf[:n]...)
	if b == 0x50 {
		m.buf[0] = b
		m.pos = 1
	} else {
		flush = append(flush, b)
		m.pos = 0
	}
	return flush, false, sig, false
}

func (m *boundaryMatcher) feed(b byte) (flush []byte, matched bool, sig [4]byte, isCFH bool) {
	switch m.pos {
	case 0:
		if b == 0x50 {
			m.buf[0] = b
			m.pos = 1
			return nil, false, sig, false
		}
		return []byte{b}, false, sig, false
	case 1:
		if b == 0x4B {
			m.buf[1] = b
			m.pos = 2
			return nil, false, sig, false
		}
		return m.restart(1, b)
	case 2:
		m.buf[2] = b
		switch b {
		case 0x03:
			m.isCFH = false
			m.pos = 3
			return nil, false, sig, false
		case 0x01:
			m.isCFH = true
			m.pos = 3
			return nil, false, sig, false
		default:
			return m.restart(2, b)
		}
	default: // pos == 3
		m.buf[3] = b
		expected := byte(0x04)
		if m.isCFH {
			expected = 0x02
		}
		if b == expected {
			sig = m.buf
			isCFH = m.isCFH
			m.pos = 0
			return nil, true, sig, isCFH
		}
		return m.restart(3, b)
	}
}
