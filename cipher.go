// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipcrypto

import "hash/crc32"

// cipherKeys is the three-word key state of PKWARE traditional (ZipCrypto)
// encryption, APPNOTE section 6.1, split into single-byte primitives since
// the state machines here consume one byte at a time rather than a whole
// buffer.
type cipherKeys struct {
	k0, k1, k2 uint32
}

const keyScheduleMultiplier = 134775813

// initFromPassword seeds the keys from the fixed PKWARE constants and
// folds in each byte of the password (only the low 8 bits of each code
// unit participate).
func (k *cipherKeys) initFromPassword(password []byte) {
	k.k0 = 0x12345678
	k.k1 = 0x23456789
	k.k2 = 0x34567890
	for _, b := range password {
		k.update(b)
	}
}

// reset copies pwd's key state into k, discarding k's current working
// state. Called at the start of every file payload.
func (k *cipherKeys) reset(pwd *cipherKeys) {
	*k = *pwd
}

// update folds one plaintext byte into the key state.
func (k *cipherKeys) update(b byte) {
	k.k0 = crc32Step(k.k0, b)
	k.k1 += k.k0 & 0xff
	k.k1 = k.k1*keyScheduleMultiplier + 1
	k.k2 = crc32Step(k.k2, byte(k.k1>>24))
}

// keystreamByte derives the next keystream byte from k2, per APPNOTE 6.1.
func (k *cipherKeys) keystreamByte() byte {
	t := k.k2 | 2
	return byte((t * (t ^ 1)) >> 8)
}

// encryptByte encrypts one plaintext byte, updating the keys from the
// plaintext (both directions update the key state from plaintext, never
// ciphertext).
func (k *cipherKeys) encryptByte(b byte) byte {
	c := b ^ k.keystreamByte()
	k.update(b)
	return c
}

// decryptByte recovers one plaintext byte from ciphertext.
func (k *cipherKeys) decryptByte(c byte) byte {
	b := c ^ k.keystreamByte()
	k.update(b)
	return b
}

// encryptBytes encrypts buf in place.
func (k *cipherKeys) encryptBytes(buf []byte) {
	for i, b := range buf {
		buf[i] = k.encryptByte(b)
	}
}

// decryptBytes decrypts buf in place.
func (k *cipherKeys) decryptBytes(buf []byte) {
	for i, c := range buf {
		buf[i] = k.decryptByte(c)
	}
}

func crc32Step(crc uint32, b byte) uint32 {
	return crc32.IEEETable[(crc^uint32(b))&0xff] ^ (crc >> 8)
}
