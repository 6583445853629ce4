// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipcrypto

import (
	"errors"

	goerrors "github.com/go-errors/errors"
)

var (
	// ErrNotEncrypted is returned by a Decrypter when the archive's local
	// file header does not have the encryption bit set.
	ErrNotEncrypted = errors.New("zipcrypto: archive is not password protected")

	// ErrAlreadyEncrypted is returned by an Encrypter when the input
	// archive's local file header already has the encryption bit set.
	ErrAlreadyEncrypted = errors.New("zipcrypto: archive is already password protected")

	// ErrStrongEncryptionUnsupported is returned when a local file header
	// advertises PKWARE Strong Encryption (general purpose bit 6), which
	// neither direction of this module supports.
	ErrStrongEncryptionUnsupported = errors.New("zipcrypto: strong encryption is not supported")

	// ErrMalformedArchive is returned when a record boundary does not
	// carry a recognized signature, a file name is zero-length, or the
	// input ends before a state completes.
	ErrMalformedArchive = errors.New("zipcrypto: malformed zip archive")

	// ErrPasswordCheckFailed is returned by a Decrypter constructed with
	// WithStrictPasswordCheck when the recovered header check byte does
	// not match the file's stored CRC. Without that option the check is
	// advisory only.
	ErrPasswordCheckFailed = errors.New("zipcrypto: password check failed")

	// ErrClosed is returned by ReadByte/WriteByte after Close.
	ErrClosed = errors.New("zipcrypto: use of closed transformer")

	// ErrBufferedPayloadTooLarge is returned by an Encrypter configured
	// with WithMaxBufferedPayload when a deferred-size member's buffered
	// remainder would exceed that ceiling.
	ErrBufferedPayloadTooLarge = errors.New("zipcrypto: buffered payload exceeds configured maximum")
)

// poison wraps err with a captured stack trace the first time a state
// machine fails. The trace is captured in ReadByte/WriteByte, where the
// error surfaces, so it shows the caller's path into the transformer;
// the failing transition itself has already returned by then.
func poison(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, 1)
}
