// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipcrypto

import "io"

// decryptingReader adapts a *Decrypter to the io.ReadCloser a caller can
// hand straight to io.Copy.
type decryptingReader struct {
	d *Decrypter
}

// NewDecryptingReader wraps src, which must begin at the first byte of
// an encrypted ZIP archive, returning an io.ReadCloser that yields the
// plain archive as it is read.
func NewDecryptingReader(src io.Reader, password []byte, opts ...Option) (io.ReadCloser, error) {
	d, err := NewDecrypter(src, password, opts...)
	if err != nil {
		return nil, err
	}
	return decryptingReader{d}, nil
}

func (r decryptingReader) Read(p []byte) (int, error) { return r.d.Read(p) }
func (r decryptingReader) Close() error               { return r.d.Close() }

// encryptingWriter adapts an *Encrypter to the io.WriteCloser a caller
// can hand straight to io.Copy.
type encryptingWriter struct {
	e *Encrypter
}

// NewEncryptingWriter wraps dst, returning an io.WriteCloser that
// encrypts every plain-archive byte written to it with password before
// forwarding it to dst.
func NewEncryptingWriter(dst io.Writer, password []byte, opts ...Option) (io.WriteCloser, error) {
	e, err := NewEncrypter(dst, password, opts...)
	if err != nil {
		return nil, err
	}
	return encryptingWriter{e}, nil
}

func (w encryptingWriter) Write(p []byte) (int, error) { return w.e.Write(p) }
func (w encryptingWriter) Close() error                { return w.e.Close() }
