// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipcrypto

import (
	"crypto/rand"
	"io"

	"github.com/sirupsen/logrus"
)

// defaultRowSize is the size of each row in the encrypter's buffered-
// payload store.
const defaultRowSize = 65536

// config holds the resolved settings of both Decrypter and Encrypter.
// Fields not applicable to a given direction are simply left unused.
type config struct {
	strictPasswordCheck bool
	logger               *logrus.Logger
	rowSize              int
	random               io.Reader
	maxBufferedPayload   int64
}

func defaultConfig() config {
	return config{
		rowSize: defaultRowSize,
		random:  rand.Reader,
	}
}

// Option configures a Decrypter or Encrypter.
type Option func(*config)

// WithStrictPasswordCheck makes a Decrypter surface ErrPasswordCheckFailed
// as a hard error instead of the default advisory behavior.
func WithStrictPasswordCheck() Option {
	return func(c *config) { c.strictPasswordCheck = true }
}

// WithLogger attaches a logger that receives Debug-level state-transition
// events and Warn-level notices when an advisory password check fails.
// A nil logger (the default) disables logging entirely.
func WithLogger(l *logrus.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRowSize overrides the row size of the encrypter's buffered-payload
// store (default 65536).
func WithRowSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.rowSize = n
		}
	}
}

// WithRandom overrides the source of the 10 random encryption-header
// bytes (default crypto/rand.Reader). Intended for deterministic tests;
// production callers should not normally need this, since the header
// bytes must come from a cryptographic generator.
func WithRandom(r io.Reader) Option {
	return func(c *config) { c.random = r }
}

// WithMaxBufferedPayload caps how many bytes an Encrypter will buffer for
// a single deferred-size member (general purpose bit 3 set) before
// failing with ErrBufferedPayloadTooLarge instead of growing the buffer
// unboundedly. Zero (the default) means unbounded: peak memory is then
// proportional to the largest unknown-size file in the archive.
func WithMaxBufferedPayload(n int64) Option {
	return func(c *config) { c.maxBufferedPayload = n }
}

func (c *config) debugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}

func (c *config) warnf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warnf(format, args...)
	}
}
