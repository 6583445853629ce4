package zipcrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEncryptAlreadyEncrypted checks that an Encrypter refuses an input
// archive whose local file header already has the encryption bit set,
// rather than double-encrypting it.
func TestEncryptAlreadyEncrypted(t *testing.T) {
	plain := buildPlainArchive([]testFile{{name: "a.txt", content: []byte("payload")}})
	alreadyEncrypted := encryptAll(t, plain, []byte("pw"))

	var out bytes.Buffer
	e, err := NewEncrypter(&out, []byte("pw"))
	require.NoError(t, err)

	_, err = e.Write(alreadyEncrypted)
	require.ErrorIs(t, err, ErrAlreadyEncrypted)
}

// TestEncryptZeroLengthFilename checks that a local file header with a
// zero-length file name is rejected rather than silently encrypted.
func TestEncryptZeroLengthFilename(t *testing.T) {
	plain := buildPlainArchive([]testFile{{name: "a.txt", content: []byte("x")}})
	// Corrupt the filename-length field of the lone LFH to zero: offset
	// 26 (internal.LFHFilenameLenOffset) from the start of the archive.
	plain[26] = 0
	plain[27] = 0

	var out bytes.Buffer
	e, err := NewEncrypter(&out, []byte("pw"))
	require.NoError(t, err)

	_, err = e.Write(plain)
	require.ErrorIs(t, err, ErrMalformedArchive)
}

// TestEncryptCloseMidMember checks that closing an Encrypter while a
// member is still being parsed reports a malformed archive rather than
// silently truncating the output.
func TestEncryptCloseMidMember(t *testing.T) {
	plain := buildPlainArchive([]testFile{{name: "a.txt", content: []byte("payload")}})

	var out bytes.Buffer
	e, err := NewEncrypter(&out, []byte("pw"))
	require.NoError(t, err)

	_, err = e.Write(plain[:10])
	require.NoError(t, err)

	require.ErrorIs(t, e.Close(), ErrMalformedArchive)
}

// TestBoundaryMatcherRetriesFalseStart checks that a byte equal to 0x50,
// arriving right after an already-in-progress false start, restarts the
// match instead of letting a genuine LFH boundary slip into the
// buffered payload as ordinary data.
func TestBoundaryMatcherRetriesFalseStart(t *testing.T) {
	var m boundaryMatcher
	var flushed []byte

	push := func(b byte) (sig [4]byte, matched bool) {
		flush, ok, s, _ := m.feed(b)
		flushed = append(flushed, flush...)
		return s, ok
	}

	push(0x50) // false start
	if _, matched := push(0x50); matched {
		t.Fatal("matched before the signature completed")
	}

	var sig [4]byte
	for _, b := range []byte{0x4B, 0x03, 0x04} {
		var matched bool
		sig, matched = push(b)
		if b == 0x04 && !matched {
			t.Fatal("expected the genuine local file header signature to match")
		}
	}
	require.Equal(t, [4]byte{0x50, 0x4B, 0x03, 0x04}, sig)
	require.Equal(t, []byte{0x50}, flushed, "only the false-start byte should have been flushed")
}
