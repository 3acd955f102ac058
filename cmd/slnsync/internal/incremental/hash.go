package incremental

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// ErrUnreadable is returned when a file vanished, is locked, or cannot be read.
// Callers treat it as transient and never as fatal.
var ErrUnreadable = errors.New("file unreadable")

// Fingerprint is a BLAKE2b-256 digest of a file's bytes.
type Fingerprint [blake2b.Size256]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintFile streams path into BLAKE2b-256.
// Any open or read failure wraps ErrUnreadable.
func FingerprintFile(path string) (Fingerprint, error) {
	var fp Fingerprint

	f, err := os.Open(path)
	if err != nil {
		return fp, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return fp, fmt.Errorf("failed to create hasher: %w", err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return fp, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}

	copy(fp[:], h.Sum(nil))
	return fp, nil
}

// HashFile computes xxHash64 of file contents, returns hex string.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes xxHash64 of bytes, returns hex string.
func HashBytes(data []byte) string {
	h := xxhash.Sum64(data)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return hex.EncodeToString(buf[:])
}
