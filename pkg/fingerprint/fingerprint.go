package fingerprint

import (
	"bytes"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

const bufferSize = 64 * 1024 // 64KB buffer

// Fingerprint is the content identity of a file: a 64-bit xxHash of the
// full contents, and optionally a BLAKE2b-512 digest when verified
// comparison is requested.
type Fingerprint struct {
	Fast   uint64
	Secure []byte // nil unless computed
}

// Matches reports whether two fingerprints identify the same content.
// The secure digests are compared only when both sides carry one.
func (f Fingerprint) Matches(other Fingerprint) bool {
	if f.Fast != other.Fast {
		return false
	}
	if f.Secure != nil && other.Secure != nil {
		return bytes.Equal(f.Secure, other.Secure)
	}
	return true
}

func (f Fingerprint) String() string {
	if f.Secure != nil {
		return fmt.Sprintf("%016x/%x", f.Fast, f.Secure)
	}
	return fmt.Sprintf("%016x", f.Fast)
}

// File fingerprints the file at path. The secure digest is computed in
// the same read pass, never a second one.
func File(path string, secure bool) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return Reader(file, secure)
}

// Reader fingerprints a byte stream in a single buffered pass.
func Reader(r io.Reader, secure bool) (Fingerprint, error) {
	fast := xxhash.New()

	var secHash hash.Hash
	var w io.Writer = fast
	if secure {
		h, err := blake2b.New512(nil)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("init blake2b: %w", err)
		}
		secHash = h
		w = io.MultiWriter(fast, h)
	}

	buffer := make([]byte, bufferSize)
	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if _, werr := w.Write(buffer[:n]); werr != nil {
				return Fingerprint{}, fmt.Errorf("write to hash: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Fingerprint{}, fmt.Errorf("read: %w", err)
		}
	}

	fp := Fingerprint{Fast: fast.Sum64()}
	if secHash != nil {
		fp.Secure = secHash.Sum(nil)
	}
	return fp, nil
}
