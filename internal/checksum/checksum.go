// Package checksum verifies downloaded files against the content digest
// recorded in the manifest.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// readChunkSize is the streaming read size. Independent of the network
// block size; files are never loaded whole.
const readChunkSize = 64 * 1024

// Algorithm names a supported digest function.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

// DetectAlgorithm infers the digest function from the hex digest length.
func DetectAlgorithm(digestHex string) (Algorithm, error) {
	switch len(digestHex) {
	case 32:
		return MD5, nil
	case 40:
		return SHA1, nil
	case 64:
		return SHA256, nil
	default:
		return "", fmt.Errorf("checksum: cannot infer algorithm from %d-character digest", len(digestHex))
	}
}

func newHash(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("checksum: unsupported algorithm %q", algorithm)
	}
}

// Verify streams the file at path and compares its digest with expectedHex,
// case-insensitively. The algorithm is inferred from the digest length.
// Safe to call concurrently on different files.
func Verify(path, expectedHex string) (bool, error) {
	algorithm, err := DetectAlgorithm(expectedHex)
	if err != nil {
		return false, err
	}
	return VerifyWith(path, expectedHex, algorithm)
}

// VerifyWith is Verify with an explicit algorithm, for manifests whose
// digest format is known up front.
func VerifyWith(path, expectedHex string, algorithm Algorithm) (bool, error) {
	if _, err := hex.DecodeString(expectedHex); err != nil {
		return false, fmt.Errorf("checksum: malformed digest %q: %w", expectedHex, err)
	}

	h, err := newHash(algorithm)
	if err != nil {
		return false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("checksum: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(h, f, make([]byte, readChunkSize)); err != nil {
		return false, fmt.Errorf("checksum: read %s: %w", path, err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(actual, expectedHex), nil
}
