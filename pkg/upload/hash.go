package upload

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	HashMD5        = "md5"
	HashSHA1       = "sha1"
	HashSHA256     = "sha256"
	HashSHA512     = "sha512"
	HashBLAKE2b256 = "blake2b-256"
)

// SupportedHashAlgorithms lists the accepted hash_algorithm values
func SupportedHashAlgorithms() []string {
	return []string{HashMD5, HashSHA1, HashSHA256, HashSHA512, HashBLAKE2b256}
}

func NewHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case HashMD5:
		return md5.New(), nil
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	case HashBLAKE2b256, "blake2b":
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported hash algorithm '%s'", algorithm)
	}
}

// HashReader returns the hex digest of everything read from r
func HashReader(algorithm string, r io.Reader) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func digestEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
