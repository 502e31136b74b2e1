package hashlookup

import (
	"errors"
	"strings"
)

var (
	ErrEmptyDigest   = errors.New("empty digest")
	ErrInvalidDigest = errors.New("invalid digest; must be hex encoded MD5, SHA1, SHA256 or SHA512")
)

// Digest is a lowercase hex encoded file hash.
type Digest string

// NormalizeDigest trims and lowercases s and checks it is a supported hash.
func NormalizeDigest(s string) (Digest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrEmptyDigest
	}
	switch len(s) {
	case 32, 40, 64, 128:
	default:
		return "", ErrInvalidDigest
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", ErrInvalidDigest
		}
	}
	return Digest(s), nil
}

// Algorithm names the hash function from the digest length, as used in lookup URLs.
func (d Digest) Algorithm() string {
	switch len(d) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	case 128:
		return "sha512"
	default:
		return ""
	}
}

func (d Digest) String() string {
	return string(d)
}
