package apt

import (
	"crypto/md5"  // #nosec G501 - MD5 required for APT repository compatibility
	"crypto/sha1" // #nosec G505 - SHA1 required for APT repository compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
)

// Algorithm identifies a checksum algorithm used in APT metadata.
type Algorithm int

const (
	MD5 Algorithm = iota
	SHA1
	SHA256
	SHA512
)

// String returns the canonical lower-case name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// checksumFields maps every recognized checksum field spelling to its
// algorithm.  Release files and Packages paragraphs disagree on the case
// of the MD5 field, so both spellings map to the same identity.
var checksumFields = map[string]Algorithm{
	"MD5sum": MD5,
	"MD5Sum": MD5,
	"SHA1":   SHA1,
	"SHA256": SHA256,
	"SHA512": SHA512,
}

// FieldAlgorithm looks up the algorithm for a checksum field name.
func FieldAlgorithm(field string) (Algorithm, bool) {
	a, ok := checksumFields[field]
	return a, ok
}

// ChecksumEntry pairs an algorithm with an expected hex digest.
type ChecksumEntry struct {
	Algorithm Algorithm
	Digest    string
}

// ParagraphChecksums collects the checksum entries present on a package
// paragraph.  Case-variant spellings of the same algorithm are merged so
// that each algorithm appears at most once.
func ParagraphChecksums(p Paragraph) []ChecksumEntry {
	seen := make(map[Algorithm]bool)
	var entries []ChecksumEntry
	for _, field := range p.Fields() {
		alg, ok := checksumFields[field]
		if !ok || seen[alg] {
			continue
		}
		seen[alg] = true
		entries = append(entries, ChecksumEntry{
			Algorithm: alg,
			Digest:    strings.ToLower(strings.TrimSpace(p.Get(field))),
		})
	}
	return entries
}

// DigestHex computes the hex digest of data under the given algorithm.
func DigestHex(a Algorithm, data []byte) string {
	switch a {
	case MD5:
		sum := md5.Sum(data) // #nosec G401 - MD5 required for APT repository compatibility
		return hex.EncodeToString(sum[:])
	case SHA1:
		sum := sha1.Sum(data) // #nosec G401 - SHA1 required for APT repository compatibility
		return hex.EncodeToString(sum[:])
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha512.Sum512(data)
		return hex.EncodeToString(sum[:])
	}
}

// ReleaseEntry is one line of a Release checksum field: a digest, a size,
// and a file name relative to the distribution directory.
type ReleaseEntry struct {
	Name   string
	Size   uint64
	Digest string
}

// ParseReleaseField parses the multi-line value of a Release checksum
// field.  Each line has the form "<hex> <size> <name>".
func ParseReleaseField(value string) ([]ReleaseEntry, error) {
	var entries []ReleaseEntry
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 3 {
			return nil, errors.Newf("malformed checksum line: %q", line)
		}
		var size uint64
		for _, c := range parts[1] {
			if c < '0' || c > '9' {
				return nil, errors.Newf("malformed size in checksum line: %q", line)
			}
			size = size*10 + uint64(c-'0')
		}
		entries = append(entries, ReleaseEntry{
			Name:   parts[2],
			Size:   size,
			Digest: strings.ToLower(parts[0]),
		})
	}
	return entries, nil
}
