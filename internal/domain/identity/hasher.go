// Package identity derives the stable keys that records are persisted and
// linked under.
//
// A record's key is a deterministic encoding of its source, date, amount and
// description. Two rows with the same tuple are different records (two equal
// payments on the same day happen), so the Resolver disambiguates them with a
// numeric suffix instead of merging them:
//
//	r := identity.NewResolver(existingHashes)
//	a := r.Resolve(ledger.SourceBank, fields) // "RkFDVFVSQS..."
//	b := r.Resolve(ledger.SourceBank, fields) // "RkFDVFVSQS..._1", b.Renamed == true
package identity

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

const (
	canonicalLimit = 200
	hashLimit      = 100
	randomPrefix   = "rnd-"
)

// ErrIncompleteIdentity is returned when a row lacks an identity column or
// carries undecodable text.
var ErrIncompleteIdentity = errors.New("identity: incomplete identity fields")

// Canonical builds "<source>|<date>|<amount>|<description>" capped at 200 characters.
func Canonical(source ledger.SourceType, f ledger.Fields) (string, error) {
	if !f.Complete {
		return "", ErrIncompleteIdentity
	}
	for _, s := range []string{f.Date, f.Amount, f.Description} {
		if !utf8.ValidString(s) {
			return "", ErrIncompleteIdentity
		}
	}

	s := string(source) + "|" + f.Date + "|" + f.Amount + "|" + f.Description
	if utf8.RuneCountInString(s) > canonicalLimit {
		s = string([]rune(s)[:canonicalLimit])
	}
	return s, nil
}

// Hash encodes a canonical string. Equal inputs always give equal hashes.
func Hash(canonical string) string {
	h := base64.StdEncoding.EncodeToString([]byte(escapeComponent(canonical)))
	if len(h) > hashLimit {
		h = h[:hashLimit]
	}
	return h
}

// IsRandom reports whether a hash is a fallback token rather than a content hash.
func IsRandom(hash string) bool {
	return strings.HasPrefix(hash, randomPrefix)
}

func randomToken() string {
	return randomPrefix + uuid.NewString()
}

// escapeComponent percent-encodes everything outside the URI component
// unreserved set, so hashes stay ASCII regardless of the input script.
func escapeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
