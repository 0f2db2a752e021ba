package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/spacesedan/stackenrich/internal/models"
)

var ErrEmptySource = errors.New("identity source cannot be empty")

// UUID returns the sortinghat-compatible identity id: the SHA1 of
// "source:email:name:username", lowercased, with accents stripped from the
// name. Absent values contribute an empty string.
func UUID(source string, c models.IdentityCandidate) (string, error) {
	if source == "" {
		return "", ErrEmptySource
	}

	name, err := unaccent(deref(c.Name))
	if err != nil {
		return "", err
	}

	s := strings.ToLower(strings.Join([]string{source, deref(c.Email), name, deref(c.Username)}, ":"))
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

func unaccent(s string) (string, error) {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	return out, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
