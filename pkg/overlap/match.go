package overlap

import (
	"slices"
	"strings"
	"unicode"
)

// NameKey is the normalized form of a full name. Sorted is the
// order-insensitive form; First and Last keep the original token order so
// middle names and initials can be tolerated.
type NameKey struct {
	Sorted string
	First  string
	Last   string
	Tokens int
}

// NormalizeName lower-cases a name, strips punctuation and splits it on
// whitespace.
func NormalizeName(name string) NameKey {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, name)

	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return NameKey{}
	}
	key := NameKey{
		First:  tokens[0],
		Last:   tokens[len(tokens)-1],
		Tokens: len(tokens),
	}
	sorted := slices.Clone(tokens)
	slices.Sort(sorted)
	key.Sorted = strings.Join(sorted, " ")
	return key
}

func (k NameKey) Empty() bool {
	return k.Tokens == 0
}

// firstLast is the join key for the first/last-token rule; empty when the
// name has fewer than two tokens.
func (k NameKey) firstLast() string {
	if k.Tokens < 2 {
		return ""
	}
	return k.First + "\x00" + k.Last
}

// NamesMatch reports whether two full names probably denote the same
// person: equal normalized forms, or at least two tokens each with equal
// first and last tokens.
func NamesMatch(a, b string) bool {
	ka, kb := NormalizeName(a), NormalizeName(b)
	if ka.Empty() || kb.Empty() {
		return false
	}
	if ka.Sorted == kb.Sorted {
		return true
	}
	return ka.firstLast() != "" && ka.firstLast() == kb.firstLast()
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the lower-cased part after the last '@', or "" when
// the address has no domain.
func EmailDomain(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}
