// Package normalize canonicalizes free-text facility names and addresses so
// that different spellings of the same facility compare equal.
package normalize

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// corporateSuffixes lists trailing tokens that carry no identity. They are
// compared after lower-casing and punctuation removal, so "Co." and "co" match.
var corporateSuffixes = map[string]bool{
	"co":           true,
	"company":      true,
	"corp":         true,
	"corporation":  true,
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"llp":          true,
	"lp":           true,
	"ltd":          true,
	"limited":      true,
	"plc":          true,
	"pvt":          true,
	"pte":          true,
	"pty":          true,
	"gmbh":         true,
	"ag":           true,
	"sa":           true,
	"sas":          true,
	"sarl":         true,
	"srl":          true,
	"spa":          true,
	"bv":           true,
	"nv":           true,
	"oy":           true,
	"ab":           true,
	"as":           true,
	"kk":           true,
	"jsc":          true,
	"tbk":          true,
	"bhd":          true,
	"sdn":          true,
}

// Name returns the comparison form of a facility name: lower-cased, accents
// folded, punctuation and corporate suffixes removed, whitespace collapsed.
func Name(text string) string {
	tokens := tokens(text)
	for len(tokens) > 1 && corporateSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Address returns the comparison form of an address. Unlike Name it keeps
// every token, since "co" or "sa" can be meaningful in a street line.
func Address(text string) string {
	return strings.Join(tokens(text), " ")
}

// Key returns the clustering key for a name: Name with all whitespace removed.
func Key(text string) string {
	return strings.ReplaceAll(Name(text), " ", "")
}

// Pattern returns the lookup form used for case-insensitive name search.
// Stores match it as a substring of the stored normalized name.
func Pattern(text string) string {
	return Name(text)
}

// Fold lower-cases text and maps it to plain ASCII letters and digits where
// possible. Combining marks are dropped first so "é" becomes "e" without
// relying on transliteration tables.
func Fold(text string) string {
	if text == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	if !isASCII(folded) {
		folded = unidecode.Unidecode(folded)
	}
	return strings.ToLower(folded)
}

// tokens folds text and splits it into alphanumeric tokens. Apostrophes are
// dropped in place ("joe's" -> "joes"); "&" becomes "and"; any other
// non-alphanumeric rune separates tokens.
func tokens(text string) []string {
	folded := Fold(text)
	if folded == "" {
		return nil
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\'' || r == '`':
		case r == '&':
			b.WriteString(" and ")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
