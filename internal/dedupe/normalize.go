package dedupe

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// abbreviations maps common street/unit tokens to an expanded canonical
// form. Trivial punctuation (including trailing periods) is stripped
// before tokens reach this table, so "st." and "st" both look up as
// "st". The goal is to fold syntactic variation — abbreviations, casing,
// accents, trivial punctuation — not to build a full gazetteer.
var abbreviations = map[string]string{
	"st":   "street",
	"ave":  "avenue",
	"av":   "avenue",
	"blvd": "boulevard",
	"rd":   "road",
	"dr":   "drive",
	"ln":   "lane",
	"ct":   "court",
	"apt":  "apartment",
	"ste":  "suite",
	"n":    "north",
	"s":    "south",
	"e":    "east",
	"w":    "west",
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldAccents strips combining diacritical marks, e.g. "Rivoli" stays
// "Rivoli" but "Élysée" becomes "Elysee".
func foldAccents(s string) string {
	out, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeText lowercases, accent-folds, strips trivial punctuation and
// expands common abbreviations token by token. It is the single
// normalization path shared by the reference Hasher and Similarity so the
// two stay consistent with each other.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = foldAccents(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '-' || r == '\'':
			b.WriteRune(' ')
		default:
			// drop trivial punctuation (periods, commas, ...)
		}
	}

	fields := strings.Fields(b.String())
	for i, tok := range fields {
		if expanded, ok := abbreviations[tok]; ok {
			fields[i] = expanded
		}
	}
	return strings.Join(fields, " ")
}

// normalizeNumber strips leading zeros and surrounding whitespace so "007"
// and "7" compare equal; it leaves alphanumeric suffixes ("12B") intact.
func normalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}
