package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	iswcPattern = regexp.MustCompile(`^T\d{10}$`)
	isrcPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}\d{7}$`)

	leadingArticles = []string{"the ", "a ", "an "}
	nameSeparators  = strings.NewReplacer("/", "|", ";", "|", "&", "|", "+", "|", ",", "|", " and ", "|", " feat ", "|", " ft ", "|")
)

// StripDiacritics removes combining marks after canonical decomposition so
// "Beyoncé" and "Beyonce" compare equal.
func StripDiacritics(value string) string {
	// transform chains carry state; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// NormalizeText lowercases, strips diacritics and punctuation, and collapses
// whitespace. Apostrophes are dropped without leaving a gap.
func NormalizeText(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	folded := strings.ToLower(StripDiacritics(value))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeTitle applies NormalizeText and removes one leading article.
func NormalizeTitle(value string) string {
	normalized := NormalizeText(value)
	for _, article := range leadingArticles {
		if strings.HasPrefix(normalized, article) && len(normalized) > len(article) {
			return normalized[len(article):]
		}
	}
	return normalized
}

// NormalizeName applies NormalizeText; articles are kept in names.
func NormalizeName(value string) string {
	return NormalizeText(value)
}

// SplitNames breaks a free-text writer field into individual normalized names.
func SplitNames(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	lowered := " " + strings.ToLower(value) + " "
	parts := strings.Split(nameSeparators.Replace(lowered), "|")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := NormalizeName(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// NormalizeISWC returns the compact ISWC form (T + 10 digits) or "" when the
// value is not a well-formed ISWC. Separators like "T-345.246.800-1" are accepted.
func NormalizeISWC(value string) string {
	compact := compactIdentifier(value)
	if !iswcPattern.MatchString(compact) {
		return ""
	}
	return compact
}

// NormalizeISRC returns the compact 12-character ISRC or "" when malformed.
func NormalizeISRC(value string) string {
	compact := compactIdentifier(value)
	if !isrcPattern.MatchString(compact) {
		return ""
	}
	return compact
}

// NormalizeCode canonicalizes a tenant work code.
func NormalizeCode(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), " "))
}

func compactIdentifier(value string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(value)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
