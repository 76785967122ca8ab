package textutil

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// CosineSimilarity scores two fingerprints in [0,1]. Nil or empty
// fingerprints score 0.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, large := a.features, b.features
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for feature, w := range small {
		dot += w * large[feature]
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// VectorCosine computes cosine similarity between dense embedding vectors.
// Vectors of different length or zero magnitude score 0.
func VectorCosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// BigramJaccard returns the Jaccard index of the character bigram sets of two
// normalized strings. Spaces are ignored.
func BigramJaccard(a, b string) float64 {
	setA := bigrams(a)
	setB := bigrams(b)
	if len(setA) == 0 || len(setB) == 0 {
		if a != "" && a == b {
			return 1
		}
		return 0
	}
	var intersection int
	for gram := range setA {
		if _, ok := setB[gram]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func bigrams(value string) map[string]struct{} {
	runes := []rune(strings.ReplaceAll(value, " ", ""))
	if len(runes) < 2 {
		return nil
	}
	out := make(map[string]struct{}, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out[string(runes[i:i+2])] = struct{}{}
	}
	return out
}

// EditSimilarity converts Levenshtein distance into a [0,1] similarity.
func EditSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return clamp01(1 - float64(distance)/float64(longest))
}

// PhoneticKey returns the Soundex codes of each token joined by spaces. Tokens
// that do not start with a letter are kept verbatim.
func PhoneticKey(value string) string {
	tokens := strings.Fields(value)
	codes := make([]string, 0, len(tokens))
	for _, token := range tokens {
		codes = append(codes, phoneticCode(token))
	}
	return strings.Join(codes, " ")
}

func phoneticCode(token string) string {
	first, _ := utf8.DecodeRuneInString(token)
	if first > unicode.MaxASCII || !unicode.IsLetter(first) {
		return token
	}
	return smetrics.Soundex(token)
}

// PhoneticSimilarity is the Dice coefficient over per-token phonetic codes.
func PhoneticSimilarity(a, b string) float64 {
	codesA := strings.Fields(PhoneticKey(a))
	codesB := strings.Fields(PhoneticKey(b))
	if len(codesA) == 0 || len(codesB) == 0 {
		return 0
	}
	remaining := make(map[string]int, len(codesB))
	for _, code := range codesB {
		remaining[code]++
	}
	var shared int
	for _, code := range codesA {
		if remaining[code] > 0 {
			remaining[code]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(codesA)+len(codesB))
}

// TitleSimilarity scores two normalized titles. Equal titles score 1; otherwise
// bigram overlap, edit similarity, and phonetic overlap are blended, and a
// phonetically identical title never scores below 0.85.
func TitleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	score := 0.4*BigramJaccard(a, b) + 0.4*EditSimilarity(a, b) + 0.2*PhoneticSimilarity(a, b)
	if PhoneticKey(a) == PhoneticKey(b) {
		score = math.Max(score, 0.85)
	}
	return clamp01(score)
}

// NameSimilarity scores two normalized personal names. A matching last name
// with compatible given names ("j lennon" vs "john lennon") scores 0.95, a
// bare last-name match 0.9, and conflicting given names 0.75. Other pairs fall
// back to Jaro-Winkler.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	lastA := tokensA[len(tokensA)-1]
	lastB := tokensB[len(tokensB)-1]
	if lastA == lastB {
		givenA := tokensA[:len(tokensA)-1]
		givenB := tokensB[:len(tokensB)-1]
		switch {
		case len(givenA) == 0 || len(givenB) == 0:
			return 0.9
		case givenCompatible(givenA[0], givenB[0]):
			return 0.95
		default:
			return 0.75
		}
	}
	return 0.9 * smetrics.JaroWinkler(a, b, 0.7, 4)
}

func givenCompatible(a, b string) bool {
	if a == b {
		return true
	}
	if utf8.RuneCountInString(a) == 1 || utf8.RuneCountInString(b) == 1 {
		ra, _ := utf8.DecodeRuneInString(a)
		rb, _ := utf8.DecodeRuneInString(b)
		return ra == rb
	}
	return false
}

// WriterSimilarity averages, over every statement writer, the best
// NameSimilarity against the catalog writers. It returns false when either
// side has no names.
func WriterSimilarity(statementWriters, catalogWriters []string) (float64, bool) {
	if len(statementWriters) == 0 || len(catalogWriters) == 0 {
		return 0, false
	}
	var total float64
	for _, writer := range statementWriters {
		var best float64
		for _, candidate := range catalogWriters {
			if score := NameSimilarity(writer, candidate); score > best {
				best = score
			}
		}
		total += best
	}
	return total / float64(len(statementWriters)), true
}

func clamp01(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
