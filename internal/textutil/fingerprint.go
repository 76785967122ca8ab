package textutil

import (
	"math"
	"strings"
)

// Character trigrams are recorded for words of at least gramMinRunes so a
// misspelled title ("Yesterdy") still shares most of its weight with the
// catalog spelling. Gram features carry gramWeight relative to whole words.
const (
	gramMinRunes = 4
	gramWeight   = 0.5
	gramPrefix   = "~"
)

// Fingerprint is a sparse weighted feature vector over the words of a title
// or query and the padded character trigrams of its longer words.
type Fingerprint struct {
	features map[string]float64
	norm     float64
}

// NewFingerprint builds a fingerprint from text. It returns nil when the text
// yields no usable words.
func NewFingerprint(text string) *Fingerprint {
	words := Tokenize(text)
	if len(words) == 0 {
		return nil
	}
	features := make(map[string]float64, len(words)*4)
	for _, word := range words {
		features[word]++
		for _, gram := range trigrams(word) {
			features[gramPrefix+gram] += gramWeight
		}
	}
	return newFingerprint(features)
}

func newFingerprint(features map[string]float64) *Fingerprint {
	if len(features) == 0 {
		return nil
	}
	var sum float64
	for _, w := range features {
		sum += w * w
	}
	return &Fingerprint{features: features, norm: math.Sqrt(sum)}
}

// trigrams returns the boundary-padded trigrams of word, or nil for short words.
func trigrams(word string) []string {
	runes := []rune(word)
	if len(runes) < gramMinRunes {
		return nil
	}
	padded := make([]rune, 0, len(runes)+2)
	padded = append(padded, '^')
	padded = append(padded, runes...)
	padded = append(padded, '$')
	out := make([]string, 0, len(padded)-2)
	for i := 0; i+3 <= len(padded); i++ {
		out = append(out, string(padded[i:i+3]))
	}
	return out
}

// Tokenize normalizes text and splits it into words, dropping single
// characters. Song titles are short, so two-letter words are kept.
func Tokenize(text string) []string {
	fields := strings.Fields(NormalizeText(text))
	words := fields[:0]
	for _, field := range fields {
		if len([]rune(field)) > 1 {
			words = append(words, field)
		}
	}
	return words
}

// TokenCount reports how many distinct words the fingerprint holds. Trigram
// features are not counted.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for feature := range f.features {
		if !strings.HasPrefix(feature, gramPrefix) {
			n++
		}
	}
	return n
}

// WithIDF scales every feature by its corpus weight. Features unknown to the
// corpus keep their weight; features weighted to zero are dropped.
func (f *Fingerprint) WithIDF(idf map[string]float64) *Fingerprint {
	if f == nil || len(idf) == 0 {
		return f
	}
	scaled := make(map[string]float64, len(f.features))
	for feature, w := range f.features {
		if weight, ok := idf[feature]; ok {
			w *= weight
		}
		if w != 0 {
			scaled[feature] = w
		}
	}
	return newFingerprint(scaled)
}

// Corpus accumulates document frequencies over a tenant's catalog.
type Corpus struct {
	docs int
	df   map[string]int
}

func NewCorpus() *Corpus {
	return &Corpus{df: make(map[string]int)}
}

// Add counts each feature of fp once.
func (c *Corpus) Add(fp *Fingerprint) {
	if c == nil || fp == nil {
		return
	}
	c.docs++
	for feature := range fp.features {
		c.df[feature]++
	}
}

// IDF returns smoothed inverse document frequencies, ln((N+1)/(df+1)).
// A feature present in every document weighs zero.
func (c *Corpus) IDF() map[string]float64 {
	if c == nil || c.docs == 0 {
		return nil
	}
	out := make(map[string]float64, len(c.df))
	total := float64(c.docs) + 1
	for feature, df := range c.df {
		out[feature] = math.Log(total / float64(df+1))
	}
	return out
}
