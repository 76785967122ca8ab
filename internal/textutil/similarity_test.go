package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
	}{
		{"both nil", nil, nil},
		{"a nil", nil, NewFingerprint("hey jude")},
		{"b nil", NewFingerprint("hey jude"), nil},
		{"zero norm", &Fingerprint{features: map[string]float64{}}, NewFingerprint("hey jude")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); got != 0 {
				t.Errorf("CosineSimilarity() = %v, want 0", got)
			}
		})
	}
}

func TestCosineSimilarityIdenticalAndPartial(t *testing.T) {
	a := NewFingerprint("Let It Be")
	b := NewFingerprint("let it be")
	if got := CosineSimilarity(a, b); math.Abs(got-1) > 1e-9 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1", got)
	}
	c := NewFingerprint("let it bleed")
	got := CosineSimilarity(a, c)
	if got <= 0 || got >= 1 {
		t.Errorf("CosineSimilarity(partial) = %v, want between 0 and 1", got)
	}
	if CosineSimilarity(a, c) != CosineSimilarity(c, a) {
		t.Error("CosineSimilarity not symmetric")
	}
}

func TestNewFingerprintNormCalculation(t *testing.T) {
	// words love:2 me:1 do:1, plus four trigrams of "love" at 2*0.5 each
	fp := NewFingerprint("love love me do")
	if fp == nil {
		t.Fatal("expected fingerprint")
	}
	if fp.TokenCount() != 3 {
		t.Errorf("TokenCount = %d, want 3", fp.TokenCount())
	}
	if want := math.Sqrt(4 + 1 + 1 + 4); math.Abs(fp.norm-want) > 1e-9 {
		t.Errorf("norm = %v, want %v", fp.norm, want)
	}
	if NewFingerprint("a i") != nil {
		t.Error("expected nil fingerprint for single-character tokens")
	}
}

func TestFingerprintToleratesMisspelledTitle(t *testing.T) {
	catalog := NewFingerprint("Yesterday")
	if got := CosineSimilarity(NewFingerprint("Yesterdy"), catalog); got < 0.4 {
		t.Errorf("misspelled title similarity = %v, want >= 0.4", got)
	}
	if got := CosineSimilarity(NewFingerprint("Help"), catalog); got != 0 {
		t.Errorf("unrelated title similarity = %v, want 0", got)
	}
}

func TestCorpusIDFDownweightsCommonTerms(t *testing.T) {
	corpus := NewCorpus()
	for _, title := range []string{"love me do", "all you need is love", "love story", "yesterday"} {
		corpus.Add(NewFingerprint(title))
	}
	idf := corpus.IDF()
	if idf["love"] >= idf["yesterday"] {
		t.Fatalf("expected common term to weigh less: love=%v yesterday=%v", idf["love"], idf["yesterday"])
	}
	weighted := NewFingerprint("love story").WithIDF(idf)
	if weighted == nil || weighted.TokenCount() != 2 {
		t.Fatalf("unexpected weighted fingerprint: %+v", weighted)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Hello,   World!  ", "hello world"},
		{"Beyoncé", "beyonce"},
		{"Don't Stop Me Now", "dont stop me now"},
		{"Ça Plane Pour Moi", "ca plane pour moi"},
		{"(I Can't Get No) Satisfaction", "i cant get no satisfaction"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.input); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeTitleStripsLeadingArticle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"The Long and Winding Road", "long and winding road"},
		{"A Day in the Life", "day in the life"},
		{"An Innocent Man", "innocent man"},
		{"The", "the"},
		{"Theme From Shaft", "theme from shaft"},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.input); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
	if got := NormalizeName("The Edge"); got != "the edge" {
		t.Errorf("NormalizeName kept article expectation failed: %q", got)
	}
}

func TestNormalizeIdentifiers(t *testing.T) {
	if got := NormalizeISWC("T-010.452.325-4"); got != "T0104523254" {
		t.Errorf("NormalizeISWC = %q", got)
	}
	if got := NormalizeISWC("not-an-iswc"); got != "" {
		t.Errorf("expected empty ISWC for garbage, got %q", got)
	}
	if got := NormalizeISRC("gb-aye-65-00001"); got != "GBAYE6500001" {
		t.Errorf("NormalizeISRC = %q", got)
	}
	if got := NormalizeISRC("GBAYE65"); got != "" {
		t.Errorf("expected empty ISRC for short value, got %q", got)
	}
	if got := NormalizeCode("  wk  0012 "); got != "WK 0012" {
		t.Errorf("NormalizeCode = %q", got)
	}
}

func TestSplitNames(t *testing.T) {
	got := SplitNames("Lennon/McCartney & Harrison")
	want := []string{"lennon", "mccartney", "harrison"}
	if len(got) != len(want) {
		t.Fatalf("SplitNames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitNames = %v, want %v", got, want)
		}
	}
	if SplitNames("   ") != nil {
		t.Fatal("expected nil for blank input")
	}
}

func TestTitleSimilarity(t *testing.T) {
	if got := TitleSimilarity("yesterday", "yesterday"); got != 1 {
		t.Fatalf("equal titles = %v, want 1", got)
	}
	if got := TitleSimilarity("", "yesterday"); got != 0 {
		t.Fatalf("empty title = %v, want 0", got)
	}
	typo := TitleSimilarity("yesterdy", "yesterday")
	unrelated := TitleSimilarity("hey jude", "yesterday")
	if typo < 0.8 {
		t.Fatalf("expected typo to score high, got %v", typo)
	}
	if unrelated >= typo {
		t.Fatalf("expected unrelated (%v) below typo (%v)", unrelated, typo)
	}
	if got := TitleSimilarity("smith", "smyth"); got < 0.85 {
		t.Fatalf("expected phonetic floor, got %v", got)
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"john lennon", "john lennon", 1, 1},
		{"j lennon", "john lennon", 0.9, 0.95},
		{"lennon", "john lennon", 0.9, 0.9},
		{"paul lennon", "john lennon", 0.75, 0.75},
		{"paul mccartney", "john lennon", 0, 0.7},
	}
	for _, tt := range tests {
		got := NameSimilarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("NameSimilarity(%q, %q) = %v, want [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestWriterSimilarity(t *testing.T) {
	score, ok := WriterSimilarity([]string{"j lennon"}, []string{"john lennon", "paul mccartney"})
	if !ok || score < 0.9 {
		t.Fatalf("expected last-name match >= 0.9, got %v (ok=%v)", score, ok)
	}
	if _, ok := WriterSimilarity(nil, []string{"john lennon"}); ok {
		t.Fatal("expected no score without statement writers")
	}
}

func TestVectorCosine(t *testing.T) {
	if got := VectorCosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors = %v", got)
	}
	if got := VectorCosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors = %v", got)
	}
	if got := VectorCosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Fatalf("mismatched vectors = %v", got)
	}
}
