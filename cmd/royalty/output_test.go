package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderTableRightAlignsNumericColumns(t *testing.T) {
	out := renderTable([]string{"Payee", "Net"}, [][]string{
		{"John Lennon", "5.00"},
		{"Paul McCartney", "1,250.00"},
	})
	// The short amount is padded on the left to line up with the long one.
	if !strings.Contains(out, "     5.00 ") {
		t.Fatalf("expected right-aligned amount column:\n%s", out)
	}
	if !strings.Contains(out, "John Lennon    ") {
		t.Fatalf("expected left-aligned names:\n%s", out)
	}
}

func TestIsNumeric(t *testing.T) {
	for cell, want := range map[string]bool{"42": true, "50%": true, "1,000.25": true, "w-help": false, "": false} {
		if got := isNumeric(cell); got != want {
			t.Errorf("isNumeric(%q) = %v, want %v", cell, got, want)
		}
	}
}

func TestColorStatusPlainForBuffers(t *testing.T) {
	var buf bytes.Buffer
	if got := colorStatus(&buf, "failed", "bad"); got != "failed" {
		t.Fatalf("expected plain text for non-terminal writer, got %q", got)
	}
}
