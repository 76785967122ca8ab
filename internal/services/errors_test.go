package services_test

import (
	"errors"
	"strings"
	"testing"

	"royalties/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPersistence, "matching", "save batch", "write failed", base)
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"matching", "save batch", "write failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestDetailsExtractsFields(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "parse", "header", "missing amount column", nil)
	details := services.Details(err)
	if details.Kind != services.KindValidation {
		t.Fatalf("expected validation kind, got %s", details.Kind)
	}
	if details.Stage != "parse" || details.Operation != "header" {
		t.Fatalf("unexpected location: %+v", details)
	}
	if details.Message != "missing amount column" {
		t.Fatalf("unexpected message %q", details.Message)
	}
	if details.Hint == "" {
		t.Fatal("expected hint")
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "semantic", "embed", "", errors.New("503")), false},
		{"integrity", services.Wrap(services.ErrIntegrity, "exact", "isrc", "ambiguous", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "parse", "", "", nil), true},
		{"persistence", services.Wrap(services.ErrPersistence, "rows", "", "", nil), true},
		{"plain", errors.New("unclassified"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsFatal(tc.err); got != tc.want {
				t.Fatalf("IsFatal() = %v, want %v", got, tc.want)
			}
		})
	}
}
