package testutil

import (
	"slices"
	"testing"
)

// AssertStrings fails the test unless got equals want element by element.
func AssertStrings(t testing.TB, got []string, want ...string) {
	t.Helper()
	if slices.Equal(got, want) {
		return
	}
	t.Errorf("got %q, want %q", got, want)
}

// MustNoErr stops the test if err is non-nil. msg names the failed step.
func MustNoErr(t testing.TB, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
