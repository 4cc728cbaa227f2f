package strings

import (
	std "strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("short", 100); got != "short" {
		t.Fatalf("Truncate = %q", got)
	}
	long := std.Repeat("x", 100)
	got := Truncate(long, 40)
	if len(got) != 40 {
		t.Fatalf("len = %d, want 40", len(got))
	}
	if !std.HasSuffix(got, "...(truncated)") {
		t.Fatalf("missing marker: %q", got)
	}
	// too small for the marker: hard cut
	if got := Truncate(long, 5); got != "xxxxx" {
		t.Fatalf("hard cut = %q", got)
	}
}

func TestTail(t *testing.T) {
	t.Parallel()

	if got := Tail("abcdef", 3); got != "def" {
		t.Fatalf("Tail = %q", got)
	}
	if got := Tail("ab", 10); got != "ab" {
		t.Fatalf("Tail = %q", got)
	}
}

func TestSplitCSV(t *testing.T) {
	t.Parallel()

	if got := SplitCSV(""); got != nil {
		t.Fatalf("SplitCSV empty = %v", got)
	}
	got := SplitCSV(" a, ,b ,, c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("SplitCSV = %v", got)
	}
}

func TestSQLNull(t *testing.T) {
	t.Parallel()

	if v := SQLNull(""); v != nil {
		t.Fatalf("SQLNull(\"\") = %v", v)
	}
	if v := SQLNull("  "); v != nil {
		t.Fatalf("SQLNull(blank) = %v", v)
	}
	if v := SQLNull("x"); v != "x" {
		t.Fatalf("SQLNull(x) = %v", v)
	}
}
