package tokens

import (
	"strings"
	"testing"
)

func TestApprox(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
		{strings.Repeat("x", 401), 101},
	}
	for _, c := range cases {
		if got := Approx(c.in); got != c.want {
			t.Errorf("Approx(%d chars) = %d, want %d", len(c.in), got, c.want)
		}
	}
}

func TestApproxAll(t *testing.T) {
	// Per-string ceilings sum, they do not merge.
	if got := ApproxAll("a", "b", "c"); got != 3 {
		t.Errorf("ApproxAll = %d, want 3", got)
	}
}

func TestCapText(t *testing.T) {
	long := strings.Repeat("word ", 200) // 1000 chars, 250 tokens

	capped, clipped := CapText(long, 120)
	if !clipped {
		t.Fatal("expected clip")
	}
	if got := Approx(capped); got > 120 {
		t.Errorf("capped text is %d tokens, want <= 120", got)
	}

	short := "hello"
	kept, clipped := CapText(short, 120)
	if clipped || kept != short {
		t.Errorf("short text should pass through, got %q clipped=%v", kept, clipped)
	}

	empty, clipped := CapText("anything", 0)
	if empty != "" || !clipped {
		t.Errorf("zero cap should drop everything, got %q clipped=%v", empty, clipped)
	}
}
