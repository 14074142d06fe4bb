package util

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"ana@example.com", "a…@e….com"},
		{"A@b.co", "a@b.co"},
		{"", ""},
		{"xx", "***"},
		{"not-an-email", "n…l"},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Fatalf("MaskEmail(%q) = %q, quería %q", c.in, got, c.want)
		}
	}
}
