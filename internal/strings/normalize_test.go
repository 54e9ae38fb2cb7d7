package strings

import "testing"

func TestNormalizeWhitespace(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "whitespace only",
			input: " \n\t ",
			want:  "",
		},
		{
			name:  "collapses newlines",
			input: "stand\n\n up\tnotes",
			want:  "stand up notes",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeWhitespace(tc.input)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{input: "", want: true},
		{input: "  \t\n", want: true},
		{input: " b1 ", want: false},
	}

	for _, tc := range cases {
		if got := IsBlank(tc.input); got != tc.want {
			t.Fatalf("IsBlank(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeNewlines(t *testing.T) {
	got := NormalizeNewlines("a\r\nb\rc\n")
	if got != "a\nb\nc\n" {
		t.Fatalf("expected normalized newlines, got %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "shorter", input: "abc", max: 5, want: "abc"},
		{name: "exact", input: "abcde", max: 5, want: "abcde"},
		{name: "longer", input: "abcdef", max: 3, want: "abc"},
		{name: "multibyte", input: "héllo", max: 2, want: "hé"},
		{name: "zero", input: "abc", max: 0, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TruncateRunes(tc.input, tc.max); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFirstNonBlank(t *testing.T) {
	if got := FirstNonBlank("", "  ", " detail ", "message"); got != "detail" {
		t.Fatalf("expected detail, got %q", got)
	}
	if got := FirstNonBlank(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
