package overlap

import "testing"

func TestNormalizeName(t *testing.T) {
	k := NormalizeName("  John A. Smith ")
	if k.Sorted != "a john smith" {
		t.Fatalf("expected sorted form 'a john smith', got %q", k.Sorted)
	}
	if k.First != "john" || k.Last != "smith" || k.Tokens != 3 {
		t.Fatalf("unexpected key %+v", k)
	}
	if !NormalizeName("...").Empty() {
		t.Fatal("expected punctuation-only name to be empty")
	}
}

func TestNamesMatch(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"John A. Smith", "John Smith", true},
		{"Smith John", "john smith", true},
		{"O'Brien, Pat", "Pat OBrien", true},
		{"John Smith", "Jane Smith", false},
		{"Cher", "cher", true},
		{"Cher", "Cher Bono", false},
		{"", "", false},
		{"Mary Jane Watson", "Mary Watson", true},
		{"Mary Jane Watson", "Jane Watson", false},
	}
	for _, tc := range cases {
		if got := NamesMatch(tc.a, tc.b); got != tc.want {
			t.Fatalf("NamesMatch(%q, %q): expected %v, got %v", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestEmailDomain(t *testing.T) {
	cases := map[string]string{
		"Jane@X.com ": "x.com",
		"a@b@corp.io": "corp.io",
		"no-at-sign":  "",
		"trailing@":   "",
		"":            "",
	}
	for in, want := range cases {
		if got := EmailDomain(in); got != want {
			t.Fatalf("EmailDomain(%q): expected %q, got %q", in, want, got)
		}
	}
}
