package catalog

import "testing"

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Breaking Bad", "breaking bad"},
		{"  BREAKING   Bad  ", "breaking bad"},
		{"dark", "dark"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Fatalf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanSearchTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Breaking Bad (2008)", "Breaking Bad"},
		{"Breaking Bad 2008", "Breaking Bad"},
		{"Dark Season Finale", "Dark"},
		{"The Crown New Episodes", "The Crown"},
		{"True Detective", "True Detective"},
	}
	for _, tc := range cases {
		if got := CleanSearchTitle(tc.in); got != tc.want {
			t.Fatalf("CleanSearchTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBestMatchExactWinsOverFuzzy(t *testing.T) {
	t.Parallel()

	candidates := []searchResult{
		{ID: 10, Name: "Breaking Bad: El Camino"},
		{ID: 20, Name: "breaking bad"},
	}
	id, ok := bestMatch("Breaking Bad", candidates, 80)
	if !ok {
		t.Fatal("bestMatch found no candidate")
	}
	if id != 20 {
		t.Fatalf("bestMatch id = %d, want exact match 20", id)
	}
}

func TestBestMatchFuzzyAboveThreshold(t *testing.T) {
	t.Parallel()

	candidates := []searchResult{
		{ID: 30, Name: "Breaking Bad"},
	}
	id, ok := bestMatch("Braeking Bad", candidates, 80)
	if !ok {
		t.Fatal("bestMatch rejected a near-identical title")
	}
	if id != 30 {
		t.Fatalf("bestMatch id = %d, want 30", id)
	}
}

func TestBestMatchBelowThreshold(t *testing.T) {
	t.Parallel()

	candidates := []searchResult{
		{ID: 40, Name: "Completely Different Show"},
	}
	if id, ok := bestMatch("Breaking Bad", candidates, 80); ok {
		t.Fatalf("bestMatch accepted id %d below threshold", id)
	}
}

func TestBestMatchNoCandidates(t *testing.T) {
	t.Parallel()

	if _, ok := bestMatch("Breaking Bad", nil, 80); ok {
		t.Fatal("bestMatch accepted with no candidates")
	}
}
