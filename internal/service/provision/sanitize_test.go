package provision

import (
	"strings"
	"testing"
)

func TestSanitizeNameBasics(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Countdown Clock", "countdown-clock"},
		{"keeps dots and underscores", "my_app.v2", "my_app.v2"},
		{"replaces disallowed runes", "hello world!", "hello-world"},
		{"keeps short hyphen runs", "a--b", "a--b"},
		{"collapses long hyphen runs", "a---b", "a-b"},
		{"collapses mixed separators", "a - b", "a-b"},
		{"trims edge hyphens", "--edge--", "edge"},
		{"empty input falls back", "", "frame-project"},
		{"all symbols falls back", "!!!", "frame-project"},
		{"unicode replaced", "café", "caf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeName(tc.in)
			if got != tc.want {
				t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeNameIdempotent(t *testing.T) {
	inputs := []string{"Countdown Clock", "a---b", "--x--", "weird!!name??", strings.Repeat("abc-", 50)}
	for _, in := range inputs {
		once := SanitizeName(in)
		twice := SanitizeName(once)
		if once != twice {
			t.Fatalf("SanitizeName not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 250)
	got := SanitizeName(long)
	if len(got) != 100 {
		t.Fatalf("expected 100 characters, got %d", len(got))
	}
}

func TestRepoNamePrefixesUsername(t *testing.T) {
	got := RepoName("alice", "Countdown Clock")
	if got != "alice-countdown-clock" {
		t.Fatalf("RepoName = %q, want %q", got, "alice-countdown-clock")
	}
	if got := RepoName("", "Countdown Clock"); got != "countdown-clock" {
		t.Fatalf("RepoName without username = %q", got)
	}
}
