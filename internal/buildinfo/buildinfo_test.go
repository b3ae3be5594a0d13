package buildinfo

import "testing"

func withInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
	Version, Commit, Date = version, commit, date
}

func TestShort(t *testing.T) {
	cases := []struct {
		version, commit, want string
	}{
		{"dev", "unknown", "dev"},
		{"v1.2.0", "abcdef0123", "v1.2.0"},
		{"dev", "abcdef0123", "abcdef0"},
		{"", "abc", "abc"},
	}
	for _, c := range cases {
		withInfo(t, c.version, c.commit, "unknown")
		if got := Short(); got != c.want {
			t.Fatalf("Short(%q,%q)=%q want %q", c.version, c.commit, got, c.want)
		}
	}
}

func TestBanner(t *testing.T) {
	withInfo(t, "v0.1.0", "unknown", "unknown")
	if got := Banner(); got != "miros v0.1.0" {
		t.Fatalf("Banner=%q", got)
	}
	withInfo(t, "v0.1.0", "unknown", "2026-01-02")
	if got := Banner(); got != "miros v0.1.0 built 2026-01-02" {
		t.Fatalf("Banner=%q", got)
	}
}
