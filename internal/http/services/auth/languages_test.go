package auth

import "testing"

func TestMatchLanguage(t *testing.T) {
	supported := []string{"en-US", "zh-Hans", "ja-JP"}

	cases := []struct {
		prefs []string
		want  string
	}{
		{[]string{"zh-Hans"}, "zh-Hans"},
		{[]string{"zh-hans"}, "zh-Hans"},        // case-insensitive
		{[]string{"ja"}, "ja-JP"},               // primary subtag
		{[]string{"fr", "ja"}, "ja-JP"},         // first supported pref wins
		{[]string{"fr-FR", "de-DE"}, "en-US"},   // no match falls back to first
		{nil, "en-US"},                          // no prefs
		{[]string{"", "  ", "en-US"}, "en-US"},  // junk entries skipped
	}
	for _, tc := range cases {
		if got := matchLanguage(tc.prefs, supported); got != tc.want {
			t.Fatalf("prefs %v: expected %q, got %q", tc.prefs, tc.want, got)
		}
	}
}

func TestMatchLanguage_EmptySupported(t *testing.T) {
	if got := matchLanguage([]string{"ja"}, nil); got != "en-US" {
		t.Fatalf("expected hard fallback, got %q", got)
	}
}
