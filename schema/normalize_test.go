package schema

import "testing"

func TestValidateToolID(t *testing.T) {
	cases := []struct {
		name  string
		id    ToolID
		valid bool
	}{
		{"simple", "base64", true},
		{"with-dash", "curl-converter", true},
		{"empty", "", false},
		{"uppercase", "Base64", false},
		{"space", "curl converter", false},
		{"trailing-space", "base64 ", false},
		{"symbol", "tool!", false},
	}
	for _, tc := range cases {
		err := ValidateToolID(tc.id)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "en"},
		{"en", "en"},
		{"en-US", "en"},
		{"cn", "zh"},
		{"zh-CN", "zh"},
		{"de-CH", "en"},
	}
	for _, tc := range cases {
		got, err := NormalizeLanguage(tc.in)
		if err != nil {
			t.Fatalf("NormalizeLanguage(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := NormalizeLanguage("not a tag!"); err == nil {
		t.Fatalf("expected error for malformed tag")
	}
}

func TestNormalizePanicKey(t *testing.T) {
	if got, err := NormalizePanicKey(" "); err != nil || got != "Space" {
		t.Fatalf("expected space to map to Space, got %q (%v)", got, err)
	}
	if got, err := NormalizePanicKey(" F12 "); err != nil || got != "F12" {
		t.Fatalf("expected trimmed key, got %q (%v)", got, err)
	}
	if _, err := NormalizePanicKey(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := NormalizePanicKey("a\x00"); err == nil {
		t.Fatalf("expected error for control character")
	}
}

func TestNormalizeSettingsFallsBack(t *testing.T) {
	got := NormalizeSettings(Settings{Theme: "neon", Language: "@@", BossMode: BossMode{IsActive: true}})
	if got.Theme != DefaultTheme {
		t.Fatalf("expected default theme, got %q", got.Theme)
	}
	if got.Language != DefaultLanguage {
		t.Fatalf("expected default language, got %q", got.Language)
	}
	if got.BossMode.PanicKey != DefaultPanicKey {
		t.Fatalf("expected default panic key, got %q", got.BossMode.PanicKey)
	}
	if !got.BossMode.IsActive {
		t.Fatalf("expected boss mode active flag preserved")
	}
}

func TestNormalizeThemeName(t *testing.T) {
	if got, ok := NormalizeThemeName(" Dark "); !ok || got != "dark" {
		t.Fatalf("expected dark, got %q (%v)", got, ok)
	}
	if _, ok := NormalizeThemeName("outrun"); ok {
		t.Fatalf("expected unknown theme to be rejected")
	}
}
