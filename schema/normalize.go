package schema

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// DefaultLanguage is the fallback UI language.
const DefaultLanguage = "en"

// DefaultPanicKey is the default boss mode panic key.
const DefaultPanicKey = "Escape"

const maxPanicKeyLen = 32

var supportedLanguages = []language.Tag{
	language.English,
	language.Chinese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// SupportedLanguages returns the base language codes the UI ships with.
func SupportedLanguages() []string {
	out := make([]string, 0, len(supportedLanguages))
	for _, tag := range supportedLanguages {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

// NormalizeLanguage parses a BCP 47 tag and returns the closest supported base language.
func NormalizeLanguage(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultLanguage, nil
	}
	if strings.EqualFold(trimmed, "cn") {
		trimmed = "zh"
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", ErrInvalidLanguage
	}
	_, idx, confidence := languageMatcher.Match(tag)
	if confidence == language.No {
		return DefaultLanguage, nil
	}
	base, _ := supportedLanguages[idx].Base()
	return base.String(), nil
}

// NormalizePanicKey validates a boss mode panic key name.
func NormalizePanicKey(value string) (string, error) {
	if value == " " {
		return "Space", nil
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxPanicKeyLen {
		return "", ErrInvalidPanicKey
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", ErrInvalidPanicKey
		}
	}
	return trimmed, nil
}

// DefaultSettings returns settings with defaults applied.
func DefaultSettings() Settings {
	return Settings{
		Theme:    DefaultTheme,
		Language: DefaultLanguage,
		BossMode: BossMode{PanicKey: DefaultPanicKey},
	}
}

// NormalizeSettings applies defaults and canonicalizes fields. Unknown values fall back to defaults.
func NormalizeSettings(in Settings) Settings {
	out := in
	if theme, ok := NormalizeThemeName(string(in.Theme)); ok {
		out.Theme = theme
	} else {
		out.Theme = DefaultTheme
	}
	if lang, err := NormalizeLanguage(in.Language); err == nil {
		out.Language = lang
	} else {
		out.Language = DefaultLanguage
	}
	if key, err := NormalizePanicKey(in.BossMode.PanicKey); err == nil {
		out.BossMode.PanicKey = key
	} else {
		out.BossMode.PanicKey = DefaultPanicKey
	}
	return out
}

// ValidateToolID ensures a tool id matches [a-z0-9-].
func ValidateToolID(id ToolID) error {
	raw := string(id)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrUnknownTool
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '-' {
			continue
		}
		return ErrUnknownTool
	}
	return nil
}
