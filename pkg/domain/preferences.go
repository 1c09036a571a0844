package domain

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/language"
)

// Theme is the page color scheme preference.
type Theme string

// Supported themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DefaultTheme applies when no preference is stored.
const DefaultTheme = ThemeLight

// ParseTheme returns the theme named by s, or false when s is not supported.
func ParseTheme(s string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeLight:
		return ThemeLight, true
	case ThemeDark:
		return ThemeDark, true
	}
	return "", false
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Language is the page language preference.
type Language string

// Supported languages.
const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
)

// DefaultLanguage applies when no preference is stored.
const DefaultLanguage = LanguageEnglish

var languageMatcher = language.NewMatcher([]language.Tag{language.English, language.French})

// ParseLanguage maps a BCP 47 tag such as "fr-CA" onto a supported language.
// It returns false when s does not parse or no supported language is close.
func ParseLanguage(s string) (Language, bool) {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf < language.High {
		return "", false
	}
	if idx == 1 {
		return LanguageFrench, true
	}
	return LanguageEnglish, true
}

// Tag returns the language tag used for message lookup.
func (l Language) Tag() language.Tag {
	if l == LanguageFrench {
		return language.French
	}
	return language.English
}

// Toggle returns the other language.
func (l Language) Toggle() Language {
	if l == LanguageFrench {
		return LanguageEnglish
	}
	return LanguageFrench
}

// Preferences holds the persisted presentation choices of one visitor.
type Preferences struct {
	Theme    Theme    `json:"theme"`
	Language Language `json:"language"`
}

// DefaultPreferences returns the fixed defaults.
func DefaultPreferences() Preferences {
	return Preferences{Theme: DefaultTheme, Language: DefaultLanguage}
}

// Normalize replaces unsupported values with defaults.
func (p Preferences) Normalize() Preferences {
	if t, ok := ParseTheme(string(p.Theme)); ok {
		p.Theme = t
	} else {
		p.Theme = DefaultTheme
	}
	if l, ok := ParseLanguage(string(p.Language)); ok {
		p.Language = l
	} else {
		p.Language = DefaultLanguage
	}
	return p
}

// ErrInvalidVisitor is returned by stores for an empty visitor identifier.
var ErrInvalidVisitor = errors.New("preferences: visitor id required")

// PreferenceStore persists preferences keyed by visitor identifier.
type PreferenceStore interface {
	// Get returns the stored preferences and whether any were found.
	Get(ctx context.Context, visitorID string) (Preferences, bool, error)
	// Put replaces the stored preferences for the visitor.
	Put(ctx context.Context, visitorID string, prefs Preferences) error
	Close() error
}
