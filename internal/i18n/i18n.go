// Package i18n provides internationalization support for spoken responses
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
)

const (
	// DefaultLanguage is the fallback language when no translation is available
	DefaultLanguage = "en"
	// GermanMessages covers every German-speaking locale (de-DE, de-AT, de-CH)
	GermanMessages = "de"
)

var (
	supportedTags = []language.Tag{language.English, language.German}
	tagMatcher    = language.NewMatcher(supportedTags)
)

// Localizer provides translation functionality
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer creates a new localizer for the specified language
func NewLocalizer(lang string) *Localizer {
	return &Localizer{
		language: lang,
		messages: getMessages(lang),
	}
}

// Language returns the language code the localizer was created for.
func (l *Localizer) Language() string {
	return l.language
}

// T translates a message key, with optional parameters for formatting
func (l *Localizer) T(key string, args ...any) string {
	if message, exists := l.messages[key]; exists {
		return format(message, args)
	}

	// Fallback to English if key not found in current language
	if l.language != DefaultLanguage {
		if fallbackMessage, exists := getMessages(DefaultLanguage)[key]; exists {
			return format(fallbackMessage, args)
		}
	}

	// Ultimate fallback: return the key itself
	return key
}

// LanguageForLocale maps a BCP 47 locale such as "de-AT" to the closest supported language.
// Unparsable or empty locales yield fallback.
func LanguageForLocale(locale, fallback string) string {
	if locale == "" {
		return fallback
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return fallback
	}

	_, index, confidence := tagMatcher.Match(tag)
	if confidence == language.No {
		return fallback
	}

	base, _ := supportedTags[index].Base()
	return base.String()
}

// GetSupportedLanguages returns list of supported language codes
func GetSupportedLanguages() []string {
	return []string{DefaultLanguage, GermanMessages}
}

// getMessages returns the message map for a given language
func getMessages(lang string) map[string]string {
	switch lang {
	case DefaultLanguage:
		return englishMessages
	case GermanMessages:
		return germanMessages
	default:
		return englishMessages // Default to English
	}
}

func format(message string, args []any) string {
	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	}
	return message
}
