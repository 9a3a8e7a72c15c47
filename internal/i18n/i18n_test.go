package i18n

import (
	"sort"
	"strings"
	"testing"
)

// TestI18nCompleteness verifies that all language profiles contain all message keys
func TestI18nCompleteness(t *testing.T) {
	languages := GetSupportedLanguages()
	if len(languages) == 0 {
		t.Fatal("No supported languages found")
	}

	// English is the reference profile
	referenceMessages := getMessages(DefaultLanguage)
	if len(referenceMessages) == 0 {
		t.Fatal("No reference messages found in default language")
	}

	for _, lang := range languages {
		t.Run("Language_"+lang, func(t *testing.T) {
			messages := getMessages(lang)

			var missingKeys []string
			for key := range referenceMessages {
				if _, exists := messages[key]; !exists {
					missingKeys = append(missingKeys, key)
				}
			}

			var extraKeys []string
			for key := range messages {
				if _, exists := referenceMessages[key]; !exists {
					extraKeys = append(extraKeys, key)
				}
			}

			sort.Strings(missingKeys)
			sort.Strings(extraKeys)

			if len(missingKeys) > 0 {
				t.Errorf("Language %s is missing %d keys: %v", lang, len(missingKeys), missingKeys)
			}
			if len(extraKeys) > 0 {
				t.Errorf("Language %s has %d keys not in the reference: %v", lang, len(extraKeys), extraKeys)
			}
		})
	}
}

// TestI18nKeyConsistency verifies that all message keys follow expected patterns
func TestI18nKeyConsistency(t *testing.T) {
	expectedPrefixes := []string{"error.", "prompt.", "speech."}

	for key := range getMessages(DefaultLanguage) {
		hasValidPrefix := false
		for _, prefix := range expectedPrefixes {
			if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
				hasValidPrefix = true
				break
			}
		}

		if !hasValidPrefix {
			t.Errorf("Message key '%s' does not follow expected naming convention (should start with one of: %v)",
				key, expectedPrefixes)
		}
	}
}

// TestI18nMessageValues verifies that every language uses the same placeholders per key
func TestI18nMessageValues(t *testing.T) {
	testsWithPlaceholders := map[string]string{
		"error.not_found":         "%s",
		"error.filtered_out":      "%s",
		"speech.playing_track":    "%s%s", // title, artist
		"speech.playing_album":    "%s",
		"speech.playing_artist":   "%s",
		"speech.playing_playlist": "%s",
		"speech.now_playing":      "%s%s", // title, artist
		"speech.rated":            "%s%d", // title, stars
	}

	for _, lang := range GetSupportedLanguages() {
		messages := getMessages(lang)
		for key, expected := range testsWithPlaceholders {
			message, exists := messages[key]
			if !exists {
				t.Errorf("Expected message key '%s' not found in %s", key, lang)
				continue
			}

			if got := placeholders(message); got != expected {
				t.Errorf("Message key '%s' in %s should have placeholders %q but has %q: %s",
					key, lang, expected, got, message)
			}
		}
	}
}

func placeholders(message string) string {
	var b strings.Builder
	for i := 0; i < len(message)-1; i++ {
		if message[i] == '%' && (message[i+1] == 's' || message[i+1] == 'd') {
			b.WriteString(message[i : i+2])
		}
	}
	return b.String()
}

// TestLocalizerFunctionality tests the Localizer methods
func TestLocalizerFunctionality(t *testing.T) {
	localizer := NewLocalizer(DefaultLanguage)

	result := localizer.T("error.generic")
	if result == "" || result == "error.generic" {
		t.Errorf("Expected translated message for 'error.generic', got: %s", result)
	}

	// Unknown keys come back verbatim
	nonExistentKey := "this.key.does.not.exist"
	if result = localizer.T(nonExistentKey); result != nonExistentKey {
		t.Errorf("Expected fallback to key name for non-existent key, got: %s", result)
	}

	result = localizer.T("speech.playing_track", "Paranoid Android", "Radiohead")
	if expected := "Playing Paranoid Android by Radiohead."; result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}

	german := NewLocalizer(GermanMessages)
	result = german.T("speech.rated", "Yellow", 4)
	if expected := "Yellow mit 4 Sternen bewertet."; result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}

	// Unsupported languages fall back to English
	unknown := NewLocalizer("xx")
	if result = unknown.T("speech.goodbye"); result != "Goodbye." {
		t.Errorf("Expected English fallback, got: %s", result)
	}
}

func TestLanguageForLocale(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"en-US", "en"},
		{"en-GB", "en"},
		{"de-DE", "de"},
		{"de-AT", "de"},
		{"de-CH", "de"},
		{"", "en"},
		{"not a locale!", "en"},
		{"ja-JP", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			if got := LanguageForLocale(tt.locale, DefaultLanguage); got != tt.want {
				t.Errorf("LanguageForLocale(%q) = %q, want %q", tt.locale, got, tt.want)
			}
		})
	}

	if got := LanguageForLocale("", GermanMessages); got != GermanMessages {
		t.Errorf("empty locale should use the fallback, got %q", got)
	}
}

// TestGetSupportedLanguages verifies the supported languages function
func TestGetSupportedLanguages(t *testing.T) {
	languages := GetSupportedLanguages()

	foundDefault := false
	for _, lang := range languages {
		if lang == DefaultLanguage {
			foundDefault = true
			break
		}
	}

	if !foundDefault {
		t.Errorf("GetSupportedLanguages should include default language '%s'", DefaultLanguage)
	}
}

// BenchmarkLocalizer benchmarks the localization performance
func BenchmarkLocalizer(b *testing.B) {
	localizer := NewLocalizer(DefaultLanguage)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = localizer.T("error.generic")
	}
}

// BenchmarkLocalizerWithArgs benchmarks localization with arguments
func BenchmarkLocalizerWithArgs(b *testing.B) {
	localizer := NewLocalizer(DefaultLanguage)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = localizer.T("speech.now_playing", "Song", "Artist")
	}
}
