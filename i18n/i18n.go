package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

var DefaultLang = "en"

var (
	translations = make(map[string]map[string]string)
	supported    = []language.Tag{language.English, language.French, language.Spanish}
	matcher      = language.NewMatcher(supported)
)

func init() {
	if err := LoadTranslations(); err != nil {
		panic(err)
	}
}

// LoadTranslations (re)reads the embedded catalogues.
func LoadTranslations() error {
	for _, tag := range supported {
		lang := tag.String()
		data, err := locales.ReadFile(path.Join("locales", lang+".json"))
		if err != nil {
			return fmt.Errorf("load %s translations: %w", lang, err)
		}
		var t map[string]string
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("parse %s translations: %w", lang, err)
		}
		translations[lang] = t
	}
	return nil
}

func T(lang, key string) string {
	if t, ok := translations[lang]; ok {
		if val, ok := t[key]; ok {
			return val
		}
	}
	// Fallback to English
	if lang != DefaultLang {
		return T(DefaultLang, key)
	}
	return key
}

// DetectLanguage picks the best supported language from Accept-Language.
func DetectLanguage(r *http.Request) string {
	accept := r.Header.Get("Accept-Language")
	if accept == "" {
		return DefaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLang
	}
	return supported[idx].String()
}
