// Package i18n provides localized user-facing strings.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"crimson-city-bot/internal/model"
)

//go:embed locales/*.json
var localeFS embed.FS

// Params are named substitutions for {placeholders} in a string.
type Params map[string]any

// Translator resolves string keys per language.
type Translator struct {
	locales map[model.Language]map[string]string
}

// New loads the embedded locale files for every supported language.
func New() (*Translator, error) {
	t := &Translator{locales: make(map[model.Language]map[string]string)}
	for _, lang := range model.Languages() {
		data, err := localeFS.ReadFile("locales/" + string(lang) + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", lang, err)
		}
		strs := make(map[string]string)
		if err := json.Unmarshal(data, &strs); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", lang, err)
		}
		t.locales[lang] = strs
	}
	return t, nil
}

// T returns the string for key in lang with params substituted. A key
// missing from lang falls back to English, and then to the key itself.
func (t *Translator) T(lang model.Language, key string, params Params) string {
	s, ok := t.locales[lang][key]
	if !ok {
		s, ok = t.locales[model.DefaultLanguage][key]
	}
	if !ok {
		return key
	}
	if len(params) == 0 {
		return s
	}

	// Sorted for a stable replacer regardless of map order.
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(params)*2)
	for _, name := range names {
		pairs = append(pairs, "{"+name+"}", fmt.Sprint(params[name]))
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Keys returns the keys defined for lang.
func (t *Translator) Keys(lang model.Language) []string {
	keys := make([]string, 0, len(t.locales[lang]))
	for k := range t.locales[lang] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Persian})

// ParseLanguage maps a BCP 47 code such as "fa-IR" or "en-US" onto a
// supported language.
func ParseLanguage(code string) (model.Language, bool) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return "", false
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "", false
	}
	return model.Languages()[idx], true
}
