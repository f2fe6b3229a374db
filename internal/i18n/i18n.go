// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package i18n provides the translated strings printed by the CLI. It uses
// the go-i18n library to load the YAML translation files embedded from
// 'locales'.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	mu          sync.RWMutex
	localizer   *i18n.Localizer
	currentLang string
)

// Init loads the embedded locales and selects lang, falling back to English.
func Init(lang string) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			continue
		}
		_, _ = bundle.ParseMessageFileBytes(data, f.Name())
	}

	l := i18n.NewLocalizer(bundle, lang, language.English.String())
	mu.Lock()
	localizer = l
	currentLang = lang
	mu.Unlock()
}

// T translates messageID and formats the result with args. Unknown IDs are
// returned as-is so missing translations stay visible.
func T(messageID string, args ...any) string {
	mu.RLock()
	l := localizer
	mu.RUnlock()
	if l == nil {
		Init("en")
		mu.RLock()
		l = localizer
		mu.RUnlock()
	}

	msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		msg = messageID
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// GetLang returns the language tag the localizer was initialised with.
func GetLang() string {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}
