// Package i18n resolves user-facing strings. Keys are the English phrasing,
// translations live in embedded yaml files named after the language code.
package i18n

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/Istamjon/Expressbot/resources"
)

var state = struct {
	sync.Mutex
	translations map[string]map[string]string
	loaded       map[string]bool
}{
	translations: make(map[string]map[string]string),
	loaded:       make(map[string]bool),
}

func load(lang string) {
	state.loaded[lang] = true

	raw, err := resources.FS.ReadFile(fmt.Sprintf("i18n/%s.yml", lang))
	if err != nil {
		log.WithError(err).Errorln("cant load i18n")
		return
	}
	translations := make(map[string]string)
	if err := yaml.Unmarshal(raw, &translations); err != nil {
		log.WithError(err).Errorln("cant unmarshal i18n")
		return
	}
	state.translations[lang] = translations
}

// Get returns the translation of key for lang, falling back to the key
// itself. English is the source language and needs no file.
func Get(key, lang string) string {
	if lang == "en" {
		return key
	}

	state.Lock()
	defer state.Unlock()
	if !state.loaded[lang] {
		load(lang)
	}
	if res, ok := state.translations[lang][key]; ok {
		return res
	}
	log.Tracef(`no translation for key %q`, key)
	return key
}

// GetLanguagesList enumerates the language codes the bot can answer in,
// derived from the embedded translation files plus English.
func GetLanguagesList() []string {
	languages := []string{"en"}
	entries, err := resources.FS.ReadDir("i18n")
	if err != nil {
		log.WithError(err).Errorln("cant list i18n resources")
		return languages
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".yml") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(name, ".yml"))
	}
	sort.Strings(languages)
	return languages
}
