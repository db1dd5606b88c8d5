// Package i18n handles localized user-facing strings.
package i18n

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goLocale "github.com/jeandeaual/go-locale"
	i18nLib "github.com/kaptinlin/go-i18n"
	"golang.org/x/text/language"
)

// TestModeEnv makes T return the key and its arguments verbatim so tests can assert on keys.
const TestModeEnv = "MPL_TEST"

type LocaleProvider interface {
	GetLocales() ([]string, error)
}

type DefaultLocaleProvider struct{}

func (provider DefaultLocaleProvider) GetLocales() ([]string, error) {
	return goLocale.GetLocales()
}

//go:embed lang/*.json
var langFS embed.FS

const defaultLocale = "en-GB"

var (
	localizer      *i18nLib.Localizer
	activeLocales  []string
	langDir                       = "lang"
	localeProvider LocaleProvider = DefaultLocaleProvider{}
	setupOnce      sync.Once
	// translationMutex guards localizer.Get() due to race conditions in go-i18n's internal cache.
	translationMutex sync.Mutex
)

func ResetForTesting() {
	translationMutex.Lock()
	localizer = nil
	activeLocales = nil
	translationMutex.Unlock()
	setupOnce = sync.Once{}
}

type TData map[string]interface{}

type Tvars struct {
	Count int
	Data  *TData
}

func setup() {
	files, err := langFS.ReadDir(langDir)
	if err != nil {
		panic(err)
	}

	available := []string{defaultLocale}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		locale := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		if strings.EqualFold(locale, defaultLocale) {
			continue
		}
		available = append(available, locale)
	}

	bundle := i18nLib.NewBundle(
		i18nLib.WithDefaultLocale(defaultLocale),
		i18nLib.WithLocales(available...),
	)
	if err := bundle.LoadFS(langFS, fmt.Sprintf("%s/*.json", langDir)); err != nil {
		panic(err)
	}

	userLocales := buildLocalizerLocales(detectLocales())

	translationMutex.Lock()
	localizer = bundle.NewLocalizer(userLocales...)
	activeLocales = userLocales
	translationMutex.Unlock()
}

// T translates key. At most one Tvars may be passed.
func T(key string, args ...Tvars) string {
	if _, present := os.LookupEnv(TestModeEnv); present {
		return formatKeyAndArgs(key, args...)
	}
	if len(args) > 1 {
		panic("Too many arguments")
	}

	setupOnce.Do(setup)

	var vars i18nLib.Vars
	if len(args) > 0 {
		vars = i18nLib.Vars{"count": args[0].Count}
		if args[0].Data != nil {
			for name, value := range *args[0].Data {
				vars[name] = value
			}
		}
	}

	translationMutex.Lock()
	defer translationMutex.Unlock()

	if vars == nil {
		return localizer.Get(key)
	}
	return localizer.Get(key, vars)
}

// Locale returns the best matching user locale, or the default when none was detected.
func Locale() string {
	setupOnce.Do(setup)

	translationMutex.Lock()
	defer translationMutex.Unlock()
	if len(activeLocales) == 0 {
		return defaultLocale
	}
	return activeLocales[0]
}

func detectLocales() []string {
	if envLocale, present := os.LookupEnv("LANG"); present {
		return []string{stripEncoding(envLocale)}
	}

	detected, err := localeProvider.GetLocales()
	if err != nil {
		return []string{language.English.String()}
	}

	locales := make([]string, 0, len(detected))
	for _, localeName := range detected {
		if localeName == "" {
			continue
		}
		locales = append(locales, localeName)
	}
	return locales
}

// stripEncoding turns POSIX values such as "fr_FR.UTF-8" into "fr_FR".
func stripEncoding(value string) string {
	if index := strings.IndexAny(value, ".@"); index >= 0 {
		return value[:index]
	}
	return value
}

func formatKeyAndArgs(key string, args ...Tvars) string {
	var sb strings.Builder
	sb.WriteString(key)

	for i, arg := range args {
		sb.WriteString(fmt.Sprintf(", Arg %d: {Count: %d, Data: %v}", i+1, arg.Count, arg.Data))
	}

	return sb.String()
}

func buildLocalizerLocales(rawLocales []string) []string {
	locales := make([]string, 0, len(rawLocales)*2)
	seen := make(map[string]struct{}, len(rawLocales)*2)

	add := func(value string) {
		if _, ok := seen[value]; ok {
			return
		}
		locales = append(locales, value)
		seen[value] = struct{}{}
	}

	for _, localeName := range rawLocales {
		if localeName == "" {
			continue
		}

		tag, err := language.Parse(localeName)
		if err != nil {
			continue
		}

		add(tag.String())
		if base, _ := tag.Base(); base.String() != "" {
			add(base.String())
		}
	}

	return locales
}
