// Command lang merges the per-area translation sources under internal/i18n/localise/<locale>/
// into the single internal/i18n/lang/<locale>.json file embedded into the binary.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	localiseDir = "internal/i18n/localise"
	outputDir   = "internal/i18n/lang"
)

func main() {
	if err := build(afero.NewOsFs(), localiseDir, outputDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func build(fs afero.Fs, sourceDir string, targetDir string) error {
	if err := fs.MkdirAll(targetDir, 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}

	locales, err := afero.ReadDir(fs, sourceDir)
	if err != nil {
		return errors.Wrap(err, "reading localise directory")
	}

	for _, locale := range locales {
		if !locale.IsDir() {
			continue
		}
		merged, err := mergeLocale(fs, filepath.Join(sourceDir, locale.Name()))
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(merged, "", "  ")
		if err != nil {
			return errors.Wrapf(err, "encoding %s", locale.Name())
		}
		outputPath := filepath.Join(targetDir, locale.Name()+".json")
		if err := afero.WriteFile(fs, outputPath, append(data, '\n'), 0644); err != nil {
			return errors.Wrapf(err, "writing %s", outputPath)
		}
	}
	return nil
}

// mergeLocale reads every json file of a locale in name order. A key defined twice is an error.
func mergeLocale(fs afero.Fs, dir string) (map[string]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	merged := map[string]string{}
	origin := map[string]string{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		var messages map[string]string
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
		for key, value := range messages {
			if previous, exists := origin[key]; exists {
				return nil, errors.Errorf("%s is defined in both %s and %s", key, previous, name)
			}
			merged[key] = value
			origin[key] = name
		}
	}
	return merged, nil
}
