package perf

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const defaultExportFilename = "mpl-perf.json"

// ExportToFile writes every recorded span as JSON to <outDir>/mpl-perf.json.
// Path-like attributes under baseDir are rewritten relative to it so the
// file can be shared without leaking the user's home directory.
//
// This is a best-effort diagnostic artifact; callers should treat any
// returned error as non-fatal.
func ExportToFile(fs afero.Fs, outDir string, baseDir string) (string, error) {
	spans, err := GetSpans()
	if err != nil {
		return "", err
	}

	if outDir == "" {
		outDir = "."
	}
	if err := fs.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}

	for i := range spans {
		spans[i].Attributes = normalizePaths(spans[i].Attributes, baseDir)
	}

	data, err := json.MarshalIndent(spans, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(outDir, defaultExportFilename)
	return path, afero.WriteFile(fs, path, data, 0644)
}

func normalizePaths(attributes map[string]interface{}, baseDir string) map[string]interface{} {
	if len(attributes) == 0 || baseDir == "" {
		return attributes
	}
	for key, value := range attributes {
		stringValue, ok := value.(string)
		if !ok || !looksLikePathKey(key) || !filepath.IsAbs(stringValue) {
			continue
		}
		if rel, err := filepath.Rel(baseDir, stringValue); err == nil && !strings.HasPrefix(rel, "..") {
			attributes[key] = filepath.ToSlash(rel)
		}
	}
	return attributes
}

func looksLikePathKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	return key == "path" || key == "root" || strings.HasSuffix(key, "_path")
}
