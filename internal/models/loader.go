package models

import (
	"fmt"
	"strings"
)

type Loader string

const (
	FABRIC   Loader = "fabric"
	FORGE    Loader = "forge"
	NEOFORGE Loader = "neoforge"
	QUILT    Loader = "quilt"
)

func AllLoaders() []Loader {
	return []Loader{FABRIC, FORGE, NEOFORGE, QUILT}
}

func (loader Loader) String() string {
	return string(loader)
}

// ParseLoader accepts any casing of a known loader name.
func ParseLoader(value string) (Loader, error) {
	normalized := Loader(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range AllLoaders() {
		if known == normalized {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown mod loader: %q", value)
}

// Identifiers returns the folder/file name fragments that identify an
// installation of the loader. NeoForge installs are also matched by "forge"
// because older NeoForge builds still publish forge-named version folders.
func (loader Loader) Identifiers() []string {
	switch loader {
	case NEOFORGE:
		return []string{"neoforge", "forge"}
	case FORGE:
		return []string{"forge"}
	default:
		return []string{string(loader)}
	}
}
