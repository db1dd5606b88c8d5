// Package discovery locates installed loader runtimes and loader installer artifacts on disk.
package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const VersionsDir = "versions"

type Discovery struct {
	fs          afero.Fs
	identifiers []string
	extensions  []string
}

func New(fs afero.Fs, identifiers []string, extensions []string) *Discovery {
	return &Discovery{
		fs:          fs,
		identifiers: lowerAll(identifiers),
		extensions:  lowerAll(extensions),
	}
}

// DescriptorPath is where the descriptor of versionID lives under root.
func DescriptorPath(root string, versionID string) string {
	return filepath.Join(root, VersionsDir, versionID, versionID+".json")
}

// FindInstalledVersion returns the versions/ entry that names one of the identifiers and carries
// its own descriptor. With several candidates the longest name wins, ties broken lexically.
func (discovery *Discovery) FindInstalledVersion(root string) (string, bool, error) {
	entries, err := afero.ReadDir(discovery.fs, filepath.Join(root, VersionsDir))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() || !discovery.matchesIdentifier(entry.Name()) {
			continue
		}
		exists, err := afero.Exists(discovery.fs, DescriptorPath(root, entry.Name()))
		if err != nil {
			return "", false, err
		}
		if exists {
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true, nil
}

// FindInstallerArtifact returns the first file directly in root (sorted by name) that looks like a
// loader installer.
func (discovery *Discovery) FindInstallerArtifact(root string) (string, bool, error) {
	entries, err := afero.ReadDir(discovery.fs, root)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.Contains(name, "installer") || !discovery.matchesIdentifier(name) || !discovery.hasExtension(name) {
			continue
		}
		return filepath.Join(root, entry.Name()), true, nil
	}
	return "", false, nil
}

func (discovery *Discovery) matchesIdentifier(name string) bool {
	lowered := strings.ToLower(name)
	for _, identifier := range discovery.identifiers {
		if identifier != "" && strings.Contains(lowered, identifier) {
			return true
		}
	}
	return false
}

func (discovery *Discovery) hasExtension(name string) bool {
	for _, extension := range discovery.extensions {
		if extension != "" && strings.HasSuffix(name, extension) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	lowered := make([]string, 0, len(values))
	for _, value := range values {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(value)))
	}
	return lowered
}
