// Package descriptor reads installed runtime descriptors (versions/<id>/<id>.json).
package descriptor

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/meza/minecraft-modpack-launcher/internal/discovery"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

type Descriptor struct {
	ID           string
	InheritsFrom string
	MainClass    string
	Type         string
	Libraries    []LibraryEntry
}

type LibraryEntry struct {
	Name string
	Path string
	URL  string
	SHA1 string
	Size int64
}

type DescriptorMissingError struct {
	VersionID string
	Path      string
}

func (e *DescriptorMissingError) Error() string {
	return fmt.Sprintf("runtime descriptor for %s not found at %s", e.VersionID, e.Path)
}

// Load reads the descriptor fresh from disk on every call.
func Load(fs afero.Fs, root string, versionID string) (*Descriptor, error) {
	path := discovery.DescriptorPath(root, versionID)
	content, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &DescriptorMissingError{VersionID: versionID, Path: path}
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read descriptor %s", path)
	}
	return Parse(content)
}

func Parse(content []byte) (*Descriptor, error) {
	if !gjson.ValidBytes(content) {
		return nil, pkgerrors.New("failed to decode descriptor: invalid JSON")
	}
	document := gjson.ParseBytes(content)
	if !document.IsObject() {
		return nil, pkgerrors.New("failed to decode descriptor: not an object")
	}

	descriptor := &Descriptor{
		ID:           document.Get("id").String(),
		InheritsFrom: document.Get("inheritsFrom").String(),
		MainClass:    document.Get("mainClass").String(),
		Type:         document.Get("type").String(),
	}

	osName := currentOS()
	document.Get("libraries").ForEach(func(_, library gjson.Result) bool {
		if !rulesAllow(library.Get("rules"), osName) {
			return true
		}
		if entry, ok := libraryEntry(library); ok {
			descriptor.Libraries = append(descriptor.Libraries, entry)
		}
		return true
	})
	return descriptor, nil
}

func libraryEntry(library gjson.Result) (LibraryEntry, bool) {
	entry := LibraryEntry{Name: library.Get("name").String()}

	artifact := library.Get("downloads.artifact")
	if artifact.Exists() {
		entry.Path = artifact.Get("path").String()
		entry.URL = artifact.Get("url").String()
		entry.SHA1 = strings.ToLower(artifact.Get("sha1").String())
		entry.Size = artifact.Get("size").Int()
		if entry.Path == "" && entry.Name != "" {
			entry.Path, _ = MavenPath(entry.Name)
		}
		return entry, entry.Name != "" || entry.Path != ""
	}

	base := library.Get("url").String()
	if base == "" || entry.Name == "" {
		return entry, entry.Name != ""
	}
	path, err := MavenPath(entry.Name)
	if err != nil {
		return entry, true
	}
	entry.Path = path
	entry.URL = strings.TrimSuffix(base, "/") + "/" + path
	return entry, true
}

// MavenPath turns group:artifact:version[:classifier][@extension] into its repository path.
func MavenPath(coordinate string) (string, error) {
	extension := "jar"
	if at := strings.LastIndex(coordinate, "@"); at >= 0 {
		extension = coordinate[at+1:]
		coordinate = coordinate[:at]
	}
	parts := strings.Split(coordinate, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return "", fmt.Errorf("invalid maven coordinate %q", coordinate)
	}
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("invalid maven coordinate %q", coordinate)
		}
	}

	group, artifact, version := parts[0], parts[1], parts[2]
	file := artifact + "-" + version
	if len(parts) == 4 {
		file += "-" + parts[3]
	}
	return strings.Join([]string{strings.ReplaceAll(group, ".", "/"), artifact, version, file + "." + extension}, "/"), nil
}

func rulesAllow(rules gjson.Result, osName string) bool {
	if !rules.Exists() || !rules.IsArray() {
		return true
	}
	allowed := false
	rules.ForEach(func(_, rule gjson.Result) bool {
		name := rule.Get("os.name").String()
		if name != "" && name != osName {
			return true
		}
		allowed = rule.Get("action").String() == "allow"
		return true
	})
	return allowed
}

func currentOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "osx"
	default:
		return runtime.GOOS
	}
}
