// Package safepath keeps paths derived from untrusted names inside an install root.
package safepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

type OutsideRootError struct {
	Path         string
	ResolvedPath string
	Root         string
}

func (err OutsideRootError) Error() string {
	return fmt.Sprintf("resolved path %s for %s is outside root %s", err.ResolvedPath, err.Path, err.Root)
}

// Join appends a slash separated relative name (an archive entry, a library path) to root and
// rejects anything that would land outside of it.
func Join(root string, name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", OutsideRootError{Path: name, ResolvedPath: name, Root: root}
	}
	candidate := filepath.Join(root, filepath.FromSlash(slashed))
	if !Within(filepath.Clean(root), candidate) {
		return "", OutsideRootError{Path: name, ResolvedPath: candidate, Root: root}
	}
	return candidate, nil
}

func Within(root string, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// ResolveWritablePath follows a symlink at destination (on filesystems that have them) and
// fails when the real target is outside root.
func ResolveWritablePath(fs afero.Fs, root string, destination string) (string, error) {
	return resolveWritablePath(fs, root, destination, filepath.EvalSymlinks)
}

func resolveWritablePath(
	fs afero.Fs,
	root string,
	destination string,
	evalSymlinks func(string) (string, error),
) (string, error) {
	linkReader, ok := fs.(afero.LinkReader)
	if !ok {
		return destination, nil
	}
	lstater, ok := fs.(afero.Lstater)
	if !ok {
		return destination, nil
	}

	resolvedRoot, err := absolute(root, evalSymlinks)
	if err != nil {
		return "", err
	}

	info, _, err := lstater.LstatIfPossible(destination)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	target := destination
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		link, readErr := linkReader.ReadlinkIfPossible(destination)
		if readErr != nil {
			return "", readErr
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(filepath.Dir(destination), link)
		}
		target = link
	}

	resolvedDir, err := absolute(filepath.Dir(target), evalSymlinks)
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(resolvedDir, filepath.Base(target))
	if !Within(resolvedRoot, resolved) {
		return "", OutsideRootError{Path: destination, ResolvedPath: resolved, Root: resolvedRoot}
	}
	return resolved, nil
}

func absolute(path string, evalSymlinks func(string) (string, error)) (string, error) {
	resolved, err := evalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}
