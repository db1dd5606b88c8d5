package fileutils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

func InitFilesystem(filesystem ...afero.Fs) afero.Fs {
	if len(filesystem) > 0 {
		return filesystem[0]
	}

	return afero.NewOsFs()
}

// CopyTree recursively copies source into destination, overwriting files that
// already exist. Directories are created with 0755 and files keep their mode.
func CopyTree(fs afero.Fs, source string, destination string) error {
	info, err := fs.Stat(source)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(fs, source, destination, info.Mode())
	}

	return afero.Walk(fs, source, func(path string, entry os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, rel)
		if entry.IsDir() {
			return fs.MkdirAll(target, 0755)
		}
		return copyFile(fs, path, target, entry.Mode())
	})
}

func copyFile(fs afero.Fs, source string, destination string, mode os.FileMode) error {
	if err := fs.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return err
	}

	in, err := fs.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := fs.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", source, err)
	}
	return out.Close()
}

// TailLines returns at most the last n lines of the file at path.
func TailLines(fs afero.Fs, path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ring, nil
}
