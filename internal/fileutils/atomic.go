package fileutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const siblingMarker = ".mpl"

// WriteFileAtomic writes data next to path and renames it into place so readers never see a
// half written file. When the platform refuses to rename over an existing file the old file is
// moved aside first and restored if the swap fails.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, mode os.FileMode) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tempPath, err := freeSibling(fs, path, ".tmp")
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, tempPath, data, mode); err != nil {
		return errors.Join(err, removeIfExists(fs, tempPath))
	}

	if err := fs.Rename(tempPath, path); err == nil {
		return nil
	}

	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		if err == nil {
			err = fmt.Errorf("failed to move %s into place", tempPath)
		}
		return errors.Join(err, removeIfExists(fs, tempPath))
	}
	return swapThroughBackup(fs, tempPath, path)
}

func swapThroughBackup(fs afero.Fs, tempPath string, path string) error {
	backupPath, err := freeSibling(fs, path, ".bak")
	if err != nil {
		return errors.Join(err, removeIfExists(fs, tempPath))
	}
	if err := fs.Rename(path, backupPath); err != nil {
		return errors.Join(err, removeIfExists(fs, tempPath))
	}
	if err := fs.Rename(tempPath, path); err != nil {
		rollback := fs.Rename(backupPath, path)
		if rollback != nil {
			rollback = fmt.Errorf("failed to restore backup %s: %w", backupPath, rollback)
		}
		return errors.Join(err, removeIfExists(fs, tempPath), rollback)
	}
	if err := removeIfExists(fs, backupPath); err != nil {
		return fmt.Errorf("failed to remove backup file %s: %w", backupPath, err)
	}
	return nil
}

func freeSibling(fs afero.Fs, path string, suffix string) (string, error) {
	base := path + siblingMarker + suffix
	candidate := base
	for i := 1; i <= 100; i++ {
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s.%d", base, i)
	}
	return "", errors.New("cannot allocate sibling path")
}

func removeIfExists(fs afero.Fs, path string) error {
	err := fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
