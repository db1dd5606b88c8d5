package fileutils

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type renameFailFs struct {
	afero.Fs
	old                string
	new                string
	onlyWhenDestExists bool
}

func (r renameFailFs) Rename(oldname, newname string) error {
	if oldname == r.old && newname == r.new {
		if !r.onlyWhenDestExists {
			return errors.New("rename failed")
		}
		if exists, _ := afero.Exists(r.Fs, newname); exists {
			return errors.New("rename failed")
		}
	}
	return r.Fs.Rename(oldname, newname)
}

type removeErrorFs struct {
	afero.Fs
	failPath string
}

func (r removeErrorFs) Remove(name string) error {
	if filepath.Clean(name) == filepath.Clean(r.failPath) {
		return errors.New("remove failed")
	}
	return r.Fs.Remove(name)
}

func TestWriteFileAtomicCreatesParentsAndFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.FromSlash("/root/launcher_profiles.json")

	require.NoError(t, WriteFileAtomic(fs, path, []byte("{}"), 0644))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	tempExists, _ := afero.Exists(fs, path+".mpl.tmp")
	assert.False(t, tempExists)
}

func TestWriteFileAtomicReplacesExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.FromSlash("/root/.modpack_installed")
	require.NoError(t, afero.WriteFile(fs, path, []byte("old"), 0644))
	require.NoError(t, afero.WriteFile(fs, path+".mpl.tmp", []byte("stale"), 0644))

	require.NoError(t, WriteFileAtomic(fs, path, []byte("new"), 0644))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteFileAtomicCleansTempWhenTargetCannotBeCreated(t *testing.T) {
	base := afero.NewMemMapFs()
	path := filepath.FromSlash("/root/file.json")
	fs := renameFailFs{Fs: base, old: path + ".mpl.tmp", new: path}

	assert.Error(t, WriteFileAtomic(fs, path, []byte("new"), 0644))

	exists, _ := afero.Exists(base, path)
	assert.False(t, exists)
	tempExists, _ := afero.Exists(base, path+".mpl.tmp")
	assert.False(t, tempExists)
}

func TestWriteFileAtomicSwapsThroughBackupWhenOverwriteRenameFails(t *testing.T) {
	base := afero.NewMemMapFs()
	path := filepath.FromSlash("/root/file.json")
	require.NoError(t, afero.WriteFile(base, path, []byte("old"), 0644))
	fs := renameFailFs{Fs: base, old: path + ".mpl.tmp", new: path, onlyWhenDestExists: true}

	require.NoError(t, WriteFileAtomic(fs, path, []byte("new"), 0644))

	data, err := afero.ReadFile(base, path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	backupExists, _ := afero.Exists(base, path+".mpl.bak")
	assert.False(t, backupExists)
}

func TestWriteFileAtomicRestoresBackupWhenSwapFails(t *testing.T) {
	base := afero.NewMemMapFs()
	path := filepath.FromSlash("/root/file.json")
	require.NoError(t, afero.WriteFile(base, path, []byte("old"), 0644))
	fs := renameFailFs{Fs: base, old: path + ".mpl.tmp", new: path}

	assert.Error(t, WriteFileAtomic(fs, path, []byte("new"), 0644))

	data, err := afero.ReadFile(base, path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	backupExists, _ := afero.Exists(base, path+".mpl.bak")
	assert.False(t, backupExists)
}

func TestWriteFileAtomicReportsBackupCleanupFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	path := filepath.FromSlash("/root/file.json")
	require.NoError(t, afero.WriteFile(base, path, []byte("old"), 0644))
	fs := removeErrorFs{
		Fs:       renameFailFs{Fs: base, old: path + ".mpl.tmp", new: path, onlyWhenDestExists: true},
		failPath: path + ".mpl.bak",
	}

	err := WriteFileAtomic(fs, path, []byte("new"), 0644)
	assert.ErrorContains(t, err, "failed to remove backup file")
}

func TestFreeSiblingFailsWhenNoSlotIsFree(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.FromSlash("/root/file.json")
	require.NoError(t, afero.WriteFile(fs, path+".mpl.tmp", nil, 0644))
	for i := 1; i <= 100; i++ {
		require.NoError(t, afero.WriteFile(fs, path+".mpl.tmp."+strconv.Itoa(i), nil, 0644))
	}

	_, err := freeSibling(fs, path, ".tmp")
	assert.EqualError(t, err, "cannot allocate sibling path")
}
