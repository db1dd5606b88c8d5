package loaderinstall

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/buger/jsonparser"
	"github.com/meza/minecraft-modpack-launcher/internal/constants"
	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/spf13/afero"
)

const ProfilesFileName = "launcher_profiles.json"

type launcherProfile struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	LastVersionID string `json:"lastVersionId"`
	GameDir       string `json:"gameDir"`
}

// EnsureLauncherProfiles makes sure root holds a launcher_profiles.json with the launcher's own
// profile. Installers refuse to run without this file. Existing profiles are left untouched.
func EnsureLauncherProfiles(fs afero.Fs, root string) error {
	path := filepath.Join(root, ProfilesFileName)
	profile, err := json.Marshal(launcherProfile{
		Name:          constants.ProfileName,
		Type:          "custom",
		LastVersionID: "latest-release",
		GameDir:       root,
	})
	if err != nil {
		return err
	}

	existing, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(existing) == 0) {
		existing = []byte(`{"profiles":{}}`)
	} else if err != nil {
		return err
	}

	if _, _, _, lookupErr := jsonparser.Get(existing, "profiles", constants.ProfileName); lookupErr == nil {
		return nil
	}

	updated, err := jsonparser.Set(existing, profile, "profiles", constants.ProfileName)
	if err != nil {
		return err
	}
	return fileutils.WriteFileAtomic(fs, path, updated, 0644)
}
