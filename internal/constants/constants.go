// Package constants defines shared constant values.
package constants

// AppName is the project identifier used in logs and metadata.
const AppName = "minecraft-modpack-launcher"

// CommandName is the primary CLI command name.
const CommandName = "mpl"

// ProfileName is the launcher profile registered for mod-loader installers.
const ProfileName = "mpl"
