// Package config loads the launcher settings: defaults, then an optional config file, then
// MPL_ environment variables, then command line flags.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/constants"
	"github.com/meza/minecraft-modpack-launcher/internal/models"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "MPL"
	FileName  = "mpl"
)

type MemorySettings struct {
	Min string `mapstructure:"min"`
	Max string `mapstructure:"max"`
}

type HTTPSettings struct {
	Retries      int           `mapstructure:"retries"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type InstallSettings struct {
	SettleTimeout      time.Duration `mapstructure:"settle_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SecondaryLocations []string      `mapstructure:"secondary_locations"`
}

type LibrariesSettings struct {
	Concurrency int `mapstructure:"concurrency"`
}

type EngineSettings struct {
	Command   []string `mapstructure:"command"`
	LogFile   string   `mapstructure:"log_file"`
	TailLines int      `mapstructure:"tail_lines"`
}

type Settings struct {
	Root                string            `mapstructure:"root"`
	ModpackURL          string            `mapstructure:"modpack_url"`
	Loader              string            `mapstructure:"loader"`
	LoaderIdentifiers   []string          `mapstructure:"loader_identifiers"`
	InstallerExtensions []string          `mapstructure:"installer_extensions"`
	Java                string            `mapstructure:"java"`
	GameVersion         string            `mapstructure:"game_version"`
	Username            string            `mapstructure:"username"`
	Memory              MemorySettings    `mapstructure:"memory"`
	HTTP                HTTPSettings      `mapstructure:"http"`
	Install             InstallSettings   `mapstructure:"install"`
	Libraries           LibrariesSettings `mapstructure:"libraries"`
	Engine              EngineSettings    `mapstructure:"engine"`
	Telemetry           bool              `mapstructure:"telemetry"`
}

type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string
	// SearchPaths are probed for mpl.{json,yaml,toml} when ConfigFile is empty.
	SearchPaths []string
	Flags       *pflag.FlagSet
	Fs          afero.Fs
	// SecondaryLocations is the platform default for install.secondary_locations.
	SecondaryLocations []string
}

// flagKeys maps command line flags onto setting keys.
var flagKeys = map[string]string{
	"root":        "root",
	"modpack-url": "modpack_url",
	"loader":      "loader",
	"java":        "java",
	"username":    "username",
	"telemetry":   "telemetry",
}

// DefaultRoot is <user config dir>/mpl/minecraft.
func DefaultRoot() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("."+constants.CommandName, "minecraft")
	}
	return filepath.Join(base, constants.CommandName, "minecraft")
}

// DefaultSearchPaths are the working directory and <user config dir>/mpl.
func DefaultSearchPaths() []string {
	paths := []string{"."}
	if base, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(base, constants.CommandName))
	}
	return paths
}

// Load returns the effective settings and the config file used, if any.
func Load(opts LoadOptions) (Settings, string, error) {
	v := viper.New()
	if opts.Fs != nil {
		v.SetFs(opts.Fs)
	}
	setDefaults(v, opts)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// loader_identifiers has no default because it follows the loader unless set.
	_ = v.BindEnv("loader_identifiers")

	used, err := readConfigFile(v, opts)
	if err != nil {
		return Settings{}, "", err
	}

	if opts.Flags != nil {
		for flag, key := range flagKeys {
			if pflagValue := opts.Flags.Lookup(flag); pflagValue != nil {
				if err := v.BindPFlag(key, pflagValue); err != nil {
					return Settings{}, "", err
				}
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, "", &FileInvalidError{Path: used, Err: err}
	}
	if len(nonEmpty(settings.LoaderIdentifiers)) == 0 {
		if loader, parseErr := models.ParseLoader(settings.Loader); parseErr == nil {
			settings.LoaderIdentifiers = loader.Identifiers()
		}
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, "", err
	}
	return settings, used, nil
}

func setDefaults(v *viper.Viper, opts LoadOptions) {
	v.SetDefault("root", DefaultRoot())
	v.SetDefault("modpack_url", "")
	v.SetDefault("loader", models.NEOFORGE.String())
	v.SetDefault("installer_extensions", []string{".jar"})
	v.SetDefault("java", "java")
	v.SetDefault("game_version", "1.21.1")
	v.SetDefault("username", "Player")
	v.SetDefault("memory.min", "2G")
	v.SetDefault("memory.max", "4G")
	v.SetDefault("http.retries", 2)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("http.timeout", 5*time.Minute)
	v.SetDefault("install.settle_timeout", 10*time.Second)
	v.SetDefault("install.poll_interval", 500*time.Millisecond)
	v.SetDefault("install.timeout", 10*time.Minute)
	v.SetDefault("install.secondary_locations", opts.SecondaryLocations)
	v.SetDefault("libraries.concurrency", 4)
	v.SetDefault("engine.command", []string{})
	v.SetDefault("engine.log_file", "logs/latest.log")
	v.SetDefault("engine.tail_lines", 40)
	v.SetDefault("telemetry", true)
}

func readConfigFile(v *viper.Viper, opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		if exists, _ := afero.Exists(fs, opts.ConfigFile); !exists {
			return "", &FileNotFoundError{Path: opts.ConfigFile}
		}
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return "", &FileInvalidError{Path: opts.ConfigFile, Err: err}
		}
		return opts.ConfigFile, nil
	}

	if len(opts.SearchPaths) == 0 {
		return "", nil
	}
	v.SetConfigName(FileName)
	for _, path := range opts.SearchPaths {
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", &FileInvalidError{Path: v.ConfigFileUsed(), Err: err}
	}
	return v.ConfigFileUsed(), nil
}

func (settings Settings) Validate() error {
	if _, err := models.ParseLoader(settings.Loader); err != nil {
		return &ValidationError{Key: "loader", Reason: err.Error()}
	}
	switch {
	case strings.TrimSpace(settings.Root) == "":
		return &ValidationError{Key: "root", Reason: "must not be empty"}
	case len(nonEmpty(settings.LoaderIdentifiers)) == 0:
		return &ValidationError{Key: "loader_identifiers", Reason: "must name at least one loader"}
	case len(nonEmpty(settings.InstallerExtensions)) == 0:
		return &ValidationError{Key: "installer_extensions", Reason: "must name at least one extension"}
	case strings.TrimSpace(settings.Java) == "":
		return &ValidationError{Key: "java", Reason: "must not be empty"}
	case settings.HTTP.Retries < 0:
		return &ValidationError{Key: "http.retries", Reason: "must not be negative"}
	case settings.HTTP.MaxRedirects < 0:
		return &ValidationError{Key: "http.max_redirects", Reason: "must not be negative"}
	case settings.HTTP.Timeout <= 0:
		return &ValidationError{Key: "http.timeout", Reason: "must be positive"}
	case settings.Install.SettleTimeout <= 0:
		return &ValidationError{Key: "install.settle_timeout", Reason: "must be positive"}
	case settings.Install.PollInterval <= 0:
		return &ValidationError{Key: "install.poll_interval", Reason: "must be positive"}
	case settings.Install.Timeout < 0:
		return &ValidationError{Key: "install.timeout", Reason: "must not be negative"}
	case settings.Libraries.Concurrency <= 0:
		return &ValidationError{Key: "libraries.concurrency", Reason: "must be positive"}
	case settings.Engine.TailLines < 0:
		return &ValidationError{Key: "engine.tail_lines", Reason: "must not be negative"}
	}
	return nil
}

func nonEmpty(values []string) []string {
	var kept []string
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			kept = append(kept, value)
		}
	}
	return kept
}
