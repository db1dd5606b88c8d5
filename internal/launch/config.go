// Package launch builds the launch configuration handed to the external launch engine and
// supervises one engine run.
package launch

import (
	"strings"
)

const (
	DefaultUsername    = "Player"
	DefaultGameVersion = "1.21.1"
	DefaultMinMemory   = "2G"
	DefaultMaxMemory   = "4G"
	ReleaseType        = "release"
)

// Authorization is the opaque credential passed through to the engine. Offline identities leave
// every identity field empty.
type Authorization struct {
	Name           string            `json:"name"`
	UUID           string            `json:"uuid,omitempty"`
	AccessToken    string            `json:"access_token,omitempty"`
	ClientToken    string            `json:"client_token,omitempty"`
	XUID           string            `json:"xuid,omitempty"`
	UserProperties map[string]string `json:"user_properties,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
}

func OfflineAuthorization(name string) *Authorization {
	if strings.TrimSpace(name) == "" {
		name = DefaultUsername
	}
	return &Authorization{Name: name}
}

func (auth *Authorization) Offline() bool {
	return auth == nil || auth.AccessToken == ""
}

type Version struct {
	Number string `json:"number"`
	Type   string `json:"type"`
	Custom string `json:"custom"`
}

type Memory struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type Configuration struct {
	Authorization *Authorization `json:"authorization"`
	Root          string         `json:"root"`
	Version       Version        `json:"version"`
	Memory        Memory         `json:"memory"`
	JVMArgs       []string       `json:"customArgs"`
}

// ModuleOpens grants the loader reflective access to JDK internals it patches at startup.
var ModuleOpens = []string{
	"--add-opens", "java.base/java.lang=ALL-UNNAMED",
	"--add-opens", "java.base/java.lang.invoke=ALL-UNNAMED",
	"--add-opens", "java.base/java.util=ALL-UNNAMED",
	"--add-opens", "java.base/java.util.jar=ALL-UNNAMED",
	"--add-opens", "java.base/sun.security.util=ALL-UNNAMED",
	"--add-opens", "java.base/java.nio.file=ALL-UNNAMED",
	"--add-exports", "java.base/sun.security.util=ALL-UNNAMED",
}

type Params struct {
	Authorization   *Authorization
	Username        string
	Root            string
	VersionID       string
	BaseVersion     string
	FallbackVersion string
	MinMemory       string
	MaxMemory       string
}

func BuildConfiguration(params Params) Configuration {
	auth := params.Authorization
	if auth == nil {
		auth = OfflineAuthorization(params.Username)
	}

	number := strings.TrimSpace(params.BaseVersion)
	if number == "" {
		number = strings.TrimSpace(params.FallbackVersion)
	}
	if number == "" {
		number = DefaultGameVersion
	}

	return Configuration{
		Authorization: auth,
		Root:          params.Root,
		Version: Version{
			Number: number,
			Type:   ReleaseType,
			Custom: params.VersionID,
		},
		Memory: Memory{
			Min: orDefault(params.MinMemory, DefaultMinMemory),
			Max: orDefault(params.MaxMemory, DefaultMaxMemory),
		},
		JVMArgs: append([]string(nil), ModuleOpens...),
	}
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
