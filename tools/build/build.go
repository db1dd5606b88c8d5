// Command build cross-compiles the mpl binary for every release target.
// Release values are injected through -ldflags into the environment package.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	executableName = "mpl"
	environmentPkg = "github.com/meza/minecraft-modpack-launcher/internal/environment"

	posthogEnvVar = "POSTHOG_API_KEY"
	helpURLEnvVar = "MPL_HELP_URL"
)

var buildTargets = []buildTarget{
	{goos: "darwin", goarch: "amd64"},
	{goos: "darwin", goarch: "arm64"},
	{goos: "linux", goarch: "amd64"},
	{goos: "linux", goarch: "arm64"},
	{goos: "windows", goarch: "amd64"},
	{goos: "windows", goarch: "arm64"},
}

type buildTarget struct {
	goos   string
	goarch string
}

type commandRunner interface {
	Run(*exec.Cmd) error
}

type logger interface {
	Printf(format string, args ...any)
}

type execRunner struct{}

func (execRunner) Run(command *exec.Cmd) error {
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	return command.Run()
}

type buildTool struct {
	fs            afero.Fs
	repoRoot      string
	version       string
	baseEnv       []string
	goBinary      string
	commandRunner commandRunner
	logger        logger
}

var getWorkingDirectory = os.Getwd
var exit = os.Exit

func newBuildTool(fs afero.Fs, version string) (*buildTool, error) {
	workingDirectory, err := getWorkingDirectory()
	if err != nil {
		return nil, errors.Wrap(err, "determine working directory")
	}

	repoRoot, err := findRepoRoot(fs, workingDirectory)
	if err != nil {
		return nil, err
	}

	return &buildTool{
		fs:            fs,
		repoRoot:      repoRoot,
		version:       version,
		baseEnv:       os.Environ(),
		goBinary:      "go",
		commandRunner: execRunner{},
		logger:        log.New(os.Stdout, "build: ", 0),
	}, nil
}

func main() {
	version := flag.String("version", "dev", "version stamped into the binary")
	flag.Parse()
	exit(runMain(afero.NewOsFs(), *version))
}

func runMain(fs afero.Fs, version string) int {
	tool, err := newBuildTool(fs, version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := tool.run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func (tool *buildTool) run() error {
	envFilePath := filepath.Join(tool.repoRoot, ".env")
	tool.logger.Printf("loading %s", envFilePath)
	envFileValues, err := readEnvFile(tool.fs, envFilePath)
	if err != nil {
		return errors.Wrap(err, "read .env")
	}

	envMap := buildEnvMap(tool.baseEnv, envFileValues)
	if envMap[posthogEnvVar] == "" {
		tool.logger.Printf("%s is not set, telemetry will be disabled in this build", posthogEnvVar)
	}

	ldflags := ldflagsFor(envMap, tool.version)
	for _, target := range buildTargets {
		tool.logger.Printf("building %s/%s", target.goos, target.goarch)
		if err := tool.buildTarget(target, envMap, ldflags); err != nil {
			return err
		}
	}

	tool.logger.Printf("build complete")
	return nil
}

func (tool *buildTool) buildTarget(target buildTarget, envMap map[string]string, ldflags string) error {
	outputDir := filepath.Join(tool.repoRoot, "build", target.goos, target.goarch)
	if err := tool.fs.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "create build directory")
	}

	outputName := executableName
	if target.goos == "windows" {
		outputName += ".exe"
	}
	outputPath := filepath.Join(outputDir, outputName)

	environment := make(map[string]string, len(envMap)+3)
	for key, value := range envMap {
		environment[key] = value
	}
	environment["GOOS"] = target.goos
	environment["GOARCH"] = target.goarch
	environment["CGO_ENABLED"] = "0"

	command := exec.Command(tool.goBinary, "build", "-trimpath", "-ldflags", ldflags, "-o", outputPath, ".")
	command.Dir = tool.repoRoot
	command.Env = envMapToSlice(environment)

	if err := tool.commandRunner.Run(command); err != nil {
		return errors.Wrapf(err, "build %s/%s", target.goos, target.goarch)
	}
	return nil
}

func readEnvFile(fs afero.Fs, path string) (map[string]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return godotenv.Parse(bytes.NewReader(data))
}

func findRepoRoot(fs afero.Fs, startDir string) (string, error) {
	current := startDir
	for {
		if exists, _ := afero.Exists(fs, filepath.Join(current, "go.mod")); exists {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", errors.New("failed to locate repo root (missing go.mod); run from the repo root")
		}
		current = parent
	}
}

// buildEnvMap overlays .env values for the release variables the process environment leaves unset.
func buildEnvMap(baseEnv []string, envFileValues map[string]string) map[string]string {
	envMap := make(map[string]string, len(baseEnv))
	for _, entry := range baseEnv {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		envMap[key] = value
	}
	for _, name := range []string{posthogEnvVar, helpURLEnvVar} {
		if _, exists := envMap[name]; exists {
			continue
		}
		if value, ok := envFileValues[name]; ok {
			envMap[name] = value
		}
	}
	return envMap
}

func envMapToSlice(envMap map[string]string) []string {
	keys := make([]string, 0, len(envMap))
	for key := range envMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, key+"="+envMap[key])
	}
	return entries
}

func ldflagsFor(envMap map[string]string, version string) string {
	flags := []string{
		"-s", "-w",
		fmt.Sprintf("-X %s.appVersionDefault=%s", environmentPkg, version),
		fmt.Sprintf("-X %s.posthogAPIKeyDefault=%s", environmentPkg, envMap[posthogEnvVar]),
	}
	if helpURL := envMap[helpURLEnvVar]; helpURL != "" {
		flags = append(flags, fmt.Sprintf("-X %s.helpURLDefault=%s", environmentPkg, helpURL))
	}
	return strings.Join(flags, " ")
}
