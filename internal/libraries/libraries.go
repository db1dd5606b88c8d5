// Package libraries makes sure every library named by a runtime descriptor is present on disk.
package libraries

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/meza/minecraft-modpack-launcher/internal/descriptor"
	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/meza/minecraft-modpack-launcher/internal/httpclient"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/meza/minecraft-modpack-launcher/internal/safepath"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	Dir                = "libraries"
	DefaultConcurrency = 4
)

type Fetcher interface {
	Fetch(ctx context.Context, resource httpclient.RemoteResource) ([]byte, error)
}

type HashMismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (err *HashMismatchError) Error() string {
	return fmt.Sprintf("downloaded library hash mismatch for %s: expected %s, got %s", err.Name, err.Expected, err.Actual)
}

type Failure struct {
	Name string
	Err  error
}

// Report lists what happened to every library that had a download location.
type Report struct {
	Present    []string
	Downloaded []string
	Failed     []Failure
}

func (report Report) OK() bool {
	return len(report.Failed) == 0
}

type Resolver struct {
	fs          afero.Fs
	fetcher     Fetcher
	concurrency int
	log         *logger.Logger
}

func NewResolver(fs afero.Fs, fetcher Fetcher, concurrency int, log *logger.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{fs: fs, fetcher: fetcher, concurrency: concurrency, log: log}
}

type outcome int

const (
	outcomePresent outcome = iota
	outcomeDownloaded
)

// EnsureLibraries is best effort: a library that cannot be fetched is recorded in the report and
// the rest still proceed. Entries without a URL or path are skipped.
func (resolver *Resolver) EnsureLibraries(ctx context.Context, root string, runtime *descriptor.Descriptor) Report {
	ctx, span := perf.StartSpan(ctx, "libraries.ensure",
		perf.WithAttributes(attribute.String("root", root)),
	)
	defer span.End()

	report := Report{}
	if runtime == nil {
		return report
	}

	librariesRoot := filepath.Join(root, Dir)
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(resolver.concurrency)

	for _, entry := range runtime.Libraries {
		if strings.TrimSpace(entry.URL) == "" || strings.TrimSpace(entry.Path) == "" {
			continue
		}
		entry := entry
		group.Go(func() error {
			result, err := resolver.ensure(groupCtx, librariesRoot, entry)
			mu.Lock()
			defer mu.Unlock()
			name := displayName(entry)
			switch {
			case err != nil:
				report.Failed = append(report.Failed, Failure{Name: name, Err: err})
				resolver.log.Operational().Warn("library unavailable", "library", name, "url", entry.URL, "err", err)
			case result == outcomeDownloaded:
				report.Downloaded = append(report.Downloaded, name)
			default:
				report.Present = append(report.Present, name)
			}
			return nil
		})
	}
	_ = group.Wait()

	sort.Strings(report.Present)
	sort.Strings(report.Downloaded)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Name < report.Failed[j].Name })

	span.SetAttributes(
		attribute.Int("present", len(report.Present)),
		attribute.Int("downloaded", len(report.Downloaded)),
		attribute.Int("failed", len(report.Failed)),
	)
	return report
}

func (resolver *Resolver) ensure(ctx context.Context, librariesRoot string, entry descriptor.LibraryEntry) (outcome, error) {
	destination, err := safepath.Join(librariesRoot, entry.Path)
	if err != nil {
		return 0, err
	}
	if err := resolver.fs.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return 0, err
	}
	destination, err = safepath.ResolveWritablePath(resolver.fs, librariesRoot, destination)
	if err != nil {
		return 0, err
	}

	present, err := resolver.isPresent(destination, entry.SHA1)
	if err != nil {
		return 0, err
	}
	if present {
		return outcomePresent, nil
	}

	ctx, span := perf.StartSpan(ctx, "libraries.download",
		perf.WithAttributes(
			attribute.String("library", displayName(entry)),
			attribute.String("url", entry.URL),
		),
	)
	defer span.End()

	data, err := resolver.fetcher.Fetch(ctx, httpclient.RemoteResource{URL: entry.URL, Kind: httpclient.KindBinary})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if expected := strings.TrimSpace(entry.SHA1); expected != "" {
		if actual := sha1Hex(data); !strings.EqualFold(expected, actual) {
			err := &HashMismatchError{Name: displayName(entry), Expected: expected, Actual: actual}
			span.RecordError(err)
			return 0, err
		}
	}
	if err := fileutils.WriteFileAtomic(resolver.fs, destination, data, 0644); err != nil {
		span.RecordError(err)
		return 0, pkgerrors.Wrapf(err, "failed to write %s", destination)
	}
	return outcomeDownloaded, nil
}

func (resolver *Resolver) isPresent(path string, expectedSHA1 string) (bool, error) {
	file, err := resolver.fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = file.Close() }()

	if strings.TrimSpace(expectedSHA1) == "" {
		return true, nil
	}
	hash := sha1.New()
	if _, err := io.Copy(hash, file); err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(expectedSHA1), hex.EncodeToString(hash.Sum(nil))), nil
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func displayName(entry descriptor.LibraryEntry) string {
	if entry.Name != "" {
		return entry.Name
	}
	return entry.Path
}
