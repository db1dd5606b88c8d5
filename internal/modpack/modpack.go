// Package modpack installs the modpack archive into the install root exactly once.
package modpack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/meza/minecraft-modpack-launcher/internal/httpclient"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

// MarkerName is the file whose presence in the install root means the modpack is installed.
const MarkerName = ".modpack_installed"

type Fetcher interface {
	Fetch(ctx context.Context, resource httpclient.RemoteResource) ([]byte, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, dest string) error
}

type Marker struct {
	Path        string
	InstalledAt time.Time
}

type Result struct {
	Skipped bool
	Marker  Marker
}

type InstallError struct {
	URL string
	Err error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("failed to install modpack from %s: %v", e.URL, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

type Installer struct {
	fs        afero.Fs
	fetcher   Fetcher
	extractor Extractor
	log       *logger.Logger
	now       func() time.Time
}

func NewInstaller(fs afero.Fs, fetcher Fetcher, extractor Extractor, log *logger.Logger) *Installer {
	return &Installer{
		fs:        fs,
		fetcher:   fetcher,
		extractor: extractor,
		log:       log,
		now:       time.Now,
	}
}

func MarkerPath(root string) string {
	return filepath.Join(root, MarkerName)
}

// EnsureInstalled downloads and unpacks the archive at url into root unless the marker exists.
// The marker is written only after a complete extraction.
func (installer *Installer) EnsureInstalled(ctx context.Context, url string, root string) (Result, error) {
	ctx, span := perf.StartSpan(ctx, "modpack.ensure",
		perf.WithAttributes(
			attribute.String("url", url),
			attribute.String("root", root),
		),
	)
	defer span.End()

	markerPath := MarkerPath(root)
	marker, found, err := installer.ReadMarker(root)
	if err != nil {
		span.RecordError(err)
		return Result{}, &InstallError{URL: url, Err: err}
	}
	if found {
		installer.debug(fmt.Sprintf("modpack marker present at %s, skipping install", markerPath))
		span.SetAttributes(attribute.Bool("skipped", true))
		span.AddEvent("modpack.marker_found", perf.WithEventAttributes(attribute.String("marker", markerPath)))
		return Result{Skipped: true, Marker: marker}, nil
	}

	if strings.TrimSpace(url) == "" {
		err := errors.New("no modpack url configured")
		span.RecordError(err)
		return Result{}, &InstallError{URL: url, Err: err}
	}

	installer.debug(fmt.Sprintf("downloading modpack from %s", url))
	data, err := installer.fetcher.Fetch(ctx, httpclient.RemoteResource{URL: url, Kind: httpclient.KindArchive})
	if err != nil {
		span.RecordError(err)
		return Result{}, &InstallError{URL: url, Err: err}
	}

	installer.debug(fmt.Sprintf("extracting %d bytes into %s", len(data), root))
	if err := installer.extractor.Extract(ctx, data, root); err != nil {
		span.RecordError(err)
		return Result{}, &InstallError{URL: url, Err: err}
	}

	installedAt := installer.now().UTC().Truncate(time.Second)
	payload := []byte(installedAt.Format(time.RFC3339))
	if err := fileutils.WriteFileAtomic(installer.fs, markerPath, payload, 0644); err != nil {
		span.RecordError(err)
		return Result{}, &InstallError{URL: url, Err: err}
	}

	installer.log.Operational().Info("modpack installed", "url", url, "root", root)
	span.SetAttributes(attribute.Bool("skipped", false), attribute.Bool("success", true))
	return Result{Marker: Marker{Path: markerPath, InstalledAt: installedAt}}, nil
}

// ReadMarker reports whether root carries the installed marker. A marker with unreadable content
// still counts as installed; InstalledAt is zero in that case.
func (installer *Installer) ReadMarker(root string) (Marker, bool, error) {
	markerPath := MarkerPath(root)
	content, err := afero.ReadFile(installer.fs, markerPath)
	if errors.Is(err, os.ErrNotExist) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, err
	}

	marker := Marker{Path: markerPath}
	if parsed, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(string(content))); parseErr == nil {
		marker.InstalledAt = parsed
	}
	return marker, true, nil
}

func (installer *Installer) debug(message string) {
	if installer.log != nil {
		installer.log.Debug(message)
	}
}
