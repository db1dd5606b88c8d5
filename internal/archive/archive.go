// Package archive unpacks downloaded zip archives into an install root.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/meza/minecraft-modpack-launcher/internal/safepath"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to extract archive into %s: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

type Extractor struct {
	fs afero.Fs
}

func NewExtractor(fs afero.Fs) *Extractor {
	return &Extractor{fs: fs}
}

// Extract materialises data as a temporary file, unpacks every entry under dest and removes the
// temporary file again. Existing files are overwritten; an interrupted extraction is not rolled back.
func (extractor *Extractor) Extract(ctx context.Context, data []byte, dest string) error {
	_, span := perf.StartSpan(ctx, "archive.extract",
		perf.WithAttributes(
			attribute.String("path", dest),
			attribute.Int("bytes", len(data)),
		),
	)
	defer span.End()

	entries, err := extractor.extract(ctx, data, dest)
	span.SetAttributes(attribute.Int("entries", entries))
	if err != nil {
		span.RecordError(err)
		return &ArchiveError{Path: dest, Err: err}
	}
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (extractor *Extractor) extract(ctx context.Context, data []byte, dest string) (int, error) {
	if err := extractor.fs.MkdirAll(dest, 0755); err != nil {
		return 0, err
	}

	tempPath, err := extractor.writeTemp(data, dest)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = extractor.fs.Remove(tempPath)
	}()

	file, err := extractor.fs.Open(tempPath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader, err := zip.NewReader(file, int64(len(data)))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := extractor.extractEntry(entry, dest); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (extractor *Extractor) writeTemp(data []byte, dest string) (string, error) {
	parent := filepath.Dir(filepath.Clean(dest))
	temp, err := afero.TempFile(extractor.fs, parent, ".mpl-archive-*.zip")
	if err != nil {
		return "", err
	}
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		_ = extractor.fs.Remove(temp.Name())
		return "", err
	}
	if err := temp.Close(); err != nil {
		_ = extractor.fs.Remove(temp.Name())
		return "", err
	}
	return temp.Name(), nil
}

func (extractor *Extractor) extractEntry(entry *zip.File, dest string) error {
	target, err := safepath.Join(dest, entry.Name)
	if err != nil {
		return err
	}

	if entry.FileInfo().IsDir() || strings.HasSuffix(entry.Name, "/") {
		return extractor.fs.MkdirAll(target, 0755)
	}
	if entry.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("symlink entry %s is not supported", entry.Name)
	}

	if err := extractor.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	source, err := entry.Open()
	if err != nil {
		return err
	}
	defer source.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := extractor.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, source); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
