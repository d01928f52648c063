// Package storage provides temporary and persistent file storage capabilities.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3 storage. Accepted segments land in
// the output tree as <speaker>/<stem>_seg<NNN>.wav; rejected ones, when kept,
// under rejected/.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

// Storage defines the interface for temporary and persistent file storage.
// Implementations must handle temporary working copies during processing and
// optionally support S3 uploads of the final output tree.
type Storage interface {
	// TempPath returns a path inside the temp directory for a working file.
	// The file is not created.
	TempPath(name string) string

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// ExportFile moves a finished file into the output tree at relPath,
	// creating parent directories as needed, and returns the absolute path.
	ExportFile(ctx context.Context, relPath, srcPath string) (string, error)

	// ExportData writes data into the output tree at relPath and returns the
	// absolute path.
	ExportData(ctx context.Context, relPath string, data io.Reader) (string, error)

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}

// unlabeledDir is the output subdirectory for segments with no speaker
// attribution.
const unlabeledDir = "unlabeled"

// SegmentPath returns the output-relative path for an accepted segment:
// <speaker>/<stem>_seg<NNN><ext>. Segments without a speaker go under
// the unlabeled directory.
func SegmentPath(speaker, stem string, index int, ext string) string {
	if speaker == "" {
		speaker = unlabeledDir
	}
	return filepath.Join(speaker, fmt.Sprintf("%s_seg%03d%s", stem, index, ext))
}

// RejectedPath returns the output-relative path for a rejected segment kept
// for inspection. The reason becomes a subdirectory so rejects are easy to
// audit by cause.
func RejectedPath(reason, stem string, index int, ext string) string {
	return filepath.Join("rejected", reason, fmt.Sprintf("%s_seg%03d%s", stem, index, ext))
}
