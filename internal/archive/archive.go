// Package archive unpacks uploaded diploma bundles and packs processed
// results back into zip files.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencertify/diploma-engine/internal/domain"
)

var junkNames = map[string]struct{}{
	".ds_store":    {},
	"thumbs.db":    {},
	"desktop.ini":  {},
	"__macosx":     {},
	".directory":   {},
	"ehthumbs.db":  {},
	".localized":   {},
	"trashes":      {},
	".spotlight-v": {},
}

// Zip is the codec used for session uploads and result bundles.
type Zip struct{}

func New() *Zip {
	return &Zip{}
}

// Unpack extracts every diploma document from the zip at archivePath
// into destDir and returns the extracted file names sorted
// lexicographically. Directory entries, hidden files, and operating
// system litter are skipped. An archive with no usable documents is a
// validation error.
func (*Zip) Unpack(archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid zip archive", domain.ErrValidation)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extract dir: %w", err)
	}

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !usableEntry(f.Name) {
			continue
		}

		base := path.Base(f.Name)
		if err := extractEntry(f, filepath.Join(destDir, base)); err != nil {
			return nil, err
		}
		names = append(names, base)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: archive contains no PDF documents", domain.ErrValidation)
	}

	sort.Strings(names)
	return names, nil
}

// usableEntry reports whether a zip entry is a diploma document rather
// than a directory listing artifact or hidden file.
func usableEntry(name string) bool {
	clean := strings.ReplaceAll(name, "\\", "/")
	for _, segment := range strings.Split(clean, "/") {
		if segment == "" {
			continue
		}
		if strings.HasPrefix(segment, ".") {
			return false
		}
		if _, junk := junkNames[strings.ToLower(segment)]; junk {
			return false
		}
	}
	return strings.EqualFold(path.Ext(clean), ".pdf")
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create extracted file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract archive entry %q: %w", f.Name, err)
	}

	return nil
}

// Pack writes the given files into a fresh zip at archivePath, each
// stored under its base name.
func (*Zip) Pack(archivePath string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: nothing to pack", domain.ErrValidation)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create result archive: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	for _, file := range files {
		if err := packEntry(w, file); err != nil {
			w.Close()
			return err
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize result archive: %w", err)
	}

	return nil
}

func packEntry(w *zip.Writer, file string) error {
	in, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open result file: %w", err)
	}
	defer in.Close()

	entry, err := w.Create(filepath.Base(file))
	if err != nil {
		return fmt.Errorf("failed to add archive entry: %w", err)
	}

	if _, err := io.Copy(entry, in); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}

	return nil
}
