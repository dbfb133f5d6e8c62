// Package installer implements the app package pipeline: extraction,
// manifest validation and file placement. A package is a directory, a
// gzipped tarball, or a zip archive; whatever the form, the extracted result
// must carry a manifest.json or the install is rejected outright.
package installer

import (
	"archive/tar"
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/shared/errdefs"
	"github.com/tembedos/runtime/internal/shared/types"
)

// ManifestFile is the required package descriptor.
const ManifestFile = "manifest.json"

// Installer extracts and validates app packages.
type Installer struct {
	log                *zap.Logger
	defaultMemoryLimit int64
}

// New creates an installer. defaultMemoryLimit fills manifests that omit
// memory_limit.
func New(defaultMemoryLimit int64, log *zap.Logger) *Installer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Installer{log: log, defaultMemoryLimit: defaultMemoryLimit}
}

// ExtractPackage materializes pkg into dst. Directories are copied, tarballs
// and zips are extracted with path-traversal guards. The result must contain
// manifest.json at its root; anything else fails with ErrInvalidPackage and
// dst is removed.
func (i *Installer) ExtractPackage(pkg, dst string) error {
	info, err := os.Stat(pkg)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", pkg, errdefs.ErrNotFound)
		}
		return fmt.Errorf("stat %s: %w", pkg, err)
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	switch {
	case info.IsDir():
		err = i.CopyFiles(pkg, dst)
	default:
		err = i.extractArchive(pkg, dst)
	}
	if err != nil {
		os.RemoveAll(dst)
		return err
	}

	if _, statErr := os.Stat(filepath.Join(dst, ManifestFile)); statErr != nil {
		os.RemoveAll(dst)
		return fmt.Errorf("package has no %s: %w", ManifestFile, errdefs.ErrInvalidPackage)
	}

	i.log.Info("extracted package", zap.String("package", pkg), zap.String("dest", dst))
	return nil
}

func (i *Installer) extractArchive(pkg, dst string) error {
	kind, err := mimetype.DetectFile(pkg)
	if err != nil {
		return fmt.Errorf("detect %s: %w", pkg, err)
	}

	switch {
	case kind.Is("application/gzip"):
		return i.extractTarGz(pkg, dst)
	case kind.Is("application/zip"):
		return i.extractZip(pkg, dst)
	default:
		return fmt.Errorf("unsupported package format %s: %w", kind.String(), errdefs.ErrInvalidPackage)
	}
}

func (i *Installer) extractTarGz(pkg, dst string) error {
	file, err := os.Open(pkg)
	if err != nil {
		return fmt.Errorf("open %s: %w", pkg, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip %s: %w", pkg, errdefs.ErrInvalidPackage)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", pkg, errdefs.ErrInvalidPackage)
		}

		destPath, ok := i.guardedJoin(dst, header.Name)
		if !ok {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return fmt.Errorf("create %s: %w", destPath, err)
			}
		case tar.TypeReg:
			if err := writeEntry(destPath, tarReader); err != nil {
				return err
			}
		}
	}
	return nil
}

func (i *Installer) extractZip(pkg, dst string) error {
	reader, err := zip.OpenReader(pkg)
	if err != nil {
		return fmt.Errorf("open zip %s: %w", pkg, errdefs.ErrInvalidPackage)
	}
	defer reader.Close()

	for _, file := range reader.File {
		destPath, ok := i.guardedJoin(dst, file.Name)
		if !ok {
			continue
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return fmt.Errorf("create %s: %w", destPath, err)
			}
			continue
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", file.Name, err)
		}
		err = writeEntry(destPath, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// guardedJoin joins an archive entry name under dst and rejects entries that
// escape it.
func (i *Installer) guardedJoin(dst, name string) (string, bool) {
	destPath := filepath.Join(dst, name)
	if !strings.HasPrefix(destPath, filepath.Clean(dst)+string(os.PathSeparator)) {
		i.log.Warn("skipping traversal entry", zap.String("entry", name))
		return "", false
	}
	return destPath, true
}

func writeEntry(destPath string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(destPath), err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	_, err = io.Copy(out, src)
	out.Close()
	if err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return nil
}

// ValidateManifest checks that the manifest at dir parses and carries the
// required name, version and entry_point keys. Validation runs on the raw
// document, before LoadManifest's defaults can paper over missing keys.
func (i *Installer) ValidateManifest(dir string) error {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, errdefs.ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var manifest types.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse %s: %w", path, errdefs.ErrInvalidManifest)
	}
	if manifest.Name == "" || manifest.Version == "" || manifest.EntryPoint == "" {
		return fmt.Errorf("manifest missing required keys: %w", errdefs.ErrInvalidManifest)
	}
	return nil
}

// LoadManifest parses dir's manifest.json and applies defaults for optional
// fields. entry_point and permissions are never defaulted.
func (i *Installer) LoadManifest(dir string) (*types.Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, errdefs.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var manifest types.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, errdefs.ErrInvalidManifest)
	}
	manifest.ApplyDefaults(i.defaultMemoryLimit)
	return &manifest, nil
}

// CopyFiles copies the regular files under src into dst, preserving relative
// layout. Per-file failures are logged and skipped; directories and special
// files are not copied as-is, only recreated as needed.
func (i *Installer) CopyFiles(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			i.log.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			return nil
		}
		if path == src || d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			i.log.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
			return nil
		}
		defer in.Close()

		if err := writeEntry(filepath.Join(dst, rel), in); err != nil {
			i.log.Warn("skipping uncopyable file", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}
