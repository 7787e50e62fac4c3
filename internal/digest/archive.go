package digest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ManifestEntry records one archived file's POSIX-relative path and
// original modification time, in the traversal order ArchiveFolder
// visited it.
type ManifestEntry struct {
	Path    string
	ModTime time.Time
}

// ArchiveFolder recursively DEFLATE-compresses dir into a new temp .zip
// file chosen by the standard library's own temp-name randomization,
// returning its path and a manifest of every regular file it contained.
// Directory entries are not written to the archive; the manifest is empty
// for an empty folder, matching the boundary case in spec.md §8.
//
// Callers that need to pick the scratch path themselves (the sender
// disambiguates concurrent runs with its own random suffix) should use
// ArchiveFolderTo instead.
func ArchiveFolder(dir string) (archivePath string, manifest []ManifestEntry, err error) {
	base := filepath.Base(filepath.Clean(dir))
	tmp, err := os.CreateTemp("", fmt.Sprintf("%s-*.zip", sanitizeTempName(base)))
	if err != nil {
		return "", nil, fmt.Errorf("digest: create temp archive: %w", err)
	}
	archivePath = tmp.Name()
	tmp.Close()
	os.Remove(archivePath)

	manifest, err = ArchiveFolderTo(dir, archivePath)
	if err != nil {
		return "", nil, err
	}
	return archivePath, manifest, nil
}

// ArchiveFolderTo archives dir into archivePath, which the caller has
// already chosen (and which must not yet exist). It is the primitive
// ArchiveFolder builds on.
func ArchiveFolderTo(dir, archivePath string) (manifest []ManifestEntry, err error) {
	tmp, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("digest: create archive %s: %w", archivePath, err)
	}

	zw := zip.NewWriter(tmp)

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		hdr, hdrErr := zip.FileInfoHeader(info)
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = rel
		hdr.Method = zip.Deflate
		hdr.Modified = info.ModTime()

		w, createErr := zw.CreateHeader(hdr)
		if createErr != nil {
			return createErr
		}

		src, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}
		defer src.Close()

		buf := make([]byte, streamBufferSize)
		if _, copyErr := io.CopyBuffer(w, src, buf); copyErr != nil {
			return copyErr
		}

		manifest = append(manifest, ManifestEntry{Path: rel, ModTime: info.ModTime()})
		return nil
	})

	closeErr := zw.Close()
	tmp.Close()

	if walkErr != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("digest: archive %s: %w", dir, walkErr)
	}
	if closeErr != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("digest: finalize archive: %w", closeErr)
	}
	return manifest, nil
}

func sanitizeTempName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "archive"
	}
	return name
}

// ExtractArchive streams every entry of archivePath into destDir, creating
// parent directories as needed. Manifest entries take priority for
// restoring mtimes since the ZIP container's own timestamp precision is
// lower; mtime restore failures are tolerated silently as spec.md §4.2
// requires.
func ExtractArchive(archivePath, destDir string, manifest []ManifestEntry) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("digest: open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	manifestTimes := make(map[string]time.Time, len(manifest))
	for _, m := range manifest {
		manifestTimes[m.Path] = m.ModTime
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("digest: create dest dir %s: %w", destDir, err)
	}

	for _, entry := range r.File {
		if err := extractOne(destDir, entry, manifestTimes); err != nil {
			return fmt.Errorf("digest: extract %s: %w", entry.Name, err)
		}
	}
	return nil
}

func extractOne(destDir string, entry *zip.File, manifestTimes map[string]time.Time) error {
	cleanRel := filepath.Clean(entry.Name)
	if strings.HasPrefix(cleanRel, "..") {
		return fmt.Errorf("unsafe entry path %q", entry.Name)
	}
	target := filepath.Join(destDir, cleanRel)

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(out, rc, buf); err != nil {
		return err
	}

	mtime := entry.Modified
	if manifestTime, ok := manifestTimes[filepath.ToSlash(cleanRel)]; ok {
		mtime = manifestTime
	}
	_ = os.Chtimes(target, mtime, mtime)

	return nil
}
