package utils

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
)

// ManifestName is the archive member that maps entry paths to wrapped keys
const ManifestName = "sealdrive-keys.json"

// ZipEntry is one member of a streamed archive. Open is called only when
// the entry is written, so a single blob is held open at a time.
type ZipEntry struct {
	Path       string
	WrappedKey string
	Open       func() (io.ReadCloser, error)
}

// ManifestEntry is one line of the key manifest
type ManifestEntry struct {
	Path       string `json:"path"`
	WrappedKey string `json:"wrapped_key"`
}

// WriteZip streams entries into a zip archive on w, followed by a key
// manifest. Entries whose content cannot be opened are left out of both and
// returned as skipped. Ciphertext does not compress, so members are stored.
func WriteZip(w io.Writer, entries []ZipEntry) (skipped []string, err error) {
	zw := zip.NewWriter(w)

	manifest := make([]ManifestEntry, 0, len(entries))
	for _, e := range entries {
		name, err := ArchivePath(e.Path)
		if err != nil {
			skipped = append(skipped, e.Path)
			continue
		}

		rc, err := e.Open()
		if err != nil {
			skipped = append(skipped, e.Path)
			continue
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			rc.Close()
			return skipped, fmt.Errorf("create %s: %w", name, err)
		}
		_, err = io.Copy(fw, rc)
		rc.Close()
		if err != nil {
			return skipped, fmt.Errorf("write %s: %w", name, err)
		}

		manifest = append(manifest, ManifestEntry{Path: name, WrappedKey: e.WrappedKey})
	}

	mw, err := zw.Create(ManifestName)
	if err != nil {
		return skipped, fmt.Errorf("create manifest: %w", err)
	}
	if err := json.NewEncoder(mw).Encode(manifest); err != nil {
		return skipped, fmt.Errorf("write manifest: %w", err)
	}

	return skipped, zw.Close()
}

// ArchivePath cleans a relative member path and rejects anything that would
// escape the archive root.
func ArchivePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean == "." {
		return "", fmt.Errorf("empty archive path")
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", fmt.Errorf("archive path %q escapes the root", p)
		}
	}
	if clean == ManifestName {
		return "", fmt.Errorf("archive path %q is reserved", p)
	}
	return clean, nil
}
