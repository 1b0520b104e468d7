package manpage

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// MirrorURLs are the default corpus locations, in preference order. The
// placeholder is replaced with the version tag.
var MirrorURLs = []string{
	"https://www.kernel.org/pub/linux/docs/man-pages/man-pages-%s.tar.xz",
	"https://mirrors.edge.kernel.org/pub/linux/docs/man-pages/man-pages-%s.tar.xz",
}

// FetchArchive downloads the man-pages tarball for the given version,
// trying each mirror, and returns the local path plus the sha256 of the
// downloaded bytes. An existing file at dest is reused without a download.
func FetchArchive(client *http.Client, version, dest string) (string, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if _, err := os.Stat(dest); err == nil {
		sum, err := fileSHA256(dest)
		return dest, sum, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", "", err
	}

	var lastErr error
	for _, pattern := range MirrorURLs {
		url := fmt.Sprintf(pattern, version)
		if err := downloadTo(client, url, dest); err != nil {
			lastErr = fmt.Errorf("download %s: %w", url, err)
			continue
		}
		sum, err := fileSHA256(dest)
		return dest, sum, err
	}
	return "", "", lastErr
}

func downloadTo(client *http.Client, url, dest string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExtractTarXz unpacks a .tar.xz archive under destDir and returns the
// extraction root (the single top-level directory when there is one).
func ExtractTarXz(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("open xz stream: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	topLevels := map[string]bool{}
	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read tar: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if name == "." || strings.HasPrefix(name, "..") {
			continue
		}
		target := filepath.Join(destDir, name)
		// Guard against path traversal from a hostile archive.
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return "", fmt.Errorf("tar entry escapes destination: %s", hdr.Name)
		}
		if parts := strings.SplitN(name, string(os.PathSeparator), 2); len(parts) > 0 {
			topLevels[parts[0]] = true
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				return "", err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return "", err
			}
			if err := out.Close(); err != nil {
				return "", err
			}
		case tar.TypeSymlink, tar.TypeLink:
			// Alias pages in the tarball are .so stubs, not links; skip.
		}
	}

	if len(topLevels) == 1 {
		for top := range topLevels {
			return filepath.Join(destDir, top), nil
		}
	}
	return destDir, nil
}
