// Copyright 2025 James Ross
package lake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// LocalBackend writes blobs under a root directory on local disk, using a
// temp-file-then-rename sequence so a reader never observes a partially
// written file. content_sha256 is always computed over the uncompressed
// canonical bytes; compression, if enabled, only changes what's on disk.
type LocalBackend struct {
	Root     string
	Compress bool
}

// NewLocalBackend returns a backend rooted at dir. The directory is created
// lazily on first write.
func NewLocalBackend(dir string, compress bool) *LocalBackend {
	return &LocalBackend{Root: dir, Compress: compress}
}

func (b *LocalBackend) diskPath(relPath string) string {
	p := filepath.Join(b.Root, filepath.FromSlash(relPath))
	if b.Compress {
		p += ".gz"
	}
	return p
}

func (b *LocalBackend) Write(ctx context.Context, loc Locator, content []byte, contentSHA256 string) (Result, error) {
	relPath, err := Path(loc)
	if err != nil {
		return Result{}, err
	}
	absPath := b.diskPath(relPath)

	if existingDigest, ok := b.readDigest(absPath); ok && existingDigest == contentSHA256 {
		return Result{
			LakeURI:       relPath,
			ContentSHA256: contentSHA256,
			ByteCount:     len(content),
			Status:        StatusSkipped,
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("lake: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".lake-tmp-*")
	if err != nil {
		return Result{}, fmt.Errorf("lake: create temp: %w", err)
	}
	tmpName := tmp.Name()
	writeErr := b.writeBody(tmp, content)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return Result{}, fmt.Errorf("lake: write temp: %w", writeErr)
		}
		return Result{}, fmt.Errorf("lake: close temp: %w", closeErr)
	}

	if err := os.Rename(tmpName, absPath); err != nil {
		os.Remove(tmpName)
		return Result{}, fmt.Errorf("lake: rename into place: %w", err)
	}

	return Result{
		LakeURI:       relPath,
		ContentSHA256: contentSHA256,
		ByteCount:     len(content),
		Status:        StatusWritten,
	}, nil
}

func (b *LocalBackend) writeBody(w io.Writer, content []byte) error {
	if !b.Compress {
		_, err := w.Write(content)
		return err
	}
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(content); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// readDigest reads and hashes whatever currently sits at absPath, returning
// ok=false if nothing is there yet.
func (b *LocalBackend) readDigest(absPath string) (string, bool) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", false
	}
	defer f.Close()

	h := sha256.New()
	if b.Compress {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", false
		}
		defer gz.Close()
		if _, err := io.Copy(h, gz); err != nil {
			return "", false
		}
	} else if _, err := io.Copy(h, f); err != nil {
		return "", false
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

func (b *LocalBackend) Read(ctx context.Context, uri string) ([]byte, error) {
	absPath := b.diskPath(uri)
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("lake: read %s: %w", uri, err)
	}
	defer f.Close()

	if !b.Compress {
		return io.ReadAll(f)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("lake: gunzip %s: %w", uri, err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func (b *LocalBackend) Exists(ctx context.Context, uri string) (bool, error) {
	_, err := os.Stat(b.diskPath(uri))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
