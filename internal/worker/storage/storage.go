// Package storage publishes derivative files to their final location: a
// local public directory, S3, or MinIO.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/geoupload/internal/filex"
	"github.com/gabriel-vasile/mimetype"
)

// CacheControl is attached to every published object.
const CacheControl = "max-age=31536000"

// Backend stores one file under key and returns its public URL.
type Backend interface {
	Put(ctx context.Context, localPath, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Key returns the object key for a variant's relative path.
func Key(photoID, rel string) string {
	return "photos/" + photoID + "/" + strings.TrimLeft(filepath.ToSlash(rel), "/")
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func contentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// Local copies files into a directory served under picsURL.
type Local struct {
	baseDir string
	picsURL string
}

func NewLocal(baseDir, picsURL string) (*Local, error) {
	abs, err := filex.EnsureDir(baseDir)
	if err != nil {
		return nil, err
	}
	return &Local{baseDir: abs, picsURL: picsURL}, nil
}

func (l *Local) Put(ctx context.Context, localPath, key string) (string, error) {
	dst, err := filex.SafeJoin(l.baseDir, filepath.FromSlash(key))
	if err != nil {
		return "", err
	}
	if err := filex.CopyFile(localPath, dst); err != nil {
		return "", err
	}
	return joinURL(l.picsURL, key), nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	p, err := filex.SafeJoin(l.baseDir, filepath.FromSlash(key))
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

var _ Backend = (*Local)(nil)
