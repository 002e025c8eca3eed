// Package ingest validates what a client hands the worker before any image
// processing starts: identifiers, filenames, declared type and size, and the
// sniffed content of the saved file.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/gabriel-vasile/mimetype"
)

const (
	maxFilenameLen = 255
	unnamedFile    = "unnamed_file"
)

var (
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9_ \-.]`)
	dotRuns       = regexp.MustCompile(`\.{2,}`)
	allowedExts   = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff"}
	allowedImages = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff"}
)

// ValidationError is a client mistake caught before processing. It matches
// common.ErrValidation under errors.Is.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return common.ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// SanitizeFilename reduces a client supplied name to a safe basename.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "/" || name == "." {
		name = ""
	}

	name = strings.TrimLeft(name, ".")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = dotRuns.ReplaceAllString(name, ".")

	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) >= maxFilenameLen {
			ext = ""
		}
		name = name[:maxFilenameLen-len(ext)] + ext
	}

	if name == "" || name == "." {
		return unnamedFile
	}
	return name
}

// ValidateIdentifier trims value and checks it is a short token of letters,
// digits and dashes. The returned error names field.
func ValidateIdentifier(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", invalid(field, "must not be empty")
	}
	if len(v) > common.MaxIdentifierLen {
		return "", invalid(field, "must be at most %d characters", common.MaxIdentifierLen)
	}
	if !common.IsValidIdentifier(v) {
		return "", invalid(field, "may contain only letters, digits and dashes")
	}
	return v, nil
}

// Policy limits what an upload may look like before it is written to disk.
type Policy struct {
	MaxBytes     int64
	Extensions   []string
	ContentTypes []string
}

func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:     common.MaxUploadBytes,
		Extensions:   allowedExts,
		ContentTypes: allowedImages,
	}
}

// CheckUpload sanitizes filename and checks its extension, the declared size
// and, when present, the declared content type. It returns the safe name.
func (p Policy) CheckUpload(filename string, size int64, contentType string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", invalid("file", "no filename provided")
	}
	safe := SanitizeFilename(filename)

	ext := strings.ToLower(filepath.Ext(safe))
	if !contains(p.Extensions, ext) {
		return "", invalid("file", "File type not allowed. Allowed types: %s", joinSorted(p.Extensions))
	}

	if p.MaxBytes > 0 && size > p.MaxBytes {
		return "", invalid("file", "File too large. Maximum size: %dMB", p.MaxBytes>>20)
	}
	if size == 0 {
		return "", invalid("file", "empty file")
	}

	if ct := normalizeContentType(contentType); ct != "" && ct != "application/octet-stream" {
		if !contains(p.ContentTypes, ct) {
			return "", invalid("file", "Invalid content type: %s", ct)
		}
	}
	return safe, nil
}

// VerifyContent sniffs the saved file and removes it unless it is one of the
// allowed image formats.
func (p Policy) VerifyContent(filePath string) (string, error) {
	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		_ = os.Remove(filePath)
		return "", fmt.Errorf("detect content type: %w", err)
	}

	for _, allowed := range p.ContentTypes {
		if mt.Is(allowed) {
			return allowed, nil
		}
	}

	_ = os.Remove(filePath)
	return "", invalid("file", "Invalid image file content: %s", mt.String())
}

// SecureFilename builds a collision resistant on-disk name from a sanitized
// name and the uploading user.
func SecureFilename(safeName, userID string) string {
	return secureFilename(safeName, userID, time.Now())
}

func secureFilename(safeName, userID string, now time.Time) string {
	ext := filepath.Ext(safeName)
	stem := strings.TrimSuffix(safeName, ext)
	ts := now.UnixMilli()

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d_%s", userID, ts, stem)))
	return fmt.Sprintf("%s_%d_%s%s", userID, ts, hex.EncodeToString(sum[:])[:8], ext)
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func joinSorted(list []string) string {
	c := append([]string(nil), list...)
	sort.Strings(c)
	return strings.Join(c, ", ")
}
