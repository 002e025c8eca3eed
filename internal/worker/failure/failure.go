// Package failure maps pipeline errors onto the status and retry hint that
// are reported to the Authority.
package failure

import (
	"errors"
	"io/fs"
	"os"
	"syscall"

	"github.com/dmitrijs2005/geoupload/internal/common"
)

const (
	RetryResources    = 5
	RetryFilesystem   = 5
	RetryUnclassified = 10
)

// PermanentError marks a failure that a retry of the same upload cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Kind names a classification bucket, used as a metrics label.
type Kind string

const (
	KindPermanent    Kind = "permanent"
	KindResources    Kind = "resources"
	KindFilesystem   Kind = "filesystem"
	KindUnclassified Kind = "unclassified"
)

// Classification is the outcome of Classify. RetryAfterMinutes is nil for
// permanent failures.
type Classification struct {
	Kind              Kind
	Message           string
	RetryAfterMinutes *int
}

func Classify(err error) Classification {
	c := Classification{Message: err.Error()}

	var perm *PermanentError
	switch {
	case errors.As(err, &perm):
		c.Kind = KindPermanent
	case errors.Is(err, common.ErrMemoryTimeout):
		c.Kind = KindResources
		c.RetryAfterMinutes = minutes(RetryResources)
	case isFilesystem(err):
		c.Kind = KindFilesystem
		c.RetryAfterMinutes = minutes(RetryFilesystem)
	default:
		c.Kind = KindUnclassified
		c.RetryAfterMinutes = minutes(RetryUnclassified)
	}
	return c
}

func isFilesystem(err error) bool {
	var (
		pathErr *fs.PathError
		linkErr *os.LinkError
		sysErr  *os.SyscallError
		errno   syscall.Errno
	)
	return errors.As(err, &pathErr) ||
		errors.As(err, &linkErr) ||
		errors.As(err, &sysErr) ||
		errors.As(err, &errno)
}

func minutes(m int) *int {
	return &m
}
