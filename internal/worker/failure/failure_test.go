package failure

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/dmitrijs2005/geoupload/internal/common"
)

func TestClassify(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")

	tests := []struct {
		name      string
		err       error
		kind      Kind
		retry     int
		permanent bool
	}{
		{"permanent", Permanent(errors.New("No EXIF data found")), KindPermanent, 0, true},
		{"wrapped permanent", fmt.Errorf("extract: %w", Permanent(errors.New("bad"))), KindPermanent, 0, true},
		{"memory", fmt.Errorf("admission: %w", common.ErrMemoryTimeout), KindResources, 5, false},
		{"path error", statErr, KindFilesystem, 5, false},
		{"errno", fmt.Errorf("write: %w", syscall.ENOSPC), KindFilesystem, 5, false},
		{"other", errors.New("boom"), KindUnclassified, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			if c.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", c.Kind, tt.kind)
			}
			if c.Message != tt.err.Error() {
				t.Fatalf("message = %q, want %q", c.Message, tt.err.Error())
			}
			if tt.permanent {
				if c.RetryAfterMinutes != nil {
					t.Fatalf("permanent failure must not carry a retry hint, got %d", *c.RetryAfterMinutes)
				}
				return
			}
			if c.RetryAfterMinutes == nil || *c.RetryAfterMinutes != tt.retry {
				t.Fatalf("retry = %v, want %d", c.RetryAfterMinutes, tt.retry)
			}
		})
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}

func TestPermanentError_Unwrap(t *testing.T) {
	base := errors.New("base")
	err := Permanent(base)
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to reach the wrapped error")
	}
}
