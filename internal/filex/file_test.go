package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedDirectory(t *testing.T) {
	tmp := t.TempDir()

	got, err := EnsureDir(filepath.Join(tmp, "work", "opt"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "work", "opt"), got)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()

	first, err := EnsureDir(filepath.Join(tmp, "uploads"))
	require.NoError(t, err)

	second, err := EnsureDir(filepath.Join(tmp, "uploads"))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "uploads")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o660))

	_, err := EnsureDir(p)
	require.Error(t, err)
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	got, err := SafeJoin(base, "photo-1", "opt", "320", "a.jpg")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "photo-1", "opt", "320", "a.jpg"), got)

	for _, bad := range [][]string{
		{".."},
		{"..", "etc", "passwd"},
		{"photo", "..", "..", "x"},
	} {
		_, err := SafeJoin(base, bad...)
		require.ErrorIs(t, err, ErrPathEscape, "elems %v", bad)
	}

	// Dots inside a name are fine.
	_, err = SafeJoin(base, "..hidden")
	require.NoError(t, err)
}

func TestCopyFile(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.jpg")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o600))

	dst := filepath.Join(tmp, "public", "photos", "p1", "dst.jpg")
	require.NoError(t, CopyFile(src, dst))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "pixels", string(b))

	require.Error(t, CopyFile(filepath.Join(tmp, "missing"), dst))
}
