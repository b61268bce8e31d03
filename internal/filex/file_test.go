package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDir_RelativeToCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureDir("artifacts")
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(tmp, "artifacts"))
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	require.Equal(t, want, gotResolved)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	first, err := EnsureDir(dir)
	require.NoError(t, err)
	second, err := EnsureDir(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "taken")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	_, err := EnsureDir(p)
	require.Error(t, err)
}

func TestContentType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"memo.m4a", "audio/mp4"},
		{"MEMO.MP3", "audio/mpeg"},
		{"/tmp/x.wav", "audio/wav"},
		{"noext", "application/octet-stream"},
		{"doc.pdf", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, ContentType(tt.path))
		})
	}
}

func TestImport(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Voice.M4A")
	require.NoError(t, os.WriteFile(src, []byte("audio-bytes"), 0o600))
	dir := t.TempDir()

	dst, size, err := Import(dir, src)
	require.NoError(t, err)
	require.Equal(t, int64(11), size)
	require.Equal(t, dir, filepath.Dir(dst))
	require.Equal(t, ".m4a", filepath.Ext(dst))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "audio-bytes", string(b))

	// the source is left in place
	_, err = os.Stat(src)
	require.NoError(t, err)
}

func TestImport_MissingSource(t *testing.T) {
	_, _, err := Import(t.TempDir(), filepath.Join(t.TempDir(), "nope.m4a"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
