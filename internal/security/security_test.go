package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/kpidash/config"
)

func mustTempDir(t *testing.T) string {
	t.Helper()
	d := t.TempDir()
	// EvalSymlinks on macOS can change /var -> /private/var.
	real, err := filepath.EvalSymlinks(d)
	require.NoError(t, err)
	return real
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFromConfig(t *testing.T) {
	dir := mustTempDir(t)
	cfg := config.Defaults()
	cfg.AllowedDirs = []string{dir, "  "}

	m, err := FromConfig(&cfg)
	require.NoError(t, err)
	require.NoError(t, m.ValidateConfig())
	require.Equal(t, []string{dir}, m.AllowedDirectories())
}

func TestEmptyAllowListDeniesEverything(t *testing.T) {
	root := mustTempDir(t)
	fpath := filepath.Join(root, "perf.csv")
	writeFile(t, fpath)

	m, err := NewManager(nil, nil)
	require.NoError(t, err)
	require.False(t, m.Enabled())
	require.ErrorIs(t, m.ValidateConfig(), ErrNoAllowedDirs)

	_, err = m.ValidateOpenPath(fpath)
	require.ErrorIs(t, err, ErrNoAllowedDirs)
}

func TestNewManager_RejectsBadEntries(t *testing.T) {
	_, err := NewManager(nil, []string{"xlsx"})
	require.Error(t, err)

	root := mustTempDir(t)
	file := filepath.Join(root, "f.csv")
	writeFile(t, file)
	_, err = NewManager([]string{file}, nil)
	require.Error(t, err)

	_, err = NewManager([]string{filepath.Join(root, "missing")}, nil)
	require.Error(t, err)
}

func TestValidateOpenPath_AllowsWithinRoot(t *testing.T) {
	root := mustTempDir(t)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	for _, name := range []string{"ok.xlsx", "ok.CSV"} {
		fpath := filepath.Join(sub, name)
		writeFile(t, fpath)

		m, err := NewManager([]string{root}, nil)
		require.NoError(t, err)
		got, err := m.ValidateOpenPath(fpath)
		require.NoError(t, err)
		require.True(t, filepath.IsAbs(got))
		require.Equal(t, fpath, got)
	}
}

func TestValidateOpenPath_DeniesOutsideRoot(t *testing.T) {
	root := mustTempDir(t)
	outside := filepath.Join(mustTempDir(t), "escape.xlsx")
	writeFile(t, outside)

	m, err := NewManager([]string{root}, nil)
	require.NoError(t, err)
	_, err = m.ValidateOpenPath(outside)
	require.ErrorIs(t, err, ErrNotAllowed)

	_, err = m.ValidateOpenPath(filepath.Join(root, "..", filepath.Base(filepath.Dir(outside)), "escape.xlsx"))
	require.Error(t, err)
}

func TestValidateOpenPath_SiblingPrefixDenied(t *testing.T) {
	parent := mustTempDir(t)
	root := filepath.Join(parent, "data")
	sibling := filepath.Join(parent, "data-other")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.Mkdir(sibling, 0o755))
	fpath := filepath.Join(sibling, "perf.csv")
	writeFile(t, fpath)

	m, err := NewManager([]string{root}, nil)
	require.NoError(t, err)
	_, err = m.ValidateOpenPath(fpath)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestValidateOpenPath_SymlinkEscapeDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test skipped on Windows")
	}
	root := mustTempDir(t)
	target := filepath.Join(mustTempDir(t), "target.xlsx")
	writeFile(t, target)
	link := filepath.Join(root, "link.xlsx")
	require.NoError(t, os.Symlink(target, link))

	m, err := NewManager([]string{root}, nil)
	require.NoError(t, err)
	_, err = m.ValidateOpenPath(link)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestValidateOpenPath_Errors(t *testing.T) {
	root := mustTempDir(t)
	bad := filepath.Join(root, "bad.txt")
	writeFile(t, bad)

	m, err := NewManager([]string{root}, nil)
	require.NoError(t, err)

	_, err = m.ValidateOpenPath(bad)
	require.ErrorIs(t, err, ErrUnsupportedExtension)
	_, err = m.ValidateOpenPath(filepath.Join(root, "missing.csv"))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.ValidateOpenPath("")
	require.ErrorIs(t, err, ErrNotAllowed)
}
