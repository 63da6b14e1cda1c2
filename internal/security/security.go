package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/kpidash/config"
)

// DefaultExtensions lists the dataset file types accepted from disk.
var DefaultExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".csv"}

// Manager enforces the filesystem allow-list for path-based dataset loads.
// Roots are stored as canonical absolute directories; requested files must
// resolve (after symlinks) inside one of them and carry a supported extension.
type Manager struct {
	allowedDirs []string
	allowedExts map[string]struct{}
}

var (
	// ErrNotAllowed indicates the requested path is outside the allow-list roots.
	ErrNotAllowed = errors.New("security: path not allowed")
	// ErrUnsupportedExtension indicates the requested file extension is not supported.
	ErrUnsupportedExtension = errors.New("security: unsupported file extension")
	// ErrNotFound indicates the requested file does not exist or is not accessible.
	ErrNotFound = errors.New("security: file not found")
	// ErrNoAllowedDirs indicates path loading is disabled.
	ErrNoAllowedDirs = errors.New("security: no allowed directories configured")
)

// NewManager constructs a manager from allow-list directories and extensions
// (case-insensitive, with leading dot). Nil extensions use DefaultExtensions.
func NewManager(allowDirs []string, allowedExtensions []string) (*Manager, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = DefaultExtensions
	}

	exts := make(map[string]struct{}, len(allowedExtensions))
	for _, e := range allowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.HasPrefix(e, ".") {
			return nil, fmt.Errorf("security: invalid extension: %q", e)
		}
		exts[e] = struct{}{}
	}

	canonical := make([]string, 0, len(allowDirs))
	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		real, err := canonicalDir(d)
		if err != nil {
			return nil, err
		}
		canonical = append(canonical, real)
	}
	return &Manager{allowedDirs: canonical, allowedExts: exts}, nil
}

// FromConfig builds the manager from cfg.AllowedDirs. An empty list yields a
// manager that denies every path.
func FromConfig(cfg *config.Config) (*Manager, error) {
	return NewManager(cfg.AllowedDirs, nil)
}

func canonicalDir(d string) (string, error) {
	abs, err := filepath.Abs(d)
	if err != nil {
		return "", fmt.Errorf("security: resolve abs for %q: %w", d, err)
	}
	// Symlinked roots are resolved so they cannot be used to escape later.
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("security: eval symlinks for %q: %w", abs, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("security: stat %q: %w", real, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("security: allow-list entry is not a directory: %q", real)
	}
	return filepath.Clean(real), nil
}

// AllowedDirectories returns the canonical allow-list roots.
func (m *Manager) AllowedDirectories() []string {
	out := make([]string, len(m.allowedDirs))
	copy(out, m.allowedDirs)
	return out
}

// Enabled reports whether any directory is allow-listed.
func (m *Manager) Enabled() bool { return len(m.allowedDirs) > 0 }

// ValidateConfig returns ErrNoAllowedDirs when path loads are disabled.
func (m *Manager) ValidateConfig() error {
	if !m.Enabled() {
		return ErrNoAllowedDirs
	}
	return nil
}

// ValidateOpenPath ensures input refers to an existing file with an allowed
// extension inside an allow-list directory, and returns its canonical path.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrNotAllowed
	}
	if !m.Enabled() {
		return "", ErrNoAllowedDirs
	}
	ext := strings.ToLower(filepath.Ext(input))
	if _, ok := m.allowedExts[ext]; !ok {
		return "", ErrUnsupportedExtension
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: eval symlinks: %w", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: stat: %w", err)
	}
	if info.IsDir() {
		return "", ErrNotAllowed
	}

	for _, root := range m.allowedDirs {
		if within(root, real) {
			return real, nil
		}
	}
	return "", ErrNotAllowed
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == "" {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
