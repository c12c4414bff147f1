package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

// FilePathValidator checks user-supplied file paths (database, export
// output) and expands a leading "~/".
type FilePathValidator struct {
	// AllowedBaseDirs restricts paths to these directories. Empty allows any.
	AllowedBaseDirs []string
	MaxPathLength   int
}

func NewFilePathValidator(baseDirs ...string) *FilePathValidator {
	return &FilePathValidator{
		AllowedBaseDirs: baseDirs,
		MaxPathLength:   4096,
	}
}

// ValidateAndSanitize returns the cleaned absolute path.
func (v *FilePathValidator) ValidateAndSanitize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if v.MaxPathLength > 0 && len(path) > v.MaxPathLength {
		return "", fmt.Errorf("%w: too long (max %d characters)", ErrInvalidPath, v.MaxPathLength)
	}
	for _, char := range path {
		if char < 32 && char != '\t' {
			return "", fmt.Errorf("%w: contains control characters", ErrInvalidPath)
		}
	}
	for _, component := range strings.Split(filepath.ToSlash(path), "/") {
		if component == ".." {
			return "", fmt.Errorf("%w: directory traversal not allowed", ErrInvalidPath)
		}
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	} else if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("%w: unsupported tilde usage", ErrInvalidPath)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %w", err)
	}
	if err := v.validateBaseDirs(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (v *FilePathValidator) validateBaseDirs(absPath string) error {
	if len(v.AllowedBaseDirs) == 0 {
		return nil
	}
	for _, baseDir := range v.AllowedBaseDirs {
		absBaseDir, err := filepath.Abs(baseDir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absBaseDir, absPath)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: not within allowed directories %v", ErrInvalidPath, v.AllowedBaseDirs)
}

// ValidateFile validates path for writing a regular file. The parent
// directory must exist and the path itself must not be a directory.
func (v *FilePathValidator) ValidateFile(path string) (string, error) {
	validated, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(validated); err == nil && info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidPath, validated)
	}

	parent := filepath.Dir(validated)
	info, err := os.Stat(parent)
	if err != nil {
		return "", fmt.Errorf("%w: parent directory: %w", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: parent %s is not a directory", ErrInvalidPath, parent)
	}
	return validated, nil
}

// DBPath validates the database path, creating its parent directory.
func (v *FilePathValidator) DBPath(path string) (string, error) {
	validated, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(validated), 0o755); err != nil {
		return "", fmt.Errorf("creating database directory: %w", err)
	}
	return v.ValidateFile(validated)
}
