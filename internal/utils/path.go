package utils

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading `~` and returns a clean absolute path.
func ResolvePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path cannot be empty")
	}

	if strings.HasPrefix(p, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		p = strings.Replace(p, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

func EnsureParent(p string) error {
	return EnsureDir(filepath.Dir(p))
}

func EnsureDir(p string) error {
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	return os.MkdirAll(p, 0o755)
}

func DirExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ToSlashKey converts a storage name to forward slashes regardless of the
// platform the name was produced on. Windows style separators in a prefixed
// path would otherwise never match the keys stored remotely.
func ToSlashKey(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

// JoinKey joins a storage location and a name into a normalized object key.
// The result never starts with a slash.
func JoinKey(location, name string) string {
	location = strings.Trim(ToSlashKey(location), "/")
	name = strings.TrimLeft(ToSlashKey(name), "/")
	if location == "" {
		return path.Clean(name)
	}
	return path.Join(location, name)
}

// TrimKeyLocation strips the location prefix from an object key. ok is false
// when the key does not live under location.
func TrimKeyLocation(location, key string) (string, bool) {
	location = strings.Trim(ToSlashKey(location), "/")
	if location == "" {
		return key, true
	}
	rel, found := strings.CutPrefix(key, location+"/")
	return rel, found
}
