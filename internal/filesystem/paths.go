package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetDefaultDownloadPath returns the user's Downloads directory. Grounded
// on the teacher's os_utils.go helper of the same name (originally part of
// the now-deleted internal/core duplicate engine).
func GetDefaultDownloadPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "Downloads"), nil
}

// FindAvailablePath returns path unchanged if nothing occupies it, else
// appends " (n)" before the extension until a free name is found - the
// same collision-avoidance the organizer uses when moving files into a
// category folder, exposed here for callers picking an initial save path.
func FindAvailablePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, 9999, ext))
}
