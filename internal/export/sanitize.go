package export

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

const namePunctuation = " -_.,()"

// SanitizeName keeps letters, digits and a little punctuation so s can be
// used in file names and EDL clip fields. Control characters vanish, any
// other rune becomes '_', and the result is capped at maxLen runes.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(namePunctuation, r):
			return r
		}
		return '_'
	}, s)
	cleaned = strings.TrimSpace(cleaned)

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = strings.TrimSpace(string(runes[:maxLen]))
	}
	return cleaned
}

// ValidateOutputDir accepts only an absolute, already-clean path to an
// existing directory.
func ValidateOutputDir(dir string) error {
	switch {
	case strings.TrimSpace(dir) == "":
		return errors.New("output_dir is required")
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return errors.New("output_dir cannot contain path traversal")
	case !filepath.IsAbs(dir):
		return errors.New("output_dir must be absolute")
	case filepath.Clean(dir) != dir:
		return errors.New("output_dir must be a clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("output_dir does not exist")
		}
		return err
	}
	if !info.IsDir() {
		return errors.New("output_dir is not a directory")
	}
	return nil
}
