package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var ErrInvalidOutputDir = errors.New("invalid output_dir")

// SanitizeName strips control characters, replaces anything outside a small
// filename-safe set with '_' and truncates to maxLen runes (0 = no limit).
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case isAllowedNameRune(r):
			return r
		default:
			return '_'
		}
	}, s))

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return strings.ContainsRune(" -_.,()", r)
}

// ValidateOutputDir accepts only an existing, clean directory path.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: output_dir is required", ErrInvalidOutputDir)
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("%w: must be a clean path", ErrInvalidOutputDir)
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("%w: path traversal", ErrInvalidOutputDir)
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: does not exist", ErrInvalidOutputDir)
		}
		return fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: not a directory", ErrInvalidOutputDir)
	}
	return nil
}
