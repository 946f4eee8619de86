package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"control chars dropped", " Act\n1\t", 0, "Act1"},
		{"accents kept", "Sólo en Cines", 0, "Sólo en Cines"},
		{"unsafe replaced", "a/b:c*", 0, "a_b_c_"},
		{"truncated by rune", "ñññññ", 3, "ñññ"},
		{"safe punctuation", "Act (1), part-2_b.", 0, "Act (1), part-2_b."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeName(tc.in, tc.maxLen); got != tc.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
			}
		})
	}
}

func TestValidateOutputDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateOutputDir(dir); err != nil {
		t.Fatalf("valid dir rejected: %v", err)
	}

	for name, bad := range map[string]string{
		"empty":     "  ",
		"unclean":   dir + "/./",
		"traversal": "../" + filepath.Base(dir),
		"missing":   filepath.Join(dir, "nope"),
		"file":      file,
	} {
		if err := ValidateOutputDir(bad); !errors.Is(err, ErrInvalidOutputDir) {
			t.Errorf("%s: expected ErrInvalidOutputDir, got %v", name, err)
		}
	}
}
