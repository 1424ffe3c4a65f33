package api

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"clean name passes through", "tu_futuro_01092026120000.jpg", "tu_futuro_01092026120000.jpg"},
		{"spaces become underscores", "my photo.jpg", "my_photo.jpg"},
		{"path separators neutralized", "../../etc/passwd", "etc_passwd"},
		{"dot runs collapse", "photo...jpg", "photo.jpg"},
		{"shell metacharacters stripped", `photo";rm -rf`, "photo__rm_-rf"},
		{"empty falls back", "", "tu_futuro.jpg"},
		{"only unsafe chars falls back", "///", "tu_futuro.jpg"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeFileName(tc.input); got != tc.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSanitizeFileNameBoundsLength(t *testing.T) {
	long := strings.Repeat("a", 300) + ".jpg"
	got := SanitizeFileName(long)
	if len(got) > maxFileNameLength {
		t.Errorf("len = %d, want at most %d", len(got), maxFileNameLength)
	}
}
