package util

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
)

var (
	illegalFileChars  = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlFileChars  = regexp.MustCompile(`[\x00-\x1f\x80-\x9f]`)
	reservedFileNames = regexp.MustCompile(`^\.+$`)
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// TruncateUTF8 cuts s to at most maxBytes bytes without splitting a
// multi-byte character.
func TruncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	end := maxBytes
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

// SanitizeFilename replaces characters that are illegal in file names with
// replacement. Names consisting only of dots are replaced entirely.
func SanitizeFilename(name, replacement string) string {
	name = illegalFileChars.ReplaceAllString(name, replacement)
	name = controlFileChars.ReplaceAllString(name, replacement)
	name = reservedFileNames.ReplaceAllString(name, replacement)
	return name
}

// MakeRelative returns path relative to base if path lies below base,
// otherwise path unchanged.
func MakeRelative(base, path string) string {
	if base == "" {
		return path
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// CopyDir copies the directory tree src into dst on fs. Regular files and
// directories are copied; other file types are skipped.
func CopyDir(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			return fs.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return CopyFile(fs, path, target)
		default:
			return nil
		}
	})
}

// CopyFile copies a single regular file on fs, keeping its permission bits.
func CopyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
