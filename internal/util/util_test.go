// internal/util/util_test.go
package util

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "no truncation", in: "hello", max: 10, want: "hello"},
		{name: "ascii truncation", in: "helloworld", max: 5, want: "hello…"},
		{name: "multibyte truncation", in: "こんにちは世界", max: 4, want: "こんにち…"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateRunes(tt.in, tt.max); got != tt.want {
				t.Fatalf("TruncateRunes(%q,%d)=%q want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "abc", max: 10, want: "abc"},
		{name: "ascii", in: "abcdef", max: 3, want: "abc"},
		// "é" is two bytes; cutting in its middle drops the whole character.
		{name: "boundary", in: "aé", max: 2, want: "a"},
		{name: "exact multibyte", in: "aé", max: 3, want: "aé"},
	}

	for _, tt := range tests {
		if got := TruncateUTF8(tt.in, tt.max); got != tt.want {
			t.Fatalf("%s: TruncateUTF8(%q,%d)=%q want %q", tt.name, tt.in, tt.max, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bench_fib.10":  "bench_fib.10",
		"a/b:c*d":       "a_b_c_d",
		"quote\"d|pipe": "quote_d_pipe",
		"..":            "_",
		"tab\there":     "tab_here",
	}
	for input, expected := range cases {
		if got := SanitizeFilename(input, "_"); got != expected {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", input, got, expected)
		}
	}
}

func TestMakeRelative(t *testing.T) {
	t.Parallel()

	if got := MakeRelative("/project", "/project/target/x.out"); got != filepath.Join("target", "x.out") {
		t.Fatalf("MakeRelative inside: %q", got)
	}
	if got := MakeRelative("/project", "/elsewhere/x.out"); got != "/elsewhere/x.out" {
		t.Fatalf("MakeRelative outside: %q", got)
	}
	if got := MakeRelative("", "x"); got != "x" {
		t.Fatalf("MakeRelative empty base: %q", got)
	}
}

func TestCopyDir(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/src/a.txt", []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/src/nested/b.txt", []byte("b"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := CopyDir(fs, "/src", "/dst/fixtures"); err != nil {
		t.Fatalf("CopyDir: %v", err)
	}

	got, err := afero.ReadFile(fs, "/dst/fixtures/nested/b.txt")
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "b" {
		t.Fatalf("copied content = %q", got)
	}
	if ok, _ := afero.Exists(fs, "/dst/fixtures/a.txt"); !ok {
		t.Fatalf("expected a.txt to be copied")
	}
}
