// Package testutil provides testing utilities for shepherd tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

// RequireShell skips the test when /bin/sh is unavailable.
func RequireShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake agent scripts require a POSIX shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

// WriteScript writes an executable /bin/sh script with the given body into
// a temporary directory and returns its path. The directory is removed
// when the test completes.
func WriteScript(t *testing.T, name, body string) string {
	t.Helper()
	RequireShell(t)

	path := filepath.Join(t.TempDir(), name)
	content := "#!/bin/sh\n" + body
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script %s: %v", name, err)
	}
	return path
}

// FakeAgent writes a script that prints each line of output and exits with
// exitCode. Lines are emitted with printf so backslashes and percent signs
// are printed verbatim.
func FakeAgent(t *testing.T, output []string, exitCode int) string {
	t.Helper()

	var b strings.Builder
	for _, line := range output {
		b.WriteString("printf '%s\\n' ")
		b.WriteString(shellQuote(line))
		b.WriteString("\n")
	}
	b.WriteString("exit ")
	b.WriteString(strconv.Itoa(exitCode))
	b.WriteString("\n")
	return WriteScript(t, "fake-agent", b.String())
}

// WriteFile writes content to a path relative to dir, creating parents.
func WriteFile(t *testing.T, dir, path, content string) string {
	t.Helper()

	fullPath := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return fullPath
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
