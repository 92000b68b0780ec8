package testutil

import (
	"os/exec"
	"strings"
	"testing"
)

func TestFakeAgent(t *testing.T) {
	script := FakeAgent(t, []string{"● it's 100% done", `path\to\thing`}, 3)

	out, err := exec.Command(script).Output()
	exitErr, ok := err.(*exec.ExitError)
	if !ok || exitErr.ExitCode() != 3 {
		t.Fatalf("exit = %v, want code 3", err)
	}
	want := "● it's 100% done\npath\\to\\thing\n"
	if string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "a/b/c.txt", "hello")
	if !strings.HasSuffix(path, "c.txt") || ReadFile(t, path) != "hello" {
		t.Errorf("WriteFile() wrote %q", ReadFile(t, path))
	}
}
