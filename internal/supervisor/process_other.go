//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// terminate has no graceful form here; the process is killed.
func terminate(pid int) error {
	return forceKill(pid)
}

func forceKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

func isAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
