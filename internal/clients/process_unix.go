//go:build unix

package clients

import (
	"os/exec"
	"syscall"
)

// spawnDetached starts name in its own session so it outlives the launcher and
// does not receive the terminal's signals. The process handle is released
// immediately.
func spawnDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// execProcess replaces the current process image. It only returns on failure.
func execProcess(path string, argv, env []string) error {
	return syscall.Exec(path, argv, env)
}
