//go:build !linux

package cdpmux

import "os/exec"

// setPdeathsig is a no-op outside Linux: there is no portable
// parent-death-signal equivalent, so an orphaned Chrome process on other
// platforms must be reaped by other means (e.g. a process group kill).
func setPdeathsig(cmd *exec.Cmd) {}
