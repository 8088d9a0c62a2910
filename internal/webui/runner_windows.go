package webui

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCommand hands cmd to cmd.exe verbatim. Go's argument quoting would
// escape the inner quotes of activate.bat paths, so the command line is
// built by hand and /S strips only the outer pair.
func shellCommand(ctx context.Context, cmd string) *exec.Cmd {
	c := exec.CommandContext(ctx, "cmd")
	c.SysProcAttr = &syscall.SysProcAttr{CmdLine: `/S /C "` + cmd + `"`}
	return c
}
