//go:build !windows

package webui

import (
	"context"
	"os/exec"
)

func shellCommand(ctx context.Context, cmd string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
}
