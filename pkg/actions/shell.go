package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

// maxCommandOutput caps the output kept in a result.
const maxCommandOutput = 64 * 1024

func (h *Handlers) shell(command string) []string {
	if h.goos == "windows" {
		return []string{"cmd", "/C", command}
	}
	return []string{"sh", "-c", command}
}

func (h *Handlers) runCommand(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	command := strings.TrimSpace(in.Target)
	if command == "" {
		return router.Fail(router.KindValidation, "No command specified"), nil
	}
	if in.DryRun() {
		return preview(map[string]any{"command": command}, "Would execute command: %s", command), nil
	}

	if out, ok := h.ask(ctx, confirm.Request{
		Action:           "run_command",
		Target:           command,
		Description:      fmt.Sprintf("Execute shell command: %s - This could potentially harm your system", command),
		RequiresPassword: true,
	}); !ok {
		return out, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, h.cmdTimeout)
	defer cancel()

	argv := h.shell(command)
	out, err := h.runner.Output(runCtx, argv[0], argv[1:]...)
	output := string(out)
	truncated := false
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput]
		truncated = true
	}
	data := map[string]any{"command": command, "output": output, "truncated": truncated}

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return failf("Command timed out after %s: %s", h.cmdTimeout, command), nil
		}
		h.logger.Info("command failed", zap.String("command", command), zap.Error(err))
		o := failf("Command failed: %v", err)
		o.Data = data
		return o, nil
	}
	return router.OK("Command executed successfully", data), nil
}
