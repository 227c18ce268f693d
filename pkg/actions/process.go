package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

const maxListedProcesses = 20

func (h *Handlers) isProtected(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range h.protected {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// matchProcesses returns the processes whose name contains name, ignoring
// case. Protected processes never match, and neither does anything for a
// blank name.
func (h *Handlers) matchProcesses(ctx context.Context, name string) ([]Process, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}
	procs, err := h.procs.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Process
	for _, p := range procs {
		if strings.Contains(strings.ToLower(p.Name), needle) && !h.isProtected(p.Name) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (h *Handlers) terminateAll(ctx context.Context, procs []Process) []Process {
	var killed []Process
	for _, p := range procs {
		if err := h.procs.Terminate(ctx, p.PID); err != nil {
			h.logger.Warn("terminate failed", zap.Int("pid", p.PID), zap.String("name", p.Name), zap.Error(err))
			continue
		}
		killed = append(killed, p)
	}
	return killed
}

func (h *Handlers) listProcesses(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	if in.DryRun() {
		return preview(nil, "Would list running processes"), nil
	}
	procs, err := h.procs.List(ctx)
	if err != nil {
		return router.Outcome{}, err
	}
	if f := strings.TrimSpace(in.Target); f != "" {
		filtered := procs[:0]
		for _, p := range procs {
			if strings.Contains(strings.ToLower(p.Name), strings.ToLower(f)) {
				filtered = append(filtered, p)
			}
		}
		procs = filtered
	}
	sort.SliceStable(procs, func(i, j int) bool { return procs[i].CPU > procs[j].CPU })
	total := len(procs)
	if len(procs) > maxListedProcesses {
		procs = procs[:maxListedProcesses]
	}
	return router.OK(fmt.Sprintf("Found %d processes", total), map[string]any{
		"processes": procs,
		"total":     total,
	}), nil
}

func (h *Handlers) killProcess(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	if strings.TrimSpace(in.Target) == "" {
		return router.Fail(router.KindValidation, "No process specified"), nil
	}
	if in.DryRun() {
		return preview(map[string]any{"process": in.Target}, "Would kill process(es) matching: %s", in.Target), nil
	}
	if h.isProtected(in.Target) {
		return failf("Cannot kill protected process: %s", in.Target), nil
	}

	matches, err := h.matchProcesses(ctx, in.Target)
	if err != nil {
		return router.Outcome{}, err
	}
	if len(matches) == 0 {
		return failf("No process found matching: %s", in.Target), nil
	}

	names := make([]string, len(matches))
	for i, p := range matches {
		names[i] = p.Name
	}

	if out, ok := h.ask(ctx, confirm.Request{
		Action:      "kill_process",
		Target:      in.Target,
		Description: fmt.Sprintf("Kill %d process(es): %s", len(matches), strings.Join(names, ", ")),
	}); !ok {
		return out, nil
	}

	killed := h.terminateAll(ctx, matches)
	killedNames := make([]string, len(killed))
	for i, p := range killed {
		killedNames[i] = p.Name
	}
	if len(killed) == 0 {
		return failf("Failed to kill any process matching: %s", in.Target), nil
	}
	return router.OK(fmt.Sprintf("Killed %d process(es)", len(killed)), map[string]any{
		"killed_count":  len(killed),
		"process_names": killedNames,
	}), nil
}
