package actions

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

func (h *Handlers) getTime(_ context.Context, _ intent.Intent) (router.Outcome, error) {
	now := h.now()
	return router.OK("Current time: "+now.Format("2006-01-02 15:04:05"), map[string]any{
		"time":     now.Format("15:04:05"),
		"date":     now.Format("2006-01-02"),
		"weekday":  now.Weekday().String(),
		"timezone": now.Location().String(),
	}), nil
}

func (h *Handlers) getSystemInfo(_ context.Context, _ intent.Intent) (router.Outcome, error) {
	info := map[string]any{
		"os":        h.goos,
		"arch":      runtime.GOARCH,
		"cpu_count": runtime.NumCPU(),
	}
	if host, err := os.Hostname(); err == nil {
		info["hostname"] = host
	}
	if h.goos == "linux" {
		if mem := readMeminfo("/proc/meminfo"); mem != nil {
			info["memory"] = mem
		}
		if load, err := os.ReadFile("/proc/loadavg"); err == nil {
			if f := strings.Fields(string(load)); len(f) >= 3 {
				info["load_average"] = f[:3]
			}
		}
	}
	return router.OK(fmt.Sprintf("System: %s/%s, %d CPUs", h.goos, runtime.GOARCH, runtime.NumCPU()),
		map[string]any{"system_info": info}), nil
}

// readMeminfo returns total, available and used memory in kB, or nil when
// the file cannot be read.
func readMeminfo(path string) map[string]any {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	values := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		values[strings.TrimSuffix(fields[0], ":")] = n
	}
	total, ok := values["MemTotal"]
	if !ok {
		return nil
	}
	avail := values["MemAvailable"]
	return map[string]any{
		"total_kb":     total,
		"available_kb": avail,
		"used_kb":      total - avail,
	}
}

func (h *Handlers) help(_ context.Context, in intent.Intent) (router.Outcome, error) {
	if typ, err := intent.ParseType(in.Target); err == nil {
		return router.OK(intent.HelpText(typ), map[string]any{"intent": string(typ)}), nil
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	topics := make(map[string]string)
	for _, typ := range intent.Types() {
		text := intent.HelpText(typ)
		topics[string(typ)] = text
		fmt.Fprintf(&b, "  %-22s %s\n", typ, text)
	}
	b.WriteString("\nEverything runs in dry-run mode until you switch it off.")
	return router.OK(b.String(), map[string]any{"topics": topics}), nil
}

func (h *Handlers) clarify(_ context.Context, in intent.Intent) (router.Outcome, error) {
	msg := in.Options.String(intent.OptMessage)
	if msg == "" {
		msg = "Could you please clarify what you want me to do?"
	}
	return router.OK(msg, map[string]any{"needs_clarification": true}), nil
}

func (h *Handlers) exit(_ context.Context, _ intent.Intent) (router.Outcome, error) {
	return router.OK("Goodbye!", map[string]any{"exit": true}), nil
}
