package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cgast/agdesk/internal/config"
	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/events"
	"github.com/cgast/agdesk/pkg/router"
)

// promptFor returns the confirmation prompt the config asks for, reading
// answers from lines.
func promptFor(c config.Config, lines *confirm.LineReader, out io.Writer) confirm.Prompt {
	if c.Confirmation.Mode == config.ConfirmDeny || lines == nil {
		return confirm.Deny{}
	}
	return confirm.NewTerminalPrompt(lines, out)
}

func runInteractive(ctx context.Context, cmd *cobra.Command) error {
	lines := confirm.NewLineReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, cfg, logger, promptFor(cfg, lines, out))
	if err != nil {
		return err
	}
	defer a.Close()

	return repl(ctx, a, lines, out)
}

func repl(ctx context.Context, a *app, lines *confirm.LineReader, out io.Writer) error {
	fmt.Fprintf(out, "agdesk %s\n", version)
	fmt.Fprintln(out, "Type a request in plain language, ':help' for shell commands, 'exit' to quit.")
	printMode(out, a.router.DryRun())
	fmt.Fprintln(out)

	for {
		fmt.Fprint(out, "agdesk> ")
		line, err := lines.ReadLine(ctx)
		if err != nil {
			fmt.Fprintln(out)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			shellCommand(out, a, line)
			continue
		}

		turn := a.session.Process(ctx, line)
		printResult(out, turn.Result)
		if turn.Exit() {
			return nil
		}
	}
}

func shellCommand(out io.Writer, a *app, line string) {
	parts := strings.Fields(line)
	switch parts[0] {
	case ":help":
		fmt.Fprintln(out, "Shell commands:")
		fmt.Fprintln(out, "  :dryrun [on|off]   Show or switch dry-run mode")
		fmt.Fprintln(out, "  :caps              List capabilities")
		fmt.Fprintln(out, "  :help              Show this help message")
		fmt.Fprintln(out, "Anything else is read as a request, e.g. 'open firefox' or 'what time is it'.")
	case ":dryrun":
		if len(parts) > 1 {
			var on bool
			switch strings.ToLower(parts[1]) {
			case "on", "true":
				on = true
			case "off", "false":
			default:
				fmt.Fprintln(out, "Usage: :dryrun [on|off]")
				return
			}
			if on != a.router.DryRun() {
				a.router.SetDryRun(on)
				a.bus.Publish(events.NewEvent(events.EventModeChanged, map[string]any{"dry_run": on}))
			}
		}
		printMode(out, a.router.DryRun())
	case ":caps":
		printCapabilities(out, a.caps)
	default:
		fmt.Fprintf(out, "Unknown shell command %s (try :help)\n", parts[0])
	}
}

func printMode(out io.Writer, dry bool) {
	if dry {
		fmt.Fprintln(out, "Dry-run mode is ON: actions are described, not performed.")
		return
	}
	fmt.Fprintln(out, "Dry-run mode is OFF: actions are performed.")
}

func printResult(out io.Writer, res router.Result) {
	if res.Success {
		fmt.Fprintln(out, res.Message)
	} else {
		fmt.Fprintf(out, "error (%s): %s\n", res.ErrorKind, res.Message)
	}

	keys := make([]string, 0, len(res.Data))
	for k := range res.Data {
		if k == "would_execute" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := res.Data[k].(type) {
		case string:
			if strings.Contains(v, "\n") {
				fmt.Fprintf(out, "  %s:\n%s\n", k, indent(v, "    "))
				continue
			}
			fmt.Fprintf(out, "  %s: %s\n", k, v)
		default:
			fmt.Fprintf(out, "  %s: %v\n", k, v)
		}
	}
}

func printCapabilities(out io.Writer, reg *capability.Registry) {
	flags := reg.All()
	for _, name := range capability.Names() {
		state := "off"
		if flags[name] {
			state = "on"
		}
		fmt.Fprintf(out, "  %-16s %-3s  %s\n", name, state, reg.Describe(name))
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
