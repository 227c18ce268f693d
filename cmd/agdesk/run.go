package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

var (
	runJSON   bool
	runIntent string
)

// runCmd processes a single request and exits.
var runCmd = &cobra.Command{
	Use:   "run [request...]",
	Short: "Process a single request",
	Long: `Process one plain-language request, or a structured intent given with
--intent, and print the result. Confirmations are asked on the terminal.

  agdesk run what time is it
  agdesk run --dry-run=false open firefox
  agdesk run --intent '{"intent":"list_files","target":"~/Documents","options":{}}'`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the result as JSON")
	runCmd.Flags().StringVar(&runIntent, "intent", "", "Execute a structured intent (JSON) instead of text")
}

func runOnce(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" && runIntent == "" {
		return fmt.Errorf("nothing to do: give a request or --intent")
	}

	ctx, cancel := signalContext()
	defer cancel()

	lines := confirm.NewLineReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	a, err := openApp(ctx, cfg, logger, promptFor(cfg, lines, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	var res router.Result
	if runIntent != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(runIntent), &m); err != nil {
			return fmt.Errorf("parse --intent: %w", err)
		}
		in, err := intent.Decode(m)
		if err != nil {
			return fmt.Errorf("invalid intent: %w", err)
		}
		res = a.session.Execute(ctx, text, in)
	} else {
		res = a.session.Process(ctx, text).Result
	}

	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Map()); err != nil {
			return err
		}
	} else {
		printResult(out, res)
	}
	if !res.Success {
		return fmt.Errorf("request failed: %s", res.ErrorKind)
	}
	return nil
}
