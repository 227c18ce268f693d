package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cgast/agdesk/internal/config"
	"github.com/cgast/agdesk/pkg/assistant"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/events"
	"github.com/cgast/agdesk/pkg/protocol"
)

// serveCmd speaks JSON-RPC 2.0 on stdin/stdout, one request per line.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over JSON-RPC on stdio",
	Long: `Read newline-delimited JSON-RPC 2.0 requests on stdin and answer on stdout.

Since stdin carries the protocol, confirmations are asked on the controlling
terminal (/dev/tty) when one exists and denied otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		prompt, closeTTY := ttyPrompt(cfg)
		defer closeTTY()

		a, err := openApp(ctx, cfg, logger, prompt)
		if err != nil {
			return err
		}
		defer a.Close()

		h := protocol.NewHandler()
		assistant.RegisterMethods(h, assistant.Services{
			Session:      a.session,
			Router:       a.router,
			Capabilities: a.caps,
			Consent:      a.consent,
			Audit:        a.audit,
			Bus:          a.bus,
		})
		a.bus.Publish(events.NewEvent(events.EventAgentMessage, map[string]any{
			"message": "agent mode started",
			"methods": h.Methods(),
		}))
		logger.Info("serving JSON-RPC on stdio", zap.Strings("methods", h.Methods()))

		return protocol.Serve(ctx, h, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func ttyPrompt(c config.Config) (confirm.Prompt, func()) {
	if c.Confirmation.Mode == config.ConfirmDeny {
		return confirm.Deny{}, func() {}
	}
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		logger.Warn("no terminal for confirmations, denying them", zap.Error(err))
		return confirm.Deny{}, func() {}
	}
	fmt.Fprintln(tty, "agdesk: confirmations will be asked here")
	return confirm.NewTerminalPrompt(confirm.NewLineReader(tty), tty), func() { tty.Close() }
}
