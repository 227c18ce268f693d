package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cgast/agdesk/internal/config"
	"github.com/cgast/agdesk/pkg/capability"
)

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "List or change capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openCapabilities(cfg, logger)
		if err != nil {
			return err
		}
		printCapabilities(cmd.OutOrStdout(), reg)
		return nil
	},
}

var capsEnableCmd = &cobra.Command{
	Use:   "enable <capability>...",
	Short: "Enable capabilities",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setCapabilities(cmd, args, true) },
}

var capsDisableCmd = &cobra.Command{
	Use:   "disable <capability>...",
	Short: "Disable capabilities",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setCapabilities(cmd, args, false) },
}

func setCapabilities(cmd *cobra.Command, names []string, on bool) error {
	reg, err := openCapabilities(cfg, logger)
	if err != nil {
		return err
	}
	changes := make(map[capability.Name]bool, len(names))
	for _, n := range names {
		changes[capability.Name(n)] = on
	}
	if err := reg.Update(changes); err != nil {
		return err
	}
	printCapabilities(cmd.OutOrStdout(), reg)
	return nil
}

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "List remembered consent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConsent(cfg, logger, nil, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No remembered consent.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTION\tTARGET\tGRANTED\tEXPIRES")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Action, r.Target,
				r.Timestamp.Format("2006-01-02 15:04"), r.ExpiresAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var consentRevokeCmd = &cobra.Command{
	Use:   "revoke <action> [target]",
	Short: "Revoke consent for one target, or every target of an action",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConsent(cfg, logger, nil, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		n := 0
		if len(args) == 2 {
			ok, err := store.Revoke(args[0], args[1])
			if err != nil {
				return err
			}
			if ok {
				n = 1
			}
		} else if n, err = store.RevokeAll(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d consent record(s).\n", n)
		return nil
	},
}

var consentClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all remembered consent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConsent(cfg, logger, nil, nil)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Consent cleared.")
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [interactions|errors|consents]",
	Short: "Show recent audit entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openAudit(cfg, logger)
		if err != nil {
			return err
		}
		kind := "interactions"
		if len(args) == 1 {
			kind = args[0]
		}

		var entries any
		switch kind {
		case "interactions":
			entries, err = log.RecentInteractions(historyLimit)
		case "errors":
			entries, err = log.RecentErrors(historyLimit)
		case "consents":
			entries, err = log.RecentConsents(historyLimit)
		default:
			return fmt.Errorf("unknown history kind %q", kind)
		}
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openAudit(cfg, logger)
		if err != nil {
			return err
		}
		stats, err := log.Statistics()
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export every journal to one JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openAudit(cfg, logger)
		if err != nil {
			return err
		}
		if err := log.Export(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported audit journal to %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every audit journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openAudit(cfg, logger)
		if err != nil {
			return err
		}
		if err := log.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Audit journal cleared.")
		return nil
	},
}

var initForce bool

// initCmd writes a config file populated with the defaults.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configFile); err == nil && !initForce {
			return fmt.Errorf("file %q already exists (use --force to overwrite)", configFile)
		}
		def := config.DefaultConfig()
		if err := config.WriteConfig(configFile, def); err != nil {
			return err
		}
		if _, err := openCapabilities(cfg, logger); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created %s\n", configFile)
		fmt.Fprintf(out, "Capability flags: %s\n", cfg.CapabilitiesPath())
		fmt.Fprintln(out, "Dry-run is on; set dry_run: false or pass --dry-run=false to act for real.")
		return nil
	},
}

func init() {
	capsCmd.AddCommand(capsEnableCmd, capsDisableCmd)
	consentCmd.AddCommand(consentRevokeCmd, consentClearCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries")
	historyCmd.AddCommand(historyStatsCmd, historyExportCmd, historyClearCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
