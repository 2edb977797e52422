package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crypdick/pynchy-gate/internal/audit"
	"github.com/crypdick/pynchy-gate/internal/config"
)

var (
	auditDB     string
	auditFormat string
	auditFilter audit.Filter
	auditSince  time.Duration
	auditFrom   string
	auditTo     string
	pruneOlder  time.Duration
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.PersistentFlags().StringVar(&auditDB, "db", "", "Audit database path (default from config, ~/.pynchy/audit.db)")
	auditCmd.PersistentFlags().StringVarP(&auditFormat, "format", "f", "text", "Output format (text|json)")

	for _, c := range []*cobra.Command{auditQueryCmd, auditSummaryCmd} {
		c.Flags().StringVarP(&auditFilter.WorkspaceID, "workspace", "w", "", "Only records for this workspace")
		c.Flags().StringVarP(&auditFilter.SessionID, "session", "s", "", "Only records for this session")
		c.Flags().StringVar(&auditFilter.Capability, "capability", "", "Only records for this capability")
		c.Flags().StringVar(&auditFilter.Kind, "kind", "", "Only records of this kind (allow|cop_review|human_approval|blocked|rate_limited)")
		c.Flags().DurationVar(&auditSince, "since", 0, "Only records newer than this (e.g. 24h)")
		c.Flags().StringVar(&auditFrom, "from", "", "Only records at or after this RFC 3339 time")
		c.Flags().StringVar(&auditTo, "to", "", "Only records at or before this RFC 3339 time")
	}
	auditQueryCmd.Flags().IntVarP(&auditFilter.Limit, "limit", "n", 0, "Maximum records to show (0 = all)")
	auditPruneCmd.Flags().DurationVar(&pruneOlder, "older-than", 0, "Delete records older than this (default: configured retention)")

	auditCmd.AddCommand(auditQueryCmd, auditPruneCmd, auditVerifyCmd, auditSummaryCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for querying, pruning and verifying the hash-chained audit log.",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show audit records as a timeline",
	RunE:  runAuditQuery,
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count audit records by kind and capability",
	RunE:  runAuditSummary,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit records older than the retention period",
	RunE:  runAuditPrune,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity of the audit log",
	Long: "Walks the audit records in order and checks every stored hash and prev_hash.\n" +
		"The oldest remaining record anchors the chain, so pruning does not break it.\n" +
		"Exits 0 if valid, 1 if tampered.",
	RunE: runAuditVerify,
}

func openAudit() (*audit.Store, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	path := auditDB
	if path == "" {
		path = auditPath(cfg)
	}
	store, err := audit.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func buildFilter() (audit.Filter, error) {
	f := auditFilter
	if auditSince > 0 {
		f.From = time.Now().Add(-auditSince)
	}
	if auditFrom != "" {
		t, err := time.Parse(time.RFC3339, auditFrom)
		if err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
		f.From = t
	}
	if auditTo != "" {
		t, err := time.Parse(time.RFC3339, auditTo)
		if err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
		f.To = t
	}
	return f, nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	f, err := buildFilter()
	if err != nil {
		return err
	}
	store, _, err := openAudit()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Query(context.Background(), f)
	if err != nil {
		return err
	}
	return printAudit(cmd, records, func() string { return audit.FormatTimeline(records) })
}

func runAuditSummary(cmd *cobra.Command, args []string) error {
	f, err := buildFilter()
	if err != nil {
		return err
	}
	store, _, err := openAudit()
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Summarize(context.Background(), f)
	if err != nil {
		return err
	}
	return printAudit(cmd, sum, func() string { return audit.FormatSummary(sum) })
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	store, cfg, err := openAudit()
	if err != nil {
		return err
	}
	defer store.Close()

	older := pruneOlder
	if older <= 0 {
		older = cfg.Audit.Retention
	}
	if older <= 0 {
		return fmt.Errorf("no retention configured; pass --older-than")
	}

	n, err := store.Prune(context.Background(), time.Now().Add(-older))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d records older than %s\n", n, older)
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	store, _, err := openAudit()
	if err != nil {
		return err
	}
	defer store.Close()

	result := store.Verify(context.Background())
	if auditFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d records verified\n", result.Records)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at seq %d: %s\n", result.ErrorSeq, result.Error)
	}
	if !result.Valid {
		store.Close()
		os.Exit(1)
	}
	return nil
}

func printAudit(cmd *cobra.Command, v any, text func() string) error {
	if auditFormat == "json" {
		out, err := audit.FormatJSON(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), text())
	return nil
}
