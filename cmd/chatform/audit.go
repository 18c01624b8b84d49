package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatform/chatform/internal/audit"
	"github.com/chatform/chatform/internal/models"
)

var (
	auditLimit int
	auditJSON  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List committed resolutions",
	Long: `List the audit records of committed updates and justifications,
newest last.

Examples:
  chatform audit --limit 20
  chatform audit --json`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "most recent records to show (0 for all)")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print records as JSON")
}

func runAudit(cmd *cobra.Command, args []string) error {
	sink, err := audit.Open(cfg.Audit.Format, cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer sink.Close()

	recs, err := sink.List(cmd.Context(), auditLimit)
	if err != nil {
		return err
	}

	if auditJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No audit records.")
		return nil
	}
	printAudit(recs)
	return nil
}

func printAudit(recs []models.AuditRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMITTED\tRULE\tACTION\tFIELD\tDETAIL")
	for _, r := range recs {
		detail := r.Explanation
		if r.Action == models.ActionUpdate {
			detail = fmt.Sprintf("%s -> %s", models.FormatValue(r.OldValue), models.FormatValue(r.NewValue))
		}
		if r.Escalated {
			detail += " (escalated)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.CommittedAt.Local().Format("2006-01-02 15:04:05"), r.Rule, r.Action, r.Field, detail)
	}
	w.Flush()
}
