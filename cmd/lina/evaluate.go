package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/lina/internal/clients"
	"github.com/Kocoro-lab/lina/internal/decision"
	"github.com/Kocoro-lab/lina/internal/features"
	"github.com/Kocoro-lab/lina/internal/server"
)

var evaluateJSON bool

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [client-id...]",
	Short: "Run the credit decision for clients in the dataset",
	Long: `Evaluate every client in the reference dataset, or only the given ids,
and print the fraud class, risk class, decision and tier.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "print one JSON object per client")
	rootCmd.AddCommand(evaluateCmd)
}

type evaluator interface {
	Evaluate(attrs features.Attributes) (*decision.Result, error)
}

// evaluation is one output row.
type evaluation struct {
	ID     string           `json:"id"`
	Name   string           `json:"nome,omitempty"`
	Result *decision.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	defer logger.Sync()

	svc, err := server.NewDecisionService(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("start decision service: %w", err)
	}
	defer svc.Close()

	return evaluateClients(cmd.Context(), svc.Store, svc.Pipeline, args, cmd.OutOrStdout(), evaluateJSON)
}

func evaluateClients(ctx context.Context, store clients.Store, eval evaluator, ids []string, out io.Writer, asJSON bool) error {
	if len(ids) == 0 {
		list, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("list clients: %w", err)
		}
		for _, s := range list {
			ids = append(ids, s.ID)
		}
	}

	rows := make([]evaluation, 0, len(ids))
	for _, id := range ids {
		row := evaluation{ID: id}
		c, err := store.Get(ctx, id)
		if err != nil {
			row.Error = err.Error()
			rows = append(rows, row)
			continue
		}
		row.Name = c.Name
		res, err := eval.Evaluate(c.Attributes())
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Result = res
		}
		rows = append(rows, row)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOME\tFRAUDE\tRISCO\tDECISAO\tOFERTA")
	for _, r := range rows {
		if r.Result == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\tERRO: %s\t-\n", r.ID, dash(r.Name), r.Error)
			continue
		}
		risk := "-"
		if r.Result.Risk != nil {
			risk = fmt.Sprintf("%s (%.2f)", r.Result.Risk.Class, r.Result.Risk.ProbGood)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s (%.4f)\t%s\t%s\t%s\n",
			r.ID, dash(r.Name),
			r.Result.Fraud.Class, r.Result.Fraud.Score,
			risk, r.Result.Decision, dash(string(r.Result.Tier)))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
