package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/api"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/batch"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

var batchWorkers int

var batchCmd = &cobra.Command{
	Use:   "batch FILE",
	Short: "Execute the independent queries of a YAML batch file",
	Long: `batch runs every query of FILE through the gateway with bounded
concurrency. Queries are independent: there is no transaction spanning
them and a failed query does not stop the others.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 4, "number of queries executed concurrently")
}

// batchResult is one line of batch output. Successful lines always carry
// rows, possibly empty.
type batchResult struct {
	Name  string               `json:"name,omitempty"`
	Rows  *[]gateway.ResultRow `json:"rows,omitempty"`
	Error *api.ErrorPayload    `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	items, err := batch.LoadFile(args[0])
	if err != nil {
		return err
	}

	gw, err := buildGateway(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closePool(gw, cfg.HTTP.ShutdownTimeout)

	return runItems(cmd, gw, items, batchWorkers)
}

func runItems(cmd *cobra.Command, exec batch.Executor, items []batch.Item, workers int) error {
	start := time.Now()
	outcomes, runErr := batch.NewRunner(exec, workers).Run(cmd.Context(), items)
	if err := writeOutcomes(cmd.OutOrStdout(), outcomes); err != nil {
		return err
	}

	logger.Info("batch finished",
		"queries", len(items),
		"executed", len(outcomes),
		"failed", batch.Failed(outcomes, ""),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if runErr != nil {
		return &exitError{err: runErr}
	}
	return nil
}

func writeOutcomes(w io.Writer, outcomes []batch.Outcome) error {
	for _, out := range outcomes {
		line := batchResult{Name: out.Name}
		if out.Err != nil {
			payload := api.NewErrorPayload(out.Err)
			line.Error = &payload
		} else {
			rows := api.NewRowsPayload(out.Response).Rows
			line.Rows = &rows
		}
		if err := writeJSON(w, line); err != nil {
			return fmt.Errorf("write batch output: %w", err)
		}
	}
	return nil
}
