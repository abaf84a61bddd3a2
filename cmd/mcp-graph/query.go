package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/api"
)

var queryParams string

var queryCmd = &cobra.Command{
	Use:   "query CYPHER",
	Short: "Execute one query and print its rows as JSON",
	Example: `  mcp-graph query 'MATCH (p:Person) RETURN count(p) AS total'
  mcp-graph query 'MATCH (p:Person) WHERE p.age > $min RETURN p.name AS name' --params '{"min": 30}'`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryParams, "params", "p", "", "query parameters as a JSON object")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	payload, err := buildQueryPayload(args[0], queryParams)
	if err != nil {
		return writeFailure(cmd.OutOrStdout(), api.MalformedPayloadError(err))
	}

	gw, err := buildGateway(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closePool(gw, cfg.HTTP.ShutdownTimeout)

	resp, err := gw.Execute(ctx, payload.ToRequest())
	if err != nil {
		return writeFailure(cmd.OutOrStdout(), api.NewErrorPayload(err))
	}
	return writeJSON(cmd.OutOrStdout(), api.NewRowsPayload(resp))
}

// buildQueryPayload reuses the wire decoder so parameters bind exactly as
// they do over HTTP.
func buildQueryPayload(query, params string) (api.QueryPayload, error) {
	doc := map[string]json.RawMessage{}
	raw, err := json.Marshal(query)
	if err != nil {
		return api.QueryPayload{}, err
	}
	doc["query"] = raw
	if params != "" {
		doc["params"] = json.RawMessage(params)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return api.QueryPayload{}, fmt.Errorf("%w: %w", api.ErrMalformedPayload, err)
	}
	return api.DecodeQueryPayloadBytes(body)
}

func writeFailure(w io.Writer, payload api.ErrorPayload) error {
	if err := writeJSON(w, payload); err != nil {
		return err
	}
	return &exitError{err: fmt.Errorf("%s: %s", payload.ErrorKind, payload.Message)}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
