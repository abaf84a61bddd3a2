package generator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/batch"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

// WriteStatements serialises statements as a batch file that the batch
// command can replay.
func WriteStatements(statements []Statement, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	queries := make([]batch.FileQuery, len(statements))
	for i, s := range statements {
		queries[i] = batch.FileQuery{Name: s.Name, Query: s.Query, Params: s.Params}
	}
	return batch.WriteFile(path, queries)
}

// Items converts statements into batch items.
func Items(statements []Statement) []batch.Item {
	items := make([]batch.Item, len(statements))
	for i, s := range statements {
		items[i] = batch.Item{Name: s.Name, Request: gateway.NewQueryRequest(s.Query, s.Params)}
	}
	return items
}
