// Package batch executes many independent gateway queries with bounded
// concurrency. Every query still runs exactly once through the gateway, so
// the pool bound and error classification are unchanged.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

const defaultWorkers = 4

// Executor runs a single query. gateway.Gateway implements it.
type Executor interface {
	Execute(ctx context.Context, req gateway.QueryRequest) (gateway.QueryResponse, error)
}

// Item is one named query of a batch.
type Item struct {
	Name    string
	Request gateway.QueryRequest
}

// Outcome is the result of one Item. Exactly one of Response or Err is set.
type Outcome struct {
	Name     string
	Response gateway.QueryResponse
	Err      error
}

// ItemError ties a failure to the batch entry that produced it.
type ItemError struct {
	Index int
	Name  string
	Err   error
}

func (e *ItemError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("query %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("query %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// TaskError accumulates the failures of a batch.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d queries failed:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString(" ")
		b.WriteString(err.Error())
		b.WriteString(";")
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Runner fans a batch out over a fixed number of workers.
type Runner struct {
	exec    Executor
	workers int
}

// NewRunner creates a Runner with the provided concurrency.
func NewRunner(exec Executor, workers int) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{
		exec:    exec,
		workers: workers,
	}
}

// Run executes items and returns their outcomes in input order. The error is
// a *TaskError listing every failed item, or the context error if ctx ended
// before all items were dispatched.
func (r *Runner) Run(ctx context.Context, items []Item) ([]Outcome, error) {
	outcomes := make([]Outcome, len(items))
	if len(items) == 0 {
		return outcomes, nil
	}

	indexCh := make(chan int)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			resp, err := r.exec.Execute(ctx, items[idx].Request)
			outcomes[idx] = Outcome{Name: items[idx].Name, Response: resp, Err: err}
		}
	}

	workers := r.workers
	if workers > len(items) {
		workers = len(items)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

	dispatched := 0
Loop:
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case indexCh <- i:
			dispatched++
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()

	if dispatched < len(items) {
		return outcomes[:dispatched], ctx.Err()
	}

	var taskErr TaskError
	for i, out := range outcomes {
		if out.Err == nil {
			continue
		}
		taskErr.append(&ItemError{Index: i, Name: out.Name, Err: out.Err})
	}
	return outcomes, taskErr.asError()
}

// Failed reports how many outcomes carry an error of the given kind. An empty
// kind counts every failure.
func Failed(outcomes []Outcome, kind gateway.Kind) int {
	n := 0
	for _, out := range outcomes {
		if out.Err == nil {
			continue
		}
		if kind == "" || gateway.KindOf(out.Err) == kind {
			n++
		}
	}
	return n
}
