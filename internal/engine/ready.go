package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotRunning means the local backend did not answer its health probe.
var ErrNotRunning = errors.New("local inference engine is not running; start it with: ollama serve")

// EnsureReady checks that e is reachable and pulls any of models it lacks.
// Empty and repeated names are skipped. Pull progress is written to w in
// whole 10% steps.
func EnsureReady(ctx context.Context, e Engine, w io.Writer, models ...string) error {
	if !e.IsRunning(ctx) {
		return ErrNotRunning
	}

	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		if e.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		if err := e.PullModel(ctx, model, progressPrinter(w)); err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

func progressPrinter(w io.Writer) func(PullProgress) {
	lastStatus, lastStep := "", -1
	return func(p PullProgress) {
		if p.Total <= 0 {
			if p.Status != lastStatus {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
			lastStatus, lastStep = p.Status, -1
			return
		}
		step := int(p.Completed * 10 / p.Total)
		if p.Status == lastStatus && step == lastStep {
			return
		}
		lastStatus, lastStep = p.Status, step
		fmt.Fprintf(w, "  %s %d%%\n", p.Status, step*10)
	}
}
