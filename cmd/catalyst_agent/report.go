package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/catalyst/internal/observability"
	"github.com/jonathan/catalyst/internal/pipeline"
	"github.com/jonathan/catalyst/internal/pipeline/steps"
	"github.com/jonathan/catalyst/internal/types"
)

// progressPrinter numbers step starts as they stream in
func progressPrinter(out io.Writer, total int) pipeline.ProgressCallback {
	printer := observability.NewPrinter(out)
	var mu sync.Mutex
	n := 0
	return func(event pipeline.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch event.Type {
		case pipeline.EventStepStarted:
			n++
			printer.PrintProgress(fmt.Sprintf("Step %d/%d", n, total), event.Message)
		case pipeline.EventStepFailed:
			printer.PrintProgress(string(event.Step), "failed: "+event.Message)
		case pipeline.EventStepSkipped:
			printer.PrintProgress(string(event.Step), "skipped: "+event.Message)
		case pipeline.EventRunStarted, pipeline.EventRunCompleted, pipeline.EventRunFailed:
			printer.PrintProgress("", event.Message)
		}
	}
}

// printReport prints the run, its step records, assets, and publication results
func printReport(ctx context.Context, out io.Writer, store pipeline.Store, runID uuid.UUID) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return pipeline.ErrRunNotFound
	}
	records, err := store.ListStepRecords(ctx, runID, nil)
	if err != nil {
		return fmt.Errorf("failed to list step records: %w", err)
	}
	assets, err := store.ListAssets(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	printer := observability.NewPrinter(out)
	printer.PrintRun(run)
	printer.PrintSteps(records)
	printer.PrintAssets(assets)

	if rec, ok := steps.LatestRecords(records)[types.StepSocialPublishing]; ok && rec.Status == types.StepStatusCompleted {
		var result types.PublishingResult
		data, err := json.Marshal(rec.Output)
		if err == nil && json.Unmarshal(data, &result) == nil {
			printer.PrintPublishing(&result)
		}
	}
	return nil
}

func parseRunID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q: %w", arg, err)
	}
	return id, nil
}
