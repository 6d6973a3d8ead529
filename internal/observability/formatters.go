// Package observability provides logging and formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/catalyst/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRun outputs a summary of a run and its snapshot
func (p *Printer) PrintRun(run *types.Run) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Product:  %s\n", run.ProductName))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", run.Status))
	if run.Category != "" {
		category := run.Category
		if run.Subcategory != "" {
			category += " / " + run.Subcategory
		}
		sb.WriteString(fmt.Sprintf("Category: %s\n", category))
	}
	if len(run.Platforms) > 0 {
		names := make([]string, 0, len(run.Platforms))
		for _, pl := range run.Platforms {
			names = append(names, string(pl))
		}
		sb.WriteString(fmt.Sprintf("Targets:  %s\n", strings.Join(names, ", ")))
	}
	if score, ok := run.PerformanceSnapshot["engagement_score"]; ok {
		sb.WriteString(fmt.Sprintf("Score:    %v\n", score))
	}

	p.printBox("CAMPAIGN RUN", sb.String())
}

// PrintSteps outputs one line per step record, oldest first
func (p *Printer) PrintSteps(records []types.StepRecord) {
	if len(records) == 0 {
		return
	}

	var sb strings.Builder
	for _, rec := range records {
		marker := "✓"
		switch rec.Status {
		case types.StepStatusFailed:
			marker = "✗"
		case types.StepStatusRunning, types.StepStatusPending:
			marker = "…"
		}
		line := fmt.Sprintf("%s %-24s #%d", marker, rec.Step, rec.Attempt)
		if rec.DurationMs != nil {
			line += fmt.Sprintf("  %dms", *rec.DurationMs)
		}
		if rec.ErrorKind != "" {
			line += "  " + string(rec.ErrorKind)
		}
		sb.WriteString(line + "\n")
	}

	p.printBox("STEP RECORDS", sb.String())
}

// PrintAssets outputs the assets of a run grouped by type
func (p *Printer) PrintAssets(assets []types.Asset) {
	if len(assets) == 0 {
		return
	}

	byType := make(map[types.AssetType][]types.Asset)
	for _, a := range assets {
		byType[a.Type] = append(byType[a.Type], a)
	}
	kinds := make([]string, 0, len(byType))
	for k := range byType {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var sb strings.Builder
	for _, k := range kinds {
		group := byType[types.AssetType(k)]
		sb.WriteString(fmt.Sprintf("%s (%d)\n", k, len(group)))
		count := min(len(group), maxItemsToShow)
		for i := 0; i < count; i++ {
			a := group[i]
			label := a.FileRef
			if label == "" {
				label = assetHeadline(a)
			}
			sb.WriteString(fmt.Sprintf("  • %s\n", label))
		}
		if len(group) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(group)-maxItemsToShow))
		}
	}

	p.printBox("GENERATED ASSETS", sb.String())
}

// PrintPublishing outputs the per-platform publication results
func (p *Printer) PrintPublishing(result *types.PublishingResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Succeeded: %d  Failed: %d\n\n", result.Succeeded, result.Failed))
	for _, r := range result.Results {
		detail := r.PostID
		if r.Status == types.PublishStatusError {
			detail = r.Message
		}
		sb.WriteString(fmt.Sprintf("  %-9s %-12s %-5s %s\n", r.Platform, r.Kind, r.Media, detail))
	}

	p.printBox("PUBLISHING", sb.String())
}

// PrintProgress writes a single progress line
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(step, message string) {
	if step == "" {
		fmt.Fprintf(p.out, "  %s\n", message)
		return
	}
	fmt.Fprintf(p.out, "  [%s] %s\n", step, message)
}

func assetHeadline(a types.Asset) string {
	for _, key := range []string{"title", "caption", "prompt", "script"} {
		if v, ok := a.Content[key].(string); ok && v != "" {
			return v
		}
	}
	return a.ID.String()
}
