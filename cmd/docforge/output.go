package main

import (
	"fmt"
	"io"
	"os"

	"docforge/internal/domain/pipeline"
	"docforge/internal/orchestrator"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// newMarkdownRenderer sizes word wrap to the terminal.
func newMarkdownRenderer() (*glamour.TermRenderer, error) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w-4, 120)
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return renderer, nil
}

// printDocumentation renders each successful record as markdown.
func printDocumentation(w io.Writer, records pipeline.RecordSet) error {
	renderer, err := newMarkdownRenderer()
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s\n", bold(cyan("── "+r.UnitName)))
		if !r.OK() {
			fmt.Fprintf(w, "%s %s\n\n", red("failed:"), r.Error)
			continue
		}
		rendered, err := renderer.Render(r.Body)
		if err != nil {
			return err
		}
		fmt.Fprint(w, rendered)
	}
	return nil
}

// printEvent writes one progress line.
func printEvent(w io.Writer, e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventExtracted:
		fmt.Fprintf(w, "%s %d source files\n", cyan("extracted"), e.Total)
	case orchestrator.EventUnitDocumented:
		status := green("ok")
		if e.Status == pipeline.StatusFailed {
			status = red("failed")
		}
		fmt.Fprintf(w, "%s [%d/%d] %s %s", cyan("documented"), e.Completed, e.Total, e.Unit, status)
		if e.Error != "" {
			fmt.Fprintf(w, " %s", gray(e.Error))
		}
		fmt.Fprintln(w)
	case orchestrator.EventHandoffStarted:
		fmt.Fprintf(w, "%s %d records to code generation\n", cyan("handing off"), e.Total)
	case orchestrator.EventHandoffRetry:
		fmt.Fprintf(w, "%s attempt %d failed, retrying in %s: %s\n", yellow("retry"), e.Attempt, e.Delay, gray(e.Error))
	case orchestrator.EventFailed:
		fmt.Fprintf(w, "%s %s stage: %s\n", red("failed"), e.Stage, e.Error)
	}
}

// printOutcome summarizes a bundle. Partial runs are visibly distinct from
// complete ones.
func printOutcome(w io.Writer, result pipeline.ResultBundle, outcome pipeline.Outcome) {
	boilerplate := result.Count(pipeline.KindBoilerplate)
	tests := result.Count(pipeline.KindTest)
	failed := 0
	for _, a := range result.Artifacts {
		if !a.OK() {
			failed++
		}
	}

	switch outcome {
	case pipeline.OutcomePartial:
		fmt.Fprintf(w, "%s %d boilerplate, %d tests, %d failed\n", bold(yellow("⚠ succeeded with omissions")), boilerplate, tests, failed)
		for _, a := range result.Artifacts {
			if !a.OK() {
				fmt.Fprintf(w, "  %s %s (%s): %s\n", red("✗"), a.UnitName, a.Kind, a.Error)
			}
		}
	default:
		fmt.Fprintf(w, "%s %d boilerplate, %d tests\n", bold(green("✓ succeeded")), boilerplate, tests)
	}
}
