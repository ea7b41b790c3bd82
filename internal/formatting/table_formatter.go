package formatting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/invoke"
)

const maxCellWidth = 80

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) *TableFormatter {
	return &TableFormatter{options: options}
}

// FormatResult prints the terminal state, the outputs and the message of a
// single invocation.
func (f *TableFormatter) FormatResult(result *api.InvocationResult) error {
	out := f.options.writer()
	if result == nil {
		f.printEmpty(out, "No result")
		return nil
	}

	if !f.options.Quiet {
		fmt.Fprintf(out, "%s %s %s (%s)\n",
			text.FgHiBlue.Sprint("Workflow"),
			text.FgHiWhite.Sprint(result.Location),
			stateColor(result.State).Sprint(result.State),
			result.Duration.Round(time.Millisecond))
	}

	if len(result.Outputs) > 0 {
		t := f.createTable(out)
		t.AppendHeader(table.Row{header("OUTPUT"), header("VALUE")})
		for _, key := range sortedKeys(result.Outputs) {
			t.AppendRow(table.Row{text.FgHiCyan.Sprint(key), truncate(cellValue(result.Outputs[key]), maxCellWidth)})
		}
		t.Render()
	} else if result.Succeeded() && !f.options.Quiet {
		f.printEmpty(out, "No outputs")
	}

	if result.Message != "" {
		fmt.Fprintf(out, "%s\n%s\n", text.FgRed.Sprint("Message:"), result.Message)
	}
	return nil
}

// FormatOutcomes prints one row per request of a batch.
func (f *TableFormatter) FormatOutcomes(outcomes []invoke.Outcome) error {
	out := f.options.writer()
	if len(outcomes) == 0 {
		f.printEmpty(out, "No invocations")
		return nil
	}

	t := f.createTable(out)
	t.AppendHeader(table.Row{header("#"), header("TARGET"), header("STATE"), header("DURATION"), header("DETAIL")})

	failed := 0
	for i, o := range outcomes {
		state, duration, detail := "-", "-", ""
		if o.Result != nil {
			state = stateColor(o.Result.State).Sprint(o.Result.State)
			duration = o.Result.Duration.Round(time.Millisecond).String()
			if o.Result.Succeeded() {
				detail = truncate(cellValue(o.Result.Outputs), maxCellWidth)
			}
		}
		if o.Err != nil {
			failed++
			detail = text.FgRed.Sprint(truncate(o.Err.Error(), maxCellWidth))
		}
		t.AppendRow(table.Row{i + 1, o.Request.Target, state, duration, detail})
	}
	t.Render()

	fmt.Fprintf(out, "\n%s %s %s %s\n",
		text.FgHiBlue.Sprint("Total:"),
		text.FgHiWhite.Sprint(len(outcomes)),
		text.FgHiBlue.Sprint("failed:"),
		text.FgHiWhite.Sprint(failed))
	return nil
}

// FormatParameters prints the declared inputs and outputs of a workflow.
func (f *TableFormatter) FormatParameters(inputs, outputs []api.Parameter) error {
	out := f.options.writer()

	if len(inputs) == 0 {
		f.printEmpty(out, "No inputs declared")
	} else {
		t := f.createTable(out)
		t.SetTitle("Inputs")
		t.AppendHeader(table.Row{header("NAME"), header("TYPE"), header("REQUIRED"), header("DEFAULT"), header("DESCRIPTION")})
		for _, p := range inputs {
			required := ""
			if p.Required {
				required = text.FgYellow.Sprint("yes")
			}
			t.AppendRow(table.Row{text.FgHiCyan.Sprint(p.Name), p.Type, required, cellValue(p.Default), truncate(p.Description, maxCellWidth)})
		}
		t.Render()
	}

	if len(outputs) == 0 {
		f.printEmpty(out, "No outputs declared")
		return nil
	}
	t := f.createTable(out)
	t.SetTitle("Outputs")
	t.AppendHeader(table.Row{header("NAME"), header("TYPE"), header("DESCRIPTION")})
	for _, p := range outputs {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(p.Name), p.Type, truncate(p.Description, maxCellWidth)})
	}
	t.Render()
	return nil
}

// FormatHandles prints the handles currently cached by the registry.
func (f *TableFormatter) FormatHandles(handles []callee.HandleInfo) error {
	out := f.options.writer()
	if len(handles) == 0 {
		f.printEmpty(out, "No workflows cached")
		return nil
	}

	t := f.createTable(out)
	t.AppendHeader(table.Row{header("LOCATION"), header("STATE"), header("WAITING"), header("TEMPORARY"), header("LAST USED")})
	for _, h := range handles {
		temporary := ""
		if h.DiscardAfterUse {
			temporary = "yes"
		}
		t.AppendRow(table.Row{h.Location, h.State, h.Waiting, temporary, h.LastUsed.Format(time.RFC3339)})
	}
	t.Render()
	return nil
}

// FormatHistory prints tracked invocations, newest first.
func (f *TableFormatter) FormatHistory(history []invoke.Invocation) error {
	out := f.options.writer()
	if len(history) == 0 {
		f.printEmpty(out, "No invocations recorded")
		return nil
	}

	t := f.createTable(out)
	t.AppendHeader(table.Row{header("ID"), header("TARGET"), header("STATUS"), header("STATE"), header("DURATION"), header("ERROR")})
	for _, inv := range history {
		errText := ""
		if inv.Error != nil {
			errText = truncate(*inv.Error, maxCellWidth)
		}
		t.AppendRow(table.Row{
			inv.ID,
			inv.Target,
			inv.Status,
			inv.State,
			(time.Duration(inv.DurationMs) * time.Millisecond).String(),
			errText,
		})
	}
	t.Render()
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) printEmpty(out io.Writer, message string) {
	if f.options.Quiet {
		return
	}
	fmt.Fprintf(out, "%s\n", text.FgYellow.Sprint(message))
}

func header(s string) string {
	return text.FgHiCyan.Sprint(s)
}

func stateColor(state api.TerminalState) text.Colors {
	switch state {
	case api.StateExecuted:
		return text.Colors{text.FgGreen}
	case api.StateIdle:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgYellow}
	}
}
