// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// OutputMode defines the output format for CLI commands
type OutputMode string

const (
	// ModeJSON outputs data as JSON
	ModeJSON OutputMode = "json"
	// ModeTable outputs data as ASCII table
	ModeTable OutputMode = "table"
)

// Formatter provides consistent output formatting across CLI commands
type Formatter interface {
	// PrintJSON outputs data as JSON to stdout
	PrintJSON(data any) error

	// PrintTable outputs data as ASCII table to stdout
	PrintTable(headers []string, rows [][]string) error

	// PrintHeadline outputs a styled title line (table mode only)
	PrintHeadline(title string) error

	// PrintKeyValues outputs aligned "key: value" pairs (table mode only)
	PrintKeyValues(pairs [][2]string) error

	// PrintSummary outputs a summary message to stdout (unless quiet mode)
	PrintSummary(message string) error

	// PrintError outputs an error and optional hints to stderr (or JSON to
	// stdout in JSON mode)
	PrintError(err error, code string, suggestions []string) error

	// Mode returns the active output mode
	Mode() OutputMode
}

var headlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

// formatter implements the Formatter interface
type formatter struct {
	stdout io.Writer
	stderr io.Writer
	mode   OutputMode
	quiet  bool
	color  bool
}

// New creates a new Formatter
func New(stdout, stderr io.Writer, mode OutputMode, quiet, color bool) Formatter {
	return &formatter{
		stdout: stdout,
		stderr: stderr,
		mode:   mode,
		quiet:  quiet,
		color:  color,
	}
}

func (f *formatter) Mode() OutputMode { return f.mode }

// PrintJSON outputs data as JSON to stdout
func (f *formatter) PrintJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintTable outputs data as ASCII table to stdout
func (f *formatter) PrintTable(headers []string, rows [][]string) error {
	if f.mode == ModeJSON {
		// In JSON mode, convert table to structured data
		items := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			item := make(map[string]string)
			for i, header := range headers {
				if i < len(row) {
					item[header] = row[i]
				}
			}
			items = append(items, item)
		}
		return f.PrintJSON(items)
	}

	w := tabwriter.NewWriter(f.stdout, 0, 0, 2, ' ', 0)

	if f.color {
		headerLine := make([]string, len(headers))
		for i, h := range headers {
			headerLine[i] = color.New(color.Bold).Sprint(strings.ToUpper(h))
		}
		if _, err := fmt.Fprintln(w, strings.Join(headerLine, "\t")); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}

	return w.Flush()
}

// PrintHeadline outputs a title line. It is suppressed in JSON and quiet
// modes.
func (f *formatter) PrintHeadline(title string) error {
	if f.quiet || f.mode == ModeJSON {
		return nil
	}
	if f.color {
		title = headlineStyle.Render(title)
	}
	_, err := fmt.Fprintln(f.stdout, title)
	return err
}

// PrintKeyValues outputs aligned pairs. It is suppressed in JSON and quiet
// modes.
func (f *formatter) PrintKeyValues(pairs [][2]string) error {
	if f.quiet || f.mode == ModeJSON {
		return nil
	}
	w := tabwriter.NewWriter(f.stdout, 0, 0, 2, ' ', 0)
	for _, p := range pairs {
		key := p[0] + ":"
		if f.color {
			key = color.New(color.Faint).Sprint(key)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", key, p[1]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// PrintSummary outputs a summary message to stdout (unless quiet mode)
func (f *formatter) PrintSummary(message string) error {
	if f.quiet {
		return nil
	}

	if f.mode == ModeJSON {
		// In JSON mode, summary goes to stderr (not stdout)
		_, err := fmt.Fprintln(f.stderr, message)
		return err
	}

	if f.color {
		_, err := color.New(color.FgGreen).Fprintln(f.stdout, message)
		return err
	}

	_, err := fmt.Fprintln(f.stdout, message)
	return err
}

// PrintError outputs an error to stderr (or JSON to stdout in JSON mode)
func (f *formatter) PrintError(err error, code string, suggestions []string) error {
	if err == nil {
		return nil
	}

	if f.mode == ModeJSON {
		payload := map[string]any{
			"success": false,
			"error":   err.Error(),
		}
		if code != "" {
			payload["code"] = code
		}
		if len(suggestions) > 0 {
			payload["suggestions"] = suggestions
		}
		return f.PrintJSON(payload)
	}

	var writeErr error
	if f.color {
		_, writeErr = color.New(color.FgRed).Fprintf(f.stderr, "Error: %v\n", err)
	} else {
		_, writeErr = fmt.Fprintf(f.stderr, "Error: %v\n", err)
	}
	if writeErr != nil || len(suggestions) == 0 {
		return writeErr
	}

	if _, err := fmt.Fprintln(f.stderr, "\nSuggestions:"); err != nil {
		return err
	}
	for _, s := range suggestions {
		if _, err := fmt.Fprintf(f.stderr, "  - %s\n", s); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMode checks if the output mode is valid
func ValidateMode(mode string) error {
	switch OutputMode(mode) {
	case ModeJSON, ModeTable:
		return nil
	default:
		return fmt.Errorf("invalid output mode: %s (must be 'json' or 'table')", mode)
	}
}

// ParseMode converts a string to OutputMode
func ParseMode(mode string) OutputMode {
	switch strings.ToLower(mode) {
	case "json":
		return ModeJSON
	default:
		return ModeTable
	}
}

// Score renders a similarity in [0,1] with four decimals.
func Score(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// Percent renders a ratio in [0,1] as a whole percentage.
func Percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
