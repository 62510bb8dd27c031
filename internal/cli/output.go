package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer writes command results. Results are printed through their JSON
// field names, so text output uses the same keys as the JSON bridge.
type Printer struct {
	format OutputFormat
	writer io.Writer
}

func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(strings.ToLower(format)),
		writer: writer,
	}
}

// Print writes v as indented JSON or as sorted "key: value" lines.
func (p *Printer) Print(v any) error {
	switch p.format {
	case OutputFormatJSON:
		enc := json.NewEncoder(p.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputFormatText, "":
		fields, err := flatten(v)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(p.writer, "%s: %s\n", k, formatValue(fields[k]))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func flatten(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return fields, nil
}

func formatValue(v any) string {
	if v == nil {
		return "<none>"
	}
	return fmt.Sprint(v)
}
