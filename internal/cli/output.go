package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// emit writes v as indented JSON in --json mode and calls text otherwise.
func (a *app) emit(w io.Writer, v any, text func(io.Writer) error) error {
	if a.flags.jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

// parseAssignments turns key=value pairs into a map. Values that parse as
// JSON (numbers, booleans, quoted strings) keep their JSON type.
func parseAssignments(pairs []string, flag string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, usageErr("--%s %q: expected key=value", flag, p)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		out[strings.TrimSpace(k)] = parsed
	}
	return out, nil
}

// parseFilter turns key=value pairs into an equality filter.
func parseFilter(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, usageErr("--filter %q: expected key=value", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeRecord(w io.Writer, r types.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch {
	case r.Pending:
		fmt.Fprintf(tw, "pending\tqueued as %s\n", r.QueueID)
	default:
		fmt.Fprintf(tw, "id\t%s\n", r.RemoteItemID)
	}
	if r.WebURL != "" {
		fmt.Fprintf(tw, "url\t%s\n", r.WebURL)
	}
	for _, k := range sortedKeys(r.Fields) {
		fmt.Fprintf(tw, "%s\t%v\n", k, r.Fields[k])
	}
	return tw.Flush()
}

// writeRecords prints one row per record with the given columns, or every
// field name seen when columns is empty.
func writeRecords(w io.Writer, records []types.Record, columns []string) error {
	if len(columns) == 0 {
		seen := map[string]any{}
		for _, r := range records {
			for k := range r.Fields {
				seen[k] = nil
			}
		}
		columns = sortedKeys(seen)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", strings.Join(columns, "\t"))
	for _, r := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			if v, ok := r.Fields[c]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.RemoteItemID, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
