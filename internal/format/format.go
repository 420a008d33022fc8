// Package format renders row sets as an aligned table, newline-delimited JSON
// objects or CSV with a header row.
package format

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
)

// Mode selects an output rendering.
type Mode string

const (
	Table Mode = "table"
	JSON  Mode = "json"
	CSV   Mode = "csv"
)

// ParseMode validates a --format value. Empty means Table.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Table:
		return Table, nil
	case JSON, CSV:
		return Mode(s), nil
	default:
		return "", cli.Usagef("unknown format %q (want table, json or csv)", s)
	}
}

// Result is a row set with named columns. Each row holds one value per
// column, in column order.
type Result struct {
	Columns []string
	Rows    [][]any
}

// FromRecords builds a Result from decoded JSON objects. Columns are the
// union of keys, in the order given by keys when non-empty, otherwise sorted.
func FromRecords(records []map[string]any, keys ...string) *Result {
	cols := keys
	if len(cols) == 0 {
		seen := make(map[string]bool)
		for _, rec := range records {
			for k := range rec {
				if !seen[k] {
					seen[k] = true
					cols = append(cols, k)
				}
			}
		}
		sort.Strings(cols)
	}

	res := &Result{Columns: cols, Rows: make([][]any, 0, len(records))}
	for _, rec := range records {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = rec[c]
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

// Fields renders one record vertically: a field and a value column, one row
// per key in sorted order.
func Fields(rec map[string]any) *Result {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &Result{Columns: []string{"field", "value"}, Rows: make([][]any, 0, len(keys))}
	for _, k := range keys {
		res.Rows = append(res.Rows, []any{k, rec[k]})
	}
	return res
}

// Print renders r in the mode named by the command's --format option.
func Print(w io.Writer, a *args.Args, r *Result) error {
	mode, err := ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	return Write(w, mode, r)
}

// Write renders r to w in the given mode.
func Write(w io.Writer, mode Mode, r *Result) error {
	switch mode {
	case JSON:
		return writeJSON(w, r)
	case CSV:
		return writeCSV(w, r)
	default:
		return writeTable(w, r)
	}
}

func writeTable(w io.Writer, r *Result) error {
	if len(r.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(r.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range r.Rows {
		table.Append(stringRow(row))
	}
	table.Render()

	_, err := fmt.Fprintf(w, "(%d %s)\n", len(r.Rows), plural(len(r.Rows), "row", "rows"))
	return err
}

func writeJSON(w io.Writer, r *Result) error {
	for _, row := range r.Rows {
		line, err := marshalRow(r.Columns, row)
		if err != nil {
			return err
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// marshalRow encodes one row as a JSON object with keys in column order.
func marshalRow(cols []string, row []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(jsonValue(row[i]))
		if err != nil {
			return nil, fmt.Errorf("failed to encode column %s: %w", c, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeCSV(w io.Writer, r *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Columns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := cw.Write(stringRow(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func stringRow(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = Value(v)
	}
	return out
}

// Value renders a single cell. Nil is empty, byte slices are text, and
// nested objects or arrays are compact JSON.
func Value(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
