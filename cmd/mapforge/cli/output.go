// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// Output renders command results. Results are JSON when --json is
// given or when the destination is not a terminal, so scripts piping
// the CLI get machine-readable output without asking for it.
type Output struct {
	JSON bool

	// Writer is the destination. Nil means stdout.
	Writer io.Writer
}

// AddFlags registers --json.
func (o *Output) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&o.JSON, "json", false, "output as JSON (default when stdout is not a terminal)")
}

func (o *Output) writer() io.Writer {
	if o.Writer == nil {
		return os.Stdout
	}
	return o.Writer
}

// IsJSON reports whether results will be written as JSON.
func (o *Output) IsJSON() bool {
	if o.JSON {
		return true
	}
	file, ok := o.writer().(*os.File)
	return !ok || !term.IsTerminal(int(file.Fd()))
}

// Emit writes value as indented JSON, or calls human with a tab
// writer for terminal output.
func (o *Output) Emit(value any, human func(w *tabwriter.Writer)) error {
	if o.IsJSON() {
		encoder := json.NewEncoder(o.writer())
		encoder.SetIndent("", "  ")
		return encoder.Encode(normalizeNilSlice(value))
	}
	tw := tabwriter.NewWriter(o.writer(), 2, 0, 2, ' ', 0)
	human(tw)
	return tw.Flush()
}

// normalizeNilSlice returns an empty slice of the same type if value
// is a nil slice, so that JSON serialization produces [] instead of
// null.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}

// Maps renders a list of map records as a table.
func Maps(w *tabwriter.Writer, records []any) {
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tVERSION\tMISSIONS\tSIZE\tMODIFIED\tIDENTIFIER")
	for _, entry := range records {
		record, _ := entry.(map[string]any)
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			Int(record, "id"),
			Str(record, "name"),
			Str(record, "owner"),
			Int(record, "version"),
			Int(record, "mission_count"),
			Bytes(Int(record, "size")),
			Age(Str(record, "modified_at")),
			Str(record, "identifier"),
		)
	}
}

// Map renders one map record as key/value lines.
func Map(w *tabwriter.Writer, record map[string]any) {
	fmt.Fprintf(w, "id:\t%d\n", Int(record, "id"))
	fmt.Fprintf(w, "identifier:\t%s\n", Str(record, "identifier"))
	fmt.Fprintf(w, "name:\t%s\n", Str(record, "name"))
	fmt.Fprintf(w, "owner:\t%s\n", Str(record, "owner"))
	fmt.Fprintf(w, "version:\t%d\n", Int(record, "version"))
	fmt.Fprintf(w, "missions:\t%d\n", Int(record, "mission_count"))
	fmt.Fprintf(w, "size:\t%s\n", Bytes(Int(record, "size")))
	fmt.Fprintf(w, "content hash:\t%s\n", Str(record, "content_hash"))
	fmt.Fprintf(w, "created:\t%s\n", Str(record, "created_at"))
	fmt.Fprintf(w, "modified:\t%s (%s)\n", Str(record, "modified_at"), Age(Str(record, "modified_at")))
}

// Str returns payload[key] as a string, or "".
func Str(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}

// Int returns payload[key] as an int64, or 0.
func Int(payload map[string]any, key string) int64 {
	switch value := payload[key].(type) {
	case int64:
		return value
	case uint64:
		return int64(value)
	case int:
		return int64(value)
	}
	return 0
}

// List returns payload[key] as a list, or nil.
func List(payload map[string]any, key string) []any {
	value, _ := payload[key].([]any)
	return value
}

// Bytes formats a byte count for people.
func Bytes(size int64) string {
	if size < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(size))
}

// Age formats an RFC 3339 timestamp relative to now.
func Age(timestamp string) string {
	parsed, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return timestamp
	}
	return humanize.Time(parsed)
}

// NonNil returns list, or an empty slice when list is nil.
func NonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
