package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed debug log line.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	RunID     string         `json:"run_id,omitempty"`
	Workflow  string         `json:"workflow,omitempty"`
	Target    string         `json:"target,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter narrows entries; zero-valued fields do not filter.
// Criteria are combined with AND.
type LogFilter struct {
	// Level keeps entries at or above this level.
	Level     string
	StartTime time.Time
	EndTime   time.Time
	RunID     string
	Workflow  string
	Target    string
	// MessageContains is a case-sensitive substring match on the message.
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var standardFields = map[string]bool{
	"time": true, "level": true, "msg": true,
	"run_id": true, "workflow": true, "target": true,
}

// AggregateLogs parses {stateDir}/debug.log, skipping malformed lines.
// Entries are returned in timestamp order.
func AggregateLogs(stateDir string) ([]LogEntry, error) {
	file, err := os.Open(filepath.Join(stateDir, LogFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no debug log found in %s: %w", stateDir, err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	entries, err := parseEntries(file)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func parseEntries(r io.Reader) ([]LogEntry, error) {
	const maxScanTokenSize = 1024 * 1024
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	var entries []LogEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}
	if ts, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Timestamp = t
		}
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	entry.RunID, _ = raw["run_id"].(string)
	entry.Workflow, _ = raw["workflow"].(string)
	entry.Target, _ = raw["target"].(string)

	for k, v := range raw {
		if !standardFields[k] {
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching every criterion in filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}
	var out []LogEntry
	for _, entry := range entries {
		if matchesFilter(entry, filter) {
			out = append(out, entry)
		}
	}
	return out
}

func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if filter.Level != "" {
		want, wantOK := levelOrder[strings.ToUpper(filter.Level)]
		got, gotOK := levelOrder[entry.Level]
		if wantOK && gotOK && got < want {
			return false
		}
	}
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.RunID != "" && entry.RunID != filter.RunID {
		return false
	}
	if filter.Workflow != "" && entry.Workflow != filter.Workflow {
		return false
	}
	if filter.Target != "" && entry.Target != filter.Target {
		return false
	}
	if filter.MessageContains != "" && !strings.Contains(entry.Message, filter.MessageContains) {
		return false
	}
	return true
}

// ExportLogEntries writes entries to outputPath as json, text or csv.
func ExportLogEntries(entries []LogEntry, outputPath string, format string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return WriteLogEntries(file, entries, format)
}

// WriteLogEntries writes entries to w as json, text or csv.
func WriteLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text", "":
		return exportText(w, entries)
	case "csv":
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}
}

// exportText writes "[TIMESTAMP] LEVEL - MESSAGE (context) {attrs}" lines.
func exportText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		parts := []string{
			fmt.Sprintf("[%s]", entry.Timestamp.Format("2006-01-02 15:04:05.000")),
			entry.Level, "-", entry.Message,
		}

		var ctx []string
		if entry.RunID != "" {
			ctx = append(ctx, "run="+entry.RunID)
		}
		if entry.Workflow != "" {
			ctx = append(ctx, "workflow="+entry.Workflow)
		}
		if entry.Target != "" {
			ctx = append(ctx, "target="+entry.Target)
		}
		if len(ctx) > 0 {
			parts = append(parts, "("+strings.Join(ctx, ", ")+")")
		}
		if len(entry.Attrs) > 0 {
			b, _ := json.Marshal(entry.Attrs)
			parts = append(parts, string(b))
		}

		if _, err := io.WriteString(w, strings.Join(parts, " ")+"\n"); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"timestamp", "level", "message", "run_id", "workflow", "target", "attrs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range entries {
		attrs := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrs = string(b)
			}
		}
		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level, entry.Message, entry.RunID, entry.Workflow, entry.Target, attrs,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
