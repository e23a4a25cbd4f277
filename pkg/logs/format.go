package logs

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// ANSI color codes for service label prefixes.
var colors = []string{
	"\033[36m", // cyan
	"\033[33m", // yellow
	"\033[32m", // green
	"\033[35m", // magenta
	"\033[34m", // blue
	"\033[31m", // red
	"\033[96m", // bright cyan
	"\033[93m", // bright yellow
	"\033[92m", // bright green
	"\033[95m", // bright magenta
}

const colorReset = "\033[0m"

// FormatOptions configures how terminal log output is formatted.
type FormatOptions struct {
	// ShowTimestamps prefixes each line with the entry's timestamp.
	ShowTimestamps bool

	// NoColor disables ANSI color codes in the output.
	NoColor bool
}

// FormatEntries writes entries to the writer with color-coded service
// prefixes. Entries are sorted by timestamp before writing; entries with
// equal timestamps keep their original order.
func FormatEntries(w io.Writer, entries []Entry, opts FormatOptions) {
	if len(entries) == 0 {
		return
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Find the longest label for alignment.
	maxLen := 0
	for _, entry := range sorted {
		if len(entryLabel(entry)) > maxLen {
			maxLen = len(entryLabel(entry))
		}
	}

	colorMap := buildColorMap(sorted, opts.NoColor)

	for _, entry := range sorted {
		writeEntry(w, entry, entryLabel(entry), maxLen, colorMap, opts)
	}
}

// FormatStream reads from a Stream and writes formatted entries to the
// writer until the stream ends. This function blocks until the stream is
// exhausted or an error occurs.
func FormatStream(w io.Writer, stream *Stream, opts FormatOptions) error {
	colorMap := map[string]string{}
	colorIdx := 0
	maxLen := 0

	for {
		select {
		case entry, ok := <-stream.Entries:
			if !ok {
				return nil // stream closed normally
			}

			label := entryLabel(entry)

			if !opts.NoColor {
				if _, exists := colorMap[label]; !exists {
					colorMap[label] = colors[colorIdx%len(colors)]
					colorIdx++
				}
			}
			if len(label) > maxLen {
				maxLen = len(label)
			}

			writeEntry(w, entry, label, maxLen, colorMap, opts)

		case err := <-stream.Err:
			return err
		}
	}
}

// entryLabel returns the prefix label for an entry.
func entryLabel(entry Entry) string {
	if entry.Service == "" {
		return "unknown"
	}
	return entry.Service
}

// buildColorMap assigns a unique color to each label found in the entries.
func buildColorMap(entries []Entry, noColor bool) map[string]string {
	if noColor {
		return map[string]string{}
	}

	seen := map[string]bool{}
	var orderedLabels []string
	for _, entry := range entries {
		label := entryLabel(entry)
		if !seen[label] {
			seen[label] = true
			orderedLabels = append(orderedLabels, label)
		}
	}

	colorMap := make(map[string]string, len(orderedLabels))
	for i, label := range orderedLabels {
		colorMap[label] = colors[i%len(colors)]
	}
	return colorMap
}

// writeEntry formats and writes a single log entry to the writer.
func writeEntry(w io.Writer, entry Entry, label string, maxLen int, colorMap map[string]string, opts FormatOptions) {
	var sb strings.Builder

	color := colorMap[label]
	if color != "" {
		sb.WriteString(color)
	}

	sb.WriteString(fmt.Sprintf("%-*s", maxLen, label))
	sb.WriteString(" | ")

	if color != "" {
		sb.WriteString(colorReset)
	}

	if opts.ShowTimestamps {
		sb.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
		sb.WriteString("  ")
	}

	sb.WriteString(entry.Message)
	sb.WriteString("\n")

	fmt.Fprint(w, sb.String())
}
