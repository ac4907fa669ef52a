package state

import (
	"strings"
	"time"

	"github.com/debugmcp/debugmcp/pkg/types"
)

// DefaultOutputCap is the default maximum number of buffered output lines.
const DefaultOutputCap = 1000

// outputBuffer is a bounded ring of program output lines. When full, the
// oldest lines are dropped.
type outputBuffer struct {
	max     int
	records []types.OutputRecord
}

func newOutputBuffer(max int) *outputBuffer {
	if max <= 0 {
		max = DefaultOutputCap
	}
	return &outputBuffer{max: max}
}

// add splits a raw output payload on CR/LF, skips empty segments and appends
// one timestamped record per line, trimming the head to enforce the cap.
func (b *outputBuffer) add(category types.OutputCategory, output string, now time.Time) {
	for _, line := range strings.FieldsFunc(output, func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		if line == "" {
			continue
		}
		b.records = append(b.records, types.OutputRecord{
			Text:      line,
			Category:  category,
			Timestamp: now,
		})
	}
	if over := len(b.records) - b.max; over > 0 {
		b.records = append(b.records[:0:0], b.records[over:]...)
	}
}

// query returns buffered lines after since, trimmed to at most maxLines
// (keeping the newest). Lines with category stdout or console land in
// Stdout; stderr lines in Stderr.
func (b *outputBuffer) query(q types.OutputQuery) types.OutputSnapshot {
	matched := make([]types.OutputRecord, 0, len(b.records))
	for _, rec := range b.records {
		if !q.Since.IsZero() && !rec.Timestamp.After(q.Since) {
			continue
		}
		matched = append(matched, rec)
	}

	truncated := false
	if q.MaxLines > 0 && len(matched) > q.MaxLines {
		matched = matched[len(matched)-q.MaxLines:]
		truncated = true
	}

	var stdout, stderr []string
	for _, rec := range matched {
		switch rec.Category {
		case types.CategoryStderr:
			stderr = append(stderr, rec.Text)
		case types.CategoryStdout, types.CategoryConsole:
			stdout = append(stdout, rec.Text)
		}
	}

	return types.OutputSnapshot{
		Stdout:    strings.Join(stdout, "\n"),
		Stderr:    strings.Join(stderr, "\n"),
		Truncated: truncated,
	}
}

func (b *outputBuffer) clear() {
	b.records = nil
}

func (b *outputBuffer) len() int {
	return len(b.records)
}
