// Package render formats workflow transcripts for terminals and text
// exports.
package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/codecrew/workflow"
	"github.com/dshills/codecrew/workflow/store"
)

// ExportTimeLayout stamps export file names.
const ExportTimeLayout = "20060102_150405"

var roleIcons = []struct {
	key, icon string
}{
	{"RequirementAnalysis", "📋"},
	{"CodeReview", "🔍"},
	{"Coding", "💻"},
	{"Documentation", "📝"},
	{"TestCases", "🧪"},
	{"Deployment", "🚀"},
	{"UIGeneration", "🎨"},
	{"Streamlit", "🎨"},
}

// Icon returns the emoji shown next to messages from source. Matching is a
// case-insensitive substring test so renamed roles keep their icon.
func Icon(source string) string {
	if source == workflow.SourceUser {
		return "👤"
	}
	lower := strings.ToLower(source)
	for _, ri := range roleIcons {
		if strings.Contains(lower, strings.ToLower(ri.key)) {
			return ri.icon
		}
	}
	return "🤖"
}

// Export writes messages in the plain-text download format: one
// "=== Message N - source ===" block per message, blank-line separated.
func Export(w io.Writer, messages []workflow.Message) error {
	for i, m := range messages {
		if i > 0 {
			if _, err := io.WriteString(w, "\n\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "=== Message %d - %s ===\n%s", i+1, m.Source, m.Content); err != nil {
			return err
		}
	}
	return nil
}

// ExportFileName names a transcript saved at t.
func ExportFileName(t time.Time) string {
	return "agent_messages_" + t.Format(ExportTimeLayout) + ".txt"
}

// SaveExport writes messages to dir under ExportFileName(now) and returns
// the file path.
func SaveExport(dir string, messages []workflow.Message, now time.Time) (string, error) {
	path := filepath.Join(dir, ExportFileName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	if err := Export(f, messages); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	return path, nil
}

// FromTurns converts persisted turns back into messages.
func FromTurns(turns []store.Turn) []workflow.Message {
	out := make([]workflow.Message, len(turns))
	for i, t := range turns {
		out[i] = workflow.Message{
			Seq:       t.Seq,
			Source:    t.Source,
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		}
		out[i].Usage.InputTokens = t.InputTokens
		out[i].Usage.OutputTokens = t.OutputTokens
	}
	return out
}
