// Transcript export for the history store.
//
// The export format is a human-readable dump, not a machine format;
// parsers should read the store directly instead.

package history

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const exportSeparator = "================================================================================"

// Export serializes full entries (role, content, timestamp, conversation
// id) to w as a human-readable transcript. Failures are returned, never
// swallowed.
func (s *Store) Export(w io.Writer, label string) error {
	entries := s.Snapshot()

	header := fmt.Sprintf("%s\nConversation History Dump\nGenerated: %s\nLabel: %s\nTotal Messages: %d\n%s\n",
		exportSeparator,
		time.Now().Format("2006-01-02 15:04:05"),
		label,
		len(entries),
		exportSeparator,
	)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("failed to write transcript header: %w", err)
	}

	for i, e := range entries {
		conversationID := e.ConversationID
		if conversationID == "" {
			conversationID = "N/A"
		}
		stepName := e.StepName
		if stepName == "" {
			stepName = "N/A"
		}

		var b strings.Builder
		fmt.Fprintf(&b, "\n%s\n", exportSeparator)
		fmt.Fprintf(&b, "Message #%d - Role: %s\n", i+1, strings.ToUpper(e.Role))
		fmt.Fprintf(&b, "Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(&b, "Conversation ID: %s\n", conversationID)
		fmt.Fprintf(&b, "Step: %s\n", stepName)
		fmt.Fprintf(&b, "%s\n", exportSeparator)
		fmt.Fprintf(&b, "%s\n", e.Content)
		for _, part := range e.Parts {
			if part.Type == "image_url" {
				url := part.ImageURL
				if len(url) > 100 {
					url = url[:100] + "..."
				}
				fmt.Fprintf(&b, "[IMAGE: %s]\n", url)
			}
		}

		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("failed to write transcript entry %d: %w", i+1, err)
		}
	}

	return nil
}

// ExportToFile writes the transcript to a timestamped file under dir,
// creating the directory if needed, and returns the file path.
func (s *Store) ExportToFile(dir, label string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	name := fmt.Sprintf("history_dump_%s.txt", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create transcript file: %w", err)
	}
	defer f.Close()

	if err := s.Export(f, label); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to flush transcript file: %w", err)
	}

	return path, nil
}
