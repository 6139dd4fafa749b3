package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
)

func newTestArchive(t *testing.T) *SqliteArchive {
	t.Helper()
	archive, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("NewSqliteInMemory: %v", err)
	}
	t.Cleanup(func() { archive.Close() })
	return archive
}

func sampleEntries() []history.Entry {
	return []history.Entry{
		{
			Role:      "user",
			Content:   "make a bracket",
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			Role:      "assistant",
			Content:   "bracket created",
			Key:       "main_response",
			StepName:  "main",
			Timestamp: time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC),
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	if err := archive.Save(ctx, "conv-1", sampleEntries()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := archive.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	if loaded[0].Role != "user" || loaded[0].Content != "make a bracket" {
		t.Errorf("unexpected first entry: %+v", loaded[0])
	}
	if loaded[1].Key != "main_response" || loaded[1].StepName != "main" {
		t.Errorf("entry metadata must round-trip, got %+v", loaded[1])
	}
	if !loaded[1].Timestamp.Equal(time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)) {
		t.Errorf("timestamp must round-trip, got %v", loaded[1].Timestamp)
	}
	if loaded[0].ConversationID != "conv-1" {
		t.Errorf("expected conversation id stamped on load, got %q", loaded[0].ConversationID)
	}
}

func TestSaveReplacesTranscript(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	if err := archive.Save(ctx, "conv-1", sampleEntries()); err != nil {
		t.Fatal(err)
	}
	if err := archive.Save(ctx, "conv-1", sampleEntries()[:1]); err != nil {
		t.Fatal(err)
	}

	loaded, err := archive.Load(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Errorf("expected replacement save to drop stale entries, got %d", len(loaded))
	}
}

func TestLoadUnknownConversationReturnsEmpty(t *testing.T) {
	archive := newTestArchive(t)

	loaded, err := archive.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("missing conversation is not an error: %v", err)
	}
	if loaded == nil || len(loaded) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", loaded)
	}
}

func TestPartsRoundTrip(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	entries := []history.Entry{{
		Role:    "user",
		Content: "see attached",
		Parts: []llm.ContentPart{
			{Type: "text", Text: "see attached"},
			{Type: "image_url", ImageURL: "data:image/png;base64,AAAA"},
		},
		Timestamp: time.Now().UTC(),
	}}
	if err := archive.Save(ctx, "conv-img", entries); err != nil {
		t.Fatal(err)
	}

	loaded, err := archive.Load(ctx, "conv-img")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || len(loaded[0].Parts) != 2 {
		t.Fatalf("expected parts to round-trip, got %+v", loaded)
	}
	if loaded[0].Parts[1].ImageURL != "data:image/png;base64,AAAA" {
		t.Errorf("unexpected image part: %+v", loaded[0].Parts[1])
	}
}

func TestBeginIsIdempotent(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	if err := archive.Begin(ctx, "conv-1", "first label"); err != nil {
		t.Fatal(err)
	}
	if err := archive.Begin(ctx, "conv-1", "second label"); err != nil {
		t.Fatal(err)
	}

	exists, err := archive.Exists(ctx, "conv-1")
	if err != nil || !exists {
		t.Fatalf("expected conversation to exist, got %v (%v)", exists, err)
	}

	ids, err := archive.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("expected one conversation, got %v", ids)
	}
}

func TestDeleteRemovesConversation(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	if err := archive.Save(ctx, "conv-1", sampleEntries()); err != nil {
		t.Fatal(err)
	}
	if err := archive.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, err := archive.Exists(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("expected conversation gone after delete")
	}
	loaded, err := archive.Load(ctx, "conv-1")
	if err != nil || len(loaded) != 0 {
		t.Errorf("expected no entries after delete, got %v (%v)", loaded, err)
	}
}

func TestOpenSqliteCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "archive.db")

	archive, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite: %v", err)
	}
	defer archive.Close()

	if err := archive.Save(context.Background(), "conv-1", sampleEntries()); err != nil {
		t.Fatalf("Save on file-backed archive: %v", err)
	}
}

func TestArchiveProviderStartConversation(t *testing.T) {
	archive := newTestArchive(t)
	provider := NewArchiveProvider(archive, nil)

	provider.StartConversation(context.Background(), "conv-9", "build a flange")

	exists, err := archive.Exists(context.Background(), "conv-9")
	if err != nil || !exists {
		t.Fatalf("expected conversation recorded, got %v (%v)", exists, err)
	}
}
