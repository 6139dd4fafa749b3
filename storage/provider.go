package storage

import (
	"context"
	"log/slog"

	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/tools"
)

// ArchiveProvider hooks an Archive into the tool registry's
// conversation lifecycle. It contributes no tools; it only listens for
// conversation starts and records them, so every run leaves an archive
// row even if it fails before producing entries.
type ArchiveProvider struct {
	archive Archive
	logger  *slog.Logger
}

var (
	_ tools.Provider            = (*ArchiveProvider)(nil)
	_ tools.ConversationStarter = (*ArchiveProvider)(nil)
)

// NewArchiveProvider creates the lifecycle adapter. A nil logger
// disables logging.
func NewArchiveProvider(archive Archive, logger *slog.Logger) *ArchiveProvider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ArchiveProvider{archive: archive, logger: logger}
}

// Definitions contributes no tool schemas.
func (p *ArchiveProvider) Definitions() []llm.ToolDefinition { return nil }

// Functions contributes no callables.
func (p *ArchiveProvider) Functions() map[string]tools.Func { return nil }

// StartConversation records the new conversation, labelled with the
// opening user request.
func (p *ArchiveProvider) StartConversation(ctx context.Context, conversationID, userRequest string) {
	if err := p.archive.Begin(ctx, conversationID, userRequest); err != nil {
		p.logger.Error("failed to record conversation start",
			"conversation", conversationID, "error", err)
	}
}
