// Package storage provides conversation transcript archival.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Each implementation encapsulates its own schema and protocols

package storage

import (
	"context"

	"github.com/forshape/stepflow/history"
)

// Archive persists full conversation transcripts keyed by conversation
// id. Implementations can use different backends; entries round-trip
// with their metadata (step name, dedup key, timestamp) intact.
type Archive interface {
	// Begin records a conversation before any entries exist, typically
	// labelled with the user's opening request. Idempotent.
	Begin(ctx context.Context, conversationID, label string) error

	// Save replaces the archived transcript of a conversation.
	Save(ctx context.Context, conversationID string, entries []history.Entry) error

	// Load returns the archived transcript. Returns an empty slice (not
	// nil) for an unknown conversation; errors are storage failures only.
	Load(ctx context.Context, conversationID string) ([]history.Entry, error)

	// Delete removes a conversation and its entries.
	Delete(ctx context.Context, conversationID string) error

	// List returns all archived conversation ids.
	List(ctx context.Context) ([]string, error)

	// Exists checks whether a conversation has been archived.
	Exists(ctx context.Context, conversationID string) (bool, error)
}
