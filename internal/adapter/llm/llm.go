// Package llm defines the text-understanding collaborator contracts the
// engine consumes, plus an HTTP implementation for a chat-completion style
// gateway. The engine only ever sees strings; interpreting them is the
// caller's job, so a misbehaving model degrades to "no data".
package llm

import (
	"context"
)

// Classifier assigns a raw intent label to one user turn.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string, hasImage bool, prompt string) (string, error)
}

// Extractor returns either a bare drug name, the sentinel "NONE", or a JSON
// payload the extraction normalizer parses.
type Extractor interface {
	Extract(ctx context.Context, text, prompt string) (string, error)
	ExtractFromImage(ctx context.Context, image []byte, prompt string) (string, error)
}

// DialogueGenerator produces assistant text for the dialogue state.
type DialogueGenerator interface {
	Chat(ctx context.Context, systemPrompt, userQuery string, history []string) (string, error)
}

// Sentinel the extractor returns when no drug name is present.
const SentinelNone = "NONE"
