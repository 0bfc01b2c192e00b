package interfaces

import (
	"context"
	"io"
)

// LanguageModel is the gateway to the chat-completion model. Both calls
// return the supplied fallback on any transport or parse failure; the
// conversation engine never sees an error from the model.
type LanguageModel interface {
	// Reply generates a customer-facing answer under the assistant
	// persona (moderate temperature).
	Reply(ctx context.Context, prompt, fallback string) string

	// Complete returns the model's raw output for classification-style
	// prompts (temperature zero, no persona).
	Complete(ctx context.Context, system, user, fallback string) string
}

// Embedder turns text into the fixed-length vector used for catalog
// similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Transcriber converts an audio upload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Messenger delivers an outbound reply over a channel's own protocol.
type Messenger interface {
	SendMessage(to, content string) error
}
