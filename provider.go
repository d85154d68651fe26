package codexpc

import (
	"context"
)

// Provider runs prompts against a generation backend and streams the result.
//
// Usage:
//
//	stream, err := provider.Stream(ctx, prompt)
//	if err != nil { return err }
//	defer stream.Close()
//	for ev := range stream.Events() {
//	  if ev.Err != nil { handle error }
//	  if ev.Type == codexpc.ResponseEventOutputTextDelta { print ev.Delta }
//	  if ev.Item != nil { record item in history }
//	}
type Provider interface {
	// Stream starts a request and returns immediately. The stream closes after
	// the terminal event, or when ctx is cancelled. Errors that prevent the
	// request from starting at all are returned directly.
	Stream(ctx context.Context, prompt *Prompt) (*ResponseStream, error)

	// Name returns the provider identifier
	Name() ProviderID
}
