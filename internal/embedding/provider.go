// Package embedding turns project search texts into vectors through an OpenAI-compatible
// embeddings API.
package embedding

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured = errors.New("embedding provider not configured")
	ErrUnauthorized  = errors.New("embedding provider rejected credentials")
	ErrRateLimited   = errors.New("embedding provider rate limited")
	ErrProvider      = errors.New("embedding provider error")
)

// Response holds one vector per input text, in input order. A nil entry means the provider
// returned nothing for that input.
type Response struct {
	Vectors    [][]float32
	TokensUsed int
}

// Provider is an embeddings backend.
type Provider interface {
	Embed(ctx context.Context, texts []string) (Response, error)
	Model() string
	Dimensions() int
}
