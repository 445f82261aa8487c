// Package engine loads named image models and runs generations on them.
package engine

import (
	"context"
	"image"
)

// Config carries the per-call generation settings. Guidance is nil for models that
// do not take one.
type Config struct {
	Steps    int      `json:"steps"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Guidance *float64 `json:"guidance,omitempty"`
}

type Model interface {
	Name() string
	Generate(ctx context.Context, seed int, prompt string, config Config) (image.Image, error)
}

// Engine resolves a model by name, optionally quantized. Loading may take a long time.
type Engine interface {
	Load(ctx context.Context, name string, quantize *int) (Model, error)
}
