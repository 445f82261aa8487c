package image

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/dmorgan81/fluxui/internal/engine"
	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/samber/do"
)

// EngineGenerator calls a model through an engine.Engine. Loaded models are kept
// per name and quantization since loading is the slow part.
type EngineGenerator struct {
	engine engine.Engine

	mu     sync.Mutex
	models map[string]engine.Model
}

func NewEngineGenerator(i *do.Injector) (*EngineGenerator, error) {
	return NewEngineGeneratorWith(do.MustInvoke[engine.Engine](i)), nil
}

func NewEngineGeneratorWith(e engine.Engine) *EngineGenerator {
	return &EngineGenerator{engine: e, models: map[string]engine.Model{}}
}

func (g *EngineGenerator) Generate(ctx context.Context, req request.Request, _ string) (Generation, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("engine").With("model", req.Model)

	model, err := g.load(ctx, req)
	if err != nil {
		return Generation{}, &EngineError{Message: fmt.Sprintf("loading model %s: %v", req.Model, err), Err: err}
	}

	config := engine.Config{
		Steps:    req.Steps,
		Width:    req.Resolution,
		Height:   req.Resolution,
		Guidance: req.Guidance,
	}

	log.Info("generating image via engine", "steps", config.Steps, "size", config.Width)
	start := time.Now()
	img, err := model.Generate(ctx, req.Seed, req.Prompt, config)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("engine generation failed", "error", err, "elapsed", elapsed)
		return Generation{}, &EngineError{Message: err.Error(), Err: err}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Generation{}, &EngineError{Message: fmt.Sprintf("encoding image: %v", err), Err: err}
	}

	log.Info("generated image via engine", "elapsed", elapsed, "bytes", buf.Len())
	return Generation{Data: buf.Bytes(), Elapsed: elapsed}, nil
}

func (g *EngineGenerator) load(ctx context.Context, req request.Request) (engine.Model, error) {
	key := string(req.Model) + ":" + req.QuantizeLabel()

	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.models[key]; ok {
		return m, nil
	}
	m, err := g.engine.Load(ctx, string(req.Model), req.Quantize)
	if err != nil {
		return nil, err
	}
	g.models[key] = m
	return m, nil
}
